package growth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm-cable/sprout/components"
	"github.com/pthm-cable/sprout/config"
)

func init() {
	config.MustInit("")
}

func openLimits() Limits {
	return Limits{
		Photon:      80,
		Water:       1000,
		Nitrate:     1000,
		StomataOpen: true,
		FluxLimit:   1000,
	}
}

func bounds(t *testing.T, p *Problem, name string) [2]float64 {
	t.Helper()
	b, ok := p.Bounds()[name]
	require.True(t, ok, "no variable %s", name)
	return b
}

func TestCatalogueShape(t *testing.T) {
	cat := NewCatalogue(config.Cfg().Growth)

	assert.Len(t, cat.Metabolites, 14)
	assert.Len(t, cat.Reactions, 20)
	for _, kind := range components.OrganKinds {
		_, ok := cat.Index(BiomassReaction(kind))
		assert.True(t, ok, kind.String())
	}
	assert.Equal(t, "carb_sd", Metabolite(compoundCarbon, components.KindSeed))
}

func TestBuildProblemRatios(t *testing.T) {
	cat := NewCatalogue(config.Cfg().Growth)
	masses := [components.NumOrganKinds]float64{0.1, 0.2, 0.4, 0.05}
	alloc := Allocation{Leaf: 25, Stem: 50, Root: 25, Seed: 0, Starch: 10}

	p := BuildProblem(cat, masses, alloc, openLimits())

	require.Len(t, p.Ratios, 3)
	for _, r := range p.Ratios {
		assert.Equal(t, BiomassReaction(components.KindLeaf), r.A)
	}
	stem := p.Ratios[0]
	assert.Equal(t, BiomassReaction(components.KindStem), stem.B)
	assert.InDelta(t, 50*0.1, stem.CoefA, 1e-12)
	assert.InDelta(t, 25*0.2, stem.CoefB, 1e-12)

	starch := p.Ratios[2]
	assert.Equal(t, StarchOut, starch.B)
	assert.InDelta(t, 10*0.1, starch.CoefA, 1e-12)
	assert.InDelta(t, 25*0.1, starch.CoefB, 1e-12)

	assert.Equal(t, [2]float64{0, 0}, bounds(t, p, BiomassReaction(components.KindSeed)), "zero-percent producer is pinned")
}

func TestBuildProblemReferenceSkipsZeroPercent(t *testing.T) {
	cat := NewCatalogue(config.Cfg().Growth)
	masses := [components.NumOrganKinds]float64{0.1, 0.2, 0.4, 0.05}

	p := BuildProblem(cat, masses, Allocation{Root: 40, Seed: 60}, openLimits())

	require.Len(t, p.Ratios, 1)
	assert.Equal(t, BiomassReaction(components.KindRoot), p.Ratios[0].A)
	assert.Equal(t, BiomassReaction(components.KindSeed), p.Ratios[0].B)
	assert.Equal(t, [2]float64{0, 0}, bounds(t, p, StarchOut))
}

func TestBuildProblemZeroMassOrgan(t *testing.T) {
	cat := NewCatalogue(config.Cfg().Growth)
	masses := [components.NumOrganKinds]float64{0.1, 0.2, 0.4, 0}

	p := BuildProblem(cat, masses, Allocation{Leaf: 25, Stem: 25, Root: 25, Seed: 25}, openLimits())

	assert.Len(t, p.Ratios, 2, "massless seed takes no share")
	assert.Equal(t, [2]float64{0, 0}, bounds(t, p, BiomassReaction(components.KindSeed)))
	assert.Equal(t, [2]float64{0, 0}, bounds(t, p, "Carbon_stem_seed"))
	assert.Equal(t, [2]float64{0, 0}, bounds(t, p, "H2O_stem_seed"))
}

func TestBuildProblemTransferCoefficients(t *testing.T) {
	cat := NewCatalogue(config.Cfg().Growth)
	masses := [components.NumOrganKinds]float64{0.1, 0.2, 0.4, 0.05}
	p := BuildProblem(cat, masses, Allocation{Leaf: 100}, openLimits())

	j, _ := cat.Index("Carbon_stem_root")
	from := cat.metIndex[Metabolite(compoundCarbon, components.KindStem)]
	to := cat.metIndex[Metabolite(compoundCarbon, components.KindRoot)]
	assert.Equal(t, -1.0, p.S.At(from, j))
	assert.InDelta(t, 0.5, p.S.At(to, j), 1e-12)
}

func TestBuildProblemExchangeBounds(t *testing.T) {
	cat := NewCatalogue(config.Cfg().Growth)
	masses := [components.NumOrganKinds]float64{0.1, 0.2, 0.4, 0.05}

	lim := openLimits()
	lim.StarchIn = 3
	p := BuildProblem(cat, masses, Allocation{Leaf: 100}, lim)
	assert.Equal(t, [2]float64{0, 80}, bounds(t, p, PhotonExchange))
	assert.Equal(t, [2]float64{0, 3}, bounds(t, p, StarchIn))
	assert.Equal(t, [2]float64{-1000, 1000}, bounds(t, p, CO2Exchange))

	lim.StomataOpen = false
	p = BuildProblem(cat, masses, Allocation{Leaf: 100}, lim)
	assert.Equal(t, [2]float64{-1000, 0}, bounds(t, p, CO2Exchange), "closed stomata allow release only")
}

func TestAllocationValidate(t *testing.T) {
	assert.NoError(t, Allocation{Leaf: 100, Starch: 0}.Validate())
	assert.Error(t, Allocation{Leaf: 101}.Validate())
	assert.Error(t, Allocation{Stem: -1}.Validate())
	assert.Equal(t, 7.0, Allocation{Seed: 7}.Organ(components.KindSeed))
}
