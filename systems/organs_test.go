package systems

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm-cable/sprout/components"
	"github.com/pthm-cable/sprout/config"
)

func TestNewPlantDefaults(t *testing.T) {
	cfg := config.Cfg()
	p, err := NewPlant(cfg)
	require.NoError(t, err)

	masses := p.Masses()
	assert.Equal(t, cfg.Plant.Leaf.InitialMass, masses[components.KindLeaf])
	assert.Equal(t, cfg.Plant.Seed.InitialMass, masses[components.KindSeed])
	for _, kind := range components.OrganKinds {
		assert.Equal(t, 1, p.Collection(kind).Len(), kind.String())
	}

	total := masses[0] + masses[1] + masses[2] + masses[3]
	assert.InDelta(t, total, p.TotalBiomass(), 1e-15)

	s := cfg.Pools.Starch
	assert.InDelta(t, total*s.FreshWeightFactor*s.StorageFraction*s.MolPerGram, p.Pools.Starch.Max(), 1e-9)
}

func TestNewPlantSkipsZeroMassKinds(t *testing.T) {
	cfg := config.Cfg().Clone()
	cfg.Plant.Seed.InitialMass = 0

	p, err := NewPlant(cfg)
	require.NoError(t, err)
	assert.Equal(t, 0, p.Collection(components.KindSeed).Len())
	assert.Equal(t, 0.0, p.Masses()[components.KindSeed])
}

func newLeafCollection(t *testing.T, masses ...float64) *OrganCollection {
	t.Helper()
	cfg := config.Cfg().Clone()
	cfg.Plant.Leaf = config.OrganConfig{InitialMass: 0, MaxMass: 1}
	p, err := NewPlant(cfg)
	require.NoError(t, err)
	c := p.Collection(components.KindLeaf)
	for _, m := range masses {
		_, err := c.Create(m)
		require.NoError(t, err)
	}
	return c
}

func TestAddBiomassExact(t *testing.T) {
	c := newLeafCollection(t, 0.2, 0.9, 0.5)

	overflow, err := c.AddBiomass(0.3)
	require.NoError(t, err)
	assert.Equal(t, 0.0, overflow)
	assert.InDelta(t, 1.9, c.Biomass(), 1e-12)

	// Least headroom saturates first: organ 1 takes 0.1, the others 0.1 each
	o1, _ := c.Organ(1)
	assert.InDelta(t, 1.0, o1.Mass, 1e-12)
	o0, _ := c.Organ(0)
	assert.InDelta(t, 0.3, o0.Mass, 1e-12)
	o2, _ := c.Organ(2)
	assert.InDelta(t, 0.6, o2.Mass, 1e-12)
}

func TestAddBiomassOverflow(t *testing.T) {
	c := newLeafCollection(t, 0.2, 0.9)

	overflow, err := c.AddBiomass(2)
	require.NoError(t, err)
	assert.InDelta(t, 1.1, overflow, 1e-12)
	for _, o := range c.Organs() {
		assert.Equal(t, o.MaxMass, o.Mass)
	}
}

func TestAddBiomassEmptyAndInvalid(t *testing.T) {
	c := newLeafCollection(t)

	overflow, err := c.AddBiomass(0.5)
	require.NoError(t, err)
	assert.Equal(t, 0.5, overflow, "no organs take nothing")

	_, err = c.AddBiomass(-0.1)
	assert.ErrorIs(t, err, ErrBiomassDecrease)
}

func TestOrganCreateAndSetMass(t *testing.T) {
	c := newLeafCollection(t, 0.1)

	id, err := c.Create(0.3)
	require.NoError(t, err)
	assert.Equal(t, 1, id)

	_, err = c.Create(1.5)
	assert.ErrorIs(t, err, ErrInvalidOrgan)
	_, err = c.Create(-1)
	assert.ErrorIs(t, err, ErrInvalidOrgan)

	assert.ErrorIs(t, c.SetMass(0, 0.05), ErrBiomassDecrease)
	assert.ErrorIs(t, c.SetMass(0, 2), ErrInvalidOrgan)
	assert.ErrorIs(t, c.SetMass(5, 0.5), ErrInvalidOrgan)
	require.NoError(t, c.SetMass(0, 0.5))

	o, ok := c.Organ(0)
	require.True(t, ok)
	assert.Equal(t, 0.5, o.Mass)
	_, ok = c.Organ(7)
	assert.False(t, ok)
}

func TestRestoreOrgans(t *testing.T) {
	p, err := NewPlant(config.Cfg())
	require.NoError(t, err)

	leaf, _ := p.Collection(components.KindLeaf).Organ(0)
	organs := []components.Organ{
		{Kind: components.KindLeaf, ID: 0, Mass: leaf.Mass + 0.1, MaxMass: leaf.MaxMass},
		{Kind: components.KindLeaf, ID: 1, Mass: 0.05, MaxMass: 0.2},
	}
	require.NoError(t, p.RestoreOrgans(components.KindLeaf, organs))
	assert.Equal(t, organs, p.Collection(components.KindLeaf).Organs())
	assert.Equal(t, config.Cfg().Plant.Leaf.MaxMass, p.Collection(components.KindLeaf).MaxMass)

	// Shrinking and gaps are rejected
	shrunk := []components.Organ{{Kind: components.KindLeaf, ID: 0, Mass: 0.001, MaxMass: 1}, organs[1]}
	assert.ErrorIs(t, p.RestoreOrgans(components.KindLeaf, shrunk), ErrBiomassDecrease)
	assert.ErrorIs(t, p.RestoreOrgans(components.KindLeaf, organs[:1]), ErrInvalidOrgan)
	gap := append([]components.Organ(nil), organs...)
	gap[1].ID = 3
	assert.ErrorIs(t, p.RestoreOrgans(components.KindLeaf, gap), ErrInvalidOrgan)
}

func TestRestoreOrgansIsAtomic(t *testing.T) {
	p, err := NewPlant(config.Cfg())
	require.NoError(t, err)
	c := p.Collection(components.KindStem)
	before := c.Organs()
	stem := before[0]

	grown := stem
	grown.Mass = stem.Mass + 0.01
	cases := map[string][]components.Organ{
		"later entry negative":    {grown, {Kind: components.KindStem, ID: 1, Mass: 0.1, MaxMass: 0.2}, {Kind: components.KindStem, ID: 2, Mass: -1, MaxMass: 0.2}},
		"existing above max":      {{Kind: components.KindStem, ID: 0, Mass: stem.MaxMass + 1, MaxMass: stem.MaxMass}},
		"existing with zero max":  {{Kind: components.KindStem, ID: 0, Mass: stem.Mass, MaxMass: 0}},
		"new entry above max":     {grown, {Kind: components.KindStem, ID: 1, Mass: 0.3, MaxMass: 0.2}},
		"gap after a valid entry": {grown, {Kind: components.KindStem, ID: 5, Mass: 0.1, MaxMass: 0.2}},
	}
	for name, organs := range cases {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, p.RestoreOrgans(components.KindStem, organs), ErrInvalidOrgan)
			assert.Equal(t, before, c.Organs(), "collection unchanged")
		})
	}
}
