package growth

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/pthm-cable/sprout/components"
	"github.com/pthm-cable/sprout/config"
)

func solver() SimplexSolver {
	return SimplexSolver{Tolerance: config.Cfg().Growth.Tolerance}
}

func assertSteadyState(t *testing.T, p *Problem, sol *Solution) {
	t.Helper()
	var sv mat.VecDense
	sv.MulVec(p.S, mat.NewVecDense(len(sol.Values), sol.Values))
	for i := 0; i < sv.Len(); i++ {
		assert.InDelta(t, 0, sv.AtVec(i), 1e-6, "metabolite %s", p.Metabolites[i])
	}
	for i, v := range sol.Values {
		assert.GreaterOrEqual(t, v, p.Lower[i]-1e-9, p.Variables[i])
		assert.LessOrEqual(t, v, p.Upper[i]+1e-9, p.Variables[i])
	}
}

func TestSolveEqualAllocation(t *testing.T) {
	cat := NewCatalogue(config.Cfg().Growth)
	masses := [components.NumOrganKinds]float64{1, 1, 1, 1}
	p := BuildProblem(cat, masses, Allocation{Leaf: 25, Stem: 25, Root: 25, Starch: 25}, openLimits())

	sol, err := solver().Solve(p)
	require.NoError(t, err)
	assertSteadyState(t, p, sol)

	// 80 photons fix 10 carbon, shared four ways
	leaf := sol.Fluxes[BiomassReaction(components.KindLeaf)]
	assert.InDelta(t, 2.5, leaf, 1e-6)
	assert.InDelta(t, leaf, sol.Fluxes[BiomassReaction(components.KindStem)], 1e-6)
	assert.InDelta(t, leaf, sol.Fluxes[BiomassReaction(components.KindRoot)], 1e-6)
	assert.InDelta(t, leaf, sol.Fluxes[StarchOut], 1e-6)
	assert.Equal(t, 0.0, sol.Fluxes[BiomassReaction(components.KindSeed)])
	assert.InDelta(t, 10.0, sol.Objective, 1e-6)
}

func TestSolveAbsoluteProductionFollowsMass(t *testing.T) {
	cat := NewCatalogue(config.Cfg().Growth)
	masses := [components.NumOrganKinds]float64{0.5, 2, 1, 0.1}
	p := BuildProblem(cat, masses, Allocation{Leaf: 20, Stem: 40, Root: 40}, openLimits())

	sol, err := solver().Solve(p)
	require.NoError(t, err)
	assertSteadyState(t, p, sol)

	leaf := sol.Fluxes[BiomassReaction(components.KindLeaf)] * masses[components.KindLeaf]
	stem := sol.Fluxes[BiomassReaction(components.KindStem)] * masses[components.KindStem]
	root := sol.Fluxes[BiomassReaction(components.KindRoot)] * masses[components.KindRoot]
	require.Greater(t, leaf, 0.0)
	assert.InDelta(t, 2*leaf, stem, 1e-6)
	assert.InDelta(t, 2*leaf, root, 1e-6)
}

func TestSolveNightWithoutStarch(t *testing.T) {
	cat := NewCatalogue(config.Cfg().Growth)
	masses := [components.NumOrganKinds]float64{0.1, 0.2, 0.2, 0.01}
	lim := openLimits()
	lim.Photon = 0
	lim.StomataOpen = false

	p := BuildProblem(cat, masses, Allocation{Leaf: 25, Stem: 25, Root: 25, Starch: 25}, lim)
	sol, err := solver().Solve(p)
	require.NoError(t, err)
	assert.InDelta(t, 0, sol.Objective, 1e-9)
	for _, kind := range components.OrganKinds {
		assert.InDelta(t, 0, sol.Fluxes[BiomassReaction(kind)], 1e-9)
	}
}

func TestSolveNightOnStarch(t *testing.T) {
	cat := NewCatalogue(config.Cfg().Growth)
	masses := [components.NumOrganKinds]float64{1, 1, 1, 1}
	lim := openLimits()
	lim.Photon = 0
	lim.StomataOpen = false
	lim.StarchIn = 3

	p := BuildProblem(cat, masses, Allocation{Leaf: 10, Stem: 10, Root: 10}, lim)
	sol, err := solver().Solve(p)
	require.NoError(t, err)
	assertSteadyState(t, p, sol)

	assert.InDelta(t, 3, sol.Fluxes[StarchIn], 1e-6)
	assert.InDelta(t, 1, sol.Fluxes[BiomassReaction(components.KindRoot)], 1e-6)
}

func TestSolveInvertedBounds(t *testing.T) {
	cat := NewCatalogue(config.Cfg().Growth)
	masses := [components.NumOrganKinds]float64{1, 1, 1, 1}
	p := BuildProblem(cat, masses, Allocation{Leaf: 100}, openLimits())

	j, _ := cat.Index(PhotonExchange)
	p.Lower[j], p.Upper[j] = 5, 1

	_, err := solver().Solve(p)
	require.Error(t, err)

	var se *SolveError
	require.True(t, errors.As(err, &se))
	assert.ErrorIs(t, err, ErrInfeasible)
	assert.Equal(t, [2]float64{5, 1}, se.Bounds[PhotonExchange])
	assert.Contains(t, err.Error(), PhotonExchange)
}

func TestSolveInfeasibleDemand(t *testing.T) {
	cat := NewCatalogue(config.Cfg().Growth)
	masses := [components.NumOrganKinds]float64{1, 1, 1, 1}
	lim := openLimits()
	lim.Photon = 0

	p := BuildProblem(cat, masses, Allocation{Leaf: 100}, lim)
	j, _ := cat.Index(BiomassReaction(components.KindLeaf))
	p.Lower[j] = 1

	_, err := solver().Solve(p)
	var se *SolveError
	require.True(t, errors.As(err, &se), "got %v", err)
	assert.ErrorIs(t, err, ErrInfeasible)
	assert.Empty(t, se.Ratios)
}

func TestSolveUnknownRatioVariable(t *testing.T) {
	cat := NewCatalogue(config.Cfg().Growth)
	masses := [components.NumOrganKinds]float64{1, 1, 1, 1}
	p := BuildProblem(cat, masses, Allocation{Leaf: 100}, openLimits())
	p.Ratios = append(p.Ratios, Ratio{A: "nope", B: StarchOut, CoefA: 1, CoefB: 1})

	_, err := solver().Solve(p)
	var se *SolveError
	assert.True(t, errors.As(err, &se))
}
