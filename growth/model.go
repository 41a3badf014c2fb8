package growth

import (
	"fmt"
	"log/slog"

	"gonum.org/v1/gonum/mat"

	"github.com/pthm-cable/sprout/components"
	"github.com/pthm-cable/sprout/config"
	"github.com/pthm-cable/sprout/systems"
)

// StepInput is what the model needs beyond plant and environment state.
type StepInput struct {
	Allocation  Allocation
	StomataOpen bool
	Seconds     float64
	Conditions  systems.Conditions
}

// StepResult reports what one solved step did.
type StepResult struct {
	Fluxes map[string]float64

	// Units is biomass produced per organ kind in micromol.
	Units [components.NumOrganKinds]float64
	// Deltas is grams actually added per organ kind.
	Deltas [components.NumOrganKinds]float64
	// Overflow is grams that did not fit under organ caps.
	Overflow [components.NumOrganKinds]float64

	StarchOut      float64 // micromol exported to the starch pool
	StarchIn       float64 // micromol imported from the starch pool
	StarchOverflow float64 // micromol the pool could not hold

	WaterFromGrid   float64
	WaterFromPool   float64
	WaterShortfall  float64
	Transpired      float64
	NitrateFromGrid float64
	NitrateUsed     float64
}

// Model runs the growth problem for one plant.
type Model struct {
	cfg    config.GrowthConfig
	uptake config.UptakeConfig

	Catalogue     *Catalogue
	Solver        Solver
	Transpiration *systems.Transpiration
}

// NewModel creates a model with the gonum simplex solver.
func NewModel(cfg *config.Config) *Model {
	return &Model{
		cfg:           cfg.Growth,
		uptake:        cfg.Uptake,
		Catalogue:     NewCatalogue(cfg.Growth),
		Solver:        SimplexSolver{Tolerance: cfg.Growth.Tolerance},
		Transpiration: systems.NewTranspiration(cfg.Transpiration),
	}
}

func michaelisMenten(mm config.MichaelisMenten, s float64) float64 {
	if s <= 0 || mm.VMax <= 0 {
		return 0
	}
	return mm.VMax * s / (mm.KM + s)
}

// Limits computes the exchange ceilings for the coming step. The second
// return value is the projected transpiration in micromol.
func (m *Model) Limits(plant *systems.Plant, env *systems.Environment, mask mat.Matrix, in StepInput) (Limits, float64, error) {
	s := in.Seconds
	if s <= 0 {
		return Limits{}, 0, fmt.Errorf("growth step of %v seconds: %w", s, systems.ErrDegenerate)
	}
	masses := plant.Masses()
	leaf, root := masses[components.KindLeaf], masses[components.KindRoot]
	pools := plant.Pools

	lim := Limits{
		StomataOpen: in.StomataOpen,
		FluxLimit:   m.cfg.FluxLimit,
		Photon:      env.Light.PerGramPerSecond(env.Clock, env.Clock+s),
	}

	transpired := m.Transpiration.Loss(in.StomataOpen, in.Conditions.Temperature, in.Conditions.Humidity, leaf, s)

	if root > 0 {
		nPool, err := pools.Nitrate.CalcAvailablePerGramAndTime(root, s)
		if err != nil {
			return Limits{}, 0, err
		}
		nEnv := michaelisMenten(m.uptake.Nitrate, env.Nitrate.Available(mask))
		lim.Nitrate = min(nPool, nEnv)

		wPool, err := pools.Water.CalcAvailablePerGramAndTime(root, s)
		if err != nil {
			return Limits{}, 0, err
		}
		wEnv := michaelisMenten(m.uptake.Water, env.Water.Available(mask))
		lim.Water = max(wPool+wEnv-transpired/(root*s), 0)
	}

	if leaf > 0 {
		starch, err := pools.Starch.CalcAvailablePerGramAndTime(leaf, s)
		if err != nil {
			return Limits{}, 0, err
		}
		lim.StarchIn = starch
	}
	return lim, transpired, nil
}

// Step builds and solves the step's problem and applies the fluxes to the
// plant's organs and pools and to the soil grids. It does not advance the
// clock or rescale pools. When the limits or the solve fail, nothing has been
// applied yet.
func (m *Model) Step(plant *systems.Plant, env *systems.Environment, mask mat.Matrix, in StepInput) (StepResult, error) {
	lim, transpired, err := m.Limits(plant, env, mask, in)
	if err != nil {
		return StepResult{}, err
	}
	masses := plant.Masses()
	problem := BuildProblem(m.Catalogue, masses, in.Allocation, lim)

	sol, err := m.Solver.Solve(problem)
	if err != nil {
		slog.Error("growth solve failed", "error", err, "masses", masses, "clock", env.Clock)
		return StepResult{}, err
	}

	s := in.Seconds
	res := StepResult{Fluxes: sol.Fluxes, Transpired: transpired}
	leaf, root := masses[components.KindLeaf], masses[components.KindRoot]

	for _, kind := range components.OrganKinds {
		units := sol.Fluxes[BiomassReaction(kind)] * masses[kind] * s
		res.Units[kind] = units
		grams := units * m.cfg.GramsPerUnit
		overflow, err := plant.Collection(kind).AddBiomass(grams)
		if err != nil {
			return res, err
		}
		res.Deltas[kind] = grams - overflow
		res.Overflow[kind] = overflow
	}

	res.StarchOut = sol.Fluxes[StarchOut] * leaf * s
	res.StarchIn = sol.Fluxes[StarchIn] * leaf * s
	if res.StarchOverflow, err = plant.Pools.Starch.Add(res.StarchOut - res.StarchIn); err != nil {
		return res, err
	}

	if err := m.moveWater(plant, env, mask, sol.Fluxes[WaterExchange]*root*s, transpired, root, s, &res); err != nil {
		return res, err
	}
	if err := m.moveNitrate(plant, env, mask, sol.Fluxes[NitrateExchange]*root*s, root, s, &res); err != nil {
		return res, err
	}

	m.Transpiration.LastCO2Flux = sol.Fluxes[CO2Exchange]
	return res, nil
}

// moveWater covers metabolic use and transpiration from the soil first, up to
// the roots' uptake capacity, then from the pool, and tops the pool up from
// whatever uptake capacity is left.
func (m *Model) moveWater(plant *systems.Plant, env *systems.Environment, mask mat.Matrix, used, transpired, root, s float64, res *StepResult) error {
	pool := plant.Pools.Water
	capacity := michaelisMenten(m.uptake.Water, env.Water.Available(mask)) * root * s

	demand := used + transpired
	res.WaterFromGrid = env.Water.Drain(min(demand, capacity), mask)
	fromPool := demand - res.WaterFromGrid
	if fromPool > pool.Available() {
		res.WaterShortfall = fromPool - pool.Available()
		fromPool = pool.Available()
	}
	res.WaterFromPool = fromPool
	if _, err := pool.SetAvailable(pool.Available() - fromPool); err != nil {
		return err
	}

	refill := min(capacity-res.WaterFromGrid, pool.Headroom())
	moved := env.Water.Drain(refill, mask)
	res.WaterFromGrid += moved
	_, err := pool.Add(moved)
	return err
}

// moveNitrate takes the step's uptake out of the pool and refills the pool
// from the soil, limited by uptake kinetics and pool headroom.
func (m *Model) moveNitrate(plant *systems.Plant, env *systems.Environment, mask mat.Matrix, used, root, s float64, res *StepResult) error {
	pool := plant.Pools.Nitrate
	used = min(used, pool.Available())
	res.NitrateUsed = used
	if _, err := pool.SetAvailable(pool.Available() - used); err != nil {
		return err
	}

	capacity := michaelisMenten(m.uptake.Nitrate, env.Nitrate.Available(mask)) * root * s
	refill := min(capacity, pool.Headroom())
	res.NitrateFromGrid = env.Nitrate.Drain(refill, mask)
	_, err := pool.Add(res.NitrateFromGrid)
	return err
}
