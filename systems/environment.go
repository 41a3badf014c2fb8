package systems

import (
	"github.com/pthm-cable/sprout/components"
	"github.com/pthm-cable/sprout/config"
)

// Conditions is the air state sampled at the start of a step.
type Conditions struct {
	Temperature   float64 // Celsius
	Humidity      float64 // percent
	Precipitation float64 // mm per hour
	RainAdded     float64 // micromol water added to the grid this step
}

// Environment owns the soil grids, the weather feed, the light curve and the
// simulation clock.
type Environment struct {
	Water   *MetaboliteGrid
	Nitrate *MetaboliteGrid
	Weather WeatherFeed
	Light   *Light

	// Clock is simulated seconds since midnight of day zero.
	Clock     float64
	RainPerMM float64
}

// NewEnvironment creates grids seeded from config: uniform water and
// noise-distributed nitrate.
func NewEnvironment(cfg *config.Config, seed int64) (*Environment, error) {
	g := cfg.Grid
	water := NewMetaboliteGrid(components.ResourceWater, g.Width, g.Depth, g.WaterMaxCell, seed)
	water.TrickleRate = g.TrickleRate
	if err := water.Fill(g.WaterInitial); err != nil {
		return nil, err
	}

	nitrate := NewMetaboliteGrid(components.ResourceNitrate, g.Width, g.Depth, g.NitrateMaxCell, seed)
	nitrate.TrickleRate = g.TrickleRate
	if err := nitrate.SeedFromNoise(NewSoilNoise(seed), g.NitrateMean, g.NitrateSpread, g.NoiseScale); err != nil {
		return nil, err
	}

	return &Environment{
		Water:     water,
		Nitrate:   nitrate,
		Weather:   NewWeather(cfg.Weather, seed),
		Light:     NewLight(cfg.Light),
		Clock:     cfg.Simulation.StartHour * secondsPerHour,
		RainPerMM: g.RainPerMM,
	}, nil
}

// Hour returns the clock in hours.
func (e *Environment) Hour() float64 {
	return e.Clock / secondsPerHour
}

// Grid returns the soil grid for a resource, or nil for starch.
func (e *Environment) Grid(kind components.ResourceKind) *MetaboliteGrid {
	switch kind {
	case components.ResourceWater:
		return e.Water
	case components.ResourceNitrate:
		return e.Nitrate
	}
	return nil
}

// Weathering samples the weather at the current clock and moves water and
// nitrate through the soil for the given step: rain plus trickle when it
// rains, trickle alone otherwise.
func (e *Environment) Weathering(seconds float64) Conditions {
	temp, hum, precip := e.Weather.State(e.Hour())
	c := Conditions{Temperature: temp, Humidity: hum, Precipitation: precip}

	if precip > 0 {
		rate := precip * e.RainPerMM / secondsPerHour
		c.RainAdded = e.Water.RainIncrease(seconds, rate)
	} else {
		e.Water.Trickle(seconds)
	}
	e.Nitrate.Trickle(seconds)
	return c
}

// SoilCheckpoint is a copy of both grids and their trickle generators.
type SoilCheckpoint struct {
	water, nitrate       [][]float64
	waterRNG, nitrateRNG []byte
}

// Checkpoint copies the soil so a step that fails can be undone.
func (e *Environment) Checkpoint() (SoilCheckpoint, error) {
	waterRNG, err := e.Water.RNGState()
	if err != nil {
		return SoilCheckpoint{}, err
	}
	nitrateRNG, err := e.Nitrate.RNGState()
	if err != nil {
		return SoilCheckpoint{}, err
	}
	return SoilCheckpoint{
		water:      e.Water.Cells(),
		nitrate:    e.Nitrate.Cells(),
		waterRNG:   waterRNG,
		nitrateRNG: nitrateRNG,
	}, nil
}

// Rollback restores the soil captured by Checkpoint.
func (e *Environment) Rollback(cp SoilCheckpoint) error {
	if err := e.Water.SetCells(cp.water); err != nil {
		return err
	}
	if err := e.Nitrate.SetCells(cp.nitrate); err != nil {
		return err
	}
	if err := e.Water.SetRNGState(cp.waterRNG); err != nil {
		return err
	}
	return e.Nitrate.SetRNGState(cp.nitrateRNG)
}

// Advance moves the clock forward.
func (e *Environment) Advance(seconds float64) {
	e.Clock += seconds
}
