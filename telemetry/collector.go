package telemetry

import (
	"github.com/pthm-cable/sprout/components"
	"github.com/pthm-cable/sprout/growth"
	"github.com/pthm-cable/sprout/systems"
)

// Collector accumulates step results within time windows and produces WindowStats.
type Collector struct {
	windowDurationSec   float64
	windowDurationSteps int64
	dt                  float64

	// Current window tracking
	windowStartStep int64

	// Accumulators for current window
	growth          [components.NumOrganKinds]float64
	overflow        float64
	rates           []float64
	starchOut       float64
	starchIn        float64
	waterFromGrid   float64
	waterShortfall  float64
	transpired      float64
	nitrateFromGrid float64
	rainAdded       float64
	conditions      systems.Conditions
}

// NewCollector creates a new stats collector.
// windowDurationSec: how long each stats window lasts in simulated seconds
// dt: seconds per step (used for step-to-time conversion)
func NewCollector(windowDurationSec, dt float64) *Collector {
	stepsPerWindow := int64(windowDurationSec / dt)
	if stepsPerWindow < 1 {
		stepsPerWindow = 1
	}

	return &Collector{
		windowDurationSec:   windowDurationSec,
		windowDurationSteps: stepsPerWindow,
		dt:                  dt,
	}
}

// RecordStep adds one growth step to the current window.
func (c *Collector) RecordStep(res growth.StepResult, cond systems.Conditions) {
	var total float64
	for k, d := range res.Deltas {
		c.growth[k] += d
		total += d
	}
	for _, o := range res.Overflow {
		c.overflow += o
	}
	c.rates = append(c.rates, total*3600/c.dt)
	c.starchOut += res.StarchOut
	c.starchIn += res.StarchIn
	c.waterFromGrid += res.WaterFromGrid
	c.waterShortfall += res.WaterShortfall
	c.transpired += res.Transpired
	c.nitrateFromGrid += res.NitrateFromGrid
	c.rainAdded += cond.RainAdded
	c.conditions = cond
}

// ShouldFlush returns true if enough steps have passed to flush the window.
func (c *Collector) ShouldFlush(currentStep int64) bool {
	return currentStep-c.windowStartStep >= c.windowDurationSteps
}

// Levels holds the state totals sampled at window end.
type Levels struct {
	Masses      [components.NumOrganKinds]float64
	Starch      float64
	Water       float64
	Nitrate     float64
	GridWater   float64
	GridNitrate float64
	RootCells   int
	RootTrees   int
	Hour        float64
}

// Flush produces a WindowStats and resets accumulators for the next window.
func (c *Collector) Flush(currentStep int64, levels Levels) WindowStats {
	mean, p10, p50, p90 := ComputeRateStats(c.rates)

	stats := WindowStats{
		WindowStartStep: c.windowStartStep,
		WindowEndStep:   currentStep,
		SimTimeSec:      float64(currentStep) * c.dt,
		Hour:            levels.Hour,

		LeafMass: levels.Masses[components.KindLeaf],
		StemMass: levels.Masses[components.KindStem],
		RootMass: levels.Masses[components.KindRoot],
		SeedMass: levels.Masses[components.KindSeed],

		LeafGrowth: c.growth[components.KindLeaf],
		StemGrowth: c.growth[components.KindStem],
		RootGrowth: c.growth[components.KindRoot],
		SeedGrowth: c.growth[components.KindSeed],
		Overflow:   c.overflow,

		GrowthRateMean: mean,
		GrowthRateP10:  p10,
		GrowthRateP50:  p50,
		GrowthRateP90:  p90,

		Starch:  levels.Starch,
		Water:   levels.Water,
		Nitrate: levels.Nitrate,

		StarchOut:       c.starchOut,
		StarchIn:        c.starchIn,
		WaterFromGrid:   c.waterFromGrid,
		WaterShortfall:  c.waterShortfall,
		Transpired:      c.transpired,
		NitrateFromGrid: c.nitrateFromGrid,
		RainAdded:       c.rainAdded,

		GridWater:   levels.GridWater,
		GridNitrate: levels.GridNitrate,
		RootCells:   levels.RootCells,
		RootTrees:   levels.RootTrees,

		Temperature: c.conditions.Temperature,
		Humidity:    c.conditions.Humidity,
	}

	// Reset for next window
	c.windowStartStep = currentStep
	c.growth = [components.NumOrganKinds]float64{}
	c.overflow = 0
	c.rates = c.rates[:0]
	c.starchOut = 0
	c.starchIn = 0
	c.waterFromGrid = 0
	c.waterShortfall = 0
	c.transpired = 0
	c.nitrateFromGrid = 0
	c.rainAdded = 0

	return stats
}

// Resume discards the current window and starts a new one at step, for games
// restored from a snapshot.
func (c *Collector) Resume(step int64) {
	c.Flush(step, Levels{})
}

// WindowDurationSteps returns the number of steps per window.
func (c *Collector) WindowDurationSteps() int64 {
	return c.windowDurationSteps
}
