package main

import (
	"context"
	"log/slog"
	"math"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/sprout/config"
	"github.com/pthm-cable/sprout/game"
	"github.com/pthm-cable/sprout/telemetry"
)

// FitnessEvaluator runs headless simulations and computes fitness.
type FitnessEvaluator struct {
	params      *ParamVector
	hours       int
	seeds       []int64
	baseConfig  *config.Config
	statsWindow float64

	// Best run tracking
	mu          sync.Mutex
	bestFitness float64
	bestWindows []telemetry.WindowStats
	lastQuality float64 // quality from most recent Evaluate call
}

// NewFitnessEvaluator creates a new evaluator.
func NewFitnessEvaluator(params *ParamVector, hours int, seeds []int64, baseCfg *config.Config) *FitnessEvaluator {
	return &FitnessEvaluator{
		params:      params,
		hours:       hours,
		seeds:       seeds,
		baseConfig:  baseCfg,
		statsWindow: 3600, // one window per simulated hour
		bestFitness: math.Inf(1),
	}
}

// BestWindows returns the window stats of the best seed of the best evaluation.
func (fe *FitnessEvaluator) BestWindows() []telemetry.WindowStats {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.bestWindows
}

// LastQuality returns the quality score from the most recent evaluation.
func (fe *FitnessEvaluator) LastQuality() float64 {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.lastQuality
}

// runResult holds the results from a single simulation run.
type runResult struct {
	biomass     float64                 // grams at the end of the run
	failed      bool                    // a tick returned an error
	windowStats []telemetry.WindowStats // collected via StatsCallback each window
}

// seedResult holds the result from one seed evaluation.
type seedResult struct {
	fitness float64
	quality float64
	windows []telemetry.WindowStats
}

// Evaluate computes fitness for a parameter vector (lower = better).
// Fitness is negative final biomass: heavier plants = lower (better) fitness.
func (fe *FitnessEvaluator) Evaluate(x []float64) float64 {
	strategy := fe.params.Strategy(x)

	// Run all seeds in parallel
	results := make([]seedResult, len(fe.seeds))
	var wg sync.WaitGroup

	for i, seed := range fe.seeds {
		wg.Add(1)
		go func(idx int, s int64) {
			defer wg.Done()
			result := fe.runSimulation(strategy, s)
			results[idx] = seedResult{
				fitness: fe.computeFitness(result),
				quality: fe.computeQuality(result.windowStats),
				windows: result.windowStats,
			}
		}(i, seed)
	}
	wg.Wait()

	// Aggregate results
	var totalFitness, totalQuality float64
	bestSeedFitness := math.Inf(1)
	var bestSeedWindows []telemetry.WindowStats

	for _, r := range results {
		totalFitness += r.fitness
		totalQuality += r.quality
		if r.fitness < bestSeedFitness {
			bestSeedFitness = r.fitness
			bestSeedWindows = r.windows
		}
	}

	n := float64(len(fe.seeds))
	avgFitness := totalFitness / n

	fe.mu.Lock()
	if avgFitness < fe.bestFitness {
		fe.bestFitness = avgFitness
		fe.bestWindows = bestSeedWindows
	}
	fe.lastQuality = totalQuality / n
	fe.mu.Unlock()

	return avgFitness
}

// runSimulation plays a strategy for the configured number of hours, one
// tick per simulated hour.
func (fe *FitnessEvaluator) runSimulation(strategy Strategy, seed int64) *runResult {
	result := &runResult{}

	g, err := game.New(fe.baseConfig.Clone(), game.Options{
		Seed:           seed,
		StatsWindowSec: fe.statsWindow,
		StatsCallback: func(stats telemetry.WindowStats) {
			result.windowStats = append(result.windowStats, stats)
		},
	})
	if err != nil {
		slog.Error("create game", "error", err)
		result.failed = true
		return result
	}
	defer g.Unload()

	light := fe.baseConfig.Light
	ctx := context.Background()
	draw := game.Action{Kind: game.ActionConsumeStarch, Amount: strategy.StarchDraw}

	for h := 0; h < fe.hours; h++ {
		hour := math.Mod(g.Summary().Clock/3600, 24)
		day := hour >= light.Sunrise && hour < light.Sunset

		req := game.TickRequest{
			ElapsedSeconds: 3600,
			Allocation:     strategy.Night,
			StomataOpen:    day,
		}
		if day {
			req.Allocation = strategy.Day
		}
		if h == 0 {
			req.Actions = []game.Action{draw}
		}

		if _, err := g.Tick(ctx, req); err != nil {
			slog.Debug("tick failed", "seed", seed, "hour", h, "error", err)
			result.failed = true
			break
		}
	}

	result.biomass = g.Summary().TotalBiomass()
	return result
}

// computeFitness calculates the scalar fitness (lower = better).
// Formula: -(biomass × (1.0 + 0.2 × quality))
// Failed runs score zero, worse than any growing plant.
func (fe *FitnessEvaluator) computeFitness(r *runResult) float64 {
	if r.failed {
		return 0
	}
	quality := fe.computeQuality(r.windowStats)
	return -(r.biomass * (1.0 + 0.2*quality))
}

// Quality component weights.
const (
	qualityWeightGrowth    = 0.40
	qualityWeightWater     = 0.35
	qualityWeightStability = 0.25

	qualityWarmupWindows = 2 // skip first N windows (warmup)
)

// computeQuality computes strategy quality ∈ [0, 1] from window stats:
// how often the plant grows, how rarely it runs short of water, and how
// steady its growth rate is.
func (fe *FitnessEvaluator) computeQuality(windows []telemetry.WindowStats) float64 {
	if len(windows) <= qualityWarmupWindows {
		return 0
	}
	valid := windows[qualityWarmupWindows:]

	var growing, dry int
	rates := make([]float64, 0, len(valid))
	for _, w := range valid {
		if w.TotalGrowth() > 0 {
			growing++
		}
		if w.WaterShortfall > 0 {
			dry++
		}
		rates = append(rates, w.GrowthRateMean)
	}

	n := float64(len(valid))
	growthScore := float64(growing) / n
	waterScore := 1 - float64(dry)/n

	stabilityScore := 0.0
	if mean, std := stat.MeanStdDev(rates, nil); mean > 0 {
		c := std / mean
		stabilityScore = math.Exp(-c * c)
	}

	quality := qualityWeightGrowth*growthScore +
		qualityWeightWater*waterScore +
		qualityWeightStability*stabilityScore

	return clamp01(quality)
}

// clamp01 clamps x to [0, 1].
func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
