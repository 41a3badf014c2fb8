package telemetry

import (
	"log/slog"
	"sort"
)

// WindowStats holds aggregated statistics for a window of simulated time.
type WindowStats struct {
	WindowStartStep int64   `csv:"-"`
	WindowEndStep   int64   `csv:"window_end"`
	SimTimeSec      float64 `csv:"sim_time"`
	Hour            float64 `csv:"hour"`

	// Organ biomass at window end (grams)
	LeafMass float64 `csv:"leaf_mass"`
	StemMass float64 `csv:"stem_mass"`
	RootMass float64 `csv:"root_mass"`
	SeedMass float64 `csv:"seed_mass"`

	// Growth during window (grams)
	LeafGrowth float64 `csv:"leaf_growth"`
	StemGrowth float64 `csv:"stem_growth"`
	RootGrowth float64 `csv:"root_growth"`
	SeedGrowth float64 `csv:"seed_growth"`
	Overflow   float64 `csv:"overflow"`

	// Growth rate distribution over the window's steps (grams per hour)
	GrowthRateMean float64 `csv:"growth_rate_mean"`
	GrowthRateP10  float64 `csv:"growth_rate_p10"`
	GrowthRateP50  float64 `csv:"growth_rate_p50"`
	GrowthRateP90  float64 `csv:"growth_rate_p90"`

	// Pools at window end (micromol)
	Starch  float64 `csv:"starch"`
	Water   float64 `csv:"water"`
	Nitrate float64 `csv:"nitrate"`

	// Flows during window (micromol)
	StarchOut       float64 `csv:"starch_out"`
	StarchIn        float64 `csv:"starch_in"`
	WaterFromGrid   float64 `csv:"water_from_grid"`
	WaterShortfall  float64 `csv:"water_shortfall"`
	Transpired      float64 `csv:"transpired"`
	NitrateFromGrid float64 `csv:"nitrate_from_grid"`
	RainAdded       float64 `csv:"rain_added"`

	// Soil at window end
	GridWater   float64 `csv:"grid_water"`
	GridNitrate float64 `csv:"grid_nitrate"`
	RootCells   int     `csv:"root_cells"`
	RootTrees   int     `csv:"root_trees"`

	// Weather sampled at the last step
	Temperature float64 `csv:"temperature"`
	Humidity    float64 `csv:"humidity"`
}

// Percentile calculates the p-th percentile of a sorted slice.
// p should be in [0, 1]. Returns 0 if slice is empty.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}

	// Linear interpolation
	idx := p * float64(n-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// ComputeRateStats calculates mean and percentiles from per-step rates.
func ComputeRateStats(values []float64) (mean, p10, p50, p90 float64) {
	n := len(values)
	if n == 0 {
		return 0, 0, 0, 0
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	mean = sum / float64(n)

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	p10 = Percentile(sorted, 0.10)
	p50 = Percentile(sorted, 0.50)
	p90 = Percentile(sorted, 0.90)

	return mean, p10, p50, p90
}

// TotalGrowth returns the summed organ growth in the window.
func (s WindowStats) TotalGrowth() float64 {
	return s.LeafGrowth + s.StemGrowth + s.RootGrowth + s.SeedGrowth
}

// LogValue implements slog.LogValuer for structured logging.
func (s WindowStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("window_start", s.WindowStartStep),
		slog.Int64("window_end", s.WindowEndStep),
		slog.Float64("sim_time", s.SimTimeSec),
		slog.Float64("hour", s.Hour),
		slog.Float64("leaf_mass", s.LeafMass),
		slog.Float64("stem_mass", s.StemMass),
		slog.Float64("root_mass", s.RootMass),
		slog.Float64("seed_mass", s.SeedMass),
		slog.Float64("growth", s.TotalGrowth()),
		slog.Float64("overflow", s.Overflow),
		slog.Float64("growth_rate_mean", s.GrowthRateMean),
		slog.Float64("growth_rate_p90", s.GrowthRateP90),
		slog.Float64("starch", s.Starch),
		slog.Float64("water", s.Water),
		slog.Float64("nitrate", s.Nitrate),
		slog.Float64("transpired", s.Transpired),
		slog.Float64("water_shortfall", s.WaterShortfall),
		slog.Float64("grid_water", s.GridWater),
		slog.Float64("grid_nitrate", s.GridNitrate),
		slog.Int("root_cells", s.RootCells),
		slog.Int("root_trees", s.RootTrees),
		slog.Float64("temperature", s.Temperature),
		slog.Float64("humidity", s.Humidity),
	)
}

// LogStats logs the window stats using slog.
func (s WindowStats) LogStats() {
	slog.Info("stats", "window", s)
}
