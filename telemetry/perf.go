package telemetry

import (
	"log/slog"
	"time"
)

// Phase names for the simulation step, in execution order.
const (
	PhaseWeather   = "weather"
	PhaseGrowth    = "growth"
	PhasePools     = "pools"
	PhaseRoots     = "roots"
	PhaseTelemetry = "telemetry"
)

var phases = []string{PhaseWeather, PhaseGrowth, PhasePools, PhaseRoots, PhaseTelemetry}

// stepSample is the wall time of one step and of each phase within it.
type stepSample struct {
	total  time.Duration
	phases map[string]time.Duration
}

// PerfCollector times simulation steps over a rolling window of samples.
// It is not safe for concurrent use; the game drives it under its lock.
type PerfCollector struct {
	ring  []stepSample
	next  int
	count int

	cur        stepSample
	stepStart  time.Time
	phaseStart time.Time
	phase      string
}

// NewPerfCollector creates a collector that keeps the last window steps.
func NewPerfCollector(window int) *PerfCollector {
	if window < 1 {
		window = 60
	}
	return &PerfCollector{ring: make([]stepSample, window)}
}

// StartStep begins timing a simulation step.
func (p *PerfCollector) StartStep() {
	p.stepStart = time.Now()
	p.cur = stepSample{phases: make(map[string]time.Duration, len(phases))}
	p.phase = ""
}

// StartPhase closes the running phase, if any, and starts timing the next.
func (p *PerfCollector) StartPhase(phase string) {
	now := time.Now()
	p.closePhase(now)
	p.phaseStart = now
	p.phase = phase
}

// EndStep closes the running phase and stores the step in the ring.
func (p *PerfCollector) EndStep() {
	now := time.Now()
	p.closePhase(now)
	p.cur.total = now.Sub(p.stepStart)

	p.ring[p.next] = p.cur
	p.next = (p.next + 1) % len(p.ring)
	if p.count < len(p.ring) {
		p.count++
	}
}

func (p *PerfCollector) closePhase(now time.Time) {
	if p.phase != "" {
		p.cur.phases[p.phase] += now.Sub(p.phaseStart)
	}
}

// PerfStats summarizes step timing over the collector's window.
type PerfStats struct {
	Steps int

	AvgStep time.Duration
	P50Step time.Duration
	P90Step time.Duration
	MaxStep time.Duration

	// Average wall time per phase and its share of the average step
	PhaseAvg map[string]time.Duration
	PhasePct map[string]float64

	StepsPerSecond float64
}

// Stats aggregates the samples currently in the window.
func (p *PerfCollector) Stats() PerfStats {
	stats := PerfStats{
		Steps:    p.count,
		PhaseAvg: make(map[string]time.Duration),
		PhasePct: make(map[string]float64),
	}
	if p.count == 0 {
		return stats
	}

	totals := make([]float64, p.count)
	phaseSum := make(map[string]time.Duration)
	var sum time.Duration
	for i, s := range p.ring[:p.count] {
		sum += s.total
		totals[i] = float64(s.total)
		stats.MaxStep = max(stats.MaxStep, s.total)
		for phase, d := range s.phases {
			phaseSum[phase] += d
		}
	}

	stats.AvgStep = sum / time.Duration(p.count)
	_, _, p50, p90 := ComputeRateStats(totals)
	stats.P50Step = time.Duration(p50)
	stats.P90Step = time.Duration(p90)

	for phase, d := range phaseSum {
		avg := d / time.Duration(p.count)
		stats.PhaseAvg[phase] = avg
		if stats.AvgStep > 0 {
			stats.PhasePct[phase] = float64(avg) / float64(stats.AvgStep) * 100
		}
	}
	if stats.AvgStep > 0 {
		stats.StepsPerSecond = float64(time.Second) / float64(stats.AvgStep)
	}
	return stats
}

// LogStats logs the window's timing at info level.
func (s PerfStats) LogStats() {
	slog.Info("perf", "perf", s)
}

// LogValue implements slog.LogValuer for structured logging.
func (s PerfStats) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int("steps", s.Steps),
		slog.Int64("avg_step_us", s.AvgStep.Microseconds()),
		slog.Int64("p90_step_us", s.P90Step.Microseconds()),
		slog.Int64("max_step_us", s.MaxStep.Microseconds()),
		slog.Float64("steps_per_sec", s.StepsPerSecond),
	}
	for _, phase := range phases {
		if pct, ok := s.PhasePct[phase]; ok && pct > 0.1 {
			attrs = append(attrs, slog.Float64(phase+"_pct", float64(int(pct*10))/10))
		}
	}
	return slog.GroupValue(attrs...)
}

// PerfStatsCSV is the perf.csv row.
type PerfStatsCSV struct {
	WindowEnd    int64   `csv:"window_end"`
	AvgStepUS    int64   `csv:"avg_step_us"`
	P50StepUS    int64   `csv:"p50_step_us"`
	P90StepUS    int64   `csv:"p90_step_us"`
	MaxStepUS    int64   `csv:"max_step_us"`
	StepsPerSec  float64 `csv:"steps_per_sec"`
	WeatherPct   float64 `csv:"weather_pct"`
	GrowthPct    float64 `csv:"growth_pct"`
	PoolsPct     float64 `csv:"pools_pct"`
	RootsPct     float64 `csv:"roots_pct"`
	TelemetryPct float64 `csv:"telemetry_pct"`
}

// ToCSV flattens the stats for the window ending at windowEnd.
func (s PerfStats) ToCSV(windowEnd int64) PerfStatsCSV {
	return PerfStatsCSV{
		WindowEnd:    windowEnd,
		AvgStepUS:    s.AvgStep.Microseconds(),
		P50StepUS:    s.P50Step.Microseconds(),
		P90StepUS:    s.P90Step.Microseconds(),
		MaxStepUS:    s.MaxStep.Microseconds(),
		StepsPerSec:  s.StepsPerSecond,
		WeatherPct:   s.PhasePct[PhaseWeather],
		GrowthPct:    s.PhasePct[PhaseGrowth],
		PoolsPct:     s.PhasePct[PhasePools],
		RootsPct:     s.PhasePct[PhaseRoots],
		TelemetryPct: s.PhasePct[PhaseTelemetry],
	}
}
