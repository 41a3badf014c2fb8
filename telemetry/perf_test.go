package telemetry

import (
	"testing"
	"time"
)

func timeSteps(pc *PerfCollector, n int, phases ...string) {
	for i := 0; i < n; i++ {
		pc.StartStep()
		for _, phase := range phases {
			pc.StartPhase(phase)
			time.Sleep(50 * time.Microsecond)
		}
		pc.EndStep()
	}
}

func TestPerfCollector_BasicTiming(t *testing.T) {
	pc := NewPerfCollector(10)
	timeSteps(pc, 5, PhaseWeather, PhaseGrowth)

	stats := pc.Stats()
	if stats.Steps != 5 {
		t.Errorf("expected 5 steps, got %d", stats.Steps)
	}
	if stats.AvgStep <= 0 {
		t.Error("expected positive average step duration")
	}
	if _, ok := stats.PhaseAvg[PhaseWeather]; !ok {
		t.Error("expected weather phase to be tracked")
	}
	if _, ok := stats.PhaseAvg[PhaseGrowth]; !ok {
		t.Error("expected growth phase to be tracked")
	}
}

func TestPerfCollector_RollingWindow(t *testing.T) {
	pc := NewPerfCollector(5)
	timeSteps(pc, 12, PhaseWeather)

	stats := pc.Stats()
	if stats.Steps != 5 {
		t.Errorf("expected window to hold 5 steps, got %d", stats.Steps)
	}
	if stats.StepsPerSecond <= 0 {
		t.Error("expected positive steps per second")
	}
}

func TestPerfCollector_Percentiles(t *testing.T) {
	pc := NewPerfCollector(20)
	timeSteps(pc, 20, PhaseGrowth)

	stats := pc.Stats()
	if stats.P50Step > stats.P90Step {
		t.Errorf("p50 %v above p90 %v", stats.P50Step, stats.P90Step)
	}
	if stats.P90Step > stats.MaxStep {
		t.Errorf("p90 %v above max %v", stats.P90Step, stats.MaxStep)
	}
}

func TestPerfCollector_PhasePercentages(t *testing.T) {
	pc := NewPerfCollector(10)

	for i := 0; i < 5; i++ {
		pc.StartStep()
		pc.StartPhase("fast")
		time.Sleep(10 * time.Microsecond)
		pc.StartPhase("slow")
		time.Sleep(500 * time.Microsecond)
		pc.EndStep()
	}

	stats := pc.Stats()
	fastPct := stats.PhasePct["fast"]
	slowPct := stats.PhasePct["slow"]
	if slowPct <= fastPct {
		t.Errorf("expected slow phase (%v%%) > fast phase (%v%%)", slowPct, fastPct)
	}
}

func TestPerfCollector_EmptyStats(t *testing.T) {
	stats := NewPerfCollector(10).Stats()

	if stats.AvgStep != 0 || stats.Steps != 0 {
		t.Error("expected zero stats for empty collector")
	}
	if stats.PhaseAvg == nil || stats.PhasePct == nil {
		t.Error("expected non-nil phase maps")
	}
}

func TestPerfStats_ToCSV(t *testing.T) {
	pc := NewPerfCollector(4)
	timeSteps(pc, 4, PhaseGrowth, PhaseRoots)

	row := pc.Stats().ToCSV(240)

	if row.WindowEnd != 240 {
		t.Errorf("expected window end 240, got %d", row.WindowEnd)
	}
	if row.GrowthPct <= 0 {
		t.Error("expected growth phase share in CSV row")
	}
	if row.WeatherPct != 0 {
		t.Errorf("expected no weather share, got %v", row.WeatherPct)
	}
}
