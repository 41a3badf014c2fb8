package telemetry

import (
	"math"
	"testing"

	"github.com/pthm-cable/sprout/components"
	"github.com/pthm-cable/sprout/growth"
	"github.com/pthm-cable/sprout/systems"
)

func stepResult(leaf, root, shortfall float64) growth.StepResult {
	var res growth.StepResult
	res.Deltas[components.KindLeaf] = leaf
	res.Deltas[components.KindRoot] = root
	res.Overflow[components.KindRoot] = 0.5 * root
	res.StarchOut = 10
	res.WaterShortfall = shortfall
	res.Transpired = 2
	return res
}

func TestCollectorWindow(t *testing.T) {
	c := NewCollector(300, 60)
	if c.WindowDurationSteps() != 5 {
		t.Fatalf("steps per window = %d, want 5", c.WindowDurationSteps())
	}

	cond := systems.Conditions{Temperature: 21, Humidity: 55, RainAdded: 1}
	for i := 0; i < 5; i++ {
		c.RecordStep(stepResult(0.001, 0.002, 0), cond)
	}
	if c.ShouldFlush(4) {
		t.Fatal("flush requested before the window was full")
	}
	if !c.ShouldFlush(5) {
		t.Fatal("expected flush at step 5")
	}

	var levels Levels
	levels.Masses[components.KindLeaf] = 0.015
	levels.RootTrees = 3
	levels.Hour = 12.5
	stats := c.Flush(5, levels)

	if math.Abs(stats.LeafGrowth-0.005) > 1e-12 || math.Abs(stats.RootGrowth-0.01) > 1e-12 {
		t.Errorf("growth leaf=%v root=%v, want 0.005 and 0.01", stats.LeafGrowth, stats.RootGrowth)
	}
	if math.Abs(stats.Overflow-0.005) > 1e-12 {
		t.Errorf("overflow = %v, want 0.005", stats.Overflow)
	}
	// 0.003 g per 60 s step is 0.18 g/h
	if math.Abs(stats.GrowthRateMean-0.18) > 1e-9 {
		t.Errorf("growth rate = %v, want 0.18 g/h", stats.GrowthRateMean)
	}
	if stats.StarchOut != 50 || stats.Transpired != 10 || stats.RainAdded != 5 {
		t.Errorf("flows starch=%v transpired=%v rain=%v", stats.StarchOut, stats.Transpired, stats.RainAdded)
	}
	if stats.LeafMass != 0.015 || stats.RootTrees != 3 || stats.Hour != 12.5 {
		t.Error("levels not copied into window stats")
	}
	if stats.Temperature != 21 || stats.SimTimeSec != 300 {
		t.Errorf("temperature=%v sim_time=%v", stats.Temperature, stats.SimTimeSec)
	}

	// The next window starts empty
	c.RecordStep(stepResult(0, 0, 7), cond)
	next := c.Flush(10, Levels{})
	if next.WindowStartStep != 5 || next.TotalGrowth() != 0 || next.WaterShortfall != 7 {
		t.Errorf("second window = %+v", next)
	}
}

func TestCollectorResume(t *testing.T) {
	c := NewCollector(600, 60)
	c.RecordStep(stepResult(1, 1, 0), systems.Conditions{})
	c.Resume(400)

	if c.ShouldFlush(405) {
		t.Error("resumed window flushed before it was full")
	}
	if !c.ShouldFlush(410) {
		t.Error("resumed window should flush 10 steps after resume")
	}
	if stats := c.Flush(410, Levels{}); stats.TotalGrowth() != 0 {
		t.Errorf("growth before resume leaked into window: %v", stats.TotalGrowth())
	}
}
