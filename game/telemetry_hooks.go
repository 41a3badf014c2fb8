package game

import (
	"log/slog"

	"github.com/pthm-cable/sprout/telemetry"
)

// flushTelemetry checks if the stats window should be flushed and writes
// the window to the configured sinks.
func (g *Game) flushTelemetry() {
	if !g.collector.ShouldFlush(g.steps) {
		return
	}

	stats := g.collector.Flush(g.steps, g.sampleLevels())
	perfStats := g.perfCollector.Stats()

	if g.statsCallback != nil {
		g.statsCallback(stats)
	}

	if g.logStats {
		stats.LogStats()
		perfStats.LogStats()
	}

	if g.outputManager != nil {
		if err := g.outputManager.WriteTelemetry(stats); err != nil {
			slog.Error("failed to write telemetry", "error", err)
		}
		if err := g.outputManager.WritePerf(perfStats, stats.WindowEndStep); err != nil {
			slog.Error("failed to write perf", "error", err)
		}
	}

	for _, bm := range g.bookmarks.Check(stats) {
		if g.logStats {
			bm.LogBookmark()
		}
		if err := g.outputManager.WriteBookmark(bm); err != nil {
			slog.Error("failed to write bookmark", "error", err)
		}
	}

	if g.snapshotDir != "" {
		g.saveSnapshot()
	}
}

// sampleLevels collects the state totals reported at window end.
func (g *Game) sampleLevels() telemetry.Levels {
	return telemetry.Levels{
		Masses:      g.plant.Masses(),
		Starch:      g.plant.Pools.Starch.Available(),
		Water:       g.plant.Pools.Water.Available(),
		Nitrate:     g.plant.Pools.Nitrate.Available(),
		GridWater:   g.env.Water.Total(),
		GridNitrate: g.env.Nitrate.Total(),
		RootCells:   g.roots.CellCount(),
		RootTrees:   len(g.roots.Trees()),
		Hour:        g.env.Hour(),
	}
}

// saveSnapshot captures the current state and saves it to disk.
func (g *Game) saveSnapshot() {
	doc, err := g.captureDocument()
	if err != nil {
		slog.Error("failed to capture snapshot", "error", err)
		return
	}

	path, err := telemetry.SaveSnapshot(doc, g.snapshotDir)
	if err != nil {
		slog.Error("failed to save snapshot", "error", err)
		return
	}

	slog.Info("snapshot saved", "path", path, "step", g.steps)
}
