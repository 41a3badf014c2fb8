package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/pthm-cable/sprout/config"
	"github.com/pthm-cable/sprout/game"
	"github.com/pthm-cable/sprout/growth"
	"github.com/pthm-cable/sprout/store"
	"github.com/pthm-cable/sprout/telemetry"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	logStats := flag.Bool("log-stats", false, "Output stats via slog")
	statsWindow := flag.Float64("stats-window", 0, "Stats window size in simulated seconds (0 = use config)")
	snapshotDir := flag.String("snapshot-dir", "", "Directory for snapshot files written every stats window")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs and config snapshot")
	seed := flag.Int64("seed", 0, "RNG seed (0 = config seed)")
	hours := flag.Float64("hours", 24, "Simulated hours to run")
	tickHours := flag.Float64("tick-hours", 1, "Simulated hours per tick call")
	alloc := flag.String("allocation", "25,25,25,0,25", "Allocation percentages leaf,stem,root,seed,starch")
	stomata := flag.Bool("stomata-open", true, "Keep stomata open")
	resume := flag.String("resume", "", "Snapshot file (.json.zst) to resume from")
	dbPath := flag.String("db", "", "SQLite save database (empty = config persistence.database)")
	saveName := flag.String("save", "", "Save the final state under this slot name")
	loadSlot := flag.String("load", "", "Resume from this save slot id")
	listSlots := flag.Bool("list", false, "List save slots and exit")

	flag.Parse()

	// Set up slog (JSON to stdout for structured logging)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()

	if *dbPath == "" {
		*dbPath = cfg.Persistence.Database
	}

	if *listSlots {
		if err := printSlots(*dbPath); err != nil {
			slog.Error("failed to list slots", "error", err)
			os.Exit(1)
		}
		return
	}

	allocation, err := parseAllocation(*alloc)
	if err != nil {
		slog.Error("bad allocation", "error", err)
		os.Exit(1)
	}

	opts := game.Options{
		Seed:           *seed,
		LogStats:       *logStats,
		StatsWindowSec: *statsWindow,
		SnapshotDir:    *snapshotDir,
		OutputDir:      *outputDir,
	}

	g, err := openGame(cfg, opts, *resume, *dbPath, *loadSlot)
	if err != nil {
		slog.Error("failed to create game", "error", err)
		os.Exit(1)
	}
	defer g.Unload()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	slog.Info("starting simulation",
		"seed", g.Seed(),
		"hours", *hours,
		"allocation", allocation,
		"resolution", cfg.Simulation.ResolutionSeconds,
	)

	start := time.Now()
	remaining := *hours * 3600
	chunk := max(*tickHours*3600, cfg.Simulation.ResolutionSeconds)
	for remaining > 0 {
		elapsed := min(chunk, remaining)
		res, err := g.Tick(ctx, game.TickRequest{
			ElapsedSeconds: elapsed,
			Allocation:     allocation,
			StomataOpen:    *stomata,
		})
		if err != nil {
			slog.Error("tick failed", "error", err, "steps", res.Steps)
			os.Exit(1)
		}
		remaining -= elapsed
	}

	g.LogState()
	s := g.Summary()
	slog.Info("simulation finished",
		"steps", humanize.Comma(s.Steps),
		"biomass_g", s.TotalBiomass(),
		"wall", time.Since(start).Round(time.Millisecond).String(),
	)

	if *saveName != "" {
		if err := saveGame(g, *dbPath, *saveName); err != nil {
			slog.Error("failed to save", "error", err)
			os.Exit(1)
		}
	}
}

// openGame creates a fresh game or resumes one from a snapshot file or save slot.
func openGame(cfg *config.Config, opts game.Options, resume, dbPath, slot string) (*game.Game, error) {
	switch {
	case resume != "":
		doc, err := telemetry.LoadSnapshot(resume)
		if err != nil {
			return nil, err
		}
		return game.Restore(cfg, doc, opts)
	case slot != "":
		db, err := store.Open(dbPath)
		if err != nil {
			return nil, err
		}
		defer db.Close()
		doc, err := db.Load(slot)
		if err != nil {
			return nil, err
		}
		return game.Restore(cfg, doc, opts)
	}
	return game.New(cfg, opts)
}

func saveGame(g *game.Game, dbPath, name string) error {
	doc, err := g.Document()
	if err != nil {
		return err
	}
	db, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()
	_, err = db.Save(name, doc)
	return err
}

func printSlots(dbPath string) error {
	db, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	slots, err := db.List()
	if err != nil {
		return err
	}
	for _, s := range slots {
		fmt.Printf("%s  %-20s step %-10s %sg  saved %s\n",
			s.ID, s.Name, humanize.Comma(s.Tick), humanize.FtoaWithDigits(s.Biomass, 4), humanize.Time(s.Created()))
	}
	return nil
}

// parseAllocation reads "leaf,stem,root,seed,starch" percentages.
func parseAllocation(s string) (growth.Allocation, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 5 {
		return growth.Allocation{}, fmt.Errorf("want 5 comma-separated percentages, got %d", len(parts))
	}
	var v [5]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return growth.Allocation{}, fmt.Errorf("percentage %d: %w", i, err)
		}
		v[i] = f
	}
	a := growth.Allocation{Leaf: v[0], Stem: v[1], Root: v[2], Seed: v[3], Starch: v[4]}
	return a, a.Validate()
}
