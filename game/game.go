// Package game runs the plant simulation: it owns the plant, the soil and the
// root system and advances them in fixed-resolution steps.
package game

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pthm-cable/sprout/components"
	"github.com/pthm-cable/sprout/config"
	"github.com/pthm-cable/sprout/growth"
	"github.com/pthm-cable/sprout/systems"
	"github.com/pthm-cable/sprout/telemetry"
)

// Options configures game behavior beyond the simulation config.
type Options struct {
	Seed           int64   // RNG seed (0 = config seed, then time-based)
	LogStats       bool    // Log window stats via slog
	StatsWindowSec float64 // Simulated seconds per stats window (0 = config)
	SnapshotDir    string  // Save a snapshot at every stats window when set
	OutputDir      string  // Directory for CSV logs and config (empty = disabled)

	// StatsCallback is called with each flushed stats window.
	StatsCallback func(telemetry.WindowStats)
}

// Game holds the complete simulation state. All exported methods are safe for
// concurrent use; ticks are serialized.
type Game struct {
	mu sync.Mutex

	cfg  *config.Config
	seed int64

	plant *systems.Plant
	env   *systems.Environment
	roots *systems.RootSystem
	model *growth.Model

	// accumulator holds simulated seconds not yet consumed by a step.
	accumulator float64
	steps       int64

	collector     *telemetry.Collector
	perfCollector *telemetry.PerfCollector
	outputManager *telemetry.OutputManager
	bookmarks     *telemetry.BookmarkDetector
	logStats      bool
	snapshotDir   string
	statsCallback func(telemetry.WindowStats)
}

// New creates a game with a fresh plant and environment.
func New(cfg *config.Config, opts Options) (*Game, error) {
	seed := opts.Seed
	if seed == 0 {
		seed = cfg.Simulation.Seed
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	plant, err := systems.NewPlant(cfg)
	if err != nil {
		return nil, fmt.Errorf("create plant: %w", err)
	}
	env, err := systems.NewEnvironment(cfg, seed)
	if err != nil {
		return nil, fmt.Errorf("create environment: %w", err)
	}
	roots, err := systems.NewRootSystem(cfg, plant.Collection(components.KindRoot).Biomass(), seed)
	if err != nil {
		return nil, fmt.Errorf("create root system: %w", err)
	}

	statsWindow := cfg.Telemetry.StatsWindow
	if opts.StatsWindowSec > 0 {
		statsWindow = opts.StatsWindowSec
	}

	g := &Game{
		cfg:           cfg,
		seed:          seed,
		plant:         plant,
		env:           env,
		roots:         roots,
		model:         growth.NewModel(cfg),
		collector:     telemetry.NewCollector(statsWindow, cfg.Simulation.ResolutionSeconds),
		perfCollector: telemetry.NewPerfCollector(cfg.Telemetry.PerfCollectorWindow),
		bookmarks:     telemetry.NewBookmarkDetector(10),
		logStats:      opts.LogStats,
		snapshotDir:   opts.SnapshotDir,
		statsCallback: opts.StatsCallback,
	}

	if opts.OutputDir != "" {
		om, err := telemetry.NewOutputManager(opts.OutputDir)
		if err != nil {
			return nil, err
		}
		if err := om.WriteConfig(cfg); err != nil {
			om.Close()
			return nil, fmt.Errorf("write config: %w", err)
		}
		g.outputManager = om
	}

	slog.Debug("game created", "seed", seed, "biomass", plant.TotalBiomass())
	return g, nil
}

// Unload releases output files.
func (g *Game) Unload() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.outputManager.Close(); err != nil {
		slog.Error("failed to close output", "error", err)
	}
	g.outputManager = nil
}

// Seed returns the seed the game was created with.
func (g *Game) Seed() int64 { return g.seed }

// Steps returns the number of resolution steps run so far.
func (g *Game) Steps() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.steps
}

// Accumulator returns the simulated seconds waiting for the next step.
func (g *Game) Accumulator() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.accumulator
}

// Summary returns the current state summary.
func (g *Game) Summary() Summary {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.summary()
}

// Summary is the state reported back to a front end after a tick.
type Summary struct {
	Masses      [components.NumOrganKinds]float64 `json:"masses"`
	Starch      float64                           `json:"starch"`
	Water       float64                           `json:"water"`
	Nitrate     float64                           `json:"nitrate"`
	GridWater   float64                           `json:"grid_water"`
	GridNitrate float64                           `json:"grid_nitrate"`
	RootCells   int                               `json:"root_cells"`
	RootTrees   int                               `json:"root_trees"`
	Clock       float64                           `json:"clock"`
	Steps       int64                             `json:"steps"`
}

// TotalBiomass returns the summed organ masses.
func (s Summary) TotalBiomass() float64 {
	var total float64
	for _, m := range s.Masses {
		total += m
	}
	return total
}

// State is the full pool, soil and root occupancy state a front end draws
// from. Grids and the root mask are laid out as [x][y] with y growing
// downward.
type State struct {
	Pools    [components.NumResourceKinds]systems.PoolState `json:"pools"`
	Water    [][]float64                                    `json:"water"`
	Nitrate  [][]float64                                    `json:"nitrate"`
	RootMask [][]float64                                    `json:"root_mask"`
}

// State returns a copy of the current pool, soil and root occupancy state.
func (g *Game) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state()
}

func (g *Game) state() State {
	var s State
	for kind := range s.Pools {
		s.Pools[kind] = g.plant.Pools.Get(components.ResourceKind(kind)).State()
	}
	s.Water = g.env.Water.Cells()
	s.Nitrate = g.env.Nitrate.Cells()
	s.RootMask = g.roots.MaskCells()
	return s
}

func (g *Game) summary() Summary {
	return Summary{
		Masses:      g.plant.Masses(),
		Starch:      g.plant.Pools.Starch.Available(),
		Water:       g.plant.Pools.Water.Available(),
		Nitrate:     g.plant.Pools.Nitrate.Available(),
		GridWater:   g.env.Water.Total(),
		GridNitrate: g.env.Nitrate.Total(),
		RootCells:   g.roots.CellCount(),
		RootTrees:   len(g.roots.Trees()),
		Clock:       g.env.Clock,
		Steps:       g.steps,
	}
}
