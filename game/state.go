package game

import (
	"fmt"

	"github.com/pthm-cable/sprout/components"
	"github.com/pthm-cable/sprout/config"
	"github.com/pthm-cable/sprout/systems"
	"github.com/pthm-cable/sprout/telemetry"
)

// Document captures the complete game state.
func (g *Game) Document() (*telemetry.Document, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.captureDocument()
}

func (g *Game) captureDocument() (*telemetry.Document, error) {
	doc := &telemetry.Document{
		Version:     telemetry.SnapshotVersion,
		Tick:        g.steps,
		Accumulator: g.accumulator,
		Starch:      g.plant.Pools.Starch.State(),
		Water:       g.plant.Pools.Water.State(),
		Nitrate:     g.plant.Pools.Nitrate.State(),
		Transpiration: telemetry.TranspirationState{
			LastCO2Flux: g.model.Transpiration.LastCO2Flux,
		},
	}
	for _, kind := range components.OrganKinds {
		doc.SetOrgans(kind, g.plant.Collection(kind).Organs())
	}

	root, err := g.roots.State()
	if err != nil {
		return nil, fmt.Errorf("capture roots: %w", err)
	}
	doc.Root = root

	waterRNG, err := g.env.Water.RNGState()
	if err != nil {
		return nil, fmt.Errorf("capture water rng: %w", err)
	}
	nitrateRNG, err := g.env.Nitrate.RNGState()
	if err != nil {
		return nil, fmt.Errorf("capture nitrate rng: %w", err)
	}
	doc.Environment = telemetry.EnvironmentState{
		Water:       g.env.Water.Cells(),
		Nitrate:     g.env.Nitrate.Cells(),
		WaterRNG:    waterRNG,
		NitrateRNG:  nitrateRNG,
		WeatherSeed: g.seed,
		Clock:       g.env.Clock,
	}
	if w, ok := g.env.Weather.(*systems.Weather); ok {
		doc.Environment.WeatherSeed = w.Seed
	}
	return doc, nil
}

// Restore creates a game from a document saved under the same config. The
// weather seed doubles as the game seed; grid and root generators continue
// from their saved states.
func Restore(cfg *config.Config, doc *telemetry.Document, opts Options) (*Game, error) {
	if doc.Version != telemetry.SnapshotVersion {
		return nil, fmt.Errorf("snapshot version %d, want %d", doc.Version, telemetry.SnapshotVersion)
	}
	opts.Seed = doc.Environment.WeatherSeed
	g, err := New(cfg, opts)
	if err != nil {
		return nil, err
	}
	if err := g.apply(doc); err != nil {
		g.Unload()
		return nil, fmt.Errorf("restore snapshot at step %d: %w", doc.Tick, err)
	}
	return g, nil
}

func (g *Game) apply(doc *telemetry.Document) error {
	for _, kind := range components.OrganKinds {
		if err := g.plant.RestoreOrgans(kind, doc.Organs(kind)); err != nil {
			return err
		}
	}
	pools := []struct {
		pool  *systems.ResourcePool
		state systems.PoolState
	}{
		{g.plant.Pools.Starch, doc.Starch},
		{g.plant.Pools.Water, doc.Water},
		{g.plant.Pools.Nitrate, doc.Nitrate},
	}
	for _, p := range pools {
		if err := p.pool.Restore(p.state); err != nil {
			return err
		}
	}

	env := doc.Environment
	if err := g.env.Water.SetCells(env.Water); err != nil {
		return err
	}
	if err := g.env.Water.SetRNGState(env.WaterRNG); err != nil {
		return fmt.Errorf("water rng: %w", err)
	}
	if err := g.env.Nitrate.SetCells(env.Nitrate); err != nil {
		return err
	}
	if err := g.env.Nitrate.SetRNGState(env.NitrateRNG); err != nil {
		return fmt.Errorf("nitrate rng: %w", err)
	}
	g.env.Clock = env.Clock

	if err := g.roots.Restore(doc.Root); err != nil {
		return err
	}

	g.model.Transpiration.LastCO2Flux = doc.Transpiration.LastCO2Flux
	g.accumulator = doc.Accumulator
	g.steps = doc.Tick
	g.collector.Resume(doc.Tick)
	return nil
}
