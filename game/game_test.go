package game

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm-cable/sprout/components"
	"github.com/pthm-cable/sprout/config"
	"github.com/pthm-cable/sprout/growth"
	"github.com/pthm-cable/sprout/systems"
	"github.com/pthm-cable/sprout/telemetry"
)

func init() {
	config.MustInit("")
}

var equalShares = growth.Allocation{Leaf: 25, Stem: 25, Root: 25, Seed: 0, Starch: 25}

func newTestGame(t *testing.T, opts Options) *Game {
	t.Helper()
	if opts.Seed == 0 {
		opts.Seed = 42
	}
	g, err := New(config.Cfg().Clone(), opts)
	require.NoError(t, err)
	t.Cleanup(g.Unload)
	return g
}

func tick(t *testing.T, g *Game, seconds float64) TickResult {
	t.Helper()
	res, err := g.Tick(context.Background(), TickRequest{
		ElapsedSeconds: seconds,
		Allocation:     equalShares,
		StomataOpen:    true,
	})
	require.NoError(t, err)
	return res
}

func TestNoonHourEqualShares(t *testing.T) {
	g := newTestGame(t, Options{})
	before := g.Summary()

	res := tick(t, g, 3600)

	assert.Equal(t, 60, res.Steps)
	leaf := res.Deltas[components.KindLeaf]
	require.Greater(t, leaf, 0.0)
	assert.InEpsilon(t, leaf, res.Deltas[components.KindStem], 1e-6)
	assert.InEpsilon(t, leaf, res.Deltas[components.KindRoot], 1e-6)
	assert.Equal(t, 0.0, res.Deltas[components.KindSeed])

	assert.Equal(t, int64(60), res.Snapshot.Steps)
	assert.Equal(t, before.Clock+3600, res.Snapshot.Clock)
	assert.InEpsilon(t, 3*leaf, res.Snapshot.TotalBiomass()-before.TotalBiomass(), 1e-6)
	assert.Equal(t, 0.0, g.Accumulator())
}

func TestFastForwardMatchesSmallTicks(t *testing.T) {
	big := newTestGame(t, Options{})
	small := newTestGame(t, Options{})

	tick(t, big, 3600)
	for i := 0; i < 60; i++ {
		tick(t, small, 60)
	}

	assert.Equal(t, big.Summary(), small.Summary())

	a, err := big.Document()
	require.NoError(t, err)
	b, err := small.Document()
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestRemainderCarriesOver(t *testing.T) {
	g := newTestGame(t, Options{})

	res := tick(t, g, 90)
	assert.Equal(t, 1, res.Steps)
	assert.Equal(t, 30.0, g.Accumulator())

	res = tick(t, g, 30)
	assert.Equal(t, 1, res.Steps)
	assert.Equal(t, 0.0, g.Accumulator())

	res = tick(t, g, 0)
	assert.Equal(t, 0, res.Steps)
	assert.Equal(t, int64(2), g.Steps())
}

func TestInvalidRequestsApplyNothing(t *testing.T) {
	g := newTestGame(t, Options{})
	before, err := g.Document()
	require.NoError(t, err)

	fertilize := Action{Kind: ActionFertilize, Cells: []systems.Cell{{X: 1, Y: 1}}, Amount: 100}
	cases := map[string]TickRequest{
		"negative elapsed": {ElapsedSeconds: -1, Allocation: equalShares},
		"bad allocation":   {ElapsedSeconds: 60, Allocation: growth.Allocation{Leaf: 120}},
		"cell outside grid": {ElapsedSeconds: 60, Allocation: equalShares, Actions: []Action{
			fertilize,
			{Kind: ActionWater, Cells: []systems.Cell{{X: 99, Y: 0}}, Amount: 1},
		}},
		"negative amount": {ElapsedSeconds: 60, Allocation: equalShares, Actions: []Action{
			{Kind: ActionFertilize, Cells: []systems.Cell{{X: 0, Y: 0}}, Amount: -5},
		}},
		"zero root direction": {ElapsedSeconds: 60, Allocation: equalShares, Actions: []Action{
			fertilize, {Kind: ActionBuyRoot},
		}},
		"organ too heavy": {ElapsedSeconds: 60, Allocation: equalShares, Actions: []Action{
			{Kind: ActionBuyOrgan, Organ: components.KindLeaf, Amount: 50},
		}},
		"unknown organ": {ElapsedSeconds: 60, Allocation: equalShares, Actions: []Action{
			{Kind: ActionBuyOrgan, Organ: components.OrganKind(9)},
		}},
		"starch percent": {ElapsedSeconds: 60, Allocation: equalShares, Actions: []Action{
			{Kind: ActionConsumeStarch, Amount: 150},
		}},
		"unknown action": {ElapsedSeconds: 60, Allocation: equalShares, Actions: []Action{
			{Kind: "prune"},
		}},
	}

	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			res, err := g.Tick(context.Background(), req)
			assert.ErrorIs(t, err, ErrInvalidRequest)
			assert.Equal(t, 0, res.Steps)

			after, err := g.Document()
			require.NoError(t, err)
			assert.Equal(t, before, after)
		})
	}
}

func TestActions(t *testing.T) {
	g := newTestGame(t, Options{})
	before := g.Summary()
	cfg := config.Cfg()

	_, err := g.Tick(context.Background(), TickRequest{
		Allocation: equalShares,
		Actions: []Action{
			{Kind: ActionFertilize, Cells: []systems.Cell{{X: 0, Y: 5}, {X: 1, Y: 5}}, Amount: 10},
			{Kind: ActionBuyRoot, Direction: systems.Vec2{X: 1, Y: 1}},
			{Kind: ActionBuyOrgan, Organ: components.KindLeaf},
			{Kind: ActionBuyOrgan, Organ: components.KindSeed, Amount: 0.05},
			{Kind: ActionConsumeStarch, Amount: 40},
		},
	})
	require.NoError(t, err)

	after := g.Summary()
	assert.InDelta(t, before.GridNitrate+20, after.GridNitrate, 1e-6)
	assert.Equal(t, before.RootTrees+1, after.RootTrees)
	assert.InDelta(t, before.Masses[components.KindLeaf]+cfg.Plant.Leaf.InitialMass, after.Masses[components.KindLeaf], 1e-15)
	assert.InDelta(t, before.Masses[components.KindSeed]+0.05, after.Masses[components.KindSeed], 1e-15)
	assert.Equal(t, int64(0), after.Steps, "actions alone do not step")

	doc, err := g.Document()
	require.NoError(t, err)
	assert.Len(t, doc.Leafs, 2)
	assert.Equal(t, 40.0, doc.Starch.AllowedPercent)
	assert.Greater(t, doc.Starch.Max, 0.0)
}

func TestDocumentRestoreRoundTrip(t *testing.T) {
	g := newTestGame(t, Options{})
	tick(t, g, 2*3600+45)

	doc, err := g.Document()
	require.NoError(t, err)

	// Through the encoded form, as a save slot would be
	data, err := telemetry.MarshalDocument(doc)
	require.NoError(t, err)
	decoded, err := telemetry.UnmarshalDocument(data)
	require.NoError(t, err)

	r, err := Restore(config.Cfg().Clone(), decoded, Options{})
	require.NoError(t, err)
	t.Cleanup(r.Unload)

	restored, err := r.Document()
	require.NoError(t, err)
	assert.Equal(t, doc, restored)
	assert.Equal(t, 45.0, r.Accumulator())

	tick(t, g, 3600)
	tick(t, r, 3600)
	a, err := g.Document()
	require.NoError(t, err)
	b, err := r.Document()
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestRestoreRejectsVersion(t *testing.T) {
	g := newTestGame(t, Options{})
	doc, err := g.Document()
	require.NoError(t, err)

	doc.Version = telemetry.SnapshotVersion + 1
	_, err = Restore(config.Cfg().Clone(), doc, Options{})
	assert.Error(t, err)
}

func TestTickHonorsCancellation(t *testing.T) {
	g := newTestGame(t, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := g.Tick(ctx, TickRequest{ElapsedSeconds: 600, Allocation: equalShares, StomataOpen: true})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, res.Steps)
	assert.Equal(t, 600.0, g.Accumulator(), "unconsumed time stays queued")

	res = tick(t, g, 0)
	assert.Equal(t, 10, res.Steps)
}

func TestStatsCallbackAndOutput(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out")
	snaps := filepath.Join(dir, "snaps")

	var windows []telemetry.WindowStats
	g := newTestGame(t, Options{
		StatsWindowSec: 1800,
		OutputDir:      out,
		SnapshotDir:    snaps,
		StatsCallback:  func(s telemetry.WindowStats) { windows = append(windows, s) },
	})

	tick(t, g, 3600)
	require.Len(t, windows, 2)
	assert.Equal(t, int64(30), windows[0].WindowEndStep)
	assert.Greater(t, windows[1].TotalGrowth(), 0.0)

	for _, name := range []string{"config.yaml", "telemetry.csv", "perf.csv", "bookmarks.csv"} {
		_, err := os.Stat(filepath.Join(out, name))
		assert.NoError(t, err, name)
	}

	doc, err := telemetry.LoadSnapshot(filepath.Join(snaps, "snapshot_60.json.zst"))
	require.NoError(t, err)
	assert.Equal(t, int64(60), doc.Tick)
}

func TestSeedFallsBackToConfig(t *testing.T) {
	g, err := New(config.Cfg().Clone(), Options{})
	require.NoError(t, err)
	defer g.Unload()
	assert.Equal(t, config.Cfg().Simulation.Seed, g.Seed())
}

func TestTickReturnsFullState(t *testing.T) {
	g := newTestGame(t, Options{})
	res, err := g.Tick(context.Background(), TickRequest{
		ElapsedSeconds: 1800,
		Allocation:     equalShares,
		StomataOpen:    true,
		Actions:        []Action{{Kind: ActionBuyRoot, Direction: systems.Vec2{X: -1, Y: 1}}},
	})
	require.NoError(t, err)

	doc, err := g.Document()
	require.NoError(t, err)

	st := res.State
	assert.Equal(t, doc.Environment.Water, st.Water)
	assert.Equal(t, doc.Environment.Nitrate, st.Nitrate)
	assert.Equal(t, doc.Root.Mask, st.RootMask)
	assert.Equal(t, doc.Starch, st.Pools[components.ResourceStarch])
	assert.Equal(t, doc.Water, st.Pools[components.ResourceWater])
	assert.Equal(t, doc.Nitrate, st.Pools[components.ResourceNitrate])
	assert.Greater(t, st.Pools[components.ResourceStarch].Max, 0.0)

	var reached int
	for _, col := range st.RootMask {
		for _, v := range col {
			if v > 0 {
				reached++
			}
		}
	}
	assert.Equal(t, res.Snapshot.RootCells, reached)
	assert.Equal(t, g.State(), st)
}

type failingSolver struct{}

func (failingSolver) Solve(*growth.Problem) (*growth.Solution, error) {
	return nil, &growth.SolveError{Err: growth.ErrInfeasible}
}

func TestFailedStepRetryReplaysStep(t *testing.T) {
	g := newTestGame(t, Options{})
	ref := newTestGame(t, Options{})

	before, err := g.Document()
	require.NoError(t, err)

	solver := g.model.Solver
	g.model.Solver = failingSolver{}
	res, err := g.Tick(context.Background(), TickRequest{ElapsedSeconds: 60, Allocation: equalShares, StomataOpen: true})
	require.ErrorIs(t, err, growth.ErrInfeasible)
	assert.Equal(t, 0, res.Steps)

	after, err := g.Document()
	require.NoError(t, err)
	before.Accumulator = 60
	assert.Equal(t, before, after, "failed step leaves soil and plant untouched")

	g.model.Solver = solver
	res = tick(t, g, 0)
	assert.Equal(t, 1, res.Steps)
	tick(t, ref, 60)

	a, err := g.Document()
	require.NoError(t, err)
	b, err := ref.Document()
	require.NoError(t, err)
	assert.Equal(t, b, a)
}
