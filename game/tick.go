package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/pthm-cable/sprout/components"
	"github.com/pthm-cable/sprout/growth"
	"github.com/pthm-cable/sprout/systems"
	"github.com/pthm-cable/sprout/telemetry"
)

// ErrInvalidRequest is returned for tick requests that fail validation.
// Nothing is applied when a request is rejected.
var ErrInvalidRequest = errors.New("invalid tick request")

// ActionKind names an environment action a front end can request.
type ActionKind string

const (
	ActionFertilize     ActionKind = "fertilize"      // add Amount nitrate to each of Cells
	ActionWater         ActionKind = "water"          // add Amount water to each of Cells
	ActionBuyRoot       ActionKind = "buy_root"       // start a new root axis toward Direction
	ActionBuyOrgan      ActionKind = "buy_organ"      // add an organ of Organ kind with Amount grams
	ActionConsumeStarch ActionKind = "consume_starch" // set the share of drawable starch to Amount percent
)

// Action is one environment action.
type Action struct {
	Kind      ActionKind           `json:"kind"`
	Cells     []systems.Cell       `json:"cells,omitempty"`
	Amount    float64              `json:"amount,omitempty"`
	Direction systems.Vec2         `json:"direction,omitempty"`
	Organ     components.OrganKind `json:"organ,omitempty"`
}

// TickRequest is one call from a front end.
type TickRequest struct {
	ElapsedSeconds float64           `json:"elapsed_seconds"`
	Allocation     growth.Allocation `json:"allocation"`
	StomataOpen    bool              `json:"stomata_open"`
	Actions        []Action          `json:"actions,omitempty"`
}

// TickResult reports what a call did.
type TickResult struct {
	// Deltas is grams realized per organ kind, summed over the steps run.
	Deltas   [components.NumOrganKinds]float64 `json:"deltas"`
	Steps    int                               `json:"steps"`
	Snapshot Summary                           `json:"snapshot"`
	State    State                             `json:"state"`
}

// Tick applies the request's actions, adds its elapsed time to the
// accumulator and runs as many fixed-resolution steps as the accumulator
// covers. The remainder carries over to the next call.
//
// ctx is checked between steps only. When a step fails or ctx is done, the
// result covers the steps completed so far and the accumulator keeps the
// time that was not consumed.
func (g *Game) Tick(ctx context.Context, req TickRequest) (TickResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.validate(req); err != nil {
		slog.Warn("tick rejected", "error", err)
		return TickResult{}, err
	}
	if err := g.applyActions(req.Actions); err != nil {
		return TickResult{}, err
	}

	g.accumulator += req.ElapsedSeconds
	dt := g.cfg.Simulation.ResolutionSeconds

	var res TickResult
	for g.accumulator >= dt {
		if err := ctx.Err(); err != nil {
			res.Snapshot, res.State = g.summary(), g.state()
			return res, err
		}
		sr, err := g.step(req)
		if err != nil {
			res.Snapshot, res.State = g.summary(), g.state()
			return res, err
		}
		g.accumulator -= dt
		for k, d := range sr.Deltas {
			res.Deltas[k] += d
		}
		res.Steps++
	}

	res.Snapshot, res.State = g.summary(), g.state()
	return res, nil
}

// validate checks a request against the current grid and root system
// before anything is applied.
func (g *Game) validate(req TickRequest) error {
	if !(req.ElapsedSeconds >= 0) || math.IsInf(req.ElapsedSeconds, 0) {
		return fmt.Errorf("elapsed seconds %v: %w", req.ElapsedSeconds, ErrInvalidRequest)
	}
	if err := req.Allocation.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	w, d := g.env.Water.Size()
	for i, a := range req.Actions {
		switch a.Kind {
		case ActionFertilize, ActionWater:
			if a.Amount < 0 {
				return fmt.Errorf("action %d %s: negative amount %v: %w", i, a.Kind, a.Amount, ErrInvalidRequest)
			}
			for _, c := range a.Cells {
				if c.X < 0 || c.X >= w || c.Y < 0 || c.Y >= d {
					return fmt.Errorf("action %d %s: cell (%d,%d) outside %dx%d grid: %w", i, a.Kind, c.X, c.Y, w, d, ErrInvalidRequest)
				}
			}
		case ActionBuyRoot:
			if a.Direction.Len() == 0 {
				return fmt.Errorf("action %d %s: zero direction: %w", i, a.Kind, ErrInvalidRequest)
			}
		case ActionBuyOrgan:
			if int(a.Organ) >= components.NumOrganKinds {
				return fmt.Errorf("action %d %s: unknown organ %d: %w", i, a.Kind, a.Organ, ErrInvalidRequest)
			}
			if a.Amount < 0 || a.Amount > g.plant.Collection(a.Organ).MaxMass {
				return fmt.Errorf("action %d %s: mass %v outside [0,%v]: %w",
					i, a.Kind, a.Amount, g.plant.Collection(a.Organ).MaxMass, ErrInvalidRequest)
			}
		case ActionConsumeStarch:
			if !(a.Amount >= 0 && a.Amount <= 100) {
				return fmt.Errorf("action %d %s: percent %v outside [0,100]: %w", i, a.Kind, a.Amount, ErrInvalidRequest)
			}
		default:
			return fmt.Errorf("action %d: unknown kind %q: %w", i, a.Kind, ErrInvalidRequest)
		}
	}
	return nil
}

func (g *Game) applyActions(actions []Action) error {
	for _, a := range actions {
		switch a.Kind {
		case ActionFertilize:
			added, err := g.env.Nitrate.Fertilize(a.Cells, a.Amount)
			if err != nil {
				return err
			}
			slog.Debug("fertilized", "cells", len(a.Cells), "added", added)
		case ActionWater:
			added, err := g.env.Water.Fertilize(a.Cells, a.Amount)
			if err != nil {
				return err
			}
			slog.Debug("watered", "cells", len(a.Cells), "added", added)
		case ActionBuyRoot:
			tree, err := g.roots.AddTree(a.Direction)
			if err != nil {
				return err
			}
			slog.Debug("root bought", "tree", tree, "direction", a.Direction)
		case ActionBuyOrgan:
			mass := a.Amount
			if mass == 0 {
				mass = g.initialMass(a.Organ)
			}
			id, err := g.plant.Collection(a.Organ).Create(mass)
			if err != nil {
				return err
			}
			g.plant.RescalePools()
			slog.Debug("organ bought", "kind", a.Organ, "id", id, "mass", mass)
		case ActionConsumeStarch:
			g.plant.Pools.Starch.AllowedPercent = a.Amount
		}
	}
	return nil
}

func (g *Game) initialMass(kind components.OrganKind) float64 {
	p := g.cfg.Plant
	return [components.NumOrganKinds]float64{
		p.Leaf.InitialMass, p.Stem.InitialMass, p.Root.InitialMass, p.Seed.InitialMass,
	}[kind]
}

// step runs one resolution step: weather and soil, growth, pool rescale,
// root growth, telemetry.
func (g *Game) step(req TickRequest) (growth.StepResult, error) {
	dt := g.cfg.Simulation.ResolutionSeconds

	g.perfCollector.StartStep()
	defer g.perfCollector.EndStep()

	g.perfCollector.StartPhase(telemetry.PhaseWeather)
	soil, err := g.env.Checkpoint()
	if err != nil {
		return growth.StepResult{}, fmt.Errorf("step %d checkpoint: %w", g.steps, err)
	}
	cond := g.env.Weathering(dt)

	g.perfCollector.StartPhase(telemetry.PhaseGrowth)
	res, err := g.model.Step(g.plant, g.env, g.roots.Mask(), growth.StepInput{
		Allocation:  req.Allocation,
		StomataOpen: req.StomataOpen,
		Seconds:     dt,
		Conditions:  cond,
	})
	if err != nil {
		// Limits and solve failures leave the plant untouched; undoing the
		// weathering makes a retry replay this step exactly.
		if rerr := g.env.Rollback(soil); rerr != nil {
			slog.Error("failed to roll back soil", "error", rerr)
		}
		return res, fmt.Errorf("step %d: %w", g.steps, err)
	}

	g.perfCollector.StartPhase(telemetry.PhasePools)
	g.plant.RescalePools()

	g.perfCollector.StartPhase(telemetry.PhaseRoots)
	if err := g.roots.Update(g.plant.Collection(components.KindRoot).Biomass()); err != nil {
		return res, fmt.Errorf("step %d roots: %w", g.steps, err)
	}

	g.env.Advance(dt)
	g.steps++

	g.perfCollector.StartPhase(telemetry.PhaseTelemetry)
	g.collector.RecordStep(res, cond)
	g.flushTelemetry()

	return res, nil
}
