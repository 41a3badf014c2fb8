package systems

import (
	"errors"
	"fmt"

	"github.com/pthm-cable/sprout/components"
	"github.com/pthm-cable/sprout/config"
)

var (
	// ErrNegativePool is returned when a pool would be set below zero.
	ErrNegativePool = errors.New("negative pool value")
	// ErrDegenerate is returned for per-gram-per-time rates over zero mass or time.
	ErrDegenerate = errors.New("degenerate rate: zero mass or time")
)

// ResourcePool is a plant-internal store of one resource in micromol.
//
// Available may exceed Max only until it first drops to or below Max;
// from then on increases are clamped to Max.
type ResourcePool struct {
	Kind           components.ResourceKind
	AllowedPercent float64 // player dial, 0-100

	FreshWeightFactor  float64
	StorageFraction    float64
	MolPerGram         float64
	PerStepFraction    float64
	PerStepMaxFraction float64

	available float64
	max       float64
}

// NewResourcePool creates a pool seeded with cfg.Initial and a zero max.
// Call ScaleViaBiomass before use.
func NewResourcePool(kind components.ResourceKind, cfg config.PoolConfig) *ResourcePool {
	return &ResourcePool{
		Kind:               kind,
		AllowedPercent:     100,
		FreshWeightFactor:  cfg.FreshWeightFactor,
		StorageFraction:    cfg.StorageFraction,
		MolPerGram:         cfg.MolPerGram,
		PerStepFraction:    cfg.PerStepFraction,
		PerStepMaxFraction: cfg.PerStepMaxFraction,
		available:          max(cfg.Initial, 0),
	}
}

// Available returns the current stock.
func (p *ResourcePool) Available() float64 { return p.available }

// Max returns the current capacity.
func (p *ResourcePool) Max() float64 { return p.max }

// Headroom returns how much can be added before the pool clamps.
func (p *ResourcePool) Headroom() float64 {
	return max(p.max-p.available, 0)
}

// SetAvailable sets the stock to v and returns the part of v that was not
// stored. Negative v is rejected.
func (p *ResourcePool) SetAvailable(v float64) (float64, error) {
	if v < 0 {
		return 0, fmt.Errorf("%s pool set to %v: %w", p.Kind, v, ErrNegativePool)
	}
	if p.available > p.max {
		// Over capacity from seeding: hold increases until it drains below max.
		if v > p.available {
			return v - p.available, nil
		}
		p.available = v
		return 0, nil
	}
	if v > p.max {
		p.available = p.max
		return v - p.max, nil
	}
	p.available = v
	return 0, nil
}

// Add changes the stock by delta through SetAvailable.
func (p *ResourcePool) Add(delta float64) (float64, error) {
	return p.SetAvailable(p.available + delta)
}

// ScaleViaBiomass recomputes Max from the plant's total dry biomass in grams.
func (p *ResourcePool) ScaleViaBiomass(totalBiomass float64) {
	p.max = totalBiomass * p.FreshWeightFactor * p.StorageFraction * p.MolPerGram
}

// CalcAvailablePerGramAndTime returns the per-gram per-second draw ceiling for
// an organ of the given mass over the given time.
func (p *ResourcePool) CalcAvailablePerGramAndTime(mass, seconds float64) (float64, error) {
	if mass <= 0 || seconds <= 0 {
		return 0, fmt.Errorf("%s pool over mass=%v seconds=%v: %w", p.Kind, mass, seconds, ErrDegenerate)
	}
	drawable := min(p.available*p.PerStepFraction, p.max*p.PerStepMaxFraction)
	return drawable / (mass * seconds) * p.AllowedPercent / 100, nil
}

// PoolState is the serializable state of a pool.
type PoolState struct {
	Available      float64 `json:"available"`
	Max            float64 `json:"max"`
	AllowedPercent float64 `json:"allowed_percent"`
}

// State captures the pool.
func (p *ResourcePool) State() PoolState {
	return PoolState{Available: p.available, Max: p.max, AllowedPercent: p.AllowedPercent}
}

// Restore replaces the pool state wholesale.
func (p *ResourcePool) Restore(s PoolState) error {
	if s.Available < 0 || s.Max < 0 {
		return fmt.Errorf("restore %s pool %+v: %w", p.Kind, s, ErrNegativePool)
	}
	if s.AllowedPercent < 0 || s.AllowedPercent > 100 {
		return fmt.Errorf("restore %s pool: allowed percent %v out of range", p.Kind, s.AllowedPercent)
	}
	p.available = s.Available
	p.max = s.Max
	p.AllowedPercent = s.AllowedPercent
	return nil
}

// Pools groups the plant's three resource pools.
type Pools struct {
	Starch  *ResourcePool
	Water   *ResourcePool
	Nitrate *ResourcePool
}

// NewPools creates the starch, water and nitrate pools from config.
func NewPools(cfg config.PoolsConfig) *Pools {
	return &Pools{
		Starch:  NewResourcePool(components.ResourceStarch, cfg.Starch),
		Water:   NewResourcePool(components.ResourceWater, cfg.Water),
		Nitrate: NewResourcePool(components.ResourceNitrate, cfg.Nitrate),
	}
}

// Get returns the pool for kind.
func (p *Pools) Get(kind components.ResourceKind) *ResourcePool {
	switch kind {
	case components.ResourceStarch:
		return p.Starch
	case components.ResourceWater:
		return p.Water
	case components.ResourceNitrate:
		return p.Nitrate
	}
	return nil
}

// ScaleViaBiomass rescales every pool's capacity.
func (p *Pools) ScaleViaBiomass(totalBiomass float64) {
	p.Starch.ScaleViaBiomass(totalBiomass)
	p.Water.ScaleViaBiomass(totalBiomass)
	p.Nitrate.ScaleViaBiomass(totalBiomass)
}
