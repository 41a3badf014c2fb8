// Package main provides CMA-ES optimization of allocation strategies.
package main

import (
	"github.com/pthm-cable/sprout/growth"
)

// ParamSpec defines a single optimizable parameter.
type ParamSpec struct {
	Name    string  // Human-readable name
	Path    string  // Strategy path for logging
	Min     float64 // Lower bound
	Max     float64 // Upper bound
	Default float64 // Default value
}

// ParamVector holds the set of all optimizable parameters.
type ParamVector struct {
	Specs []ParamSpec
}

// NewParamVector creates the standard set of optimizable parameters: one
// allocation for daylight hours and one for the night.
func NewParamVector() *ParamVector {
	return &ParamVector{
		Specs: []ParamSpec{
			// Daylight
			{Name: "day_leaf", Path: "day.leaf", Min: 0, Max: 100, Default: 25},
			{Name: "day_stem", Path: "day.stem", Min: 0, Max: 100, Default: 25},
			{Name: "day_root", Path: "day.root", Min: 0, Max: 100, Default: 25},
			{Name: "day_seed", Path: "day.seed", Min: 0, Max: 100, Default: 0},
			{Name: "day_starch", Path: "day.starch", Min: 0, Max: 100, Default: 25},
			// Night: growth runs on starch only
			{Name: "night_leaf", Path: "night.leaf", Min: 0, Max: 100, Default: 25},
			{Name: "night_stem", Path: "night.stem", Min: 0, Max: 100, Default: 25},
			{Name: "night_root", Path: "night.root", Min: 0, Max: 100, Default: 25},
			{Name: "night_seed", Path: "night.seed", Min: 0, Max: 100, Default: 0},
			// Share of drawable starch the plant may use
			{Name: "starch_draw", Path: "starch_draw", Min: 0, Max: 100, Default: 100},
		},
	}
}

// Dim returns the number of parameters.
func (pv *ParamVector) Dim() int {
	return len(pv.Specs)
}

// DefaultVector returns the default parameter values as a slice.
func (pv *ParamVector) DefaultVector() []float64 {
	v := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		v[i] = spec.Default
	}
	return v
}

// Normalize converts raw parameter values to [0,1] range.
func (pv *ParamVector) Normalize(raw []float64) []float64 {
	normalized := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		normalized[i] = (raw[i] - spec.Min) / (spec.Max - spec.Min)
	}
	return normalized
}

// Denormalize converts [0,1] values back to raw parameter values.
func (pv *ParamVector) Denormalize(normalized []float64) []float64 {
	raw := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		raw[i] = spec.Min + normalized[i]*(spec.Max-spec.Min)
	}
	return raw
}

// Clamp ensures all values are within bounds.
func (pv *ParamVector) Clamp(v []float64) []float64 {
	clamped := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		clamped[i] = min(max(v[i], spec.Min), spec.Max)
	}
	return clamped
}

// Strategy is an allocation schedule the evaluator plays.
type Strategy struct {
	Day        growth.Allocation `yaml:"day"`
	Night      growth.Allocation `yaml:"night"`
	StarchDraw float64           `yaml:"starch_draw"` // percent of drawable starch
}

// Strategy converts parameter values into a schedule.
// Order must match Specs order.
func (pv *ParamVector) Strategy(values []float64) Strategy {
	c := pv.Clamp(values)
	return Strategy{
		Day:   growth.Allocation{Leaf: c[0], Stem: c[1], Root: c[2], Seed: c[3], Starch: c[4]},
		Night: growth.Allocation{Leaf: c[5], Stem: c[6], Root: c[7], Seed: c[8]},
		// Starch export at night would only cycle stored carbon.
		StarchDraw: c[9],
	}
}
