package systems

import (
	"errors"
	"fmt"
	"sort"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/sprout/components"
	"github.com/pthm-cable/sprout/config"
)

// ErrBiomassDecrease is returned when an organ's mass would go down.
var ErrBiomassDecrease = errors.New("biomass decrease")

// ErrInvalidOrgan is returned for organs created with an unusable mass or cap.
var ErrInvalidOrgan = errors.New("invalid organ")

// OrganCollection is the append-only set of organs of one kind. Organs live
// as entities in the plant's ECS world; the collection keeps them in creation
// order and the position in that order is the organ's ID.
type OrganCollection struct {
	Kind    components.OrganKind
	MaxMass float64 // cap for newly created organs

	organs   *ecs.Map1[components.Organ]
	entities []ecs.Entity
}

func newOrganCollection(world *ecs.World, kind components.OrganKind, maxMass float64) *OrganCollection {
	return &OrganCollection{
		Kind:    kind,
		MaxMass: maxMass,
		organs:  ecs.NewMap1[components.Organ](world),
	}
}

// Create adds an organ with the given starting mass and returns its ID.
func (c *OrganCollection) Create(mass float64) (int, error) {
	if mass < 0 || c.MaxMass <= 0 || mass > c.MaxMass {
		return 0, fmt.Errorf("%s organ mass=%v max=%v: %w", c.Kind, mass, c.MaxMass, ErrInvalidOrgan)
	}
	id := len(c.entities)
	organ := components.Organ{Kind: c.Kind, ID: id, Mass: mass, MaxMass: c.MaxMass}
	c.entities = append(c.entities, c.organs.NewEntity(&organ))
	return id, nil
}

// Len returns the number of organs.
func (c *OrganCollection) Len() int { return len(c.entities) }

// Organ returns a copy of the organ with the given ID.
func (c *OrganCollection) Organ(id int) (components.Organ, bool) {
	if id < 0 || id >= len(c.entities) {
		return components.Organ{}, false
	}
	return *c.organs.Get(c.entities[id]), true
}

// Organs returns copies of all organs in ID order.
func (c *OrganCollection) Organs() []components.Organ {
	out := make([]components.Organ, len(c.entities))
	for i, e := range c.entities {
		out[i] = *c.organs.Get(e)
	}
	return out
}

// Biomass returns the summed mass of all organs.
func (c *OrganCollection) Biomass() float64 {
	var sum float64
	for _, e := range c.entities {
		sum += c.organs.Get(e).Mass
	}
	return sum
}

// AddableBiomass returns the summed headroom of all organs.
func (c *OrganCollection) AddableBiomass() float64 {
	var sum float64
	for _, e := range c.entities {
		sum += c.organs.Get(e).Headroom()
	}
	return sum
}

// AddBiomass distributes delta grams across the organs and returns the part
// that did not fit. Organs with the least headroom saturate first and the
// rest take equal shares of what remains.
func (c *OrganCollection) AddBiomass(delta float64) (float64, error) {
	if delta < 0 {
		return 0, fmt.Errorf("%s biomass delta %v: %w", c.Kind, delta, ErrBiomassDecrease)
	}
	if delta == 0 {
		return 0, nil
	}
	if len(c.entities) == 0 {
		return delta, nil
	}

	members := make([]*components.Organ, len(c.entities))
	for i, e := range c.entities {
		members[i] = c.organs.Get(e)
	}

	addable := c.AddableBiomass()
	if delta >= addable {
		for _, o := range members {
			o.Mass = max(o.Mass, o.MaxMass)
		}
		return delta - addable, nil
	}

	sort.SliceStable(members, func(i, j int) bool {
		return members[i].Headroom() < members[j].Headroom()
	})

	remaining := delta
	for i, o := range members {
		share := remaining / float64(len(members)-i)
		take := min(o.Headroom(), share)
		o.Mass += take
		remaining -= take
	}
	return 0, nil
}

// SetMass sets the mass of one organ. Decreases are rejected.
func (c *OrganCollection) SetMass(id int, mass float64) error {
	if id < 0 || id >= len(c.entities) {
		return fmt.Errorf("%s organ %d: %w", c.Kind, id, ErrInvalidOrgan)
	}
	o := c.organs.Get(c.entities[id])
	if mass < o.Mass {
		return fmt.Errorf("%s organ %d from %v to %v: %w", c.Kind, id, o.Mass, mass, ErrBiomassDecrease)
	}
	if mass > o.MaxMass {
		return fmt.Errorf("%s organ %d mass %v above max %v: %w", c.Kind, id, mass, o.MaxMass, ErrInvalidOrgan)
	}
	o.Mass = mass
	return nil
}

// Plant owns the four organ collections and the resource pools.
type Plant struct {
	world       *ecs.World
	organFilter *ecs.Filter1[components.Organ]

	collections [components.NumOrganKinds]*OrganCollection
	Pools       *Pools
}

// NewPlant creates a plant with one organ per kind that has a non-zero
// initial mass, and pools scaled to the starting biomass.
func NewPlant(cfg *config.Config) (*Plant, error) {
	world := ecs.NewWorld()
	p := &Plant{
		world:       world,
		organFilter: ecs.NewFilter1[components.Organ](world),
		Pools:       NewPools(cfg.Pools),
	}

	organCfgs := [components.NumOrganKinds]config.OrganConfig{
		cfg.Plant.Leaf, cfg.Plant.Stem, cfg.Plant.Root, cfg.Plant.Seed,
	}
	for _, kind := range components.OrganKinds {
		oc := organCfgs[kind]
		p.collections[kind] = newOrganCollection(world, kind, oc.MaxMass)
		if oc.InitialMass > 0 {
			if _, err := p.collections[kind].Create(oc.InitialMass); err != nil {
				return nil, err
			}
		}
	}

	p.Pools.ScaleViaBiomass(p.TotalBiomass())
	return p, nil
}

// Collection returns the organ collection for kind.
func (p *Plant) Collection(kind components.OrganKind) *OrganCollection {
	return p.collections[kind]
}

// Masses returns per-kind biomass in canonical order.
func (p *Plant) Masses() [components.NumOrganKinds]float64 {
	var m [components.NumOrganKinds]float64
	for _, kind := range components.OrganKinds {
		m[kind] = p.collections[kind].Biomass()
	}
	return m
}

// TotalBiomass returns the dry mass of every organ in the plant.
func (p *Plant) TotalBiomass() float64 {
	var total float64
	query := p.organFilter.Query()
	for query.Next() {
		total += query.Get().Mass
	}
	return total
}

// RescalePools recomputes pool capacities from the current total biomass.
func (p *Plant) RescalePools() {
	p.Pools.ScaleViaBiomass(p.TotalBiomass())
}

// RestoreOrgans replaces a collection's organs. Only valid on a collection
// that has not grown beyond the given list; existing organs must not shrink.
func (p *Plant) RestoreOrgans(kind components.OrganKind, organs []components.Organ) error {
	c := p.collections[kind]
	if len(organs) < c.Len() {
		return fmt.Errorf("%s: restore has %d organs, collection has %d: %w", kind, len(organs), c.Len(), ErrInvalidOrgan)
	}

	// Validate everything first so a bad entry leaves the collection as it was.
	for i, o := range organs {
		if o.ID != i {
			return fmt.Errorf("%s organ at %d has id %d: %w", kind, i, o.ID, ErrInvalidOrgan)
		}
		if o.Mass < 0 || o.MaxMass <= 0 || o.Mass > o.MaxMass {
			return fmt.Errorf("%s organ %d mass=%v max=%v: %w", kind, i, o.Mass, o.MaxMass, ErrInvalidOrgan)
		}
		if i < c.Len() {
			if cur := c.organs.Get(c.entities[i]); o.Mass < cur.Mass {
				return fmt.Errorf("%s organ %d from %v to %v: %w", kind, i, cur.Mass, o.Mass, ErrBiomassDecrease)
			}
		}
	}

	for i, o := range organs {
		if i < c.Len() {
			cur := c.organs.Get(c.entities[i])
			cur.MaxMass = o.MaxMass
			cur.Mass = o.Mass
			continue
		}
		restored := components.Organ{Kind: kind, ID: i, Mass: o.Mass, MaxMass: o.MaxMass}
		c.entities = append(c.entities, c.organs.NewEntity(&restored))
	}
	return nil
}
