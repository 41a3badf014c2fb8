package components

// Organ is the ECS component carried by every organ entity.
// Mass and MaxMass are in grams of dry weight.
type Organ struct {
	Kind    OrganKind `json:"kind"`
	ID      int       `json:"id"`       // unique within Kind, assigned by the owning collection
	Mass    float64   `json:"mass"`     // current mass, never decreases
	MaxMass float64   `json:"max_mass"` // per-organ growth cap, > 0
}

// Headroom returns how much mass the organ can still gain.
func (o *Organ) Headroom() float64 {
	h := o.MaxMass - o.Mass
	if h < 0 {
		return 0
	}
	return h
}
