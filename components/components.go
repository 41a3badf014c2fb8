// Package components defines ECS components and shared enums for the simulation.
package components

// OrganKind identifies one of the four biomass-bearing plant parts.
type OrganKind uint8

const (
	KindLeaf OrganKind = iota
	KindStem
	KindRoot
	KindSeed
)

// NumOrganKinds is the number of organ kinds.
const NumOrganKinds = 4

// OrganKinds lists all organ kinds in canonical order.
var OrganKinds = [NumOrganKinds]OrganKind{KindLeaf, KindStem, KindRoot, KindSeed}

// String returns the lowercase organ name.
func (k OrganKind) String() string {
	switch k {
	case KindLeaf:
		return "leaf"
	case KindStem:
		return "stem"
	case KindRoot:
		return "root"
	case KindSeed:
		return "seed"
	default:
		return "unknown"
	}
}

// ResourceKind identifies a plant resource pool.
type ResourceKind uint8

const (
	ResourceStarch ResourceKind = iota
	ResourceWater
	ResourceNitrate
)

// NumResourceKinds is the number of resource kinds.
const NumResourceKinds = 3

// String returns the lowercase resource name.
func (r ResourceKind) String() string {
	switch r {
	case ResourceStarch:
		return "starch"
	case ResourceWater:
		return "water"
	case ResourceNitrate:
		return "nitrate"
	default:
		return "unknown"
	}
}
