package systems

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/pthm-cable/sprout/config"
)

// SegmentState is the growth phase of a root segment. While growing a segment
// keeps the state of its role on the axis; it becomes SegmentFrozen once it
// reaches its max length or leaves the soil.
type SegmentState int

const (
	SegmentFrozen    SegmentState = 99
	SegmentBasal     SegmentState = 100
	SegmentBranching SegmentState = 200
	SegmentApex      SegmentState = 300
)

// ErrZeroDirection is returned when a root direction has no length.
var ErrZeroDirection = errors.New("zero root direction")

// Vec2 is a position or direction in centimeters; Y grows downward.
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns v + o.
func (v Vec2) Add(o Vec2) Vec2 { return Vec2{v.X + o.X, v.Y + o.Y} }

// Scale returns v multiplied by s.
func (v Vec2) Scale(s float64) Vec2 { return Vec2{v.X * s, v.Y * s} }

// Dot returns the dot product of v and o.
func (v Vec2) Dot(o Vec2) float64 { return v.X*o.X + v.Y*o.Y }

// Len returns the Euclidean length of v.
func (v Vec2) Len() float64 { return math.Hypot(v.X, v.Y) }

// Normalize returns the unit vector along v, or false if v is zero.
func (v Vec2) Normalize() (Vec2, bool) {
	l := v.Len()
	if l == 0 {
		return Vec2{}, false
	}
	return Vec2{v.X / l, v.Y / l}, true
}

// Segment is one straight piece of a root axis. Segments reference each other
// by index into the RootSystem arena.
type Segment struct {
	State     SegmentState `json:"state"`
	Tier      int          `json:"tier"`
	Tree      int          `json:"tree"`
	Prev      int          `json:"prev"` // previous segment on the axis, -1 for the basal segment
	Next      int          `json:"next"` // next segment on the axis, -1 for the apex
	Start     Vec2         `json:"start"`
	Dir       Vec2         `json:"dir"`
	Length    float64      `json:"length"`
	MaxLength float64      `json:"max_length"`
	MassStart float64      `json:"mass_start"`
	MassEnd   float64      `json:"mass_end"`
	Branches  []float64    `json:"branches,omitempty"` // pending branch positions, sorted, in (0,1)
	Slots     int          `json:"slots"`              // branches this segment may still spawn
}

// Tip returns the current end point of the segment.
func (s *Segment) Tip() Vec2 {
	return s.Start.Add(s.Dir.Scale(s.Length))
}

// Tree is one root axis started from a direction: the initial axis, a bought
// root, or a branch of another axis.
type Tree struct {
	Tier   int  `json:"tier"`
	Origin Vec2 `json:"origin"`
	Dir    Vec2 `json:"dir"`
	Parent int  `json:"parent"` // segment it branched from, -1 for top-level trees
	Basal  int  `json:"basal"`  // index of its basal segment
}

// RootSystem grows root axes in lock-step with total root biomass and keeps
// the mask of grid cells the roots can reach.
type RootSystem struct {
	cfg          config.RootsConfig
	cellSize     float64
	width, depth int
	origin       Vec2

	segments []Segment
	trees    []Tree
	mask     *mat.Dense
	mass     float64

	src *rand.PCG
	rng *rand.Rand
}

// NewRootSystem creates a root system with one tree in the configured initial
// direction, grown to rootMass.
func NewRootSystem(cfg *config.Config, rootMass float64, seed int64) (*RootSystem, error) {
	src := rand.NewPCG(uint64(seed), 0x726f6f74)
	r := &RootSystem{
		cfg:      cfg.Roots,
		cellSize: cfg.Grid.CellSizeCM,
		width:    cfg.Grid.Width,
		depth:    cfg.Grid.Depth,
		origin:   Vec2{X: (cfg.Plant.OriginX + 0.5) * cfg.Grid.CellSizeCM},
		mask:     mat.NewDense(cfg.Grid.Width, cfg.Grid.Depth, nil),
		src:      src,
		rng:      rand.New(src),
	}

	dir := Vec2{cfg.Roots.InitialDirection[0], cfg.Roots.InitialDirection[1]}
	if _, err := r.addTree(0, r.origin, dir, 0, -1); err != nil {
		return nil, err
	}
	if err := r.Update(rootMass); err != nil {
		return nil, err
	}
	return r, nil
}

// AddTree starts a new top-level axis at the plant origin. Its growth window
// begins at the current root mass. Returns the tree index.
func (r *RootSystem) AddTree(direction Vec2) (int, error) {
	return r.addTree(0, r.origin, direction, r.mass, -1)
}

func (r *RootSystem) addTree(tier int, origin, direction Vec2, massStart float64, parent int) (int, error) {
	dir, ok := direction.Normalize()
	if !ok {
		return 0, ErrZeroDirection
	}
	if tier >= len(r.cfg.Tiers) {
		return 0, fmt.Errorf("root tier %d beyond configured %d tiers", tier, len(r.cfg.Tiers))
	}
	tc := r.cfg.Tiers[tier]
	tree := len(r.trees)
	basal := len(r.segments)

	m0 := massStart
	m1 := m0 + tc.BasalMass
	m2 := m1 + tc.BranchingMass
	m3 := m2 + tc.ApexMass
	p1 := origin.Add(dir.Scale(tc.BasalLength))
	p2 := p1.Add(dir.Scale(tc.BranchingLength))

	r.segments = append(r.segments,
		Segment{State: SegmentBasal, Tier: tier, Tree: tree, Prev: -1, Next: basal + 1,
			Start: origin, Dir: dir, MaxLength: tc.BasalLength, MassStart: m0, MassEnd: m1},
		Segment{State: SegmentBranching, Tier: tier, Tree: tree, Prev: basal, Next: basal + 2,
			Start: p1, Dir: dir, MaxLength: tc.BranchingLength, MassStart: m1, MassEnd: m2,
			Branches: r.branchPoints(tc.Branches), Slots: tc.Branches},
		Segment{State: SegmentApex, Tier: tier, Tree: tree, Prev: basal + 1, Next: -1,
			Start: p2, Dir: dir, MaxLength: tc.ApexLength, MassStart: m2, MassEnd: m3},
	)
	r.trees = append(r.trees, Tree{Tier: tier, Origin: origin, Dir: dir, Parent: parent, Basal: basal})

	r.markPoint(origin)
	return tree, nil
}

// branchPoints spreads n branch positions evenly along a segment with jitter.
func (r *RootSystem) branchPoints(n int) []float64 {
	if n <= 0 {
		return nil
	}
	step := 1 / float64(n+1)
	ts := make([]float64, n)
	for k := range ts {
		ts[k] = step*float64(k+1) + (r.rng.Float64()-0.5)*step*0.5
	}
	sort.Float64s(ts)
	return ts
}

// Update grows every segment to the given total root mass. Mass must not
// decrease.
func (r *RootSystem) Update(rootMass float64) error {
	if rootMass < r.mass {
		return fmt.Errorf("root mass from %v to %v: %w", r.mass, rootMass, ErrBiomassDecrease)
	}
	r.mass = rootMass

	// Children and trailing segments appended during the pass are visited too.
	for i := 0; i < len(r.segments); i++ {
		if r.segments[i].State == SegmentFrozen {
			continue
		}
		if err := r.grow(i); err != nil {
			return err
		}
	}
	return nil
}

func (r *RootSystem) grow(i int) error {
	s := &r.segments[i]
	if r.mass <= s.MassStart || s.MassEnd <= s.MassStart {
		return nil
	}
	frac := min((r.mass-s.MassStart)/(s.MassEnd-s.MassStart), 1)
	s.Length = s.MaxLength * frac

	for {
		s = &r.segments[i]
		if s.State != SegmentBranching || s.Slots <= 0 || len(s.Branches) == 0 {
			break
		}
		if s.Length/s.MaxLength <= s.Branches[0] {
			break
		}
		next, err := r.split(i)
		if err != nil {
			return err
		}
		i = next
	}

	s = &r.segments[i]
	if !r.markPoint(s.Tip()) {
		r.freezeAxis(i)
		return nil
	}
	if s.Length >= s.MaxLength {
		s.Length = s.MaxLength
		s.State = SegmentFrozen
	}
	return nil
}

// split spawns a child tree at the segment's first pending branch point and
// cuts the segment there. The head keeps index i and freezes; the trailing
// part is appended and its index returned.
func (r *RootSystem) split(i int) (int, error) {
	head := r.segments[i]
	t := head.Branches[0]
	cut := head.MaxLength * t
	point := head.Start.Add(head.Dir.Scale(cut))
	massCut := head.MassStart + (head.MassEnd-head.MassStart)*t

	rest := make([]float64, 0, len(head.Branches)-1)
	for _, tk := range head.Branches[1:] {
		rest = append(rest, (tk-t)/(1-t))
	}

	trail := len(r.segments)
	r.segments = append(r.segments, Segment{
		State:     SegmentBranching,
		Tier:      head.Tier,
		Tree:      head.Tree,
		Prev:      i,
		Next:      head.Next,
		Start:     point,
		Dir:       head.Dir,
		Length:    head.Length - cut,
		MaxLength: head.MaxLength - cut,
		MassStart: massCut,
		MassEnd:   head.MassEnd,
		Branches:  rest,
		Slots:     head.Slots - 1,
	})
	if head.Next >= 0 {
		r.segments[head.Next].Prev = trail
	}

	h := &r.segments[i]
	h.State = SegmentFrozen
	h.Length = cut
	h.MaxLength = cut
	h.MassEnd = massCut
	h.Branches = nil
	h.Slots = 0
	h.Next = trail

	if head.Tier+1 < len(r.cfg.Tiers) {
		if _, err := r.addTree(head.Tier+1, point, r.childDirection(head.Dir), r.mass, i); err != nil {
			return 0, err
		}
	}
	return trail, nil
}

// childDirection samples candidate directions and keeps the best one by
// closeness to the parent heading and downward pull. Upward candidates are
// rejected; if all are rejected the parent heading is used.
func (r *RootSystem) childDirection(parent Vec2) Vec2 {
	best := parent
	bestScore := math.Inf(-1)
	for range r.cfg.Candidates {
		a := r.rng.Float64() * 2 * math.Pi
		c := Vec2{math.Cos(a), math.Sin(a)}
		if c.Y < 0 {
			continue
		}
		score := r.cfg.HeadingWeight*c.Dot(parent) + r.cfg.DownWeight*c.Y
		if score > bestScore {
			best, bestScore = c, score
		}
	}
	return best
}

// freezeAxis freezes segment i and everything after it on its axis.
func (r *RootSystem) freezeAxis(i int) {
	for ; i >= 0; i = r.segments[i].Next {
		s := &r.segments[i]
		if s.State != SegmentFrozen {
			s.State = SegmentFrozen
			s.MaxLength = s.Length
		}
	}
}

// markPoint marks the cell under p as reachable, plus a partial value in a
// neighbor within EdgeWidth of a cell boundary. Returns false if p lies
// outside the soil's vertical extent.
func (r *RootSystem) markPoint(p Vec2) bool {
	fx := p.X / r.cellSize
	fy := p.Y / r.cellSize
	if fy < 0 || fy >= float64(r.depth) {
		return false
	}
	if fx < 0 || fx >= float64(r.width) {
		return true
	}
	cx, cy := int(fx), int(fy)
	r.raise(cx, cy, 1)

	edge := r.cfg.EdgeWidth
	if edge <= 0 {
		return true
	}
	ox, oy := fx-float64(cx), fy-float64(cy)
	switch {
	case ox < edge:
		r.raise(cx-1, cy, 0.5*(1-ox/edge))
	case 1-ox < edge:
		r.raise(cx+1, cy, 0.5*(1-(1-ox)/edge))
	}
	switch {
	case oy < edge:
		r.raise(cx, cy-1, 0.5*(1-oy/edge))
	case 1-oy < edge:
		r.raise(cx, cy+1, 0.5*(1-(1-oy)/edge))
	}
	return true
}

func (r *RootSystem) raise(x, y int, v float64) {
	if x < 0 || x >= r.width || y < 0 || y >= r.depth {
		return
	}
	if r.mask.At(x, y) < v {
		r.mask.Set(x, y, v)
	}
}

// Mask returns the reachability mask (width x depth, values in [0,1]).
// Callers must not modify it.
func (r *RootSystem) Mask() mat.Matrix { return r.mask }

// MaskCells returns a copy of the reachability mask as [x][y], laid out
// like MetaboliteGrid.Cells.
func (r *RootSystem) MaskCells() [][]float64 {
	out := make([][]float64, r.width)
	for x := range out {
		out[x] = mat.Row(make([]float64, r.depth), x, r.mask)
	}
	return out
}

// CellCount returns the number of cells with any reachability.
func (r *RootSystem) CellCount() int {
	n := 0
	raw := r.mask.RawMatrix()
	for i := 0; i < raw.Rows; i++ {
		for _, v := range raw.Data[i*raw.Stride : i*raw.Stride+raw.Cols] {
			if v > 0 {
				n++
			}
		}
	}
	return n
}

// Mass returns the root mass the system was last grown to.
func (r *RootSystem) Mass() float64 { return r.mass }

// Segments returns a copy of the segment arena.
func (r *RootSystem) Segments() []Segment {
	out := make([]Segment, len(r.segments))
	for i, s := range r.segments {
		s.Branches = append([]float64(nil), s.Branches...)
		out[i] = s
	}
	return out
}

// Trees returns a copy of the tree list.
func (r *RootSystem) Trees() []Tree {
	return append([]Tree(nil), r.trees...)
}

// RootState is the serializable state of a root system.
type RootState struct {
	Mass     float64     `json:"mass"`
	Segments []Segment   `json:"segments"`
	Trees    []Tree      `json:"trees"`
	Mask     [][]float64 `json:"mask"`
	RNG      []byte      `json:"rng"`
}

// State captures the root system.
func (r *RootSystem) State() (RootState, error) {
	rng, err := r.src.MarshalBinary()
	if err != nil {
		return RootState{}, err
	}
	return RootState{
		Mass:     r.mass,
		Segments: r.Segments(),
		Trees:    r.Trees(),
		Mask:     r.MaskCells(),
		RNG:      rng,
	}, nil
}

// Restore replaces the root system state.
func (r *RootSystem) Restore(s RootState) error {
	if len(s.Mask) != r.width {
		return fmt.Errorf("root mask has %d columns, want %d", len(s.Mask), r.width)
	}
	for x, col := range s.Mask {
		if len(col) != r.depth {
			return fmt.Errorf("root mask column %d has %d cells, want %d", x, len(col), r.depth)
		}
	}
	for i, seg := range s.Segments {
		if seg.Prev >= len(s.Segments) || seg.Next >= len(s.Segments) || seg.Tree < 0 || seg.Tree >= len(s.Trees) {
			return fmt.Errorf("root segment %d has dangling references", i)
		}
	}
	if err := r.src.UnmarshalBinary(s.RNG); err != nil {
		return fmt.Errorf("root rng state: %w", err)
	}
	for x, col := range s.Mask {
		r.mask.SetRow(x, col)
	}
	r.mass = s.Mass
	r.segments = make([]Segment, len(s.Segments))
	for i, seg := range s.Segments {
		seg.Branches = append([]float64(nil), seg.Branches...)
		r.segments[i] = seg
	}
	r.trees = append([]Tree(nil), s.Trees...)
	return nil
}
