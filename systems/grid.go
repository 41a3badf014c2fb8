package systems

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/pthm-cable/sprout/components"
)

// ErrNegativeAmount is returned when an external delta would remove resource
// through a path that only adds it.
var ErrNegativeAmount = errors.New("negative resource amount")

// ErrOutOfGrid is returned for cell coordinates outside the grid.
var ErrOutOfGrid = errors.New("cell outside grid")

// secondsPerHour is the trickle slice length used by RainIncrease.
const secondsPerHour = 3600.0

// Cell addresses one grid cell. Y grows downward from the surface row.
type Cell struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// MetaboliteGrid is a soil grid holding one resource in micromol per cell.
// Rows of the backing matrix are x (across), columns are y (down), so
// At(x, y) matches the usual width x depth reading of the grid.
type MetaboliteGrid struct {
	Kind        components.ResourceKind
	MaxCell     float64 // per-cell cap
	TrickleRate float64 // fraction of a cell moved one row down per second

	cells *mat.Dense
	src   *rand.PCG
	rng   *rand.Rand
}

// NewMetaboliteGrid creates an empty width x depth grid.
func NewMetaboliteGrid(kind components.ResourceKind, width, depth int, maxCell float64, seed int64) *MetaboliteGrid {
	if width <= 0 || depth <= 0 {
		panic(fmt.Sprintf("metabolite grid: invalid size %dx%d", width, depth))
	}
	src := rand.NewPCG(uint64(seed), uint64(kind)+1)
	return &MetaboliteGrid{
		Kind:        kind,
		MaxCell:     maxCell,
		TrickleRate: 2e-5,
		cells:       mat.NewDense(width, depth, nil),
		src:         src,
		rng:         rand.New(src),
	}
}

// Size returns the grid dimensions (width, depth).
func (g *MetaboliteGrid) Size() (int, int) {
	return g.cells.Dims()
}

// At returns the content of cell (x, y).
func (g *MetaboliteGrid) At(x, y int) float64 {
	return g.cells.At(x, y)
}

// Total returns the summed content of all cells.
func (g *MetaboliteGrid) Total() float64 {
	return mat.Sum(g.cells)
}

// Fill sets every cell to v, clamped to MaxCell.
func (g *MetaboliteGrid) Fill(v float64) error {
	if v < 0 {
		return fmt.Errorf("fill %s grid with %v: %w", g.Kind, v, ErrNegativeAmount)
	}
	if v > g.MaxCell {
		v = g.MaxCell
	}
	w, d := g.cells.Dims()
	for x := 0; x < w; x++ {
		for y := 0; y < d; y++ {
			g.cells.Set(x, y, v)
		}
	}
	return nil
}

// Add2Cell adds amount to cell (x, y), clamping the result to MaxCell.
// Returns the amount actually added.
func (g *MetaboliteGrid) Add2Cell(amount float64, x, y int) (float64, error) {
	if amount < 0 {
		return 0, fmt.Errorf("add %v to %s cell (%d,%d): %w", amount, g.Kind, x, y, ErrNegativeAmount)
	}
	if !g.contains(x, y) {
		return 0, fmt.Errorf("%s cell (%d,%d): %w", g.Kind, x, y, ErrOutOfGrid)
	}
	return g.addClamped(x, y, amount), nil
}

// Fertilize adds amount to each listed cell. Returns the total added.
func (g *MetaboliteGrid) Fertilize(cells []Cell, amount float64) (float64, error) {
	var added float64
	for _, c := range cells {
		a, err := g.Add2Cell(amount, c.X, c.Y)
		if err != nil {
			return added, err
		}
		added += a
	}
	return added, nil
}

// RainIncrease adds rate*duration to every surface cell and lets it trickle
// down, one trickle per hour-equivalent slice of duration plus one for the
// residual. Returns the amount added to the grid.
func (g *MetaboliteGrid) RainIncrease(duration, rate float64) float64 {
	if duration <= 0 || rate <= 0 {
		return 0
	}

	w, _ := g.cells.Dims()
	amount := rate * duration
	var added float64
	for x := 0; x < w; x++ {
		added += g.addClamped(x, 0, amount)
	}

	// Trickle's transfer fraction is only stable over an hour or less
	for remaining := duration; remaining > 0; remaining -= secondsPerHour {
		g.Trickle(min(remaining, secondsPerHour))
	}
	return added
}

// Trickle moves a randomized fraction of every cell into the cell below it.
// Columns are processed bottom-up so content moves at most one row per call.
// Whatever would overfill the lower cell stays in the source; the grid total
// is unchanged.
func (g *MetaboliteGrid) Trickle(dt float64) {
	if dt <= 0 || g.TrickleRate <= 0 {
		return
	}

	w, d := g.cells.Dims()
	base := g.TrickleRate * dt
	for x := 0; x < w; x++ {
		for y := d - 2; y >= 0; y-- {
			src := g.cells.At(x, y)
			if src <= 0 {
				continue
			}
			moved := src * base * (0.5 + g.rng.Float64())
			if moved > src {
				moved = src
			}
			below := g.cells.At(x, y+1)
			if room := g.MaxCell - below; moved > room {
				moved = max(room, 0)
			}
			if moved == 0 {
				continue
			}
			g.cells.Set(x, y, src-moved)
			g.cells.Set(x, y+1, below+moved)
		}
	}
}

// Available returns the resource reachable through mask: the sum of the
// elementwise product of mask and grid. Mask values are clamped to [0, 1].
func (g *MetaboliteGrid) Available(mask mat.Matrix) float64 {
	w, d := g.cells.Dims()
	if r, c := mask.Dims(); r != w || c != d {
		panic(mat.ErrShape)
	}
	var sum float64
	for x := 0; x < w; x++ {
		for y := 0; y < d; y++ {
			sum += g.cells.At(x, y) * reachWeight(mask.At(x, y))
		}
	}
	return sum
}

// reachWeight clamps a mask value to [0, 1].
func reachWeight(m float64) float64 {
	return min(max(m, 0), 1)
}

// Drain removes min(amount, Available(mask)) from cells reachable through
// mask and returns the amount removed. Mask values are clamped to [0, 1].
// Cells with the smallest reachable share are exhausted first; the rest give
// up an equal share each.
func (g *MetaboliteGrid) Drain(amount float64, mask mat.Matrix) float64 {
	if amount <= 0 {
		return 0
	}
	w, d := g.cells.Dims()
	if r, c := mask.Dims(); r != w || c != d {
		panic(mat.ErrShape)
	}

	type share struct {
		x, y  int
		reach float64
	}
	shares := make([]share, 0, w*d)
	var available float64
	for x := 0; x < w; x++ {
		for y := 0; y < d; y++ {
			reach := g.cells.At(x, y) * reachWeight(mask.At(x, y))
			if reach <= 0 {
				continue
			}
			shares = append(shares, share{x: x, y: y, reach: reach})
			available += reach
		}
	}
	if len(shares) == 0 {
		return 0
	}

	if amount >= available {
		for _, s := range shares {
			g.cells.Set(s.x, s.y, g.cells.At(s.x, s.y)-s.reach)
		}
		return available
	}

	sort.Slice(shares, func(i, j int) bool { return shares[i].reach < shares[j].reach })

	remaining := amount
	var removed float64
	for i, s := range shares {
		avg := remaining / float64(len(shares)-i)
		take := s.reach
		if take > avg {
			take = avg
		}
		g.cells.Set(s.x, s.y, g.cells.At(s.x, s.y)-take)
		remaining -= take
		removed += take
	}
	return removed
}

// Cells returns a copy of the grid as [x][y].
func (g *MetaboliteGrid) Cells() [][]float64 {
	w, d := g.cells.Dims()
	out := make([][]float64, w)
	for x := 0; x < w; x++ {
		out[x] = mat.Row(make([]float64, d), x, g.cells)
	}
	return out
}

// SetCells replaces the grid content with data laid out as [x][y].
func (g *MetaboliteGrid) SetCells(data [][]float64) error {
	w, d := g.cells.Dims()
	if len(data) != w {
		return fmt.Errorf("%s grid: got %d columns, want %d", g.Kind, len(data), w)
	}
	for x, col := range data {
		if len(col) != d {
			return fmt.Errorf("%s grid: column %d has %d cells, want %d", g.Kind, x, len(col), d)
		}
		for y, v := range col {
			if v < 0 {
				return fmt.Errorf("%s grid cell (%d,%d) = %v: %w", g.Kind, x, y, v, ErrNegativeAmount)
			}
		}
	}
	for x, col := range data {
		g.cells.SetRow(x, col)
	}
	return nil
}

// RNGState returns the trickle jitter generator state.
func (g *MetaboliteGrid) RNGState() ([]byte, error) {
	return g.src.MarshalBinary()
}

// SetRNGState restores a state produced by RNGState.
func (g *MetaboliteGrid) SetRNGState(b []byte) error {
	return g.src.UnmarshalBinary(b)
}

func (g *MetaboliteGrid) contains(x, y int) bool {
	w, d := g.cells.Dims()
	return x >= 0 && x < w && y >= 0 && y < d
}

func (g *MetaboliteGrid) addClamped(x, y int, amount float64) float64 {
	cur := g.cells.At(x, y)
	next := cur + amount
	if next > g.MaxCell {
		next = max(g.MaxCell, cur)
	}
	g.cells.Set(x, y, next)
	return next - cur
}
