package growth

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

// ErrInfeasible reports a problem with no feasible flux vector. BuildProblem
// keeps the zero vector feasible, so seeing it means the bounds were built
// wrong.
var ErrInfeasible = lp.ErrInfeasible

// Solution is the solver's answer for one Problem.
type Solution struct {
	Objective float64
	Values    []float64 // by variable index
	Fluxes    map[string]float64
}

// Solver solves growth problems.
type Solver interface {
	Solve(p *Problem) (*Solution, error)
}

// SolveError carries the bounds and ratios of a problem that failed to solve.
type SolveError struct {
	Err    error
	Bounds map[string][2]float64
	Ratios []Ratio
}

func (e *SolveError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "growth problem: %v (", e.Err)
	first := true
	for name, bd := range e.Bounds {
		if bd[0] == 0 && bd[1] == 0 {
			continue
		}
		if !first {
			b.WriteString(", ")
		}
		first = false
		fmt.Fprintf(&b, "%s=[%g,%g]", name, bd[0], bd[1])
	}
	fmt.Fprintf(&b, "; %d ratios)", len(e.Ratios))
	return b.String()
}

func (e *SolveError) Unwrap() error { return e.Err }

func newSolveError(p *Problem, err error) *SolveError {
	return &SolveError{Err: err, Bounds: p.Bounds(), Ratios: append([]Ratio(nil), p.Ratios...)}
}

// SimplexSolver solves problems with gonum's simplex method.
//
// Every constraint is passed as a pair of inequalities: bounds as +-identity
// rows, steady state as S·v <= 0 and -S·v <= 0, ratios likewise. Each row then
// gets its own slack column in standard form, which keeps the constraint
// matrix at full row rank whatever the masses and bounds are.
type SimplexSolver struct {
	Tolerance float64
}

// Solve maximizes the problem objective.
func (s SimplexSolver) Solve(p *Problem) (*Solution, error) {
	n := len(p.Variables)
	for i := 0; i < n; i++ {
		if p.Lower[i] > p.Upper[i] {
			return nil, newSolveError(p, fmt.Errorf("%s lower %g above upper %g: %w",
				p.Variables[i], p.Lower[i], p.Upper[i], ErrInfeasible))
		}
	}

	index := make(map[string]int, n)
	for i, name := range p.Variables {
		index[name] = i
	}

	nm, _ := p.S.Dims()
	rows := 2*n + 2*nm + 2*len(p.Ratios)
	g := mat.NewDense(rows, n, nil)
	h := make([]float64, rows)

	r := 0
	for i := 0; i < n; i++ {
		g.Set(r, i, 1)
		h[r] = p.Upper[i]
		g.Set(r+1, i, -1)
		h[r+1] = -p.Lower[i]
		r += 2
	}
	for m := 0; m < nm; m++ {
		row := p.S.RawRowView(m)
		for j, coef := range row {
			if coef == 0 {
				continue
			}
			g.Set(r, j, coef)
			g.Set(r+1, j, -coef)
		}
		r += 2
	}
	for _, ratio := range p.Ratios {
		a, okA := index[ratio.A]
		b, okB := index[ratio.B]
		if !okA || !okB {
			return nil, newSolveError(p, fmt.Errorf("ratio %s:%s references unknown variable", ratio.A, ratio.B))
		}
		g.Set(r, a, ratio.CoefA)
		g.Set(r, b, -ratio.CoefB)
		g.Set(r+1, a, -ratio.CoefA)
		g.Set(r+1, b, ratio.CoefB)
		r += 2
	}

	// lp minimizes, so negate the objective.
	c := make([]float64, n)
	floats.ScaleTo(c, -1, p.Objective)

	cNew, aNew, bNew := lp.Convert(c, g, h, nil, nil)
	_, x, err := lp.Simplex(cNew, aNew, bNew, s.Tolerance, nil)
	if err != nil {
		return nil, newSolveError(p, err)
	}

	// Convert splits each free variable into positive and negative parts.
	v := make([]float64, n)
	floats.SubTo(v, x[:n], x[n:2*n])
	for i := range v {
		v[i] = min(max(v[i], p.Lower[i]), p.Upper[i])
	}

	sol := &Solution{
		Objective: floats.Dot(p.Objective, v),
		Values:    v,
		Fluxes:    make(map[string]float64, n),
	}
	for i, name := range p.Variables {
		sol.Fluxes[name] = v[i]
	}
	return sol, nil
}
