package growth

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/pthm-cable/sprout/components"
)

// Allocation holds the player's allocation percentages, each in [0,100].
type Allocation struct {
	Leaf   float64 `json:"leaf" yaml:"leaf"`
	Stem   float64 `json:"stem" yaml:"stem"`
	Root   float64 `json:"root" yaml:"root"`
	Seed   float64 `json:"seed" yaml:"seed"`
	Starch float64 `json:"starch" yaml:"starch"`
}

// Organ returns the percentage for an organ kind.
func (a Allocation) Organ(kind components.OrganKind) float64 {
	switch kind {
	case components.KindLeaf:
		return a.Leaf
	case components.KindStem:
		return a.Stem
	case components.KindRoot:
		return a.Root
	case components.KindSeed:
		return a.Seed
	}
	return 0
}

// Validate checks every percentage lies in [0,100].
func (a Allocation) Validate() error {
	for _, f := range []struct {
		name string
		v    float64
	}{{"leaf", a.Leaf}, {"stem", a.Stem}, {"root", a.Root}, {"seed", a.Seed}, {"starch", a.Starch}} {
		if !(f.v >= 0 && f.v <= 100) {
			return fmt.Errorf("allocation %s = %v outside [0,100]", f.name, f.v)
		}
	}
	return nil
}

// Limits are the per-step exchange ceilings, in micromol per gram of the
// exchanging organ per second.
type Limits struct {
	Photon      float64 // per gram leaf
	Water       float64 // per gram root
	Nitrate     float64 // per gram root
	StarchIn    float64 // per gram leaf
	StomataOpen bool
	FluxLimit   float64 // |bound| for internal reactions and CO2 exchange
}

// Ratio is the equality CoefA*v[A] - CoefB*v[B] = 0.
type Ratio struct {
	A     string  `json:"a"`
	B     string  `json:"b"`
	CoefA float64 `json:"coef_a"`
	CoefB float64 `json:"coef_b"`
}

// Problem is one step's linear program: maximize Objective·v subject to
// S·v = 0, the ratio equalities and Lower <= v <= Upper. A Problem is never
// modified after BuildProblem returns it.
type Problem struct {
	Variables   []string
	Metabolites []string
	Lower       []float64
	Upper       []float64
	S           *mat.Dense // metabolites x variables
	Ratios      []Ratio
	Objective   []float64
}

// Bounds returns the variable bounds keyed by name.
func (p *Problem) Bounds() map[string][2]float64 {
	out := make(map[string][2]float64, len(p.Variables))
	for i, name := range p.Variables {
		out[name] = [2]float64{p.Lower[i], p.Upper[i]}
	}
	return out
}

// BuildProblem assembles the step's linear program from the catalogue,
// current organ masses (grams, by kind), allocation and exchange limits.
//
// Transfer coefficients are rescaled by the source/destination mass ratio.
// Reactions owned by an organ without mass, transfers into one, and the
// production reactions of zero-percent organs are pinned to [0,0]. The
// remaining producers are tied to the first of them by one ratio each so
// that absolute production follows the allocation percentages.
func BuildProblem(cat *Catalogue, masses [components.NumOrganKinds]float64, alloc Allocation, lim Limits) *Problem {
	nv := len(cat.Reactions)
	p := &Problem{
		Variables:   cat.Names(),
		Metabolites: append([]string(nil), cat.Metabolites...),
		Lower:       make([]float64, nv),
		Upper:       make([]float64, nv),
		S:           mat.NewDense(len(cat.Metabolites), nv, nil),
		Objective:   make([]float64, nv),
	}
	L := lim.FluxLimit

	for j, r := range cat.Reactions {
		if r.Objective {
			p.Objective[j] = 1
		}
		for met, coef := range r.Stoich {
			p.S.Set(cat.metIndex[met], j, coef)
		}
		p.Upper[j] = L

		tr := r.Transfer
		if tr != nil {
			p.S.Set(cat.metIndex[Metabolite(tr.Compound, tr.From)], j, -1)
		}
		if masses[r.Owner] <= 0 {
			p.Upper[j] = 0
			continue
		}
		if tr != nil {
			if masses[tr.To] <= 0 {
				p.Upper[j] = 0
				continue
			}
			p.S.Set(cat.metIndex[Metabolite(tr.Compound, tr.To)], j, masses[tr.From]/masses[tr.To])
		}
	}

	setBounds := func(name string, lo, hi float64) {
		j := cat.rxnIndex[name]
		if masses[cat.Reactions[j].Owner] <= 0 {
			return
		}
		p.Lower[j], p.Upper[j] = lo, max(hi, lo)
	}
	setBounds(PhotonExchange, 0, lim.Photon)
	setBounds(WaterExchange, 0, lim.Water)
	setBounds(NitrateExchange, 0, lim.Nitrate)
	setBounds(StarchIn, 0, lim.StarchIn)
	if lim.StomataOpen {
		setBounds(CO2Exchange, -L, L)
	} else {
		setBounds(CO2Exchange, -L, 0)
	}

	type producer struct {
		name    string
		mass    float64
		percent float64
	}
	var producers []producer
	for _, kind := range components.OrganKinds {
		producers = append(producers, producer{BiomassReaction(kind), masses[kind], alloc.Organ(kind)})
	}
	producers = append(producers, producer{StarchOut, masses[components.KindLeaf], alloc.Starch})

	var ref *producer
	for i := range producers {
		pr := &producers[i]
		if pr.percent <= 0 || pr.mass <= 0 {
			j := cat.rxnIndex[pr.name]
			p.Lower[j], p.Upper[j] = 0, 0
			continue
		}
		if ref == nil {
			ref = pr
			continue
		}
		p.Ratios = append(p.Ratios, Ratio{
			A:     ref.name,
			B:     pr.name,
			CoefA: pr.percent * ref.mass,
			CoefB: ref.percent * pr.mass,
		})
	}
	return p
}
