// Package growth builds and solves the per-step metabolic linear program that
// turns light, water and nitrate into organ biomass.
package growth

import (
	"github.com/pthm-cable/sprout/components"
	"github.com/pthm-cable/sprout/config"
)

// Compounds tracked per organ compartment.
const (
	compoundPhoton  = "photon"
	compoundCO2     = "co2"
	compoundCarbon  = "carb"
	compoundWater   = "h2o"
	compoundNitrate = "no3"
)

// Reaction names referenced outside the catalogue.
const (
	PhotonExchange  = "Photon_tx"
	CO2Exchange     = "CO2_tx"
	WaterExchange   = "H2O_tx"
	NitrateExchange = "Nitrate_tx"
	Photosynthesis  = "Photosynthesis"
	StarchOut       = "Starch_out"
	StarchIn        = "Starch_in"
)

var compartmentSuffix = [components.NumOrganKinds]string{"l", "s", "r", "sd"}

// Metabolite returns the compartment-qualified metabolite name, e.g. "carb_r".
func Metabolite(compound string, organ components.OrganKind) string {
	return compound + "_" + compartmentSuffix[organ]
}

// BiomassReaction returns the name of the biomass reaction of an organ kind.
func BiomassReaction(organ components.OrganKind) string {
	return "Biomass_" + organ.String()
}

// Transfer moves one compound between two organ compartments. Its
// coefficient on the destination side is the source/destination mass ratio,
// so one unit of flux per gram of source arrives as the same absolute amount.
type Transfer struct {
	Compound string
	From     components.OrganKind
	To       components.OrganKind
}

// Reaction is one flux variable of the network. Fluxes are in micromol per
// gram of the owning organ per second.
type Reaction struct {
	Name  string
	Owner components.OrganKind

	// Stoich holds fixed coefficients by metabolite; negative is consumed.
	Stoich map[string]float64

	// Transfer is set for mass-normalized inter-organ reactions.
	Transfer *Transfer

	// Objective marks reactions whose flux is maximized.
	Objective bool
}

// Catalogue is the fixed reaction network. It is built once and shared by
// every step's problem.
type Catalogue struct {
	Metabolites []string
	Reactions   []Reaction

	metIndex map[string]int
	rxnIndex map[string]int
}

// NewCatalogue builds the network from growth constants.
func NewCatalogue(cfg config.GrowthConfig) *Catalogue {
	c := &Catalogue{metIndex: map[string]int{}, rxnIndex: map[string]int{}}

	c.addMetabolite(Metabolite(compoundPhoton, components.KindLeaf))
	c.addMetabolite(Metabolite(compoundCO2, components.KindLeaf))
	for _, compound := range []string{compoundCarbon, compoundWater, compoundNitrate} {
		for _, kind := range components.OrganKinds {
			c.addMetabolite(Metabolite(compound, kind))
		}
	}

	leaf, stem, root, seed := components.KindLeaf, components.KindStem, components.KindRoot, components.KindSeed

	c.addReaction(Reaction{Name: PhotonExchange, Owner: leaf,
		Stoich: map[string]float64{Metabolite(compoundPhoton, leaf): 1}})
	c.addReaction(Reaction{Name: CO2Exchange, Owner: leaf,
		Stoich: map[string]float64{Metabolite(compoundCO2, leaf): 1}})
	c.addReaction(Reaction{Name: WaterExchange, Owner: root,
		Stoich: map[string]float64{Metabolite(compoundWater, root): 1}})
	c.addReaction(Reaction{Name: NitrateExchange, Owner: root,
		Stoich: map[string]float64{Metabolite(compoundNitrate, root): 1}})

	c.addReaction(Reaction{Name: Photosynthesis, Owner: leaf, Stoich: map[string]float64{
		Metabolite(compoundCO2, leaf):    -1,
		Metabolite(compoundWater, leaf):  -1,
		Metabolite(compoundPhoton, leaf): -cfg.PhotonsPerCarbon,
		Metabolite(compoundCarbon, leaf): 1,
	}})

	transfers := []struct {
		name string
		tr   Transfer
	}{
		{"H2O_root_stem", Transfer{compoundWater, root, stem}},
		{"H2O_stem_leaf", Transfer{compoundWater, stem, leaf}},
		{"H2O_stem_seed", Transfer{compoundWater, stem, seed}},
		{"Nitrate_root_stem", Transfer{compoundNitrate, root, stem}},
		{"Nitrate_stem_leaf", Transfer{compoundNitrate, stem, leaf}},
		{"Nitrate_stem_seed", Transfer{compoundNitrate, stem, seed}},
		{"Carbon_leaf_stem", Transfer{compoundCarbon, leaf, stem}},
		{"Carbon_stem_root", Transfer{compoundCarbon, stem, root}},
		{"Carbon_stem_seed", Transfer{compoundCarbon, stem, seed}},
	}
	for _, t := range transfers {
		tr := t.tr
		c.addReaction(Reaction{Name: t.name, Owner: tr.From, Transfer: &tr})
	}

	for _, kind := range components.OrganKinds {
		c.addReaction(Reaction{Name: BiomassReaction(kind), Owner: kind, Objective: true, Stoich: map[string]float64{
			Metabolite(compoundCarbon, kind):  -cfg.CarbonPerBiomass,
			Metabolite(compoundNitrate, kind): -cfg.NitratePerBiomass,
			Metabolite(compoundWater, kind):   -cfg.WaterPerBiomass,
		}})
	}

	c.addReaction(Reaction{Name: StarchOut, Owner: leaf, Objective: true,
		Stoich: map[string]float64{Metabolite(compoundCarbon, leaf): -1}})
	c.addReaction(Reaction{Name: StarchIn, Owner: leaf,
		Stoich: map[string]float64{Metabolite(compoundCarbon, leaf): 1}})

	return c
}

func (c *Catalogue) addMetabolite(name string) {
	c.metIndex[name] = len(c.Metabolites)
	c.Metabolites = append(c.Metabolites, name)
}

func (c *Catalogue) addReaction(r Reaction) {
	c.rxnIndex[r.Name] = len(c.Reactions)
	c.Reactions = append(c.Reactions, r)
}

// Index returns the variable index of a reaction.
func (c *Catalogue) Index(name string) (int, bool) {
	i, ok := c.rxnIndex[name]
	return i, ok
}

// Names returns the reaction names in variable order.
func (c *Catalogue) Names() []string {
	names := make([]string, len(c.Reactions))
	for i, r := range c.Reactions {
		names[i] = r.Name
	}
	return names
}
