// Package config provides configuration loading and access for the simulation.
package config

import (
	_ "embed"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all simulation configuration parameters.
type Config struct {
	Simulation    SimulationConfig    `yaml:"simulation"`
	Grid          GridConfig          `yaml:"grid"`
	Plant         PlantConfig         `yaml:"plant"`
	Pools         PoolsConfig         `yaml:"pools"`
	Growth        GrowthConfig        `yaml:"growth"`
	Uptake        UptakeConfig        `yaml:"uptake"`
	Light         LightConfig         `yaml:"light"`
	Transpiration TranspirationConfig `yaml:"transpiration"`
	Roots         RootsConfig         `yaml:"roots"`
	Weather       WeatherConfig       `yaml:"weather"`
	Telemetry     TelemetryConfig     `yaml:"telemetry"`
	Persistence   PersistenceConfig   `yaml:"persistence"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// SimulationConfig holds tick timing parameters.
type SimulationConfig struct {
	ResolutionSeconds float64 `yaml:"resolution_seconds"` // Fixed step size; fast-forward runs repeated steps of this size
	StartHour         float64 `yaml:"start_hour"`         // Hour of day at simulation start
	Seed              int64   `yaml:"seed"`               // RNG seed for grids, roots and weather (0 = time-based)
}

// GridConfig holds soil grid geometry and resource capacities.
type GridConfig struct {
	Width          int     `yaml:"width"`            // Cells across
	Depth          int     `yaml:"depth"`            // Cells down (row 0 = surface)
	CellSizeCM     float64 `yaml:"cell_size_cm"`     // Edge length of one cell
	WaterMaxCell   float64 `yaml:"water_max_cell"`   // micromol
	NitrateMaxCell float64 `yaml:"nitrate_max_cell"` // micromol
	WaterInitial   float64 `yaml:"water_initial"`    // micromol per cell at start
	NitrateMean    float64 `yaml:"nitrate_mean"`     // Mean initial nitrate per cell
	NitrateSpread  float64 `yaml:"nitrate_spread"`   // Noise amplitude as a fraction of the mean
	NoiseScale     float64 `yaml:"noise_scale"`      // Noise frequency per cell
	TrickleRate    float64 `yaml:"trickle_rate"`     // Fraction of a cell moved down per second
	RainPerMM      float64 `yaml:"rain_per_mm"`      // micromol added to a surface cell per mm precipitation
}

// OrganConfig describes the starting organ and growth cap for one organ kind.
type OrganConfig struct {
	InitialMass float64 `yaml:"initial_mass"` // grams (0 = kind starts without an organ)
	MaxMass     float64 `yaml:"max_mass"`     // per-organ cap in grams
}

// PlantConfig holds the fresh-plant setup.
type PlantConfig struct {
	Leaf    OrganConfig `yaml:"leaf"`
	Stem    OrganConfig `yaml:"stem"`
	Root    OrganConfig `yaml:"root"`
	Seed    OrganConfig `yaml:"seed"`
	OriginX float64     `yaml:"origin_x"` // Stem base in grid cells from the left edge
}

// PoolConfig holds conversion and draw-rate parameters for one resource pool.
type PoolConfig struct {
	Initial            float64 `yaml:"initial"`               // micromol at plant creation (may exceed max)
	FreshWeightFactor  float64 `yaml:"fresh_weight_factor"`   // fresh grams per dry gram
	StorageFraction    float64 `yaml:"storage_fraction"`      // fraction of fresh weight usable as storage
	MolPerGram         float64 `yaml:"mol_per_gram"`          // micromol per gram of stored substance
	PerStepFraction    float64 `yaml:"per_step_fraction"`     // max fraction of available drawable per step
	PerStepMaxFraction float64 `yaml:"per_step_max_fraction"` // max fraction of pool capacity drawable per step
}

// PoolsConfig holds per-resource pool configuration.
type PoolsConfig struct {
	Starch  PoolConfig `yaml:"starch"`
	Water   PoolConfig `yaml:"water"`
	Nitrate PoolConfig `yaml:"nitrate"`
}

// GrowthConfig holds reaction network and solver constants.
type GrowthConfig struct {
	PhotonsPerCarbon  float64 `yaml:"photons_per_carbon"`  // photons consumed per fixed carbohydrate unit
	CarbonPerBiomass  float64 `yaml:"carbon_per_biomass"`  // carbohydrate units per biomass unit
	NitratePerBiomass float64 `yaml:"nitrate_per_biomass"` // nitrate per biomass unit
	WaterPerBiomass   float64 `yaml:"water_per_biomass"`   // water per biomass unit
	GramsPerUnit      float64 `yaml:"grams_per_unit"`      // grams of dry mass per micromol biomass unit
	FluxLimit         float64 `yaml:"flux_limit"`          // default |bound| for internal reactions
	Tolerance         float64 `yaml:"tolerance"`           // simplex tolerance
}

// MichaelisMenten holds saturating uptake kinetics.
type MichaelisMenten struct {
	VMax float64 `yaml:"v_max"` // micromol per gram root per second
	KM   float64 `yaml:"k_m"`   // micromol reachable in soil at half-saturation
}

// UptakeConfig holds root uptake kinetics per soil resource.
type UptakeConfig struct {
	Water   MichaelisMenten `yaml:"water"`
	Nitrate MichaelisMenten `yaml:"nitrate"`
}

// LightConfig holds the day/night irradiance curve.
type LightConfig struct {
	MaxPFD           float64 `yaml:"max_pfd"`            // micromol photons per m^2 per second at solar noon
	Sunrise          float64 `yaml:"sunrise"`            // hour
	Sunset           float64 `yaml:"sunset"`             // hour
	SpecificLeafArea float64 `yaml:"specific_leaf_area"` // m^2 leaf per gram leaf
	QuadraturePoints int     `yaml:"quadrature_points"`  // points for the irradiance integral
}

// TranspirationConfig holds water loss parameters.
type TranspirationConfig struct {
	WaterPerCO2    float64 `yaml:"water_per_co2"`   // water lost per CO2 taken up with open stomata
	CuticularRate  float64 `yaml:"cuticular_rate"`  // micromol per gram leaf per second with closed stomata
	ReferenceVPD   float64 `yaml:"reference_vpd"`   // kPa at which the deficit factor is 1
	MaxDeficitMult float64 `yaml:"max_deficit_mult"` // cap on the deficit factor
}

// RootTierConfig describes one depth tier of the root generator.
// Lengths are in cm, masses in grams of root biomass.
type RootTierConfig struct {
	BasalLength     float64 `yaml:"basal_length"`
	BranchingLength float64 `yaml:"branching_length"`
	ApexLength      float64 `yaml:"apex_length"`
	BasalMass       float64 `yaml:"basal_mass"`
	BranchingMass   float64 `yaml:"branching_mass"`
	ApexMass        float64 `yaml:"apex_mass"`
	Branches        int     `yaml:"branches"` // branch slots on the branching segment
}

// RootsConfig holds procedural root growth parameters.
type RootsConfig struct {
	Tiers            []RootTierConfig `yaml:"tiers"`
	Candidates       int              `yaml:"candidates"`        // random directions scored per branch
	HeadingWeight    float64          `yaml:"heading_weight"`    // score weight toward the parent heading
	DownWeight       float64          `yaml:"down_weight"`       // score weight toward gravity
	EdgeWidth        float64          `yaml:"edge_width"`        // fraction of a cell where a neighbor is partially reachable
	InitialDirection [2]float64       `yaml:"initial_direction"` // first tree heading (x, y), y down
}

// WeatherConfig holds the procedural weather feed parameters.
type WeatherConfig struct {
	BaseTemperature   float64 `yaml:"base_temperature"`   // Celsius daily mean
	DailyAmplitude    float64 `yaml:"daily_amplitude"`    // Celsius peak-to-mean
	NoiseAmplitude    float64 `yaml:"noise_amplitude"`    // Celsius of noise on top
	BaseHumidity      float64 `yaml:"base_humidity"`      // percent
	HumiditySpread    float64 `yaml:"humidity_spread"`    // percent
	RainThreshold     float64 `yaml:"rain_threshold"`     // noise level above which it rains
	MaxPrecipitation  float64 `yaml:"max_precipitation"`  // mm per hour at full rain
	NoiseHoursPerUnit float64 `yaml:"noise_hours_per_unit"` // hours per unit of noise input
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	StatsWindow         float64 `yaml:"stats_window"` // simulated seconds per stats window
	PerfCollectorWindow int     `yaml:"perf_collector_window"`
}

// PersistenceConfig holds save-file defaults.
type PersistenceConfig struct {
	SnapshotDir string `yaml:"snapshot_dir"`
	Database    string `yaml:"database"`
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	DayLength     float64 // Light.Sunset - Light.Sunrise, hours
	StepsPerHour  float64 // 3600 / Simulation.ResolutionSeconds
	GridWidthCM   float64 // Grid.Width * Grid.CellSizeCM
	GridDepthCM   float64 // Grid.Depth * Grid.CellSizeCM
	InitialDirLen float64 // length of Roots.InitialDirection before normalization
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	// Start with embedded defaults
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	// Load user config if provided
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Compute derived values
	cfg.computeDerived()

	return cfg, nil
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	cp := *c
	cp.Roots.Tiers = append([]RootTierConfig(nil), c.Roots.Tiers...)
	return &cp
}

// Validate checks values that would make the simulation ill-defined.
func (c *Config) Validate() error {
	if c.Simulation.ResolutionSeconds <= 0 {
		return fmt.Errorf("simulation.resolution_seconds must be > 0, got %v", c.Simulation.ResolutionSeconds)
	}
	if c.Grid.Width <= 0 || c.Grid.Depth <= 0 {
		return fmt.Errorf("grid dimensions must be positive, got %dx%d", c.Grid.Width, c.Grid.Depth)
	}
	if c.Grid.CellSizeCM <= 0 {
		return fmt.Errorf("grid.cell_size_cm must be > 0")
	}
	if c.Light.Sunset <= c.Light.Sunrise {
		return fmt.Errorf("light.sunset (%v) must be after light.sunrise (%v)", c.Light.Sunset, c.Light.Sunrise)
	}
	if len(c.Roots.Tiers) == 0 {
		return fmt.Errorf("roots.tiers must not be empty")
	}
	if c.Growth.GramsPerUnit <= 0 {
		return fmt.Errorf("growth.grams_per_unit must be > 0")
	}
	return nil
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	c.Derived.DayLength = c.Light.Sunset - c.Light.Sunrise
	c.Derived.StepsPerHour = 3600 / c.Simulation.ResolutionSeconds
	c.Derived.GridWidthCM = float64(c.Grid.Width) * c.Grid.CellSizeCM
	c.Derived.GridDepthCM = float64(c.Grid.Depth) * c.Grid.CellSizeCM

	d := c.Roots.InitialDirection
	c.Derived.InitialDirLen = math.Hypot(d[0], d[1])
	if c.Derived.InitialDirLen == 0 {
		c.Roots.InitialDirection = [2]float64{0, 1}
		c.Derived.InitialDirLen = 1
	}

	// The deepest tier never branches.
	c.Roots.Tiers[len(c.Roots.Tiers)-1].Branches = 0

	if c.Light.QuadraturePoints < 2 {
		c.Light.QuadraturePoints = 16
	}
	if c.Roots.Candidates < 1 {
		c.Roots.Candidates = 1
	}
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
