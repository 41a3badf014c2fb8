package systems

import (
	"math"

	"github.com/pthm-cable/sprout/config"
)

// SaturationDeficit returns the vapour pressure deficit in kPa for an air
// temperature in Celsius and relative humidity in percent (Tetens).
func SaturationDeficit(tempC, humidity float64) float64 {
	es := 0.6108 * math.Exp(17.27*tempC/(tempC+237.3))
	rh := min(max(humidity, 0), 100)
	return es * (1 - rh/100)
}

// Transpiration tracks leaf water loss. Loss with open stomata follows the
// CO2 uptake of the previous step.
type Transpiration struct {
	cfg config.TranspirationConfig

	// LastCO2Flux is the CO2 uptake of the last solved step, micromol per
	// gram leaf per second.
	LastCO2Flux float64
}

// NewTranspiration creates a transpiration model from config.
func NewTranspiration(cfg config.TranspirationConfig) *Transpiration {
	return &Transpiration{cfg: cfg}
}

// DeficitFactor scales water loss by the vapour pressure deficit relative to
// the reference deficit, capped at MaxDeficitMult.
func (t *Transpiration) DeficitFactor(tempC, humidity float64) float64 {
	if t.cfg.ReferenceVPD <= 0 {
		return 1
	}
	return min(SaturationDeficit(tempC, humidity)/t.cfg.ReferenceVPD, t.cfg.MaxDeficitMult)
}

// Rate returns the water loss in micromol per gram leaf per second.
func (t *Transpiration) Rate(stomataOpen bool, tempC, humidity float64) float64 {
	f := t.DeficitFactor(tempC, humidity)
	if !stomataOpen {
		return t.cfg.CuticularRate * f
	}
	return max(t.LastCO2Flux, 0)*t.cfg.WaterPerCO2*f + t.cfg.CuticularRate*f
}

// Loss returns the absolute water loss in micromol for a leaf mass over seconds.
func (t *Transpiration) Loss(stomataOpen bool, tempC, humidity, leafMass, seconds float64) float64 {
	return t.Rate(stomataOpen, tempC, humidity) * leafMass * seconds
}
