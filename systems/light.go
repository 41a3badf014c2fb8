package systems

import (
	"math"

	"gonum.org/v1/gonum/integrate/quad"

	"github.com/pthm-cable/sprout/config"
)

// Light is the day/night photon flux curve: a half sine between sunrise and
// sunset, zero at night.
type Light struct {
	cfg config.LightConfig
}

// NewLight creates a light curve from config.
func NewLight(cfg config.LightConfig) *Light {
	return &Light{cfg: cfg}
}

// PFD returns the photon flux density (micromol/m^2/s) at the given hour.
// Hours wrap every 24.
func (l *Light) PFD(hour float64) float64 {
	h := math.Mod(hour, 24)
	if h < 0 {
		h += 24
	}
	if h <= l.cfg.Sunrise || h >= l.cfg.Sunset {
		return 0
	}
	return l.cfg.MaxPFD * math.Sin(math.Pi*(h-l.cfg.Sunrise)/(l.cfg.Sunset-l.cfg.Sunrise))
}

// Integrate returns the photon dose (micromol/m^2) between two clock times in
// seconds. Each daylight interval overlapping the window is integrated
// separately so the night kinks do not degrade the quadrature.
func (l *Light) Integrate(t0, t1 float64) float64 {
	if t1 <= t0 {
		return 0
	}
	n := l.cfg.QuadraturePoints
	pfd := func(sec float64) float64 { return l.PFD(sec / secondsPerHour) }

	var total float64
	firstDay := math.Floor(t0 / (24 * secondsPerHour))
	for day := firstDay; day*24*secondsPerHour < t1; day++ {
		dayStart := day * 24 * secondsPerHour
		a := max(t0, dayStart+l.cfg.Sunrise*secondsPerHour)
		b := min(t1, dayStart+l.cfg.Sunset*secondsPerHour)
		if b <= a {
			continue
		}
		total += quad.Fixed(pfd, a, b, n, nil, 0)
	}
	return total
}

// PerGramPerSecond converts the dose over [t0, t1] into photons per gram leaf
// per second using the specific leaf area.
func (l *Light) PerGramPerSecond(t0, t1 float64) float64 {
	if t1 <= t0 {
		return 0
	}
	return l.cfg.SpecificLeafArea * l.Integrate(t0, t1) / (t1 - t0)
}
