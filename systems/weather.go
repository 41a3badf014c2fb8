package systems

import (
	"math"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/pthm-cable/sprout/config"
)

// WeatherFeed supplies the air state for an hour of simulated time.
// Precipitation is in mm per hour.
type WeatherFeed interface {
	State(hour float64) (temperature, humidity, precipitation float64)
}

// Weather is a procedural WeatherFeed: a diurnal temperature sine with
// seeded noise on top, humidity moving against temperature, and rain where
// a slow noise channel rises above a threshold.
type Weather struct {
	cfg  config.WeatherConfig
	Seed int64

	tempNoise opensimplex.Noise
	humNoise  opensimplex.Noise
	rainNoise opensimplex.Noise
}

// NewWeather creates a procedural weather feed.
func NewWeather(cfg config.WeatherConfig, seed int64) *Weather {
	return &Weather{
		cfg:       cfg,
		Seed:      seed,
		tempNoise: opensimplex.NewNormalized(seed),
		humNoise:  opensimplex.NewNormalized(seed + 1),
		rainNoise: opensimplex.NewNormalized(seed + 2),
	}
}

// State returns (temperature C, relative humidity %, precipitation mm/h).
func (w *Weather) State(hour float64) (float64, float64, float64) {
	u := hour / max(w.cfg.NoiseHoursPerUnit, 1e-9)

	// Warmest mid-afternoon.
	diurnal := math.Sin(2 * math.Pi * (hour - 9) / 24)

	tn := octaveNoise(w.tempNoise, u, 0, 2, 1, 0.5)
	temperature := w.cfg.BaseTemperature + w.cfg.DailyAmplitude*diurnal + w.cfg.NoiseAmplitude*(2*tn-1)

	hn := octaveNoise(w.humNoise, u, 0, 2, 1, 0.5)
	humidity := w.cfg.BaseHumidity - w.cfg.HumiditySpread*0.5*diurnal + w.cfg.HumiditySpread*(hn-0.5)
	humidity = min(max(humidity, 0), 100)

	var precipitation float64
	if rn := w.rainNoise.Eval2(u*0.5, 0); rn > w.cfg.RainThreshold && w.cfg.RainThreshold < 1 {
		precipitation = (rn - w.cfg.RainThreshold) / (1 - w.cfg.RainThreshold) * w.cfg.MaxPrecipitation
		humidity = max(humidity, 90)
	}
	return temperature, humidity, precipitation
}
