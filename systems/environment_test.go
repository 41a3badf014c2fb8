package systems

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm-cable/sprout/config"
)

type fixedWeather struct {
	temp, hum, precip float64
}

func (f fixedWeather) State(float64) (float64, float64, float64) {
	return f.temp, f.hum, f.precip
}

func TestLightNightIsDark(t *testing.T) {
	l := NewLight(config.Cfg().Light)

	assert.Equal(t, 0.0, l.PFD(0))
	assert.Equal(t, 0.0, l.PFD(3))
	assert.Equal(t, 0.0, l.PFD(23))
	assert.Equal(t, 0.0, l.PFD(-1))
	assert.Greater(t, l.PFD(12), 0.0)
	assert.Equal(t, l.PFD(13), l.PFD(13+48))

	assert.Equal(t, 0.0, l.Integrate(0, 5*3600))
	assert.Equal(t, 0.0, l.PerGramPerSecond(21*3600, 23*3600))
}

func TestLightIntegralMatchesClosedForm(t *testing.T) {
	cfg := config.Cfg().Light
	l := NewLight(cfg)

	dayLen := (cfg.Sunset - cfg.Sunrise) * 3600
	want := cfg.MaxPFD * dayLen * 2 / math.Pi

	assert.InEpsilon(t, want, l.Integrate(0, 24*3600), 1e-9)
	// Two days across midnight
	assert.InEpsilon(t, 2*want, l.Integrate(12*3600, 60*3600), 1e-9)
	// Additive over a split window
	whole := l.Integrate(10*3600, 14*3600)
	parts := l.Integrate(10*3600, 12.5*3600) + l.Integrate(12.5*3600, 14*3600)
	assert.InEpsilon(t, whole, parts, 1e-9)
}

func TestLightPerGramPerSecond(t *testing.T) {
	cfg := config.Cfg().Light
	l := NewLight(cfg)

	noon := 12 * 3600.0
	got := l.PerGramPerSecond(noon-1, noon+1)
	assert.InEpsilon(t, cfg.SpecificLeafArea*l.PFD(12), got, 1e-6)
	assert.Equal(t, 0.0, l.PerGramPerSecond(noon, noon))
}

func TestWeatherDeterministic(t *testing.T) {
	cfg := config.Cfg().Weather
	a := NewWeather(cfg, 5)
	b := NewWeather(cfg, 5)
	c := NewWeather(cfg, 6)

	differs := false
	for h := 0.0; h < 72; h += 0.5 {
		ta, ha, pa := a.State(h)
		tb, hb, pb := b.State(h)
		assert.Equal(t, ta, tb)
		assert.Equal(t, ha, hb)
		assert.Equal(t, pa, pb)

		assert.GreaterOrEqual(t, ha, 0.0)
		assert.LessOrEqual(t, ha, 100.0)
		assert.GreaterOrEqual(t, pa, 0.0)
		assert.LessOrEqual(t, pa, cfg.MaxPrecipitation)

		if tc, _, _ := c.State(h); tc != ta {
			differs = true
		}
	}
	assert.True(t, differs, "different seeds should give different weather")
}

func TestSaturationDeficit(t *testing.T) {
	// Tetens at 20C: es ~ 2.338 kPa
	assert.InDelta(t, 2.338, SaturationDeficit(20, 0), 1e-3)
	assert.InDelta(t, 2.338*0.4, SaturationDeficit(20, 60), 1e-3)
	assert.Equal(t, 0.0, SaturationDeficit(20, 100))
	assert.Equal(t, 0.0, SaturationDeficit(20, 140))
}

func TestTranspiration(t *testing.T) {
	cfg := config.Cfg().Transpiration
	tr := NewTranspiration(cfg)
	f := tr.DeficitFactor(20, 60)
	require.Greater(t, f, 0.0)

	closed := tr.Rate(false, 20, 60)
	assert.InDelta(t, cfg.CuticularRate*f, closed, 1e-12)

	tr.LastCO2Flux = 2
	open := tr.Rate(true, 20, 60)
	assert.InDelta(t, (2*cfg.WaterPerCO2+cfg.CuticularRate)*f, open, 1e-9)
	assert.Equal(t, closed, tr.Rate(false, 20, 60), "closed stomata ignore CO2 uptake")

	assert.InDelta(t, open*0.1*60, tr.Loss(true, 20, 60, 0.1, 60), 1e-9)

	// Dry heat is capped
	assert.Equal(t, cfg.MaxDeficitMult, tr.DeficitFactor(45, 0))
}

func TestEnvironmentWeathering(t *testing.T) {
	cfg := config.Cfg()
	env, err := NewEnvironment(cfg, 11)
	require.NoError(t, err)
	assert.Equal(t, cfg.Simulation.StartHour, env.Hour())

	waterBefore := env.Water.Total()
	nitrateBefore := env.Nitrate.Total()

	env.Weather = fixedWeather{temp: 18, hum: 60}
	c := env.Weathering(60)
	assert.Equal(t, 0.0, c.RainAdded)
	assert.InEpsilon(t, waterBefore, env.Water.Total(), 1e-12)
	assert.InEpsilon(t, nitrateBefore, env.Nitrate.Total(), 1e-12)

	// Drain the surface so rain has room to land
	surface := env.Water.Cells()
	for x := range surface {
		surface[x][0] = 0
	}
	require.NoError(t, env.Water.SetCells(surface))
	before := env.Water.Total()

	env.Weather = fixedWeather{temp: 15, hum: 95, precip: 2}
	c = env.Weathering(60)
	wantPerCell := 2 * env.RainPerMM / 3600 * 60
	assert.InDelta(t, wantPerCell*float64(cfg.Grid.Width), c.RainAdded, 1e-6)
	assert.InDelta(t, before+c.RainAdded, env.Water.Total(), 1e-6*before)
	assert.Equal(t, 2.0, c.Precipitation)

	env.Advance(1800)
	assert.Equal(t, cfg.Simulation.StartHour+0.5, env.Hour())
	assert.Same(t, env.Water, env.Grid(env.Water.Kind))
	assert.Nil(t, env.Grid(0))
}
