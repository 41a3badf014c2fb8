package systems

import (
	opensimplex "github.com/ojrac/opensimplex-go"
)

// SoilNoise generates coherent noise for initial soil content and weather.
type SoilNoise struct {
	noise       opensimplex.Noise
	Octaves     int
	Persistence float64
}

// NewSoilNoise creates a normalized ([0,1]) noise source.
func NewSoilNoise(seed int64) *SoilNoise {
	return &SoilNoise{
		noise:       opensimplex.NewNormalized(seed),
		Octaves:     3,
		Persistence: 0.5,
	}
}

// Noise2D returns fractal noise in [0,1] at (x, y) sampled with the given base frequency.
func (n *SoilNoise) Noise2D(x, y, frequency float64) float64 {
	return octaveNoise(n.noise, x, y, n.Octaves, frequency, n.Persistence)
}

// octaveNoise generates fractal noise by layering multiple frequencies.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}

// SeedFromNoise fills the grid with mean*(1 + spread*(2n-1)) per cell, n being
// fractal noise at the cell position. Deeper rows hold progressively less, down
// to half the surface value in the bottom row. Values are clamped to MaxCell.
func (g *MetaboliteGrid) SeedFromNoise(noise *SoilNoise, mean, spread, scale float64) error {
	if mean < 0 {
		return ErrNegativeAmount
	}
	w, d := g.cells.Dims()
	for x := 0; x < w; x++ {
		for y := 0; y < d; y++ {
			n := noise.Noise2D(float64(x), float64(y), scale)
			v := mean * (1 + spread*(2*n-1))
			v *= 1 - 0.5*float64(y)/float64(d)
			g.cells.Set(x, y, min(max(v, 0), g.MaxCell))
		}
	}
	return nil
}
