package diffusion

import (
	"math"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/talgya/retinasim/internal/space"
)

// Initializer returns the starting concentration at a point.
type Initializer func(p space.Vec3) float64

// GaussianBand is a normal density along one axis, constant across the
// other two. Sigma is the spread of the band.
func GaussianBand(mean, sigma float64, axis space.Axis) Initializer {
	norm := 1 / (sigma * math.Sqrt(2*math.Pi))
	return func(p space.Vec3) float64 {
		z := (p[axis] - mean) / sigma
		return norm * math.Exp(-0.5*z*z)
	}
}

// WithSimplexNoise perturbs base by a relative amount of 3D simplex noise:
// c * (1 + amplitude*n) with n in [-1, 1]. Scale is the noise frequency
// per micrometre. A zero amplitude returns base unchanged.
func WithSimplexNoise(base Initializer, seed int64, amplitude, scale float64) Initializer {
	if amplitude == 0 {
		return base
	}
	noise := opensimplex.New(seed)
	return func(p space.Vec3) float64 {
		n := noise.Eval3(p[0]*scale, p[1]*scale, p[2]*scale)
		c := base(p) * (1 + amplitude*n)
		if c < 0 {
			return 0
		}
		return c
	}
}
