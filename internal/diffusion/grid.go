// Package diffusion provides the substance grid the cells migrate along:
// a regular 3D box grid advanced by explicit Euler diffusion with
// first-order decay, with concentration and gradient queries at any point.
package diffusion

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/talgya/retinasim/internal/space"
)

var (
	ErrInvalidResolution = errors.New("grid resolution must be at least 2")
	ErrNegativeRate      = errors.New("diffusion and decay rates must be non-negative")
)

// gradientEpsilon is the norm below which a gradient is reported as zero.
const gradientEpsilon = 1e-10

// Params configures a substance grid.
type Params struct {
	Name          string       `yaml:"name" json:"name"`
	DiffusionCoef float64      `yaml:"diffusion_coef" json:"diffusion_coef"`
	DecayConstant float64      `yaml:"decay_constant" json:"decay_constant"`
	Resolution    int          `yaml:"resolution" json:"resolution"`
	Bounds        space.Bounds `yaml:"-" json:"bounds"`
}

// DefaultParams returns the reference guidance substance settings.
func DefaultParams(b space.Bounds) Params {
	return Params{
		Name:          "substance",
		DiffusionCoef: 0.5,
		DecayConstant: 0.1,
		Resolution:    4,
		Bounds:        b,
	}
}

// Validate checks the grid can be built.
func (p Params) Validate() error {
	if p.Resolution < 2 {
		return fmt.Errorf("%w: %d", ErrInvalidResolution, p.Resolution)
	}
	if p.DiffusionCoef < 0 || p.DecayConstant < 0 {
		return fmt.Errorf("%w (diffusion=%g decay=%g)", ErrNegativeRate, p.DiffusionCoef, p.DecayConstant)
	}
	return p.Bounds.Validate()
}

// Grid holds concentrations at Resolution^3 box centres.
// It is not safe for concurrent Step and queries; the driver separates them.
type Grid struct {
	params    Params
	n         int
	boxLength float64

	conc      []float64
	next      []float64
	gradients []space.Vec3

	steps uint64
}

// NewGrid allocates a zero-concentration grid.
func NewGrid(p Params) (*Grid, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	n := p.Resolution
	size := n * n * n
	g := &Grid{
		params:    p,
		n:         n,
		boxLength: p.Bounds.Length() / float64(n),
		conc:      make([]float64, size),
		next:      make([]float64, size),
		gradients: make([]space.Vec3, size),
	}
	return g, nil
}

// Params returns the configuration the grid was built with.
func (g *Grid) Params() Params {
	return g.params
}

// Resolution returns the number of boxes along each axis.
func (g *Grid) Resolution() int {
	return g.n
}

// BoxLength returns the edge length of one box.
func (g *Grid) BoxLength() float64 {
	return g.boxLength
}

// Steps returns how many times Step has run.
func (g *Grid) Steps() uint64 {
	return g.steps
}

func (g *Grid) index(i, j, k int) int {
	return (k*g.n+j)*g.n + i
}

// BoxCenter returns the centre point of box (i, j, k).
func (g *Grid) BoxCenter(i, j, k int) space.Vec3 {
	min := g.params.Bounds.Min
	h := g.boxLength
	return space.Vec3{
		min + (float64(i)+0.5)*h,
		min + (float64(j)+0.5)*h,
		min + (float64(k)+0.5)*h,
	}
}

// boxCoord maps one coordinate to a box index, clamping to the edge boxes
// so the field is defined for cells that have left the domain.
func (g *Grid) boxCoord(c float64) int {
	if g.boxLength <= 0 || math.IsNaN(c) {
		return 0
	}
	i := int(math.Floor((c - g.params.Bounds.Min) / g.boxLength))
	if i < 0 {
		return 0
	}
	if i >= g.n {
		return g.n - 1
	}
	return i
}

func (g *Grid) boxIndex(p space.Vec3) int {
	return g.index(g.boxCoord(p[0]), g.boxCoord(p[1]), g.boxCoord(p[2]))
}

// Concentration returns the concentration of the box containing p.
func (g *Grid) Concentration(p space.Vec3) float64 {
	return g.conc[g.boxIndex(p)]
}

// Gradient returns the unit gradient direction of the box containing p,
// or the zero vector when the gradient is negligible.
func (g *Grid) Gradient(p space.Vec3) space.Vec3 {
	grad := g.gradients[g.boxIndex(p)]
	norm := math.Sqrt(grad[0]*grad[0] + grad[1]*grad[1] + grad[2]*grad[2])
	if norm < gradientEpsilon {
		return space.Vec3{}
	}
	return grad.Scale(1 / norm)
}

// RawGradient returns the unnormalized finite-difference gradient at p.
func (g *Grid) RawGradient(p space.Vec3) space.Vec3 {
	return g.gradients[g.boxIndex(p)]
}

// Initialize sets every box to fn evaluated at its centre, then refreshes
// the gradients.
func (g *Grid) Initialize(fn Initializer) {
	for k := 0; k < g.n; k++ {
		for j := 0; j < g.n; j++ {
			for i := 0; i < g.n; i++ {
				g.conc[g.index(i, j, k)] = fn(g.BoxCenter(i, j, k))
			}
		}
	}
	g.computeGradients()
}

// Step advances the substance by dt: diffusion with zero-flux boundaries
// followed by exponential-rate decay. Long steps are split so the explicit
// scheme stays stable.
func (g *Grid) Step(dt float64) {
	if dt <= 0 {
		return
	}
	h2 := g.boxLength * g.boxLength
	substeps := 1
	if h2 > 0 && g.params.DiffusionCoef > 0 {
		// Explicit 7-point stencil is stable for D*dt/h^2 <= 1/6.
		substeps = int(math.Ceil(6 * g.params.DiffusionCoef * dt / h2))
		if substeps < 1 {
			substeps = 1
		}
	}
	sub := dt / float64(substeps)
	for s := 0; s < substeps; s++ {
		g.diffuse(sub, h2)
	}
	g.computeGradients()
	g.steps++
}

func (g *Grid) diffuse(dt, h2 float64) {
	d := 0.0
	if h2 > 0 {
		d = g.params.DiffusionCoef * dt / h2
	}
	decay := 1 - g.params.DecayConstant*dt
	if decay < 0 {
		decay = 0
	}

	n := g.n
	for k := 0; k < n; k++ {
		for j := 0; j < n; j++ {
			for i := 0; i < n; i++ {
				c := g.conc[g.index(i, j, k)]
				lap := g.at(i-1, j, k, c) + g.at(i+1, j, k, c) +
					g.at(i, j-1, k, c) + g.at(i, j+1, k, c) +
					g.at(i, j, k-1, c) + g.at(i, j, k+1, c) - 6*c
				g.next[g.index(i, j, k)] = (c + d*lap) * decay
			}
		}
	}
	g.conc, g.next = g.next, g.conc
}

// at returns the neighbour concentration, mirroring self at the boundary
// so no substance flows out of the domain.
func (g *Grid) at(i, j, k int, self float64) float64 {
	if i < 0 || j < 0 || k < 0 || i >= g.n || j >= g.n || k >= g.n {
		return self
	}
	return g.conc[g.index(i, j, k)]
}

// computeGradients uses central differences inside the grid and one-sided
// differences on the faces.
func (g *Grid) computeGradients() {
	n := g.n
	h := g.boxLength
	for k := 0; k < n; k++ {
		for j := 0; j < n; j++ {
			for i := 0; i < n; i++ {
				var grad space.Vec3
				grad[0] = g.diff(i-1, j, k, i+1, j, k, h)
				grad[1] = g.diff(i, j-1, k, i, j+1, k, h)
				grad[2] = g.diff(i, j, k-1, i, j, k+1, h)
				g.gradients[g.index(i, j, k)] = grad
			}
		}
	}
}

func (g *Grid) diff(i0, j0, k0, i1, j1, k1 int, h float64) float64 {
	i0, j0, k0 = g.clampBox(i0), g.clampBox(j0), g.clampBox(k0)
	i1, j1, k1 = g.clampBox(i1), g.clampBox(j1), g.clampBox(k1)
	span := float64((i1-i0)+(j1-j0)+(k1-k0)) * h
	if span == 0 {
		return 0
	}
	return (g.conc[g.index(i1, j1, k1)] - g.conc[g.index(i0, j0, k0)]) / span
}

func (g *Grid) clampBox(i int) int {
	if i < 0 {
		return 0
	}
	if i >= g.n {
		return g.n - 1
	}
	return i
}

// Total returns the sum of all box concentrations.
func (g *Grid) Total() float64 {
	return floats.Sum(g.conc)
}

// MaxConcentration returns the largest box concentration.
func (g *Grid) MaxConcentration() float64 {
	return floats.Max(g.conc)
}
