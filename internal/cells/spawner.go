// Cell spawning: seeds each cohort at uniform-random planar positions on
// the z=0 plane. Depth is left to migration.
package cells

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/talgya/retinasim/internal/space"
)

// ErrNegativeCount is returned when a cohort asks for fewer than zero cells.
var ErrNegativeCount = errors.New("cell count must be non-negative")

// PopulationSpec describes one cohort: how many cells of which type.
// Diameter and policy come from the type's table row.
type PopulationSpec struct {
	Type  CellType
	Count int
}

// Policy returns the cohort's migration policy.
func (ps PopulationSpec) Policy() Policy {
	return PolicyFor(ps.Type)
}

// DefaultPopulation returns the six reference cohorts in creation order.
func DefaultPopulation() []PopulationSpec {
	return []PopulationSpec{
		{Type: TypeGanglion, Count: 400},
		{Type: TypeAmacrine, Count: 400},
		{Type: TypeBipolar, Count: 400},
		{Type: TypeHorizontal, Count: 200},
		{Type: TypeCone, Count: 250},
		{Type: TypeRod, Count: 250},
	}
}

// Spawner creates cells from an explicitly seeded random source.
type Spawner struct {
	rng  *rand.Rand
	seed int64
}

// NewSpawner creates a spawner. The same seed reproduces the same layout.
func NewSpawner(seed int64) *Spawner {
	return &Spawner{
		rng:  rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Seed returns the seed the spawner was created with.
func (s *Spawner) Seed() int64 {
	return s.seed
}

// Uniform draws from [min, max). Returns min when the interval is empty.
func (s *Spawner) Uniform(min, max float64) float64 {
	return min + s.rng.Float64()*(max-min)
}

// CreateCells appends count cells built by build to reg. Each cell starts
// at (x, y, 0) with x and y drawn independently from [min, max).
func (s *Spawner) CreateCells(reg Registry, min, max float64, count int, build func(pos space.Vec3) *Cell) error {
	if min > max {
		return fmt.Errorf("%w (min=%g max=%g)", space.ErrInvalidBounds, min, max)
	}
	if count < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeCount, count)
	}

	reg.Reserve(count)
	for i := 0; i < count; i++ {
		x := s.Uniform(min, max)
		y := s.Uniform(min, max)
		reg.Append(build(space.Vec3{x, y, 0}))
	}
	return nil
}

// SpawnCohort creates one cohort of spec.Type cells inside b.
func (s *Spawner) SpawnCohort(reg Registry, b space.Bounds, spec PopulationSpec) error {
	if !spec.Type.Valid() {
		return fmt.Errorf("spawn cohort: unknown cell type %d", spec.Type)
	}
	build := func(pos space.Vec3) *Cell {
		return NewCell(spec.Type, pos)
	}
	if err := s.CreateCells(reg, b.Min, b.Max, spec.Count, build); err != nil {
		return fmt.Errorf("spawn %s: %w", spec.Type, err)
	}
	slog.Info("cells created", "type", spec.Type.String(), "count", spec.Count)
	return nil
}

// SpawnPopulation creates every cohort in order.
func (s *Spawner) SpawnPopulation(reg Registry, b space.Bounds, specs []PopulationSpec) error {
	total := 0
	for _, spec := range specs {
		if spec.Count > 0 {
			total += spec.Count
		}
	}
	reg.Reserve(total)

	for _, spec := range specs {
		if err := s.SpawnCohort(reg, b, spec); err != nil {
			return err
		}
	}
	return nil
}
