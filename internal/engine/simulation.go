// Simulation ties the substance field to the cell population and runs the
// two-phase step: advance the field, then move every cell.
package engine

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/talgya/retinasim/internal/cells"
	"github.com/talgya/retinasim/internal/space"
)

// Solver is a field the simulation can both query and advance.
type Solver interface {
	cells.Field
	Step(dt float64)
}

// Simulation holds the field, the cells, and per-step statistics.
type Simulation struct {
	mu sync.RWMutex

	Field    Solver
	Cells    *cells.Population
	Bounds   space.Bounds
	TimeStep float64
	Workers  int

	LastTick uint64
	Stats    SimStats

	moved []bool
}

// NewSimulation wires a field and population together. The field must be
// resolved before the first step.
func NewSimulation(field Solver, pop *cells.Population, b space.Bounds, dt float64, workers int) (*Simulation, error) {
	if field == nil {
		return nil, cells.ErrFieldUnresolved
	}
	if pop == nil {
		pop = cells.NewPopulation()
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if dt <= 0 {
		dt = 1
	}
	sim := &Simulation{
		Field:    field,
		Cells:    pop,
		Bounds:   b,
		TimeStep: dt,
		Workers:  workers,
		moved:    make([]bool, pop.Len()),
	}
	sim.updateStats()
	return sim, nil
}

// CurrentTick returns the most recently completed step.
func (s *Simulation) CurrentTick() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.LastTick
}

// Step runs one full step. The field advance completes before any cell
// moves, and every cell has moved before Step returns.
func (s *Simulation) Step(tick uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Field == nil {
		return cells.ErrFieldUnresolved
	}

	// Phase 1: solve the field.
	s.Field.Step(s.TimeStep)

	// Phase 2: move the cells against the now read-only field.
	if err := s.moveCells(); err != nil {
		return err
	}

	s.LastTick = tick
	s.updateStats()
	return nil
}

// moveCells runs each cell's rule exactly once. Cells are split into
// contiguous chunks, one goroutine per chunk; rules touch only their own
// cell so no locking is needed inside the phase.
func (s *Simulation) moveCells() error {
	all := s.Cells.All()
	if len(s.moved) != len(all) {
		s.moved = make([]bool, len(all))
	}
	if len(all) == 0 {
		return nil
	}

	workers := s.Workers
	if workers > len(all) {
		workers = len(all)
	}
	chunk := (len(all) + workers - 1) / workers

	errs := make([]error, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		lo := w * chunk
		hi := lo + chunk
		if hi > len(all) {
			hi = len(all)
		}
		if lo >= hi {
			continue
		}
		wg.Add(1)
		go func(w, lo, hi int) {
			defer wg.Done()
			for i := lo; i < hi; i++ {
				moved, err := all[i].Step(s.Field)
				if err != nil {
					errs[w] = fmt.Errorf("cell %d: %w", i, err)
					return
				}
				s.moved[i] = moved
			}
		}(w, lo, hi)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// Snapshot returns copies of every cell, safe to use while the run continues.
func (s *Simulation) Snapshot() []cells.Cell {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]cells.Cell, 0, s.Cells.Len())
	for _, c := range s.Cells.All() {
		out = append(out, *c)
	}
	return out
}

// CurrentStats returns a copy of the latest statistics.
func (s *Simulation) CurrentStats() SimStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := s.Stats
	st.Layers = append([]LayerStats(nil), s.Stats.Layers...)
	return st
}

// Report logs the layer summary, the way the run is followed from a terminal.
func (s *Simulation) Report(tick uint64) {
	st := s.CurrentStats()
	slog.Info("layer report",
		"tick", tick,
		"moving", st.Moving,
		"settled", st.Settled,
		"out_of_bounds", st.OutOfBounds,
		"field_max", fmt.Sprintf("%.3e", st.FieldMax),
	)
	for _, l := range st.Layers {
		slog.Debug("layer",
			"type", l.Name,
			"count", l.Count,
			"moving", l.Moving,
			"settled", l.Settled,
			"mean_depth", fmt.Sprintf("%.2f", l.MeanDepth),
			"depth_stddev", fmt.Sprintf("%.2f", l.DepthStdDev),
		)
	}
}
