// Package engine provides the fixed-step simulation loop.
package engine

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// Engine drives the simulation forward a fixed number of steps.
type Engine struct {
	Tick     uint64        // Last completed step (monotonic)
	MaxSteps uint64        // Run stops after this step
	Interval time.Duration // Minimum wall time per step; 0 runs flat out

	ExportInterval uint64 // OnExport every N steps; 0 disables
	ReportInterval uint64 // OnReport every N steps; 0 disables

	// Callbacks, populated during setup. OnStep errors abort the run.
	OnStep   func(tick uint64) error
	OnExport func(tick uint64) error
	OnReport func(tick uint64)

	running atomic.Bool
}

// NewEngine creates an engine that runs maxSteps steps with no pacing.
func NewEngine(maxSteps uint64) *Engine {
	return &Engine{
		MaxSteps: maxSteps,
	}
}

// Running reports whether Run is in progress.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// Run executes steps until MaxSteps is reached, Stop is called, or a
// callback fails.
func (e *Engine) Run() error {
	e.running.Store(true)
	defer e.running.Store(false)
	slog.Info("simulation engine started", "tick", e.Tick, "max_steps", e.MaxSteps)

	for e.running.Load() && e.Tick < e.MaxSteps {
		start := time.Now()

		if err := e.step(); err != nil {
			slog.Error("simulation engine aborted", "tick", e.Tick, "error", err)
			return err
		}

		if e.Interval > 0 {
			if elapsed := time.Since(start); elapsed < e.Interval {
				time.Sleep(e.Interval - elapsed)
			}
		}
	}

	slog.Info("simulation engine stopped", "tick", e.Tick)
	return nil
}

// Stop halts the loop after the current step.
func (e *Engine) Stop() {
	e.running.Store(false)
}

// step advances the simulation by one step and fires the interval hooks.
func (e *Engine) step() error {
	next := e.Tick + 1

	if e.OnStep != nil {
		if err := e.OnStep(next); err != nil {
			return fmt.Errorf("step %d: %w", next, err)
		}
	}
	e.Tick = next

	if e.ExportInterval > 0 && e.Tick%e.ExportInterval == 0 && e.OnExport != nil {
		if err := e.OnExport(e.Tick); err != nil {
			return fmt.Errorf("export %d: %w", e.Tick, err)
		}
	}

	if e.ReportInterval > 0 && e.Tick%e.ReportInterval == 0 && e.OnReport != nil {
		e.OnReport(e.Tick)
	}
	return nil
}
