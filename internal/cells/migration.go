package cells

import (
	"errors"

	"github.com/talgya/retinasim/internal/space"
)

// ErrFieldUnresolved is returned when a rule runs before the substance
// field exists. Callers treat it as fatal.
var ErrFieldUnresolved = errors.New("migration rule invoked without a resolved field")

// Field is the read-only view of the guidance substance.
type Field interface {
	Concentration(p space.Vec3) float64
	Gradient(p space.Vec3) space.Vec3
}

// MigrationRule moves a cell up the substance gradient until the local
// concentration reaches the policy threshold.
type MigrationRule struct {
	Policy Policy
}

// Displacement returns the damped step for gradient g on the enabled axes.
func (r MigrationRule) Displacement(g space.Vec3) space.Vec3 {
	return r.Policy.Axes.Apply(g.Scale(Damping))
}

// Apply runs one step of the rule on c. The position changes only while
// the concentration is strictly below the threshold. There is no
// hysteresis: a cell whose concentration drops again resumes moving.
// Only c is written; f is read.
func (r MigrationRule) Apply(c *Cell, f Field) (bool, error) {
	if f == nil {
		return false, ErrFieldUnresolved
	}

	grad := f.Gradient(c.Position)
	conc := f.Concentration(c.Position)
	move := r.Displacement(grad)

	if r.Policy.Settled(conc) {
		return false, nil
	}
	c.Position = c.Position.Add(move)
	return true, nil
}
