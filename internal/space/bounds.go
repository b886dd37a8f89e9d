package space

import (
	"errors"
	"fmt"
)

// ErrInvalidBounds is returned when a bound has min greater than max.
var ErrInvalidBounds = errors.New("invalid bounds: min > max")

// Bounds is the cubic simulation domain [Min, Max] on every axis.
type Bounds struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// Validate checks Min <= Max.
func (b Bounds) Validate() error {
	if b.Min > b.Max {
		return fmt.Errorf("%w (min=%g max=%g)", ErrInvalidBounds, b.Min, b.Max)
	}
	return nil
}

// Length returns the edge length of the domain.
func (b Bounds) Length() float64 {
	return b.Max - b.Min
}

// Contains reports whether every coordinate of p lies in [Min, Max].
// Cells are never clamped; this is only used for reporting.
func (b Bounds) Contains(p Vec3) bool {
	for _, c := range p {
		if c < b.Min || c > b.Max {
			return false
		}
	}
	return true
}
