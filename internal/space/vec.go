// Package space provides the continuous 3D coordinates, axes, and bounds
// the cells move through. Axis 0 is x, 1 is y, 2 is z (depth).
package space

import "fmt"

// Vec3 is a point or displacement in simulation space (micrometres).
type Vec3 [3]float64

// X returns the first coordinate.
func (v Vec3) X() float64 { return v[0] }

// Y returns the second coordinate.
func (v Vec3) Y() float64 { return v[1] }

// Z returns the third coordinate.
func (v Vec3) Z() float64 { return v[2] }

// Add returns v + o.
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{v[0] + o[0], v[1] + o[1], v[2] + o[2]}
}

// Scale returns v multiplied by s.
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{v[0] * s, v[1] * s, v[2] * s}
}

// String formats the vector for logs.
func (v Vec3) String() string {
	return fmt.Sprintf("(%.3f, %.3f, %.3f)", v[0], v[1], v[2])
}

// Axis identifies one spatial dimension.
type Axis uint8

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

// NumAxes is the dimensionality of the simulation space.
const NumAxes = 3

// AxisName returns a short name for an axis.
func AxisName(a Axis) string {
	switch a {
	case AxisX:
		return "x"
	case AxisY:
		return "y"
	case AxisZ:
		return "z"
	default:
		return "?"
	}
}

// AxisMask is a bit set of the axes a cell may move along.
type AxisMask uint8

const (
	MaskX   AxisMask = 1 << AxisX
	MaskY   AxisMask = 1 << AxisY
	MaskZ   AxisMask = 1 << AxisZ
	MaskXY           = MaskX | MaskY
	MaskXYZ          = MaskX | MaskY | MaskZ
)

// Has reports whether the mask enables the given axis.
func (m AxisMask) Has(a Axis) bool {
	return m&(1<<a) != 0
}

// Apply zeroes the components of v on disabled axes.
func (m AxisMask) Apply(v Vec3) Vec3 {
	var out Vec3
	for a := Axis(0); a < NumAxes; a++ {
		if m.Has(a) {
			out[a] = v[a]
		}
	}
	return out
}

// String lists the enabled axes, e.g. "xyz" or "xy".
func (m AxisMask) String() string {
	s := ""
	for a := Axis(0); a < NumAxes; a++ {
		if m.Has(a) {
			s += AxisName(a)
		}
	}
	if s == "" {
		return "none"
	}
	return s
}
