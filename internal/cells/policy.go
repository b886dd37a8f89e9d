package cells

import "github.com/talgya/retinasim/internal/space"

// Damping scales the raw gradient before it is added to the position.
const Damping = 0.5

// Policy is the per-type migration configuration.
// Thresholds are empirically tuned; keep them literal.
type Policy struct {
	Threshold float64        `json:"threshold"`
	Axes      space.AxisMask `json:"axes"`
	Diameter  float64        `json:"diameter"`
}

// Settled reports whether a cell seeing conc has reached its resting layer.
func (p Policy) Settled(conc float64) bool {
	return !(conc < p.Threshold)
}

var policies = map[CellType]Policy{
	TypeGanglion:   {Threshold: 2.5e-6, Axes: space.MaskXYZ, Diameter: 11},
	TypeAmacrine:   {Threshold: 2.0e-7, Axes: space.MaskXYZ, Diameter: 9},
	TypeBipolar:    {Threshold: 2.5e-8, Axes: space.MaskXYZ, Diameter: 9},
	TypeHorizontal: {Threshold: 7.0e-9, Axes: space.MaskXYZ, Diameter: 8},
	TypeCone:       {Threshold: 3.0e-9, Axes: space.MaskXYZ, Diameter: 2},
	TypeRod:        {Threshold: 3.0e-9, Axes: space.MaskXY, Diameter: 2},
}

// PolicyFor returns the migration policy of a cell type.
func PolicyFor(t CellType) Policy {
	return policies[t]
}
