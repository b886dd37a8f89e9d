// Package cells provides the retinal cell record, the per-type migration
// policies, and the population generator that seeds each cohort.
package cells

import (
	"github.com/talgya/retinasim/internal/space"
)

// CellType is the integer tag exported as the coloring attribute.
type CellType int

const (
	TypeCone       CellType = 1
	TypeRod        CellType = 2
	TypeHorizontal CellType = 3
	TypeBipolar    CellType = 4
	TypeAmacrine   CellType = 5
	TypeGanglion   CellType = 6
)

// AllTypes lists every cell type in generation order (innermost layer first).
var AllTypes = []CellType{
	TypeGanglion,
	TypeAmacrine,
	TypeBipolar,
	TypeHorizontal,
	TypeCone,
	TypeRod,
}

// Valid reports whether t is one of the six retinal cell types.
func (t CellType) Valid() bool {
	return t >= TypeCone && t <= TypeGanglion
}

// String returns the lowercase population name.
func (t CellType) String() string {
	switch t {
	case TypeCone:
		return "cone"
	case TypeRod:
		return "rod"
	case TypeHorizontal:
		return "horizontal"
	case TypeBipolar:
		return "bipolar"
	case TypeAmacrine:
		return "amacrine"
	case TypeGanglion:
		return "ganglion"
	default:
		return "unknown"
	}
}

// ParseType maps a population name back to its tag.
func ParseType(name string) (CellType, bool) {
	for _, t := range AllTypes {
		if t.String() == name {
			return t, true
		}
	}
	return 0, false
}

// Cell is a single migrating retinal cell.
type Cell struct {
	Position space.Vec3 `json:"position"`
	Diameter float64    `json:"diameter"`
	Type     CellType   `json:"type"`

	// Bound together with Type by NewCell.
	rule MigrationRule
}

// NewCell creates a cell of type t at pos with the type's diameter and
// migration rule. Unknown types get a zero policy and never move.
func NewCell(t CellType, pos space.Vec3) *Cell {
	p := PolicyFor(t)
	return &Cell{
		Position: pos,
		Diameter: p.Diameter,
		Type:     t,
		rule:     MigrationRule{Policy: p},
	}
}

// Rule returns the migration rule bound to the cell.
func (c *Cell) Rule() MigrationRule {
	return c.rule
}

// Step runs the cell's own migration rule once against f.
func (c *Cell) Step(f Field) (bool, error) {
	return c.rule.Apply(c, f)
}
