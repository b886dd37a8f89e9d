package cells

import (
	"errors"
	"testing"

	"github.com/talgya/retinasim/internal/space"
)

// uniformField reports the same concentration and gradient everywhere.
type uniformField struct {
	conc float64
	grad space.Vec3
}

func (f uniformField) Concentration(space.Vec3) float64 { return f.conc }
func (f uniformField) Gradient(space.Vec3) space.Vec3 { return f.grad }

// rampField has a concentration that grows with z and a fixed gradient.
type rampField struct {
	slope float64
	grad  space.Vec3
}

func (f rampField) Concentration(p space.Vec3) float64 { return f.slope * p.Z() }
func (f rampField) Gradient(space.Vec3) space.Vec3 { return f.grad }

func TestNewCellBindsPolicyToType(t *testing.T) {
	cases := []struct {
		typ       CellType
		threshold float64
		axes      space.AxisMask
		diameter  float64
	}{
		{TypeGanglion, 2.5e-6, space.MaskXYZ, 11},
		{TypeAmacrine, 2.0e-7, space.MaskXYZ, 9},
		{TypeBipolar, 2.5e-8, space.MaskXYZ, 9},
		{TypeHorizontal, 7.0e-9, space.MaskXYZ, 8},
		{TypeCone, 3.0e-9, space.MaskXYZ, 2},
		{TypeRod, 3.0e-9, space.MaskXY, 2},
	}
	for _, tc := range cases {
		c := NewCell(tc.typ, space.Vec3{1, 2, 0})
		if c.Type != tc.typ {
			t.Fatalf("%s: type = %d", tc.typ, c.Type)
		}
		if c.Diameter != tc.diameter {
			t.Fatalf("%s: diameter = %v, want %v", tc.typ, c.Diameter, tc.diameter)
		}
		p := c.Rule().Policy
		if p.Threshold != tc.threshold || p.Axes != tc.axes {
			t.Fatalf("%s: policy = %+v", tc.typ, p)
		}
	}
}

func TestMigrationStepLaw(t *testing.T) {
	grad := space.Vec3{0.3, -0.7, 1.25}
	f := uniformField{conc: 0, grad: grad}

	for _, typ := range AllTypes {
		start := space.Vec3{12.5, 40.25, 3}
		c := NewCell(typ, start)
		moved, err := c.Step(f)
		if err != nil {
			t.Fatalf("%s: step: %v", typ, err)
		}
		if !moved {
			t.Fatalf("%s: expected a move below threshold", typ)
		}

		axes := PolicyFor(typ).Axes
		for a := space.Axis(0); a < space.NumAxes; a++ {
			want := start[a]
			if axes.Has(a) {
				want = start[a] + grad[a]*Damping
			}
			if c.Position[a] != want {
				t.Fatalf("%s axis %s: got %v want %v", typ, space.AxisName(a), c.Position[a], want)
			}
		}
	}
}

func TestMigrationIdempotentAtOrAboveThreshold(t *testing.T) {
	for _, typ := range AllTypes {
		threshold := PolicyFor(typ).Threshold
		for _, conc := range []float64{threshold, threshold * 10} {
			start := space.Vec3{5, 6, 7}
			c := NewCell(typ, start)
			f := uniformField{conc: conc, grad: space.Vec3{1, 1, 1}}
			for i := 0; i < 25; i++ {
				moved, err := c.Step(f)
				if err != nil {
					t.Fatalf("%s: step: %v", typ, err)
				}
				if moved {
					t.Fatalf("%s: moved at concentration %g (threshold %g)", typ, conc, threshold)
				}
			}
			if c.Position != start {
				t.Fatalf("%s: position changed to %v", typ, c.Position)
			}
		}
	}
}

func TestRodNeverMovesOnZ(t *testing.T) {
	fields := []Field{
		uniformField{conc: 0, grad: space.Vec3{1, 1, 1}},
		uniformField{conc: 0, grad: space.Vec3{-3, 2, 1e9}},
		uniformField{conc: 1, grad: space.Vec3{0, 0, -5}},
		rampField{slope: 1e-12, grad: space.Vec3{0.1, 0.2, 0.9}},
	}
	for i, f := range fields {
		c := NewCell(TypeRod, space.Vec3{100, 100, 0.125})
		for step := 0; step < 50; step++ {
			if _, err := c.Step(f); err != nil {
				t.Fatalf("field %d: step: %v", i, err)
			}
			if c.Position.Z() != 0.125 {
				t.Fatalf("field %d step %d: rod z = %v", i, step, c.Position.Z())
			}
		}
	}
}

func TestGanglionConstantGradientScenario(t *testing.T) {
	f := uniformField{conc: 0, grad: space.Vec3{1, 1, 1}}
	c := NewCell(TypeGanglion, space.Vec3{10, 10, 0})
	for i := 0; i < 3; i++ {
		if _, err := c.Step(f); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	want := space.Vec3{11.5, 11.5, 1.5}
	if c.Position != want {
		t.Fatalf("position = %v, want %v", c.Position, want)
	}
}

func TestGanglionStopsExactlyAtThreshold(t *testing.T) {
	f := uniformField{conc: 2.5e-6, grad: space.Vec3{1, 1, 1}}
	start := space.Vec3{10, 10, 0}
	c := NewCell(TypeGanglion, start)
	for i := 0; i < 100; i++ {
		if _, err := c.Step(f); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	if c.Position != start {
		t.Fatalf("position = %v, want unchanged %v", c.Position, start)
	}
}

func TestMigrationStopsWhenRisingConcentrationCrossesThreshold(t *testing.T) {
	// Concentration rises 1e-7 per unit of z; amacrine stops at 2e-7,
	// i.e. once z >= 2. Each step moves z by 0.5.
	f := rampField{slope: 1e-7, grad: space.Vec3{0, 0, 1}}
	c := NewCell(TypeAmacrine, space.Vec3{0, 0, 0})
	steps := 0
	for i := 0; i < 20; i++ {
		moved, err := c.Step(f)
		if err != nil {
			t.Fatalf("step: %v", err)
		}
		if moved {
			steps++
		}
	}
	if c.Position.Z() < 2 || c.Position.Z() > 2.5 {
		t.Fatalf("expected the cell to stop just past z=2, got z=%v after %d moves", c.Position.Z(), steps)
	}
}

func TestMigrationWithoutFieldFailsFast(t *testing.T) {
	c := NewCell(TypeCone, space.Vec3{1, 1, 0})
	moved, err := c.Step(nil)
	if !errors.Is(err, ErrFieldUnresolved) {
		t.Fatalf("expected ErrFieldUnresolved, got %v", err)
	}
	if moved || c.Position != (space.Vec3{1, 1, 0}) {
		t.Fatalf("cell moved without a field: %v", c.Position)
	}
}

func TestUnknownTypeNeverMoves(t *testing.T) {
	c := NewCell(CellType(42), space.Vec3{1, 2, 3})
	moved, err := c.Step(uniformField{conc: 0, grad: space.Vec3{1, 1, 1}})
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if moved || c.Position != (space.Vec3{1, 2, 3}) {
		t.Fatalf("unknown type moved to %v", c.Position)
	}
}
