package engine

import (
	"errors"
	"testing"

	"github.com/talgya/retinasim/internal/cells"
	"github.com/talgya/retinasim/internal/diffusion"
	"github.com/talgya/retinasim/internal/space"
)

var testBounds = space.Bounds{Min: 0, Max: 250}

// constSolver is a field with a fixed concentration and gradient.
type constSolver struct {
	conc  float64
	grad  space.Vec3
	steps int
}

func (f *constSolver) Concentration(space.Vec3) float64 { return f.conc }
func (f *constSolver) Gradient(space.Vec3) space.Vec3 { return f.grad }
func (f *constSolver) Step(float64) { f.steps++ }

// saturatingSolver is empty until its first step, then saturated.
type saturatingSolver struct {
	steps int
}

func (f *saturatingSolver) Concentration(space.Vec3) float64 {
	if f.steps == 0 {
		return 0
	}
	return 1
}
func (f *saturatingSolver) Gradient(space.Vec3) space.Vec3 { return space.Vec3{1, 1, 1} }
func (f *saturatingSolver) Step(float64) { f.steps++ }

func populationOf(cs ...*cells.Cell) *cells.Population {
	pop := cells.NewPopulation()
	for _, c := range cs {
		pop.Append(c)
	}
	return pop
}

func TestNewSimulationRequiresField(t *testing.T) {
	_, err := NewSimulation(nil, cells.NewPopulation(), testBounds, 1, 1)
	if !errors.Is(err, cells.ErrFieldUnresolved) {
		t.Fatalf("expected ErrFieldUnresolved, got %v", err)
	}
}

func TestSimulationConstantGradientScenario(t *testing.T) {
	field := &constSolver{conc: 0, grad: space.Vec3{1, 1, 1}}
	c := cells.NewCell(cells.TypeGanglion, space.Vec3{10, 10, 0})
	sim, err := NewSimulation(field, populationOf(c), testBounds, 1, 4)
	if err != nil {
		t.Fatalf("new simulation: %v", err)
	}

	eng := NewEngine(3)
	eng.OnStep = sim.Step
	if err := eng.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}

	if want := (space.Vec3{11.5, 11.5, 1.5}); c.Position != want {
		t.Fatalf("position = %v, want %v", c.Position, want)
	}
	if field.steps != 3 {
		t.Fatalf("field stepped %d times, want 3", field.steps)
	}
	if sim.CurrentTick() != 3 {
		t.Fatalf("tick = %d", sim.CurrentTick())
	}
	st := sim.CurrentStats()
	if st.Moving != 1 || st.Settled != 0 || st.Tick != 3 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestSimulationHoldsCellsAtThreshold(t *testing.T) {
	field := &constSolver{conc: 2.5e-6, grad: space.Vec3{1, 1, 1}}
	c := cells.NewCell(cells.TypeGanglion, space.Vec3{10, 10, 0})
	sim, err := NewSimulation(field, populationOf(c), testBounds, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	for tick := uint64(1); tick <= 20; tick++ {
		if err := sim.Step(tick); err != nil {
			t.Fatalf("step %d: %v", tick, err)
		}
	}
	if c.Position != (space.Vec3{10, 10, 0}) {
		t.Fatalf("cell moved to %v", c.Position)
	}
	if st := sim.CurrentStats(); st.Moving != 0 || st.Settled != 1 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestSimulationSolvesFieldBeforeMovingCells(t *testing.T) {
	field := &saturatingSolver{}
	c := cells.NewCell(cells.TypeCone, space.Vec3{1, 2, 3})
	sim, err := NewSimulation(field, populationOf(c), testBounds, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := sim.Step(1); err != nil {
		t.Fatal(err)
	}
	// A cell that read the field before it was solved would have moved.
	if c.Position != (space.Vec3{1, 2, 3}) {
		t.Fatalf("cell observed the unsolved field: %v", c.Position)
	}
}

func TestSimulationLayerStats(t *testing.T) {
	// 1e-8 is below the ganglion, amacrine and bipolar thresholds only.
	field := &constSolver{conc: 1e-8, grad: space.Vec3{0, 0, 2}}
	pop := cells.NewPopulation()
	for _, typ := range cells.AllTypes {
		pop.Append(cells.NewCell(typ, space.Vec3{5, 5, 0}))
		pop.Append(cells.NewCell(typ, space.Vec3{5, 5, 4}))
	}
	sim, err := NewSimulation(field, pop, testBounds, 1, 3)
	if err != nil {
		t.Fatal(err)
	}
	if err := sim.Step(1); err != nil {
		t.Fatal(err)
	}

	st := sim.CurrentStats()
	if st.TotalCells != 12 || st.Moving != 6 || st.Settled != 6 {
		t.Fatalf("totals = %+v", st)
	}
	if len(st.Layers) != len(cells.AllTypes) {
		t.Fatalf("layers = %d", len(st.Layers))
	}
	for _, typ := range []cells.CellType{cells.TypeGanglion, cells.TypeAmacrine, cells.TypeBipolar} {
		l, ok := st.Layer(typ)
		if !ok || l.Moving != 2 || l.MeanDepth != 3 {
			t.Fatalf("%s layer = %+v", typ, l)
		}
	}
	for _, typ := range []cells.CellType{cells.TypeHorizontal, cells.TypeCone, cells.TypeRod} {
		l, ok := st.Layer(typ)
		if !ok || l.Settled != 2 || l.MeanDepth != 2 {
			t.Fatalf("%s layer = %+v", typ, l)
		}
	}
}

func TestSimulationCountsCellsOutsideDomain(t *testing.T) {
	field := &constSolver{conc: 0, grad: space.Vec3{0, 0, 1}}
	c := cells.NewCell(cells.TypeGanglion, space.Vec3{1, 1, 249.75})
	sim, err := NewSimulation(field, populationOf(c), testBounds, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := sim.Step(1); err != nil {
		t.Fatal(err)
	}
	// Cells are never clamped; leaving the domain is only reported.
	if c.Position.Z() != 250.25 {
		t.Fatalf("z = %v", c.Position.Z())
	}
	if sim.CurrentStats().OutOfBounds != 1 {
		t.Fatalf("out of bounds = %d", sim.CurrentStats().OutOfBounds)
	}
}

func runGrid(t *testing.T, workers int) []cells.Cell {
	t.Helper()
	pop := cells.NewPopulation()
	if err := cells.NewSpawner(11).SpawnPopulation(pop, testBounds, cells.DefaultPopulation()); err != nil {
		t.Fatal(err)
	}
	grid, err := diffusion.NewGrid(diffusion.DefaultParams(testBounds))
	if err != nil {
		t.Fatal(err)
	}
	grid.Initialize(diffusion.GaussianBand(200, 100, space.AxisZ))
	sim, err := NewSimulation(grid, pop, testBounds, 1, workers)
	if err != nil {
		t.Fatal(err)
	}
	for tick := uint64(1); tick <= 80; tick++ {
		if err := sim.Step(tick); err != nil {
			t.Fatalf("step %d: %v", tick, err)
		}
	}
	return sim.Snapshot()
}

func TestParallelMoveMatchesSerial(t *testing.T) {
	serial := runGrid(t, 1)
	parallel := runGrid(t, 8)
	if len(serial) != len(parallel) {
		t.Fatalf("lengths differ: %d vs %d", len(serial), len(parallel))
	}
	moved := false
	for i := range serial {
		if serial[i].Position != parallel[i].Position || serial[i].Type != parallel[i].Type {
			t.Fatalf("cell %d differs: %v vs %v", i, serial[i].Position, parallel[i].Position)
		}
		if serial[i].Position.Z() != 0 {
			moved = true
		}
	}
	if !moved {
		t.Fatal("no cell moved off the plane")
	}
}

func TestRodsStayOnPlaneInFullRun(t *testing.T) {
	for _, c := range runGrid(t, 4) {
		if c.Type == cells.TypeRod && c.Position.Z() != 0 {
			t.Fatalf("rod left the plane: %v", c.Position)
		}
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	c := cells.NewCell(cells.TypeBipolar, space.Vec3{1, 1, 1})
	sim, err := NewSimulation(&constSolver{}, populationOf(c), testBounds, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	snap := sim.Snapshot()
	snap[0].Position = space.Vec3{9, 9, 9}
	if c.Position != (space.Vec3{1, 1, 1}) {
		t.Fatalf("snapshot aliases the population")
	}
}
