package cells

// Registry receives newly generated cells. Cells have no identity beyond
// insertion order.
type Registry interface {
	// Reserve is a capacity hint for n more cells.
	Reserve(n int)
	Append(c *Cell)
}

// Population is the ordered, homogeneous store of every cell in a run.
type Population struct {
	cells []*Cell
}

// NewPopulation creates an empty population.
func NewPopulation() *Population {
	return &Population{}
}

// Reserve grows capacity for n more cells.
func (p *Population) Reserve(n int) {
	if n <= 0 || cap(p.cells)-len(p.cells) >= n {
		return
	}
	grown := make([]*Cell, len(p.cells), len(p.cells)+n)
	copy(grown, p.cells)
	p.cells = grown
}

// Append adds c at the end of the population.
func (p *Population) Append(c *Cell) {
	p.cells = append(p.cells, c)
}

// Len returns the number of cells.
func (p *Population) Len() int {
	return len(p.cells)
}

// At returns the i-th cell in insertion order.
func (p *Population) At(i int) *Cell {
	return p.cells[i]
}

// All returns the backing slice. Callers may mutate cell positions but
// must not reorder or resize it.
func (p *Population) All() []*Cell {
	return p.cells
}

// CountByType tallies cells per type tag.
func (p *Population) CountByType() map[CellType]int {
	counts := make(map[CellType]int, len(AllTypes))
	for _, c := range p.cells {
		counts[c.Type]++
	}
	return counts
}
