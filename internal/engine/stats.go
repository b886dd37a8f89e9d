package engine

import (
	"gonum.org/v1/gonum/stat"

	"github.com/talgya/retinasim/internal/cells"
)

// SimStats summarises the population after a step.
type SimStats struct {
	Tick        uint64       `json:"tick"`
	TotalCells  int          `json:"total_cells"`
	Moving      int          `json:"moving"`
	Settled     int          `json:"settled"`
	OutOfBounds int          `json:"out_of_bounds"`
	FieldTotal  float64      `json:"field_total"`
	FieldMax    float64      `json:"field_max"`
	Layers      []LayerStats `json:"layers"`
}

// LayerStats summarises one cell type. Depth is the z coordinate; Moving
// counts cells whose position changed in the last step.
type LayerStats struct {
	Type        cells.CellType `json:"type_tag"`
	Name        string         `json:"type"`
	Count       int            `json:"count"`
	Moving      int            `json:"moving"`
	Settled     int            `json:"settled"`
	MeanDepth   float64        `json:"mean_depth"`
	DepthStdDev float64        `json:"depth_stddev"`
}

// Layer returns the stats for type t, if present.
func (st SimStats) Layer(t cells.CellType) (LayerStats, bool) {
	for _, l := range st.Layers {
		if l.Type == t {
			return l, true
		}
	}
	return LayerStats{}, false
}

// fieldSummary is implemented by fields that can report their totals.
type fieldSummary interface {
	Total() float64
	MaxConcentration() float64
}

func (s *Simulation) updateStats() {
	depths := make(map[cells.CellType][]float64, len(cells.AllTypes))
	moving := make(map[cells.CellType]int, len(cells.AllTypes))
	out := 0

	for i, c := range s.Cells.All() {
		depths[c.Type] = append(depths[c.Type], c.Position.Z())
		if i < len(s.moved) && s.moved[i] {
			moving[c.Type]++
		}
		if !s.Bounds.Contains(c.Position) {
			out++
		}
	}

	st := SimStats{
		Tick:        s.LastTick,
		TotalCells:  s.Cells.Len(),
		OutOfBounds: out,
	}
	for _, t := range cells.AllTypes {
		z := depths[t]
		if len(z) == 0 {
			continue
		}
		l := LayerStats{
			Type:    t,
			Name:    t.String(),
			Count:   len(z),
			Moving:  moving[t],
			Settled: len(z) - moving[t],
		}
		if len(z) > 1 {
			l.MeanDepth, l.DepthStdDev = stat.MeanStdDev(z, nil)
		} else {
			l.MeanDepth = z[0]
		}
		st.Moving += l.Moving
		st.Settled += l.Settled
		st.Layers = append(st.Layers, l)
	}
	if fs, ok := s.Field.(fieldSummary); ok {
		st.FieldTotal = fs.Total()
		st.FieldMax = fs.MaxConcentration()
	}
	s.Stats = st
}
