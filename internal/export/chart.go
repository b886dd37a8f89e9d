package export

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/talgya/retinasim/internal/cells"
)

// ErrNotEnoughPoints is returned when a depth chart has fewer than two
// report ticks to plot.
var ErrNotEnoughPoints = errors.New("depth chart needs at least two report ticks")

// DepthSeries is the mean depth of one cell type at each report tick.
type DepthSeries struct {
	Type      cells.CellType
	Ticks     []float64
	MeanDepth []float64
}

var layerColors = map[cells.CellType]drawing.Color{
	cells.TypeGanglion:   {R: 214, G: 39, B: 40, A: 255},
	cells.TypeAmacrine:   {R: 255, G: 127, B: 14, A: 255},
	cells.TypeBipolar:    {R: 44, G: 160, B: 44, A: 255},
	cells.TypeHorizontal: {R: 148, G: 103, B: 189, A: 255},
	cells.TypeCone:       {R: 31, G: 119, B: 180, A: 255},
	cells.TypeRod:        {R: 127, G: 127, B: 127, A: 255},
}

// RenderDepthChart draws mean depth against step for every series as a PNG.
func RenderDepthChart(w io.Writer, series []DepthSeries) error {
	var plotted []chart.Series
	for _, s := range series {
		if len(s.Ticks) < 2 || len(s.Ticks) != len(s.MeanDepth) {
			continue
		}
		plotted = append(plotted, chart.ContinuousSeries{
			Name:    s.Type.String(),
			XValues: s.Ticks,
			YValues: s.MeanDepth,
			Style:   chart.Style{StrokeColor: layerColors[s.Type], StrokeWidth: 3.0},
		})
	}
	if len(plotted) == 0 {
		return ErrNotEnoughPoints
	}

	graph := chart.Chart{
		Title:  "Mean layer depth",
		Width:  960,
		Height: 540,
		XAxis: chart.XAxis{
			Name:  "step",
			Style: chart.Style{FontSize: 10.0},
			ValueFormatter: func(v interface{}) string {
				return fmt.Sprintf("%d", int(v.(float64)))
			},
		},
		YAxis: chart.YAxis{
			Name:  "z",
			Style: chart.Style{FontSize: 10.0},
		},
		Series: plotted,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	return graph.Render(chart.PNG, w)
}

// WriteDepthChart renders the chart to a file at path.
func WriteDepthChart(path string, series []DepthSeries) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := RenderDepthChart(f, series); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return fmt.Errorf("render depth chart: %w", err)
	}
	return f.Close()
}
