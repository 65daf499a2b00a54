package render

import (
	"fmt"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// Panel is one map in a multi-panel figure. A nil Field leaves the panel
// empty.
type Panel struct {
	Title string
	Field *Field
}

// Grid draws panels row by row, cols per row, sharing one colour bar and
// one colour range. o.Title names the file when o.Output is empty.
func (r *MapRenderer) Grid(panels []Panel, cols int, o Options) error {
	if cols <= 0 {
		return fmt.Errorf("grid needs at least one column, got %d", cols)
	}
	if len(panels) == 0 {
		return ErrEmpty
	}
	o = o.withDefaults()
	rows := (len(panels) + cols - 1) / cols
	if !(o.Range[1] > o.Range[0]) {
		o.Range = sharedRange(panels)
	}

	plots := make([][]*plot.Plot, rows)
	var cm palette.ColorMap
	for i := range plots {
		plots[i] = make([]*plot.Plot, cols)
	}
	for i, panel := range panels {
		if panel.Field == nil {
			continue
		}
		p, pcm, err := r.mapPlot(*panel.Field, o)
		if err != nil {
			return fmt.Errorf("panel %q: %w", panel.Title, err)
		}
		p.Title.Text = panel.Title
		plots[i/cols][i%cols] = p
		cm = pcm
	}
	if cm == nil {
		return ErrEmpty
	}

	w := vg.Length(cols) * 4 * vg.Inch
	h := vg.Length(rows)*3.5*vg.Inch + colorbarSize
	img := vgimg.NewWith(vgimg.UseWH(w, h), vgimg.UseDPI(o.DPI))
	dc := draw.New(img)

	tiles := draw.Tiles{
		Rows: rows, Cols: cols,
		PadX: vg.Millimeter * 4, PadY: vg.Millimeter * 4,
		PadTop: vg.Millimeter * 2, PadLeft: vg.Millimeter * 2, PadRight: vg.Millimeter * 2,
	}
	canvases := plot.Align(plots, tiles, draw.Crop(dc, 0, 0, colorbarSize, 0))
	for j := range plots {
		for i, p := range plots[j] {
			if p != nil {
				p.Draw(canvases[j][i])
			}
		}
	}
	colorBar(cm, o).Draw(draw.Crop(dc, w/4, -w/4, 0, -(h - colorbarSize)))

	return r.save(o.OutputPath(), img)
}

// sharedRange is the finite value range over every panel.
func sharedRange(panels []Panel) [2]float64 {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, p := range panels {
		if p.Field == nil {
			continue
		}
		for _, v := range p.Field.Values {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	if math.IsInf(lo, 1) {
		return [2]float64{}
	}
	return [2]float64{lo, hi}
}
