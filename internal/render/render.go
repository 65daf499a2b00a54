// Package render draws swath fields on a latitude/longitude map and plots
// training curves. Images are written as PNG files.
package render

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gmi-rain/internal/common"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

const (
	DefaultDPI        = 300
	DefaultGraticule  = 2.0  // degrees
	DefaultResolution = 0.05 // degrees per map cell
	DefaultDir        = "figures"

	maxCells     = 4_000_000
	paletteSize  = 255
	colorbarSize = vg.Length(0.9 * vg.Inch)
)

var (
	ErrShape = errors.New("field shape mismatch")
	ErrEmpty = errors.New("nothing to draw")
)

// Field is a 2-D swath quantity with its pixel coordinates, stored row-major
// over (scan, pixel).
type Field struct {
	Rows   int
	Cols   int
	Values []float64
	Lat    []float64
	Lon    []float64
}

// NewField checks that values and coordinates share one rows x cols shape.
func NewField(rows, cols int, values, lat, lon []float64) (Field, error) {
	n := rows * cols
	if rows <= 0 || cols <= 0 {
		return Field{}, fmt.Errorf("%w: %dx%d", ErrShape, rows, cols)
	}
	if len(values) != n || len(lat) != n || len(lon) != n {
		return Field{}, fmt.Errorf("%w: %dx%d grid with %d values, %d latitudes, %d longitudes",
			ErrShape, rows, cols, len(values), len(lat), len(lon))
	}
	return Field{Rows: rows, Cols: cols, Values: values, Lat: lat, Lon: lon}, nil
}

// Options controls a map figure. Zero values fall back to the defaults.
type Options struct {
	BBox       common.BBox
	Range      [2]float64 // colour scale min, max
	Title      string
	Label      string // colour bar label
	Output     string
	Dir        string // used with the title when Output is empty
	DPI        int
	Graticule  float64
	Resolution float64
	Coastline  string // shapefile path
	ColorMap   palette.ColorMap
}

// OutputPath is Output, or <Dir>/<slug(Title)>.png when Output is empty.
func (o Options) OutputPath() string {
	if o.Output != "" {
		return o.Output
	}
	dir := o.Dir
	if dir == "" {
		dir = DefaultDir
	}
	name := Slug(o.Title)
	if name == "" {
		name = "map"
	}
	return filepath.Join(dir, name+".png")
}

func (o Options) withDefaults() Options {
	if o.DPI <= 0 {
		o.DPI = DefaultDPI
	}
	if o.Graticule <= 0 {
		o.Graticule = DefaultGraticule
	}
	if o.Resolution <= 0 {
		o.Resolution = DefaultResolution
	}
	if o.ColorMap == nil {
		o.ColorMap = TBColorMap()
	}
	return o
}

// Renderer draws one field to an image file.
type Renderer interface {
	Render(f Field, o Options) error
}

// Observer is told about every written figure.
type Observer interface {
	FigureRendered()
}

// MapRenderer renders fields as gridded heat maps with a colour bar, a
// graticule and optional coastlines.
type MapRenderer struct {
	observer Observer
	coasts   map[string][]plotter.XYs
}

var _ Renderer = (*MapRenderer)(nil)

func NewMapRenderer(observer Observer) *MapRenderer {
	return &MapRenderer{observer: observer, coasts: make(map[string][]plotter.XYs)}
}

// TBColorMap is the colour scale for brightness temperature maps.
func TBColorMap() palette.ColorMap { return moreland.Kindlmann() }

// RainColorMap is the colour scale for rain rate maps.
func RainColorMap() palette.ColorMap { return moreland.ExtendedBlackBody() }

// Render bins the field onto a regular grid inside the bounding box and
// writes the figure to o.OutputPath().
func (r *MapRenderer) Render(f Field, o Options) error {
	o = o.withDefaults()
	p, cm, err := r.mapPlot(f, o)
	if err != nil {
		return err
	}
	p.Title.Text = o.Title

	w, h := 8*vg.Inch, 7*vg.Inch
	img := vgimg.NewWith(vgimg.UseWH(w, h), vgimg.UseDPI(o.DPI))
	dc := draw.New(img)
	p.Draw(draw.Crop(dc, 0, 0, colorbarSize, 0))
	colorBar(cm, o).Draw(draw.Crop(dc, 0.5*vg.Inch, -0.5*vg.Inch, 0, -(h - colorbarSize)))

	return r.save(o.OutputPath(), img)
}

// mapPlot builds the map panel for one field. The returned colour map has
// its range set from the options or, failing that, from the data.
func (r *MapRenderer) mapPlot(f Field, o Options) (*plot.Plot, palette.ColorMap, error) {
	if _, err := NewField(f.Rows, f.Cols, f.Values, f.Lat, f.Lon); err != nil {
		return nil, nil, err
	}
	box := o.BBox
	if box.IsZero() {
		var ok bool
		if box, ok = extent(f); !ok {
			return nil, nil, fmt.Errorf("%w: no finite coordinates", ErrEmpty)
		}
	}
	if !box.Valid() {
		return nil, nil, fmt.Errorf("invalid bounding box %+v", box)
	}

	g := binField(f, box, o.Resolution)
	lo, hi := o.Range[0], o.Range[1]
	if !(hi > lo) {
		lo, hi = g.valueRange()
		if !(hi > lo) {
			hi = lo + 1
		}
	}
	cm := o.ColorMap
	cm.SetMin(lo)
	cm.SetMax(hi)

	hm := plotter.NewHeatMap(g, cm.Palette(paletteSize))
	hm.Min, hm.Max = lo, hi
	hm.NaN = color.Transparent
	colors := hm.Palette.Colors()
	hm.Underflow = colors[0]
	hm.Overflow = colors[len(colors)-1]

	p := plot.New()
	p.X.Label.Text = "Longitude (°E)"
	p.Y.Label.Text = "Latitude (°N)"
	p.Add(hm)

	grid := plotter.NewGrid()
	p.Add(grid)
	p.X.Tick.Marker = graticuleTicks(box.LonMin, box.LonMax, o.Graticule)
	p.Y.Tick.Marker = graticuleTicks(box.LatMin, box.LatMax, o.Graticule)

	if o.Coastline != "" {
		lines, err := r.coastlines(o.Coastline, box)
		if err != nil {
			log.Warn().Err(err).Str("path", o.Coastline).Msg("Drawing map without coastlines")
		}
		for _, xys := range lines {
			l, err := plotter.NewLine(xys)
			if err != nil {
				continue
			}
			l.LineStyle.Width = vg.Points(0.6)
			p.Add(l)
		}
	}

	p.X.Min, p.X.Max = box.LonMin, box.LonMax
	p.Y.Min, p.Y.Max = box.LatMin, box.LatMax
	return p, cm, nil
}

func colorBar(cm palette.ColorMap, o Options) *plot.Plot {
	p := plot.New()
	p.HideY()
	p.X.Padding = 0
	p.X.Label.Text = o.Label
	p.Add(&plotter.ColorBar{ColorMap: cm})
	return p
}

// graticuleTicks labels every multiple of step between lo and hi.
func graticuleTicks(lo, hi, step float64) plot.ConstantTicks {
	var ticks plot.ConstantTicks
	for v := math.Ceil(lo/step) * step; v <= hi+1e-9; v += step {
		ticks = append(ticks, plot.Tick{Value: v, Label: fmt.Sprintf("%g", v)})
	}
	return ticks
}

// extent returns the bounding box of the finite coordinates in f.
func extent(f Field) (common.BBox, bool) {
	box := common.BBox{LatMin: math.Inf(1), LatMax: math.Inf(-1), LonMin: math.Inf(1), LonMax: math.Inf(-1)}
	found := false
	for i := range f.Lat {
		lat, lon := f.Lat[i], f.Lon[i]
		if math.IsNaN(lat) || math.IsNaN(lon) {
			continue
		}
		found = true
		box.LatMin = math.Min(box.LatMin, lat)
		box.LatMax = math.Max(box.LatMax, lat)
		box.LonMin = math.Min(box.LonMin, lon)
		box.LonMax = math.Max(box.LonMax, lon)
	}
	return box, found && box.LatMax > box.LatMin && box.LonMax > box.LonMin
}

func (r *MapRenderer) save(path string, img *vgimg.Canvas) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create figure directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".figure-*")
	if err != nil {
		return fmt.Errorf("failed to create figure: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close figure: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move figure into place: %w", err)
	}

	if r.observer != nil {
		r.observer.FigureRendered()
	}
	log.Info().Str("path", path).Msg("Figure written")
	return nil
}

// Slug turns a title into a file name: lower case letters and digits
// separated by single dashes.
func Slug(title string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(title) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			dash = false
			b.WriteRune(r)
			continue
		}
		dash = true
	}
	return b.String()
}
