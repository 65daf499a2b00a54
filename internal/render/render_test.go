package render

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"gmi-rain/internal/common"
	"gmi-rain/internal/ml"

	"github.com/ctessum/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingObserver struct{ n int }

func (c *countingObserver) FigureRendered() { c.n++ }

// testField is a rows x cols swath over the Ionian Sea with a NaN pixel and
// a pixel outside the box.
func testField(t *testing.T, rows, cols int) Field {
	t.Helper()
	n := rows * cols
	values := make([]float64, n)
	lat := make([]float64, n)
	lon := make([]float64, n)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			i := r*cols + c
			lat[i] = 34.5 + 5*float64(r)/float64(rows)
			lon[i] = 14.5 + 7*float64(c)/float64(cols)
			values[i] = 150 + float64(i)
		}
	}
	values[0] = math.NaN()
	lat[1] = 60
	f, err := NewField(rows, cols, values, lat, lon)
	require.NoError(t, err)
	return f
}

func assertPNG(t *testing.T, path string) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Greater(t, len(data), 8)
	assert.Equal(t, "\x89PNG", string(data[:4]))
}

func TestNewField(t *testing.T) {
	_, err := NewField(2, 2, make([]float64, 4), make([]float64, 4), make([]float64, 4))
	assert.NoError(t, err)

	_, err = NewField(2, 2, make([]float64, 4), make([]float64, 3), make([]float64, 4))
	assert.ErrorIs(t, err, ErrShape)

	_, err = NewField(0, 2, nil, nil, nil)
	assert.ErrorIs(t, err, ErrShape)
}

func TestSlug(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"TB 10.65 GHz (V)", "tb-10-65-ghz-v"},
		{"  GPROF surface precipitation  ", "gprof-surface-precipitation"},
		{"TB 183.31±3 GHz (V)", "tb-183-31-3-ghz-v"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, Slug(tt.title))
		})
	}
}

func TestOutputPath(t *testing.T) {
	assert.Equal(t, "out.png", Options{Output: "out.png", Title: "x"}.OutputPath())
	assert.Equal(t, filepath.Join("figures", "rain-rate.png"), Options{Title: "Rain rate"}.OutputPath())
	assert.Equal(t, filepath.Join("maps", "map.png"), Options{Dir: "maps"}.OutputPath())
}

func TestBinField(t *testing.T) {
	f, err := NewField(1, 4,
		[]float64{1, 3, math.NaN(), 10},
		[]float64{0.1, 0.2, 0.3, 5},
		[]float64{0.1, 0.2, 0.3, 0.4})
	require.NoError(t, err)

	box := common.BBox{LatMin: 0, LatMax: 2, LonMin: 0, LonMax: 2}
	g := binField(f, box, 1)

	c, r := g.Dims()
	assert.Equal(t, 2, c)
	assert.Equal(t, 2, r)
	// The first two pixels share cell (0, 0); NaN and out-of-box are skipped.
	assert.Equal(t, 2.0, g.Z(0, 0))
	assert.True(t, math.IsNaN(g.Z(1, 1)))
	assert.Equal(t, 0.5, g.X(0))
	assert.Equal(t, 1.5, g.Y(1))

	lo, hi := g.valueRange()
	assert.Equal(t, 2.0, lo)
	assert.Equal(t, 2.0, hi)
}

func TestBinFieldCoarsensHugeBoxes(t *testing.T) {
	f, err := NewField(1, 1, []float64{1}, []float64{0}, []float64{0})
	require.NoError(t, err)
	box := common.BBox{LatMin: -90, LatMax: 90, LonMin: -180, LonMax: 180}
	g := binField(f, box, 0.01)
	c, r := g.Dims()
	assert.LessOrEqual(t, c*r, maxCells+c+r+1)
}

func TestGraticuleTicks(t *testing.T) {
	ticks := graticuleTicks(33.5, 40, 2)
	var values []float64
	for _, tk := range ticks {
		values = append(values, tk.Value)
	}
	assert.Equal(t, []float64{34, 36, 38, 40}, values)
	assert.Equal(t, "34", ticks[0].Label)
}

func TestRender(t *testing.T) {
	obs := &countingObserver{}
	r := NewMapRenderer(obs)
	dir := t.TempDir()

	opts := Options{
		BBox:  common.IonianSea,
		Range: [2]float64{130, 300},
		Title: "TB 89.0 GHz (V)",
		Label: "K",
		Dir:   dir,
		DPI:   40,
	}
	require.NoError(t, r.Render(testField(t, 20, 30), opts))
	assertPNG(t, filepath.Join(dir, "tb-89-0-ghz-v.png"))
	assert.Equal(t, 1, obs.n)
}

func TestRenderDerivesBoxAndRange(t *testing.T) {
	r := NewMapRenderer(nil)
	out := filepath.Join(t.TempDir(), "nested", "rain.png")
	f := testField(t, 10, 10)
	f.Lat[1] = 35 // keep the extent small

	err := r.Render(f, Options{Output: out, DPI: 40, ColorMap: RainColorMap(), Coastline: filepath.Join(t.TempDir(), "missing.shp")})
	require.NoError(t, err)
	assertPNG(t, out)
}

func TestRenderErrors(t *testing.T) {
	r := NewMapRenderer(nil)
	dir := t.TempDir()

	err := r.Render(Field{Rows: 2, Cols: 2, Values: make([]float64, 3)}, Options{Dir: dir})
	assert.ErrorIs(t, err, ErrShape)

	nan := []float64{math.NaN()}
	err = r.Render(Field{Rows: 1, Cols: 1, Values: []float64{1}, Lat: nan, Lon: nan}, Options{Dir: dir})
	assert.ErrorIs(t, err, ErrEmpty)

	f := testField(t, 2, 2)
	err = r.Render(f, Options{Dir: dir, BBox: common.BBox{LatMin: 10, LatMax: 0, LonMin: 0, LonMax: 1}})
	assert.Error(t, err)
}

func TestGrid(t *testing.T) {
	obs := &countingObserver{}
	r := NewMapRenderer(obs)
	out := filepath.Join(t.TempDir(), "h.png")

	f := testField(t, 8, 8)
	panels := []Panel{
		{Title: "TB 10.65 GHz (H)", Field: &f},
		{Title: "TB 18.7 GHz (H)", Field: &f},
		{Title: "no channel"},
		{Title: "TB 36.5 GHz (H)", Field: &f},
	}
	require.NoError(t, r.Grid(panels, 3, Options{BBox: common.IonianSea, Output: out, DPI: 30}))
	assertPNG(t, out)
	assert.Equal(t, 1, obs.n)

	assert.ErrorIs(t, r.Grid([]Panel{{Title: "empty"}}, 3, Options{Output: out}), ErrEmpty)
	assert.Error(t, r.Grid(panels, 0, Options{Output: out}))
}

func TestSharedRange(t *testing.T) {
	a := Field{Values: []float64{1, math.NaN(), 5}}
	b := Field{Values: []float64{-2, math.Inf(1)}}
	assert.Equal(t, [2]float64{-2, 5}, sharedRange([]Panel{{Field: &a}, {}, {Field: &b}}))
	assert.Equal(t, [2]float64{}, sharedRange([]Panel{{}}))
}

func TestLearningCurves(t *testing.T) {
	r := NewMapRenderer(nil)
	out := filepath.Join(t.TempDir(), "curves.png")

	h := ml.History{}
	for i := 1; i <= 5; i++ {
		h.Epochs = append(h.Epochs, ml.EpochStats{
			Epoch:     i,
			TrainLoss: 1 / float64(i),
			TrainMAE:  0.5 / float64(i),
			TestLoss:  math.NaN(),
			TestMAE:   math.NaN(),
		})
	}
	require.NoError(t, r.LearningCurves(h, out, 30))
	assertPNG(t, out)

	assert.ErrorIs(t, r.LearningCurves(ml.History{}, out, 30), ErrEmpty)
}

func TestGeomPaths(t *testing.T) {
	line := geom.LineString{{X: 14, Y: 36}, {X: 15, Y: 37}}
	poly := geom.Polygon{{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}}}

	assert.Len(t, geomPaths(line), 1)
	assert.Len(t, geomPaths(geom.MultiLineString{line, line}), 2)
	assert.Len(t, geomPaths(poly), 1)
	assert.Len(t, geomPaths(geom.MultiPolygon{poly, poly}), 2)
	assert.Empty(t, geomPaths(geom.Point{X: 1, Y: 1}))
}
