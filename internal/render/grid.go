package render

import (
	"math"

	"gmi-rain/internal/common"
)

// binned is a regular lat/lon grid holding the mean of the swath pixels that
// fall in each cell. Empty cells are NaN. It satisfies plotter.GridXYZ.
type binned struct {
	cols, rows int
	lon0, lat0 float64
	res        float64
	z          []float64
}

// binField averages the finite pixels of f inside box onto cells of res
// degrees. The resolution is coarsened when the box would need too many
// cells.
func binField(f Field, box common.BBox, res float64) *binned {
	width := box.LonMax - box.LonMin
	height := box.LatMax - box.LatMin
	if cells := (width / res) * (height / res); cells > maxCells {
		res *= math.Sqrt(cells / maxCells)
	}

	g := &binned{
		cols: max(1, int(math.Ceil(width/res))),
		rows: max(1, int(math.Ceil(height/res))),
		lon0: box.LonMin,
		lat0: box.LatMin,
		res:  res,
	}
	sum := make([]float64, g.cols*g.rows)
	count := make([]int, len(sum))

	for i, v := range f.Values {
		lat, lon := f.Lat[i], f.Lon[i]
		if math.IsNaN(v) || math.IsInf(v, 0) || !box.Contains(lat, lon) {
			continue
		}
		c := min(int((lon-g.lon0)/res), g.cols-1)
		r := min(int((lat-g.lat0)/res), g.rows-1)
		sum[r*g.cols+c] += v
		count[r*g.cols+c]++
	}

	g.z = sum
	for i, n := range count {
		if n == 0 {
			g.z[i] = math.NaN()
		} else {
			g.z[i] /= float64(n)
		}
	}
	return g
}

func (g *binned) Dims() (c, r int)   { return g.cols, g.rows }
func (g *binned) Z(c, r int) float64 { return g.z[r*g.cols+c] }
func (g *binned) X(c int) float64    { return g.lon0 + (float64(c)+0.5)*g.res }
func (g *binned) Y(r int) float64    { return g.lat0 + (float64(r)+0.5)*g.res }

// valueRange is the min and max of the filled cells.
func (g *binned) valueRange() (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range g.z {
		if math.IsNaN(v) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if math.IsInf(lo, 1) {
		return 0, 0
	}
	return lo, hi
}
