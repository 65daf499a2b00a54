package render

import (
	"fmt"

	"gmi-rain/internal/common"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	"gonum.org/v1/plot/plotter"
)

// coastMargin widens the box when selecting coastline paths so lines that
// cross the map edge are kept.
const coastMargin = 1.0

// coastlines returns the shapefile paths that touch box. The whole file is
// read once per renderer and cached.
func (r *MapRenderer) coastlines(path string, box common.BBox) ([]plotter.XYs, error) {
	all, ok := r.coasts[path]
	if !ok {
		var err error
		if all, err = readCoastlines(path); err != nil {
			return nil, err
		}
		r.coasts[path] = all
	}

	wide := common.BBox{
		LatMin: box.LatMin - coastMargin, LatMax: box.LatMax + coastMargin,
		LonMin: box.LonMin - coastMargin, LonMax: box.LonMax + coastMargin,
	}
	var out []plotter.XYs
	for _, xys := range all {
		for _, pt := range xys {
			if wide.Contains(pt.Y, pt.X) {
				out = append(out, xys)
				break
			}
		}
	}
	return out, nil
}

func readCoastlines(path string) ([]plotter.XYs, error) {
	d, err := shp.NewDecoder(path)
	if err != nil {
		return nil, fmt.Errorf("open coastline shapefile: %w", err)
	}
	defer d.Close()

	var lines []plotter.XYs
	for {
		g, _, more := d.DecodeRowFields()
		if !more {
			break
		}
		for _, seg := range geomPaths(g) {
			if len(seg) < 2 {
				continue
			}
			xys := make(plotter.XYs, len(seg))
			for i, pt := range seg {
				xys[i] = plotter.XY{X: pt.X, Y: pt.Y}
			}
			lines = append(lines, xys)
		}
	}
	if err := d.Error(); err != nil {
		return nil, fmt.Errorf("read coastline shapefile: %w", err)
	}
	return lines, nil
}

// geomPaths flattens line and polygon geometries into point sequences.
func geomPaths(g geom.Geom) [][]geom.Point {
	var out [][]geom.Point
	switch g := g.(type) {
	case geom.LineString:
		out = append(out, []geom.Point(g))
	case geom.MultiLineString:
		for _, l := range g {
			out = append(out, []geom.Point(l))
		}
	case geom.Polygon:
		for _, ring := range g {
			out = append(out, []geom.Point(ring))
		}
	case geom.MultiPolygon:
		for _, poly := range g {
			for _, ring := range poly {
				out = append(out, []geom.Point(ring))
			}
		}
	}
	return out
}
