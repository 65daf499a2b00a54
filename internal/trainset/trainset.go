// Package trainset reads and writes the training-set artifact: a flat table
// of 13-channel TB vectors (`tb`, pixel x channel) and GPROF rain rates
// (`rr`, pixel).
package trainset

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"gmi-rain/internal/common"
	"gmi-rain/internal/swath"

	"github.com/rs/zerolog/log"
)

const (
	VarTB = "tb"
	VarRR = "rr"

	DimPixel   = "pixel"
	DimChannel = "channel"
)

var (
	ErrFormat   = errors.New("unrecognised training-set encoding")
	ErrShape    = errors.New("training-set shape mismatch")
	ErrChannels = errors.New("training-set channel count")
	ErrEmpty    = errors.New("empty training set")
)

var (
	magicCDF1 = []byte("CDF\x01")
	magicCDF2 = []byte("CDF\x02")
	magicHDF5 = []byte("\x89HDF")
)

// Set is the in-memory training table. X has one row of ChannelCount values
// per example, Y the matching rain rate in mm/h.
type Set struct {
	X [][]float64
	Y []float64
}

// Len returns the number of examples.
func (s *Set) Len() int { return len(s.Y) }

// Read loads a training set, detecting netCDF classic or netCDF-4/HDF5 by
// the file's magic bytes.
func Read(path string) (*Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open training set %s: %w", path, err)
	}
	head := make([]byte, 4)
	_, err = io.ReadFull(f, head)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFormat, path, err)
	}

	var (
		tb, rr []float64
		tbDims []int
	)
	switch {
	case bytes.Equal(head, magicCDF1), bytes.Equal(head, magicCDF2):
		tb, tbDims, rr, err = readCDF(path)
	case bytes.Equal(head, magicHDF5):
		tb, tbDims, rr, err = readHDF5(path)
	default:
		return nil, fmt.Errorf("%w: %s starts with %q", ErrFormat, path, head)
	}
	if err != nil {
		return nil, err
	}
	set, err := fromFlat(tb, tbDims, rr)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	log.Info().
		Str("path", path).
		Int("examples", set.Len()).
		Msg("Training set loaded")
	return set, nil
}

func readHDF5(path string) ([]float64, []int, []float64, error) {
	f, err := swath.Open(path)
	if err != nil {
		return nil, nil, nil, err
	}
	defer f.Close()

	tb, dims, err := f.Float64(VarTB)
	if err != nil {
		return nil, nil, nil, err
	}
	rr, _, err := f.Float64(VarRR)
	if err != nil {
		return nil, nil, nil, err
	}
	tbDims := make([]int, len(dims))
	for i, d := range dims {
		tbDims[i] = int(d)
	}
	return tb, tbDims, rr, nil
}

// fromFlat reshapes a row-major tb buffer into rows. A (channel, pixel)
// layout is transposed.
func fromFlat(tb []float64, dims []int, rr []float64) (*Set, error) {
	if len(dims) != 2 {
		return nil, fmt.Errorf("%w: %s has %d dimensions, want 2", ErrShape, VarTB, len(dims))
	}
	n, width := dims[0], dims[1]
	transposed := false
	if width != common.ChannelCount {
		if n != common.ChannelCount {
			return nil, fmt.Errorf("%w: %s is %dx%d, want Nx%d", ErrChannels, VarTB, dims[0], dims[1], common.ChannelCount)
		}
		n, width, transposed = dims[1], dims[0], true
	}
	if n != len(rr) {
		return nil, fmt.Errorf("%w: %d %s rows but %d %s values", ErrShape, n, VarTB, len(rr), VarRR)
	}

	set := &Set{X: make([][]float64, n), Y: rr}
	for i := 0; i < n; i++ {
		row := make([]float64, width)
		for c := 0; c < width; c++ {
			if transposed {
				row[c] = tb[c*n+i]
			} else {
				row[c] = tb[i*width+c]
			}
		}
		set.X[i] = row
	}
	return set, nil
}

// CleanStats counts what Clean removed.
type CleanStats struct {
	Loaded   int
	BadLabel int
	BadTB    int
	Kept     int
}

// Filtered is the number of dropped examples.
func (c CleanStats) Filtered() int { return c.BadLabel + c.BadTB }

// Clean drops examples whose label is not in (0, 3000] mm/h or whose TB
// vector has a non-finite value or one outside [0, 400] K.
func Clean(s *Set) (*Set, CleanStats) {
	stats := CleanStats{Loaded: s.Len()}
	out := &Set{
		X: make([][]float64, 0, s.Len()),
		Y: make([]float64, 0, s.Len()),
	}
	for i, y := range s.Y {
		if !(y > common.MinRainRate) || y > common.MaxRainRate {
			stats.BadLabel++
			continue
		}
		if !validTB(s.X[i]) {
			stats.BadTB++
			continue
		}
		out.X = append(out.X, s.X[i])
		out.Y = append(out.Y, y)
	}
	stats.Kept = out.Len()

	log.Info().
		Int("loaded", stats.Loaded).
		Int("bad_label", stats.BadLabel).
		Int("bad_tb", stats.BadTB).
		Int("kept", stats.Kept).
		Msg("Training set cleaned")
	return out, stats
}

func validTB(row []float64) bool {
	for _, v := range row {
		if math.IsNaN(v) || v < common.MinTB || v > common.MaxTB {
			return false
		}
	}
	return true
}

// Pair builds examples from a co-located 1C/2A pair on the same S1 grid.
// Only raining pixels with a complete TB vector are kept; a non-zero box
// further restricts them by location.
func Pair(tb *swath.TB, p *swath.Precip, box common.BBox) (*Set, error) {
	if tb.Scans != p.Scans || tb.Pixels != p.Pixels {
		return nil, fmt.Errorf("%w: TB swath %dx%d, precipitation swath %dx%d",
			swath.ErrShape, tb.Scans, tb.Pixels, p.Scans, p.Pixels)
	}

	vectors := tb.Vectors()
	set := &Set{}
	for i, row := range vectors {
		rain := p.Rain[i]
		if !(rain > 0) || math.IsInf(rain, 0) || math.IsNaN(row[0]) {
			continue
		}
		if !box.IsZero() && !box.Contains(tb.Lat[i], tb.Lon[i]) {
			continue
		}
		set.X = append(set.X, row)
		set.Y = append(set.Y, rain)
	}
	log.Info().
		Int("pixels", tb.Len()).
		Int("examples", set.Len()).
		Msg("Swaths paired")
	return set, nil
}
