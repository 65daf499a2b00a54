// Package swath reads GPM GMI Level-1C brightness temperatures and GPROF
// Level-2A precipitation from their HDF5 granules.
package swath

import (
	"errors"
	"fmt"
	"math"

	"gmi-rain/internal/common"
)

var ErrShape = errors.New("swath shape mismatch")

// TB is a 1C swath on the S1 grid. Channels 0-8 come from S1, 9-12 from S2.
// All grids are row-major over (scan, pixel); Tc adds the channel as the
// fastest axis.
type TB struct {
	Scans  int
	Pixels int
	Lat    []float64
	Lon    []float64
	Tc     []float64
}

// Precip is a GPROF surface precipitation swath in mm/h.
type Precip struct {
	Scans  int
	Pixels int
	Lat    []float64
	Lon    []float64
	Rain   []float64
}

// Len is the number of pixels in the swath.
func (t *TB) Len() int { return t.Scans * t.Pixels }

// Channel returns channel ch as a (scan, pixel) grid.
func (t *TB) Channel(ch int) ([]float64, error) {
	if ch < 0 || ch >= common.ChannelCount {
		return nil, fmt.Errorf("channel %d out of range [0, %d)", ch, common.ChannelCount)
	}
	out := make([]float64, t.Len())
	for p := range out {
		out[p] = t.Tc[p*common.ChannelCount+ch]
	}
	return out, nil
}

// Vectors flattens the swath to one 13-channel row per pixel. A pixel with
// any channel missing or not above zero becomes an all-NaN row so that row
// indices keep matching the swath grid.
func (t *TB) Vectors() [][]float64 {
	rows := make([][]float64, t.Len())
	for p := range rows {
		row := make([]float64, common.ChannelCount)
		copy(row, t.Tc[p*common.ChannelCount:(p+1)*common.ChannelCount])
		for _, v := range row {
			if !(v > 0) {
				for j := range row {
					row[j] = math.NaN()
				}
				break
			}
		}
		rows[p] = row
	}
	return rows
}

func (p *Precip) Len() int { return p.Scans * p.Pixels }

// mergeChannels interleaves S1 (9 channels) and S2 (4 channels) Tc grids
// into one 13-channel grid.
func mergeChannels(s1, s2 []float64, pixels int) []float64 {
	out := make([]float64, pixels*common.ChannelCount)
	for p := 0; p < pixels; p++ {
		copy(out[p*common.ChannelCount:], s1[p*common.S1ChannelCount:(p+1)*common.S1ChannelCount])
		copy(out[p*common.ChannelCount+common.S1ChannelCount:], s2[p*common.S2ChannelCount:(p+1)*common.S2ChannelCount])
	}
	return out
}
