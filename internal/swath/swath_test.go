package swath

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTB(scans, pixels int) *TB {
	n := scans * pixels
	t := &TB{Scans: scans, Pixels: pixels, Lat: make([]float64, n), Lon: make([]float64, n), Tc: make([]float64, n*13)}
	for p := 0; p < n; p++ {
		t.Lat[p] = 34 + float64(p)
		t.Lon[p] = 14 + float64(p)
		for ch := 0; ch < 13; ch++ {
			t.Tc[p*13+ch] = 100 + float64(p*13+ch)
		}
	}
	return t
}

func TestMergeChannels(t *testing.T) {
	s1 := []float64{
		1, 2, 3, 4, 5, 6, 7, 8, 9,
		11, 12, 13, 14, 15, 16, 17, 18, 19,
	}
	s2 := []float64{
		10, 20, 30, 40,
		110, 120, 130, 140,
	}
	got := mergeChannels(s1, s2, 2)
	assert.Equal(t, []float64{
		1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 20, 30, 40,
		11, 12, 13, 14, 15, 16, 17, 18, 19, 110, 120, 130, 140,
	}, got)
}

func TestChannel(t *testing.T) {
	tb := sampleTB(2, 3)

	ch, err := tb.Channel(9)
	require.NoError(t, err)
	require.Len(t, ch, 6)
	assert.Equal(t, 109.0, ch[0])
	assert.Equal(t, 100.0+5*13+9, ch[5])

	_, err = tb.Channel(13)
	assert.Error(t, err)
	_, err = tb.Channel(-1)
	assert.Error(t, err)
}

func TestVectors(t *testing.T) {
	tb := sampleTB(2, 2)
	tb.Tc[1*13+4] = math.NaN() // fill value after cleaning
	tb.Tc[2*13+12] = 0         // not a physical TB

	rows := tb.Vectors()
	require.Len(t, rows, 4)
	for _, row := range rows {
		assert.Len(t, row, 13)
	}

	assert.Equal(t, 100.0, rows[0][0])
	for _, p := range []int{1, 2} {
		for j, v := range rows[p] {
			assert.True(t, math.IsNaN(v), "pixel %d channel %d", p, j)
		}
	}
	assert.False(t, math.IsNaN(rows[3][0]))

	// Rows are copies.
	rows[0][0] = -1
	assert.Equal(t, 100.0, tb.Tc[0])
}

func TestCheckDims(t *testing.T) {
	assert.NoError(t, checkDims("x", []uint{3, 221}, 3, 221, 0))
	assert.NoError(t, checkDims("x", []uint{3, 221, 9}, 3, 221, 9))

	for _, dims := range [][]uint{{3}, {3, 220}, {3, 221, 4}, {4, 221, 9}} {
		err := checkDims("x", dims, 3, 221, 9)
		assert.True(t, errors.Is(err, ErrShape), "%v", dims)
	}
}
