package trainset

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"gmi-rain/internal/common"
	"gmi-rain/internal/swath"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/hdf5"
)

func syntheticSet(n int) *Set {
	s := &Set{X: make([][]float64, n), Y: make([]float64, n)}
	for i := 0; i < n; i++ {
		row := make([]float64, common.ChannelCount)
		for c := range row {
			row[c] = 150 + float64(i) + float64(c)*5
		}
		s.X[i] = row
		s.Y[i] = 0.5 + float64(i)
	}
	return s
}

func TestWriteReadNetCDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "training.nc")
	in := syntheticSet(7)
	require.NoError(t, Write(path, in))

	head := make([]byte, 3)
	f, err := os.Open(path)
	require.NoError(t, err)
	_, err = f.Read(head)
	f.Close()
	require.NoError(t, err)
	assert.Equal(t, "CDF", string(head))

	out, err := Read(path)
	require.NoError(t, err)
	require.Equal(t, in.Len(), out.Len())
	for i := range in.X {
		assert.InDeltaSlice(t, in.X[i], out.X[i], 1e-4)
		assert.InDelta(t, in.Y[i], out.Y[i], 1e-5)
	}
}

func TestWriteRejects(t *testing.T) {
	dir := t.TempDir()

	err := Write(filepath.Join(dir, "empty.nc"), &Set{})
	assert.ErrorIs(t, err, ErrEmpty)

	err = Write(filepath.Join(dir, "short.nc"), &Set{X: [][]float64{{1, 2}}, Y: []float64{1}})
	assert.ErrorIs(t, err, ErrChannels)

	s := syntheticSet(3)
	s.Y = s.Y[:2]
	err = Write(filepath.Join(dir, "mismatch.nc"), s)
	assert.ErrorIs(t, err, ErrShape)
}

func writeHDF5Set(t *testing.T, path string, tbDims []uint, tb []float32, rr []float32) {
	t.Helper()
	f, err := hdf5.CreateFile(path, hdf5.F_ACC_TRUNC)
	require.NoError(t, err)
	defer f.Close()

	for _, v := range []struct {
		name string
		dims []uint
		data []float32
	}{{VarTB, tbDims, tb}, {VarRR, []uint{uint(len(rr))}, rr}} {
		space, err := hdf5.CreateSimpleDataspace(v.dims, nil)
		require.NoError(t, err)
		ds, err := f.CreateDataset(v.name, hdf5.T_NATIVE_FLOAT, space)
		require.NoError(t, err)
		require.NoError(t, ds.Write(&v.data))
		ds.Close()
		space.Close()
	}
}

func TestReadHDF5(t *testing.T) {
	path := filepath.Join(t.TempDir(), "training.nc")
	n := 4
	tb := make([]float32, n*common.ChannelCount)
	for i := range tb {
		tb[i] = 200 + float32(i)
	}
	writeHDF5Set(t, path, []uint{uint(n), common.ChannelCount}, tb, []float32{1, 2, 3, 4})

	s, err := Read(path)
	require.NoError(t, err)
	require.Equal(t, n, s.Len())
	assert.InDelta(t, 200.0, s.X[0][0], 1e-6)
	assert.InDelta(t, 200.0+common.ChannelCount, s.X[1][0], 1e-6)
	assert.InDelta(t, 4.0, s.Y[3], 1e-6)
}

func TestReadHDF5ShapeMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "training.nc")
	tb := make([]float32, 3*common.ChannelCount)
	writeHDF5Set(t, path, []uint{3, common.ChannelCount}, tb, []float32{1, 2})

	_, err := Read(path)
	assert.ErrorIs(t, err, ErrShape)
}

func TestReadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Read(filepath.Join(dir, "missing.nc"))
	assert.True(t, errors.Is(err, os.ErrNotExist))

	junk := filepath.Join(dir, "junk.nc")
	require.NoError(t, os.WriteFile(junk, []byte("not a training set"), 0o644))
	_, err = Read(junk)
	assert.ErrorIs(t, err, ErrFormat)

	short := filepath.Join(dir, "short.nc")
	require.NoError(t, os.WriteFile(short, []byte("CD"), 0o644))
	_, err = Read(short)
	assert.ErrorIs(t, err, ErrFormat)
}

func TestFromFlat(t *testing.T) {
	n := 2
	rowMajor := make([]float64, n*common.ChannelCount)
	for i := range rowMajor {
		rowMajor[i] = float64(i)
	}

	s, err := fromFlat(rowMajor, []int{n, common.ChannelCount}, []float64{1, 2})
	require.NoError(t, err)
	assert.Equal(t, float64(common.ChannelCount), s.X[1][0])

	// Same values stored channel-major.
	channelMajor := make([]float64, n*common.ChannelCount)
	for i := 0; i < n; i++ {
		for c := 0; c < common.ChannelCount; c++ {
			channelMajor[c*n+i] = rowMajor[i*common.ChannelCount+c]
		}
	}
	st, err := fromFlat(channelMajor, []int{common.ChannelCount, n}, []float64{1, 2})
	require.NoError(t, err)
	assert.Equal(t, s.X, st.X)

	_, err = fromFlat(rowMajor, []int{n * common.ChannelCount}, []float64{1, 2})
	assert.ErrorIs(t, err, ErrShape)

	_, err = fromFlat(make([]float64, 20), []int{2, 10}, []float64{1, 2})
	assert.ErrorIs(t, err, ErrChannels)
}

func TestClean(t *testing.T) {
	s := syntheticSet(8)
	s.Y[0] = 0
	s.Y[1] = -1
	s.Y[2] = math.NaN()
	s.Y[3] = math.Inf(1)
	s.X[4][2] = math.NaN()
	s.X[5][12] = 401
	s.X[6][0] = -0.5

	out, stats := Clean(s)
	assert.Equal(t, 8, stats.Loaded)
	assert.Equal(t, 4, stats.BadLabel)
	assert.Equal(t, 3, stats.BadTB)
	assert.Equal(t, 1, stats.Kept)
	assert.Equal(t, 7, stats.Filtered())
	require.Equal(t, 1, out.Len())
	assert.Equal(t, s.Y[7], out.Y[0])
	assert.Equal(t, s.X[7], out.X[0])
}

func TestCleanLabelRange(t *testing.T) {
	s := syntheticSet(4)
	s.Y[0] = common.MaxRainRate
	s.Y[1] = common.MaxRainRate + 0.1
	s.Y[2] = 1e6
	s.Y[3] = 1e-3

	out, stats := Clean(s)
	assert.Equal(t, 2, stats.BadLabel)
	assert.Equal(t, 0, stats.BadTB)
	assert.Equal(t, []float64{common.MaxRainRate, 1e-3}, out.Y)
}

func pairSwaths(scans, pixels int) (*swath.TB, *swath.Precip) {
	n := scans * pixels
	tb := &swath.TB{
		Scans: scans, Pixels: pixels,
		Lat: make([]float64, n), Lon: make([]float64, n),
		Tc: make([]float64, n*common.ChannelCount),
	}
	p := &swath.Precip{
		Scans: scans, Pixels: pixels,
		Lat: make([]float64, n), Lon: make([]float64, n),
		Rain: make([]float64, n),
	}
	for i := 0; i < n; i++ {
		tb.Lat[i] = 35 + float64(i)
		tb.Lon[i] = 15 + float64(i)
		p.Lat[i], p.Lon[i] = tb.Lat[i], tb.Lon[i]
		p.Rain[i] = float64(i)
		for c := 0; c < common.ChannelCount; c++ {
			tb.Tc[i*common.ChannelCount+c] = 200 + float64(c)
		}
	}
	return tb, p
}

func TestPair(t *testing.T) {
	tb, p := pairSwaths(2, 3)
	p.Rain[1] = math.NaN()
	tb.Tc[2*common.ChannelCount+5] = math.NaN()

	s, err := Pair(tb, p, common.BBox{})
	require.NoError(t, err)
	// Pixel 0 has no rain, 1 is missing, 2 has a gap in its TB vector.
	assert.Equal(t, []float64{3, 4, 5}, s.Y)
	assert.Len(t, s.X, 3)

	box := common.BBox{LatMin: 37.5, LatMax: 39.5, LonMin: 0, LonMax: 30}
	s, err = Pair(tb, p, box)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 4}, s.Y)
}

func TestPairShapeMismatch(t *testing.T) {
	tb, _ := pairSwaths(2, 3)
	_, p := pairSwaths(3, 2)
	_, err := Pair(tb, p, common.BBox{})
	assert.ErrorIs(t, err, swath.ErrShape)
}
