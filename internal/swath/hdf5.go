package swath

import (
	"fmt"
	"os"

	"gmi-rain/internal/common"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/hdf5"
)

// Dataset paths inside the GPM granules.
const (
	pathS1Lat    = "S1/Latitude"
	pathS1Lon    = "S1/Longitude"
	pathS1Tc     = "S1/Tc"
	pathS2Tc     = "S2/Tc"
	pathSurfRain = "S1/surfacePrecipitation"
)

// File is an open HDF5 granule.
type File struct {
	path string
	f    *hdf5.File
}

// Open opens an HDF5 file read-only. A missing file wraps os.ErrNotExist.
func Open(path string) (*File, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	f, err := hdf5.OpenFile(path, hdf5.F_ACC_RDONLY)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &File{path: path, f: f}, nil
}

func (f *File) Close() error {
	return f.f.Close()
}

// Float64 reads a whole dataset as float64 along with its dimensions.
func (f *File) Float64(name string) ([]float64, []uint, error) {
	ds, err := f.f.OpenDataset(name)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: open dataset %s: %w", f.path, name, err)
	}
	defer ds.Close()

	space := ds.Space()
	defer space.Close()
	dims, _, err := space.SimpleExtentDims()
	if err != nil {
		return nil, nil, fmt.Errorf("%s: dims of %s: %w", f.path, name, err)
	}

	n := 1
	for _, d := range dims {
		n *= int(d)
	}
	raw := make([]float32, n)
	if err := ds.Read(&raw); err != nil {
		return nil, nil, fmt.Errorf("%s: read %s: %w", f.path, name, err)
	}

	out := make([]float64, n)
	for i, v := range raw {
		out[i] = float64(v)
	}
	return out, dims, nil
}

// ReadTB loads latitude, longitude and the 13 TB channels of a 1C granule.
// Fill values become NaN.
func ReadTB(path string) (*TB, error) {
	f, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	lat, lon, scans, pixels, err := f.coords()
	if err != nil {
		return nil, err
	}
	s1, d1, err := f.Float64(pathS1Tc)
	if err != nil {
		return nil, err
	}
	s2, d2, err := f.Float64(pathS2Tc)
	if err != nil {
		return nil, err
	}
	if err := checkDims(pathS1Tc, d1, scans, pixels, common.S1ChannelCount); err != nil {
		return nil, err
	}
	if err := checkDims(pathS2Tc, d2, scans, pixels, common.S2ChannelCount); err != nil {
		return nil, err
	}

	tc := mergeChannels(s1, s2, scans*pixels)
	common.CleanFill(tc)

	log.Debug().Str("path", path).Int("scans", scans).Int("pixels", pixels).Msg("TB swath loaded")
	return &TB{Scans: scans, Pixels: pixels, Lat: lat, Lon: lon, Tc: tc}, nil
}

// ReadPrecip loads the GPROF surface precipitation of a 2A granule.
func ReadPrecip(path string) (*Precip, error) {
	f, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	lat, lon, scans, pixels, err := f.coords()
	if err != nil {
		return nil, err
	}
	rain, dims, err := f.Float64(pathSurfRain)
	if err != nil {
		return nil, err
	}
	if err := checkDims(pathSurfRain, dims, scans, pixels, 0); err != nil {
		return nil, err
	}
	common.CleanFill(rain)

	log.Debug().Str("path", path).Int("scans", scans).Int("pixels", pixels).Msg("Precipitation swath loaded")
	return &Precip{Scans: scans, Pixels: pixels, Lat: lat, Lon: lon, Rain: rain}, nil
}

func (f *File) coords() (lat, lon []float64, scans, pixels int, err error) {
	lat, dLat, err := f.Float64(pathS1Lat)
	if err != nil {
		return nil, nil, 0, 0, err
	}
	lon, dLon, err := f.Float64(pathS1Lon)
	if err != nil {
		return nil, nil, 0, 0, err
	}
	if len(dLat) != 2 {
		return nil, nil, 0, 0, fmt.Errorf("%w: %s has %d dimensions, want 2", ErrShape, pathS1Lat, len(dLat))
	}
	scans, pixels = int(dLat[0]), int(dLat[1])
	if err := checkDims(pathS1Lon, dLon, scans, pixels, 0); err != nil {
		return nil, nil, 0, 0, err
	}
	common.CleanCoordFill(lat)
	common.CleanCoordFill(lon)
	return lat, lon, scans, pixels, nil
}

// checkDims verifies a (scans, pixels) or (scans, pixels, channels) shape.
// channels == 0 means the dataset is 2-D.
func checkDims(name string, dims []uint, scans, pixels, channels int) error {
	want := []uint{uint(scans), uint(pixels)}
	if channels > 0 {
		want = append(want, uint(channels))
	}
	if len(dims) != len(want) {
		return fmt.Errorf("%w: %s has shape %v, want %v", ErrShape, name, dims, want)
	}
	for i := range dims {
		if dims[i] != want[i] {
			return fmt.Errorf("%w: %s has shape %v, want %v", ErrShape, name, dims, want)
		}
	}
	return nil
}
