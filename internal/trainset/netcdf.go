package trainset

import (
	"fmt"
	"os"
	"path/filepath"

	"gmi-rain/internal/common"

	"github.com/ctessum/cdf"
	"github.com/rs/zerolog/log"
)

func readCDF(path string) ([]float64, []int, []float64, error) {
	ff, err := os.Open(path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open training set %s: %w", path, err)
	}
	defer ff.Close()

	f, err := cdf.Open(ff)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%s: read netCDF header: %w", path, err)
	}

	tb, tbDims, err := readVar(f, VarTB)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	rr, _, err := readVar(f, VarRR)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return tb, tbDims, rr, nil
}

// readVar reads a float or double variable into float64.
func readVar(f *cdf.File, name string) ([]float64, []int, error) {
	found := false
	for _, v := range f.Header.Variables() {
		if v == name {
			found = true
			break
		}
	}
	if !found {
		return nil, nil, fmt.Errorf("variable %q not found", name)
	}

	dims := f.Header.Lengths(name)
	n := 1
	for _, d := range dims {
		n *= d
	}

	out := make([]float64, n)
	tmp32 := make([]float32, n)
	if _, err := f.Reader(name, nil, nil).Read(tmp32); err == nil {
		for i, v := range tmp32 {
			out[i] = float64(v)
		}
		return out, dims, nil
	}
	if _, err := f.Reader(name, nil, nil).Read(out); err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", name, err)
	}
	return out, dims, nil
}

// Write stores s as netCDF classic with variables tb(pixel, channel) and
// rr(pixel). The file is replaced atomically.
func Write(path string, s *Set) error {
	if s.Len() == 0 {
		return ErrEmpty
	}
	if len(s.X) != len(s.Y) {
		return fmt.Errorf("%w: %d %s rows but %d %s values", ErrShape, len(s.X), VarTB, len(s.Y), VarRR)
	}

	tb := make([]float32, 0, s.Len()*common.ChannelCount)
	for i, row := range s.X {
		if len(row) != common.ChannelCount {
			return fmt.Errorf("%w: row %d has %d values", ErrChannels, i, len(row))
		}
		for _, v := range row {
			tb = append(tb, float32(v))
		}
	}
	rr := make([]float32, s.Len())
	for i, v := range s.Y {
		rr[i] = float32(v)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create training-set directory: %w", err)
	}
	w, err := os.CreateTemp(dir, ".trainset-*")
	if err != nil {
		return fmt.Errorf("create training set: %w", err)
	}
	defer os.Remove(w.Name())

	h := cdf.NewHeader([]string{DimPixel, DimChannel}, []int{s.Len(), common.ChannelCount})
	h.AddAttribute("", "title", "GMI brightness temperatures and GPROF surface precipitation")
	h.AddVariable(VarTB, []string{DimPixel, DimChannel}, []float32{0})
	h.AddAttribute(VarTB, "units", "K")
	h.AddAttribute(VarTB, "long_name", "brightness temperature")
	h.AddVariable(VarRR, []string{DimPixel}, []float32{0})
	h.AddAttribute(VarRR, "units", "mm/h")
	h.AddAttribute(VarRR, "long_name", "surface precipitation rate")
	h.Define()

	f, err := cdf.Create(w, h)
	if err != nil {
		w.Close()
		return fmt.Errorf("write netCDF header: %w", err)
	}
	for _, v := range []struct {
		name string
		data []float32
	}{{VarTB, tb}, {VarRR, rr}} {
		end := f.Header.Lengths(v.name)
		start := make([]int, len(end))
		if _, err := f.Writer(v.name, start, end).Write(v.data); err != nil {
			w.Close()
			return fmt.Errorf("write %s: %w", v.name, err)
		}
	}
	if err := cdf.UpdateNumRecs(w); err != nil {
		w.Close()
		return fmt.Errorf("finish netCDF file: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close training set: %w", err)
	}
	if err := os.Rename(w.Name(), path); err != nil {
		return fmt.Errorf("move training set into place: %w", err)
	}

	log.Info().Str("path", path).Int("examples", s.Len()).Msg("Training set written")
	return nil
}
