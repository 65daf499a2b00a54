package features

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"gmi-rain/internal/common"

	"gonum.org/v1/gonum/stat"
)

var (
	ErrEmptyFit    = errors.New("scaler: no rows to fit")
	ErrWidth       = errors.New("scaler: feature width mismatch")
	ErrBadArtifact = errors.New("scaler: invalid artifact")
)

// minStd is the floor below which a feature is treated as constant.
const minStd = 1e-12

// Scaler standardizes features with the mean and population standard
// deviation of the rows it was fitted on. A fitted Scaler never changes.
type Scaler struct {
	names   []string
	mean    []float64
	std     []float64
	samples int
}

type scalerFile struct {
	Features []string  `json:"features"`
	Mean     []float64 `json:"mean"`
	Std      []float64 `json:"std"`
	Samples  int       `json:"samples"`
}

// Fit computes per-feature statistics over train. Features with zero
// variance get a standard deviation of 1 so they pass through shifted only.
func Fit(train [][]float64) (*Scaler, error) {
	if len(train) == 0 {
		return nil, ErrEmptyFit
	}
	width := len(train[0])
	if width == 0 {
		return nil, fmt.Errorf("%w: zero-width rows", ErrWidth)
	}

	col := make([]float64, len(train))
	s := &Scaler{
		names:   featureNames(width),
		mean:    make([]float64, width),
		std:     make([]float64, width),
		samples: len(train),
	}
	for j := 0; j < width; j++ {
		for i, row := range train {
			if len(row) != width {
				return nil, fmt.Errorf("%w: row %d has %d values, want %d", ErrWidth, i, len(row), width)
			}
			col[i] = row[j]
		}
		m, sd := stat.PopMeanStdDev(col, nil)
		if math.IsNaN(m) || math.IsInf(m, 0) {
			return nil, fmt.Errorf("scaler: feature %d has non-finite values", j)
		}
		if sd < minStd || math.IsNaN(sd) {
			sd = 1
		}
		s.mean[j] = m
		s.std[j] = sd
	}
	return s, nil
}

// Apply standardizes a single vector. NaN inputs stay NaN.
func (s *Scaler) Apply(vec []float64) ([]float64, error) {
	if len(vec) != len(s.mean) {
		return nil, fmt.Errorf("%w: got %d values, want %d", ErrWidth, len(vec), len(s.mean))
	}
	out := make([]float64, len(vec))
	for j, x := range vec {
		out[j] = (x - s.mean[j]) / s.std[j]
	}
	return out, nil
}

// Transform applies the scaler to every row.
func (s *Scaler) Transform(rows [][]float64) ([][]float64, error) {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		v, err := s.Apply(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func (s *Scaler) Width() int   { return len(s.mean) }
func (s *Scaler) Samples() int { return s.samples }

func (s *Scaler) Mean() []float64 {
	out := make([]float64, len(s.mean))
	copy(out, s.mean)
	return out
}

func (s *Scaler) Std() []float64 {
	out := make([]float64, len(s.std))
	copy(out, s.std)
	return out
}

func (s *Scaler) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Save writes the scaler state as JSON.
func (s *Scaler) Save(path string) error {
	data, err := json.MarshalIndent(scalerFile{
		Features: s.names,
		Mean:     s.mean,
		Std:      s.std,
		Samples:  s.samples,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal scaler: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create scaler directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write scaler: %w", err)
	}
	return nil
}

// LoadScaler reads a scaler written by Save.
func LoadScaler(path string) (*Scaler, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scaler %s: %w", path, err)
	}
	var f scalerFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse scaler: %w", err)
	}
	if len(f.Mean) == 0 || len(f.Mean) != len(f.Std) {
		return nil, fmt.Errorf("%w: %d means, %d stds", ErrBadArtifact, len(f.Mean), len(f.Std))
	}
	for j, sd := range f.Std {
		if !(sd > 0) || math.IsInf(sd, 0) {
			return nil, fmt.Errorf("%w: std[%d] = %g", ErrBadArtifact, j, sd)
		}
	}
	names := f.Features
	if len(names) != len(f.Mean) {
		names = featureNames(len(f.Mean))
	}
	return &Scaler{names: names, mean: f.Mean, std: f.Std, samples: f.Samples}, nil
}

func featureNames(width int) []string {
	names := make([]string, width)
	for j := range names {
		if width == common.ChannelCount {
			names[j] = common.ChannelNames[j]
		} else {
			names[j] = fmt.Sprintf("f%d", j)
		}
	}
	return names
}
