package ml

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/ulikunitz/xz"
	"gonum.org/v1/gonum/mat"
)

const artifactFormat = "gmi-rain-mlp"

type modelFile struct {
	Format string      `json:"format"`
	Layers []layerFile `json:"layers"`
}

type layerFile struct {
	LayerSpec
	Weights []float64 `json:"weights"` // row-major, Out x In
	Biases  []float64 `json:"biases"`
}

// Save writes architecture and weights as one JSON artifact. Paths ending
// in .xz are xz-compressed. The file is replaced atomically.
func (m *Model) Save(path string) error {
	doc := modelFile{Format: artifactFormat, Layers: make([]layerFile, len(m.layers))}
	for i, l := range m.layers {
		w := make([]float64, l.spec.Out*l.spec.In)
		copy(w, l.w.RawMatrix().Data)
		b := make([]float64, len(l.b))
		copy(b, l.b)
		doc.Layers[i] = layerFile{LayerSpec: l.spec, Weights: w, Biases: b}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".model-*")
	if err != nil {
		return fmt.Errorf("failed to create temp model file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := encodeModel(tmp, doc, strings.HasSuffix(path, ".xz")); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close model file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move model into place: %w", err)
	}

	log.Debug().Str("path", path).Int("params", m.ParamCount()).Msg("Model saved")
	return nil
}

func encodeModel(w io.Writer, doc modelFile, compress bool) error {
	if !compress {
		if err := json.NewEncoder(w).Encode(doc); err != nil {
			return fmt.Errorf("failed to encode model: %w", err)
		}
		return nil
	}

	zw, err := xz.NewWriter(w)
	if err != nil {
		return fmt.Errorf("failed to create xz writer: %w", err)
	}
	if err := json.NewEncoder(zw).Encode(doc); err != nil {
		zw.Close()
		return fmt.Errorf("failed to encode model: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finish xz stream: %w", err)
	}
	return nil
}

// Load reads an artifact written by Save and checks it against the fixed
// architecture.
func Load(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open model %s: %w", path, err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".xz") {
		zr, err := xz.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to open xz stream: %w", err)
		}
		r = zr
	}

	var doc modelFile
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode model: %w", err)
	}
	if doc.Format != artifactFormat {
		return nil, fmt.Errorf("%w: unknown format %q", ErrArchitecture, doc.Format)
	}
	if len(doc.Layers) != len(Architecture) {
		return nil, fmt.Errorf("%w: %d layers, want %d", ErrArchitecture, len(doc.Layers), len(Architecture))
	}

	m := &Model{layers: make([]*dense, len(doc.Layers))}
	for i, lf := range doc.Layers {
		if lf.LayerSpec != Architecture[i] {
			return nil, fmt.Errorf("%w: layer %d is %+v, want %+v", ErrArchitecture, i, lf.LayerSpec, Architecture[i])
		}
		if len(lf.Weights) != lf.In*lf.Out || len(lf.Biases) != lf.Out {
			return nil, fmt.Errorf("%w: layer %d has %d weights and %d biases", ErrArchitecture, i, len(lf.Weights), len(lf.Biases))
		}
		m.layers[i] = &dense{
			spec: lf.LayerSpec,
			w:    mat.NewDense(lf.Out, lf.In, lf.Weights),
			b:    lf.Biases,
		}
	}
	return m, nil
}
