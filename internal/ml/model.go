package ml

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gmi-rain/internal/common"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

var (
	ErrInputWidth    = errors.New("input row has wrong channel count")
	ErrCountMismatch = errors.New("feature and label counts differ")
	ErrArchitecture  = errors.New("model architecture mismatch")
)

type Activation string

const (
	Sigmoid Activation = "sigmoid"
	Linear  Activation = "linear"
)

// LayerSpec describes one dense layer.
type LayerSpec struct {
	In         int        `json:"in"`
	Out        int        `json:"out"`
	Activation Activation `json:"activation"`
}

// Architecture is the fixed topology of the rain-rate network.
var Architecture = []LayerSpec{
	{In: common.ChannelCount, Out: 20, Activation: Sigmoid},
	{In: 20, Out: 10, Activation: Sigmoid},
	{In: 10, Out: 1, Activation: Linear},
}

const (
	initStdDev   = 0.05
	predictChunk = 8192
)

type dense struct {
	spec LayerSpec
	w    *mat.Dense // Out x In
	b    []float64
}

// Model is the rain-rate MLP. The topology is fixed at construction; only
// training mutates the weights.
type Model struct {
	layers []*dense
}

// NewModel builds the network with weights drawn from N(0, 0.05) and zero
// biases. The same seed yields the same initial weights.
func NewModel(seed int64) *Model {
	dist := distuv.Normal{
		Mu:    0,
		Sigma: initStdDev,
		Src:   rand.NewPCG(uint64(seed), 0x9e3779b97f4a7c15),
	}

	m := &Model{layers: make([]*dense, 0, len(Architecture))}
	for _, spec := range Architecture {
		data := make([]float64, spec.Out*spec.In)
		for i := range data {
			data[i] = dist.Rand()
		}
		m.layers = append(m.layers, &dense{
			spec: spec,
			w:    mat.NewDense(spec.Out, spec.In, data),
			b:    make([]float64, spec.Out),
		})
	}
	return m
}

// Layers describes the topology, input to output.
func (m *Model) Layers() []LayerSpec {
	out := make([]LayerSpec, len(m.layers))
	for i, l := range m.layers {
		out[i] = l.spec
	}
	return out
}

// ParamCount is the number of trainable weights and biases.
func (m *Model) ParamCount() int {
	n := 0
	for _, l := range m.layers {
		n += l.spec.In*l.spec.Out + l.spec.Out
	}
	return n
}

// Predict returns one output per row. NaN inputs produce NaN outputs; values
// are not clamped.
func (m *Model) Predict(rows [][]float64) ([]float64, error) {
	if err := checkWidth(rows); err != nil {
		return nil, err
	}

	out := make([]float64, len(rows))
	for start := 0; start < len(rows); start += predictChunk {
		end := min(start+predictChunk, len(rows))
		acts := m.forward(gatherRange(rows, start, end))
		y := acts[len(acts)-1]
		for i := start; i < end; i++ {
			out[i] = y.At(i-start, 0)
		}
	}
	return out, nil
}

// forward returns the input followed by each layer's activations.
func (m *Model) forward(x *mat.Dense) []*mat.Dense {
	acts := make([]*mat.Dense, 0, len(m.layers)+1)
	acts = append(acts, x)

	a := x
	for _, l := range m.layers {
		z := new(mat.Dense)
		z.Mul(a, l.w.T())
		b, fn := l.b, l.spec.Activation
		z.Apply(func(_, j int, v float64) float64 {
			return activate(fn, v+b[j])
		}, z)
		acts = append(acts, z)
		a = z
	}
	return acts
}

// backward turns the loss gradient at the output into weight and bias
// gradients for every layer.
func (m *Model) backward(acts []*mat.Dense, delta *mat.Dense) ([]*mat.Dense, [][]float64) {
	gw := make([]*mat.Dense, len(m.layers))
	gb := make([][]float64, len(m.layers))

	for li := len(m.layers) - 1; li >= 0; li-- {
		l := m.layers[li]

		g := new(mat.Dense)
		g.Mul(delta.T(), acts[li])
		gw[li] = g

		rows, cols := delta.Dims()
		bias := make([]float64, cols)
		for i := 0; i < rows; i++ {
			for j, v := range delta.RawRowView(i) {
				bias[j] += v
			}
		}
		gb[li] = bias

		if li == 0 {
			break
		}
		prev := new(mat.Dense)
		prev.Mul(delta, l.w)
		fn := m.layers[li-1].spec.Activation
		a := acts[li]
		prev.Apply(func(i, j int, v float64) float64 {
			return v * derivative(fn, a.At(i, j))
		}, prev)
		delta = prev
	}
	return gw, gb
}

func activate(fn Activation, v float64) float64 {
	if fn == Sigmoid {
		return 1 / (1 + math.Exp(-v))
	}
	return v
}

// derivative takes the activation output, not its input.
func derivative(fn Activation, a float64) float64 {
	if fn == Sigmoid {
		return a * (1 - a)
	}
	return 1
}

func checkWidth(rows [][]float64) error {
	for i, row := range rows {
		if len(row) != common.ChannelCount {
			return fmt.Errorf("%w: row %d has %d values, want %d", ErrInputWidth, i, len(row), common.ChannelCount)
		}
	}
	return nil
}

func gatherRange(rows [][]float64, start, end int) *mat.Dense {
	width := len(rows[start])
	data := make([]float64, 0, (end-start)*width)
	for _, row := range rows[start:end] {
		data = append(data, row...)
	}
	return mat.NewDense(end-start, width, data)
}

func gather(rows [][]float64, idx []int) *mat.Dense {
	width := len(rows[idx[0]])
	data := make([]float64, 0, len(idx)*width)
	for _, i := range idx {
		data = append(data, rows[i]...)
	}
	return mat.NewDense(len(idx), width, data)
}
