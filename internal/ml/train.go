package ml

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"
)

var ErrEmptyTrain = errors.New("no training examples")

// TrainConfig holds the optimizer schedule. Every epoch visits all training
// examples in batches of BatchSize; there is no early stopping.
type TrainConfig struct {
	LearningRate float64
	Epochs       int
	BatchSize    int
	Shuffle      bool
	Seed         int64

	Metrics MetricsInterface
	// OnEpoch runs after every epoch, e.g. to append to the run ledger.
	OnEpoch func(EpochStats) error
}

// EpochStats is one row of the training history.
type EpochStats struct {
	Epoch     int           `json:"epoch"`
	TrainLoss float64       `json:"loss"`
	TrainMAE  float64       `json:"mae"`
	TestLoss  float64       `json:"val_loss"`
	TestMAE   float64       `json:"val_mae"`
	Duration  time.Duration `json:"duration"`
}

// History records the per-epoch losses of a run.
type History struct {
	Epochs []EpochStats `json:"epochs"`
}

func (h *History) Len() int { return len(h.Epochs) }

// Last returns the final epoch, or a zero value for an empty history.
func (h *History) Last() EpochStats {
	if len(h.Epochs) == 0 {
		return EpochStats{}
	}
	return h.Epochs[len(h.Epochs)-1]
}

// Best returns the epoch with the lowest test loss.
func (h *History) Best() EpochStats {
	var best EpochStats
	bestLoss := math.Inf(1)
	for _, e := range h.Epochs {
		if e.TestLoss < bestLoss {
			best, bestLoss = e, e.TestLoss
		}
	}
	return best
}

func (c TrainConfig) validate() error {
	if c.LearningRate <= 0 {
		return fmt.Errorf("learning rate must be positive, got %g", c.LearningRate)
	}
	if c.Epochs <= 0 {
		return fmt.Errorf("epochs must be positive, got %d", c.Epochs)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.BatchSize)
	}
	return nil
}

// Train fits the model with Adam on mean squared error and evaluates on the
// test subset after every epoch without updating weights. If ctx is
// cancelled the error is returned and the model must be discarded.
func (m *Model) Train(ctx context.Context, trainX [][]float64, trainY []float64, testX [][]float64, testY []float64, cfg TrainConfig) (*History, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if len(trainX) != len(trainY) {
		return nil, fmt.Errorf("%w: train has %d rows, %d labels", ErrCountMismatch, len(trainX), len(trainY))
	}
	if len(testX) != len(testY) {
		return nil, fmt.Errorf("%w: test has %d rows, %d labels", ErrCountMismatch, len(testX), len(testY))
	}
	if len(trainX) == 0 {
		return nil, ErrEmptyTrain
	}
	if err := checkWidth(trainX); err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}
	if err := checkWidth(testX); err != nil {
		return nil, fmt.Errorf("test: %w", err)
	}

	opt := newAdam(m, cfg.LearningRate)
	rng := rand.New(rand.NewPCG(uint64(cfg.Seed), 1))
	order := make([]int, len(trainX))
	for i := range order {
		order[i] = i
	}

	logEvery := max(1, cfg.Epochs/20)
	history := &History{Epochs: make([]EpochStats, 0, cfg.Epochs)}

	log.Info().
		Int("train", len(trainX)).
		Int("test", len(testX)).
		Int("epochs", cfg.Epochs).
		Int("batch_size", cfg.BatchSize).
		Float64("learning_rate", cfg.LearningRate).
		Int("params", m.ParamCount()).
		Msg("Training started")

	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		start := time.Now()
		if cfg.Shuffle {
			rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		}

		var sse, sae float64
		for b := 0; b < len(order); b += cfg.BatchSize {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("training aborted at epoch %d: %w", epoch, err)
			}
			idx := order[b:min(b+cfg.BatchSize, len(order))]
			bse, bae := m.step(opt, gather(trainX, idx), idx, trainY)
			sse += bse
			sae += bae
		}

		stats := EpochStats{
			Epoch:     epoch,
			TrainLoss: sse / float64(len(order)),
			TrainMAE:  sae / float64(len(order)),
		}
		stats.TestLoss, stats.TestMAE = m.evaluate(testX, testY)
		stats.Duration = time.Since(start)
		history.Epochs = append(history.Epochs, stats)

		if cfg.Metrics != nil {
			cfg.Metrics.MLEpochObserve(stats.TrainLoss, stats.TrainMAE, stats.TestLoss, stats.TestMAE, stats.Duration)
		}
		if cfg.OnEpoch != nil {
			if err := cfg.OnEpoch(stats); err != nil {
				return nil, fmt.Errorf("epoch %d callback: %w", epoch, err)
			}
		}

		ev := log.Debug()
		if epoch%logEvery == 0 || epoch == 1 || epoch == cfg.Epochs {
			ev = log.Info()
		}
		ev.Int("epoch", epoch).
			Float64("loss", stats.TrainLoss).
			Float64("mae", stats.TrainMAE).
			Float64("val_loss", stats.TestLoss).
			Float64("val_mae", stats.TestMAE).
			Dur("duration", stats.Duration).
			Msg("Epoch complete")
	}

	if math.IsNaN(history.Last().TrainLoss) {
		return history, fmt.Errorf("training diverged: loss is NaN")
	}
	return history, nil
}

// step runs one Adam update on a batch and returns the batch's summed
// squared and absolute errors, measured before the update.
func (m *Model) step(opt *adam, x *mat.Dense, idx []int, y []float64) (sse, sae float64) {
	acts := m.forward(x)
	out := acts[len(acts)-1]

	n := float64(len(idx))
	delta := mat.NewDense(len(idx), 1, nil)
	for i, src := range idx {
		r := out.At(i, 0) - y[src]
		sse += r * r
		sae += math.Abs(r)
		delta.Set(i, 0, 2*r/n)
	}

	gw, gb := m.backward(acts, delta)
	opt.update(m, gw, gb)
	return sse, sae
}

// evaluate returns MSE and MAE over a labelled set. An empty set gives NaN.
func (m *Model) evaluate(x [][]float64, y []float64) (mse, mae float64) {
	if len(x) == 0 {
		return math.NaN(), math.NaN()
	}
	pred, err := m.Predict(x)
	if err != nil {
		return math.NaN(), math.NaN()
	}
	for i, p := range pred {
		r := p - y[i]
		mse += r * r
		mae += math.Abs(r)
	}
	return mse / float64(len(x)), mae / float64(len(x))
}

// adam keeps first and second moment estimates for every parameter.
type adam struct {
	lr, beta1, beta2, eps float64
	t                     int
	mw, vw, mb, vb        [][]float64
}

func newAdam(m *Model, lr float64) *adam {
	o := &adam{lr: lr, beta1: 0.9, beta2: 0.999, eps: 1e-7}
	for _, l := range m.layers {
		nw := l.spec.In * l.spec.Out
		o.mw = append(o.mw, make([]float64, nw))
		o.vw = append(o.vw, make([]float64, nw))
		o.mb = append(o.mb, make([]float64, l.spec.Out))
		o.vb = append(o.vb, make([]float64, l.spec.Out))
	}
	return o
}

func (o *adam) update(m *Model, gw []*mat.Dense, gb [][]float64) {
	o.t++
	t := float64(o.t)
	lrT := o.lr * math.Sqrt(1-math.Pow(o.beta2, t)) / (1 - math.Pow(o.beta1, t))

	for li, l := range m.layers {
		o.apply(l.w.RawMatrix().Data, gw[li].RawMatrix().Data, o.mw[li], o.vw[li], lrT)
		o.apply(l.b, gb[li], o.mb[li], o.vb[li], lrT)
	}
}

func (o *adam) apply(p, g, m, v []float64, lrT float64) {
	for i := range p {
		m[i] += (g[i] - m[i]) * (1 - o.beta1)
		v[i] += (g[i]*g[i] - v[i]) * (1 - o.beta2)
		p[i] -= lrT * m[i] / (math.Sqrt(v[i]) + o.eps)
	}
}
