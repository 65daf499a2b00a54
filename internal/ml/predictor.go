package ml

import (
	"fmt"
	"time"

	"gmi-rain/internal/common"
	"gmi-rain/internal/features"

	"github.com/rs/zerolog/log"
)

// Predictor runs inference on raw TB vectors: it standardizes them with the
// persisted training scaler and feeds the result to the model.
type Predictor struct {
	model   Regressor
	scaler  *features.Scaler
	metrics MetricsInterface
}

func NewPredictor(model Regressor, scaler *features.Scaler) (*Predictor, error) {
	return NewWithMetrics(model, scaler, nil)
}

func NewWithMetrics(model Regressor, scaler *features.Scaler, metrics MetricsInterface) (*Predictor, error) {
	if model == nil || scaler == nil {
		return nil, fmt.Errorf("predictor needs both a model and a scaler")
	}
	if scaler.Width() != common.ChannelCount {
		return nil, fmt.Errorf("%w: scaler has %d features, want %d", ErrInputWidth, scaler.Width(), common.ChannelCount)
	}
	return &Predictor{model: model, scaler: scaler, metrics: metrics}, nil
}

// LoadPredictor loads the model and scaler artifacts written by training.
func LoadPredictor(modelPath, scalerPath string, metrics MetricsInterface) (*Predictor, error) {
	model, err := Load(modelPath)
	if err != nil {
		return nil, err
	}
	scaler, err := features.LoadScaler(scalerPath)
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("model_path", modelPath).
		Str("scaler_path", scalerPath).
		Int("scaler_samples", scaler.Samples()).
		Msg("Model loaded successfully")
	return NewWithMetrics(model, scaler, metrics)
}

// Predict returns one rain rate in mm/h per row. Rows with missing channels
// come back as NaN.
func (p *Predictor) Predict(rows [][]float64) ([]float64, error) {
	start := time.Now()

	scaled, err := p.scaler.Transform(rows)
	if err != nil {
		p.fail()
		return nil, fmt.Errorf("failed to scale inputs: %w", err)
	}
	out, err := p.model.Predict(scaled)
	if err != nil {
		p.fail()
		return nil, fmt.Errorf("prediction failed: %w", err)
	}

	if p.metrics != nil {
		p.metrics.MLPredictionsAdd(len(out))
		p.metrics.MLLatencyObserve(time.Since(start).Seconds())
	}
	return out, nil
}

func (p *Predictor) Scaler() *features.Scaler { return p.scaler }

func (p *Predictor) fail() {
	if p.metrics != nil {
		p.metrics.MLFailuresInc()
	}
}
