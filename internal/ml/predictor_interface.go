// Package ml provides the rain-rate regression network: a small multilayer
// perceptron trained with Adam on standardized GMI brightness temperatures.
// It also carries the tooling around the model: versioning on top of the run
// ledger, input drift checks against the training statistics and
// permutation feature importance.
package ml

import (
	"context"
	"time"
)

// Engine is a trainable regressor over 13-channel TB vectors.
type Engine interface {
	// Train fits the engine and returns the per-epoch history.
	Train(ctx context.Context, trainX [][]float64, trainY []float64, testX [][]float64, testY []float64, cfg TrainConfig) (*History, error)

	// Predict returns one rain rate per row. Rows must have 13 values.
	Predict(rows [][]float64) ([]float64, error)

	// Save persists the engine as a single artifact.
	Save(path string) error
}

// MetricsInterface defines metrics methods needed by training and inference
type MetricsInterface interface {
	MLEpochObserve(trainLoss, trainMAE, testLoss, testMAE float64, d time.Duration)
	MLPredictionsAdd(n int)
	MLFailuresInc()
	MLLatencyObserve(float64)
	MLDriftAlertInc(channel string)
}

// Regressor is what inference-side tooling needs from a model.
type Regressor interface {
	Predict(rows [][]float64) ([]float64, error)
}

var (
	_ Engine    = (*Model)(nil)
	_ Regressor = (*Predictor)(nil)
)
