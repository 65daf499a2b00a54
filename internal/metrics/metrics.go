// Package metrics provides Prometheus metrics for the GMI rainfall pipeline.
// Training, inference and download jobs are batch processes, so the
// registry is written to a node-exporter textfile when a job finishes.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

// Metrics holds all Prometheus metrics for the pipeline.
type Metrics struct {
	// Training metrics
	EpochsTotal   prometheus.Counter   // Epochs completed
	TrainLoss     prometheus.Gauge     // Train MSE of the last epoch
	TrainMAE      prometheus.Gauge     // Train MAE of the last epoch
	TestLoss      prometheus.Gauge     // Test MSE of the last epoch
	TestMAE       prometheus.Gauge     // Test MAE of the last epoch
	EpochDuration prometheus.Histogram // Wall time per epoch

	// Data metrics
	ExamplesLoaded   prometheus.Counter // Examples read from the training set
	ExamplesFiltered prometheus.Counter // Examples dropped by cleaning
	Downloads        *prometheus.CounterVec
	DownloadBytes    prometheus.Counter

	// Inference metrics
	MLPredictions prometheus.Counter   // Rows predicted
	MLFailures    prometheus.Counter   // Failed prediction calls
	MLLatency     prometheus.Histogram // Predict call latency
	DriftAlerts   *prometheus.CounterVec

	FiguresRendered prometheus.Counter
	ErrorsTotal     prometheus.Counter
}

// New creates and registers all metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		EpochsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "gmi_train_epochs_total",
			Help: "Total number of training epochs completed",
		}),
		TrainLoss: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gmi_train_loss",
			Help: "Mean squared error on the train subset for the last epoch",
		}),
		TrainMAE: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gmi_train_mae",
			Help: "Mean absolute error on the train subset for the last epoch",
		}),
		TestLoss: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gmi_test_loss",
			Help: "Mean squared error on the test subset for the last epoch",
		}),
		TestMAE: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gmi_test_mae",
			Help: "Mean absolute error on the test subset for the last epoch",
		}),
		EpochDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "gmi_train_epoch_duration_seconds",
			Help:    "Duration of a training epoch in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}),
		ExamplesLoaded: factory.NewCounter(prometheus.CounterOpts{
			Name: "gmi_examples_loaded_total",
			Help: "Total number of training examples read",
		}),
		ExamplesFiltered: factory.NewCounter(prometheus.CounterOpts{
			Name: "gmi_examples_filtered_total",
			Help: "Total number of training examples dropped by cleaning",
		}),
		Downloads: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gmi_downloads_total",
			Help: "Product downloads by result",
		}, []string{"result"}),
		DownloadBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "gmi_download_bytes_total",
			Help: "Total bytes downloaded",
		}),
		MLPredictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "gmi_predictions_total",
			Help: "Total number of rain rate predictions made",
		}),
		MLFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "gmi_prediction_failures_total",
			Help: "Total number of failed prediction calls",
		}),
		MLLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "gmi_prediction_latency_seconds",
			Help:    "Prediction call latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
		DriftAlerts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gmi_drift_alerts_total",
			Help: "Channels whose inference statistics drifted from training",
		}, []string{"channel"}),
		FiguresRendered: factory.NewCounter(prometheus.CounterOpts{
			Name: "gmi_figures_rendered_total",
			Help: "Total number of figures written",
		}),
		ErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "gmi_errors_total",
			Help: "Total number of errors encountered",
		}),
	}
}

// WriteTextfile dumps everything gathered by g to path in the text
// exposition format. An empty path is a no-op.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	log.Debug().Str("path", path).Msg("Metrics textfile written")
	return nil
}
