package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Interfaces for metrics to avoid circular imports
type MetricsCounter interface {
	Inc()
}

type MetricsGauge interface {
	Set(float64)
	Add(float64)
}

type MetricsHistogram interface {
	Observe(float64)
}

// MetricsWrapper adapts Metrics to the narrow interfaces the ml and fetch
// packages depend on.
type MetricsWrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *MetricsWrapper {
	return &MetricsWrapper{m: m}
}

func (w *MetricsWrapper) EpochsTotal() MetricsCounter {
	return &CounterWrapper{w.m.EpochsTotal}
}

func (w *MetricsWrapper) TestLoss() MetricsGauge {
	return &GaugeWrapper{w.m.TestLoss}
}

func (w *MetricsWrapper) MLLatency() MetricsHistogram {
	return &HistogramWrapper{w.m.MLLatency}
}

// MLEpochObserve records one finished epoch.
func (w *MetricsWrapper) MLEpochObserve(trainLoss, trainMAE, testLoss, testMAE float64, d time.Duration) {
	w.m.EpochsTotal.Inc()
	w.m.TrainLoss.Set(trainLoss)
	w.m.TrainMAE.Set(trainMAE)
	w.m.TestLoss.Set(testLoss)
	w.m.TestMAE.Set(testMAE)
	w.m.EpochDuration.Observe(d.Seconds())
}

func (w *MetricsWrapper) MLPredictionsAdd(n int) {
	w.m.MLPredictions.Add(float64(n))
}

func (w *MetricsWrapper) MLFailuresInc() {
	w.m.MLFailures.Inc()
	w.m.ErrorsTotal.Inc()
}

func (w *MetricsWrapper) MLLatencyObserve(v float64) {
	w.m.MLLatency.Observe(v)
}

func (w *MetricsWrapper) MLDriftAlertInc(channel string) {
	w.m.DriftAlerts.WithLabelValues(channel).Inc()
}

// DownloadObserve records a fetch outcome: "fetched", "skipped" or "failed".
func (w *MetricsWrapper) DownloadObserve(result string, bytes int64) {
	w.m.Downloads.WithLabelValues(result).Inc()
	if bytes > 0 {
		w.m.DownloadBytes.Add(float64(bytes))
	}
	if result == "failed" {
		w.m.ErrorsTotal.Inc()
	}
}

func (w *MetricsWrapper) ExamplesObserve(loaded, filtered int) {
	w.m.ExamplesLoaded.Add(float64(loaded))
	w.m.ExamplesFiltered.Add(float64(filtered))
}

func (w *MetricsWrapper) FigureRendered() {
	w.m.FiguresRendered.Inc()
}

type CounterWrapper struct {
	c prometheus.Counter
}

func (cw *CounterWrapper) Inc() {
	cw.c.Inc()
}

type GaugeWrapper struct {
	g prometheus.Gauge
}

func (gw *GaugeWrapper) Set(v float64) {
	gw.g.Set(v)
}

func (gw *GaugeWrapper) Add(v float64) {
	gw.g.Add(v)
}

type HistogramWrapper struct {
	h prometheus.Histogram
}

func (hw *HistogramWrapper) Observe(v float64) {
	hw.h.Observe(v)
}
