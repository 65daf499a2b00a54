package ml

import (
	"math"
	"time"

	"gmi-rain/internal/features"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// DriftDetectionMethod represents different methods for detecting drift
type DriftDetectionMethod string

const (
	// MeanShift is |mean_now - mean_train| in training standard deviations.
	MeanShift DriftDetectionMethod = "mean_shift"
	// SpreadRatio is |std_now / std_train - 1|.
	SpreadRatio DriftDetectionMethod = "spread_ratio"
)

const minDriftSamples = 30

// DriftAlert represents a drift detection alert
type DriftAlert struct {
	Timestamp   time.Time            `json:"timestamp"`
	FeatureName string               `json:"feature_name"`
	Method      DriftDetectionMethod `json:"method"`
	DriftScore  float64              `json:"drift_score"`
	Threshold   float64              `json:"threshold"`
	Severity    string               `json:"severity"`
	SampleCount int                  `json:"sample_count"`
}

// DriftDetector compares an inference batch with the statistics the scaler
// was fitted on. Alerts are advisory; they never stop inference.
type DriftDetector struct {
	featureNames []string
	baseMean     []float64
	baseStd      []float64
	threshold    float64
	metrics      MetricsInterface
	clock        clockwork.Clock
}

func NewDriftDetector(scaler *features.Scaler, threshold float64, metrics MetricsInterface) *DriftDetector {
	if threshold <= 0 {
		threshold = 0.5
	}
	return &DriftDetector{
		featureNames: scaler.Names(),
		baseMean:     scaler.Mean(),
		baseStd:      scaler.Std(),
		threshold:    threshold,
		metrics:      metrics,
		clock:        clockwork.NewRealClock(),
	}
}

// WithClock replaces the time source used for alert timestamps.
func (dd *DriftDetector) WithClock(c clockwork.Clock) *DriftDetector {
	dd.clock = c
	return dd
}

// Check computes per-channel moments of rows, ignoring NaN, and returns an
// alert for every channel and method above the threshold. Channels with
// fewer than 30 finite values are skipped.
func (dd *DriftDetector) Check(rows [][]float64) []DriftAlert {
	current := features.Describe(rows, len(dd.baseMean))
	now := dd.clock.Now()

	var alerts []DriftAlert
	for j, name := range dd.featureNames {
		if current.Count[j] < minDriftSamples {
			continue
		}
		scores := map[DriftDetectionMethod]float64{
			MeanShift:   math.Abs(current.Mean[j]-dd.baseMean[j]) / dd.baseStd[j],
			SpreadRatio: math.Abs(current.Std[j]/dd.baseStd[j] - 1),
		}
		for _, method := range []DriftDetectionMethod{MeanShift, SpreadRatio} {
			score := scores[method]
			if score <= dd.threshold {
				continue
			}
			alert := DriftAlert{
				Timestamp:   now,
				FeatureName: name,
				Method:      method,
				DriftScore:  score,
				Threshold:   dd.threshold,
				Severity:    severity(score, dd.threshold),
				SampleCount: current.Count[j],
			}
			alerts = append(alerts, alert)

			log.Warn().
				Str("channel", name).
				Str("method", string(method)).
				Float64("score", score).
				Str("severity", alert.Severity).
				Msg("Input drift detected")
			if dd.metrics != nil {
				dd.metrics.MLDriftAlertInc(name)
			}
		}
	}
	return alerts
}

func severity(score, threshold float64) string {
	switch {
	case score > threshold*3:
		return "critical"
	case score > threshold*2:
		return "high"
	default:
		return "medium"
	}
}
