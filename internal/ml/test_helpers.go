package ml

import (
	"sync"
	"time"
)

// MockMetrics implements MetricsInterface for testing
type MockMetrics struct {
	mu          sync.Mutex
	epochs      int
	lastTest    float64
	predictions int
	failures    int
	latencySum  float64
	driftAlerts map[string]int
}

func (m *MockMetrics) MLEpochObserve(_, _, testLoss, _ float64, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.epochs++
	m.lastTest = testLoss
}

func (m *MockMetrics) MLPredictionsAdd(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predictions += n
}

func (m *MockMetrics) MLFailuresInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures++
}

func (m *MockMetrics) MLLatencyObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencySum += v
}

func (m *MockMetrics) MLDriftAlertInc(channel string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.driftAlerts == nil {
		m.driftAlerts = make(map[string]int)
	}
	m.driftAlerts[channel]++
}
