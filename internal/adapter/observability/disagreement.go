package observability

import (
	"log/slog"
	"math"
	"sync"
)

// DisagreementMonitor tracks how far AI scores sit from trainer scores on the
// same items, per exercise type, over a rolling window.
type DisagreementMonitor struct {
	mu         sync.RWMutex
	recent     map[string][]float64
	windowSize int
	threshold  float64
	logger     *slog.Logger
}

// NewDisagreementMonitor creates a monitor. threshold is a fraction of the item max.
func NewDisagreementMonitor(windowSize int, threshold float64, logger *slog.Logger) *DisagreementMonitor {
	if windowSize <= 0 {
		windowSize = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DisagreementMonitor{
		recent:     make(map[string][]float64),
		windowSize: windowSize,
		threshold:  threshold,
		logger:     logger,
	}
}

// Record adds one AI/manual pair for an item worth maxPoints.
func (m *DisagreementMonitor) Record(exerciseType string, ai, manual, maxPoints float64) {
	if maxPoints <= 0 {
		return
	}
	d := math.Min(1, math.Abs(ai-manual)/maxPoints)
	DisagreementHistogram.WithLabelValues(exerciseType).Observe(d)

	m.mu.Lock()
	window := append(m.recent[exerciseType], d)
	if len(window) > m.windowSize {
		window = window[len(window)-m.windowSize:]
	}
	m.recent[exerciseType] = window
	full := len(window) >= m.windowSize
	avg := mean(window)
	m.mu.Unlock()

	if full && avg > m.threshold {
		m.logger.Warn("ai/trainer disagreement above threshold",
			slog.String("exercise_type", exerciseType),
			slog.Float64("drift", avg),
			slog.Float64("threshold", m.threshold))
		DisagreementDriftGauge.WithLabelValues(exerciseType).Set(avg)
	}
}

// Drift returns the rolling mean disagreement for an exercise type.
func (m *DisagreementMonitor) Drift(exerciseType string) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return mean(m.recent[exerciseType])
}

// Samples returns a copy of the current window.
func (m *DisagreementMonitor) Samples(exerciseType string) []float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]float64, len(m.recent[exerciseType]))
	copy(out, m.recent[exerciseType])
	return out
}

func (m *DisagreementMonitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recent = make(map[string][]float64)
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
