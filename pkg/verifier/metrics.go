package verifier

import (
	"time"

	"custody/pkg/types"
)

const (
	// Smoothing factor for the response-latency EMA.
	latencyAlpha = 0.2

	metricsResetInterval = 24 * time.Hour
)

// metricsState is the mutable counter set behind StorageVerifier.Metrics.
// Mutated only by the orchestrator, under its own lock.
type metricsState struct {
	types.VerificationMetrics
}

// resetIfNeeded zeroes all counters once per rolling 24-hour window.
func (m *metricsState) resetIfNeeded(now time.Time) {
	if now.Sub(m.LastReset) > metricsResetInterval {
		m.VerificationMetrics = types.VerificationMetrics{LastReset: now}
	}
}

// observeLatency folds one response time into the EMA.
func (m *metricsState) observeLatency(elapsed time.Duration) {
	ms := float64(elapsed.Microseconds()) / 1000.0
	if m.AverageResponseTimeMs == 0 {
		m.AverageResponseTimeMs = ms
		return
	}
	m.AverageResponseTimeMs = latencyAlpha*ms + (1-latencyAlpha)*m.AverageResponseTimeMs
}
