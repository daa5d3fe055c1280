package metrics

import (
	"custody/pkg/verifier"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector exposes the engine's verification counters to Prometheus by
// snapshotting them on every scrape.
type Collector struct {
	engine *verifier.StorageVerifier

	totalChallenges     *prometheus.Desc
	successfulProofs    *prometheus.Desc
	failedProofs        *prometheus.Desc
	expiredChallenges   *prometheus.Desc
	rateLimitedRequests *prometheus.Desc
	responseTimeMs      *prometheus.Desc
	successRate         *prometheus.Desc
}

func NewCollector(engine *verifier.StorageVerifier) *Collector {
	return &Collector{
		engine: engine,
		totalChallenges: prometheus.NewDesc(
			"custody_challenges_total",
			"Challenges issued since the last metrics reset",
			nil, nil),
		successfulProofs: prometheus.NewDesc(
			"custody_proofs_verified_total",
			"Proofs that verified successfully",
			nil, nil),
		failedProofs: prometheus.NewDesc(
			"custody_proofs_failed_total",
			"Proofs that failed verification",
			nil, nil),
		expiredChallenges: prometheus.NewDesc(
			"custody_challenges_expired_total",
			"Proofs rejected because their challenge had expired",
			nil, nil),
		rateLimitedRequests: prometheus.NewDesc(
			"custody_rate_limited_requests_total",
			"Challenge requests rejected by the rate limiter",
			nil, nil),
		responseTimeMs: prometheus.NewDesc(
			"custody_verify_response_time_ms",
			"Exponential moving average of proof verification latency",
			nil, nil),
		successRate: prometheus.NewDesc(
			"custody_proof_success_rate",
			"Successful proofs over total challenges",
			nil, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.totalChallenges
	ch <- c.successfulProofs
	ch <- c.failedProofs
	ch <- c.expiredChallenges
	ch <- c.rateLimitedRequests
	ch <- c.responseTimeMs
	ch <- c.successRate
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.engine.GetMetrics()

	ch <- prometheus.MustNewConstMetric(c.totalChallenges, prometheus.CounterValue, float64(snap.TotalChallenges))
	ch <- prometheus.MustNewConstMetric(c.successfulProofs, prometheus.CounterValue, float64(snap.SuccessfulProofs))
	ch <- prometheus.MustNewConstMetric(c.failedProofs, prometheus.CounterValue, float64(snap.FailedProofs))
	ch <- prometheus.MustNewConstMetric(c.expiredChallenges, prometheus.CounterValue, float64(snap.ExpiredChallenges))
	ch <- prometheus.MustNewConstMetric(c.rateLimitedRequests, prometheus.CounterValue, float64(snap.RateLimitedRequests))
	ch <- prometheus.MustNewConstMetric(c.responseTimeMs, prometheus.GaugeValue, snap.AverageResponseTimeMs)
	ch <- prometheus.MustNewConstMetric(c.successRate, prometheus.GaugeValue, snap.SuccessRate())
}

// NewRegistry returns a registry with the engine collector installed.
func NewRegistry(engine *verifier.StorageVerifier) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(NewCollector(engine))
	return reg
}
