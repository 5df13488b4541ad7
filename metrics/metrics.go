// Package metrics exposes Prometheus instrumentation for the verification
// pipeline and the settlement clients.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// VerificationRuns counts completed pipeline runs by outcome
	// (released, failed, cancelled).
	VerificationRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aetherlock",
		Subsystem: "verification",
		Name:      "runs_total",
		Help:      "Completed verification pipeline runs by outcome.",
	}, []string{"outcome"})

	// StageDuration observes per-stage latency of the pipeline.
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "aetherlock",
		Subsystem: "verification",
		Name:      "stage_duration_seconds",
		Help:      "Wall-clock duration of each verification pipeline stage.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"stage"})

	// StageRetries counts retries performed per stage.
	StageRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aetherlock",
		Subsystem: "verification",
		Name:      "stage_retries_total",
		Help:      "Retries performed per pipeline stage.",
	}, []string{"stage"})

	// Verdicts counts adjudicator verdicts by result.
	Verdicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aetherlock",
		Subsystem: "adjudicator",
		Name:      "verdicts_total",
		Help:      "Adjudicator verdicts by result.",
	}, []string{"result"})

	// ChainSubmissions counts settlement transactions sent to the chain.
	ChainSubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aetherlock",
		Subsystem: "chain",
		Name:      "submissions_total",
		Help:      "Settlement transactions submitted by instruction and status.",
	}, []string{"instruction", "status"})

	// EvidenceBundleBytes observes uploaded evidence bundle sizes.
	EvidenceBundleBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "aetherlock",
		Subsystem: "evidence",
		Name:      "bundle_bytes",
		Help:      "Total byte size of uploaded evidence bundles.",
		Buckets:   prometheus.ExponentialBuckets(1024, 4, 8),
	})
)

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
