// Package metrics provides observability for the retention sweeper.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks what each sweep disposed of.
type Metrics struct {
	// Capture-phase sessions the sweep moved to EXPIRED.
	ExpiredSessions prometheus.Counter

	// Terminal sessions whose blobs the sweep removed.
	PurgedSessions prometheus.Counter

	// Individual blobs deleted from artifact storage.
	PurgedBlobs prometheus.Counter

	// Full sweep latency, expiry and purge phases combined.
	SweepLatency prometheus.Histogram

	// Sweep steps that failed and will be retried next tick, by stage.
	Failures *prometheus.CounterVec
}

// New creates a Metrics instance with all retention metrics registered.
func New() *Metrics {
	return &Metrics{
		ExpiredSessions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kyc_retention_expired_sessions_total",
			Help: "Sessions moved to EXPIRED by the sweeper",
		}),

		PurgedSessions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kyc_retention_purged_sessions_total",
			Help: "Terminal sessions whose artifact blobs were purged",
		}),

		PurgedBlobs: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kyc_retention_purged_blobs_total",
			Help: "Artifact blobs deleted by retention",
		}),

		SweepLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "kyc_retention_sweep_duration_seconds",
			Help:    "Duration of one full retention sweep",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),

		Failures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kyc_retention_failures_total",
			Help: "Sweep steps that failed, by stage",
		}, []string{"stage"}), // stage: "expire", "list", "mark", "blob_delete"
	}
}

// AddExpired records sessions the sweep expired.
func (m *Metrics) AddExpired(n int) {
	if m != nil && n > 0 {
		m.ExpiredSessions.Add(float64(n))
	}
}

// IncrementPurged records one session whose blobs were removed.
func (m *Metrics) IncrementPurged(blobs int) {
	if m != nil {
		m.PurgedSessions.Inc()
		m.PurgedBlobs.Add(float64(blobs))
	}
}

// ObserveSweepLatency records the duration of one sweep.
func (m *Metrics) ObserveSweepLatency(d time.Duration) {
	if m != nil {
		m.SweepLatency.Observe(d.Seconds())
	}
}

// IncrementFailure records a failed sweep step.
func (m *Metrics) IncrementFailure(stage string) {
	if m != nil {
		m.Failures.WithLabelValues(stage).Inc()
	}
}
