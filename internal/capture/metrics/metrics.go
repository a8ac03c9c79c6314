package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for artifact intake.
type Metrics struct {
	// Accepted artifacts by kind and capture channel
	Captured *prometheus.CounterVec

	// Rejected uploads by reason
	Rejected *prometheus.CounterVec

	// Accepted artifact sizes by kind
	ArtifactBytes *prometheus.HistogramVec
}

// New creates a new Metrics instance with all capture metrics registered.
func New() *Metrics {
	return &Metrics{
		Captured: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kyc_capture_artifacts_total",
			Help: "Total artifacts accepted by kind and capture channel",
		}, []string{"kind", "channel"}), // channel: "owner", "handoff"

		Rejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kyc_capture_rejected_total",
			Help: "Total uploads rejected before storage by reason",
		}, []string{"reason"}), // reason: "content_type", "size", "unauthorized", "state"

		ArtifactBytes: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kyc_capture_artifact_bytes",
			Help:    "Size distribution of accepted artifacts",
			Buckets: prometheus.ExponentialBuckets(64<<10, 2, 8), // 64KiB .. 8MiB
		}, []string{"kind"}),
	}
}

// IncrementCaptured records an accepted artifact.
func (m *Metrics) IncrementCaptured(kind, channel string) {
	if m != nil {
		m.Captured.WithLabelValues(kind, channel).Inc()
	}
}

// IncrementRejected records a refused upload.
func (m *Metrics) IncrementRejected(reason string) {
	if m != nil {
		m.Rejected.WithLabelValues(reason).Inc()
	}
}

// ObserveArtifactSize records an accepted artifact's size.
func (m *Metrics) ObserveArtifactSize(kind string, sizeBytes int64) {
	if m != nil {
		m.ArtifactBytes.WithLabelValues(kind).Observe(float64(sizeBytes))
	}
}
