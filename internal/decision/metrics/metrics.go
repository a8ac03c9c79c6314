// Package metrics provides observability for decision evaluation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks decision evaluation behavior.
type Metrics struct {
	// Evidence gathering latency per scorer.
	EvidenceLatency *prometheus.HistogramVec

	// Terminal outcomes, split by how they arrived (worker or callback).
	Outcomes *prometheus.CounterVec

	// Full evaluation latency including evidence gathering.
	EvaluateLatency prometheus.Histogram

	// Evaluations that could not complete; the session stays PROCESSING.
	Failures *prometheus.CounterVec
}

// New creates a Metrics instance with all decision metrics registered.
func New() *Metrics {
	return &Metrics{
		EvidenceLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kyc_decision_evidence_duration_seconds",
			Help:    "Duration of scorer calls by source",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"source"}), // source: "ocr", "face_match", "liveness"

		Outcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kyc_decision_outcomes_total",
			Help: "Terminal decision outcomes by outcome and delivery path",
		}, []string{"outcome", "via"}), // via: "worker", "callback"

		EvaluateLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "kyc_decision_evaluate_duration_seconds",
			Help:    "Duration of full decision evaluation including evidence gathering",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),

		Failures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kyc_decision_failures_total",
			Help: "Evaluations abandoned before producing an outcome, by stage",
		}, []string{"stage"}), // stage: "evidence", "apply"
	}
}

// ObserveEvidenceLatency records the duration of one scorer call.
func (m *Metrics) ObserveEvidenceLatency(source string, d time.Duration) {
	if m != nil {
		m.EvidenceLatency.WithLabelValues(source).Observe(d.Seconds())
	}
}

// IncrementOutcome records a terminal outcome.
func (m *Metrics) IncrementOutcome(outcome, via string) {
	if m != nil {
		m.Outcomes.WithLabelValues(outcome, via).Inc()
	}
}

// ObserveEvaluateLatency records the total evaluation duration.
func (m *Metrics) ObserveEvaluateLatency(d time.Duration) {
	if m != nil {
		m.EvaluateLatency.Observe(d.Seconds())
	}
}

// IncrementFailure records an evaluation that left its session PROCESSING.
func (m *Metrics) IncrementFailure(stage string) {
	if m != nil {
		m.Failures.WithLabelValues(stage).Inc()
	}
}
