package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the session lifecycle.
type Metrics struct {
	// Sessions created, by channel ("fresh" or "redo")
	SessionsCreated *prometheus.CounterVec

	// Terminal transitions by resulting status
	SessionsTransitioned *prometheus.CounterVec

	// Transitions refused by the state machine, by operation
	TransitionsRejected *prometheus.CounterVec

	// Sessions expired by the sweeper versus observed lazily on read
	SessionsExpired *prometheus.CounterVec
}

// New creates a new Metrics instance with all session lifecycle metrics registered.
func New() *Metrics {
	return &Metrics{
		SessionsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kyc_sessions_created_total",
			Help: "Total verification sessions created by channel",
		}, []string{"channel"}), // channel: "fresh", "redo"

		SessionsTransitioned: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kyc_session_transitions_total",
			Help: "Total session status transitions by resulting status",
		}, []string{"status"}),

		TransitionsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kyc_session_transitions_rejected_total",
			Help: "Total transitions refused by the session state machine",
		}, []string{"operation"}),

		SessionsExpired: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kyc_sessions_expired_total",
			Help: "Total sessions expired, by detection path",
		}, []string{"path"}), // path: "sweeper", "read"
	}
}

// IncrementCreated records a session creation.
func (m *Metrics) IncrementCreated(channel string) {
	if m != nil {
		m.SessionsCreated.WithLabelValues(channel).Inc()
	}
}

// IncrementTransition records a successful status transition.
func (m *Metrics) IncrementTransition(status string) {
	if m != nil {
		m.SessionsTransitioned.WithLabelValues(status).Inc()
	}
}

// IncrementRejected records a transition the state machine refused.
func (m *Metrics) IncrementRejected(operation string) {
	if m != nil {
		m.TransitionsRejected.WithLabelValues(operation).Inc()
	}
}

// IncrementExpired records a session crossing its pairing deadline.
func (m *Metrics) IncrementExpired(path string) {
	if m != nil {
		m.SessionsExpired.WithLabelValues(path).Inc()
	}
}
