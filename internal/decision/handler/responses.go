package handler

import (
	"time"

	"github.com/Malcan-Technologies/creditxpress-kyc/internal/session/models"
)

// DecisionResponse acknowledges a delivered decision.
type DecisionResponse struct {
	SessionID string     `json:"session_id"`
	Status    string     `json:"status"`
	Outcome   string     `json:"outcome"`
	DecidedAt *time.Time `json:"decided_at,omitempty"`
}

// FromSession maps a decided session to the acknowledgment payload.
func FromSession(session *models.Session) DecisionResponse {
	resp := DecisionResponse{
		SessionID: session.ID.String(),
		Status:    string(session.Status),
	}
	if session.Decision != nil {
		resp.Outcome = string(session.Decision.Outcome)
		decidedAt := session.Decision.DecidedAt
		resp.DecidedAt = &decidedAt
	}
	return resp
}
