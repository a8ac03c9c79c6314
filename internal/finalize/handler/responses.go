package handler

import (
	"time"

	"github.com/Malcan-Technologies/creditxpress-kyc/internal/finalize"
)

// AcceptResponse is the payload returned by the acceptance endpoint.
type AcceptResponse struct {
	SessionID  string     `json:"session_id"`
	Status     string     `json:"status"`
	Applied    bool       `json:"applied"`
	ProfileRef string     `json:"profile_ref"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`
}

// FromResult maps an acceptance result to its response payload.
func FromResult(result *finalize.AcceptResult) AcceptResponse {
	return AcceptResponse{
		SessionID:  result.Session.ID.String(),
		Status:     string(result.Session.Status),
		Applied:    result.Applied,
		ProfileRef: result.ProfileRef,
		AcceptedAt: result.Session.AcceptedAt,
	}
}
