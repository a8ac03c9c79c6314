package handler

import (
	"time"

	"github.com/Malcan-Technologies/creditxpress-kyc/internal/handoff"
)

// HandoffResponse is the HTTP response for session start and redo. The
// pairing token appears here exactly once and is never retrievable again.
type HandoffResponse struct {
	SessionID        string    `json:"session_id"`
	Status           string    `json:"status"`
	PredecessorID    string    `json:"predecessor_id,omitempty"`
	PairingToken     string    `json:"pairing_token"`
	PairingExpiresAt time.Time `json:"pairing_expires_at"`
	CaptureURL       string    `json:"capture_url"`
}

// FromHandoff converts a handoff presentation to an HTTP response.
func FromHandoff(result *handoff.Handoff) *HandoffResponse {
	resp := &HandoffResponse{
		SessionID:        result.Session.ID.String(),
		Status:           string(result.Session.Status),
		PairingToken:     result.PairingToken,
		PairingExpiresAt: result.Session.PairingExpiresAt,
		CaptureURL:       result.CaptureURL,
	}
	if !result.Session.PredecessorID.IsNil() {
		resp.PredecessorID = result.Session.PredecessorID.String()
	}
	return resp
}
