package handler

import (
	"time"

	"github.com/Malcan-Technologies/creditxpress-kyc/internal/session/models"
)

// ArtifactResponse is the artifact portion of capture responses. It carries
// metadata only; payload bytes are never echoed back.
type ArtifactResponse struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	SHA256      string    `json:"sha256"`
	DeviceLabel string    `json:"device_label,omitempty"`
	ViaHandoff  bool      `json:"via_handoff"`
	CapturedAt  time.Time `json:"captured_at"`
}

// CaptureResponse is the HTTP response for POST /kyc/sessions/{id}/artifacts.
// MissingKinds tells the client what is still needed before submit.
type CaptureResponse struct {
	SessionID    string           `json:"session_id"`
	Status       string           `json:"status"`
	Artifact     ArtifactResponse `json:"artifact"`
	MissingKinds []string         `json:"missing_kinds"`
}

// SubmitResponse is the HTTP response for POST /kyc/sessions/{id}/submit.
type SubmitResponse struct {
	SessionID   string     `json:"session_id"`
	Status      string     `json:"status"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
}

// FromCapture converts a recorded artifact and its session to an HTTP response.
func FromCapture(session *models.Session, artifact *models.Artifact) *CaptureResponse {
	missing := make([]string, 0, 3)
	for _, kind := range session.MissingKinds() {
		missing = append(missing, string(kind))
	}
	return &CaptureResponse{
		SessionID: session.ID.String(),
		Status:    string(session.Status),
		Artifact: ArtifactResponse{
			ID:          artifact.ID.String(),
			Kind:        string(artifact.Kind),
			ContentType: artifact.ContentType,
			SizeBytes:   artifact.SizeBytes,
			SHA256:      artifact.ContentSHA256,
			DeviceLabel: artifact.DeviceLabel,
			ViaHandoff:  artifact.ViaHandoff,
			CapturedAt:  artifact.CapturedAt,
		},
		MissingKinds: missing,
	}
}

// FromSubmit converts a submitted session to an HTTP response.
func FromSubmit(session *models.Session) *SubmitResponse {
	return &SubmitResponse{
		SessionID:   session.ID.String(),
		Status:      string(session.Status),
		SubmittedAt: session.SubmittedAt,
	}
}
