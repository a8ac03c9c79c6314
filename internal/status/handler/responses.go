package handler

import (
	"time"

	"github.com/Malcan-Technologies/creditxpress-kyc/internal/session/models"
	"github.com/Malcan-Technologies/creditxpress-kyc/internal/status"
)

// StatusResponse is the HTTP response for GET /kyc/sessions/{id}.
type StatusResponse struct {
	SessionID string    `json:"session_id"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ArtifactResponse is one current artifact in the details view. Storage
// references stay internal; clients only see capture metadata.
type ArtifactResponse struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	DeviceLabel string    `json:"device_label,omitempty"`
	ViaHandoff  bool      `json:"via_handoff"`
	CapturedAt  time.Time `json:"captured_at"`
}

// DecisionResponse is the decision portion of the details view.
type DecisionResponse struct {
	Outcome       string    `json:"outcome"`
	FaceScore     *float64  `json:"face_score,omitempty"`
	LivenessScore *float64  `json:"liveness_score,omitempty"`
	Reasons       []string  `json:"reasons,omitempty"`
	DecidedAt     time.Time `json:"decided_at"`
}

// DetailsResponse is the HTTP response for GET /kyc/sessions/{id}/details.
type DetailsResponse struct {
	StatusResponse
	PairingExpiresAt   time.Time          `json:"pairing_expires_at"`
	MissingKinds       []string           `json:"missing_kinds"`
	Artifacts          []ArtifactResponse `json:"artifacts"`
	Decision           *DecisionResponse  `json:"decision,omitempty"`
	ProfileRef         string             `json:"profile_ref,omitempty"`
	PredecessorID      string             `json:"predecessor_id,omitempty"`
	CreatedDeviceLabel string             `json:"created_device_label,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	SubmittedAt        *time.Time         `json:"submitted_at,omitempty"`
	AcceptedAt         *time.Time         `json:"accepted_at,omitempty"`
}

// FromSummary converts a status summary to an HTTP response.
func FromSummary(summary *status.Summary) *StatusResponse {
	return &StatusResponse{
		SessionID: summary.SessionID.String(),
		Status:    string(summary.Status),
		UpdatedAt: summary.UpdatedAt,
	}
}

// FromDetails converts the details view to an HTTP response.
func FromDetails(details *status.Details) *DetailsResponse {
	resp := &DetailsResponse{
		StatusResponse:     *FromSummary(&details.Summary),
		PairingExpiresAt:   details.PairingExpiresAt,
		MissingKinds:       make([]string, 0, len(details.MissingKinds)),
		Artifacts:          make([]ArtifactResponse, 0, len(details.Artifacts)),
		ProfileRef:         details.ProfileRef,
		CreatedDeviceLabel: details.CreatedDeviceLabel,
		CreatedAt:          details.CreatedAt,
		SubmittedAt:        details.SubmittedAt,
		AcceptedAt:         details.AcceptedAt,
	}
	for _, kind := range details.MissingKinds {
		resp.MissingKinds = append(resp.MissingKinds, string(kind))
	}
	for _, artifact := range details.Artifacts {
		resp.Artifacts = append(resp.Artifacts, fromArtifact(artifact))
	}
	if details.Decision != nil {
		resp.Decision = fromDecision(details.Decision)
	}
	if !details.PredecessorID.IsNil() {
		resp.PredecessorID = details.PredecessorID.String()
	}
	return resp
}

func fromArtifact(artifact models.Artifact) ArtifactResponse {
	return ArtifactResponse{
		ID:          artifact.ID.String(),
		Kind:        string(artifact.Kind),
		ContentType: artifact.ContentType,
		SizeBytes:   artifact.SizeBytes,
		DeviceLabel: artifact.DeviceLabel,
		ViaHandoff:  artifact.ViaHandoff,
		CapturedAt:  artifact.CapturedAt,
	}
}

func fromDecision(decision *models.Decision) *DecisionResponse {
	return &DecisionResponse{
		Outcome:       string(decision.Outcome),
		FaceScore:     decision.FaceScore,
		LivenessScore: decision.LivenessScore,
		Reasons:       decision.Reasons,
		DecidedAt:     decision.DecidedAt,
	}
}
