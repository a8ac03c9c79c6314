// Package profile attaches accepted verification outcomes to the loan
// platform's customer profile. The attachment is the durable link between
// a KYC session and the application it vouches for; finalize records the
// returned ref on the session.
package profile

import (
	"context"
	"time"

	"github.com/Malcan-Technologies/creditxpress-kyc/internal/session/models"
	id "github.com/Malcan-Technologies/creditxpress-kyc/pkg/domain"
)

// EvidenceRef points at one artifact blob backing the outcome. Only
// references and digests travel here, never image bytes.
type EvidenceRef struct {
	Kind       id.ArtifactKind `json:"kind"`
	StorageRef string          `json:"storage_ref"`
	SHA256     string          `json:"sha256"`
}

// Attachment is the evidence package committed to a profile when a session
// is accepted.
type Attachment struct {
	SessionID     id.SessionID
	UserID        id.UserID
	ApplicationID id.ApplicationID
	Outcome       id.Outcome
	Extracted     *models.ExtractedIdentity
	Evidence      []EvidenceRef
	VerifiedAt    time.Time
}

// Store persists profile attachments.
//
// Error Contract:
//   - Attach is idempotent per session: replaying a session returns the ref
//     minted by the first attach, racers included. No other errors are
//     sentinel-typed; callers treat failures as retryable dependency errors.
//   - GetBySession returns sentinel.ErrNotFound when no attachment exists.
type Store interface {
	Attach(ctx context.Context, attachment Attachment) (string, error)
	GetBySession(ctx context.Context, sessionID id.SessionID) (string, *Attachment, error)
}
