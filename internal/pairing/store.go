package pairing

import (
	"context"
	"time"

	id "github.com/Malcan-Technologies/creditxpress-kyc/pkg/domain"
)

// CredentialStore holds pairing token digests keyed by session. The raw
// token never reaches a store; only its SHA-256 digest does, with a TTL
// mirroring the session's pairing deadline.
//
// Error Contract:
//   - Get returns an error wrapping sentinel.ErrNotFound when no digest
//     exists (never issued, expired out, or revoked).
//   - Delete is idempotent; deleting an absent digest is not an error.
type CredentialStore interface {
	Save(ctx context.Context, sessionID id.SessionID, digest string, ttl time.Duration) error
	Get(ctx context.Context, sessionID id.SessionID) (string, error)
	Delete(ctx context.Context, sessionID id.SessionID) error
}
