// Package blob stores captured identity artifacts. Session metadata never
// holds image bytes, only blob references; everything that needs pixels
// goes through a Store.
package blob

import (
	"context"
	"fmt"
	"io"
	"time"

	id "github.com/Malcan-Technologies/creditxpress-kyc/pkg/domain"
)

// Store is the persistence boundary for artifact payloads.
//
// Error Contract:
//   - Get/Delete on an unknown key return an error wrapping sentinel.ErrNotFound.
//   - All other failures are infrastructure errors, returned as-is for the
//     caller to wrap.
type Store interface {
	// Put writes the payload under key. Existing keys are overwritten;
	// callers derive keys from fresh artifact IDs so overwrites only happen
	// on retried uploads.
	Put(ctx context.Context, key string, contentType string, payload io.Reader) error

	// Get returns the payload and its content type. The caller owns closing
	// the reader.
	Get(ctx context.Context, key string) (io.ReadCloser, string, error)

	// Delete removes the payload. Deleting is how retention enforcement
	// disposes of superseded and purged artifacts.
	Delete(ctx context.Context, key string) error

	// SignedURL returns a URL the decision engines can fetch the payload
	// from without holding service credentials. The URL stops working after
	// ttl.
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// ArtifactKey builds the canonical storage key for an artifact. Keys group
// by session so retention can purge a whole session with a prefix listing.
func ArtifactKey(sessionID id.SessionID, kind id.ArtifactKind, artifactID id.ArtifactID) string {
	return fmt.Sprintf("sessions/%s/%s/%s", sessionID, kind, artifactID)
}
