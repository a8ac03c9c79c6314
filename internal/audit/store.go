package audit

import (
	"context"

	id "github.com/Malcan-Technologies/creditxpress-kyc/pkg/domain"
)

// Store persists audit events. Implementations must be append-only;
// events are never updated or deleted once written.
//
// Error Contract:
//   - Append returns an error only on storage failure.
//   - List methods return empty slices, not errors, when nothing matches.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListBySession(ctx context.Context, sessionID id.SessionID) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}
