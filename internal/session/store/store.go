// Package store persists KYC sessions. Two implementations: in-memory for
// tests and local development, PostgreSQL for production.
package store

import (
	"context"
	"time"

	"github.com/Malcan-Technologies/creditxpress-kyc/internal/session/models"
	id "github.com/Malcan-Technologies/creditxpress-kyc/pkg/domain"
)

// Store is the session persistence boundary.
//
// Error Contract:
// All store methods follow this error pattern:
//   - Return an error wrapping sentinel.ErrNotFound when the session does not exist
//   - Return an error wrapping sentinel.ErrConflict when Create hits a duplicate ID
//   - Execute returns the validate callback's error unchanged when validation rejects
//   - Return wrapped infrastructure errors for everything else
type Store interface {
	// Create persists a new session.
	Create(ctx context.Context, session *models.Session) error

	// Get returns a copy of the session. Mutating the result does not
	// affect stored state.
	Get(ctx context.Context, sessionID id.SessionID) (*models.Session, error)

	// Execute runs a check-and-set transition: validate inspects the
	// current session and may reject with a domain error; mutate applies
	// the change. Both run against the same snapshot, and the write only
	// lands if no concurrent writer got there first, so lost updates are
	// impossible. Returns the session as persisted.
	Execute(ctx context.Context, sessionID id.SessionID,
		validate func(*models.Session) error,
		mutate func(*models.Session)) (*models.Session, error)

	// ListByStatus returns up to limit sessions with the given stored
	// status, oldest update first. The decision worker feeds on PROCESSING.
	ListByStatus(ctx context.Context, status models.Status, limit int) ([]*models.Session, error)

	// ListExpirable returns capture-phase sessions whose pairing deadline
	// passed before now. The sweeper persists their EXPIRED transition.
	ListExpirable(ctx context.Context, now time.Time, limit int) ([]*models.Session, error)

	// ListPurgeable returns terminal, non-ACCEPTED sessions untouched since
	// cutoff that still hold un-purged artifact blobs.
	ListPurgeable(ctx context.Context, cutoff time.Time, limit int) ([]*models.Session, error)
}
