// Package retention enforces the session lifecycle's two clocks: the
// pairing deadline, past which capture-phase sessions become EXPIRED, and
// the retention window, past which terminal sessions lose their artifact
// blobs. ACCEPTED sessions keep their evidence; it backs the profile record.
package retention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Malcan-Technologies/creditxpress-kyc/internal/audit"
	"github.com/Malcan-Technologies/creditxpress-kyc/internal/retention/metrics"
	"github.com/Malcan-Technologies/creditxpress-kyc/internal/session/models"
	id "github.com/Malcan-Technologies/creditxpress-kyc/pkg/domain"
	dErrors "github.com/Malcan-Technologies/creditxpress-kyc/pkg/domain-errors"
	"github.com/Malcan-Technologies/creditxpress-kyc/pkg/platform/sentinel"
	"github.com/Malcan-Technologies/creditxpress-kyc/pkg/requestcontext"
)

const (
	// DefaultWindow is how long terminal-session evidence survives before
	// the blobs are disposed of.
	DefaultWindow = 30 * 24 * time.Hour

	// DefaultSweepInterval paces the sweeper. Nothing user-visible waits
	// on a sweep, so ticks are sparse.
	DefaultSweepInterval = time.Minute

	// DefaultBatchSize bounds how many sessions one tick expires and how
	// many it purges.
	DefaultBatchSize = 32
)

// SessionSweeper is the slice of the session service that persists the
// EXPIRED transition, with its audit events and token revocation.
type SessionSweeper interface {
	ExpireOverdue(ctx context.Context, now time.Time, limit int) (int, error)
}

// PurgeStore lists purge candidates and applies the purge mark.
type PurgeStore interface {
	ListPurgeable(ctx context.Context, cutoff time.Time, limit int) ([]*models.Session, error)
	Execute(ctx context.Context, sessionID id.SessionID,
		validate func(*models.Session) error,
		mutate func(*models.Session)) (*models.Session, error)
}

// BlobDeleter removes purged payloads from artifact storage.
type BlobDeleter interface {
	Delete(ctx context.Context, key string) error
}

// AuditPublisher mirrors purges into the audit trail.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Sweeper performs both retention duties on an interval.
type Sweeper struct {
	sessions       SessionSweeper
	store          PurgeStore
	blobs          BlobDeleter
	auditPublisher AuditPublisher
	window         time.Duration
	interval       time.Duration
	batchSize      int
	metrics        *metrics.Metrics
	logger         *slog.Logger
}

type Option func(s *Sweeper)

func WithWindow(window time.Duration) Option {
	return func(s *Sweeper) {
		if window > 0 {
			s.window = window
		}
	}
}

func WithSweepInterval(interval time.Duration) Option {
	return func(s *Sweeper) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

func WithBatchSize(size int) Option {
	return func(s *Sweeper) {
		if size > 0 {
			s.batchSize = size
		}
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Sweeper) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Sweeper) {
		s.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) {
		s.logger = logger
	}
}

// NewSweeper constructs a Sweeper.
func NewSweeper(sessions SessionSweeper, store PurgeStore, blobs BlobDeleter, opts ...Option) *Sweeper {
	s := &Sweeper{
		sessions:  sessions,
		store:     store,
		blobs:     blobs,
		window:    DefaultWindow,
		interval:  DefaultSweepInterval,
		batchSize: DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run sweeps until the context is canceled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one sweep: expiry first, then purge. Exported so tests and
// operational tooling can drive the sweeper without the timer.
func (s *Sweeper) Tick(ctx context.Context) {
	started := time.Now()
	now := requestcontext.Now(ctx)

	expired, err := s.sessions.ExpireOverdue(ctx, now, s.batchSize)
	if err != nil {
		s.metrics.IncrementFailure("expire")
		if s.logger != nil {
			s.logger.WarnContext(ctx, "expiry sweep failed", "error", err)
		}
	}
	s.metrics.AddExpired(expired)

	purged := s.purge(ctx, now)

	s.metrics.ObserveSweepLatency(time.Since(started))
	if (expired > 0 || purged > 0) && s.logger != nil {
		s.logger.InfoContext(ctx, "retention sweep finished",
			"expired", expired, "purged", purged)
	}
}

func (s *Sweeper) purge(ctx context.Context, now time.Time) int {
	cutoff := now.Add(-s.window)
	candidates, err := s.store.ListPurgeable(ctx, cutoff, s.batchSize)
	if err != nil {
		s.metrics.IncrementFailure("list")
		if s.logger != nil {
			s.logger.WarnContext(ctx, "failed to list purgeable sessions", "error", err)
		}
		return 0
	}

	purged := 0
	for _, candidate := range candidates {
		if ctx.Err() != nil {
			return purged
		}
		if s.purgeSession(ctx, candidate.ID, now) {
			purged++
		}
	}
	return purged
}

func (s *Sweeper) purgeSession(ctx context.Context, sessionID id.SessionID, now time.Time) bool {
	var refs []string
	session, err := s.store.Execute(ctx, sessionID,
		func(current *models.Session) error {
			return current.CanPurge()
		},
		func(current *models.Session) {
			refs = current.ApplyPurge(now)
		},
	)
	if err != nil {
		// An invalid-state rejection means the session raced into ACCEPTED
		// between list and mark; its blobs stay.
		if !dErrors.HasCode(err, dErrors.CodeInvalidState) {
			s.metrics.IncrementFailure("mark")
			if s.logger != nil {
				s.logger.WarnContext(ctx, "failed to mark session purged",
					"session_id", sessionID, "error", err)
			}
		}
		return false
	}

	// Deletes run after the mark. A failed delete leaves the blob behind
	// with the artifact already marked; bucket lifecycle rules are the
	// backstop for those.
	for _, ref := range refs {
		if err := s.blobs.Delete(ctx, ref); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			s.metrics.IncrementFailure("blob_delete")
			if s.logger != nil {
				s.logger.WarnContext(ctx, "failed to delete purged blob",
					"session_id", session.ID, "ref", ref, "error", err)
			}
		}
	}

	if s.auditPublisher != nil {
		event := audit.Event{
			Timestamp: now,
			SessionID: session.ID,
			UserID:    session.OwnerUserID,
			Action:    string(audit.EventArtifactPurged),
			Reason:    fmt.Sprintf("blobs=%d", len(refs)),
		}
		if err := s.auditPublisher.Emit(ctx, event); err != nil && s.logger != nil {
			s.logger.WarnContext(ctx, "failed to record purge audit event",
				"session_id", session.ID, "error", err)
		}
	}

	s.metrics.IncrementPurged(len(refs))
	return true
}
