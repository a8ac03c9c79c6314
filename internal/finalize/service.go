// Package finalize commits an approved verification: the evidence package
// is attached to the customer profile and the session moves APPROVED →
// ACCEPTED exactly once. Everything here is built to be replayed; the
// profile attach is idempotent per session and the accept is a CAS.
package finalize

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"log/slog"

	"github.com/Malcan-Technologies/creditxpress-kyc/internal/authz"
	"github.com/Malcan-Technologies/creditxpress-kyc/internal/profile"
	"github.com/Malcan-Technologies/creditxpress-kyc/internal/session/models"
	id "github.com/Malcan-Technologies/creditxpress-kyc/pkg/domain"
	dErrors "github.com/Malcan-Technologies/creditxpress-kyc/pkg/domain-errors"
	"github.com/Malcan-Technologies/creditxpress-kyc/pkg/requestcontext"
)

// Authorizer is the capability check; owner identity and a still-valid
// pairing token may both finalize.
type Authorizer interface {
	Authorize(ctx context.Context, sessionID id.SessionID, creds authz.Credentials) (*authz.Principal, error)
}

// SessionReader loads the session under finalization.
type SessionReader interface {
	Get(ctx context.Context, sessionID id.SessionID) (*models.Session, error)
}

// Acceptor performs the APPROVED → ACCEPTED transition.
type Acceptor interface {
	MarkAccepted(ctx context.Context, sessionID id.SessionID, profileRef string) (*models.Session, bool, error)
}

// ProfileStore commits the evidence package.
type ProfileStore interface {
	Attach(ctx context.Context, attachment profile.Attachment) (string, error)
}

// Service finalizes approved sessions.
type Service struct {
	authorizer Authorizer
	sessions   SessionReader
	acceptor   Acceptor
	profiles   ProfileStore
	logger     *slog.Logger
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// New constructs a Service.
func New(authorizer Authorizer, sessions SessionReader, acceptor Acceptor, profiles ProfileStore, opts ...Option) *Service {
	s := &Service{
		authorizer: authorizer,
		sessions:   sessions,
		acceptor:   acceptor,
		profiles:   profiles,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AcceptResult reports the finalization outcome. Applied is true only for
// the call that performed the transition; racers and replays read false
// with the same profile ref.
type AcceptResult struct {
	Session    *models.Session
	Applied    bool
	ProfileRef string
}

// Accept attaches the evidence package to the profile and accepts the
// session. The attach happens first: it is idempotent per session, so a
// crash between the two steps is healed by any retry, while the reverse
// order could leave an ACCEPTED session with no profile record.
func (s *Service) Accept(ctx context.Context, sessionID id.SessionID, creds authz.Credentials) (*AcceptResult, error) {
	if _, err := s.authorizer.Authorize(ctx, sessionID, creds); err != nil {
		return nil, err
	}

	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load session")
	}

	if session.Status == models.StatusAccepted {
		return &AcceptResult{Session: session, Applied: false, ProfileRef: session.ProfileRef}, nil
	}
	if session.Status != models.StatusApproved {
		return nil, dErrors.New(dErrors.CodeInvalidState, "session is not approved")
	}
	// Both invariants are established by Create and the decision flow; a
	// violation here means corrupted state, not a caller mistake.
	if session.OwnerUserID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "approved session has no bound owner")
	}
	if session.Decision == nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "approved session has no decision record")
	}

	ref, err := s.profiles.Attach(ctx, buildAttachment(session))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeDependency, "failed to attach verification to profile")
	}

	accepted, applied, err := s.acceptor.MarkAccepted(ctx, sessionID, ref)
	if err != nil {
		return nil, err
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "session finalized",
			"session_id", sessionID,
			"profile_ref", accepted.ProfileRef,
			"applied", applied,
			"request_id", requestcontext.RequestID(ctx))
	}
	return &AcceptResult{Session: accepted, Applied: applied, ProfileRef: accepted.ProfileRef}, nil
}

func buildAttachment(session *models.Session) profile.Attachment {
	attachment := profile.Attachment{
		SessionID:     session.ID,
		UserID:        session.OwnerUserID,
		ApplicationID: session.ApplicationID,
		Outcome:       session.Decision.Outcome,
		Extracted:     session.Decision.Extracted,
		VerifiedAt:    session.Decision.DecidedAt,
	}
	for _, artifact := range session.ActiveArtifacts() {
		attachment.Evidence = append(attachment.Evidence, profile.EvidenceRef{
			Kind:       artifact.Kind,
			StorageRef: artifact.StorageRef,
			SHA256:     artifact.ContentSHA256,
		})
	}
	return attachment
}
