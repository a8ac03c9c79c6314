package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Malcan-Technologies/creditxpress-kyc/internal/audit"
	"github.com/Malcan-Technologies/creditxpress-kyc/internal/session/metrics"
	"github.com/Malcan-Technologies/creditxpress-kyc/internal/session/models"
	"github.com/Malcan-Technologies/creditxpress-kyc/internal/session/store"
	id "github.com/Malcan-Technologies/creditxpress-kyc/pkg/domain"
	dErrors "github.com/Malcan-Technologies/creditxpress-kyc/pkg/domain-errors"
	"github.com/Malcan-Technologies/creditxpress-kyc/pkg/platform/sentinel"
	"github.com/Malcan-Technologies/creditxpress-kyc/pkg/requestcontext"
)

// DefaultPairingTTL bounds the capture window when no override is configured.
const DefaultPairingTTL = 10 * time.Minute

// PairingIssuer mints and revokes the capture credential for a session.
// The session service never sees token digests; it only holds the deadline.
type PairingIssuer interface {
	Issue(ctx context.Context, sessionID id.SessionID, expiresAt time.Time) (string, error)
	Revoke(ctx context.Context, sessionID id.SessionID) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service owns every session state transition. Capture, decision and
// finalize verticals funnel their mutations through it so the audit trail
// and metrics see one consistent stream.
type Service struct {
	store          store.Store
	issuer         PairingIssuer
	pairingTTL     time.Duration
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithPairingTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.pairingTTL = ttl
		}
	}
}

// New constructs a Service.
func New(sessions store.Store, issuer PairingIssuer, opts ...Option) *Service {
	s := &Service{store: sessions, issuer: issuer, pairingTTL: DefaultPairingTTL}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateParams carries the identity and device context for a new session.
type CreateParams struct {
	OwnerUserID       id.UserID
	ApplicationID     id.ApplicationID
	DeviceLabel       string
	DeviceFingerprint string
}

// CreatedSession pairs a fresh session with its capture token. The token
// is returned exactly once; only its digest survives server-side.
type CreatedSession struct {
	Session      *models.Session
	PairingToken string
}

// Create opens a verification session for the owner and issues its pairing
// token. The token deadline bounds the whole capture phase.
func (s *Service) Create(ctx context.Context, params CreateParams) (*CreatedSession, error) {
	return s.create(ctx, params, id.SessionID{}, "fresh")
}

// Redo abandons the predecessor session and starts over with a fresh token.
// The predecessor is never mutated; its trail stays intact.
func (s *Service) Redo(ctx context.Context, params CreateParams, predecessorID id.SessionID) (*CreatedSession, error) {
	predecessor, err := s.store.Get(ctx, predecessorID)
	if err != nil {
		return nil, translateStoreErr(err, "load session")
	}
	// Cross-owner probes read the same as unknown sessions.
	if predecessor.OwnerUserID != params.OwnerUserID {
		return nil, dErrors.New(dErrors.CodeNotFound, "session not found")
	}

	if params.ApplicationID.IsNil() {
		params.ApplicationID = predecessor.ApplicationID
	}

	created, err := s.create(ctx, params, predecessorID, "redo")
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, audit.EventSessionRedone, audit.Event{
		SessionID: predecessorID,
		UserID:    params.OwnerUserID,
		Reason:    "superseded_by=" + created.Session.ID.String(),
	})
	return created, nil
}

func (s *Service) create(ctx context.Context, params CreateParams, predecessorID id.SessionID, channel string) (*CreatedSession, error) {
	if params.OwnerUserID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "owner identity required")
	}

	now := requestcontext.Now(ctx)
	session := &models.Session{
		ID:                       id.SessionID(uuid.New()),
		OwnerUserID:              params.OwnerUserID,
		ApplicationID:            params.ApplicationID,
		PredecessorID:            predecessorID,
		Status:                   models.StatusCreated,
		PairingExpiresAt:         now.Add(s.pairingTTL),
		CreatedDeviceLabel:       params.DeviceLabel,
		CreatedDeviceFingerprint: params.DeviceFingerprint,
		CreatedAt:                now,
		UpdatedAt:                now,
	}

	if err := s.store.Create(ctx, session); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create session")
	}

	token, err := s.issuer.Issue(ctx, session.ID, session.PairingExpiresAt)
	if err != nil {
		// The session stays behind without a credential; it can never be
		// paired and expires on schedule.
		return nil, dErrors.Wrap(err, dErrors.CodeDependency, "failed to issue pairing token")
	}

	s.logAudit(ctx, audit.EventSessionCreated, audit.Event{
		SessionID:   session.ID,
		UserID:      session.OwnerUserID,
		DeviceLabel: params.DeviceLabel,
	})
	s.logAudit(ctx, audit.EventPairingIssued, audit.Event{
		SessionID: session.ID,
		UserID:    session.OwnerUserID,
	})
	s.metrics.IncrementCreated(channel)

	return &CreatedSession{Session: session, PairingToken: token}, nil
}

// RecordArtifact appends a captured artifact, superseding any current
// artifact of the same kind. The caller has already persisted the bytes.
func (s *Service) RecordArtifact(ctx context.Context, sessionID id.SessionID, artifact models.Artifact) (*models.Session, error) {
	now := requestcontext.Now(ctx)

	var (
		firstCapture bool
		superseded   *models.Artifact
	)
	session, err := s.store.Execute(ctx, sessionID,
		func(current *models.Session) error {
			return current.CanRecordArtifact(now)
		},
		func(current *models.Session) {
			firstCapture = current.Status == models.StatusCreated
			superseded = nil
			if prior := current.ActiveArtifact(artifact.Kind); prior != nil {
				prev := *prior
				superseded = &prev
			}
			current.ApplyArtifact(artifact, now)
		},
	)
	if err != nil {
		s.countRejected(err, "record_artifact")
		return nil, translateStoreErr(err, "record artifact")
	}

	if superseded != nil {
		s.logAudit(ctx, audit.EventArtifactSuperseded, audit.Event{
			SessionID: sessionID,
			UserID:    session.OwnerUserID,
			Reason:    "kind=" + string(artifact.Kind),
		})
	}
	s.logAudit(ctx, audit.EventArtifactCaptured, audit.Event{
		SessionID:   sessionID,
		UserID:      session.OwnerUserID,
		Reason:      "kind=" + string(artifact.Kind),
		DeviceLabel: artifact.DeviceLabel,
	})
	if firstCapture {
		s.metrics.IncrementTransition(string(models.StatusCapturing))
	}
	return session, nil
}

// Submit moves a complete session into PROCESSING for the decision engine.
// Submitting an already-processing session is a no-op so clients can retry.
func (s *Service) Submit(ctx context.Context, sessionID id.SessionID) (*models.Session, error) {
	now := requestcontext.Now(ctx)

	var transitioned bool
	session, err := s.store.Execute(ctx, sessionID,
		func(current *models.Session) error {
			return current.CanSubmit(now)
		},
		func(current *models.Session) {
			transitioned = current.Status != models.StatusProcessing
			current.ApplySubmit(now)
		},
	)
	if err != nil {
		s.countRejected(err, "submit")
		return nil, translateStoreErr(err, "submit session")
	}

	if transitioned {
		s.logAudit(ctx, audit.EventSessionSubmitted, audit.Event{
			SessionID: sessionID,
			UserID:    session.OwnerUserID,
		})
		s.metrics.IncrementTransition(string(models.StatusProcessing))
	}
	return session, nil
}

// ApplyDecision records the engine's terminal outcome. Redelivering the
// same outcome is a no-op that never overwrites the original record;
// a different outcome is refused as a conflict.
func (s *Service) ApplyDecision(ctx context.Context, sessionID id.SessionID, decision models.Decision) (*models.Session, error) {
	now := requestcontext.Now(ctx)

	var applied bool
	session, err := s.store.Execute(ctx, sessionID,
		func(current *models.Session) error {
			return current.CanApplyDecision(decision.Outcome)
		},
		func(current *models.Session) {
			applied = !current.AlreadyDecided(decision.Outcome)
			if applied {
				current.ApplyDecision(decision, now)
			}
		},
	)
	if err != nil {
		s.countRejected(err, "apply_decision")
		return nil, translateStoreErr(err, "apply decision")
	}

	if applied {
		s.logAudit(ctx, audit.EventSessionDecided, audit.Event{
			SessionID: sessionID,
			UserID:    session.OwnerUserID,
			Decision:  string(decision.Outcome),
			Reason:    strings.Join(decision.Reasons, ","),
		})
		s.metrics.IncrementTransition(string(session.Status))
	}
	return session, nil
}

// MarkAccepted finalizes an approved session with its committed profile
// reference. The returned flag reports whether this call performed the
// transition; replays return the original reference unchanged.
func (s *Service) MarkAccepted(ctx context.Context, sessionID id.SessionID, profileRef string) (*models.Session, bool, error) {
	now := requestcontext.Now(ctx)

	var accepted bool
	session, err := s.store.Execute(ctx, sessionID,
		func(current *models.Session) error {
			return current.CanAccept()
		},
		func(current *models.Session) {
			accepted = current.Status != models.StatusAccepted
			current.ApplyAccept(profileRef, now)
		},
	)
	if err != nil {
		s.countRejected(err, "accept")
		return nil, false, translateStoreErr(err, "accept session")
	}

	if accepted {
		s.logAudit(ctx, audit.EventSessionAccepted, audit.Event{
			SessionID: sessionID,
			UserID:    session.OwnerUserID,
		})
		s.metrics.IncrementTransition(string(models.StatusAccepted))

		if err := s.issuer.Revoke(ctx, sessionID); err != nil && s.logger != nil {
			// The digest expires with its TTL anyway; revocation is a
			// tightening, not a correctness requirement.
			s.logger.WarnContext(ctx, "failed to revoke pairing token",
				"session_id", sessionID, "error", err)
		}
	}
	return session, accepted, nil
}

// ExpireOverdue sweeps capture-phase sessions past their pairing deadline
// into EXPIRED and revokes their tokens. Returns how many were expired.
func (s *Service) ExpireOverdue(ctx context.Context, now time.Time, limit int) (int, error) {
	overdue, err := s.store.ListExpirable(ctx, now, limit)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list expirable sessions")
	}

	expired := 0
	for _, candidate := range overdue {
		session, err := s.store.Execute(ctx, candidate.ID,
			func(current *models.Session) error {
				return current.CanExpire(now)
			},
			func(current *models.Session) {
				current.ApplyExpiry(now)
			},
		)
		if err != nil {
			// Raced by a capture or decision between list and apply; the
			// next sweep re-evaluates.
			if s.logger != nil && !dErrors.HasCode(err, dErrors.CodeInvalidState) {
				s.logger.WarnContext(ctx, "failed to expire session",
					"session_id", candidate.ID, "error", err)
			}
			continue
		}

		if err := s.issuer.Revoke(ctx, session.ID); err != nil && s.logger != nil {
			s.logger.WarnContext(ctx, "failed to revoke pairing token",
				"session_id", session.ID, "error", err)
		}

		s.logAudit(ctx, audit.EventSessionExpired, audit.Event{
			SessionID: session.ID,
			UserID:    session.OwnerUserID,
		})
		s.metrics.IncrementTransition(string(models.StatusExpired))
		s.metrics.IncrementExpired("sweeper")
		expired++
	}
	return expired, nil
}

func (s *Service) logAudit(ctx context.Context, action audit.AuditEvent, event audit.Event) {
	event.Action = string(action)
	if event.ClientIP == "" {
		event.ClientIP = requestcontext.ClientIP(ctx)
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, string(action),
			"session_id", event.SessionID,
			"request_id", requestcontext.RequestID(ctx),
			"log_type", "audit")
	}
	if s.auditPublisher != nil {
		_ = s.auditPublisher.Emit(ctx, event)
	}
}

func (s *Service) countRejected(err error, operation string) {
	if dErrors.HasCode(err, dErrors.CodeInvalidState) ||
		dErrors.HasCode(err, dErrors.CodeConflict) ||
		dErrors.HasCode(err, dErrors.CodeUnauthorized) {
		s.metrics.IncrementRejected(operation)
	}
}

func translateStoreErr(err error, op string) error {
	var domainErr *dErrors.DomainError
	if errors.As(err, &domainErr) {
		return err
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "session not found")
	}
	if errors.Is(err, sentinel.ErrConflict) {
		return dErrors.New(dErrors.CodeConflict, "session was modified concurrently")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to "+op)
}
