// Package status serves session state reads for both poll loops and the
// session detail view. Reads are side-effect free: an overdue session is
// reported as EXPIRED by folding the deadline into the response, the stored
// row is left for the sweeper.
package status

import (
	"context"
	"log/slog"
	"time"

	"github.com/Malcan-Technologies/creditxpress-kyc/internal/authz"
	"github.com/Malcan-Technologies/creditxpress-kyc/internal/session/metrics"
	"github.com/Malcan-Technologies/creditxpress-kyc/internal/session/models"
	id "github.com/Malcan-Technologies/creditxpress-kyc/pkg/domain"
	dErrors "github.com/Malcan-Technologies/creditxpress-kyc/pkg/domain-errors"
	"github.com/Malcan-Technologies/creditxpress-kyc/pkg/requestcontext"
)

type Authorizer interface {
	Authorize(ctx context.Context, sessionID id.SessionID, creds authz.Credentials) (*authz.Principal, error)
}

type SessionReader interface {
	Get(ctx context.Context, sessionID id.SessionID) (*models.Session, error)
}

// Summary is the polling payload: status and nothing that needs computing.
type Summary struct {
	SessionID id.SessionID
	Status    models.Status
	UpdatedAt time.Time
}

// Details is the full session view for the capture UI and the back office.
type Details struct {
	Summary
	PairingExpiresAt   time.Time
	MissingKinds       []id.ArtifactKind
	Artifacts          []models.Artifact
	Decision           *models.Decision
	ProfileRef         string
	PredecessorID      id.SessionID
	CreatedDeviceLabel string
	CreatedAt          time.Time
	SubmittedAt        *time.Time
	AcceptedAt         *time.Time
}

// Service reads session state on behalf of either credential.
type Service struct {
	authorizer Authorizer
	sessions   SessionReader
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithSessionMetrics lets status reads account for sessions first observed
// expired on the read path, before the sweeper gets to them.
func WithSessionMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// New constructs a Service.
func New(authorizer Authorizer, sessions SessionReader, opts ...Option) *Service {
	s := &Service{authorizer: authorizer, sessions: sessions}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Status returns the session's effective status. Cheap enough for unbounded
// polling: one point read plus a deadline comparison.
func (s *Service) Status(ctx context.Context, sessionID id.SessionID, creds authz.Credentials) (*Summary, error) {
	session, err := s.load(ctx, sessionID, creds)
	if err != nil {
		return nil, err
	}
	return s.summarize(ctx, session), nil
}

// Details returns the full session view: the current artifact set, the
// decision once made, and the profile ref once accepted.
func (s *Service) Details(ctx context.Context, sessionID id.SessionID, creds authz.Credentials) (*Details, error) {
	session, err := s.load(ctx, sessionID, creds)
	if err != nil {
		return nil, err
	}

	return &Details{
		Summary:            *s.summarize(ctx, session),
		PairingExpiresAt:   session.PairingExpiresAt,
		MissingKinds:       session.MissingKinds(),
		Artifacts:          session.ActiveArtifacts(),
		Decision:           session.Decision,
		ProfileRef:         session.ProfileRef,
		PredecessorID:      session.PredecessorID,
		CreatedDeviceLabel: session.CreatedDeviceLabel,
		CreatedAt:          session.CreatedAt,
		SubmittedAt:        session.SubmittedAt,
		AcceptedAt:         session.AcceptedAt,
	}, nil
}

func (s *Service) load(ctx context.Context, sessionID id.SessionID, creds authz.Credentials) (*models.Session, error) {
	if _, err := s.authorizer.Authorize(ctx, sessionID, creds); err != nil {
		return nil, err
	}
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load session")
	}
	return session, nil
}

func (s *Service) summarize(ctx context.Context, session *models.Session) *Summary {
	now := requestcontext.Now(ctx)
	effective := session.EffectiveStatus(now)
	if effective != session.Status {
		s.metrics.IncrementExpired("read")
		if s.logger != nil {
			s.logger.DebugContext(ctx, "session read as expired ahead of sweeper",
				"session_id", session.ID,
				"pairing_expires_at", session.PairingExpiresAt)
		}
	}
	return &Summary{
		SessionID: session.ID,
		Status:    effective,
		UpdatedAt: session.UpdatedAt,
	}
}
