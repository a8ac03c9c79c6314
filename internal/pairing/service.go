package pairing

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/Malcan-Technologies/creditxpress-kyc/internal/audit"
	"github.com/Malcan-Technologies/creditxpress-kyc/internal/platform/secrets"
	"github.com/Malcan-Technologies/creditxpress-kyc/internal/session/models"
	id "github.com/Malcan-Technologies/creditxpress-kyc/pkg/domain"
	dErrors "github.com/Malcan-Technologies/creditxpress-kyc/pkg/domain-errors"
	"github.com/Malcan-Technologies/creditxpress-kyc/pkg/platform/sentinel"
	"github.com/Malcan-Technologies/creditxpress-kyc/pkg/requestcontext"
)

// SessionReader resolves the session a token claims to pair with.
type SessionReader interface {
	Get(ctx context.Context, sessionID id.SessionID) (*models.Session, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service issues and validates the capture credential. A token is scoped
// to exactly one session, carries no identity, and is rejected after the
// session's pairing deadline regardless of session status.
type Service struct {
	store          CredentialStore
	sessions       SessionReader
	logger         *slog.Logger
	auditPublisher AuditPublisher
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

// New constructs a Service.
func New(store CredentialStore, sessions SessionReader, opts ...Option) *Service {
	s := &Service{store: store, sessions: sessions}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Digest returns the SHA-256 hex digest stored in place of a raw token.
func Digest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Issue mints a fresh token for the session and stores its digest with a
// TTL matching the deadline. The raw token is returned exactly once and
// must never be logged or persisted.
func (s *Service) Issue(ctx context.Context, sessionID id.SessionID, expiresAt time.Time) (string, error) {
	ttl := expiresAt.Sub(requestcontext.Now(ctx))
	if ttl <= 0 {
		return "", dErrors.New(dErrors.CodeInvariantViolation, "pairing deadline must be in the future")
	}

	token, err := secrets.Generate()
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate pairing token")
	}
	if err := s.store.Save(ctx, sessionID, Digest(token), ttl); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeDependency, "failed to store pairing credential")
	}
	return token, nil
}

// Validate checks a presented token against the session's credential.
// Failures are deliberately coarse toward the caller (the remedy is always
// "restart verification") while the audit trail records the exact reason.
func (s *Service) Validate(ctx context.Context, sessionID id.SessionID, token string) error {
	if token == "" {
		s.reject(ctx, sessionID, "missing")
		return dErrors.New(dErrors.CodeUnauthorized, "pairing token required")
	}

	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "session not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load session")
	}

	now := requestcontext.Now(ctx)
	if now.After(session.PairingExpiresAt) {
		s.reject(ctx, sessionID, "expired")
		return dErrors.New(dErrors.CodeUnauthorized, "pairing token has expired, restart verification")
	}
	if session.Status == models.StatusAccepted || session.Status == models.StatusExpired {
		s.reject(ctx, sessionID, "revoked")
		return dErrors.New(dErrors.CodeUnauthorized, "pairing token has been revoked, restart verification")
	}

	digest, err := s.store.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.reject(ctx, sessionID, "unknown")
			return dErrors.New(dErrors.CodeUnauthorized, "pairing token is not valid for this session")
		}
		return dErrors.Wrap(err, dErrors.CodeDependency, "failed to load pairing credential")
	}

	if subtle.ConstantTimeCompare([]byte(digest), []byte(Digest(token))) != 1 {
		s.reject(ctx, sessionID, "mismatch")
		return dErrors.New(dErrors.CodeUnauthorized, "pairing token is not valid for this session")
	}
	return nil
}

// Revoke removes the session's credential so the token dies before its
// TTL would. Revoking an absent credential is a no-op.
func (s *Service) Revoke(ctx context.Context, sessionID id.SessionID) error {
	if err := s.store.Delete(ctx, sessionID); err != nil {
		return dErrors.Wrap(err, dErrors.CodeDependency, "failed to revoke pairing credential")
	}
	return nil
}

func (s *Service) reject(ctx context.Context, sessionID id.SessionID, reason string) {
	if s.logger != nil {
		s.logger.WarnContext(ctx, "pairing token rejected",
			"session_id", sessionID,
			"reason", reason,
			"client_ip", requestcontext.ClientIP(ctx),
			"request_id", requestcontext.RequestID(ctx))
	}
	if s.auditPublisher != nil {
		_ = s.auditPublisher.Emit(ctx, audit.Event{
			SessionID: sessionID,
			Action:    string(audit.EventPairingRejected),
			Reason:    reason,
			ClientIP:  requestcontext.ClientIP(ctx),
		})
	}
}
