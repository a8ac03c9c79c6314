package authz

import (
	"context"
	"errors"

	"github.com/Malcan-Technologies/creditxpress-kyc/internal/session/models"
	id "github.com/Malcan-Technologies/creditxpress-kyc/pkg/domain"
	dErrors "github.com/Malcan-Technologies/creditxpress-kyc/pkg/domain-errors"
	"github.com/Malcan-Technologies/creditxpress-kyc/pkg/platform/sentinel"
)

type SessionReader interface {
	Get(ctx context.Context, sessionID id.SessionID) (*models.Session, error)
}

// TokenValidator checks a pairing token against its session's credential.
type TokenValidator interface {
	Validate(ctx context.Context, sessionID id.SessionID, token string) error
}

// Service performs capability checks for session-scoped operations.
type Service struct {
	sessions SessionReader
	pairing  TokenValidator
}

// New constructs a Service.
func New(sessions SessionReader, pairing TokenValidator) *Service {
	return &Service{sessions: sessions, pairing: pairing}
}

// Authorize grants access when either credential matches the session:
// the owner capability when the bearer identity owns it, otherwise the
// device capability when the pairing token validates. A wrong owner with
// no token reads as not found so sessions cannot be enumerated.
func (s *Service) Authorize(ctx context.Context, sessionID id.SessionID, creds Credentials) (*Principal, error) {
	ownerPresented := !creds.OwnerUserID.IsNil()

	if ownerPresented {
		session, err := s.sessions.Get(ctx, sessionID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return nil, dErrors.New(dErrors.CodeNotFound, "session not found")
			}
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load session")
		}
		if session.OwnerUserID == creds.OwnerUserID {
			return &Principal{Kind: KindOwner, UserID: creds.OwnerUserID, SessionID: sessionID}, nil
		}
	}

	if creds.PairingToken != "" {
		if err := s.pairing.Validate(ctx, sessionID, creds.PairingToken); err != nil {
			return nil, err
		}
		return &Principal{Kind: KindDevice, SessionID: sessionID}, nil
	}

	if ownerPresented {
		return nil, dErrors.New(dErrors.CodeNotFound, "session not found")
	}
	return nil, dErrors.New(dErrors.CodeUnauthorized, "owner session or pairing token required")
}

// AuthorizeOwner grants only the owner capability; pairing tokens are not
// accepted. QR rendering runs through here so the initiating screen can
// only mint codes for its own sessions.
func (s *Service) AuthorizeOwner(ctx context.Context, sessionID id.SessionID, creds Credentials) (*Principal, error) {
	if creds.OwnerUserID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "owner session required")
	}

	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "session not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load session")
	}
	if session.OwnerUserID != creds.OwnerUserID {
		return nil, dErrors.New(dErrors.CodeNotFound, "session not found")
	}
	return &Principal{Kind: KindOwner, UserID: creds.OwnerUserID, SessionID: sessionID}, nil
}
