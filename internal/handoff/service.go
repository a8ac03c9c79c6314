// Package handoff starts verification sessions and presents the capture
// handoff: the URL a phone opens to continue capture, plus its QR
// rendering for the initiating screen.
package handoff

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/skip2/go-qrcode"

	"github.com/Malcan-Technologies/creditxpress-kyc/internal/authz"
	"github.com/Malcan-Technologies/creditxpress-kyc/internal/device"
	"github.com/Malcan-Technologies/creditxpress-kyc/internal/session/models"
	sessionservice "github.com/Malcan-Technologies/creditxpress-kyc/internal/session/service"
	id "github.com/Malcan-Technologies/creditxpress-kyc/pkg/domain"
	dErrors "github.com/Malcan-Technologies/creditxpress-kyc/pkg/domain-errors"
	"github.com/Malcan-Technologies/creditxpress-kyc/pkg/requestcontext"
)

// qrImageSize is the rendered PNG edge in pixels; large enough for webcam
// scanning at arm's length.
const qrImageSize = 256

// SessionStarter opens sessions. Both paths mint a pairing token.
type SessionStarter interface {
	Create(ctx context.Context, params sessionservice.CreateParams) (*sessionservice.CreatedSession, error)
	Redo(ctx context.Context, params sessionservice.CreateParams, predecessorID id.SessionID) (*sessionservice.CreatedSession, error)
}

// TokenValidator guards QR rendering: a dead token must not produce a
// scannable code.
type TokenValidator interface {
	Validate(ctx context.Context, sessionID id.SessionID, token string) error
}

// OwnerAuthorizer confirms the caller owns the session a code is rendered
// for. A valid token alone is not enough here.
type OwnerAuthorizer interface {
	AuthorizeOwner(ctx context.Context, sessionID id.SessionID, creds authz.Credentials) (*authz.Principal, error)
}

// Service presents the capture handoff for new and redone sessions.
type Service struct {
	sessions   SessionStarter
	pairing    TokenValidator
	authorizer OwnerAuthorizer
	devices    *device.Service
	baseURL    string
	logger     *slog.Logger
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// New constructs a Service. baseURL is the externally reachable origin the
// capture URL is built on.
func New(sessions SessionStarter, pairing TokenValidator, authorizer OwnerAuthorizer, devices *device.Service, baseURL string, opts ...Option) *Service {
	s := &Service{
		sessions:   sessions,
		pairing:    pairing,
		authorizer: authorizer,
		devices:    devices,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartParams identifies who a session is opened for.
type StartParams struct {
	OwnerUserID   id.UserID
	ApplicationID id.ApplicationID
}

// Handoff is what the initiating device needs to continue capture on a
// phone. PairingToken appears here exactly once; the server keeps only its
// digest.
type Handoff struct {
	Session      *models.Session
	PairingToken string
	CaptureURL   string
}

// Start opens a fresh session for the owner. The creating device's
// User-Agent is folded in so later captures can be told apart from it.
func (s *Service) Start(ctx context.Context, params StartParams) (*Handoff, error) {
	created, err := s.sessions.Create(ctx, s.createParams(ctx, params))
	if err != nil {
		return nil, err
	}
	return s.present(created), nil
}

// Redo abandons a previous attempt and opens its successor, carrying the
// owner and application over. The predecessor session is left as it was.
func (s *Service) Redo(ctx context.Context, params StartParams, predecessorID id.SessionID) (*Handoff, error) {
	created, err := s.sessions.Redo(ctx, s.createParams(ctx, params), predecessorID)
	if err != nil {
		return nil, err
	}
	return s.present(created), nil
}

// CaptureURL builds the URL the phone opens. The token rides in the query
// because a scanned URL cannot carry headers.
func (s *Service) CaptureURL(sessionID id.SessionID, token string) string {
	return fmt.Sprintf("%s/kyc/capture/%s?%s=%s",
		s.baseURL, sessionID, authz.PairingTokenQuery, url.QueryEscape(token))
}

// QRCode renders the capture URL as a PNG for the session's owner. Only
// the token digest survives server-side, so the caller must present the
// raw token; it is validated first so an expired or revoked token cannot
// mint a scannable code.
func (s *Service) QRCode(ctx context.Context, sessionID id.SessionID, ownerID id.UserID, token string) ([]byte, error) {
	if _, err := s.authorizer.AuthorizeOwner(ctx, sessionID, authz.Credentials{OwnerUserID: ownerID}); err != nil {
		return nil, err
	}
	if err := s.pairing.Validate(ctx, sessionID, token); err != nil {
		return nil, err
	}
	png, err := qrcode.Encode(s.CaptureURL(sessionID, token), qrcode.Medium, qrImageSize)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to render handoff code")
	}
	return png, nil
}

func (s *Service) createParams(ctx context.Context, params StartParams) sessionservice.CreateParams {
	userAgent := requestcontext.UserAgent(ctx)
	return sessionservice.CreateParams{
		OwnerUserID:       params.OwnerUserID,
		ApplicationID:     params.ApplicationID,
		DeviceLabel:       device.ParseUserAgent(userAgent),
		DeviceFingerprint: s.devices.ComputeFingerprint(userAgent),
	}
}

func (s *Service) present(created *sessionservice.CreatedSession) *Handoff {
	return &Handoff{
		Session:      created.Session,
		PairingToken: created.PairingToken,
		CaptureURL:   s.CaptureURL(created.Session.ID, created.PairingToken),
	}
}
