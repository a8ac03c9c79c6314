// Package handler exposes the acceptance endpoint over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Malcan-Technologies/creditxpress-kyc/internal/authz"
	"github.com/Malcan-Technologies/creditxpress-kyc/internal/finalize"
	id "github.com/Malcan-Technologies/creditxpress-kyc/pkg/domain"
	"github.com/Malcan-Technologies/creditxpress-kyc/pkg/platform/httputil"
	"github.com/Malcan-Technologies/creditxpress-kyc/pkg/requestcontext"
)

// Service defines the interface for acceptance.
type Service interface {
	Accept(ctx context.Context, sessionID id.SessionID, creds authz.Credentials) (*finalize.AcceptResult, error)
}

// Handler wires the acceptance endpoint to the finalize service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a finalize handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the acceptance endpoint on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/kyc/sessions/{sessionID}/accept", h.HandleAccept)
}

// HandleAccept handles POST /kyc/sessions/{sessionID}/accept requests.
// The endpoint is idempotent: replaying it against an already accepted
// session returns 200 with applied=false and the original profile ref.
func (h *Handler) HandleAccept(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	sessionID, err := id.ParseSessionID(chi.URLParam(r, "sessionID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.service.Accept(ctx, sessionID, authz.CredentialsFromRequest(r))
	if err != nil {
		h.logger.WarnContext(ctx, "session acceptance refused",
			"request_id", requestID,
			"session_id", sessionID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "session acceptance handled",
		"request_id", requestID,
		"session_id", sessionID,
		"applied", result.Applied,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, FromResult(result))
}
