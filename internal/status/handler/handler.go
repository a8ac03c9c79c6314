package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Malcan-Technologies/creditxpress-kyc/internal/authz"
	"github.com/Malcan-Technologies/creditxpress-kyc/internal/status"
	id "github.com/Malcan-Technologies/creditxpress-kyc/pkg/domain"
	"github.com/Malcan-Technologies/creditxpress-kyc/pkg/platform/httputil"
	"github.com/Malcan-Technologies/creditxpress-kyc/pkg/requestcontext"
)

// Service defines the interface for status reads.
type Service interface {
	Status(ctx context.Context, sessionID id.SessionID, creds authz.Credentials) (*status.Summary, error)
	Details(ctx context.Context, sessionID id.SessionID, creds authz.Credentials) (*status.Details, error)
}

// Handler wires status endpoints to the status service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a status handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts status endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/kyc/sessions/{sessionID}", h.HandleStatus)
	r.Get("/kyc/sessions/{sessionID}/details", h.HandleDetails)
}

// HandleStatus handles GET /kyc/sessions/{sessionID} requests. This is the
// poll target for both the initiating page and the capture device.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sessionID, err := id.ParseSessionID(chi.URLParam(r, "sessionID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	summary, err := h.service.Status(ctx, sessionID, authz.CredentialsFromRequest(r))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromSummary(summary))
}

// HandleDetails handles GET /kyc/sessions/{sessionID}/details requests.
func (h *Handler) HandleDetails(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	sessionID, err := id.ParseSessionID(chi.URLParam(r, "sessionID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	details, err := h.service.Details(ctx, sessionID, authz.CredentialsFromRequest(r))
	if err != nil {
		h.logger.WarnContext(ctx, "session details refused",
			"request_id", requestID,
			"session_id", sessionID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromDetails(details))
}
