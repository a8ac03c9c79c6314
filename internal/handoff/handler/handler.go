package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Malcan-Technologies/creditxpress-kyc/internal/authz"
	"github.com/Malcan-Technologies/creditxpress-kyc/internal/handoff"
	id "github.com/Malcan-Technologies/creditxpress-kyc/pkg/domain"
	dErrors "github.com/Malcan-Technologies/creditxpress-kyc/pkg/domain-errors"
	"github.com/Malcan-Technologies/creditxpress-kyc/pkg/platform/httputil"
	"github.com/Malcan-Technologies/creditxpress-kyc/pkg/requestcontext"
)

// Service defines the interface for session start and handoff operations.
type Service interface {
	Start(ctx context.Context, params handoff.StartParams) (*handoff.Handoff, error)
	Redo(ctx context.Context, params handoff.StartParams, predecessorID id.SessionID) (*handoff.Handoff, error)
	QRCode(ctx context.Context, sessionID id.SessionID, ownerID id.UserID, token string) ([]byte, error)
}

// Handler wires session start and handoff endpoints to the handoff service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a handoff handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts handoff endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/kyc/sessions", h.HandleStart)
	r.Post("/kyc/sessions/{sessionID}/redo", h.HandleRedo)
	r.Get("/kyc/sessions/{sessionID}/handoff.png", h.HandleQRCode)
}

// HandleStart handles POST /kyc/sessions requests. Owner identity comes
// from the validated bearer token; the body is optional.
func (h *Handler) HandleStart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	userID := requestcontext.UserID(ctx)
	if userID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	req, ok := decodeStartRequest(w, r)
	if !ok {
		return
	}

	result, err := h.service.Start(ctx, handoff.StartParams{
		OwnerUserID:   userID,
		ApplicationID: req.ParsedApplicationID(),
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "session start failed",
			"request_id", requestID,
			"user_id", userID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "session started",
		"request_id", requestID,
		"user_id", userID,
		"session_id", result.Session.ID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusCreated, FromHandoff(result))
}

// HandleRedo handles POST /kyc/sessions/{sessionID}/redo requests. Only the
// owner may start over; the predecessor session is left untouched.
func (h *Handler) HandleRedo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	userID := requestcontext.UserID(ctx)
	if userID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	predecessorID, err := id.ParseSessionID(chi.URLParam(r, "sessionID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.service.Redo(ctx, handoff.StartParams{OwnerUserID: userID}, predecessorID)
	if err != nil {
		h.logger.WarnContext(ctx, "session redo refused",
			"request_id", requestID,
			"user_id", userID,
			"predecessor_id", predecessorID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "session redone",
		"request_id", requestID,
		"user_id", userID,
		"predecessor_id", predecessorID,
		"session_id", result.Session.ID,
	)
	httputil.WriteJSON(w, http.StatusCreated, FromHandoff(result))
}

// HandleQRCode handles GET /kyc/sessions/{sessionID}/handoff.png requests.
// The raw token must ride along because the server only keeps its digest.
func (h *Handler) HandleQRCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := requestcontext.UserID(ctx)
	if userID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	sessionID, err := id.ParseSessionID(chi.URLParam(r, "sessionID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	token := r.URL.Query().Get(authz.PairingTokenQuery)

	png, err := h.service.QRCode(ctx, sessionID, userID, token)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(png)
}

// decodeStartRequest tolerates an empty body: starting a session has no
// required fields, the application link is optional.
func decodeStartRequest(w http.ResponseWriter, r *http.Request) (*StartRequest, bool) {
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return nil, false
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return nil, false
	}
	return &req, true
}
