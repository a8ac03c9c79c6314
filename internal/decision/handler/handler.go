// Package handler exposes the decision callback endpoint. The route is
// mounted behind the engine API key; no user credential reaches it.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Malcan-Technologies/creditxpress-kyc/internal/session/models"
	id "github.com/Malcan-Technologies/creditxpress-kyc/pkg/domain"
	"github.com/Malcan-Technologies/creditxpress-kyc/pkg/platform/httputil"
	"github.com/Malcan-Technologies/creditxpress-kyc/pkg/requestcontext"
)

// Service defines the interface for decision delivery.
type Service interface {
	Deliver(ctx context.Context, sessionID id.SessionID, decision models.Decision) (*models.Session, error)
}

// Handler wires the decision callback to the decision service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a decision handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the callback endpoint on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/kyc/sessions/{sessionID}/decision", h.HandleDeliver)
}

// HandleDeliver handles POST /kyc/sessions/{sessionID}/decision requests.
// Redelivery of the same outcome is acknowledged with 200; a conflicting
// outcome is refused.
func (h *Handler) HandleDeliver(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	sessionID, err := id.ParseSessionID(chi.URLParam(r, "sessionID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, ok := httputil.DecodeAndPrepare[DecisionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	session, err := h.service.Deliver(ctx, sessionID, models.Decision{
		Outcome:       req.ParsedOutcome(),
		FaceScore:     req.FaceScore,
		LivenessScore: req.LivenessScore,
		Reasons:       req.Reasons,
		Extracted:     req.ParsedExtracted(),
	})
	if err != nil {
		h.logger.WarnContext(ctx, "decision delivery refused",
			"request_id", requestID,
			"session_id", sessionID,
			"outcome", req.Outcome,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "decision delivered",
		"request_id", requestID,
		"session_id", sessionID,
		"outcome", req.Outcome,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, FromSession(session))
}
