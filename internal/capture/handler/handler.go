package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Malcan-Technologies/creditxpress-kyc/internal/authz"
	"github.com/Malcan-Technologies/creditxpress-kyc/internal/capture"
	"github.com/Malcan-Technologies/creditxpress-kyc/internal/session/models"
	id "github.com/Malcan-Technologies/creditxpress-kyc/pkg/domain"
	dErrors "github.com/Malcan-Technologies/creditxpress-kyc/pkg/domain-errors"
	"github.com/Malcan-Technologies/creditxpress-kyc/pkg/platform/httputil"
	"github.com/Malcan-Technologies/creditxpress-kyc/pkg/requestcontext"
)

// multipartOverhead pads the request body cap beyond the artifact limit to
// leave room for the multipart boundary and the kind field.
const multipartOverhead int64 = 64 << 10

// Service defines the interface for capture operations.
type Service interface {
	Submit(ctx context.Context, params capture.SubmitParams) (*models.Session, *models.Artifact, error)
	Finalize(ctx context.Context, sessionID id.SessionID, creds authz.Credentials) (*models.Session, error)
}

// Handler wires capture endpoints to the capture service.
type Handler struct {
	service  Service
	logger   *slog.Logger
	maxBytes int64
}

// New constructs a capture handler with its dependencies. maxBytes must
// match the service's upload cap so oversized bodies are cut at the socket.
func New(service Service, logger *slog.Logger, maxBytes int64) *Handler {
	if maxBytes <= 0 {
		maxBytes = capture.DefaultMaxUploadBytes
	}
	return &Handler{
		service:  service,
		logger:   logger,
		maxBytes: maxBytes,
	}
}

// Register mounts capture endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/kyc/sessions/{sessionID}/artifacts", h.HandleUpload)
	r.Post("/kyc/sessions/{sessionID}/submit", h.HandleSubmit)
}

// HandleUpload handles POST /kyc/sessions/{sessionID}/artifacts requests.
// The body is a multipart form with a "kind" field and a "file" part.
func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	sessionID, err := id.ParseSessionID(chi.URLParam(r, "sessionID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	creds := authz.CredentialsFromRequest(r)

	// Declared-length check first, MaxBytesReader for chunked bodies.
	if r.ContentLength > h.maxBytes+multipartOverhead {
		httputil.WriteErrorStatus(w, http.StatusRequestEntityTooLarge,
			dErrors.CodeValidation, "request body exceeds the upload limit")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+multipartOverhead)
	if err := r.ParseMultipartForm(h.maxBytes + multipartOverhead); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			httputil.WriteErrorStatus(w, http.StatusRequestEntityTooLarge,
				dErrors.CodeValidation, "request body exceeds the upload limit")
			return
		}
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid multipart form"))
		return
	}

	kind, err := id.ParseArtifactKind(r.FormValue("kind"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "file part is required"))
		return
	}
	defer file.Close()

	session, artifact, err := h.service.Submit(ctx, capture.SubmitParams{
		SessionID:   sessionID,
		Credentials: creds,
		Kind:        kind,
		ContentType: header.Header.Get("Content-Type"),
		Payload:     file,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "artifact upload refused",
			"request_id", requestID,
			"session_id", sessionID,
			"kind", kind,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "artifact uploaded",
		"request_id", requestID,
		"session_id", sessionID,
		"kind", kind,
		"size_bytes", artifact.SizeBytes,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusCreated, FromCapture(session, artifact))
}

// HandleSubmit handles POST /kyc/sessions/{sessionID}/submit requests.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	sessionID, err := id.ParseSessionID(chi.URLParam(r, "sessionID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	creds := authz.CredentialsFromRequest(r)

	session, err := h.service.Finalize(ctx, sessionID, creds)
	if err != nil {
		h.logger.WarnContext(ctx, "session submit refused",
			"request_id", requestID,
			"session_id", sessionID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "session submitted for processing",
		"request_id", requestID,
		"session_id", sessionID,
	)
	httputil.WriteJSON(w, http.StatusOK, FromSubmit(session))
}
