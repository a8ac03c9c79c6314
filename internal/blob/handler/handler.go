// Package handler serves artifact payloads to the decision engines. It is
// the target of memory-backend signed URLs; S3 deployments hand out
// presigned object URLs and never route through it.
package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Malcan-Technologies/creditxpress-kyc/internal/blob"
	dErrors "github.com/Malcan-Technologies/creditxpress-kyc/pkg/domain-errors"
	"github.com/Malcan-Technologies/creditxpress-kyc/pkg/platform/httputil"
	"github.com/Malcan-Technologies/creditxpress-kyc/pkg/platform/sentinel"
	"github.com/Malcan-Technologies/creditxpress-kyc/pkg/requestcontext"
)

// Store is the read side of artifact storage.
type Store interface {
	Get(ctx context.Context, key string) (io.ReadCloser, string, error)
}

// Handler streams stored artifacts.
type Handler struct {
	store  Store
	logger *slog.Logger
}

// New constructs an artifact read handler.
func New(store Store, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// Register mounts the artifact read endpoint. Mount it behind the engine
// key: the engines hold that key for the decision callback anyway, and
// nothing else may read raw identity documents.
func (h *Handler) Register(r chi.Router) {
	r.Get("/internal/artifacts/{ref}", h.HandleFetch)
}

// HandleFetch handles GET /internal/artifacts/{ref} requests.
func (h *Handler) HandleFetch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	key, err := blob.DecodeRef(chi.URLParam(r, "ref"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "malformed artifact ref"))
		return
	}

	payload, contentType, err := h.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "artifact not found"))
			return
		}
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeDependency, "failed to read artifact"))
		return
	}
	defer payload.Close()

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, payload); err != nil {
		h.logger.WarnContext(ctx, "artifact stream interrupted",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
}
