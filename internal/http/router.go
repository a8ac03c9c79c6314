// Package httpapi assembles the service's HTTP surface: the middleware
// stack, the three credential zones and the operational endpoints.
package httpapi

import (
	"net/http"
	"time"

	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Malcan-Technologies/creditxpress-kyc/internal/platform/metrics"
	"github.com/Malcan-Technologies/creditxpress-kyc/internal/platform/middleware"
	"github.com/Malcan-Technologies/creditxpress-kyc/pkg/platform/httputil"
)

// DefaultRequestTimeout bounds every request. Artifact uploads are the
// slowest path and stream from mobile networks, so the default is generous.
const DefaultRequestTimeout = 60 * time.Second

// Registrar is implemented by every feature handler.
type Registrar interface {
	Register(r chi.Router)
}

// RouterConfig carries the assembled handlers plus the cross-cutting
// dependencies the middleware stack needs.
type RouterConfig struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	// JWT validates owner bearer tokens. EngineKeyHash guards the routes
	// only the decision engines may call.
	JWT            middleware.JWTValidator
	EngineKeyHash  string
	RequestTimeout time.Duration

	Handoff   Registrar
	Capture   Registrar
	Status    Registrar
	Finalize  Registrar
	Decision  Registrar
	Artifacts Registrar
}

// NewRouter mounts the whole API. Three credential zones exist: the owner
// zone (starting and handing off sessions requires a logged-in user), the
// capture zone (owner token or pairing token, resolved per session by the
// authz layer) and the engine zone (decision callback and artifact reads,
// gated by the engine key).
func NewRouter(cfg RouterConfig) chi.Router {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.ClientMetadata)
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.LatencyMiddleware(cfg.Metrics))
	r.Use(middleware.Timeout(timeout))

	r.Get("/healthz", handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(cfg.JWT, cfg.Logger))
		cfg.Handoff.Register(r)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(cfg.JWT, cfg.Logger))
		cfg.Capture.Register(r)
		cfg.Status.Register(r)
		cfg.Finalize.Register(r)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireEngineKey(cfg.EngineKeyHash, cfg.Logger))
		cfg.Decision.Register(r)
		cfg.Artifacts.Register(r)
	})

	return r
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
