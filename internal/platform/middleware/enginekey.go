package middleware

import (
	"log/slog"
	"net/http"

	"github.com/Malcan-Technologies/creditxpress-kyc/internal/platform/secrets"
	"github.com/Malcan-Technologies/creditxpress-kyc/pkg/requestcontext"
)

// RequireEngineKey guards callback routes that only the decision engines may
// call. Only the bcrypt hash of the key is configured on the server, so a
// leaked config file does not leak the credential.
func RequireEngineKey(keyHash string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-Engine-Key")
			if key == "" || secrets.Verify(key, keyHash) != nil {
				ctx := r.Context()
				logger.WarnContext(ctx, "engine key mismatch",
					"request_id", requestcontext.RequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "engine key required")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
