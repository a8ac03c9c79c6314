package middleware

import (
	"net/http"
	"time"

	"github.com/Malcan-Technologies/creditxpress-kyc/pkg/requestcontext"
)

// RequestTime captures the current time at the start of the request and
// stores it in the context. All operations within a single request observe
// the same "now", which keeps session timestamps and audit entries
// consistent with each other.
func RequestTime(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
