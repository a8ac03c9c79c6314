package middleware

import (
	"context"
	"net/http"
	"time"
)

// Timeout bounds the request context so downstream calls (stores, decision
// engines) give up instead of hanging forever. Handlers that stream large
// uploads should pick a generous duration.
func Timeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
