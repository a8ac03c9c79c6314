package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/Malcan-Technologies/creditxpress-kyc/pkg/requestcontext"
)

// RequestID assigns a unique identifier to every request. Inbound
// X-Request-ID headers are honoured so IDs survive proxy hops; otherwise a
// fresh one is generated. The ID is echoed back on the response and stored
// in the context for log correlation.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		w.Header().Set("X-Request-ID", requestID)
		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
