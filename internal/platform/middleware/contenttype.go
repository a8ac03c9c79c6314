package middleware

import "net/http"

// ContentTypeJSON sets the default response content type for JSON APIs.
// Handlers that serve other payloads (QR images, raw artifacts) override
// the header before writing.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
