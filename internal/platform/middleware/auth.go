package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	id "github.com/Malcan-Technologies/creditxpress-kyc/pkg/domain"
	"github.com/Malcan-Technologies/creditxpress-kyc/pkg/requestcontext"
)

// JWTValidator defines the interface for validating JWT tokens
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// JWTClaims represents the claims we expect from the JWT validator
type JWTClaims struct {
	UserID string
}

// writeJSONError writes a JSON error response with the given status code and error details.
func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":"%s","error_description":"%s"}`, errCode, errDesc))
}

// authenticate validates the bearer token and returns a context carrying the
// caller's user ID. The bool reports whether the response was already
// written (i.e. the request must not proceed).
func authenticate(w http.ResponseWriter, r *http.Request, token string, validator JWTValidator, logger *slog.Logger) (*http.Request, bool) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	claims, err := validator.ValidateToken(token)
	if err != nil {
		logger.WarnContext(ctx, "unauthorized access - invalid token",
			"error", err,
			"request_id", requestID,
		)
		writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
		return nil, false
	}

	userID, err := id.ParseUserID(claims.UserID)
	if err != nil {
		logger.WarnContext(ctx, "unauthorized access - malformed subject claim",
			"error", err,
			"request_id", requestID,
		)
		writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
		return nil, false
	}

	return r.WithContext(requestcontext.WithUserID(ctx, userID)), true
}

// RequireAuth rejects requests that do not carry a valid bearer token. Use
// it on routes that are exclusively owner-bound, such as session creation.
func RequireAuth(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const bearerPrefix = "Bearer "
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), bearerPrefix)
			if !ok {
				ctx := r.Context()
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestcontext.RequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid Authorization header")
				return
			}

			authed, ok := authenticate(w, r, token, validator, logger)
			if !ok {
				return
			}
			next.ServeHTTP(w, authed)
		})
	}
}

// Authenticate attaches the caller identity when a bearer token is present
// and passes the request through untouched when it is not. Routes that
// accept either a bearer token or a pairing credential use this variant and
// enforce authorization in their handlers. A token that is present but
// invalid is still rejected here.
func Authenticate(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const bearerPrefix = "Bearer "
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), bearerPrefix)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			authed, ok := authenticate(w, r, token, validator, logger)
			if !ok {
				return
			}
			next.ServeHTTP(w, authed)
		})
	}
}
