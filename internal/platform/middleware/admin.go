package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"attestor/pkg/requestcontext"
)

// AdminClaims is the subset of a validated admin token that handlers need.
type AdminClaims struct {
	Subject string
	Role    string
}

// AdminTokenValidator validates bearer tokens presented to operator routes.
type AdminTokenValidator interface {
	ValidateToken(tokenString string) (*AdminClaims, error)
}

// RequireAdmin rejects requests without a valid admin bearer token.
func RequireAdmin(validator AdminTokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				writeAuthError(w, http.StatusUnauthorized, "unauthorized", "Missing bearer token")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "admin access denied - invalid token",
					"request_id", requestcontext.RequestID(ctx),
					"error", err,
				)
				writeAuthError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}
			if claims.Role != "admin" {
				logger.WarnContext(ctx, "admin access denied - insufficient role",
					"request_id", requestcontext.RequestID(ctx),
					"subject", claims.Subject,
				)
				writeAuthError(w, http.StatusForbidden, "forbidden", "Admin role required")
				return
			}

			ctx = requestcontext.WithAdminSubject(ctx, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeAuthError(w http.ResponseWriter, status int, code, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + code + `","error_description":"` + description + `"}`))
}
