package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"attestor/pkg/requestcontext"
)

// RequestIDHeader is echoed on every response for log correlation.
const RequestIDHeader = "X-Request-ID"

// RequestID reuses a well-formed inbound X-Request-ID or mints a new one.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if _, err := uuid.Parse(requestID); err != nil {
			requestID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, requestID)
		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID is a convenience re-export for handlers.
func GetRequestID(r *http.Request) string {
	return requestcontext.RequestID(r.Context())
}
