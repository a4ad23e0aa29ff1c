package middleware

import (
	"context"
	"net/http"

	"github.com/PaliC/popcorn-data-utils/pkg/logger"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-ID"

// RequestID ensures every request carries a request ID, generating a new
// UUID when the client did not supply one. The ID is stored on the request
// context for log correlation and echoed in the response headers.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		ctx := logger.WithRequestID(r.Context(), id)
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID returns the request ID stored by RequestID, or "" if absent.
func GetRequestID(ctx context.Context) string {
	return logger.RequestIDFromContext(ctx)
}
