// Package middleware provides the intake service's HTTP middleware:
// API-key authentication against the corpus store and per-key rate limiting.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/PaliC/popcorn-data-utils/internal/corpus"
	"github.com/PaliC/popcorn-data-utils/internal/ingest/ratelimit"
	apperrors "github.com/PaliC/popcorn-data-utils/pkg/errors"
)

type contextKey string

const apiKeyContextKey contextKey = "api_key"

// Auth returns middleware that validates API keys from the request. Keys can
// be provided via Authorization: Bearer <key>, X-API-Key header, or the
// api_key query parameter. Health endpoints are exempt.
func Auth(store *corpus.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/health") {
				next.ServeHTTP(w, r)
				return
			}

			secret := extractAPIKey(r)
			if secret == "" {
				writeError(w, http.StatusUnauthorized, "missing api key")
				return
			}

			key, err := store.VerifyAPIKey(r.Context(), secret)
			if err != nil {
				if errors.Is(err, apperrors.ErrUnauthorized) {
					writeError(w, http.StatusUnauthorized, "invalid api key")
				} else {
					writeError(w, http.StatusInternalServerError, "authentication error")
				}
				return
			}

			ctx := context.WithValue(r.Context(), apiKeyContextKey, key)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetAPIKey retrieves the validated key from the request context.
func GetAPIKey(ctx context.Context) *corpus.APIKey {
	key, _ := ctx.Value(apiKeyContextKey).(*corpus.APIKey)
	return key
}

// RateLimit returns middleware that enforces per-key rate limits. It reads
// the key set by Auth; requests without one pass through for Auth to reject.
func RateLimit(limiter *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/health") {
				next.ServeHTTP(w, r)
				return
			}

			key := GetAPIKey(r.Context())
			if key == nil {
				next.ServeHTTP(w, r)
				return
			}

			if !limiter.Allow(key.ID) {
				w.Header().Set("Retry-After", "60")
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// extractAPIKey reads the API key from the request in priority order:
// Authorization: Bearer header, X-API-Key header, api_key query parameter.
func extractAPIKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	return r.URL.Query().Get("api_key")
}

// writeError writes a JSON error response to the client.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":"` + message + `"}`))
}
