package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Timeout bounds each request with a context deadline. If the handler has
// written nothing by the deadline, the client gets a 504; a handler that
// already started its response is left to finish it, since a half-written
// body cannot be turned into an error.
func Timeout(limit time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), limit)
			defer cancel()

			gw := &guardedWriter{ResponseWriter: w}
			finished := make(chan struct{})
			go func() {
				next.ServeHTTP(gw, r.WithContext(ctx))
				close(finished)
			}()

			select {
			case <-finished:
			case <-ctx.Done():
				if gw.seal() {
					slog.Warn("request deadline exceeded",
						"method", r.Method,
						"path", r.URL.Path,
						"limit", limit,
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusGatewayTimeout)
					w.Write([]byte(`{"error":"request timeout"}`))
				}
			}
		})
	}
}

// guardedWriter tracks whether the inner handler reached the response, and
// after seal() blocks any late writes so the handler goroutine cannot race
// the timeout body.
type guardedWriter struct {
	http.ResponseWriter
	mu      sync.Mutex
	touched bool
	sealed  bool
}

func (gw *guardedWriter) WriteHeader(code int) {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	if gw.sealed {
		return
	}
	gw.touched = true
	gw.ResponseWriter.WriteHeader(code)
}

func (gw *guardedWriter) Write(b []byte) (int, error) {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	if gw.sealed {
		return len(b), nil
	}
	gw.touched = true
	return gw.ResponseWriter.Write(b)
}

// seal cuts the handler off from the response. It reports whether the
// response was still untouched, i.e. whether the timeout body may be sent.
func (gw *guardedWriter) seal() bool {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	gw.sealed = true
	return !gw.touched
}
