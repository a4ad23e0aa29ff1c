// Package middleware holds the HTTP middleware shared by the intake and
// report services: request IDs, Prometheus instrumentation, per-request
// timeouts, and CORS.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PaliC/popcorn-data-utils/pkg/metrics"
)

// Metrics records request count, latency, and the in-flight gauge for every
// request passing through it.
func Metrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			began := time.Now()
			m.HTTPRequestsInFlight.Inc()
			defer m.HTTPRequestsInFlight.Dec()

			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			route := normalizePath(r.URL.Path)
			m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(sw.status)).Inc()
			m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(began).Seconds())
		})
	}
}

// statusWriter captures the status code written by the handler.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (sw *statusWriter) WriteHeader(code int) {
	if !sw.wroteHeader {
		sw.status = code
		sw.wroteHeader = true
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	if !sw.wroteHeader {
		sw.wroteHeader = true
	}
	return sw.ResponseWriter.Write(b)
}

// normalizePath collapses run IDs in report paths so every run does not
// mint its own label value.
func normalizePath(path string) string {
	const prefix = "/api/v1/runs/"
	if rest, ok := strings.CutPrefix(path, prefix); ok && rest != "" {
		if id, tail, found := strings.Cut(rest, "/"); found && id != "" {
			return prefix + ":id/" + tail
		}
		return prefix + ":id"
	}
	return path
}
