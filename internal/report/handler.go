package report

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	apperrors "github.com/PaliC/popcorn-data-utils/pkg/errors"
	"github.com/PaliC/popcorn-data-utils/pkg/logger"
)

// Handler serves the report HTTP API.
type Handler struct {
	service      *Service
	defaultLimit int
	maxLimit     int
	logger       *slog.Logger
}

// NewHandler creates a Handler with the configured paging limits.
func NewHandler(service *Service, defaultLimit, maxLimit int) *Handler {
	return &Handler{
		service:      service,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
		logger:       slog.Default().With("component", "report-handler"),
	}
}

// Routes registers the report endpoints on the mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/runs", h.ListRuns)
	mux.HandleFunc("GET /api/v1/runs/{id}/report", h.RunReport)
	mux.HandleFunc("GET /api/v1/runs/{id}/kept", h.KeptDocuments)
	mux.HandleFunc("GET /api/v1/runs/{id}/histogram", h.RunHistogram)
	mux.HandleFunc("GET /api/v1/corpus/status", h.CorpusStatus)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
	mux.HandleFunc("GET /health", h.Health)
}

func (h *Handler) RunReport(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	data, cacheHit, err := h.service.RunReport(r.Context(), runID)
	h.writeResult(w, r, "run report", runID, data, cacheHit, err)
}

func (h *Handler) KeptDocuments(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	limit, ok := h.parseLimit(w, r)
	if !ok {
		return
	}
	data, cacheHit, err := h.service.KeptDocuments(r.Context(), runID, limit)
	h.writeResult(w, r, "kept documents", runID, data, cacheHit, err)
}

func (h *Handler) RunHistogram(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	data, cacheHit, err := h.service.RunHistogram(r.Context(), runID)
	h.writeResult(w, r, "run histogram", runID, data, cacheHit, err)
}

func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.parseLimit(w, r)
	if !ok {
		return
	}
	data, cacheHit, err := h.service.ListRuns(r.Context(), limit)
	h.writeResult(w, r, "run list", "", data, cacheHit, err)
}

func (h *Handler) CorpusStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.CorpusStatus(r.Context())
	if err != nil {
		logger.FromContext(r.Context()).Error("corpus status failed", "error", err)
		h.writeError(w, apperrors.HTTPStatusCode(err), "corpus status unavailable")
		return
	}
	h.writeJSON(w, http.StatusOK, status)
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if err := h.service.InvalidateCache(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// parseLimit resolves the limit query parameter against the configured
// default and cap. The bool is false when the parameter was invalid and an
// error response has been written.
func (h *Handler) parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	limit := h.defaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return 0, false
		}
		if parsed > h.maxLimit {
			parsed = h.maxLimit
		}
		limit = parsed
	}
	return limit, true
}

func (h *Handler) writeResult(w http.ResponseWriter, r *http.Request, what, runID string, data json.RawMessage, cacheHit bool, err error) {
	log := logger.FromContext(r.Context())
	if err != nil {
		status := apperrors.HTTPStatusCode(err)
		if status >= http.StatusInternalServerError {
			log.Error(what+" failed", "run_id", runID, "error", err)
		}
		h.writeError(w, status, what+" unavailable")
		return
	}

	log.Debug(what+" served", "run_id", runID, "cache_hit", cacheHit)
	w.Header().Set("Content-Type", "application/json")
	if cacheHit {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
