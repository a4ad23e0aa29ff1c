package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/PaliC/popcorn-data-utils/internal/ingest"
	"github.com/PaliC/popcorn-data-utils/internal/ingest/publisher"
	"github.com/PaliC/popcorn-data-utils/internal/ingest/validator"
	apperrors "github.com/PaliC/popcorn-data-utils/pkg/errors"
	"github.com/PaliC/popcorn-data-utils/pkg/logger"
	"github.com/PaliC/popcorn-data-utils/pkg/metrics"
)

type Handler struct {
	publisher    *publisher.Publisher
	metrics      *metrics.Metrics
	maxTextBytes int
	logger       *slog.Logger
}

func New(pub *publisher.Publisher, m *metrics.Metrics, maxTextBytes int) *Handler {
	return &Handler{
		publisher:    pub,
		metrics:      m,
		maxTextBytes: maxTextBytes,
		logger:       slog.Default().With("component", "ingest-handler"),
	}
}

func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	var req ingest.IngestRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, int64(h.maxTextBytes)+4096)).Decode(&req); err != nil {
		h.metrics.DocsRejectedTotal.WithLabelValues("malformed_json").Inc()
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validator.ValidateIngestRequest(&req, h.maxTextBytes); err != nil {
		h.metrics.DocsRejectedTotal.WithLabelValues("validation").Inc()
		var validationErr *validator.ValidationError
		if errors.As(err, &validationErr) {
			h.writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "validation failed",
				"fields": validationErr.Fields,
			})
			return
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.publisher.Accept(ctx, &req)
	if err != nil {
		statusCode := apperrors.HTTPStatusCode(err)
		h.metrics.DocsRejectedTotal.WithLabelValues("storage").Inc()
		log.Error("intake failed",
			"error", err,
			"status_code", statusCode,
		)
		h.writeError(w, statusCode, "intake failed")
		return
	}

	h.metrics.DocsStagedTotal.Inc()
	log.Info("document accepted",
		"doc_id", resp.DocumentID,
		"content_hash", resp.ContentHash,
	)
	h.writeJSON(w, http.StatusAccepted, resp)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
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
