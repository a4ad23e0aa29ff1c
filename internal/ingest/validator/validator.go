// Package validator provides input validation for intake requests. It
// enforces text size constraints and returns per-field error details.
package validator

import (
	"fmt"
	"strings"
	"time"

	"github.com/PaliC/popcorn-data-utils/internal/ingest"
)

const maxSourceKeyLength = 255

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	var parts []string
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s:%s", field, msg))
	}
	return strings.Join(parts, "; ")
}

// ValidateIngestRequest checks that the document text is present and within
// the configured size cap and that optional fields are well formed. The text
// itself is never trimmed or rewritten; deduplication is byte-exact and the
// stored body must match what the caller sent.
func ValidateIngestRequest(req *ingest.IngestRequest, maxTextBytes int) error {
	errs := make(map[string]string)

	if len(req.Text) == 0 {
		errs["text"] = "text is required and must not be empty"
	} else if len(req.Text) > maxTextBytes {
		errs["text"] = fmt.Sprintf("text must be at most %d bytes", maxTextBytes)
	}
	if len(req.SourceKey) > maxSourceKeyLength {
		errs["source_key"] = fmt.Sprintf("source key must be at most %d characters", maxSourceKeyLength)
	}
	if !req.CommittedAt.IsZero() && req.CommittedAt.After(time.Now().Add(time.Hour)) {
		errs["committed_at"] = "committed_at must not be in the future"
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
