package catalog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// maxRecordBytes caps a single JSONL line. Documents larger than this are
// rejected at import time.
const maxRecordBytes = 16 * 1024 * 1024

// Record is one line of a JSONL corpus file. ID may be empty on import, in
// which case the importer assigns one.
type Record struct {
	ID          string    `json:"id,omitempty"`
	Text        string    `json:"text"`
	CommittedAt time.Time `json:"committed_at,omitempty"`
	ContentHash string    `json:"content_hash,omitempty"`
}

// ReadRecords parses a JSONL stream. Blank lines are skipped; a malformed
// line fails the whole read with its line number so the input can be fixed.
func ReadRecords(r io.Reader) ([]Record, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxRecordBytes)

	var records []Record
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading line %d: %w", line+1, err)
	}
	return records, nil
}

// WriteRecords writes records as JSONL, one document per line.
func WriteRecords(w io.Writer, records []Record) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("encoding record %d: %w", i, err)
		}
	}
	return bw.Flush()
}
