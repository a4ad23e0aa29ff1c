// Package tracing times the phases of a dedup run as a tree of spans
// carried through contexts. There is no wire propagation: a run is a single
// process, so spans exist only to be flattened into slog lines (one per
// span, tagged with the run ID) once the run finishes.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type ctxKey struct{}

// Span is one timed phase of a run. The trace ID is the run ID of the root
// span; children inherit it.
type Span struct {
	name    string
	traceID string
	started time.Time

	mu       sync.Mutex
	elapsed  time.Duration
	attrs    []slog.Attr
	children []*Span
}

// StartSpan opens a root span and returns a context carrying it.
func StartSpan(ctx context.Context, name string, traceID string) (context.Context, *Span) {
	s := &Span{name: name, traceID: traceID, started: time.Now()}
	return context.WithValue(ctx, ctxKey{}, s), s
}

// StartChildSpan opens a span under the one carried by ctx. Without a
// parent in ctx the child becomes its own root with an empty trace ID.
func StartChildSpan(ctx context.Context, name string) (context.Context, *Span) {
	child := &Span{name: name, started: time.Now()}
	if parent := SpanFromContext(ctx); parent != nil {
		child.traceID = parent.traceID
		parent.mu.Lock()
		parent.children = append(parent.children, child)
		parent.mu.Unlock()
	}
	return context.WithValue(ctx, ctxKey{}, child), child
}

// SpanFromContext returns the span carried by ctx, or nil.
func SpanFromContext(ctx context.Context) *Span {
	s, _ := ctx.Value(ctxKey{}).(*Span)
	return s
}

// End freezes the span's duration. Children still running when their parent
// ends keep their own clocks; End is per-span.
func (s *Span) End() {
	s.mu.Lock()
	s.elapsed = time.Since(s.started)
	s.mu.Unlock()
}

// SetAttr attaches a named value that will appear on the span's log line.
func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	s.attrs = append(s.attrs, slog.Any(key, value))
	s.mu.Unlock()
}

// Log emits one slog line per span in the tree, each carrying the trace ID,
// a slash-joined path, and the span's duration and attributes.
func (s *Span) Log() {
	s.emit(s.name)
}

func (s *Span) emit(path string) {
	s.mu.Lock()
	args := []any{
		"trace_id", s.traceID,
		"span", path,
		"duration_ms", s.elapsed.Milliseconds(),
	}
	for _, attr := range s.attrs {
		args = append(args, attr.Key, attr.Value.Any())
	}
	children := make([]*Span, len(s.children))
	copy(children, s.children)
	s.mu.Unlock()

	slog.Info("span", args...)
	for _, child := range children {
		child.emit(path + "/" + child.name)
	}
}
