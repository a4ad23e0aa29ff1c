package report

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/PaliC/popcorn-data-utils/internal/corpus"
	"github.com/PaliC/popcorn-data-utils/pkg/config"
	"github.com/PaliC/popcorn-data-utils/pkg/resilience"
)

// KeptPage is the kept-set listing served by the report API.
type KeptPage struct {
	RunID string                `json:"run_id"`
	Count int                   `json:"count"`
	Kept  []corpus.KeptDocument `json:"kept"`
}

// HistogramReport pairs a run with its candidate histogram. Bucket keys are
// candidate-set sizes; values are how many documents had that many
// candidates.
type HistogramReport struct {
	RunID     string      `json:"run_id"`
	Status    string      `json:"status"`
	Histogram map[int]int `json:"histogram"`
}

// RunList wraps the recent-runs listing.
type RunList struct {
	Runs []corpus.Run `json:"runs"`
}

// CorpusStatus reports document counts by lifecycle state.
type CorpusStatus struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"by_status"`
}

// Service answers report queries from the corpus store through the run
// cache. Every store query is bounded by the configured timeout.
type Service struct {
	store  *corpus.Store
	cache  *RunCache
	cfg    config.ReportConfig
	logger *slog.Logger
}

// NewService creates a report service.
func NewService(store *corpus.Store, cache *RunCache, cfg config.ReportConfig) *Service {
	return &Service{
		store:  store,
		cache:  cache,
		cfg:    cfg,
		logger: slog.Default().With("component", "report-service"),
	}
}

// RunReport returns the full run row as JSON. The boolean reports a cache
// hit.
func (s *Service) RunReport(ctx context.Context, runID string) (json.RawMessage, bool, error) {
	key := fmt.Sprintf("%srun:%s", keyPrefix, runID)
	return s.cache.GetOrCompute(ctx, key, func() (any, error) {
		var run *corpus.Run
		err := s.query(ctx, "run-report", func(ctx context.Context) error {
			var qErr error
			run, qErr = s.store.GetRun(ctx, runID)
			return qErr
		})
		if err != nil {
			return nil, err
		}
		return run, nil
	})
}

// KeptDocuments returns up to limit kept documents of a run, sorted by ID.
func (s *Service) KeptDocuments(ctx context.Context, runID string, limit int) (json.RawMessage, bool, error) {
	key := fmt.Sprintf("%skept:%s:%d", keyPrefix, runID, limit)
	return s.cache.GetOrCompute(ctx, key, func() (any, error) {
		page := KeptPage{RunID: runID, Kept: []corpus.KeptDocument{}}
		err := s.query(ctx, "kept-documents", func(ctx context.Context) error {
			if _, qErr := s.store.GetRun(ctx, runID); qErr != nil {
				return qErr
			}
			kept, qErr := s.store.ListKept(ctx, runID, limit)
			if qErr != nil {
				return qErr
			}
			if kept != nil {
				page.Kept = kept
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		page.Count = len(page.Kept)
		return page, nil
	})
}

// RunHistogram returns the candidate histogram recorded for a run. Runs
// that have not completed yet report an empty histogram.
func (s *Service) RunHistogram(ctx context.Context, runID string) (json.RawMessage, bool, error) {
	key := fmt.Sprintf("%shistogram:%s", keyPrefix, runID)
	return s.cache.GetOrCompute(ctx, key, func() (any, error) {
		var run *corpus.Run
		err := s.query(ctx, "run-histogram", func(ctx context.Context) error {
			var qErr error
			run, qErr = s.store.GetRun(ctx, runID)
			return qErr
		})
		if err != nil {
			return nil, err
		}
		return HistogramReport{RunID: run.ID, Status: run.Status, Histogram: run.Histogram}, nil
	})
}

// ListRuns returns the most recent runs, newest first.
func (s *Service) ListRuns(ctx context.Context, limit int) (json.RawMessage, bool, error) {
	key := fmt.Sprintf("%sruns:%d", keyPrefix, limit)
	return s.cache.GetOrCompute(ctx, key, func() (any, error) {
		list := RunList{Runs: []corpus.Run{}}
		err := s.query(ctx, "list-runs", func(ctx context.Context) error {
			runs, qErr := s.store.ListRuns(ctx, limit)
			if qErr != nil {
				return qErr
			}
			if runs != nil {
				list.Runs = runs
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		return list, nil
	})
}

// CorpusStatus counts documents by lifecycle state. It is served uncached;
// intake changes it continuously.
func (s *Service) CorpusStatus(ctx context.Context) (*CorpusStatus, error) {
	var counts map[string]int
	err := s.query(ctx, "corpus-status", func(ctx context.Context) error {
		var qErr error
		counts, qErr = s.store.StatusCounts(ctx)
		return qErr
	})
	if err != nil {
		return nil, err
	}

	status := &CorpusStatus{ByStatus: counts}
	for _, n := range counts {
		status.Total += n
	}
	return status, nil
}

// InvalidateCache drops every cached report entry.
func (s *Service) InvalidateCache(ctx context.Context) error {
	return s.cache.Invalidate(ctx)
}

func (s *Service) query(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	return resilience.WithTimeout(ctx, s.cfg.QueryTimeout, name, fn)
}
