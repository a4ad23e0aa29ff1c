package worker

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/PaliC/popcorn-data-utils/internal/corpus"
	"github.com/PaliC/popcorn-data-utils/internal/dedup"
	apperrors "github.com/PaliC/popcorn-data-utils/pkg/errors"
	"github.com/PaliC/popcorn-data-utils/pkg/kafka"
	"github.com/PaliC/popcorn-data-utils/pkg/metrics"
	"github.com/PaliC/popcorn-data-utils/pkg/resilience"
	"github.com/PaliC/popcorn-data-utils/pkg/tracing"
)

// RunnerConfig carries the worker's run parameters.
type RunnerConfig struct {
	Defaults      dedup.Params
	SnapshotLimit int
}

// Runner executes dedup runs over corpus snapshots, one at a time. The
// context given to NewRunner bounds every run; cancelling it aborts the
// in-flight run at its next stage boundary.
type Runner struct {
	ctx           context.Context
	store         *corpus.Store
	producer      *kafka.Producer
	metrics       *metrics.Metrics
	defaults      dedup.Params
	snapshotLimit int
	logger        *slog.Logger

	mu     sync.Mutex
	active string
}

// NewRunner creates a Runner. producer publishes RunCompleted events.
func NewRunner(ctx context.Context, store *corpus.Store, producer *kafka.Producer, m *metrics.Metrics, cfg RunnerConfig) *Runner {
	return &Runner{
		ctx:           ctx,
		store:         store,
		producer:      producer,
		metrics:       m,
		defaults:      cfg.Defaults,
		snapshotLimit: cfg.SnapshotLimit,
		logger:        slog.Default().With("component", "dedup-runner"),
	}
}

// Defaults returns the parameter set used when a trigger omits overrides.
func (r *Runner) Defaults() dedup.Params {
	return r.defaults
}

// Active returns the ID of the currently executing run, or "" when idle.
func (r *Runner) Active() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// TriggerRun validates params, claims the single run slot, records the run
// as RUNNING, and executes it in the background. A second trigger while a
// run is executing yields ErrRunInProgress.
func (r *Runner) TriggerRun(ctx context.Context, params dedup.Params) (string, error) {
	if err := params.Validate(); err != nil {
		return "", err
	}

	runID := uuid.NewString()
	r.mu.Lock()
	if r.active != "" {
		current := r.active
		r.mu.Unlock()
		return "", apperrors.Newf(apperrors.ErrRunInProgress, http.StatusConflict, "run %s still executing", current)
	}
	r.active = runID
	r.mu.Unlock()

	run := corpus.Run{
		ID:          runID,
		Status:      corpus.RunRunning,
		NgramSize:   params.NgramSize,
		Bands:       params.Bands,
		RowsPerBand: params.RowsPerBand,
		Threshold:   params.Threshold,
		StartedAt:   time.Now().UTC(),
	}
	if err := r.store.CreateRun(ctx, run); err != nil {
		r.release()
		return "", err
	}

	r.logger.Info("run triggered",
		"run_id", runID,
		"ngram_size", params.NgramSize,
		"bands", params.Bands,
		"rows_per_band", params.RowsPerBand,
	)
	go r.execute(runID, params)
	return runID, nil
}

// RunStatus loads one run by ID.
func (r *Runner) RunStatus(ctx context.Context, runID string) (*corpus.Run, error) {
	return r.store.GetRun(ctx, runID)
}

// ListRuns returns recent runs, newest first.
func (r *Runner) ListRuns(ctx context.Context, limit int) ([]corpus.Run, error) {
	return r.store.ListRuns(ctx, limit)
}

func (r *Runner) release() {
	r.mu.Lock()
	r.active = ""
	r.mu.Unlock()
}

// execute drives one run to a terminal state. Terminal bookkeeping uses a
// detached context so a shutdown-aborted run is still recorded as FAILED.
func (r *Runner) execute(runID string, params dedup.Params) {
	defer r.release()

	ctx, span := tracing.StartSpan(r.ctx, "dedup-run", runID)
	started := time.Now()

	run, err := r.runOnce(ctx, runID, params)
	span.End()
	span.Log()
	took := time.Since(started)

	finishCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err != nil {
		r.metrics.DedupRunsTotal.WithLabelValues("failed").Inc()
		r.logger.Error("run failed", "run_id", runID, "took", took, "error", err)
		if dbErr := r.store.FailRun(finishCtx, runID, err.Error()); dbErr != nil {
			r.logger.Error("failed to record run failure", "run_id", runID, "error", dbErr)
		}
		r.announce(RunCompleted{
			RunID:      runID,
			Status:     corpus.RunFailed,
			DurationMs: took.Milliseconds(),
			FinishedAt: time.Now().UTC(),
		})
		return
	}

	r.metrics.DedupRunsTotal.WithLabelValues("completed").Inc()
	r.metrics.DedupRunDuration.Observe(took.Seconds())
	r.logger.Info("run completed",
		"run_id", runID,
		"total", run.TotalDocs,
		"exact_dropped", run.ExactDropped,
		"near_dropped", run.NearDropped,
		"kept", run.Kept,
		"took", took,
	)
	r.announce(RunCompleted{
		RunID:        runID,
		Status:       corpus.RunCompleted,
		TotalDocs:    run.TotalDocs,
		ExactDropped: run.ExactDropped,
		NearDropped:  run.NearDropped,
		Kept:         run.Kept,
		DurationMs:   took.Milliseconds(),
		FinishedAt:   run.FinishedAt,
	})
}

func (r *Runner) runOnce(ctx context.Context, runID string, params dedup.Params) (corpus.Run, error) {
	snapCtx, snapSpan := tracing.StartChildSpan(ctx, "corpus-snapshot")
	var docs []dedup.Document
	err := resilience.Retry(snapCtx, "corpus-snapshot", resilience.RetryConfig{}, func() error {
		var loadErr error
		docs, loadErr = r.store.Snapshot(snapCtx, r.snapshotLimit)
		return loadErr
	})
	snapSpan.SetAttr("documents", len(docs))
	snapSpan.End()
	if err != nil {
		return corpus.Run{}, fmt.Errorf("loading snapshot: %w", err)
	}

	// Per-document screening keeps one malformed row from failing the
	// whole batch.
	screened, rejected := dedup.Screen(docs)
	for _, rej := range rejected {
		r.logger.Warn("document screened out of run",
			"run_id", runID,
			"doc_id", rej.ID,
			"error", rej.Err,
		)
	}

	pipeline, err := dedup.New(params, dedup.WithObserver(newRunObserver(runID, r.metrics)))
	if err != nil {
		return corpus.Run{}, err
	}

	runCtx, runSpan := tracing.StartChildSpan(ctx, "pipeline-run")
	result, err := pipeline.Run(runCtx, screened)
	runSpan.End()
	if err != nil {
		return corpus.Run{}, fmt.Errorf("executing pipeline: %w", err)
	}

	keptIDs := make([]string, 0, len(result.Kept))
	keptSet := make(map[string]struct{}, len(result.Kept))
	for _, doc := range result.Kept {
		keptIDs = append(keptIDs, doc.ID)
		keptSet[doc.ID] = struct{}{}
	}
	droppedIDs := make([]string, 0, len(screened)-len(keptIDs))
	for _, doc := range screened {
		if _, ok := keptSet[doc.ID]; !ok {
			droppedIDs = append(droppedIDs, doc.ID)
		}
	}

	verdictCtx, verdictSpan := tracing.StartChildSpan(ctx, "apply-verdicts")
	err = r.store.ApplyVerdicts(verdictCtx, runID, keptIDs, droppedIDs)
	verdictSpan.End()
	if err != nil {
		return corpus.Run{}, fmt.Errorf("applying verdicts: %w", err)
	}

	run := corpus.Run{
		ID:           runID,
		Status:       corpus.RunCompleted,
		NgramSize:    params.NgramSize,
		Bands:        params.Bands,
		RowsPerBand:  params.RowsPerBand,
		Threshold:    params.Threshold,
		TotalDocs:    result.Stats.Total,
		ExactDropped: result.Stats.ExactDropped,
		NearDropped:  result.Stats.NearDropped,
		Kept:         result.Stats.Kept,
		Histogram:    result.Stats.Histogram,
		FinishedAt:   time.Now().UTC(),
	}
	if err := r.store.CompleteRun(ctx, run); err != nil {
		return corpus.Run{}, fmt.Errorf("finalising run: %w", err)
	}

	r.metrics.DuplicatesDroppedTotal.WithLabelValues("exact").Add(float64(result.Stats.ExactDropped))
	r.metrics.DuplicatesDroppedTotal.WithLabelValues("near").Add(float64(result.Stats.NearDropped))
	for size, count := range result.Stats.Histogram {
		for i := 0; i < count; i++ {
			r.metrics.CandidatesPerDocument.Observe(float64(size))
		}
	}
	return run, nil
}

// announce publishes the terminal event with a bounded retry. Losing the
// event only delays cache invalidation, so failures are logged, not fatal.
func (r *Runner) announce(event RunCompleted) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := resilience.Retry(ctx, "run-completed-publish", resilience.RetryConfig{}, func() error {
		return r.producer.Publish(ctx, kafka.Event{Key: event.RunID, Value: event})
	})
	if err != nil {
		r.logger.Error("failed to announce run completion",
			"run_id", event.RunID,
			"error", err,
		)
	}
}
