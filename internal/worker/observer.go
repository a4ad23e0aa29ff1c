package worker

import (
	"log/slog"
	"time"

	"github.com/PaliC/popcorn-data-utils/pkg/metrics"
)

// progressLogEvery throttles per-document progress logging.
const progressLogEvery = 25000

// runObserver bridges pipeline stage callbacks to structured logs and
// Prometheus stage timings. StageProgress arrives concurrently from the
// pipeline's workers; both sinks are safe for that.
type runObserver struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func newRunObserver(runID string, m *metrics.Metrics) *runObserver {
	return &runObserver{
		logger:  slog.Default().With("component", "dedup-run", "run_id", runID),
		metrics: m,
	}
}

func (o *runObserver) StageStarted(stage string, total int) {
	o.logger.Info("stage started", "stage", stage, "total", total)
}

func (o *runObserver) StageProgress(stage string, completed int) {
	if completed%progressLogEvery == 0 {
		o.logger.Debug("stage progress", "stage", stage, "completed", completed)
	}
}

func (o *runObserver) StageFinished(stage string, took time.Duration) {
	o.metrics.DedupStageDuration.WithLabelValues(stage).Observe(took.Seconds())
	o.logger.Info("stage finished", "stage", stage, "took", took)
}
