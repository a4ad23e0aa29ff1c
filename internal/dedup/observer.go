package dedup

import "time"

// Observer receives progress callbacks during a run. StageProgress may be
// called from multiple goroutines concurrently; implementations must be
// safe for concurrent use and should return quickly.
type Observer interface {
	StageStarted(stage string, total int)
	StageProgress(stage string, completed int)
	StageFinished(stage string, took time.Duration)
}

// NopObserver ignores all progress callbacks.
type NopObserver struct{}

func (NopObserver) StageStarted(string, int)            {}
func (NopObserver) StageProgress(string, int)           {}
func (NopObserver) StageFinished(string, time.Duration) {}
