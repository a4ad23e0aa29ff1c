package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"
)

// RetryConfig bounds a retry loop. Zero values fall back to the package
// defaults, so resilience.RetryConfig{} is a valid argument.
type RetryConfig struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Jitter    float64
}

func (cfg RetryConfig) normalized() RetryConfig {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 100 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 10 * time.Second
	}
	if cfg.Jitter <= 0 {
		cfg.Jitter = 0.1
	}
	return cfg
}

// Retry runs fn until it succeeds, the attempt budget is spent, or ctx is
// cancelled. Backoff doubles per attempt with a random jitter so snapshot
// loads and event publishes retried by several workers do not stampede a
// recovering dependency. The last error is wrapped into the failure.
func Retry(ctx context.Context, name string, cfg RetryConfig, fn func() error) error {
	cfg = cfg.normalized()
	log := slog.Default().With("component", "retry", "operation", name)

	var err error
	for attempt := 1; ; attempt++ {
		err = fn()
		if err == nil {
			if attempt > 1 {
				log.Info("recovered", "attempt", attempt)
			}
			return nil
		}
		if attempt >= cfg.Attempts {
			break
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%s interrupted: %w", name, ctx.Err())
		}
		wait := backoff(cfg, attempt)
		log.Warn("attempt failed",
			"attempt", attempt,
			"budget", cfg.Attempts,
			"backoff", wait,
			"error", err,
		)
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s interrupted during backoff: %w", name, ctx.Err())
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", name, cfg.Attempts, err)
}

// backoff doubles the base delay per attempt, caps it, and spreads it by
// the jitter fraction in both directions.
func backoff(cfg RetryConfig, attempt int) time.Duration {
	d := cfg.BaseDelay << (attempt - 1)
	if d > cfg.MaxDelay || d <= 0 {
		d = cfg.MaxDelay
	}
	spread := 1 + cfg.Jitter*(2*rand.Float64()-1)
	return time.Duration(float64(d) * spread)
}
