package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// WithTimeout runs fn under a context bounded by the given duration. fn is
// expected to honour its context; report-store queries all go through
// database/sql, which does. A non-positive timeout runs fn unbounded. When
// the deadline, not the parent context, is what expired, the error is
// wrapped with the operation name and limit.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	bounded, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := fn(bounded)
	if err == nil {
		return nil
	}
	if errors.Is(bounded.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return fmt.Errorf("%s exceeded %v: %w", name, timeout, context.DeadlineExceeded)
	}
	return err
}
