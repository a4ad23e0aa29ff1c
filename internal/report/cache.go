// Package report serves read-side views of dedup runs: run reports, kept-set
// listings, and candidate histograms. Responses are cached in Redis behind a
// circuit breaker and invalidated when a run reaches a terminal state.
package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/PaliC/popcorn-data-utils/pkg/metrics"
	pkgredis "github.com/PaliC/popcorn-data-utils/pkg/redis"
	"github.com/PaliC/popcorn-data-utils/pkg/resilience"
)

const keyPrefix = "report:"

// RunCache memoises marshalled report responses in Redis. Concurrent misses
// for the same key collapse into one computation via singleflight, and a
// circuit breaker keeps a struggling Redis from stalling reads: while it is
// open every lookup falls through to the store.
type RunCache struct {
	client  *pkgredis.Client
	ttl     time.Duration
	group   singleflight.Group
	breaker *resilience.CircuitBreaker
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewRunCache creates a cache with the given entry TTL.
func NewRunCache(client *pkgredis.Client, ttl time.Duration, m *metrics.Metrics) *RunCache {
	return &RunCache{
		client:  client,
		ttl:     ttl,
		breaker: resilience.NewCircuitBreaker("report-cache", resilience.CircuitBreakerConfig{}),
		metrics: m,
		logger:  slog.Default().With("component", "run-cache"),
	}
}

// GetOrCompute returns the cached response for key, or computes, caches, and
// returns it. The boolean reports a cache hit. Errors from compute are never
// cached.
func (c *RunCache) GetOrCompute(ctx context.Context, key string, compute func() (any, error)) (json.RawMessage, bool, error) {
	if data, ok := c.get(ctx, key); ok {
		return data, true, nil
	}

	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		if data, ok := c.get(ctx, key); ok {
			return data, nil
		}
		result, err := compute()
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("marshaling %s: %w", key, err)
		}
		c.set(ctx, key, data)
		return json.RawMessage(data), nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(json.RawMessage), false, nil
}

// Invalidate drops every cached report entry.
func (c *RunCache) Invalidate(ctx context.Context) error {
	var deleted int64
	err := c.breaker.Execute(func() error {
		var flushErr error
		deleted, flushErr = c.client.FlushByPattern(ctx, keyPrefix+"*")
		return flushErr
	})
	c.observeBreaker()
	if err != nil {
		return fmt.Errorf("invalidating report cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

func (c *RunCache) get(ctx context.Context, key string) (json.RawMessage, bool) {
	var data string
	var miss bool
	err := c.breaker.Execute(func() error {
		val, getErr := c.client.Get(ctx, key)
		if pkgredis.IsNilError(getErr) {
			miss = true
			return nil
		}
		if getErr != nil {
			return getErr
		}
		data = val
		return nil
	})
	c.observeBreaker()

	if err != nil {
		if !errors.Is(err, resilience.ErrCircuitOpen) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.metrics.CacheMissesTotal.Inc()
		return nil, false
	}
	if miss {
		c.metrics.CacheMissesTotal.Inc()
		return nil, false
	}
	c.metrics.CacheHitsTotal.Inc()
	return json.RawMessage(data), true
}

func (c *RunCache) set(ctx context.Context, key string, data []byte) {
	err := c.breaker.Execute(func() error {
		return c.client.Set(ctx, key, data, c.ttl)
	})
	c.observeBreaker()
	if err != nil && !errors.Is(err, resilience.ErrCircuitOpen) {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

func (c *RunCache) observeBreaker() {
	c.metrics.CircuitBreakerState.WithLabelValues("report-cache").Set(float64(c.breaker.GetState()))
}
