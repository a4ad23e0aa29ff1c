// Package ratelimit implements an in-memory per-key token bucket for the
// intake endpoint.
package ratelimit

import (
	"sync"
	"time"
)

// entry tracks the token-bucket state for a single key.
type entry struct {
	tokens    float64
	lastCheck time.Time
}

// Limiter refills each key's bucket continuously at perMinute tokens per
// minute, capped at burst.
type Limiter struct {
	mu        sync.Mutex
	entries   map[string]*entry
	perSecond float64
	burst     float64
}

// New creates a rate limiter. Keys start with a full burst allowance.
func New(perMinute, burst int) *Limiter {
	l := &Limiter{
		entries:   make(map[string]*entry),
		perSecond: float64(perMinute) / 60,
		burst:     float64(burst),
	}
	go l.cleanup()
	return l
}

// Allow consumes one token for the key if capacity remains. Returns false
// when the key is over its limit.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	e, exists := l.entries[key]
	if !exists {
		l.entries[key] = &entry{
			tokens:    l.burst - 1,
			lastCheck: now,
		}
		return true
	}

	elapsed := now.Sub(e.lastCheck)
	e.lastCheck = now

	e.tokens += elapsed.Seconds() * l.perSecond
	if e.tokens > l.burst {
		e.tokens = l.burst
	}

	if e.tokens < 1 {
		return false
	}
	e.tokens--
	return true
}

// Reset clears the rate-limit state for a specific key.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key)
}

// cleanup periodically drops keys that have been idle long enough to have
// refilled completely.
func (l *Limiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		l.mu.Lock()
		cutoff := time.Now().Add(-10 * time.Minute)
		for key, e := range l.entries {
			if e.lastCheck.Before(cutoff) {
				delete(l.entries, key)
			}
		}
		l.mu.Unlock()
	}
}
