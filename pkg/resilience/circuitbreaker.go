// Package resilience provides the fault-tolerance primitives the daemons
// wrap around Postgres, Redis, and Kafka calls: bounded retry with
// exponential backoff, a consecutive-failure circuit breaker, and a
// context timeout helper.
package resilience

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned while a breaker is refusing calls. Callers
// that degrade gracefully (the report cache) match it with errors.Is to
// tell "dependency shielded" apart from a real call failure.
var ErrCircuitOpen = errors.New("circuit open")

// State is a breaker phase.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// CircuitBreakerConfig sets how many consecutive failures trip the breaker,
// how long it stays open, and how many probes half-open admits. Zero values
// take the defaults (5 failures, 30s cool-down, 1 probe).
type CircuitBreakerConfig struct {
	Threshold   int
	CoolDown    time.Duration
	ProbeBudget int
}

func (cfg CircuitBreakerConfig) normalized() CircuitBreakerConfig {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.CoolDown <= 0 {
		cfg.CoolDown = 30 * time.Second
	}
	if cfg.ProbeBudget <= 0 {
		cfg.ProbeBudget = 1
	}
	return cfg
}

// CircuitBreaker refuses calls after a run of consecutive failures, then
// lets a limited number of probes through once the cool-down has passed. A
// successful probe closes it again; a failed one re-opens it.
type CircuitBreaker struct {
	name string
	cfg  CircuitBreakerConfig
	log  *slog.Logger

	mu       sync.Mutex
	state    State
	fails    int
	openedAt time.Time
	probes   int
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(name string, cfg CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		name: name,
		cfg:  cfg.normalized(),
		log:  slog.Default().With("component", "circuit-breaker", "name", name),
	}
}

// Execute runs fn if the breaker admits the call and records the outcome.
// A refused call returns ErrCircuitOpen without invoking fn.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := fn()
	cb.record(err)
	return err
}

// GetState reports the current phase.
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset forces the breaker closed, clearing all failure history.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.toClosed()
	cb.log.Info("reset")
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.state {
	case StateOpen:
		remaining := cb.cfg.CoolDown - time.Since(cb.openedAt)
		if remaining > 0 {
			return fmt.Errorf("%w: %s for another %v", ErrCircuitOpen, cb.name, remaining.Round(time.Millisecond))
		}
		cb.state = StateHalfOpen
		cb.probes = 0
		cb.log.Info("half-open", "cool_down", cb.cfg.CoolDown)
		fallthrough
	case StateHalfOpen:
		if cb.probes >= cb.cfg.ProbeBudget {
			return fmt.Errorf("%w: %s probe budget spent", ErrCircuitOpen, cb.name)
		}
		cb.probes++
	}
	return nil
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err == nil {
		if cb.state == StateHalfOpen {
			cb.toClosed()
			cb.log.Info("closed after successful probe")
		} else {
			cb.fails = 0
		}
		return
	}
	cb.fails++
	cb.openedAt = time.Now()
	switch cb.state {
	case StateClosed:
		if cb.fails >= cb.cfg.Threshold {
			cb.state = StateOpen
			cb.log.Warn("opened", "consecutive_failures", cb.fails)
		}
	case StateHalfOpen:
		cb.state = StateOpen
		cb.log.Warn("re-opened, probe failed")
	}
}

// toClosed resets to the closed state. Caller holds the lock.
func (cb *CircuitBreaker) toClosed() {
	cb.state = StateClosed
	cb.fails = 0
	cb.probes = 0
}
