// Package resilience holds the retry, circuit breaker and error
// classification helpers shared by the catalog session manager.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed lets queries through.
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects queries until the cool-down elapses.
	CircuitOpen
	// CircuitHalfOpen allows probe queries to test recovery.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when a call is rejected because the circuit is open.
var ErrCircuitOpen = eris.New("circuit breaker is open")

// CircuitBreakerConfig controls circuit breaker behavior.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failed items before the
	// circuit opens. Default: 5.
	FailureThreshold int

	// ResetTimeout is the cool-down spent open before probing. Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMaxProbes is the number of successful probes needed to close
	// the circuit again. Default: 1.
	HalfOpenMaxProbes int

	// ShouldTrip decides which errors count as failures. If nil, only
	// retryable errors count; a page that parsed but had no crosses is not a
	// catalog outage.
	ShouldTrip func(err error) bool

	// OnStateChange is called when the circuit transitions between states.
	OnStateChange func(from, to CircuitState)
}

// DefaultCircuitBreakerConfig returns the catalog defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold:  5,
		ResetTimeout:      30 * time.Second,
		HalfOpenMaxProbes: 1,
	}
}

// CircuitBreaker guards the catalog against hammering while it is down.
type CircuitBreaker struct {
	cfg   CircuitBreakerConfig
	mu    sync.Mutex
	state CircuitState

	consecutiveFailures int
	openedAt            time.Time
	halfOpenSuccesses   int

	nowFunc func() time.Time
}

// NewCircuitBreaker creates a circuit breaker with the given config.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMaxProbes <= 0 {
		cfg.HalfOpenMaxProbes = 1
	}
	if cfg.ShouldTrip == nil {
		cfg.ShouldTrip = IsRetryable
	}
	return &CircuitBreaker{
		cfg:     cfg,
		state:   CircuitClosed,
		nowFunc: time.Now,
	}
}

// ExecuteVal runs fn if the circuit admits it and records the outcome.
func ExecuteVal[T any](ctx context.Context, cb *CircuitBreaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := cb.allow(); err != nil {
		return zero, err
	}

	val, err := fn(ctx)
	cb.Record(err)
	return val, err
}

// WaitReady blocks until the circuit admits a request. An open circuit is
// treated as backoff rather than as a failure of the current item. It
// returns ctx.Err() if the context ends first.
func (cb *CircuitBreaker) WaitReady(ctx context.Context) error {
	for {
		wait := cb.remaining()
		if wait <= 0 {
			return nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitOpen && cb.nowFunc().Sub(cb.openedAt) >= cb.cfg.ResetTimeout {
		return CircuitHalfOpen
	}
	return cb.state
}

// Failures returns the current consecutive failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.consecutiveFailures
}

// Record feeds an outcome into the breaker. A nil error or one rejected by
// ShouldTrip counts as success.
func (cb *CircuitBreaker) Record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil || !cb.cfg.ShouldTrip(err) {
		switch cb.state {
		case CircuitHalfOpen:
			cb.halfOpenSuccesses++
			if cb.halfOpenSuccesses >= cb.cfg.HalfOpenMaxProbes {
				cb.transition(CircuitClosed)
				cb.consecutiveFailures = 0
				cb.halfOpenSuccesses = 0
			}
		case CircuitClosed:
			cb.consecutiveFailures = 0
		}
		return
	}

	cb.consecutiveFailures++

	switch cb.state {
	case CircuitClosed:
		if cb.consecutiveFailures >= cb.cfg.FailureThreshold {
			cb.openedAt = cb.nowFunc()
			cb.transition(CircuitOpen)
		}
	case CircuitHalfOpen:
		// A failed probe reopens for another full cool-down.
		cb.openedAt = cb.nowFunc()
		cb.halfOpenSuccesses = 0
		cb.transition(CircuitOpen)
	}
}

func (cb *CircuitBreaker) allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != CircuitOpen {
		return nil
	}
	if cb.nowFunc().Sub(cb.openedAt) >= cb.cfg.ResetTimeout {
		cb.transition(CircuitHalfOpen)
		return nil
	}
	return ErrCircuitOpen
}

func (cb *CircuitBreaker) remaining() time.Duration {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state != CircuitOpen {
		return 0
	}
	return cb.cfg.ResetTimeout - cb.nowFunc().Sub(cb.openedAt)
}

func (cb *CircuitBreaker) transition(to CircuitState) {
	from := cb.state
	cb.state = to
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(from, to)
	}
}
