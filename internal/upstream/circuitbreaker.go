package upstream

import (
	"sync"
	"time"

	"b24gofer/internal/config"
)

// BreakerState is the position of an endpoint's circuit breaker
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half-open"
)

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	Enabled             bool
	FailureThreshold    int           // consecutive retryable failures that open the breaker
	RecoveryTimeout     time.Duration // time spent open before probing
	HalfOpenMaxRequests int           // successful probes needed to close again
}

// CircuitBreakerConfigFrom converts the file config; nil disables the breaker
func CircuitBreakerConfigFrom(cfg *config.CircuitBreakerConfig) CircuitBreakerConfig {
	if cfg == nil {
		return CircuitBreakerConfig{}
	}
	return CircuitBreakerConfig{
		Enabled:             cfg.Enabled,
		FailureThreshold:    cfg.FailureThreshold,
		RecoveryTimeout:     cfg.GetRecoveryTimeoutDuration(),
		HalfOpenMaxRequests: cfg.HalfOpenMaxRequests,
	}
}

// CircuitBreaker takes an endpoint out of rotation after consecutive
// retryable failures and lets probe calls through once the recovery
// timeout has passed. Provider rejections of a single call are not failures.
type CircuitBreaker struct {
	mu       sync.Mutex
	cfg      CircuitBreakerConfig
	state    BreakerState
	failures int // consecutive failures while closed
	probes   int // successful probes while half-open
	openedAt time.Time
	now      func() time.Time
}

// NewCircuitBreaker creates a new CircuitBreaker
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = config.DefaultFailureThreshold
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = config.DefaultRecoveryTimeout * time.Millisecond
	}
	if cfg.HalfOpenMaxRequests <= 0 {
		cfg.HalfOpenMaxRequests = config.DefaultHalfOpenMaxRequests
	}
	return &CircuitBreaker{
		cfg:   cfg,
		state: BreakerClosed,
		now:   time.Now,
	}
}

// AllowRequest reports whether the endpoint may take a call.
// An open breaker whose recovery timeout has passed moves to half-open.
func (cb *CircuitBreaker) AllowRequest() bool {
	if !cb.cfg.Enabled {
		return true
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == BreakerOpen && cb.now().Sub(cb.openedAt) >= cb.cfg.RecoveryTimeout {
		cb.moveTo(BreakerHalfOpen)
	}
	return cb.state != BreakerOpen
}

// RecordSuccess counts a call the endpoint answered.
// Returns true when it closed a half-open breaker.
func (cb *CircuitBreaker) RecordSuccess() bool {
	if !cb.cfg.Enabled {
		return false
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != BreakerHalfOpen {
		cb.failures = 0
		return false
	}
	cb.probes++
	if cb.probes < cb.cfg.HalfOpenMaxRequests {
		return false
	}
	cb.moveTo(BreakerClosed)
	return true
}

// RecordFailure counts a retryable failure.
// Returns true when it opened the breaker.
func (cb *CircuitBreaker) RecordFailure() bool {
	if !cb.cfg.Enabled {
		return false
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case BreakerHalfOpen:
		cb.moveTo(BreakerOpen)
		return true
	case BreakerClosed:
		cb.failures++
		if cb.failures >= cb.cfg.FailureThreshold {
			cb.moveTo(BreakerOpen)
			return true
		}
	}
	return false
}

// State returns the current state
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// moveTo switches state and resets the counters; caller holds mu
func (cb *CircuitBreaker) moveTo(state BreakerState) {
	cb.state = state
	cb.failures = 0
	cb.probes = 0
	if state == BreakerOpen {
		cb.openedAt = cb.now()
	}
}
