package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"b24gofer/internal/balancer"
	"b24gofer/internal/config"
	"b24gofer/internal/rest"
	"b24gofer/internal/upstream"
)

// ErrAllEndpointsFailed is returned when every attempt failed with a retryable error
var ErrAllEndpointsFailed = errors.New("all endpoints failed")

// ErrNoEndpointsAvailable is returned when no endpoint can take the call
var ErrNoEndpointsAvailable = errors.New("no endpoints available")

// APIError is a provider error envelope for the whole call
type APIError = upstream.APIError

// HTTPError is a non-200 reply without a provider error envelope
type HTTPError = upstream.HTTPError

const maxBackoff = 10 * time.Second

// RetryConfig holds retry configuration
type RetryConfig struct {
	Enabled     bool
	MaxAttempts int
	Backoff     time.Duration // delay before the second attempt, doubled for each next one
}

// RetryConfigFrom builds the retry settings from the loaded config
func RetryConfigFrom(cfg *config.Config) RetryConfig {
	return RetryConfig{
		Enabled:     cfg.RetryEnabled,
		MaxAttempts: cfg.RetryMaxAttempts,
		Backoff:     cfg.GetRetryBackoffDuration(),
	}
}

// Executor sends calls to the pool's endpoints with retry and failover.
// It implements rest.Transport.
type Executor struct {
	balancer balancer.Selector
	pool     *upstream.Pool
	config   RetryConfig
	logger   zerolog.Logger
}

var _ rest.Transport = (*Executor)(nil)

// NewExecutor creates a new Executor
func NewExecutor(b balancer.Selector, pool *upstream.Pool, cfg RetryConfig, logger zerolog.Logger) *Executor {
	return &Executor{
		balancer: b,
		pool:     pool,
		config:   cfg,
		logger:   logger.With().Str("component", "transport").Logger(),
	}
}

// New builds the endpoint pool, a weighted round-robin balancer over it and an Executor
func New(cfg *config.Config, logger zerolog.Logger) *Executor {
	pool := upstream.NewPool(cfg, logger)
	return NewExecutor(balancer.NewWeightedRoundRobin(pool), pool, RetryConfigFrom(cfg), logger)
}

// Start starts the pool background work
func (e *Executor) Start() {
	if e.pool != nil {
		e.pool.Start()
	}
}

// Close stops the pool and releases connections
func (e *Executor) Close() {
	if e.pool != nil {
		e.pool.Stop()
	}
}

// Call performs a standalone method call
func (e *Executor) Call(ctx context.Context, method string, params rest.Params, timeout time.Duration) (json.RawMessage, error) {
	return e.Execute(ctx, method, rest.EncodeQuery(params), timeout)
}

// CallBatch performs one call to the batch method carrying the given commands
func (e *Executor) CallBatch(ctx context.Context, cmds rest.Commands, halt bool, timeout time.Duration) (json.RawMessage, error) {
	return e.Execute(ctx, rest.BatchMethod, rest.EncodeQuery(cmds.Params(halt)), timeout)
}

// Execute posts the form body to the method with retry logic.
// Endpoints are tried main first, then fallback; once every endpoint has been
// tried, the next attempt starts another round. Non-retryable errors are
// returned as is.
func (e *Executor) Execute(ctx context.Context, method string, form string, timeout time.Duration) (json.RawMessage, error) {
	tried := make(map[string]bool)
	if !e.config.Enabled {
		raw, _, err := e.executeOnce(ctx, method, form, timeout, tried, false)
		return raw, err
	}

	var lastErr error
	var lastUpstream string
	usedFallback := false

	maxAttempts := e.config.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if err := e.wait(ctx, attempt); err != nil {
				return nil, err
			}
		}

		if !usedFallback && e.isUsingFallback(tried) {
			usedFallback = true
			e.logger.Warn().
				Str("method", method).
				Int("triedMain", len(tried)).
				Msg("all main upstreams failed, falling back to fallback upstreams")
		}

		raw, upstreamName, err := e.executeOnce(ctx, method, form, timeout, tried, usedFallback)
		if err == nil {
			return raw, nil
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, ErrNoEndpointsAvailable) || !IsRetryable(err) {
			return nil, err
		}

		lastErr = err
		lastUpstream = upstreamName

		if attempt+1 < maxAttempts {
			e.logger.Warn().
				Int("attempt", attempt+1).
				Int("maxAttempts", maxAttempts).
				Err(lastErr).
				Str("method", method).
				Str("upstream", lastUpstream).
				Bool("usingFallback", usedFallback).
				Msg("request failed, retrying")
		}
	}

	return nil, fmt.Errorf("%w: %w", ErrAllEndpointsFailed, lastErr)
}

// executeOnce executes the call on a single upstream.
// Returns the raw reply, upstream name (empty if none was selected) and error.
func (e *Executor) executeOnce(ctx context.Context, method string, form string, timeout time.Duration, exclude map[string]bool, isFallback bool) (json.RawMessage, string, error) {
	u := e.balancer.Next(exclude)
	if u == nil && len(exclude) > 0 {
		clear(exclude)
		u = e.balancer.Next(exclude)
	}
	if u == nil {
		return nil, "", ErrNoEndpointsAvailable
	}

	upstreamName := u.Name()
	exclude[upstreamName] = true

	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	raw, err := u.Execute(callCtx, method, form)
	if err != nil {
		logEvent := e.logger.Warn().
			Err(err).
			Str("upstream", upstreamName).
			Str("method", method).
			Bool("isFallback", u.IsFallback())

		if isFallback {
			logEvent.Msg("fallback request failed")
		} else {
			logEvent.Msg("request failed")
		}
		return nil, upstreamName, err
	}

	e.logger.Debug().
		Str("upstream", upstreamName).
		Str("method", method).
		Dur("took", time.Since(start)).
		Bool("isFallback", u.IsFallback()).
		Msg("request succeeded")

	return raw, upstreamName, nil
}

// isUsingFallback checks if all main upstreams have been tried
func (e *Executor) isUsingFallback(tried map[string]bool) bool {
	if e.pool == nil {
		return false
	}
	mainUpstreams := e.pool.GetHealthyMain()
	for _, u := range mainUpstreams {
		if !tried[u.Name()] {
			return false
		}
	}
	return len(mainUpstreams) > 0
}

// wait sleeps before the given attempt, returning early when ctx is done
func (e *Executor) wait(ctx context.Context, attempt int) error {
	delay := backoff(e.config.Backoff, attempt)
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// backoff returns base * 2^(attempt-1), capped at maxBackoff
func backoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 || attempt <= 0 {
		return 0
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

// IsRetryable reports whether a failed call may succeed on another attempt.
// Provider rejections such as an expired token are final.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsRetryable()
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.IsRetryable()
	}
	return !errors.Is(err, context.Canceled)
}
