package upstream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// StatsReporter periodically logs endpoint status and request statistics
type StatsReporter struct {
	upstreams []*Upstream
	interval  time.Duration
	logger    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewStatsReporter creates a new StatsReporter
func NewStatsReporter(upstreams []*Upstream, interval time.Duration, logger zerolog.Logger) *StatsReporter {
	ctx, cancel := context.WithCancel(context.Background())
	return &StatsReporter{
		upstreams: upstreams,
		interval:  interval,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start begins periodic logging; a no-op when the interval is zero
func (sr *StatsReporter) Start() {
	if sr.interval <= 0 {
		return
	}
	sr.wg.Add(1)
	go sr.run()
}

// Stop stops the reporter and waits for it to exit
func (sr *StatsReporter) Stop() {
	sr.cancel()
	sr.wg.Wait()
}

func (sr *StatsReporter) run() {
	defer sr.wg.Done()

	ticker := time.NewTicker(sr.interval)
	defer ticker.Stop()

	for {
		select {
		case <-sr.ctx.Done():
			return
		case <-ticker.C:
			sr.LogStatus()
			sr.LogRequestStats()
		}
	}
}

// LogStatus logs which endpoints are available, grouped by role
func (sr *StatsReporter) LogStatus() {
	var healthyMain, unhealthyMain, healthyFallback, unhealthyFallback []string

	for _, u := range sr.upstreams {
		status := fmt.Sprintf("%s(breaker=%s, failures=%d)", u.Name(), u.BreakerState(), u.Status().GetFailureCount())
		healthy := u.IsHealthy()

		switch {
		case u.IsMain() && healthy:
			healthyMain = append(healthyMain, status)
		case u.IsMain():
			unhealthyMain = append(unhealthyMain, status)
		case healthy:
			healthyFallback = append(healthyFallback, status)
		default:
			unhealthyFallback = append(unhealthyFallback, status)
		}
	}

	sr.logger.Info().
		Strs("healthyMain", healthyMain).
		Strs("unhealthyMain", unhealthyMain).
		Strs("healthyFallback", healthyFallback).
		Strs("unhealthyFallback", unhealthyFallback).
		Msg("upstreams status")
}

// LogRequestStats logs the request counters since the previous call and resets them
func (sr *StatsReporter) LogRequestStats() {
	var totalRequests, totalBatches uint64
	logEvent := sr.logger.Info().Dur("interval", sr.interval)

	for _, u := range sr.upstreams {
		requests := u.SwapRequestCount()
		batches := u.SwapBatchCount()
		totalRequests += requests
		totalBatches += batches
		logEvent = logEvent.Uint64(u.Name(), requests)
	}

	logEvent.
		Uint64("totalRequests", totalRequests).
		Uint64("totalBatches", totalBatches).
		Msg("request statistics")
}
