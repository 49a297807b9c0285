package upstream

import (
	"time"

	"github.com/rs/zerolog"

	"b24gofer/internal/config"
)

// Pool holds the endpoints of one portal. The set is fixed at construction;
// only endpoint health changes afterwards.
type Pool struct {
	upstreams []*Upstream
	stats     *StatsReporter
	logger    zerolog.Logger
}

// NewPool creates a Pool from the configured endpoints
func NewPool(cfg *config.Config, logger zerolog.Logger) *Pool {
	poolLogger := logger.With().Str("component", "pool").Logger()

	upstreams := make([]*Upstream, 0, len(cfg.Endpoints))
	for _, epCfg := range cfg.Endpoints {
		upstreams = append(upstreams, NewUpstreamFromConfig(epCfg, cfg, poolLogger))
	}

	return NewPoolFromUpstreams(upstreams, cfg.GetStatsLogIntervalDuration(), poolLogger)
}

// NewPoolFromUpstreams creates a Pool over already built upstreams.
// A zero statsInterval disables periodic statistics logging.
func NewPoolFromUpstreams(upstreams []*Upstream, statsInterval time.Duration, logger zerolog.Logger) *Pool {
	return &Pool{
		upstreams: upstreams,
		stats:     NewStatsReporter(upstreams, statsInterval, logger),
		logger:    logger,
	}
}

// Start starts the statistics reporter
func (p *Pool) Start() {
	p.stats.Start()

	var main, fallback int
	for _, u := range p.upstreams {
		if u.IsMain() {
			main++
		} else {
			fallback++
		}
	}
	p.logger.Info().
		Int("main", main).
		Int("fallback", fallback).
		Msg("pool started")
}

// Stop stops the reporter and closes idle connections; no calls may follow
func (p *Pool) Stop() {
	p.stats.Stop()
	for _, u := range p.upstreams {
		u.Close()
	}
	p.logger.Info().Msg("pool stopped")
}

// Healthy returns the endpoints of a role that may take calls, in config order
func (p *Pool) Healthy(role Role) []*Upstream {
	result := make([]*Upstream, 0, len(p.upstreams))
	for _, u := range p.upstreams {
		if u.Role() == role && u.IsHealthy() {
			result = append(result, u)
		}
	}
	return result
}

// GetHealthyMain returns healthy main endpoints
func (p *Pool) GetHealthyMain() []*Upstream {
	return p.Healthy(RoleMain)
}

// GetHealthyFallback returns healthy fallback endpoints
func (p *Pool) GetHealthyFallback() []*Upstream {
	return p.Healthy(RoleFallback)
}
