package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"b24gofer/internal/config"
	"b24gofer/internal/rest"
)

// Transport answers cacheable standalone calls from a Cache and forwards
// everything else to the wrapped transport. Batch calls are never cached.
type Transport struct {
	next   rest.Transport
	cache  Cache
	policy *Policy
	scope  string
	logger zerolog.Logger
}

var _ rest.Transport = (*Transport)(nil)

// NewTransport wraps next with the given cache; scope separates portals sharing one cache
func NewTransport(next rest.Transport, c Cache, policy *Policy, scope string, logger zerolog.Logger) *Transport {
	if policy == nil {
		policy = NewPolicy(nil)
	}
	return &Transport{
		next:   next,
		cache:  c,
		policy: policy,
		scope:  scope,
		logger: logger.With().Str("component", "cache").Logger(),
	}
}

// Wrap returns next wrapped in a memory cache when the config enables one.
// The returned close function releases the cache and is never nil.
func Wrap(next rest.Transport, cfg *config.Config, logger zerolog.Logger) (rest.Transport, func(), error) {
	if !cfg.IsCacheEnabled() {
		return next, func() {}, nil
	}

	mc, err := NewMemoryCache(cfg.Cache.Size, cfg.Cache.GetTTLDuration())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create cache: %w", err)
	}

	scope := ""
	if len(cfg.Endpoints) > 0 {
		scope = cfg.Endpoints[0].URL
	}

	logger.Info().
		Int("size", cfg.Cache.Size).
		Dur("ttl", cfg.Cache.GetTTLDuration()).
		Strs("disabledMethods", cfg.Cache.DisabledMethods).
		Msg("reply cache enabled")

	t := NewTransport(next, mc, NewPolicy(cfg.Cache.DisabledMethods), scope, logger)
	closeFn := func() {
		hits, misses := mc.Stats()
		t.logger.Debug().
			Uint64("hits", hits).
			Uint64("misses", misses).
			Int("entries", mc.Len()).
			Msg("reply cache closed")
		mc.Close()
	}
	return t, closeFn, nil
}

// Call serves the call from the cache when possible
func (t *Transport) Call(ctx context.Context, method string, params rest.Params, timeout time.Duration) (json.RawMessage, error) {
	if !t.policy.IsCacheable(method, params) {
		return t.next.Call(ctx, method, params, timeout)
	}

	key := GenerateCacheKey(t.scope, method, params)
	if data, ok := t.cache.Get(key); ok {
		t.logger.Debug().Str("method", method).Msg("cache hit")
		return clone(data), nil
	}

	raw, err := t.next.Call(ctx, method, params, timeout)
	if err != nil {
		return nil, err
	}

	if isSuccessReply(raw) {
		t.cache.Set(key, clone(raw))
		t.logger.Debug().Str("method", method).Msg("cached reply")
	}

	return raw, nil
}

// CallBatch always goes to the wrapped transport
func (t *Transport) CallBatch(ctx context.Context, cmds rest.Commands, halt bool, timeout time.Duration) (json.RawMessage, error) {
	return t.next.CallBatch(ctx, cmds, halt, timeout)
}

// isSuccessReply reports whether raw is an envelope with a result and no error
func isSuccessReply(raw json.RawMessage) bool {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return false
	}
	if _, ok := fields["error"]; ok {
		return false
	}
	_, ok := fields["result"]
	return ok
}

func clone(data []byte) []byte {
	out := make([]byte, len(data))
	copy(out, data)
	return out
}
