package balancer

import (
	"sync"

	"b24gofer/internal/upstream"
)

// WeightedRoundRobin spreads calls over endpoints in proportion to their
// weights using the smooth weighted round robin scheme: a heavy endpoint's
// turns are interleaved with the others instead of coming in runs.
type WeightedRoundRobin struct {
	provider UpstreamProvider
	mu       sync.Mutex
	current  map[string]int // running weight per endpoint name
}

// NewWeightedRoundRobin creates a new WeightedRoundRobin balancer
func NewWeightedRoundRobin(provider UpstreamProvider) *WeightedRoundRobin {
	return &WeightedRoundRobin{
		provider: provider,
		current:  make(map[string]int),
	}
}

// Next returns the next endpoint, skipping the names in exclude.
// Main endpoints are preferred; fallback ones are used only when no main endpoint is left.
func (wrr *WeightedRoundRobin) Next(exclude map[string]bool) *upstream.Upstream {
	candidates := available(wrr.provider, exclude)
	if len(candidates) == 0 {
		return nil
	}
	if len(candidates) == 1 {
		return candidates[0]
	}

	wrr.mu.Lock()
	defer wrr.mu.Unlock()

	var best *upstream.Upstream
	total := 0
	for _, u := range candidates {
		wrr.current[u.Name()] += u.Weight()
		total += u.Weight()
		if best == nil || wrr.current[u.Name()] > wrr.current[best.Name()] {
			best = u
		}
	}
	wrr.current[best.Name()] -= total
	return best
}

// available returns main endpoints not in exclude, or fallback ones if none are left
func available(provider UpstreamProvider, exclude map[string]bool) []*upstream.Upstream {
	if main := withoutExcluded(provider.GetHealthyMain(), exclude); len(main) > 0 {
		return main
	}
	return withoutExcluded(provider.GetHealthyFallback(), exclude)
}

func withoutExcluded(upstreams []*upstream.Upstream, exclude map[string]bool) []*upstream.Upstream {
	if len(exclude) == 0 {
		return upstreams
	}

	result := make([]*upstream.Upstream, 0, len(upstreams))
	for _, u := range upstreams {
		if !exclude[u.Name()] {
			result = append(result, u)
		}
	}
	return result
}
