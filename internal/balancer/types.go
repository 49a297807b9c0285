package balancer

import "b24gofer/internal/upstream"

// Selector picks the next upstream, skipping the names in exclude.
// Returns nil when nothing is left.
type Selector interface {
	Next(exclude map[string]bool) *upstream.Upstream
}

// UpstreamProvider provides access to upstreams
type UpstreamProvider interface {
	// GetHealthyMain returns healthy main upstreams
	GetHealthyMain() []*upstream.Upstream

	// GetHealthyFallback returns healthy fallback upstreams
	GetHealthyFallback() []*upstream.Upstream
}
