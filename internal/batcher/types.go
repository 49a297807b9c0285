package batcher

import (
	"context"
	"encoding/json"
	"time"

	"b24gofer/internal/rest"
)

// item is a single standalone call waiting for its batch
type item struct {
	ctx      context.Context
	method   string
	params   rest.Params
	timeout  time.Duration
	respChan chan outcome // buffered, receives exactly one outcome
}

// outcome is what the caller of a coalesced call receives
type outcome struct {
	raw json.RawMessage
	err error
}

// bucket accumulates calls until maxSize is reached or the wait timer fires
type bucket struct {
	items []*item
	timer *time.Timer
	taken bool // set once the items have been handed to a flush
}

// batchTimeout picks the longest per call timeout; any call without a
// timeout lifts it for the whole batch
func batchTimeout(items []*item) time.Duration {
	var longest time.Duration
	for _, it := range items {
		if it.timeout <= 0 {
			return 0
		}
		if it.timeout > longest {
			longest = it.timeout
		}
	}
	return longest
}
