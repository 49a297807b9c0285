package upstream

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"b24gofer/internal/config"
)

// Role represents the upstream role
type Role string

const (
	RoleMain     Role = "main"
	RoleFallback Role = "fallback"
)

// RoleFromConfig converts config.Role to upstream.Role
func RoleFromConfig(r config.Role) Role {
	switch r {
	case config.RoleFallback:
		return RoleFallback
	default:
		return RoleMain
	}
}

// Status holds the counters of an upstream
type Status struct {
	healthy     atomic.Bool
	requests    atomic.Uint64
	batches     atomic.Uint64
	failures    atomic.Uint64
	lastFailure atomic.Int64 // unix nanos
}

// NewStatus creates a new Status
func NewStatus() *Status {
	s := &Status{}
	s.healthy.Store(true)
	return s
}

// IsHealthy returns the health status
func (s *Status) IsHealthy() bool {
	return s.healthy.Load()
}

// SetHealthy sets the health status
func (s *Status) SetHealthy(healthy bool) {
	s.healthy.Store(healthy)
}

// IncrementRequestCount increments the request counter
func (s *Status) IncrementRequestCount() {
	s.requests.Add(1)
}

// SwapRequestCount returns the current request count and resets it to zero
func (s *Status) SwapRequestCount() uint64 {
	return s.requests.Swap(0)
}

// IncrementBatchCount increments the batch call counter
func (s *Status) IncrementBatchCount() {
	s.batches.Add(1)
}

// SwapBatchCount returns the current batch count and resets it to zero
func (s *Status) SwapBatchCount() uint64 {
	return s.batches.Swap(0)
}

// RecordFailure counts a failed call
func (s *Status) RecordFailure() {
	s.failures.Add(1)
	s.lastFailure.Store(time.Now().UnixNano())
}

// GetFailureCount returns the number of failed calls
func (s *Status) GetFailureCount() uint64 {
	return s.failures.Load()
}

// GetLastFailureTime returns the time of the last failure, zero if none
func (s *Status) GetLastFailureTime() time.Time {
	ns := s.lastFailure.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// APIError is an error envelope returned by the provider:
// {"error": "QUERY_LIMIT_EXCEEDED", "error_description": "Too many requests"}
type APIError struct {
	StatusCode  int    `json:"-"`
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Description)
	}
	return e.Code
}

// IsRetryable reports whether the same call may succeed later.
// Only throttling and transient server faults qualify; auth, permission and
// argument errors do not.
func (e *APIError) IsRetryable() bool {
	switch strings.ToUpper(e.Code) {
	case "QUERY_LIMIT_EXCEEDED", "INTERNAL_SERVER_ERROR", "OPERATION_TIME_LIMIT":
		return true
	}
	return e.StatusCode == 429
}

// HTTPError is a non-200 reply without a provider error envelope
type HTTPError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface
func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP error %d: %s", e.StatusCode, e.Body)
}

// IsRetryable reports whether the status is a throttling or server fault
func (e *HTTPError) IsRetryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}
