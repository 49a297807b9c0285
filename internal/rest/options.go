package rest

import (
	"time"

	"github.com/rs/zerolog"
)

// Option configures a Request, BatchRequest or BatchesRequest
type Option func(*options)

type options struct {
	timeout     time.Duration
	halt        bool
	maxSize     int
	concurrency int
	logger      zerolog.Logger
}

func newOptions(opts []Option) options {
	o := options{
		maxSize:     MaxBatchSize,
		concurrency: 1,
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxSize <= 0 {
		o.maxSize = MaxBatchSize
	}
	if o.concurrency <= 0 {
		o.concurrency = 1
	}
	return o
}

// WithTimeout sets the per network call timeout; zero leaves the transport default
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithHalt makes the provider stop a batch at the first failing command
func WithHalt(halt bool) Option {
	return func(o *options) {
		o.halt = halt
	}
}

// WithMaxSize overrides the batch ceiling. For BatchesRequest it is the chunk size.
func WithMaxSize(n int) Option {
	return func(o *options) {
		o.maxSize = n
	}
}

// WithConcurrency lets a BatchesRequest run up to n chunks at once when halt is off
func WithConcurrency(n int) Option {
	return func(o *options) {
		o.concurrency = n
	}
}

// WithLogger sets the logger used for batch diagnostics
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}
