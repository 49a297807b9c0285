package rest

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Request is a deferred single API call.
// It executes on first access to its result and memoizes the first
// successful outcome; a failed access leaves it unexecuted so the next one
// retries. A Request may also be settled by a batch that carried it.
type Request struct {
	transport Transport
	method    string
	params    Params
	timeout   time.Duration

	mu       sync.Mutex
	executed bool
	response *Response
	err      error
}

// NewRequest creates a Request. No network activity happens until
// Result, Time or Response is called.
func NewRequest(t Transport, method string, params Params, opts ...Option) *Request {
	o := newOptions(opts)
	return &Request{
		transport: t,
		method:    method,
		params:    params.Clone(),
		timeout:   o.timeout,
	}
}

// Method returns the method name
func (r *Request) Method() string {
	return r.method
}

// Params returns a copy of the parameters
func (r *Request) Params() Params {
	return r.params.Clone()
}

// Timeout returns the per call timeout, zero if unset
func (r *Request) Timeout() time.Duration {
	return r.timeout
}

// Response executes the request if needed and returns the memoized outcome
func (r *Request) Response(ctx context.Context) (*Response, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.executed {
		return r.response, r.err
	}

	resp, err := r.execute(ctx)
	if err != nil {
		return nil, err
	}
	r.response, r.err = resp, nil
	r.executed = true
	return resp, nil
}

// Result returns the call result
func (r *Request) Result(ctx context.Context) (json.RawMessage, error) {
	resp, err := r.Response(ctx)
	if err != nil {
		return nil, err
	}
	return resp.Result, nil
}

// Time returns the call timing metadata
func (r *Request) Time(ctx context.Context) (TimeRecord, error) {
	resp, err := r.Response(ctx)
	if err != nil {
		return TimeRecord{}, err
	}
	return resp.Time, nil
}

// Decode executes the request if needed and unmarshals the result into v
func (r *Request) Decode(ctx context.Context, v interface{}) error {
	resp, err := r.Response(ctx)
	if err != nil {
		return err
	}
	return resp.Decode(v)
}

// Executed reports whether an outcome has been memoized
func (r *Request) Executed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.executed
}

// Command renders the request as a batch sub-command
func (r *Request) Command() string {
	return BuildCommand(r.method, r.params)
}

// String renders the method and flattened params; it never executes the request
func (r *Request) String() string {
	return r.method + "(" + describeParams(r.params) + ")"
}

func (r *Request) execute(ctx context.Context) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := r.transport.Call(ctx, r.method, r.params, r.timeout)
	if err != nil {
		return nil, err
	}
	return parseEnvelope(r.method, data)
}

// settle memoizes an outcome produced elsewhere (a batch reply), a
// CommandError included. The first outcome wins; returns false if the
// request was already settled.
func (r *Request) settle(resp *Response, err error) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.executed {
		return false
	}
	r.response = resp
	r.err = err
	r.executed = true
	return true
}
