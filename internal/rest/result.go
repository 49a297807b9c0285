package rest

import (
	"encoding/json"
)

// BatchResult is the decoded reply of a batch: five parallel collections
// holding exactly the executed keys. Keys missing from all of them were
// not executed.
type BatchResult struct {
	positional bool
	inputKeys  []string
	keys       []string

	Result      map[string]json.RawMessage
	ResultError map[string]*CommandError
	ResultTotal map[string]*int
	ResultNext  map[string]*int
	ResultTime  map[string]TimeRecord
}

func newBatchResult(set *Set) *BatchResult {
	return &BatchResult{
		positional:  set.positional,
		inputKeys:   set.Keys(),
		keys:        make([]string, 0, set.Len()),
		Result:      make(map[string]json.RawMessage),
		ResultError: make(map[string]*CommandError),
		ResultTotal: make(map[string]*int),
		ResultNext:  make(map[string]*int),
		ResultTime:  make(map[string]TimeRecord),
	}
}

// Positional reports whether keys are decimal positions
func (r *BatchResult) Positional() bool {
	return r.positional
}

// InputKeys returns every key of the batch input in order
func (r *BatchResult) InputKeys() []string {
	keys := make([]string, len(r.inputKeys))
	copy(keys, r.inputKeys)
	return keys
}

// Keys returns the executed keys in input order
func (r *BatchResult) Keys() []string {
	keys := make([]string, len(r.keys))
	copy(keys, r.keys)
	return keys
}

// Len returns the number of executed keys
func (r *BatchResult) Len() int {
	return len(r.keys)
}

// Executed reports whether the provider ran the command under key
func (r *BatchResult) Executed(key string) bool {
	_, ok := r.ResultTime[key]
	return ok
}

// Failed returns the executed keys that reported an error, in order
func (r *BatchResult) Failed() []string {
	var failed []string
	for _, key := range r.keys {
		if r.ResultError[key] != nil {
			failed = append(failed, key)
		}
	}
	return failed
}

// HasErrors reports whether any executed command failed
func (r *BatchResult) HasErrors() bool {
	for _, key := range r.keys {
		if r.ResultError[key] != nil {
			return true
		}
	}
	return false
}

// Get returns the value for key, its *CommandError, ErrNotExecuted for a
// command skipped after a halt, or ErrUnknownKey
func (r *BatchResult) Get(key string) (json.RawMessage, error) {
	if !r.Executed(key) {
		if !r.hasInputKey(key) {
			return nil, ErrUnknownKey
		}
		return nil, ErrNotExecuted
	}
	if cmdErr := r.ResultError[key]; cmdErr != nil {
		return nil, cmdErr
	}
	return r.Result[key], nil
}

// Response returns the per key outcome as a Response
func (r *BatchResult) Response(key string) (*Response, error) {
	result, err := r.Get(key)
	if err != nil {
		return nil, err
	}
	return &Response{
		Result: result,
		Time:   r.ResultTime[key],
		Total:  r.ResultTotal[key],
		Next:   r.ResultNext[key],
	}, nil
}

// Decode unmarshals the value for key into v
func (r *BatchResult) Decode(key string, v interface{}) error {
	resp, err := r.Response(key)
	if err != nil {
		return err
	}
	return resp.Decode(v)
}

// Values returns the {key: value_or_error} view in input order.
// Keys that were not executed map to ErrNotExecuted.
func (r *BatchResult) Values() []KeyedValue {
	values := make([]KeyedValue, len(r.inputKeys))
	for i, key := range r.inputKeys {
		result, err := r.Get(key)
		values[i] = KeyedValue{Key: key, Result: result, Err: err}
	}
	return values
}

// KeyedValue is one entry of BatchResult.Values
type KeyedValue struct {
	Key    string
	Result json.RawMessage
	Err    error
}

func (r *BatchResult) hasInputKey(key string) bool {
	for _, k := range r.inputKeys {
		if k == key {
			return true
		}
	}
	return false
}

// add records one executed key
func (r *BatchResult) add(key string, result json.RawMessage, cmdErr *CommandError, total, next *int, t TimeRecord) {
	r.keys = append(r.keys, key)
	r.Result[key] = result
	r.ResultError[key] = cmdErr
	r.ResultTotal[key] = total
	r.ResultNext[key] = next
	r.ResultTime[key] = t
}

// merge appends another result whose keys are disjoint from r's
func (r *BatchResult) merge(other *BatchResult) {
	for _, key := range other.keys {
		r.add(key, other.Result[key], other.ResultError[key], other.ResultTotal[key], other.ResultNext[key], other.ResultTime[key])
	}
}
