package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/rs/zerolog"
)

// batch reply collections, all required
const (
	fieldResult      = "result"
	fieldResultError = "result_error"
	fieldResultTotal = "result_total"
	fieldResultNext  = "result_next"
	fieldResultTime  = "result_time"
)

var batchFields = []string{fieldResult, fieldResultError, fieldResultTotal, fieldResultNext, fieldResultTime}

// BatchRequest bundles up to MaxBatchSize Requests into one round trip and
// settles each Request from the composite reply
type BatchRequest struct {
	transport Transport
	set       *Set
	opts      options
	logger    zerolog.Logger

	mu       sync.Mutex
	executed bool
	result   *BatchResult
	time     TimeRecord
}

// NewBatchRequest creates a BatchRequest. Nothing is validated or sent until
// Result or Time is called.
func NewBatchRequest(t Transport, set *Set, opts ...Option) *BatchRequest {
	o := newOptions(opts)
	return &BatchRequest{
		transport: t,
		set:       set,
		opts:      o,
		logger:    o.logger.With().Str("component", "batch").Logger(),
	}
}

// Set returns the batch input
func (b *BatchRequest) Set() *Set {
	return b.set
}

// Halt reports whether the batch stops at the first failing command
func (b *BatchRequest) Halt() bool {
	return b.opts.halt
}

// Result executes the batch if needed and returns the decoded reply.
// Only a successful reply is memoized; after a failure the next access
// sends the batch again.
func (b *BatchRequest) Result(ctx context.Context) (*BatchResult, error) {
	result, _, err := b.outcome(ctx)
	return result, err
}

// Time executes the batch if needed and returns the timing of the batch call
func (b *BatchRequest) Time(ctx context.Context) (TimeRecord, error) {
	_, t, err := b.outcome(ctx)
	return t, err
}

func (b *BatchRequest) outcome(ctx context.Context) (*BatchResult, TimeRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.executed {
		return b.result, b.time, nil
	}

	result, t, err := b.execute(ctx)
	if err != nil {
		return nil, TimeRecord{}, err
	}
	b.result, b.time = result, t
	b.executed = true
	return result, t, nil
}

// Executed reports whether a successful outcome has been memoized
func (b *BatchRequest) Executed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.executed
}

// String renders the batch commands without executing them
func (b *BatchRequest) String() string {
	return fmt.Sprintf("batch(halt=%t, %d commands)", b.opts.halt, b.set.Len())
}

func (b *BatchRequest) execute(ctx context.Context) (*BatchResult, TimeRecord, error) {
	if b.set.Len() > b.opts.maxSize {
		return nil, TimeRecord{}, &CapacityError{Size: b.set.Len(), Max: b.opts.maxSize}
	}
	if err := validateSet(b.set); err != nil {
		return nil, TimeRecord{}, err
	}
	if b.set.Len() == 0 {
		return newBatchResult(b.set), TimeRecord{}, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, TimeRecord{}, err
	}

	cmds := b.set.commands()

	b.logger.Debug().
		Int("commands", cmds.Len()).
		Bool("halt", b.opts.halt).
		Msg("executing batch")

	data, err := b.transport.CallBatch(ctx, cmds, b.opts.halt, b.opts.timeout)
	if err != nil {
		return nil, TimeRecord{}, err
	}

	result, t, err := decodeBatchReply(b.set, data)
	if err != nil {
		b.logger.Error().Err(err).Msg("failed to decode batch reply")
		return nil, TimeRecord{}, err
	}

	settled := demultiplex(b.set, result)

	b.logger.Debug().
		Int("commands", cmds.Len()).
		Int("executed", result.Len()).
		Int("failed", len(result.Failed())).
		Int("settled", settled).
		Msg("batch completed")

	return result, t, nil
}

func validateSet(set *Set) error {
	if set == nil {
		return fmt.Errorf("batch input is nil")
	}
	for _, e := range set.entries {
		if e.Request == nil {
			return fmt.Errorf("batch entry '%s': request is nil", e.Key)
		}
	}
	return nil
}

// demultiplex transplants each executed key's outcome into its Request.
// Returns the number of Requests that took the batch outcome.
func demultiplex(set *Set, result *BatchResult) int {
	settled := 0
	for _, e := range set.entries {
		if !result.Executed(e.Key) {
			continue
		}
		resp, err := result.Response(e.Key)
		if e.Request.settle(resp, err) {
			settled++
		}
	}
	return settled
}

// decodeBatchReply parses {result: {result, result_error, result_total,
// result_next, result_time}, time} and re-keys every collection onto the
// set's keys
func decodeBatchReply(set *Set, data json.RawMessage) (*BatchResult, TimeRecord, error) {
	outer, err := parseEnvelope(BatchMethod, data)
	if err != nil {
		return nil, TimeRecord{}, err
	}

	fields, err := decodeObject(outer.Result)
	if err != nil {
		return nil, TimeRecord{}, &MalformedEnvelopeError{Method: BatchMethod, Field: "result", Err: err}
	}

	keys := set.Keys()
	collections := make(map[string]map[string]json.RawMessage, len(batchFields))
	for _, name := range batchFields {
		raw, ok := fields[name]
		if !ok {
			return nil, TimeRecord{}, &MalformedEnvelopeError{Method: BatchMethod, Field: name}
		}
		collection, err := decodeCollection(raw, keys, set.positional)
		if err != nil {
			return nil, TimeRecord{}, &MalformedEnvelopeError{Method: BatchMethod, Field: name, Err: err}
		}
		collections[name] = collection
	}

	result := newBatchResult(set)
	for _, key := range keys {
		if !presentIn(key, collections) {
			continue
		}

		var cmdErr *CommandError
		if raw, ok := collections[fieldResultError][key]; ok {
			cmdErr = parseCommandError(key, raw)
		}

		total, err := decodeInt(collections[fieldResultTotal][key])
		if err != nil {
			return nil, TimeRecord{}, &MalformedEnvelopeError{Method: BatchMethod, Field: fieldResultTotal, Err: err}
		}
		next, err := decodeInt(collections[fieldResultNext][key])
		if err != nil {
			return nil, TimeRecord{}, &MalformedEnvelopeError{Method: BatchMethod, Field: fieldResultNext, Err: err}
		}

		var t TimeRecord
		if raw, ok := collections[fieldResultTime][key]; ok {
			if err := json.Unmarshal(raw, &t); err != nil {
				return nil, TimeRecord{}, &MalformedEnvelopeError{Method: BatchMethod, Field: fieldResultTime, Err: err}
			}
		}

		result.add(key, collections[fieldResult][key], cmdErr, total, next, t)
	}

	return result, outer.Time, nil
}

func presentIn(key string, collections map[string]map[string]json.RawMessage) bool {
	for _, c := range collections {
		if _, ok := c[key]; ok {
			return true
		}
	}
	return false
}

// decodeCollection maps a reply collection onto the set's keys, dropping
// null entries. The provider sends an object keyed like the command list,
// or an array for positional lists; an empty collection may arrive as []
// regardless of the input shape.
func decodeCollection(raw json.RawMessage, keys []string, positional bool) (map[string]json.RawMessage, error) {
	collection := make(map[string]json.RawMessage)
	trimmed := bytes.TrimSpace(raw)
	if isNull(trimmed) {
		return collection, nil
	}

	switch trimmed[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, err
		}
		for i, item := range items {
			if i >= len(keys) || isNull(item) {
				continue
			}
			collection[keys[i]] = item
		}
	case '{':
		var items map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, err
		}
		known := make(map[string]bool, len(keys))
		for _, k := range keys {
			known[k] = true
		}
		for wireKey, item := range items {
			if isNull(item) {
				continue
			}
			key := wireKey
			if positional {
				i, err := strconv.Atoi(wireKey)
				if err != nil || i < 0 || i >= len(keys) {
					continue
				}
				key = keys[i]
			}
			if known[key] {
				collection[key] = item
			}
		}
	default:
		return nil, fmt.Errorf("expected object or array, got %s", string(trimmed))
	}

	return collection, nil
}
