package batcher

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"b24gofer/internal/config"
	"b24gofer/internal/rest"
)

// Aggregator is a rest.Transport that coalesces concurrent Calls into
// batch calls on the next transport. CallBatch passes through.
type Aggregator struct {
	next    rest.Transport
	maxSize int
	maxWait time.Duration
	logger  zerolog.Logger

	mu      sync.Mutex
	current *bucket
	closed  bool
	wg      sync.WaitGroup
}

var _ rest.Transport = (*Aggregator)(nil)

// NewAggregator creates a new call aggregator
func NewAggregator(next rest.Transport, maxSize int, maxWait time.Duration, logger zerolog.Logger) *Aggregator {
	if maxSize <= 0 || maxSize > rest.MaxBatchSize {
		maxSize = rest.MaxBatchSize
	}
	return &Aggregator{
		next:    next,
		maxSize: maxSize,
		maxWait: maxWait,
		logger:  logger.With().Str("component", "batcher").Logger(),
	}
}

// Wrap puts an Aggregator in front of next when batching is enabled.
// The returned func flushes pending calls and must be called on shutdown.
func Wrap(next rest.Transport, cfg *config.Config, logger zerolog.Logger) (rest.Transport, func()) {
	if !cfg.IsBatchingEnabled() {
		return next, func() {}
	}
	a := NewAggregator(next, cfg.Batching.MaxSize, cfg.Batching.GetMaxWaitDuration(), logger)
	return a, a.Close
}

// Call queues the call for the current bucket and waits for its outcome
func (a *Aggregator) Call(ctx context.Context, method string, params rest.Params, timeout time.Duration) (json.RawMessage, error) {
	if method == rest.BatchMethod {
		return a.next.Call(ctx, method, params, timeout)
	}

	it := &item{
		ctx:      ctx,
		method:   method,
		params:   params,
		timeout:  timeout,
		respChan: make(chan outcome, 1),
	}
	if !a.add(it) {
		return a.next.Call(ctx, method, params, timeout)
	}

	select {
	case out := <-it.respChan:
		return out.raw, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// CallBatch forwards explicit batches unchanged
func (a *Aggregator) CallBatch(ctx context.Context, cmds rest.Commands, halt bool, timeout time.Duration) (json.RawMessage, error) {
	return a.next.CallBatch(ctx, cmds, halt, timeout)
}

// Close stops accepting calls, flushes the pending bucket and waits for
// in-flight batches
func (a *Aggregator) Close() {
	a.mu.Lock()
	a.closed = true
	b := a.current
	a.current = nil
	a.mu.Unlock()

	if b != nil {
		a.flush(b)
	}
	a.wg.Wait()
	a.logger.Debug().Msg("batch aggregator closed")
}

// add appends the item to the current bucket; returns false once closed
func (a *Aggregator) add(it *item) bool {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return false
	}

	b := a.current
	if b == nil {
		b = &bucket{}
		a.current = b
		a.wg.Add(1)
		b.timer = time.AfterFunc(a.maxWait, func() {
			a.flush(b)
		})
	}
	b.items = append(b.items, it)

	full := len(b.items) >= a.maxSize
	if full {
		a.current = nil
	}
	a.mu.Unlock()

	if full {
		go a.flush(b)
	}
	return true
}

// take detaches the bucket and hands out its items exactly once
func (a *Aggregator) take(b *bucket) []*item {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.current == b {
		a.current = nil
	}
	if b.taken {
		return nil
	}
	b.taken = true
	b.timer.Stop()
	return b.items
}

// flush executes the bucket and distributes results
func (a *Aggregator) flush(b *bucket) {
	items := a.take(b)
	if items == nil {
		return
	}
	defer a.wg.Done()

	// a lone call goes out as itself
	if len(items) == 1 {
		it := items[0]
		raw, err := a.next.Call(it.ctx, it.method, it.params, it.timeout)
		it.respChan <- outcome{raw: raw, err: err}
		return
	}

	reqs := make([]*rest.Request, len(items))
	for i, it := range items {
		reqs[i] = rest.NewRequest(a.next, it.method, it.params)
	}

	a.logger.Debug().
		Int("calls", len(items)).
		Msg("executing coalesced batch")

	// shared by every caller in the bucket, so detached from their contexts
	batch := rest.NewBatchRequest(a.next, rest.Seq(reqs...),
		rest.WithTimeout(batchTimeout(items)),
		rest.WithLogger(a.logger),
	)
	res, err := batch.Result(context.Background())
	if err != nil {
		a.logger.Debug().Err(err).Int("calls", len(items)).Msg("coalesced batch failed")
		for _, it := range items {
			it.respChan <- outcome{err: err}
		}
		return
	}

	for i, it := range items {
		resp, err := res.Response(strconv.Itoa(i))
		if err != nil {
			it.respChan <- outcome{err: relabel(err, it.method)}
			continue
		}
		raw, err := json.Marshal(resp)
		it.respChan <- outcome{raw: raw, err: err}
	}

	a.logger.Debug().
		Int("calls", len(items)).
		Int("failed", len(res.Failed())).
		Msg("coalesced batch completed")
}

// relabel replaces the batch position in a command error with the method name
func relabel(err error, method string) error {
	var cmdErr *rest.CommandError
	if !errors.As(err, &cmdErr) {
		return err
	}
	labeled := *cmdErr
	labeled.Key = method
	return &labeled
}
