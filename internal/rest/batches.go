package rest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// BatchesRequest runs an input set of any size as consecutive batches of at
// most MaxBatchSize commands and merges their replies in input order
type BatchesRequest struct {
	transport Transport
	set       *Set
	opts      options
	logger    zerolog.Logger

	mu       sync.Mutex
	executed bool
	result   *BatchResult
	time     TimeRecord

	// chunks are split once; done keeps the chunks that already ran so a
	// retry after a failure resumes at the first missing one
	chunks []*Set
	done   []*chunkOutcome

	calls atomic.Int32
}

// chunkOutcome is the memoized outcome of one chunk
type chunkOutcome struct {
	result *BatchResult
	time   TimeRecord
}

// NewBatchesRequest creates a BatchesRequest; nothing is sent until Result or Time is called
func NewBatchesRequest(t Transport, set *Set, opts ...Option) *BatchesRequest {
	o := newOptions(opts)
	return &BatchesRequest{
		transport: t,
		set:       set,
		opts:      o,
		logger:    o.logger,
	}
}

// Result executes every chunk if needed and returns the merged reply.
// A chunk error or cancellation is returned without being memoized; chunks
// that completed keep their outcome and are not sent again.
func (b *BatchesRequest) Result(ctx context.Context) (*BatchResult, error) {
	result, _, err := b.outcome(ctx)
	return result, err
}

// Time returns the span of the executed chunks: first start, last finish,
// summed durations
func (b *BatchesRequest) Time(ctx context.Context) (TimeRecord, error) {
	_, t, err := b.outcome(ctx)
	return t, err
}

func (b *BatchesRequest) outcome(ctx context.Context) (*BatchResult, TimeRecord, error) {
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
	b.chunks, b.done = nil, nil
	return result, t, nil
}

// Calls returns the number of batch calls issued so far
func (b *BatchesRequest) Calls() int {
	return int(b.calls.Load())
}

// Executed reports whether a successful outcome has been memoized
func (b *BatchesRequest) Executed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.executed
}

// String renders the orchestration without executing it
func (b *BatchesRequest) String() string {
	return fmt.Sprintf("batches(halt=%t, %d commands, chunk=%d)", b.opts.halt, b.set.Len(), b.opts.maxSize)
}

func (b *BatchesRequest) execute(ctx context.Context) (*BatchResult, TimeRecord, error) {
	if err := validateSet(b.set); err != nil {
		return nil, TimeRecord{}, err
	}

	merged := newBatchResult(b.set)
	if b.chunks == nil {
		b.chunks = b.set.Chunks(b.opts.maxSize)
		b.done = make([]*chunkOutcome, len(b.chunks))
	}
	chunks := b.chunks
	if len(chunks) == 0 {
		return merged, TimeRecord{}, nil
	}

	// chunk batches add their own component field
	logger := b.logger.With().Str("run", uuid.NewString()).Logger()

	logger.Debug().
		Int("commands", b.set.Len()).
		Int("chunks", len(chunks)).
		Int("resumed", countDone(b.done)).
		Bool("halt", b.opts.halt).
		Msg("executing batches")

	var outcomes []*chunkOutcome
	var err error
	if b.opts.halt || b.opts.concurrency <= 1 || len(chunks) == 1 {
		outcomes, err = b.runSequential(ctx, chunks, logger)
	} else {
		outcomes, err = b.runConcurrent(ctx, chunks, logger)
	}
	if err != nil {
		return nil, TimeRecord{}, err
	}

	times := make([]TimeRecord, 0, len(outcomes))
	for _, o := range outcomes {
		merged.merge(o.result)
		times = append(times, o.time)
	}

	logger.Debug().
		Int("commands", b.set.Len()).
		Int("executed", merged.Len()).
		Int("failed", len(merged.Failed())).
		Int("chunks", len(outcomes)).
		Int("calls", b.Calls()).
		Msg("batches completed")

	return merged, mergeTimes(times), nil
}

// runSequential runs chunks one after another, stopping after a chunk with
// failures when halt is set. Chunks already in done are not sent again.
func (b *BatchesRequest) runSequential(ctx context.Context, chunks []*Set, logger zerolog.Logger) ([]*chunkOutcome, error) {
	outcomes := make([]*chunkOutcome, 0, len(chunks))
	for i, chunk := range chunks {
		outcome := b.done[i]
		if outcome == nil {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			var err error
			outcome, err = b.runChunk(ctx, chunk, logger)
			if err != nil {
				logger.Warn().Err(err).Int("chunk", i).Msg("batch chunk failed")
				return nil, err
			}
			b.done[i] = outcome
		}
		outcomes = append(outcomes, outcome)

		if b.opts.halt && outcome.result.HasErrors() {
			logger.Info().
				Int("chunk", i).
				Int("skippedChunks", len(chunks)-i-1).
				Strs("failed", outcome.result.Failed()).
				Msg("batch halted")
			break
		}
	}
	return outcomes, nil
}

// runConcurrent runs up to concurrency missing chunks at once; outcomes keep
// chunk order
func (b *BatchesRequest) runConcurrent(ctx context.Context, chunks []*Set, logger zerolog.Logger) ([]*chunkOutcome, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.concurrency)
	for i, chunk := range chunks {
		if b.done[i] != nil {
			continue
		}
		i, chunk := i, chunk
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcome, err := b.runChunk(gctx, chunk, logger)
			if err != nil {
				logger.Warn().Err(err).Int("chunk", i).Msg("batch chunk failed")
				return err
			}
			b.done[i] = outcome
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return append([]*chunkOutcome(nil), b.done...), nil
}

func (b *BatchesRequest) runChunk(ctx context.Context, chunk *Set, logger zerolog.Logger) (*chunkOutcome, error) {
	br := NewBatchRequest(b.transport, chunk,
		WithHalt(b.opts.halt),
		WithTimeout(b.opts.timeout),
		WithMaxSize(b.opts.maxSize),
		WithLogger(logger),
	)

	b.calls.Add(1)
	result, t, err := br.outcome(ctx)
	if err != nil {
		return nil, err
	}
	return &chunkOutcome{result: result, time: t}, nil
}

func countDone(done []*chunkOutcome) int {
	n := 0
	for _, o := range done {
		if o != nil {
			n++
		}
	}
	return n
}
