package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestBatchesRequest_Chunking(t *testing.T) {
	transport := &fakeTransport{}
	requests := newRequests(transport, "crm.deal.get", 120)

	batches := NewBatchesRequest(transport, Seq(requests...))
	result, err := batches.Result(context.Background())
	if err != nil {
		t.Fatalf("Result: %v", err)
	}

	sizes := transport.batchSizes()
	if fmt.Sprint(sizes) != "[50 50 20]" {
		t.Errorf("batch sizes = %v, want [50 50 20]", sizes)
	}
	if batches.Calls() != 3 {
		t.Errorf("Calls() = %d, want 3", batches.Calls())
	}
	if result.Len() != 120 {
		t.Fatalf("merged entries = %d, want 120", result.Len())
	}

	for i, key := range result.Keys() {
		if key != strconv.Itoa(i) {
			t.Fatalf("key[%d] = %s, want original order", i, key)
		}
		var v map[string]string
		if err := result.Decode(key, &v); err != nil {
			t.Fatalf("Decode(%s): %v", key, err)
		}
		if want := fmt.Sprintf("crm.deal.get?id=%d", i); v["cmd"] != want {
			t.Fatalf("entry %d = %s, want %s", i, v["cmd"], want)
		}
	}

	// every request was settled by its chunk
	for i, r := range requests {
		if !r.Executed() {
			t.Fatalf("request %d not settled", i)
		}
	}
	if transport.callCount() != 0 {
		t.Errorf("single calls = %d, want 0", transport.callCount())
	}
}

func TestBatchesRequest_KeyedChunks(t *testing.T) {
	transport := &fakeTransport{}
	entries := make([]Entry, 75)
	for i := range entries {
		key := fmt.Sprintf("deal_%03d", i)
		entries[i] = Entry{Key: key, Request: NewRequest(transport, "crm.deal.get", NewParams("id", i))}
	}
	set, err := Keyed(entries...)
	if err != nil {
		t.Fatalf("Keyed: %v", err)
	}

	result, err := NewBatchesRequest(transport, set).Result(context.Background())
	if err != nil {
		t.Fatalf("Result: %v", err)
	}

	if got := transport.batches[1].cmds.Keys()[0]; got != "deal_050" {
		t.Errorf("second chunk starts with %s, want deal_050", got)
	}
	keys := result.Keys()
	if len(keys) != 75 || keys[0] != "deal_000" || keys[74] != "deal_074" {
		t.Errorf("merged keys = %d [%s..%s]", len(keys), keys[0], keys[len(keys)-1])
	}
	for _, collection := range [][]string{keysOf(result.Result), keysOf(result.ResultError), keysOf(result.ResultTotal), keysOf(result.ResultNext), keysOf(result.ResultTime)} {
		if len(collection) != 75 {
			t.Errorf("collection size = %d, want 75", len(collection))
		}
	}
}

func TestBatchesRequest_HaltStopsLaterChunks(t *testing.T) {
	transport := &fakeTransport{
		onBatch: echoBatch(func(command string) bool {
			return strings.HasSuffix(command, "id=60")
		}),
	}
	requests := newRequests(transport, "crm.deal.get", 120)

	result, err := NewBatchesRequest(transport, Seq(requests...), WithHalt(true)).Result(context.Background())
	if err != nil {
		t.Fatalf("Result: %v", err)
	}

	if got := transport.batchCount(); got != 2 {
		t.Errorf("batch calls = %d, want 2", got)
	}
	if result.Len() != 61 {
		t.Errorf("executed = %d, want 61", result.Len())
	}
	if _, err := result.Get("59"); err != nil {
		t.Errorf("entry 59: %v", err)
	}
	var cmdErr *CommandError
	if _, err := result.Get("60"); !errors.As(err, &cmdErr) {
		t.Errorf("entry 60 err = %v, want CommandError", err)
	}
	for _, key := range []string{"61", "99", "100", "119"} {
		if _, err := result.Get(key); !errors.Is(err, ErrNotExecuted) {
			t.Errorf("entry %s err = %v, want ErrNotExecuted", key, err)
		}
	}
	if requests[110].Executed() {
		t.Error("request in an unexecuted chunk was settled")
	}
}

func TestBatchesRequest_NoHaltRunsEveryChunk(t *testing.T) {
	transport := &fakeTransport{
		onBatch: echoBatch(func(command string) bool {
			return strings.HasSuffix(command, "id=3")
		}),
	}

	result, err := NewBatchesRequest(transport, Seq(newRequests(transport, "crm.deal.get", 120)...)).Result(context.Background())
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if got := transport.batchCount(); got != 3 {
		t.Errorf("batch calls = %d, want 3", got)
	}
	if result.Len() != 120 {
		t.Errorf("executed = %d, want 120", result.Len())
	}
	if failed := result.Failed(); len(failed) != 1 || failed[0] != "3" {
		t.Errorf("failed = %v, want [3]", failed)
	}
}

func TestBatchesRequest_Empty(t *testing.T) {
	transport := &fakeTransport{}
	batches := NewBatchesRequest(transport, Seq())

	result, err := batches.Result(context.Background())
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if result.Len() != 0 || len(result.Result) != 0 || len(result.ResultTime) != 0 {
		t.Errorf("result not empty: %d", result.Len())
	}
	if transport.batchCount() != 0 || transport.callCount() != 0 {
		t.Error("empty input made network calls")
	}
	tm, err := batches.Time(context.Background())
	if err != nil || !tm.IsZero() {
		t.Errorf("Time = %+v, %v", tm, err)
	}
}

func TestBatchesRequest_Concurrent(t *testing.T) {
	transport := &fakeTransport{}
	requests := newRequests(transport, "user.get", 230)

	result, err := NewBatchesRequest(transport, Seq(requests...),
		WithConcurrency(4),
		WithLogger(zerolog.Nop()),
	).Result(context.Background())
	if err != nil {
		t.Fatalf("Result: %v", err)
	}

	if got := transport.batchCount(); got != 5 {
		t.Errorf("batch calls = %d, want 5", got)
	}
	for i, key := range result.Keys() {
		if key != strconv.Itoa(i) {
			t.Fatalf("key[%d] = %s, merge lost order", i, key)
		}
	}
	if result.Len() != 230 {
		t.Errorf("executed = %d, want 230", result.Len())
	}
}

func TestBatchesRequest_ChunkErrorStops(t *testing.T) {
	transportErr := errors.New("HTTP error 503")
	transport := &fakeTransport{}
	transport.onBatch = func(cmds Commands, halt bool) (json.RawMessage, error) {
		if transport.batchCount() == 2 {
			return nil, transportErr
		}
		return echoBatch(nil)(cmds, halt)
	}
	requests := newRequests(transport, "user.get", 150)

	_, err := NewBatchesRequest(transport, Seq(requests...)).Result(context.Background())
	if !errors.Is(err, transportErr) {
		t.Fatalf("err = %v, want transport error", err)
	}
	if got := transport.batchCount(); got != 2 {
		t.Errorf("batch calls = %d, want 2", got)
	}
	if !requests[0].Executed() {
		t.Error("first chunk requests lost their outcome")
	}
	if requests[60].Executed() {
		t.Error("failed chunk settled its requests")
	}
}

func TestBatchesRequest_RetryResumesAfterChunkError(t *testing.T) {
	transport := &fakeTransport{}
	transport.onBatch = func(cmds Commands, halt bool) (json.RawMessage, error) {
		if transport.batchCount() == 2 {
			return nil, errors.New("HTTP error 503")
		}
		return echoBatch(nil)(cmds, halt)
	}
	requests := newRequests(transport, "user.get", 150)
	batches := NewBatchesRequest(transport, Seq(requests...))

	if _, err := batches.Result(context.Background()); err == nil {
		t.Fatal("first access succeeded, want chunk error")
	}
	if batches.Executed() {
		t.Fatal("failed run memoized an outcome")
	}

	result, err := batches.Result(context.Background())
	if err != nil {
		t.Fatalf("Result after chunk error: %v", err)
	}
	if result.Len() != 150 {
		t.Errorf("executed = %d, want 150", result.Len())
	}
	// chunk 1 once, chunk 2 twice, chunk 3 once
	if got := transport.batchCount(); got != 4 {
		t.Errorf("batch calls = %d, want 4", got)
	}
	if got := batches.Calls(); got != 4 {
		t.Errorf("Calls() = %d, want 4", got)
	}
	if _, err := result.Get("0"); err != nil {
		t.Errorf("first chunk entry lost: %v", err)
	}
}

func TestBatchesRequest_CancelBetweenChunksKeepsCompleted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	transport := &fakeTransport{}
	transport.onBatch = func(cmds Commands, halt bool) (json.RawMessage, error) {
		cancel()
		return echoBatch(nil)(cmds, halt)
	}
	batches := NewBatchesRequest(transport, Seq(newRequests(transport, "user.get", 120)...))

	if _, err := batches.Result(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if got := transport.batchCount(); got != 1 {
		t.Fatalf("batch calls before retry = %d, want 1", got)
	}

	result, err := batches.Result(context.Background())
	if err != nil {
		t.Fatalf("Result after cancel: %v", err)
	}
	if result.Len() != 120 {
		t.Errorf("executed = %d, want 120", result.Len())
	}
	if got := transport.batchSizes(); len(got) != 3 || got[0] != 50 || got[1] != 50 || got[2] != 20 {
		t.Errorf("batch sizes = %v, want [50 50 20]", got)
	}
}

func TestBatchesRequest_ContextCancelled(t *testing.T) {
	transport := &fakeTransport{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewBatchesRequest(transport, Seq(newRequests(transport, "user.get", 10)...)).Result(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if transport.batchCount() != 0 {
		t.Error("cancelled context still issued a batch")
	}
}

func TestBatchesRequest_TimeSpansChunks(t *testing.T) {
	transport := &fakeTransport{}
	batches := NewBatchesRequest(transport, Seq(newRequests(transport, "user.get", 101)...))

	tm, err := batches.Time(context.Background())
	if err != nil {
		t.Fatalf("Time: %v", err)
	}
	if tm.Start != testTime.Start || tm.Finish != testTime.Finish {
		t.Errorf("span = %v..%v", tm.Start, tm.Finish)
	}
	if want := 3 * testTime.Duration; tm.Duration < want-1e-9 || tm.Duration > want+1e-9 {
		t.Errorf("duration = %v, want %v", tm.Duration, want)
	}
	if _, err := batches.Result(context.Background()); err != nil {
		t.Fatalf("Result: %v", err)
	}
	if transport.batchCount() != 3 {
		t.Errorf("batch calls = %d, want 3 (memoized)", transport.batchCount())
	}
}

func TestBatchesRequest_ChunkSizeOverride(t *testing.T) {
	transport := &fakeTransport{}
	if _, err := NewBatchesRequest(transport, Seq(newRequests(transport, "user.get", 25)...), WithMaxSize(10)).Result(context.Background()); err != nil {
		t.Fatalf("Result: %v", err)
	}
	if sizes := fmt.Sprint(transport.batchSizes()); sizes != "[10 10 5]" {
		t.Errorf("batch sizes = %s, want [10 10 5]", sizes)
	}
}
