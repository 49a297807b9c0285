package rest

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"
)

var testTime = TimeRecord{
	Start:      1700000000.1,
	Finish:     1700000000.3,
	Duration:   0.2,
	Processing: 0.1,
	DateStart:  "2023-11-14T22:13:20+00:00",
	DateFinish: "2023-11-14T22:13:20+00:00",
}

type callRecord struct {
	method  string
	params  Params
	timeout time.Duration
}

type batchRecord struct {
	cmds    Commands
	halt    bool
	timeout time.Duration
}

// fakeTransport records calls and answers them with the configured functions
type fakeTransport struct {
	mu      sync.Mutex
	calls   []callRecord
	batches []batchRecord

	onCall  func(method string, params Params) (json.RawMessage, error)
	onBatch func(cmds Commands, halt bool) (json.RawMessage, error)
}

func (f *fakeTransport) Call(ctx context.Context, method string, params Params, timeout time.Duration) (json.RawMessage, error) {
	f.mu.Lock()
	f.calls = append(f.calls, callRecord{method: method, params: params, timeout: timeout})
	f.mu.Unlock()

	if f.onCall == nil {
		return envelope(map[string]interface{}{}), nil
	}
	return f.onCall(method, params)
}

func (f *fakeTransport) CallBatch(ctx context.Context, cmds Commands, halt bool, timeout time.Duration) (json.RawMessage, error) {
	f.mu.Lock()
	f.batches = append(f.batches, batchRecord{cmds: cmds, halt: halt, timeout: timeout})
	f.mu.Unlock()

	if f.onBatch == nil {
		return echoBatch(nil)(cmds, halt)
	}
	return f.onBatch(cmds, halt)
}

func (f *fakeTransport) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeTransport) batchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

func (f *fakeTransport) batchSizes() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	sizes := make([]int, len(f.batches))
	for i, b := range f.batches {
		sizes[i] = b.cmds.Len()
	}
	return sizes
}

func envelope(result interface{}) json.RawMessage {
	data, _ := json.Marshal(map[string]interface{}{"result": result, "time": testTime})
	return data
}

// echoBatch answers every command with {"cmd": command} like the provider
// would, failing the commands whose text contains a fail marker and
// honoring halt. Positional lists get array collections.
func echoBatch(fail func(command string) bool) func(Commands, bool) (json.RawMessage, error) {
	return func(cmds Commands, halt bool) (json.RawMessage, error) {
		result := map[string]interface{}{}
		resultError := map[string]interface{}{}
		resultTotal := map[string]interface{}{}
		resultNext := map[string]interface{}{}
		resultTime := map[string]interface{}{}
		var resultList, timeList []interface{}

		for i, item := range cmds.Items {
			wireKey := item.Key
			if cmds.Positional {
				wireKey = strconv.Itoa(i)
			}

			if fail != nil && fail(item.Command) {
				resultError[wireKey] = map[string]string{"error": "NOT_FOUND", "error_description": "Not found"}
				resultTime[wireKey] = testTime
				if cmds.Positional {
					resultList = append(resultList, nil)
					timeList = append(timeList, testTime)
				}
				if halt {
					break
				}
				continue
			}

			value := map[string]string{"cmd": item.Command}
			result[wireKey] = value
			resultTime[wireKey] = testTime
			if strings.Contains(item.Command, ".list") {
				resultTotal[wireKey] = 120
				resultNext[wireKey] = 50
			}
			if cmds.Positional {
				resultList = append(resultList, value)
				timeList = append(timeList, testTime)
			}
		}

		var inner map[string]interface{}
		if cmds.Positional {
			inner = map[string]interface{}{
				"result":       orEmptyList(resultList),
				"result_error": orEmptyList(resultError),
				"result_total": orEmptyList(resultTotal),
				"result_next":  orEmptyList(resultNext),
				"result_time":  orEmptyList(timeList),
			}
		} else {
			inner = map[string]interface{}{
				"result":       orEmptyList(result),
				"result_error": orEmptyList(resultError),
				"result_total": orEmptyList(resultTotal),
				"result_next":  orEmptyList(resultNext),
				"result_time":  orEmptyList(resultTime),
			}
		}
		return envelope(inner), nil
	}
}

// orEmptyList mimics the provider sending [] for empty collections
func orEmptyList(v interface{}) interface{} {
	switch c := v.(type) {
	case map[string]interface{}:
		if len(c) == 0 {
			return []interface{}{}
		}
	case []interface{}:
		if len(c) == 0 {
			return []interface{}{}
		}
	}
	return v
}

func newRequests(t Transport, method string, n int) []*Request {
	requests := make([]*Request, n)
	for i := range requests {
		requests[i] = NewRequest(t, method, NewParams("id", i))
	}
	return requests
}
