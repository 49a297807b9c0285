package rest

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"time"
)

// MaxBatchSize is the provider ceiling on sub-commands per batch call
const MaxBatchSize = 50

// BatchMethod is the provider method that executes a command list
const BatchMethod = "batch"

// Transport performs the network calls the core builds.
// Both methods return the raw reply envelope; the core parses it.
type Transport interface {
	// Call executes a single method
	Call(ctx context.Context, method string, params Params, timeout time.Duration) (json.RawMessage, error)

	// CallBatch executes a command list in one round trip
	CallBatch(ctx context.Context, cmds Commands, halt bool, timeout time.Duration) (json.RawMessage, error)
}

// Param is a single named parameter
type Param struct {
	Key   string
	Value interface{}
}

// Params is an ordered set of call parameters.
// Values may be scalars, Params, maps with string keys, slices or arrays.
type Params []Param

// NewParams builds Params from alternating key/value arguments.
// A trailing key without a value is ignored.
func NewParams(kv ...interface{}) Params {
	p := make(Params, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		p = p.Set(key, kv[i+1])
	}
	return p
}

// ParamsFromMap builds Params from a map, ordering keys lexically
func ParamsFromMap(m map[string]interface{}) Params {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	p := make(Params, 0, len(keys))
	for _, k := range keys {
		p = append(p, Param{Key: k, Value: m[k]})
	}
	return p
}

// Set replaces the value of an existing key or appends a new one
func (p Params) Set(key string, value interface{}) Params {
	for i := range p {
		if p[i].Key == key {
			p[i].Value = value
			return p
		}
	}
	return append(p, Param{Key: key, Value: value})
}

// Get returns the value for key
func (p Params) Get(key string) (interface{}, bool) {
	for _, param := range p {
		if param.Key == key {
			return param.Value, true
		}
	}
	return nil, false
}

// Clone returns a shallow copy
func (p Params) Clone() Params {
	if p == nil {
		return nil
	}
	clone := make(Params, len(p))
	copy(clone, p)
	return clone
}

// Command is one entry of a batch command list
type Command struct {
	Key     string // caller key, or decimal position for positional lists
	Command string // method?query
}

// Commands is an ordered batch command list
type Commands struct {
	Positional bool
	Items      []Command
}

// Len returns the number of commands
func (c Commands) Len() int {
	return len(c.Items)
}

// Keys returns the command keys in order
func (c Commands) Keys() []string {
	keys := make([]string, len(c.Items))
	for i, item := range c.Items {
		keys[i] = item.Key
	}
	return keys
}

// Params renders the command list as the batch call parameters
func (c Commands) Params(halt bool) Params {
	haltValue := 0
	if halt {
		haltValue = 1
	}

	cmd := make(Params, 0, len(c.Items))
	for i, item := range c.Items {
		key := item.Key
		if c.Positional {
			key = strconv.Itoa(i)
		}
		cmd = append(cmd, Param{Key: key, Value: item.Command})
	}

	return Params{
		{Key: "halt", Value: haltValue},
		{Key: "cmd", Value: cmd},
	}
}

// TimeRecord is the provider's timing metadata for a call
type TimeRecord struct {
	Start            float64 `json:"start"`
	Finish           float64 `json:"finish"`
	Duration         float64 `json:"duration"`
	Processing       float64 `json:"processing"`
	DateStart        string  `json:"date_start"`
	DateFinish       string  `json:"date_finish"`
	Operating        float64 `json:"operating,omitempty"`
	OperatingResetAt int64   `json:"operating_reset_at,omitempty"`
}

// StartedAt parses DateStart
func (t TimeRecord) StartedAt() (time.Time, error) {
	return time.Parse(time.RFC3339, t.DateStart)
}

// FinishedAt parses DateFinish
func (t TimeRecord) FinishedAt() (time.Time, error) {
	return time.Parse(time.RFC3339, t.DateFinish)
}

// IsZero reports whether no timing data is present
func (t TimeRecord) IsZero() bool {
	return t == TimeRecord{}
}

// mergeTimes spans a sequence of records: first start, last finish, summed durations
func mergeTimes(records []TimeRecord) TimeRecord {
	if len(records) == 0 {
		return TimeRecord{}
	}

	first := records[0]
	last := records[len(records)-1]
	merged := TimeRecord{
		Start:            first.Start,
		Finish:           last.Finish,
		DateStart:        first.DateStart,
		DateFinish:       last.DateFinish,
		Operating:        last.Operating,
		OperatingResetAt: last.OperatingResetAt,
	}
	for _, r := range records {
		merged.Duration += r.Duration
		merged.Processing += r.Processing
	}
	return merged
}
