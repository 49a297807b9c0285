package rest

import (
	"fmt"
	"sort"
	"strconv"
)

// Entry pairs a caller-chosen key with a Request
type Entry struct {
	Key     string
	Request *Request
}

// Set is a batch input: an ordered sequence of Requests keyed by position,
// or an ordered mapping of caller keys to Requests
type Set struct {
	positional bool
	entries    []Entry
}

// Seq builds a positional set; keys are the decimal positions
func Seq(requests ...*Request) *Set {
	entries := make([]Entry, len(requests))
	for i, r := range requests {
		entries[i] = Entry{Key: strconv.Itoa(i), Request: r}
	}
	return &Set{positional: true, entries: entries}
}

// Keyed builds a keyed set preserving the given order.
// Keys must be unique and non-empty.
func Keyed(entries ...Entry) (*Set, error) {
	seen := make(map[string]bool, len(entries))
	for i, e := range entries {
		if e.Key == "" {
			return nil, fmt.Errorf("entry[%d]: key is required", i)
		}
		if seen[e.Key] {
			return nil, fmt.Errorf("entry[%d]: duplicate key '%s'", i, e.Key)
		}
		if e.Request == nil {
			return nil, fmt.Errorf("entry '%s': request is nil", e.Key)
		}
		seen[e.Key] = true
	}

	copied := make([]Entry, len(entries))
	copy(copied, entries)
	return &Set{entries: copied}, nil
}

// KeyedMap builds a keyed set from a map, ordering keys lexically
func KeyedMap(m map[string]*Request) *Set {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	entries := make([]Entry, len(keys))
	for i, k := range keys {
		entries[i] = Entry{Key: k, Request: m[k]}
	}
	return &Set{entries: entries}
}

// Len returns the number of entries
func (s *Set) Len() int {
	return len(s.entries)
}

// Positional reports whether the set is keyed by position
func (s *Set) Positional() bool {
	return s.positional
}

// Keys returns the keys in order
func (s *Set) Keys() []string {
	keys := make([]string, len(s.entries))
	for i, e := range s.entries {
		keys[i] = e.Key
	}
	return keys
}

// Entries returns a copy of the entries in order
func (s *Set) Entries() []Entry {
	entries := make([]Entry, len(s.entries))
	copy(entries, s.entries)
	return entries
}

// Request returns the request stored under key
func (s *Set) Request(key string) (*Request, bool) {
	for _, e := range s.entries {
		if e.Key == key {
			return e.Request, true
		}
	}
	return nil, false
}

// Chunks splits the set into contiguous sets of at most size entries.
// Every chunk keeps the original keys and positional flag.
func (s *Set) Chunks(size int) []*Set {
	if size <= 0 {
		size = MaxBatchSize
	}

	chunks := make([]*Set, 0, (len(s.entries)+size-1)/size)
	for start := 0; start < len(s.entries); start += size {
		end := start + size
		if end > len(s.entries) {
			end = len(s.entries)
		}
		chunks = append(chunks, &Set{
			positional: s.positional,
			entries:    s.entries[start:end:end],
		})
	}
	return chunks
}

// commands builds the batch command list for the set
func (s *Set) commands() Commands {
	items := make([]Command, len(s.entries))
	for i, e := range s.entries {
		items[i] = Command{Key: e.Key, Command: e.Request.Command()}
	}
	return Commands{Positional: s.positional, Items: items}
}
