// Package snapshot keeps the latest resolved value of every external read,
// keyed by string. A value is usable only while no newer read for the same
// key is outstanding; anything else reports as not resolved.
package snapshot

import (
	"sort"
	"strings"
	"sync"
)

type Status int

const (
	StatusUnknown Status = iota
	StatusLoading
	StatusResolved
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusResolved:
		return "resolved"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Value is a typed view of one key.
type Value[T any] struct {
	Val    T
	Status Status
	Err    error
}

func (v Value[T]) Resolved() bool { return v.Status == StatusResolved }

// Pending reports whether the value is still expected to arrive. Failed reads
// are not pending but are still not usable.
func (v Value[T]) Pending() bool {
	return v.Status == StatusUnknown || v.Status == StatusLoading
}

func Resolved[T any](v T) Value[T] { return Value[T]{Val: v, Status: StatusResolved} }
func Loading[T any]() Value[T]     { return Value[T]{Status: StatusLoading} }

type entry struct {
	requested uint64
	applied   uint64
	val       any
	status    Status
	err       error
}

type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func NewStore() *Store {
	return &Store{entries: map[string]*entry{}}
}

func (s *Store) entry(key string) *entry {
	e, ok := s.entries[key]
	if !ok {
		e = &entry{}
		s.entries[key] = e
	}
	return e
}

// Begin marks key as loading and returns the token the fetcher must hand back
// to Resolve or Fail.
func (s *Store) Begin(key string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entry(key)
	e.requested++
	e.status = StatusLoading
	return e.requested
}

// Resolve applies a result. Results older than one already applied are
// dropped; a result that is superseded by a newer outstanding request is
// stored but the key stays loading. Returns whether the value was applied.
func (s *Store) Resolve(key string, token uint64, val any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entry(key)
	if token <= e.applied || token > e.requested {
		return false
	}
	e.applied = token
	e.val = val
	e.err = nil
	if token == e.requested {
		e.status = StatusResolved
	} else {
		e.status = StatusLoading
	}
	return true
}

func (s *Store) Fail(key string, token uint64, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entry(key)
	if token <= e.applied || token > e.requested {
		return false
	}
	e.applied = token
	e.err = err
	if token == e.requested {
		e.status = StatusFailed
	} else {
		e.status = StatusLoading
	}
	return true
}

// Set is Begin followed by Resolve, for values computed in-process.
func (s *Store) Set(key string, val any) {
	tok := s.Begin(key)
	s.Resolve(key, tok, val)
}

func (s *Store) Status(key string) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return StatusUnknown
	}
	return e.status
}

// Keys lists known keys with the given prefix, sorted.
func (s *Store) Keys(prefix string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.entries))
	for k := range s.entries {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Get returns the typed value for key. A stored value of the wrong type is
// reported as failed.
func Get[T any](s *Store, key string) Value[T] {
	if s == nil {
		return Value[T]{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return Value[T]{}
	}
	out := Value[T]{Status: e.status, Err: e.err}
	if e.status != StatusResolved {
		return out
	}
	v, ok := e.val.(T)
	if !ok {
		out.Status = StatusFailed
		return out
	}
	out.Val = v
	return out
}
