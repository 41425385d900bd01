// Package library keeps named records in insertion order, optionally
// persisted to a kv.Store. The pose and scene libraries are built on it.
package library

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/luizmgoncw/twist2-gui-controller/pkg/kv"
)

// record is the persisted form of one entry.
type record[T any] struct {
	Seq   uint64 `msgpack:"seq"`
	Name  string `msgpack:"name"`
	Value T      `msgpack:"value"`
}

type item[T any] struct {
	seq   uint64
	value T
}

// Store is an ordered collection of named values. Overwriting a name keeps
// its original position. It is safe for concurrent use.
type Store[T any] struct {
	kind    string
	backend kv.Store
	clone   func(T) T

	mu    sync.RWMutex
	items map[string]item[T]
	order []string
	seq   uint64
}

// New returns an empty store. Entries are persisted under Key{kind, name}
// when backend is non-nil. clone, if set, is applied to values on the way in
// and out so callers never share mutable state with the store.
func New[T any](kind string, backend kv.Store, clone func(T) T) *Store[T] {
	if clone == nil {
		clone = func(v T) T { return v }
	}
	return &Store[T]{
		kind:    kind,
		backend: backend,
		clone:   clone,
		items:   make(map[string]item[T]),
	}
}

// Kind returns the collection name.
func (s *Store[T]) Kind() string { return s.kind }

// Restore loads every persisted entry from the backend in insertion order.
// Entries that fail to decode or that check rejects are skipped and passed to
// reject. The returned error is reserved for backend failures.
func (s *Store[T]) Restore(ctx context.Context, check func(name string, v T) error, reject func(name string, err error)) error {
	if s.backend == nil {
		return nil
	}
	var recs []record[T]
	for e, err := range s.backend.List(ctx, kv.Key{s.kind}) {
		if err != nil {
			return fmt.Errorf("library: list %s: %w", s.kind, err)
		}
		name := e.Key[len(e.Key)-1]
		var rec record[T]
		if err := msgpack.Unmarshal(e.Value, &rec); err != nil {
			reject(name, err)
			continue
		}
		if rec.Name == "" {
			rec.Name = name
		}
		if check != nil {
			if err := check(rec.Name, rec.Value); err != nil {
				reject(rec.Name, err)
				continue
			}
		}
		recs = append(recs, rec)
	}
	slices.SortStableFunc(recs, func(a, b record[T]) int { return cmp.Compare(a.Seq, b.Seq) })

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range recs {
		if _, ok := s.items[rec.Name]; !ok {
			s.order = append(s.order, rec.Name)
		}
		s.items[rec.Name] = item[T]{seq: rec.Seq, value: rec.Value}
		s.seq = max(s.seq, rec.Seq)
	}
	return nil
}

// Put inserts or replaces name. It reports whether the name was new.
func (s *Store[T]) Put(ctx context.Context, name string, v T) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, exists := s.items[name]
	if !exists {
		it.seq = s.seq + 1
	}
	it.value = s.clone(v)
	if err := s.persist(ctx, name, it); err != nil {
		return false, err
	}
	if !exists {
		s.seq = it.seq
		s.order = append(s.order, name)
	}
	s.items[name] = it
	return !exists, nil
}

// PutAll inserts or replaces every value in one backend batch.
func (s *Store[T]) PutAll(ctx context.Context, names []string, values []T) error {
	if len(names) != len(values) {
		return fmt.Errorf("library: %d names for %d values", len(names), len(values))
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.seq
	staged := make(map[string]item[T], len(names))
	var added []string
	var entries []kv.Entry
	for i, name := range names {
		it, exists := staged[name]
		if !exists {
			it, exists = s.items[name]
		}
		if !exists {
			next++
			it.seq = next
			added = append(added, name)
		}
		it.value = s.clone(values[i])
		staged[name] = it
	}
	if s.backend != nil {
		for name, it := range staged {
			b, err := s.encode(name, it)
			if err != nil {
				return err
			}
			entries = append(entries, kv.Entry{Key: kv.Key{s.kind, name}, Value: b})
		}
		if err := s.backend.BatchSet(ctx, entries); err != nil {
			return fmt.Errorf("library: save %s: %w", s.kind, err)
		}
	}
	for name, it := range staged {
		s.items[name] = it
	}
	s.order = append(s.order, added...)
	s.seq = next
	return nil
}

// Get returns the value stored under name.
func (s *Store[T]) Get(name string) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.items[name]
	if !ok {
		var zero T
		return zero, false
	}
	return s.clone(it.value), true
}

// Delete removes name. It reports whether the name existed.
func (s *Store[T]) Delete(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[name]; !ok {
		return false, nil
	}
	if s.backend != nil {
		if err := s.backend.Delete(ctx, kv.Key{s.kind, name}); err != nil {
			return false, fmt.Errorf("library: delete %s %q: %w", s.kind, name, err)
		}
	}
	delete(s.items, name)
	s.order = slices.DeleteFunc(s.order, func(n string) bool { return n == name })
	return true, nil
}

// Names returns the names in insertion order.
func (s *Store[T]) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.order)
}

// Values returns the values in insertion order.
func (s *Store[T]) Values() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]T, len(s.order))
	for i, name := range s.order {
		out[i] = s.clone(s.items[name].value)
	}
	return out
}

// Len returns the number of entries.
func (s *Store[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

func (s *Store[T]) persist(ctx context.Context, name string, it item[T]) error {
	if s.backend == nil {
		return nil
	}
	b, err := s.encode(name, it)
	if err != nil {
		return err
	}
	if err := s.backend.Set(ctx, kv.Key{s.kind, name}, b); err != nil {
		return fmt.Errorf("library: save %s %q: %w", s.kind, name, err)
	}
	return nil
}

func (s *Store[T]) encode(name string, it item[T]) ([]byte, error) {
	b, err := msgpack.Marshal(record[T]{Seq: it.seq, Name: name, Value: it.value})
	if err != nil {
		return nil, fmt.Errorf("library: encode %s %q: %w", s.kind, name, err)
	}
	return b, nil
}
