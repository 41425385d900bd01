// Package kv is the durable record layer behind the pose and scene
// libraries. Keys are hierarchical paths such as Key{"poses", "wave"};
// values are opaque bytes.
//
// Two backends are provided: Badger for on-disk persistence and Memory for
// tests and ephemeral sessions.
package kv

import (
	"bytes"
	"context"
	"errors"
	"iter"
	"strings"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("kv: not found")

// Separator joins key segments in the encoded form.
const Separator = '/'

// Key is a hierarchical path. Only the first segments are interpreted by
// List prefixes; the last segment may contain any byte.
type Key []string

// String returns the encoded key.
func (k Key) String() string {
	return strings.Join(k, string(Separator))
}

func (k Key) bytes() []byte {
	return []byte(k.String())
}

// prefixBytes returns the encoded prefix including the trailing separator,
// or nil for an empty key so that it matches everything.
func (k Key) prefixBytes() []byte {
	if len(k) == 0 {
		return nil
	}
	return append(k.bytes(), Separator)
}

// parseKey splits an encoded key into at most n segments. A negative n
// splits on every separator.
func parseKey(b []byte, n int) Key {
	parts := bytes.SplitN(b, []byte{Separator}, n)
	k := make(Key, len(parts))
	for i, p := range parts {
		k[i] = string(p)
	}
	return k
}

// Entry is one key/value pair.
type Entry struct {
	Key   Key
	Value []byte
}

// Store is a key/value store with path keys.
type Store interface {
	// Get returns the value of key or ErrNotFound.
	Get(ctx context.Context, key Key) ([]byte, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key Key, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key Key) error

	// List yields every entry below prefix in lexicographic key order.
	// The key of each entry is split into len(prefix)+1 segments so that
	// the final segment is returned verbatim.
	List(ctx context.Context, prefix Key) iter.Seq2[Entry, error]

	// BatchSet stores all entries atomically.
	BatchSet(ctx context.Context, entries []Entry) error

	// Close releases the store.
	Close() error
}
