// Package kv is the key-value layer under passages, sessions and ratings.
//
// Keys are paths such as {"session", id, "turn", "0003"} joined with a
// separator byte (':' by default). Listing a prefix matches whole segments
// only, so {"session", "a"} never lists keys of session "ab".
//
// [Badger] persists to disk (or memory, for tests) and [Memory] is a plain
// map. Values are opaque bytes; [GetValue] and [SetValue] encode structured
// values with msgpack.
package kv

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

var (
	// ErrNotFound is returned when a key does not exist in the store.
	ErrNotFound = errors.New("kv: not found")

	// ErrInvalidKey is returned for empty keys and for segments that
	// contain the separator.
	ErrInvalidKey = errors.New("kv: invalid key")
)

// Key is a hierarchical path.
type Key []string

// String joins the segments with ':' for display.
func (k Key) String() string {
	return strings.Join(k, ":")
}

// Append returns a new key with segs added.
func (k Key) Append(segs ...string) Key {
	out := make(Key, 0, len(k)+len(segs))
	return append(append(out, k...), segs...)
}

// Entry is a key-value pair.
type Entry struct {
	Key   Key
	Value []byte
}

// Store is a key-value store with path keys. Implementations are safe for
// concurrent use.
type Store interface {
	// Get returns ErrNotFound if key is not present.
	Get(ctx context.Context, key Key) ([]byte, error)
	Set(ctx context.Context, key Key, value []byte) error
	// Delete is a no-op for missing keys.
	Delete(ctx context.Context, key Key) error
	// List yields entries under prefix in lexicographic key order. An empty
	// prefix lists everything.
	List(ctx context.Context, prefix Key) iter.Seq2[Entry, error]
	BatchSet(ctx context.Context, entries []Entry) error
	BatchDelete(ctx context.Context, keys []Key) error
	Close() error
}

// DefaultSeparator joins key segments.
const DefaultSeparator byte = ':'

// Options configures key encoding. A nil *Options uses the defaults.
type Options struct {
	Separator byte
}

func (o *Options) sep() byte {
	if o != nil && o.Separator != 0 {
		return o.Separator
	}
	return DefaultSeparator
}

func (o *Options) validate(k Key) error {
	if len(k) == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	s := string(o.sep())
	for _, seg := range k {
		if strings.Contains(seg, s) {
			return fmt.Errorf("%w: segment %q contains %q", ErrInvalidKey, seg, s)
		}
	}
	return nil
}

func (o *Options) encode(k Key) []byte {
	return []byte(strings.Join(k, string(o.sep())))
}

func (o *Options) decode(b []byte) Key {
	return strings.Split(string(b), string(o.sep()))
}

// prefix returns the encoded scan prefix, terminated by the separator so
// that only whole segments match.
func (o *Options) prefix(k Key) []byte {
	if len(k) == 0 {
		return nil
	}
	return append(o.encode(k), o.sep())
}

// GetValue reads key and decodes it with msgpack into a T.
func GetValue[T any](ctx context.Context, s Store, key Key) (T, error) {
	var v T
	b, err := s.Get(ctx, key)
	if err != nil {
		return v, err
	}
	if err := msgpack.Unmarshal(b, &v); err != nil {
		return v, fmt.Errorf("kv: decode %s: %w", key, err)
	}
	return v, nil
}

// SetValue encodes v with msgpack and stores it at key.
func SetValue[T any](ctx context.Context, s Store, key Key, v T) error {
	b, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("kv: encode %s: %w", key, err)
	}
	return s.Set(ctx, key, b)
}

// Values decodes every entry under prefix into a T, in key order.
func Values[T any](ctx context.Context, s Store, prefix Key) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for e, err := range s.List(ctx, prefix) {
			var v T
			if err == nil {
				if derr := msgpack.Unmarshal(e.Value, &v); derr != nil {
					err = fmt.Errorf("kv: decode %s: %w", e.Key, derr)
				}
			}
			if !yield(v, err) {
				return
			}
		}
	}
}
