// Package store implements the node's bounded, concurrency-safe LRU cache
// (C2). Value is grounded on the teacher's gocache/byteview.go: an
// immutable view over a byte slice that always hands out clones, never the
// backing array, so a caller can never mutate what the store holds.
package store

import "encoding/json"

// Value is an immutable wrapper over a JSON-encoded value. The cache never
// re-serializes a value it already holds (SPEC_FULL.md §3); it clones the
// raw bytes once on the way in and once on the way out.
type Value struct {
	raw json.RawMessage
}

// NewValue clones b and wraps it. Callers must pass already-valid JSON;
// Value does not parse, it only carries bytes.
func NewValue(b json.RawMessage) Value {
	return Value{raw: cloneBytes(b)}
}

// Raw returns a clone of the stored JSON bytes, safe for the caller to hold
// or mutate without affecting the cache entry.
func (v Value) Raw() json.RawMessage {
	return cloneBytes(v.raw)
}

// Len reports the size in bytes of the stored JSON, used by callers that
// want to account for cache memory footprint.
func (v Value) Len() int {
	return len(v.raw)
}

// MarshalJSON lets a Value be embedded directly in a response body without
// an intermediate unmarshal/remarshal round trip.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.raw == nil {
		return []byte("null"), nil
	}
	return cloneBytes(v.raw), nil
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	c := make([]byte, len(b))
	copy(c, b)
	return c
}
