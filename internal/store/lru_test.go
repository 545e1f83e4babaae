package store

import (
	"encoding/json"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func val(s string) Value {
	return NewValue(json.RawMessage(s))
}

func TestGetMiss(t *testing.T) {
	s := New(10)
	_, ok := s.Get("missing")
	assert.False(t, ok)
}

func TestSetThenGet(t *testing.T) {
	s := New(10)
	s.Set("a", val(`1`))
	v, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, json.RawMessage(`1`), v.Raw())
}

func TestSetOverwriteKeepsOneEntry(t *testing.T) {
	s := New(10)
	s.Set("a", val(`1`))
	s.Set("a", val(`2`))
	require.Equal(t, 1, s.Len())
	v, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, json.RawMessage(`2`), v.Raw())
}

func TestDelete(t *testing.T) {
	s := New(10)
	s.Set("a", val(`1`))
	assert.True(t, s.Delete("a"))
	assert.False(t, s.Delete("a"))
	_, ok := s.Get("a")
	assert.False(t, ok)
}

// TestEvictsLeastRecentlyUsed mirrors scenario 4: writing one more distinct
// key than capacity evicts exactly the oldest, untouched key.
func TestEvictsLeastRecentlyUsed(t *testing.T) {
	s := New(2)
	s.Set("k0", val(`0`))
	s.Set("k1", val(`1`))
	s.Set("k2", val(`2`))

	_, ok := s.Get("k0")
	assert.False(t, ok, "k0 should have been evicted as least-recently-used")
	assert.Equal(t, 2, s.Len())

	_, ok = s.Get("k2")
	assert.True(t, ok)
}

func TestGetRefreshesRecency(t *testing.T) {
	s := New(2)
	s.Set("k0", val(`0`))
	s.Set("k1", val(`1`))
	s.Get("k0") // k0 is now more recent than k1
	s.Set("k2", val(`2`))

	_, ok := s.Get("k1")
	assert.False(t, ok, "k1 should have been evicted, not k0, since k0 was touched")

	_, ok = s.Get("k0")
	assert.True(t, ok)
}

func TestSetManyAppliesWholeBatch(t *testing.T) {
	s := New(10)
	s.SetMany(map[string]Value{
		"a": val(`1`),
		"b": val(`"x"`),
	})
	assert.Equal(t, 2, s.Len())
	a, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, json.RawMessage(`1`), a.Raw())
	b, ok := s.Get("b")
	require.True(t, ok)
	assert.Equal(t, json.RawMessage(`"x"`), b.Raw())
}

func TestLenNeverExceedsCapacity(t *testing.T) {
	s := New(100)
	for i := 0; i < 10001; i++ {
		s.Set(strconv.Itoa(i), val(`1`))
		require.LessOrEqual(t, s.Len(), 100)
	}
	assert.Equal(t, 100, s.Len())
}
