package singleflight

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoReturnsFnResult(t *testing.T) {
	var g Group[string]
	v, err := g.Do("key", func() (string, error) {
		return "bar", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "bar", v)
}

func TestDoCollapsesConcurrentCallers(t *testing.T) {
	var g Group[int]
	var calls atomic.Int32
	release := make(chan struct{})

	var wg, started sync.WaitGroup
	results := make([]int, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		started.Add(1)
		go func(i int) {
			defer wg.Done()
			started.Done()
			v, _ := g.Do("shared", func() (int, error) {
				calls.Add(1)
				<-release
				return 42, nil
			})
			results[i] = v
		}(i)
	}
	// Let every caller reach Do while the first call is still blocked, so
	// they are all concurrent with it before it is released.
	started.Wait()
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load(), "fn should run exactly once for concurrent callers sharing a key")
	for _, r := range results {
		assert.Equal(t, 42, r)
	}
}

func TestDoDistinctKeysRunIndependently(t *testing.T) {
	var g Group[int]
	a, _ := g.Do("a", func() (int, error) { return 1, nil })
	b, _ := g.Do("b", func() (int, error) { return 2, nil })
	assert.Equal(t, 1, a)
	assert.Equal(t, 2, b)
}
