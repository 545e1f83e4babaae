package health

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meshcache/internal/cluster"
)

func TestCheckAllMarksSuccessfulPeersHealthy(t *testing.T) {
	stats := cluster.NewStatTable([]string{"peer-a"})
	pool := cluster.NewPool(time.Second, time.Second)
	p := New([]string{"peer-a"}, stats, pool, time.Hour, time.Second, nil)
	p.SetCheckFunc(func(ctx context.Context, client *http.Client, peer string) error {
		return nil
	})

	p.checkAll(context.Background())
	assert.True(t, stats.IsHealthy("peer-a"))
}

func TestCheckAllMarksFailingPeersUnhealthy(t *testing.T) {
	stats := cluster.NewStatTable([]string{"peer-a"})
	stats.MarkHealthy("peer-a", true)
	pool := cluster.NewPool(time.Second, time.Second)
	p := New([]string{"peer-a"}, stats, pool, time.Hour, time.Second, nil)
	p.SetCheckFunc(func(ctx context.Context, client *http.Client, peer string) error {
		return errors.New("boom")
	})

	p.checkAll(context.Background())
	assert.False(t, stats.IsHealthy("peer-a"))
}

func TestCheckAllChecksEveryPeerConcurrently(t *testing.T) {
	peers := []string{"peer-a", "peer-b", "peer-c"}
	stats := cluster.NewStatTable(peers)
	pool := cluster.NewPool(time.Second, time.Second)
	p := New(peers, stats, pool, time.Hour, time.Second, nil)

	var calls atomic.Int32
	p.SetCheckFunc(func(ctx context.Context, client *http.Client, peer string) error {
		calls.Add(1)
		return nil
	})

	p.checkAll(context.Background())
	assert.Equal(t, int32(3), calls.Load())
}

func TestUpdatePeersChangesWhoGetsChecked(t *testing.T) {
	stats := cluster.NewStatTable([]string{"peer-a", "peer-b"})
	pool := cluster.NewPool(time.Second, time.Second)
	p := New([]string{"peer-a"}, stats, pool, time.Hour, time.Second, nil)

	var checked []string
	p.SetCheckFunc(func(ctx context.Context, client *http.Client, peer string) error {
		checked = append(checked, peer)
		return nil
	})

	p.checkAll(context.Background())
	assert.Equal(t, []string{"peer-a"}, checked)

	p.UpdatePeers([]string{"peer-a", "peer-b"})
	checked = nil
	p.checkAll(context.Background())
	assert.ElementsMatch(t, []string{"peer-a", "peer-b"}, checked)
}

func TestStartAndStopRunsPeriodically(t *testing.T) {
	stats := cluster.NewStatTable([]string{"peer-a"})
	pool := cluster.NewPool(time.Second, time.Second)
	p := New([]string{"peer-a"}, stats, pool, 5*time.Millisecond, time.Second, nil)

	var calls atomic.Int32
	p.SetCheckFunc(func(ctx context.Context, client *http.Client, peer string) error {
		calls.Add(1)
		return nil
	})

	p.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	p.Stop()

	require.GreaterOrEqual(t, calls.Load(), int32(2))
}
