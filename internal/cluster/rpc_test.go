package cluster

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meshcache/internal/store"
)

func newClient() (*RPCClient, *StatTable) {
	stats := NewStatTable(nil)
	pool := NewPool(2*time.Second, 5*time.Second)
	return NewRPCClient(pool, stats), stats
}

func TestGetReturnsValueOnSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"a":1}`))
	}))
	defer srv.Close()

	c, _ := newClient()
	v, ok := c.Get(context.Background(), srv.URL, "a")
	require.True(t, ok)
	assert.JSONEq(t, `{"a":1}`, string(v.Raw()))
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c, _ := newClient()
	_, ok := c.Get(context.Background(), srv.URL, "missing")
	assert.False(t, ok)
}

func TestGetCollapsesConcurrentIdenticalRequests(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		time.Sleep(20 * time.Millisecond)
		w.Write([]byte(`{"a":1}`))
	}))
	defer srv.Close()

	c, _ := newClient()
	done := make(chan struct{})
	for i := 0; i < 5; i++ {
		go func() {
			c.Get(context.Background(), srv.URL, "a")
			done <- struct{}{}
		}()
	}
	for i := 0; i < 5; i++ {
		<-done
	}
	assert.Equal(t, int32(1), hits.Load())
}

func TestSetBatchSendsAllEntries(t *testing.T) {
	var received map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&received)
		w.Write([]byte("OK"))
	}))
	defer srv.Close()

	c, stats := newClient()
	err := c.SetBatch(context.Background(), srv.URL, map[string]store.Value{
		"a": store.NewValue(json.RawMessage(`1`)),
		"b": store.NewValue(json.RawMessage(`"x"`)),
	})
	require.NoError(t, err)
	assert.Len(t, received, 2)
	assert.True(t, stats.IsHealthy(srv.URL))
}

func TestSetBatchReturnsErrorOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, _ := newClient()
	err := c.SetBatch(context.Background(), srv.URL, map[string]store.Value{"a": store.NewValue(json.RawMessage(`1`))})
	assert.Error(t, err)
}

func TestDeleteParsesLiteralCount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`"1"`))
	}))
	defer srv.Close()

	c, _ := newClient()
	n, err := c.Delete(context.Background(), srv.URL, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
