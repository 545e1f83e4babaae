package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"meshcache/internal/singleflight"
	"meshcache/internal/store"
)

// RPCClient issues the internal peer-to-peer calls the Dispatcher uses for
// a Remote target (C5's rpc_get / rpc_set_batch / rpc_delete), recording
// the outcome of every call into the StatTable and reusing connections via
// the Pool. Concurrent identical rpc_get calls against the same peer and
// key are collapsed via singleflight (SPEC_FULL.md §4.4 addition), mirrored
// from the teacher's gocache/singleflight use around its own peer fetch.
type RPCClient struct {
	pool   *Pool
	stats  *StatTable
	flight singleflight.Group[getResult]
}

type getResult struct {
	value store.Value
	found bool
}

// NewRPCClient wires a Pool and StatTable into a ready-to-use RPC client.
func NewRPCClient(pool *Pool, stats *StatTable) *RPCClient {
	return &RPCClient{pool: pool, stats: stats}
}

// Get fetches a single key from peer's /internal/get/{key}. found is false
// both on a 404 and on any transport or parse failure — per SPEC_FULL.md
// §7, RPC-level parse failures degrade silently to a missing result rather
// than propagating an error to the caller.
func (c *RPCClient) Get(ctx context.Context, peer, key string) (value store.Value, found bool) {
	res, _ := c.flight.Do(peer+"|"+key, func() (getResult, error) {
		return c.getOnce(ctx, peer, key), nil
	})
	return res.value, res.found
}

func (c *RPCClient) getOnce(ctx context.Context, peer, key string) getResult {
	start := time.Now()
	client := c.pool.ClientFor(peer)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, peer+"/internal/get/"+key, nil)
	if err != nil {
		c.stats.Record(peer, sinceMs(start), false)
		return getResult{}
	}
	resp, err := client.Do(req)
	if err != nil {
		c.stats.Record(peer, sinceMs(start), false)
		return getResult{}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		c.stats.Record(peer, sinceMs(start), true)
		return getResult{found: false}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.stats.Record(peer, sinceMs(start), false)
		return getResult{}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil || !json.Valid(body) {
		c.stats.Record(peer, sinceMs(start), true)
		return getResult{}
	}
	c.stats.Record(peer, sinceMs(start), true)
	return getResult{value: store.NewValue(body), found: true}
}

// SetBatch sends every pair in entries to peer's /internal/set in a single
// request. It succeeds iff the peer responds 2xx.
func (c *RPCClient) SetBatch(ctx context.Context, peer string, entries map[string]store.Value) error {
	start := time.Now()
	client := c.pool.ClientFor(peer)

	raw := make(map[string]json.RawMessage, len(entries))
	for k, v := range entries {
		raw[k] = v.Raw()
	}
	body, err := json.Marshal(raw)
	if err != nil {
		c.stats.Record(peer, sinceMs(start), false)
		return fmt.Errorf("encode batch for %s: %w", peer, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, peer+"/internal/set", bytes.NewReader(body))
	if err != nil {
		c.stats.Record(peer, sinceMs(start), false)
		return fmt.Errorf("build request for %s: %w", peer, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		c.stats.Record(peer, sinceMs(start), false)
		return fmt.Errorf("set batch to %s: %w", peer, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	c.stats.Record(peer, sinceMs(start), ok)
	if !ok {
		return fmt.Errorf("peer %s rejected batch with status %d", peer, resp.StatusCode)
	}
	return nil
}

// Delete removes a single key from peer via /internal/delete/{key} and
// returns the literal 0-or-1 count the wire protocol specifies.
func (c *RPCClient) Delete(ctx context.Context, peer, key string) (int, error) {
	start := time.Now()
	client := c.pool.ClientFor(peer)

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, peer+"/internal/delete/"+key, nil)
	if err != nil {
		c.stats.Record(peer, sinceMs(start), false)
		return 0, fmt.Errorf("build request for %s: %w", peer, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		c.stats.Record(peer, sinceMs(start), false)
		return 0, fmt.Errorf("delete on %s: %w", peer, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	ok := err == nil && resp.StatusCode >= 200 && resp.StatusCode < 300
	c.stats.Record(peer, sinceMs(start), ok)
	if !ok {
		return 0, fmt.Errorf("peer %s rejected delete with status %d", peer, resp.StatusCode)
	}
	trimmed := bytes.Trim(bytes.TrimSpace(body), `"`)
	count, err := strconv.Atoi(string(trimmed))
	if err != nil {
		return 0, fmt.Errorf("peer %s returned malformed delete count: %w", peer, err)
	}
	return count, nil
}

func sinceMs(start time.Time) float64 {
	return float64(time.Since(start)) / float64(time.Millisecond)
}
