package cluster

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// Pool hands out one reusable *http.Client per peer, lazily constructed on
// first use and shared by every later caller (C4, SPEC_FULL.md §4.4). It
// generalizes torua's health_monitor.go, which builds a single shared
// *http.Client for checks against every node, into a per-peer client so
// that transport-level connection reuse (keep-alive) is scoped per
// destination rather than shared indiscriminately.
type Pool struct {
	mu             sync.Mutex
	clients        map[string]*http.Client
	connectTimeout time.Duration
	readTimeout    time.Duration
}

// NewPool builds an empty pool. Clients are constructed on demand in
// ClientFor.
func NewPool(connectTimeout, readTimeout time.Duration) *Pool {
	return &Pool{
		clients:        make(map[string]*http.Client),
		connectTimeout: connectTimeout,
		readTimeout:    readTimeout,
	}
}

// ClientFor returns the shared client for peer, constructing it on the
// first call. The pool is safe under concurrent access; a transport
// failure on one call invalidates that connection, not the pool entry —
// net/http's own transport already redials on the next request.
func (p *Pool) ClientFor(peer string) *http.Client {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[peer]; ok {
		return c
	}
	c := &http.Client{
		Timeout: p.readTimeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout: p.connectTimeout,
			}).DialContext,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	p.clients[peer] = c
	return c
}
