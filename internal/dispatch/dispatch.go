// Package dispatch implements the Dispatcher (C5): for a given key, decide
// whether to serve it locally or forward it, and to whom. It generalizes
// the teacher's Picker/Fetcher split (gocache/peers.go) — there, Pick
// always returns whatever the consistent-hash map names, with no notion of
// peer health. Here, Owner additionally consults the Peer Stat Table and
// falls back away from an unhealthy primary, per SPEC_FULL.md §4.5.
package dispatch

import (
	"sync/atomic"

	"meshcache/internal/cluster"
	"meshcache/internal/ring"
)

// Target describes where a key's operation should be carried out.
type Target struct {
	Local bool
	Peer  string // set iff !Local
}

// Dispatcher resolves keys to Targets using a Ring snapshot and a live
// StatTable. It never performs a synchronous health probe itself — it only
// reads the cached view the background Health Probe maintains
// (SPEC_FULL.md §4.5: "Dispatcher never blocks on a synchronous probe").
//
// The Ring itself is immutable once built (ring.Ring's own invariant), but
// cluster membership is not: a dynamic config.PeerSource can report a new
// peer list at any time. UpdateRing swaps in a freshly built Ring and
// fallback peer atomically so Owner always sees a consistent pair, rather
// than holding a Ring pointer that a membership change would leave stale
// forever.
type Dispatcher struct {
	routing atomic.Pointer[routing]
	stats   *cluster.StatTable
	self    string
}

// routing pairs a Ring with the fallback peer computed for the same peer
// list, so both are published and read together.
type routing struct {
	ring      *ring.Ring
	firstPeer string
}

// New builds a Dispatcher. self is this node's own address, compared
// against ring ownership to decide locality. firstConfiguredPeer is the
// last-resort fallback when no peer is reported healthy at all.
func New(r *ring.Ring, stats *cluster.StatTable, self, firstConfiguredPeer string) *Dispatcher {
	d := &Dispatcher{stats: stats, self: self}
	d.routing.Store(&routing{ring: r, firstPeer: firstConfiguredPeer})
	return d
}

// UpdateRing swaps in a Ring built from a new peer list, along with the
// fallback peer recomputed for that same list. Called from a
// config.PeerSource's Watch callback when cluster membership changes.
func (d *Dispatcher) UpdateRing(r *ring.Ring, firstConfiguredPeer string) {
	d.routing.Store(&routing{ring: r, firstPeer: firstConfiguredPeer})
}

// Owner resolves the Target for key. Returns ok=false only when the ring
// is empty, the distinguished failure SPEC_FULL.md §4.1 maps to an
// internal-error dispatch result.
func (d *Dispatcher) Owner(key string) (Target, bool) {
	rt := d.routing.Load()
	primary, ok := rt.ring.Owner(key)
	if !ok {
		return Target{}, false
	}
	if primary == d.self {
		return Target{Local: true}, true
	}
	if d.stats.IsHealthy(primary) {
		return Target{Peer: primary}, true
	}
	if fallback, ok := d.stats.PickLeastLoaded(); ok {
		return Target{Peer: fallback}, true
	}
	return Target{Peer: rt.firstPeer}, true
}
