// Package ring implements the cluster's consistent hash ring: a pure
// function from key to owning peer address. Construction is grounded on
// the teacher's gocache/consistenthash package, generalized from a
// crc32-keyed map to the polynomial hash the wire contract requires so
// that every node in a cluster computes identical ownership.
package ring

import (
	"sort"
	"strconv"
)

// Hash maps a byte slice to a 32-bit ring position. New uses PolynomialHash
// when given a nil Hash; callers may inject a different Hash for testing, but
// every node in a live cluster must agree on the same one (spec §4.1).
type Hash func(data []byte) uint32

// PolynomialHash is the reference 32-bit rolling hash: h = h*31 + byte. It
// is not cryptographic and is not meant to be; it only needs to be stable
// across processes, which a fixed multiplier and unsigned overflow gives
// it for free.
func PolynomialHash(data []byte) uint32 {
	var h uint32
	for _, b := range data {
		h = h*31 + uint32(b)
	}
	return h
}

// Ring is an immutable mapping from ring position to owning peer address.
// A Ring is built once from a peer list and never mutated afterward (spec
// invariant I3); callers that need to react to membership changes build a
// new Ring and swap the pointer (see dispatch.Dispatcher).
type Ring struct {
	hash      Hash
	positions []uint32
	owners    map[uint32]string
	replicas  int
}

// New builds a ring from peers, inserting replicas virtual positions per
// peer at H(peer + "#" + i) for i in [0, replicas). Collisions resolve
// last-writer-wins in peer insertion order, matching spec §4.1.
func New(peers []string, replicas int, hash Hash) *Ring {
	if hash == nil {
		hash = PolynomialHash
	}
	r := &Ring{
		hash:     hash,
		owners:   make(map[uint32]string, len(peers)*replicas),
		replicas: replicas,
	}
	for _, peer := range peers {
		r.add(peer)
	}
	return r
}

func (r *Ring) add(peer string) {
	for i := 0; i < r.replicas; i++ {
		key := peer + "#" + strconv.Itoa(i)
		pos := r.hash([]byte(key))
		if _, exists := r.owners[pos]; !exists {
			r.positions = append(r.positions, pos)
		}
		r.owners[pos] = peer
	}
	sort.Slice(r.positions, func(i, j int) bool { return r.positions[i] < r.positions[j] })
}

// Owner returns the peer address that owns key, and false if the ring is
// empty. Lookup finds the smallest position >= H(key), wrapping to the
// smallest position in the ring when h exceeds every position (spec
// §4.1's "Lookup" rule).
func (r *Ring) Owner(key string) (string, bool) {
	if len(r.positions) == 0 {
		return "", false
	}
	h := r.hash([]byte(key))
	idx := sort.Search(len(r.positions), func(i int) bool { return r.positions[i] >= h })
	if idx == len(r.positions) {
		idx = 0
	}
	return r.owners[r.positions[idx]], true
}

// Empty reports whether the ring holds no peers at all, the distinguished
// failure case spec §4.1 maps to an internal-error dispatch result.
func (r *Ring) Empty() bool {
	return len(r.positions) == 0
}
