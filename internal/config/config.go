// Package config holds the node's typed configuration record. Nothing
// downstream reads an environment variable or a flag directly; every
// component receives a *Config at construction, generalizing the teacher's
// compile-time constants (peer list, V, M, rate limit) into an explicit,
// testable value, per SPEC_FULL.md §4.8 / §9 "Global configuration".
package config

import (
	"fmt"
	"time"

	"golang.org/x/exp/slices"
)

// Config is the immutable configuration threaded into every component.
type Config struct {
	Port     int
	NodeID   string
	SelfAddr string
	Peers    []string

	VirtualNodes int
	MaxEntries   int
	RateLimit    int

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	IdleTimeout    time.Duration

	HealthProbeInterval time.Duration
	HealthProbeTimeout  time.Duration
}

// Defaults returns a Config matching the reference deployment in
// SPEC_FULL.md §6: three hard-coded peers, V=150, M=10,000, 1000 req/s.
func Defaults(port int) *Config {
	return &Config{
		Port:     port,
		NodeID:   NodeID(port),
		SelfAddr: SelfAddr(port),
		Peers: []string{
			"http://cache-server-1:9527",
			"http://cache-server-2:9528",
			"http://cache-server-3:9529",
		},
		VirtualNodes:        150,
		MaxEntries:          10000,
		RateLimit:           1000,
		ConnectTimeout:      2 * time.Second,
		ReadTimeout:         5 * time.Second,
		IdleTimeout:         5 * time.Second,
		HealthProbeInterval: 10 * time.Second,
		HealthProbeTimeout:  2 * time.Second,
	}
}

// NodeID derives the node's identity from its listen port, as SPEC_FULL.md
// §6 specifies: "node<port>".
func NodeID(port int) string {
	return fmt.Sprintf("node%d", port)
}

// SelfAddr derives the node's own advertised address from its listen port
// under the reference cluster's topology convention
// (cache-server-{port-9526}:{port}). A deployment outside that topology
// must supply SelfAddr explicitly via Config instead of relying on this
// derivation (SPEC_FULL.md §9 open question on self-URL derivation).
func SelfAddr(port int) string {
	return fmt.Sprintf("http://cache-server-%d:%d", port-9526, port)
}

// AllPeers returns the full configured peer list including self — the
// ring and stat table both need self represented so that owner_of can
// resolve to "local" and so stats exist for the local node too.
func (c *Config) AllPeers() []string {
	if slices.Contains(c.Peers, c.SelfAddr) {
		return c.Peers
	}
	all := make([]string, 0, len(c.Peers)+1)
	all = append(all, c.Peers...)
	all = append(all, c.SelfAddr)
	return all
}
