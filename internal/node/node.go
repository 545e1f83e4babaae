// Package node wires every component — Hash Ring, LRU Store, Peer Stat
// Table, Peer Client Pool, Dispatcher, Ingress, and Health Probe — into a
// single running process. The overall shape (construct dependencies,
// start an http.Server in a goroutine, wait for a shutdown signal, drain
// with a bounded-context Shutdown) is grounded on torua's
// cmd/coordinator/main.go and cmd/node/main.go.
package node

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"meshcache/internal/cluster"
	"meshcache/internal/config"
	"meshcache/internal/dispatch"
	"meshcache/internal/health"
	"meshcache/internal/ingress"
	"meshcache/internal/ring"
	"meshcache/internal/store"
)

// Node owns every component for one cache node and the HTTP server that
// exposes Ingress.
type Node struct {
	cfg        *config.Config
	logger     *zap.Logger
	httpServer *http.Server
	probe      *health.Probe
}

// New constructs every component per cfg and returns a Node ready to
// Start. peerSource supplies the initial (and, for dynamic sources,
// ongoing) peer membership.
func New(cfg *config.Config, peerSource config.PeerSource, logger *zap.Logger) *Node {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("node_id", cfg.NodeID))

	if discovered := peerSource.Peers(); len(discovered) > 0 {
		cfg.Peers = discovered
	}
	allPeers := cfg.AllPeers()

	st := store.New(cfg.MaxEntries)
	r := ring.New(allPeers, cfg.VirtualNodes, nil)
	stats := cluster.NewStatTable(allPeers)
	pool := cluster.NewPool(cfg.ConnectTimeout, cfg.ReadTimeout)
	rpc := cluster.NewRPCClient(pool, stats)

	firstPeer := ""
	remotePeers := make([]string, 0, len(allPeers))
	for _, p := range allPeers {
		if p == cfg.SelfAddr {
			continue
		}
		if firstPeer == "" {
			firstPeer = p
		}
		remotePeers = append(remotePeers, p)
	}

	d := dispatch.New(r, stats, cfg.SelfAddr, firstPeer)
	srv := ingress.New(cfg, st, d, rpc, stats, logger)

	probe := health.New(remotePeers, stats, pool, cfg.HealthProbeInterval, cfg.HealthProbeTimeout, logger)

	n := &Node{
		cfg:    cfg,
		logger: logger,
		probe:  probe,
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           srv.Handler(),
			ReadHeaderTimeout: cfg.ReadTimeout,
			IdleTimeout:       cfg.IdleTimeout,
		},
	}

	peerSource.Watch(context.Background(), func(peers []string) {
		logger.Info("peer membership changed via peer source", zap.Strings("peers", peers))
		cfg.Peers = peers
		newAllPeers := cfg.AllPeers()

		stats.SetPeers(newAllPeers)

		newFirstPeer := ""
		newRemotePeers := make([]string, 0, len(newAllPeers))
		for _, p := range newAllPeers {
			if p == cfg.SelfAddr {
				continue
			}
			if newFirstPeer == "" {
				newFirstPeer = p
			}
			newRemotePeers = append(newRemotePeers, p)
		}

		d.UpdateRing(ring.New(newAllPeers, cfg.VirtualNodes, nil), newFirstPeer)
		probe.UpdatePeers(newRemotePeers)
	})

	return n
}

// Start launches the Health Probe and the HTTP server. It blocks on the
// HTTP server's ListenAndServe and returns its terminal error, which is
// nil only after a clean Shutdown.
func (n *Node) Start(ctx context.Context) error {
	n.probe.Start(ctx)
	n.logger.Info("node listening", zap.String("addr", n.httpServer.Addr))

	err := n.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the Health Probe and drains the HTTP server within the
// given context's deadline.
func (n *Node) Shutdown(ctx context.Context) error {
	n.probe.Stop()
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return n.httpServer.Shutdown(shutdownCtx)
}
