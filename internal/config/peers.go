package config

import (
	"context"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

// PeerSource supplies the cluster's current peer membership. StaticPeerSource
// is the default exercised by the reference three-node cluster;
// EtcdPeerSource is an additive, optional alternative for operators running
// an etcd cluster alongside meshcache (SPEC_FULL.md §4.8).
type PeerSource interface {
	// Peers returns the current peer list. Static sources always return
	// the same slice; dynamic sources may return a different slice across
	// calls as membership changes.
	Peers() []string
	// Watch invokes onChange with the updated peer list whenever
	// membership changes. Static sources never invoke onChange. Watch
	// returns immediately; the watch itself runs in the background until
	// ctx is canceled.
	Watch(ctx context.Context, onChange func([]string))
}

// StaticPeerSource returns a fixed peer list for the lifetime of the
// process, matching the reference deployment's hard-coded three addresses.
type StaticPeerSource struct {
	peers []string
}

// NewStaticPeerSource builds a PeerSource that never changes.
func NewStaticPeerSource(peers []string) *StaticPeerSource {
	return &StaticPeerSource{peers: peers}
}

func (s *StaticPeerSource) Peers() []string { return s.peers }

func (s *StaticPeerSource) Watch(ctx context.Context, onChange func([]string)) {}

// EtcdPeersPrefix is the key prefix under which peer addresses are
// registered, one address per key (mirroring the teacher's etcd-backed
// service discovery in gocache/registry, generalized from a gRPC
// resolver target to a plain address list since SPEC_FULL.md mandates a
// JSON-over-HTTP wire protocol rather than gRPC).
const EtcdPeersPrefix = "/meshcache/peers/"

// EtcdPeerSource watches an etcd key prefix for peer membership changes.
// It never replaces StaticPeerSource as the default; it exists for
// operators who want dynamic membership without recompiling the binary.
type EtcdPeerSource struct {
	client *clientv3.Client
	logger *zap.Logger
}

// NewEtcdPeerSource wraps an already-dialed etcd client.
func NewEtcdPeerSource(client *clientv3.Client, logger *zap.Logger) *EtcdPeerSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EtcdPeerSource{client: client, logger: logger}
}

// Peers performs a one-shot read of every address registered under
// EtcdPeersPrefix.
func (e *EtcdPeerSource) Peers() []string {
	return e.peersCtx(context.Background())
}

func (e *EtcdPeerSource) peersCtx(ctx context.Context) []string {
	resp, err := e.client.Get(ctx, EtcdPeersPrefix, clientv3.WithPrefix())
	if err != nil {
		e.logger.Warn("etcd peer lookup failed", zap.Error(err))
		return nil
	}
	peers := make([]string, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		peers = append(peers, string(kv.Value))
	}
	return peers
}

// Watch starts a background etcd watch on EtcdPeersPrefix and invokes
// onChange with the refreshed peer list on every event, until ctx is
// canceled.
func (e *EtcdPeerSource) Watch(ctx context.Context, onChange func([]string)) {
	watchCh := e.client.Watch(ctx, EtcdPeersPrefix, clientv3.WithPrefix())
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-watchCh:
				if !ok {
					return
				}
				onChange(e.peersCtx(ctx))
			}
		}
	}()
}
