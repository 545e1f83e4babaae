// Package health implements the Health Probe (C7): a background task that
// periodically checks every peer's /health endpoint and feeds the result
// into the Peer Stat Table. It is grounded directly on torua's
// internal/coordinator/health_monitor.go — same ticker-driven loop,
// context-cancellable Start/Stop, injectable check function for tests —
// generalized from torua's tri-state "healthy/unhealthy/unknown" status
// string plus consecutive-failure counter into a direct
// StatTable.Record/MarkHealthy call per probe, since the Peer Stat Table
// already owns the richer health computation (error rate, latency,
// staleness) that this probe's raw results feed.
package health

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"meshcache/internal/cluster"
)

// CheckFunc performs one health check against peer and reports whether it
// succeeded. The default hits GET /health; tests may inject their own.
type CheckFunc func(ctx context.Context, client *http.Client, peer string) error

// Probe periodically checks every configured peer (excluding self) and
// records the outcome into a StatTable. It runs for the lifetime of the
// process once started (SPEC_FULL.md §4.7).
type Probe struct {
	peersMu sync.Mutex
	peers   []string

	stats    *cluster.StatTable
	pool     *cluster.Pool
	interval time.Duration
	timeout  time.Duration
	check    CheckFunc
	logger   *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Probe over peers (self already excluded by the caller),
// checking every interval with timeout as the per-check budget.
func New(peers []string, stats *cluster.StatTable, pool *cluster.Pool, interval, timeout time.Duration, logger *zap.Logger) *Probe {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Probe{
		peers:    peers,
		stats:    stats,
		pool:     pool,
		interval: interval,
		timeout:  timeout,
		check:    defaultCheck,
		logger:   logger,
	}
}

// SetCheckFunc overrides the default HTTP check, for tests.
func (p *Probe) SetCheckFunc(fn CheckFunc) {
	p.check = fn
}

// UpdatePeers replaces the set of peers this probe checks. Called from a
// config.PeerSource's Watch callback when cluster membership changes, so a
// newly joined peer starts accumulating the observations is_healthy needs
// rather than sitting forever at its zero-observation default.
func (p *Probe) UpdatePeers(peers []string) {
	p.peersMu.Lock()
	p.peers = append([]string(nil), peers...)
	p.peersMu.Unlock()
}

// Start launches the probe loop in a background goroutine and returns
// immediately; it must not block the caller's accept loop.
func (p *Probe) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(ctx)
	}()
}

// Stop cancels the probe loop and waits for it to exit.
func (p *Probe) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

func (p *Probe) run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.checkAll(ctx)
	for {
		select {
		case <-ticker.C:
			p.checkAll(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// checkAll probes every peer concurrently, consistent with SPEC_FULL.md
// §4.7: "Probes to different peers proceed concurrently."
func (p *Probe) checkAll(ctx context.Context) {
	p.peersMu.Lock()
	peers := append([]string(nil), p.peers...)
	p.peersMu.Unlock()

	var wg sync.WaitGroup
	for _, peer := range peers {
		peer := peer
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.checkOne(ctx, peer)
		}()
	}
	wg.Wait()
}

func (p *Probe) checkOne(ctx context.Context, peer string) {
	checkCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	client := p.pool.ClientFor(peer)
	err := p.check(checkCtx, client, peer)
	latency := float64(time.Since(start)) / float64(time.Millisecond)

	ok := err == nil
	p.stats.Record(peer, latency, ok)
	p.stats.MarkHealthy(peer, ok)
	if !ok {
		p.logger.Warn("peer health check failed", zap.String("peer", peer), zap.Error(err))
	}
}

func defaultCheck(ctx context.Context, client *http.Client, peer string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, peer+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}
