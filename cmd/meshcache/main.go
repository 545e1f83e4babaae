// Command meshcache runs one node of the cache cluster. Flag and signal
// handling follow the go-leasering sibling's cmd/ringnode/main.go: a Cobra
// root command taking the listen port as a positional argument, with
// flags for the options a production deployment would want to override,
// and signal-driven graceful shutdown.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"

	"meshcache/internal/config"
	"meshcache/internal/node"
)

var (
	peers               []string
	virtualNodes        int
	maxEntries          int
	rateLimit           int
	healthProbeInterval time.Duration
	healthProbeTimeout  time.Duration
	etcdEndpoints       []string
	devLogging          bool
)

func main() {
	root := &cobra.Command{
		Use:   "meshcache <port>",
		Short: "Run a horizontally partitioned in-memory JSON cache node",
		Long: `meshcache runs one node of a sharded in-memory cache cluster.
Each node holds a bounded local map of string keys to arbitrary JSON
values and cooperates with sibling nodes, reached via a consistent hash
ring, so that the cluster behaves as a single sharded cache.`,
		Args: cobra.ExactArgs(1),
		RunE: runNode,
	}
	root.Flags().StringSliceVar(&peers, "peers", nil, "comma-separated peer addresses (default: the reference three-node cluster)")
	root.Flags().IntVar(&virtualNodes, "vnodes", 150, "virtual nodes per peer on the hash ring")
	root.Flags().IntVar(&maxEntries, "max-entries", 10000, "maximum number of entries held in the local LRU store")
	root.Flags().IntVar(&rateLimit, "rate-limit", 1000, "maximum client-facing requests admitted per second")
	root.Flags().DurationVar(&healthProbeInterval, "health-probe-interval", 10*time.Second, "interval between peer health probes")
	root.Flags().DurationVar(&healthProbeTimeout, "health-probe-timeout", 2*time.Second, "per-probe timeout budget")
	root.Flags().StringSliceVar(&etcdEndpoints, "etcd-endpoints", nil, "optional etcd endpoints for dynamic peer discovery; peers registered there, if any, replace --peers")
	root.Flags().BoolVar(&devLogging, "dev", false, "use zap's human-readable development logger instead of JSON")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the meshcache version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("meshcache (development build)")
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runNode(cmd *cobra.Command, args []string) error {
	port, err := strconv.Atoi(args[0])
	if err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("invalid port %q", args[0])
	}

	logger, err := buildLogger()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	cfg := config.Defaults(port)
	cfg.VirtualNodes = virtualNodes
	cfg.MaxEntries = maxEntries
	cfg.RateLimit = rateLimit
	cfg.HealthProbeInterval = healthProbeInterval
	cfg.HealthProbeTimeout = healthProbeTimeout
	if len(peers) > 0 {
		cfg.Peers = peers
	}

	peerSource, err := buildPeerSource(cfg, logger)
	if err != nil {
		return err
	}

	n := node.New(cfg, peerSource, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- n.Start(ctx)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server stopped unexpectedly: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := n.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func buildLogger() (*zap.Logger, error) {
	if devLogging {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func buildPeerSource(cfg *config.Config, logger *zap.Logger) (config.PeerSource, error) {
	if len(etcdEndpoints) == 0 {
		return config.NewStaticPeerSource(cfg.Peers), nil
	}
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   etcdEndpoints,
		DialTimeout: cfg.ConnectTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("dial etcd: %w", err)
	}
	return config.NewEtcdPeerSource(client, logger), nil
}
