package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ringkv/internal/addr"
	"ringkv/internal/audit"
	"ringkv/internal/clock"
	"ringkv/internal/config"
	"ringkv/internal/discovery"
	"ringkv/internal/node"
	"ringkv/internal/telemetry"
	"ringkv/internal/transport"
)

var (
	nodeID     uint32
	nodePort   uint16
	listenAddr string
	advertise  string
	httpAddr   string
	peers      string
	introducer string
	tickEvery  time.Duration
	etcd       []string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run one node over gRPC",
	Long: `Run a single node. Protocol messages travel over gRPC; clients use the
HTTP API and metrics are exported at /metrics.

Examples:
  # Introducer
  ringkv serve --id 1 --listen :7001 --http :8001 \
    --peers 1:0=127.0.0.1:7001,2:0=127.0.0.1:7002,3:0=127.0.0.1:7003

  # Resolve peers through etcd instead of a static list
  ringkv serve --id 2 --listen :7002 --http :8002 --advertise 10.0.0.2:7002 \
    --etcd http://etcd:2379`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Uint32Var(&nodeID, "id", 1, "Node id")
	serveCmd.Flags().Uint16Var(&nodePort, "port", 0, "Node port (second half of the node address)")
	serveCmd.Flags().StringVar(&listenAddr, "listen", ":7001", "gRPC listen address")
	serveCmd.Flags().StringVar(&advertise, "advertise", "", "gRPC endpoint published to etcd (defaults to --listen)")
	serveCmd.Flags().StringVar(&httpAddr, "http", ":8001", "HTTP listen address for the client API and metrics")
	serveCmd.Flags().StringVar(&peers, "peers", "", "Static peer endpoints (id:port=host:port,...)")
	serveCmd.Flags().StringVar(&introducer, "introducer", "", "Introducer address (overrides the parameters)")
	serveCmd.Flags().DurationVar(&tickEvery, "tick", 100*time.Millisecond, "Wall time per protocol tick")
	serveCmd.Flags().StringSliceVar(&etcd, "etcd", nil, "etcd endpoints for peer discovery")
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	params, err := loadParams()
	if err != nil {
		return err
	}
	if introducer != "" {
		if params.Introducer, err = addr.Parse(introducer); err != nil {
			return fmt.Errorf("--introducer: %w", err)
		}
	}
	if tickEvery <= 0 {
		return fmt.Errorf("--tick must be positive")
	}

	self := addr.New(nodeID, nodePort)
	logger = logger.With(zap.Stringer("self", self))

	peerList, err := config.ParsePeers(peers)
	if err != nil {
		return err
	}
	var book transport.AddressBook = transport.StaticBook(config.Targets(peerList))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(etcd) > 0 {
		if book, err = startDiscovery(ctx, self, book, logger); err != nil {
			return err
		}
	}

	tr := transport.NewGRPC(self, book, logger.Named("transport"),
		transport.WithCallTimeout(callTimeout(tickEvery, params)))
	defer tr.Close()
	lis, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", listenAddr, err)
	}
	go func() {
		if err := tr.Serve(lis); err != nil {
			logger.Error("gRPC server stopped", zap.Error(err))
		}
	}()

	clk := clock.NewManual(0)
	outcomes := node.NewOutcomes(self, 4096)
	n, err := node.New(self, clk, tr, node.Options{
		Params: params,
		Sink:   audit.Multi{audit.NewLogger(logger), outcomes},
		Logger: logger,
	})
	if err != nil {
		return err
	}
	srv := node.NewServer(n, outcomes, logger.Named("http"))
	srv.Start()

	mux := http.NewServeMux()
	mux.Handle("/metrics", telemetry.MetricsHandler())
	mux.Handle("/", srv.Handler())
	httpSrv := &http.Server{Addr: httpAddr, Handler: mux}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server stopped", zap.Error(err))
			stop()
		}
	}()
	logger.Info("node serving",
		zap.String("grpc", listenAddr), zap.String("http", httpAddr), zap.Duration("tick", tickEvery))

	ticker := time.NewTicker(tickEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return httpSrv.Shutdown(shutdownCtx)
		case <-ticker.C:
			clk.Advance(1)
			if err := srv.Tick(); err != nil {
				logger.Warn("tick reported protocol errors", zap.Error(err))
			}
		}
	}
}

// callTimeout keeps a single delivery well inside the eviction window.
func callTimeout(tick time.Duration, p config.Params) time.Duration {
	return min(500*time.Millisecond, tick*time.Duration(p.TRemove)/4)
}

func startDiscovery(ctx context.Context, self addr.Address, fallback transport.AddressBook, logger *zap.Logger) (transport.AddressBook, error) {
	cli, err := discovery.NewClient(etcd)
	if err != nil {
		return nil, fmt.Errorf("etcd client: %w", err)
	}
	go func() {
		<-ctx.Done()
		cli.Close()
	}()

	target := advertise
	if target == "" {
		target = listenAddr
	}
	if _, err := discovery.Register(ctx, cli, self, target, 10); err != nil {
		return nil, err
	}

	book := discovery.NewBook(fallback, logger.Named("discovery"))
	rev, err := book.Sync(ctx, cli)
	if err != nil {
		return nil, err
	}
	go book.Watch(ctx, cli, rev)

	logger.Info("discovery ready", zap.Strings("etcd", etcd), zap.Int("endpoints", book.Len()))
	return book, nil
}
