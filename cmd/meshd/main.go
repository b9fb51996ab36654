// meshd is the overmesh control-plane daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/lucas/overmesh/internal/authshim"
	"github.com/lucas/overmesh/internal/bus"
	"github.com/lucas/overmesh/internal/config"
	"github.com/lucas/overmesh/internal/gatewayshim"
	"github.com/lucas/overmesh/internal/meshtypes"
	"github.com/lucas/overmesh/internal/observability"
	"github.com/lucas/overmesh/internal/peertransport"
	"github.com/lucas/overmesh/internal/portalloc"
	"github.com/lucas/overmesh/internal/proxyshim"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "/etc/overmesh/meshd.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("meshd %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("starting meshd", "version", version, "config", *configPath)

	loader := config.NewLoader()
	cfg, err := loader.LoadFile(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	if lvl, ok := logLevel(cfg.Observability.Logging.Level); ok {
		logger = slog.New(newLogHandler(cfg.Observability.Logging.Format, lvl))
		slog.SetDefault(logger)
	}

	slog.Info("configuration loaded",
		"node", cfg.Node.Name,
		"domains", cfg.Node.Domains,
		"peers_count", len(cfg.Peers),
		"hold_time", cfg.HoldTime,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)

	obsServer := observability.NewServer(cfg, logger)
	if err := obsServer.Start(ctx); err != nil {
		slog.Error("failed to start observability server", "error", err)
		os.Exit(1)
	}
	defer obsServer.Stop(context.Background())

	allocator := buildAllocator(cfg)

	var authValidator authshim.Validator = authshim.AllowAll{}
	if cfg.AuthEndpoint != "" {
		authValidator = authshim.NewHTTPValidator(cfg.AuthEndpoint)
	}

	var proxyClient proxyshim.Client
	if cfg.EnvoyConfig.Endpoint != "" {
		proxyClient = proxyshim.NewHTTPClient(cfg.EnvoyConfig.Endpoint)
	}

	var gatewayClient gatewayshim.Client
	if cfg.GQLGateway.Endpoint != "" {
		gatewayClient = gatewayshim.NewHTTPClient(cfg.GQLGateway.Endpoint)
	}

	transport := peertransport.New(logger, nil, func(target meshtypes.PeerInfo) string {
		if target.PeerToken != "" {
			return target.PeerToken
		}
		return cfg.NodeToken
	}, tlsResolver(cfg))

	meshBus, err := bus.New(bus.Options{
		Node: meshtypes.NodeIdentity{
			Name:          cfg.Node.Name,
			Endpoint:      cfg.Node.Endpoint,
			Domains:       cfg.Node.Domains,
			PublicAddress: cfg.Node.PublicAddress,
			EnvoyAddress:  cfg.Node.EnvoyAddress,
		},
		NodeToken:     cfg.NodeToken,
		HoldTime:      cfg.HoldTime,
		TickInterval:  cfg.TickInterval,
		Allocator:     allocator,
		AuthValidator: authValidator,
		ProxyClient:   proxyClient,
		GatewayClient: gatewayClient,
		TLS: &proxyshim.TLSConfig{
			CertChain:         cfg.TLSConfig.CertChain,
			PrivateKey:        cfg.TLSConfig.PrivateKey,
			CABundle:          cfg.TLSConfig.CABundle,
			RequireClientCert: cfg.TLSConfig.RequireClientCert,
		},
		Transport: transport,
		Logger:    logger,
		Metrics:   metrics,
	})
	if err != nil {
		slog.Error("failed to construct bus", "error", err)
		os.Exit(1)
	}

	grpcServer, err := startGRPCServer(cfg, meshBus, logger)
	if err != nil {
		slog.Error("failed to start grpc listener", "error", err)
		os.Exit(1)
	}
	defer grpcServer.Stop()

	for _, p := range cfg.Peers {
		peer := meshtypes.PeerInfo{
			Name:          p.Name,
			Endpoint:      p.Endpoint,
			PublicAddress: p.PublicAddress,
			EnvoyAddress:  p.EnvoyAddress,
			PeerToken:     p.PeerToken,
		}
		if err := meshBus.NetworkClient().AddPeer(ctx, "", peer); err != nil {
			slog.Error("failed to originate configured peer", "peer", p.Name, "error", err)
		}
	}

	go meshBus.RunTick(ctx)

	obsServer.SetReady(true)
	slog.Info("meshd initialized, waiting for events", "endpoint", cfg.Node.Endpoint)

	<-ctx.Done()

	slog.Info("shutting down meshd")
	meshBus.Stop()
}

// buildAllocator constructs the port allocator from envoyConfig.portRange,
// falling back to the config package's documented default (20000-29999)
// when the loaded config somehow carries none (Defaults() always sets one,
// but a directly-constructed config.Config in tests might not).
func buildAllocator(cfg *config.Config) *portalloc.Allocator {
	ranges := make([]portalloc.Range, 0, len(cfg.EnvoyConfig.PortRange))
	for _, r := range cfg.EnvoyConfig.PortRange {
		ranges = append(ranges, portalloc.Range{Min: r.Min, Max: r.Max})
	}
	if len(ranges) == 0 {
		ranges = append(ranges, portalloc.Range{Min: 20000, Max: 29999})
	}
	return portalloc.New(ranges...)
}

// tlsResolver returns a peertransport.TLSResolver that dials peers with
// mTLS when a tlsConfig is configured, or nil to fall back to insecure
// dev-mode dialing.
func tlsResolver(cfg *config.Config) peertransport.TLSResolver {
	if cfg.TLSConfig.CertChain == "" {
		return nil
	}
	return func() credentials.TransportCredentials {
		creds, err := peertransport.LoadClientTLSConfig(cfg.TLSConfig)
		if err != nil {
			slog.Error("failed to load client tls config, falling back to insecure", "error", err)
			return insecure.NewCredentials()
		}
		return creds
	}
}

// startGRPCServer binds the node's endpoint and registers both the
// peer-facing iBGP surface and the meshctl-facing admin surface on it.
func startGRPCServer(cfg *config.Config, meshBus *bus.Bus, logger *slog.Logger) (*grpc.Server, error) {
	lis, err := net.Listen("tcp", cfg.Node.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.Node.Endpoint, err)
	}

	var opts []grpc.ServerOption
	if cfg.TLSConfig.CertChain != "" {
		creds, err := peertransport.LoadServerTLSConfig(cfg.TLSConfig)
		if err != nil {
			return nil, fmt.Errorf("load server tls config: %w", err)
		}
		opts = append(opts, grpc.Creds(creds))
	}

	server := grpc.NewServer(opts...)
	meshBus.RegisterGRPC(server)

	go func() {
		if err := server.Serve(lis); err != nil {
			logger.Error("grpc server stopped", "error", err)
		}
	}()

	return server, nil
}

func logLevel(level string) (slog.Level, bool) {
	switch level {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

func newLogHandler(format string, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if format == "text" {
		return slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.NewJSONHandler(os.Stdout, opts)
}
