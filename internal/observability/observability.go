// Package observability provides logging, metrics, and health check
// functionality for meshd.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lucas/overmesh/internal/config"
)

// Metrics holds all Prometheus metrics for meshd.
type Metrics struct {
	// Peer metrics
	PeersByStatus *prometheus.GaugeVec

	// Route metrics
	RoutesLocal    prometheus.Gauge
	RoutesInternal prometheus.Gauge

	// Propagation fan-out outcomes
	PropagationsTotal *prometheus.CounterVec

	// Port allocator utilization
	PortAllocatorInUse    prometheus.Gauge
	PortAllocatorCapacity prometheus.Gauge

	// Pipeline and post-commit latency
	PipelineDuration   *prometheus.HistogramVec
	PostCommitDuration prometheus.Histogram
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PeersByStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "overmesh",
			Name:      "peers_by_status",
			Help:      "Number of configured peers, partitioned by connection status",
		}, []string{"status"}),
		RoutesLocal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "overmesh",
			Name:      "routes_local",
			Help:      "Number of locally originated data channels",
		}),
		RoutesInternal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "overmesh",
			Name:      "routes_internal",
			Help:      "Number of routes learned from peers",
		}),
		PropagationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "overmesh",
			Name:      "propagations_total",
			Help:      "Total number of peer propagations attempted, by kind and outcome",
		}, []string{"kind", "outcome"}),
		PortAllocatorInUse: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "overmesh",
			Name:      "port_allocator_in_use",
			Help:      "Number of ports currently allocated",
		}),
		PortAllocatorCapacity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "overmesh",
			Name:      "port_allocator_capacity",
			Help:      "Total capacity across all configured port ranges",
		}),
		PipelineDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "overmesh",
			Name:      "pipeline_duration_seconds",
			Help:      "Duration of the plan+commit segment of the action pipeline, by action kind",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		PostCommitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "overmesh",
			Name:      "post_commit_duration_seconds",
			Help:      "Duration of the detached post-commit task (fan-out plus data-plane reconciliation)",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		m.PeersByStatus,
		m.RoutesLocal,
		m.RoutesInternal,
		m.PropagationsTotal,
		m.PortAllocatorInUse,
		m.PortAllocatorCapacity,
		m.PipelineDuration,
		m.PostCommitDuration,
	)

	return m
}

// Server provides HTTP endpoints for metrics and health checks.
type Server struct {
	cfg    *config.Config
	logger *slog.Logger
	server *http.Server

	mu        sync.RWMutex
	healthy   bool
	ready     bool
	startTime time.Time
}

// NewServer creates a new observability server.
func NewServer(cfg *config.Config, logger *slog.Logger) *Server {
	return &Server{
		cfg:       cfg,
		logger:    logger,
		healthy:   true,
		ready:     false,
		startTime: time.Now(),
	}
}

// Start starts the combined metrics/health HTTP server if enabled.
func (s *Server) Start(ctx context.Context) error {
	if !s.cfg.Observability.Metrics.Enabled {
		return nil
	}

	addr := fmt.Sprintf("%s:%d",
		s.cfg.Observability.Metrics.Listen.Address,
		s.cfg.Observability.Metrics.Listen.Port,
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/livez", s.handleLive)

	s.server = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		s.logger.Info("observability server started", "address", addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("observability server error", "error", err)
		}
	}()

	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	healthy := s.healthy
	s.mu.RUnlock()

	if healthy {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, `{"status": "healthy"}`)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintln(w, `{"status": "unhealthy"}`)
	}
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	ready := s.ready
	s.mu.RUnlock()

	if ready {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, `{"status": "ready"}`)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintln(w, `{"status": "not ready"}`)
	}
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(s.startTime).Seconds()
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status": "alive", "uptime_seconds": %.0f}`+"\n", uptime)
}

// SetHealthy sets the health status.
func (s *Server) SetHealthy(healthy bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthy = healthy
}

// SetReady sets the readiness status.
func (s *Server) SetReady(ready bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = ready
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
