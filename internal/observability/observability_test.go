package observability

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lucas/overmesh/internal/config"
)

func TestNewMetricsRegistersWithoutPanic(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.PeersByStatus.WithLabelValues("connected").Set(1)
	m.RoutesLocal.Set(3)
	m.PropagationsTotal.WithLabelValues("update", "ok").Inc()

	if count := testutilGather(t, reg); count == 0 {
		t.Fatal("expected at least one metric family after recording values")
	}
}

func testutilGather(t *testing.T, reg *prometheus.Registry) int {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	return len(families)
}

func TestServerHealthHandlers(t *testing.T) {
	cfg := config.Defaults()
	cfg.Node = config.NodeConfig{Name: "a.mesh.internal", Domains: []string{"mesh.internal"}, Endpoint: "127.0.0.1:0"}

	s := NewServer(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))

	rr := httptest.NewRecorder()
	s.handleHealth(rr, httptest.NewRequest("GET", "/healthz", nil))
	if rr.Code != 200 {
		t.Fatalf("expected 200 from default-healthy handler, got %d", rr.Code)
	}

	s.SetReady(true)
	rr = httptest.NewRecorder()
	s.handleReady(rr, httptest.NewRequest("GET", "/readyz", nil))
	if rr.Code != 200 {
		t.Fatalf("expected 200 once ready, got %d", rr.Code)
	}

	s.SetHealthy(false)
	rr = httptest.NewRecorder()
	s.handleHealth(rr, httptest.NewRequest("GET", "/healthz", nil))
	if rr.Code != 503 {
		t.Fatalf("expected 503 once unhealthy, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	s.handleLive(rr, httptest.NewRequest("GET", "/livez", nil))
	if rr.Code != 200 {
		t.Fatalf("expected 200 from livez, got %d", rr.Code)
	}
}
