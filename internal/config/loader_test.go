package config

import (
	"testing"
	"time"
)

func TestLoader_Load_ValidConfig(t *testing.T) {
	yaml := `
version: 1
node:
  name: "a.mesh.internal"
  domains: ["mesh.internal"]
  endpoint: "10.0.0.1:7100"
peers:
  - name: "b.mesh.internal"
    endpoint: "10.0.0.2:7100"
`
	loader := NewLoader()
	cfg, err := loader.Load([]byte(yaml))
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if cfg.Node.Name != "a.mesh.internal" {
		t.Errorf("expected node.name = 'a.mesh.internal', got '%s'", cfg.Node.Name)
	}
	if len(cfg.Peers) != 1 {
		t.Errorf("expected 1 peer, got %d", len(cfg.Peers))
	}
}

func TestLoader_Load_DefaultValues(t *testing.T) {
	yaml := `
version: 1
node:
  name: "a.mesh.internal"
  domains: ["mesh.internal"]
  endpoint: "10.0.0.1:7100"
`
	loader := NewLoader()
	cfg, err := loader.Load([]byte(yaml))
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if cfg.HoldTime != 90*time.Second {
		t.Errorf("expected default holdTime = 90s, got %s", cfg.HoldTime)
	}
	if cfg.TickInterval != 30*time.Second {
		t.Errorf("expected default tickInterval = 30s, got %s", cfg.TickInterval)
	}
	if cfg.Observability.Logging.Level != "info" {
		t.Errorf("expected default logging.level = 'info', got '%s'", cfg.Observability.Logging.Level)
	}
	if len(cfg.EnvoyConfig.PortRange) != 1 || cfg.EnvoyConfig.PortRange[0].Min != 20000 {
		t.Errorf("expected default envoyConfig.portRange [20000,29999], got %v", cfg.EnvoyConfig.PortRange)
	}
}

func TestLoader_Load_MissingRequired(t *testing.T) {
	yaml := `
version: 1
# Missing node
`
	loader := NewLoader()
	_, err := loader.Load([]byte(yaml))
	if err == nil {
		t.Fatal("expected validation error for missing node")
	}
}

func TestLoader_Load_MissingNodeDomains(t *testing.T) {
	yaml := `
version: 1
node:
  name: "a.mesh.internal"
  endpoint: "10.0.0.1:7100"
`
	loader := NewLoader()
	_, err := loader.Load([]byte(yaml))
	if err == nil {
		t.Fatal("expected validation error for missing node.domains")
	}
}

func TestLoader_Load_NodeNameOutsideDomain(t *testing.T) {
	yaml := `
version: 1
node:
  name: "a.other.example"
  domains: ["mesh.internal"]
  endpoint: "10.0.0.1:7100"
`
	loader := NewLoader()
	_, err := loader.Load([]byte(yaml))
	if err == nil {
		t.Fatal("expected semantic validation error for node name outside configured domain")
	}
}

func TestLoader_Load_DescendingPortRange(t *testing.T) {
	yaml := `
version: 1
node:
  name: "a.mesh.internal"
  domains: ["mesh.internal"]
  endpoint: "10.0.0.1:7100"
envoyConfig:
  portRange:
    - min: 30000
      max: 20000
`
	loader := NewLoader()
	_, err := loader.Load([]byte(yaml))
	if err == nil {
		t.Fatal("expected validation error for descending port range")
	}
}

func TestLoader_Load_NonPositiveHoldTime(t *testing.T) {
	yaml := `
version: 1
node:
  name: "a.mesh.internal"
  domains: ["mesh.internal"]
  endpoint: "10.0.0.1:7100"
holdTime: 0s
`
	loader := NewLoader()
	_, err := loader.Load([]byte(yaml))
	if err == nil {
		t.Fatal("expected validation error for non-positive holdTime")
	}
}

func TestLoader_Load_FullConfig(t *testing.T) {
	yaml := `
version: 1
node:
  name: "curitiba-a.mesh.internal"
  domains: ["mesh.internal"]
  endpoint: "10.10.0.11:7100"
  publicAddress: "203.0.113.5:7100"
  envoyAddress: "10.10.0.11:10000"
holdTime: 60s
tickInterval: 20s
nodeToken: "shared-secret"
authEndpoint: "https://auth.internal/validate"
envoyConfig:
  endpoint: "https://envoy-xds.internal"
  portRange:
    - min: 21000
      max: 21999
gqlGatewayConfig:
  endpoint: "https://gateway.internal/admin"
tlsConfig:
  certChain: "/etc/overmesh/tls/chain.pem"
  privateKey: "/etc/overmesh/tls/key.pem"
  caBundle: "/etc/overmesh/tls/ca.pem"
  requireClientCert: true
peers:
  - name: "curitiba-b.mesh.internal"
    endpoint: "10.10.0.12:7100"
    peerToken: "peer-shared-secret"
observability:
  logging:
    level: "info"
    format: "json"
  metrics:
    enabled: true
    listen:
      address: "127.0.0.1"
      port: 9109
`
	loader := NewLoader()
	cfg, err := loader.Load([]byte(yaml))
	if err != nil {
		t.Fatalf("expected no error for full config, got: %v", err)
	}

	if cfg.Node.Name != "curitiba-a.mesh.internal" {
		t.Errorf("unexpected node.name: %s", cfg.Node.Name)
	}
	if cfg.HoldTime != 60*time.Second {
		t.Errorf("expected holdTime = 60s, got %s", cfg.HoldTime)
	}
	if len(cfg.Peers) != 1 || cfg.Peers[0].Name != "curitiba-b.mesh.internal" {
		t.Errorf("unexpected peers: %+v", cfg.Peers)
	}
	if !cfg.TLSConfig.RequireClientCert {
		t.Errorf("expected tlsConfig.requireClientCert = true")
	}
}
