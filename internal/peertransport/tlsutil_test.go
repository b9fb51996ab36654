package peertransport

import (
	"testing"

	"github.com/lucas/overmesh/internal/config"
	"github.com/lucas/overmesh/internal/pki"
)

func TestLoadServerAndClientTLSConfigFromIssuedBundle(t *testing.T) {
	dir := t.TempDir()

	bundle, err := pki.IssueNodeBundle(dir, "a.mesh.test", nil, 30)
	if err != nil {
		t.Fatalf("IssueNodeBundle: %v", err)
	}

	serverCfg := config.TLSConfig{
		CertChain:         bundle.CertChain,
		PrivateKey:        bundle.PrivateKey,
		CABundle:          bundle.CABundle,
		RequireClientCert: true,
	}
	if _, err := LoadServerTLSConfig(serverCfg); err != nil {
		t.Fatalf("LoadServerTLSConfig: %v", err)
	}

	clientCfg := config.TLSConfig{
		CertChain: bundle.CertChain,
		PrivateKey: bundle.PrivateKey,
		CABundle:   bundle.CABundle,
	}
	if _, err := LoadClientTLSConfig(clientCfg); err != nil {
		t.Fatalf("LoadClientTLSConfig: %v", err)
	}
}

func TestLoadClientTLSConfigInsecureFallbackWithoutCABundle(t *testing.T) {
	if _, err := LoadClientTLSConfig(config.TLSConfig{}); err != nil {
		t.Fatalf("LoadClientTLSConfig with no caBundle should fall back to insecure dev mode: %v", err)
	}
}

func TestLoadServerTLSConfigFailsOnMissingCertFiles(t *testing.T) {
	_, err := LoadServerTLSConfig(config.TLSConfig{CertChain: "/nonexistent/a.crt", PrivateKey: "/nonexistent/a.key"})
	if err == nil {
		t.Fatal("expected an error loading a server cert from nonexistent files")
	}
}
