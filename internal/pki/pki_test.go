package pki

import (
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
)

func TestIssueNodeBundleProducesVerifiableChain(t *testing.T) {
	dir := t.TempDir()

	bundle, err := IssueNodeBundle(dir, "a.mesh.internal", nil, 30)
	if err != nil {
		t.Fatalf("IssueNodeBundle: %v", err)
	}

	for _, path := range []string{bundle.CertChain, bundle.PrivateKey, bundle.CABundle} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected %s to exist: %v", path, err)
		}
	}

	caCert := mustParseCert(t, bundle.CABundle)
	leafCert := mustParseCert(t, bundle.CertChain)

	pool := x509.NewCertPool()
	pool.AddCert(caCert)
	if _, err := leafCert.Verify(x509.VerifyOptions{Roots: pool, DNSName: "a.mesh.internal"}); err != nil {
		t.Fatalf("leaf cert did not verify against issued CA: %v", err)
	}
}

func TestIssueNodeBundleReusesExistingCA(t *testing.T) {
	dir := t.TempDir()

	first, err := IssueNodeBundle(dir, "a.mesh.internal", nil, 30)
	if err != nil {
		t.Fatalf("first IssueNodeBundle: %v", err)
	}
	firstCA, err := os.ReadFile(first.CABundle)
	if err != nil {
		t.Fatalf("read first CA: %v", err)
	}

	second, err := IssueNodeBundle(dir, "b.mesh.internal", nil, 30)
	if err != nil {
		t.Fatalf("second IssueNodeBundle: %v", err)
	}
	secondCA, err := os.ReadFile(second.CABundle)
	if err != nil {
		t.Fatalf("read second CA: %v", err)
	}

	if string(firstCA) != string(secondCA) {
		t.Fatal("expected the second call to reuse the existing CA rather than regenerate it")
	}
}

func mustParseCert(t *testing.T, path string) *x509.Certificate {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		t.Fatalf("failed to decode PEM in %s", path)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		t.Fatalf("parse certificate %s: %v", path, err)
	}
	return cert
}

func TestGenerateCAWritesFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "ca")
	if err := GenerateCA(dir, "mesh.internal", 365); err != nil {
		t.Fatalf("GenerateCA: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "ca.crt")); err != nil {
		t.Fatalf("expected ca.crt: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "ca.key")); err != nil {
		t.Fatalf("expected ca.key: %v", err)
	}

	cert := mustParseCert(t, filepath.Join(dir, "ca.crt"))
	if cert.Subject.CommonName != "mesh.internal mesh root CA" {
		t.Fatalf("expected CA common name to carry the domain, got %q", cert.Subject.CommonName)
	}
}

func TestIssueNodeBundleScopesCAToMeshDomain(t *testing.T) {
	dir := t.TempDir()

	bundle, err := IssueNodeBundle(dir, "a.mesh.internal", nil, 30)
	if err != nil {
		t.Fatalf("IssueNodeBundle: %v", err)
	}

	caCert := mustParseCert(t, bundle.CABundle)
	if caCert.Subject.CommonName != "mesh.internal mesh root CA" {
		t.Fatalf("expected CA scoped to mesh.internal, got %q", caCert.Subject.CommonName)
	}
}
