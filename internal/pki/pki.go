// Package pki issues the mTLS material meshd's tlsConfig block consumes: a
// mesh-scoped root CA and per-node leaf certificates signed by it.
package pki

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Bundle is the certChain/privateKey/caBundle triple meshd's tlsConfig
// expects, as paths on disk.
type Bundle struct {
	CertChain  string
	PrivateKey string
	CABundle   string
}

// IssueNodeBundle generates a fresh CA scoped to hostname's mesh domain (if
// one does not already exist at outputDir) and a leaf certificate for
// hostname signed by it, returning the path triple meshctl cert prints for
// the daemon's tlsConfig. Reissuing for a second hostname under the same
// outputDir reuses the existing CA rather than regenerating it, so every
// node in a mesh shares one root of trust.
func IssueNodeBundle(outputDir, hostname string, ips []net.IP, validityDays int) (Bundle, error) {
	caCertPath := filepath.Join(outputDir, "ca.crt")
	caKeyPath := filepath.Join(outputDir, "ca.key")

	if _, err := os.Stat(caCertPath); os.IsNotExist(err) {
		if err := GenerateCA(outputDir, meshDomain(hostname), validityDays); err != nil {
			return Bundle{}, fmt.Errorf("failed to generate CA: %w", err)
		}
	}

	if err := GenerateHostCert(outputDir, caCertPath, caKeyPath, hostname, ips, validityDays); err != nil {
		return Bundle{}, err
	}

	return Bundle{
		CertChain:  filepath.Join(outputDir, fmt.Sprintf("%s.crt", hostname)),
		PrivateKey: filepath.Join(outputDir, fmt.Sprintf("%s.key", hostname)),
		CABundle:   caCertPath,
	}, nil
}

// meshDomain strips the leaf label off a node name (e.g. "a.mesh.internal"
// -> "mesh.internal"), matching the domain suffix meshtypes.NodeIdentity
// validates node names against. A bare, dotless hostname is its own domain.
func meshDomain(hostname string) string {
	if i := strings.Index(hostname, "."); i >= 0 && i < len(hostname)-1 {
		return hostname[i+1:]
	}
	return hostname
}

// GenerateCA generates a self-signed root CA certificate and private key
// scoped to domain, used to sign every node's leaf certificate under that
// mesh domain.
func GenerateCA(outputDir, domain string, validityDays int) error {
	priv, err := rsa.GenerateKey(rand.Reader, 4096)
	if err != nil {
		return fmt.Errorf("failed to generate private key: %w", err)
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			Organization: []string{"overmesh"},
			CommonName:   fmt.Sprintf("%s mesh root CA", domain),
		},
		NotBefore: time.Now(),
		NotAfter:  time.Now().Add(time.Duration(validityDays) * 24 * time.Hour),

		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	derBytes, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return fmt.Errorf("failed to create certificate: %w", err)
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	caCertPath := filepath.Join(outputDir, "ca.crt")
	caCertFile, err := os.Create(caCertPath)
	if err != nil {
		return fmt.Errorf("failed to create ca.crt: %w", err)
	}
	defer caCertFile.Close()

	if err := pem.Encode(caCertFile, &pem.Block{Type: "CERTIFICATE", Bytes: derBytes}); err != nil {
		return fmt.Errorf("failed to encode ca.crt: %w", err)
	}

	caKeyPath := filepath.Join(outputDir, "ca.key")
	caKeyFile, err := os.OpenFile(caKeyPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create ca.key: %w", err)
	}
	defer caKeyFile.Close()

	privBytes := x509.MarshalPKCS1PrivateKey(priv)
	if err := pem.Encode(caKeyFile, &pem.Block{Type: "RSA PRIVATE KEY", Bytes: privBytes}); err != nil {
		return fmt.Errorf("failed to encode ca.key: %w", err)
	}

	return nil
}

// GenerateHostCert generates a node leaf certificate signed by the
// provided CA. hostname is the node's mesh name (e.g. "a.mesh.internal"),
// the same identity carried in meshtypes.NodeIdentity.Name.
func GenerateHostCert(outputDir, caCertPath, caKeyPath, hostname string, ips []net.IP, validityDays int) error {
	caCert, caKey, err := loadCA(caCertPath, caKeyPath)
	if err != nil {
		return fmt.Errorf("failed to load CA: %w", err)
	}

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return fmt.Errorf("failed to generate host key: %w", err)
	}

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return fmt.Errorf("failed to generate serial number: %w", err)
	}

	template := x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Organization: []string{"overmesh"},
			CommonName:   hostname,
		},
		NotBefore: time.Now(),
		NotAfter:  time.Now().Add(time.Duration(validityDays) * 24 * time.Hour),

		KeyUsage:    x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},

		DNSNames:    []string{hostname, "localhost"},
		IPAddresses: append([]net.IP{net.ParseIP("127.0.0.1")}, ips...),
	}

	derBytes, err := x509.CreateCertificate(rand.Reader, &template, caCert, &priv.PublicKey, caKey)
	if err != nil {
		return fmt.Errorf("failed to create host certificate: %w", err)
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	hostCertPath := filepath.Join(outputDir, fmt.Sprintf("%s.crt", hostname))
	hostCertFile, err := os.Create(hostCertPath)
	if err != nil {
		return fmt.Errorf("failed to create host cert file: %w", err)
	}
	defer hostCertFile.Close()

	if err := pem.Encode(hostCertFile, &pem.Block{Type: "CERTIFICATE", Bytes: derBytes}); err != nil {
		return fmt.Errorf("failed to encode host cert: %w", err)
	}

	hostKeyPath := filepath.Join(outputDir, fmt.Sprintf("%s.key", hostname))
	hostKeyFile, err := os.OpenFile(hostKeyPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create host key file: %w", err)
	}
	defer hostKeyFile.Close()

	privBytes := x509.MarshalPKCS1PrivateKey(priv)
	if err := pem.Encode(hostKeyFile, &pem.Block{Type: "RSA PRIVATE KEY", Bytes: privBytes}); err != nil {
		return fmt.Errorf("failed to encode host key: %w", err)
	}

	return nil
}

func loadCA(certPath, keyPath string) (*x509.Certificate, *rsa.PrivateKey, error) {
	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read CA cert %s: %w", certPath, err)
	}
	block, _ := pem.Decode(certPEM)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, nil, fmt.Errorf("failed to decode CA cert PEM")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse CA cert: %w", err)
	}

	keyPEM, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read CA key %s: %w", keyPath, err)
	}
	block, _ = pem.Decode(keyPEM)
	if block == nil || block.Type != "RSA PRIVATE KEY" {
		return nil, nil, fmt.Errorf("failed to decode CA key PEM")
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse CA key: %w", err)
	}

	return cert, key, nil
}
