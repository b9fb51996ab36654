package peertransport

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"google.golang.org/grpc/credentials"

	"github.com/lucas/overmesh/internal/config"
)

// LoadServerTLSConfig builds server-side transport credentials from the
// node's tlsConfig block. RequireClientCert enables mTLS, refusing any
// inbound dial that doesn't present a certificate signed by CABundle.
func LoadServerTLSConfig(cfg config.TLSConfig) (credentials.TransportCredentials, error) {
	cert, err := tls.LoadX509KeyPair(cfg.CertChain, cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load server certificate: %w", err)
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}

	if cfg.RequireClientCert {
		caPool, err := loadCAPool(cfg.CABundle)
		if err != nil {
			return nil, err
		}
		tlsConfig.ClientCAs = caPool
		tlsConfig.ClientAuth = tls.RequireAndVerifyClientCert
	}

	return credentials.NewTLS(tlsConfig), nil
}

// LoadClientTLSConfig builds client-side transport credentials for dialing
// another node or this node's own admin surface. With no caBundle
// configured it falls back to InsecureSkipVerify for development use.
func LoadClientTLSConfig(cfg config.TLSConfig) (credentials.TransportCredentials, error) {
	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}

	if cfg.CertChain != "" && cfg.PrivateKey != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertChain, cfg.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	if cfg.CABundle != "" {
		caPool, err := loadCAPool(cfg.CABundle)
		if err != nil {
			return nil, err
		}
		tlsConfig.RootCAs = caPool
	} else {
		tlsConfig.InsecureSkipVerify = true
	}

	return credentials.NewTLS(tlsConfig), nil
}

func loadCAPool(caFile string) (*x509.CertPool, error) {
	caData, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA bundle %s: %w", caFile, err)
	}

	caPool := x509.NewCertPool()
	if !caPool.AppendCertsFromPEM(caData) {
		return nil, fmt.Errorf("failed to parse CA bundle %s", caFile)
	}

	return caPool, nil
}
