// Package proxyshim adapts the external data-plane proxy configuration
// service, pushed the full desired route and port-allocation state via
// UpdateRoutes.
package proxyshim

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/lucas/overmesh/internal/meshtypes"
)

// TLSConfig is forwarded verbatim from the node's configured tlsConfig.
type TLSConfig struct {
	CertChain         string `json:"certChain"`
	PrivateKey        string `json:"privateKey"`
	CABundle          string `json:"caBundle"`
	RequireClientCert bool   `json:"requireClientCert"`
}

// RoutePayload is the full data-plane programming push: every local and
// internal route the RIB currently knows about, the port allocator's
// current bindings, and optional TLS material.
type RoutePayload struct {
	Local           []meshtypes.DataChannelDefinition `json:"local"`
	Internal        []meshtypes.InternalRoute         `json:"internal"`
	PortAllocations map[string]int                    `json:"portAllocations"`
	TLS             *TLSConfig                        `json:"tls,omitempty"`
}

// Client is the capability the bus calls post-commit to reconcile the
// data plane. nil is a valid Client pointer value in bus wiring terms: the
// bus skips this step entirely when envoyConfig.endpoint is unset.
type Client interface {
	UpdateRoutes(ctx context.Context, payload RoutePayload) error
}

// HTTPClient posts the payload as JSON to a configured endpoint.
type HTTPClient struct {
	endpoint   string
	httpClient *http.Client
}

func NewHTTPClient(endpoint string) *HTTPClient {
	return &HTTPClient{endpoint: endpoint, httpClient: &http.Client{Timeout: 10 * time.Second}}
}

func (c *HTTPClient) UpdateRoutes(ctx context.Context, payload RoutePayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("proxyshim: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("proxyshim: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("proxyshim: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("proxyshim: unexpected status %d", resp.StatusCode)
	}
	return nil
}
