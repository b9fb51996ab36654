// Package config defines the configuration structures for the overmesh
// control-plane daemon.
package config

import "time"

// Config is the root configuration structure for meshd.
type Config struct {
	Version       int              `yaml:"version" validate:"required,eq=1"`
	Node          NodeConfig       `yaml:"node" validate:"required"`
	HoldTime      time.Duration    `yaml:"holdTime"`
	TickInterval  time.Duration    `yaml:"tickInterval"`
	NodeToken     string           `yaml:"nodeToken"`
	AuthEndpoint  string           `yaml:"authEndpoint"`
	EnvoyConfig   EnvoyConfig      `yaml:"envoyConfig"`
	GQLGateway    GQLGatewayConfig `yaml:"gqlGatewayConfig"`
	TLSConfig     TLSConfig        `yaml:"tlsConfig"`
	Peers         []PeerConfig     `yaml:"peers"`
	Observability ObsConfig        `yaml:"observability"`
}

// NodeConfig defines the identity of this process within the mesh.
type NodeConfig struct {
	Name          string   `yaml:"name" validate:"required"`
	Domains       []string `yaml:"domains" validate:"required,min=1"`
	Endpoint      string   `yaml:"endpoint" validate:"required"`
	PublicAddress string   `yaml:"publicAddress"`
	EnvoyAddress  string   `yaml:"envoyAddress"`
}

// EnvoyConfig defines how the daemon reaches the proxy config service and
// the port ranges it may hand out when reconciling the data plane.
type EnvoyConfig struct {
	Endpoint  string      `yaml:"endpoint"`
	PortRange []PortRange `yaml:"portRange"`
}

// PortRange is an inclusive, ascending port range used by the allocator.
type PortRange struct {
	Min int `yaml:"min" validate:"required,min=1,max=65535"`
	Max int `yaml:"max" validate:"required,min=1,max=65535"`
}

// GQLGatewayConfig defines how the daemon reaches the optional GraphQL
// gateway, pushed to only when a route's protocol is http:graphql/gql.
type GQLGatewayConfig struct {
	Endpoint string `yaml:"endpoint"`
}

// TLSConfig is the material forwarded to the proxy config service for
// mTLS termination between data-plane listeners and their peers.
type TLSConfig struct {
	CertChain         string `yaml:"certChain"`
	PrivateKey        string `yaml:"privateKey"`
	CABundle          string `yaml:"caBundle"`
	RequireClientCert bool   `yaml:"requireClientCert"`
}

// PeerConfig is a statically configured bootstrap peer. The daemon
// originates a LocalPeerCreate action for each of these at startup.
type PeerConfig struct {
	Name          string `yaml:"name" validate:"required"`
	Endpoint      string `yaml:"endpoint" validate:"required"`
	PublicAddress string `yaml:"publicAddress"`
	EnvoyAddress  string `yaml:"envoyAddress"`
	PeerToken     string `yaml:"peerToken"`
}

// ObsConfig defines observability settings.
type ObsConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" validate:"omitempty,oneof=json text"`
}

// MetricsConfig defines Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool         `yaml:"enabled"`
	Listen  ListenConfig `yaml:"listen"`
}

// ListenConfig defines a listen address and port.
type ListenConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port" validate:"omitempty,min=1,max=65535"`
}

// Defaults returns a Config with sensible default values, mirroring the
// development-mode defaults bus.New falls back to when Options are zero.
func Defaults() *Config {
	return &Config{
		Version:      1,
		HoldTime:     90 * time.Second,
		TickInterval: 30 * time.Second,
		EnvoyConfig: EnvoyConfig{
			PortRange: []PortRange{{Min: 20000, Max: 29999}},
		},
		Observability: ObsConfig{
			Logging: LoggingConfig{
				Level:  "info",
				Format: "json",
			},
			Metrics: MetricsConfig{
				Enabled: true,
				Listen: ListenConfig{
					Address: "127.0.0.1",
					Port:    9109,
				},
			},
		},
	}
}
