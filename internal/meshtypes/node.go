// Package meshtypes defines the data shapes shared by the RIB, the action
// queue, the peer transport, and the bus: peer identity, route definitions,
// actions, and propagations.
package meshtypes

import "time"

// ConnectionStatus is the lifecycle state of a peer session.
type ConnectionStatus string

const (
	StatusInitializing ConnectionStatus = "initializing"
	StatusConnected    ConnectionStatus = "connected"
	StatusDegraded     ConnectionStatus = "degraded"
)

// NodeIdentity is this process's configured identity.
type NodeIdentity struct {
	Name          string
	Endpoint      string
	Domains       []string
	PublicAddress string
	EnvoyAddress  string
}

// PeerInfo is the identity-plus-reachability record carried on the wire.
type PeerInfo struct {
	Name          string
	Endpoint      string
	Domains       []string
	PeerToken     string
	PublicAddress string
	EnvoyAddress  string
}

// Merge overlays advertised fields from other onto a copy of p, preserving
// locally known credentials (PeerToken is never overwritten by an inbound
// advertisement).
func (p PeerInfo) Merge(other PeerInfo) PeerInfo {
	merged := p
	if other.Endpoint != "" {
		merged.Endpoint = other.Endpoint
	}
	if len(other.Domains) > 0 {
		merged.Domains = other.Domains
	}
	if other.PublicAddress != "" {
		merged.PublicAddress = other.PublicAddress
	}
	if other.EnvoyAddress != "" {
		merged.EnvoyAddress = other.EnvoyAddress
	}
	return merged
}

// Replace takes other wholesale in place of p, except PeerToken, which is
// never cleared by an operator update that omits it. Unlike Merge, empty
// fields in other (e.g. a cleared publicAddress) do take effect.
func (p PeerInfo) Replace(other PeerInfo) PeerInfo {
	replaced := other
	replaced.PeerToken = p.PeerToken
	if other.PeerToken != "" {
		replaced.PeerToken = other.PeerToken
	}
	return replaced
}

// PeerRecord is the in-RIB representation of a peer: identity plus
// connection-state bookkeeping.
type PeerRecord struct {
	PeerInfo
	ConnectionStatus    ConnectionStatus
	LastMessageReceived time.Time
	LastKeepaliveSent   time.Time
}

// HoldExpired reports whether this peer's hold timer has expired as of now.
func (r PeerRecord) HoldExpired(now time.Time, holdTime time.Duration) bool {
	if r.LastMessageReceived.IsZero() {
		return false
	}
	return now.Sub(r.LastMessageReceived) > holdTime
}

// NeedsKeepalive reports whether a keep-alive is due for this peer.
func (r PeerRecord) NeedsKeepalive(now time.Time, holdTime time.Duration) bool {
	threshold := holdTime / 3
	if r.LastMessageReceived.IsZero() {
		return false
	}
	return now.Sub(r.LastMessageReceived) > threshold
}
