// Package peertransport owns the connection pool to peer nodes and the
// fan-out helper that delivers RIB propagations to them: an endpoint-keyed
// pool of idempotently-opened sessions, dialed lazily and never evicted for
// the process lifetime, with propagations delivered to every target
// concurrently.
package peertransport

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"

	"github.com/lucas/overmesh/internal/meshtypes"
	"github.com/lucas/overmesh/internal/peertransport/rpc"
)

// EndpointResolver computes the address to dial for a propagation target.
// The default just returns target.Endpoint; the bus may install one that
// instead routes through a locally allocated egress listener port when the
// target advertises an orchestrator-rpc route and a publicAddress.
type EndpointResolver func(target meshtypes.PeerInfo) string

// TokenResolver picks the credential presented to a given target: the
// peer's own stored token if set, else the node's default token.
type TokenResolver func(target meshtypes.PeerInfo) string

// TLSResolver optionally returns transport credentials (nil for the
// insecure default dev-mode dialing).
type TLSResolver func() credentials.TransportCredentials

// Transport owns a connection pool keyed by dial address. Sessions are
// cached forever for the process lifetime — callers never evict them.
type Transport struct {
	logger *slog.Logger

	resolveEndpoint EndpointResolver
	resolveToken    TokenResolver
	resolveTLS      TLSResolver

	mu       sync.Mutex
	sessions map[string]*grpcSession
}

// New constructs a Transport. Any resolver may be nil to take the default.
func New(logger *slog.Logger, endpointResolver EndpointResolver, tokenResolver TokenResolver, tlsResolver TLSResolver) *Transport {
	rpc.RegisterCodec()
	if logger == nil {
		logger = slog.Default()
	}
	if endpointResolver == nil {
		endpointResolver = func(target meshtypes.PeerInfo) string { return target.Endpoint }
	}
	if tokenResolver == nil {
		tokenResolver = func(target meshtypes.PeerInfo) string { return target.PeerToken }
	}
	return &Transport{
		logger:          logger,
		resolveEndpoint: endpointResolver,
		resolveToken:    tokenResolver,
		resolveTLS:      tlsResolver,
		sessions:        make(map[string]*grpcSession),
	}
}

// OpenSession returns the cached session for target, dialing lazily on
// first use. Idempotent: repeated calls for the same resolved address
// return the same underlying connection.
func (t *Transport) OpenSession(ctx context.Context, target meshtypes.PeerInfo) (Session, error) {
	addr := t.resolveEndpoint(target)

	t.mu.Lock()
	defer t.mu.Unlock()

	if s, ok := t.sessions[addr]; ok {
		return s, nil
	}

	creds := insecure.NewCredentials()
	if t.resolveTLS != nil {
		if c := t.resolveTLS(); c != nil {
			creds = c
		}
	}

	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(creds),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:    30 * time.Second,
			Timeout: 10 * time.Second,
		}),
	)
	if err != nil {
		return nil, err
	}

	session := newGRPCSession(conn, t.resolveToken(target))
	t.sessions[addr] = session
	return session, nil
}

// FanOutResult records the outcome of delivering one propagation.
type FanOutResult struct {
	Target meshtypes.PeerInfo
	Kind   meshtypes.PropagationKind
	Err    error
}

// FanOut delivers every propagation concurrently. A failure dialing or
// calling one target never prevents delivery to the others — results
// report fulfilled/rejected per target and FanOut itself never returns an
// error.
func (t *Transport) FanOut(ctx context.Context, self meshtypes.PeerInfo, propagations []meshtypes.Propagation) []FanOutResult {
	results := make([]FanOutResult, len(propagations))

	var wg sync.WaitGroup
	for i, p := range propagations {
		wg.Add(1)
		go func(i int, p meshtypes.Propagation) {
			defer wg.Done()
			results[i] = FanOutResult{Target: p.Target, Kind: p.Kind, Err: t.deliver(ctx, self, p)}
			if results[i].Err != nil {
				t.logger.Warn("propagation delivery failed",
					"target", p.Target.Name, "kind", p.Kind, "error", results[i].Err)
			}
		}(i, p)
	}
	wg.Wait()
	return results
}

func (t *Transport) deliver(ctx context.Context, self meshtypes.PeerInfo, p meshtypes.Propagation) error {
	session, err := t.OpenSession(ctx, p.Target)
	if err != nil {
		return err
	}
	switch p.Kind {
	case meshtypes.PropagationOpen:
		return session.Open(ctx, self)
	case meshtypes.PropagationClose:
		return session.Close(ctx, self, p.Close.Code, p.Close.Reason)
	case meshtypes.PropagationUpdate:
		return session.Update(ctx, self, p.Update)
	case meshtypes.PropagationKeepalive:
		return session.Keepalive(ctx, self)
	default:
		return nil
	}
}
