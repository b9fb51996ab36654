// Package bus is the composition root: it wires the RIB, the action queue,
// the peer transport, the port allocator, and the external proxy/gateway/
// auth collaborators into a single orchestrator, the Bus.
package bus

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/lucas/overmesh/internal/authshim"
	"github.com/lucas/overmesh/internal/gatewayshim"
	"github.com/lucas/overmesh/internal/meshtypes"
	"github.com/lucas/overmesh/internal/observability"
	"github.com/lucas/overmesh/internal/peertransport"
	"github.com/lucas/overmesh/internal/portalloc"
	"github.com/lucas/overmesh/internal/proxyshim"
	"github.com/lucas/overmesh/internal/queue"
	"github.com/lucas/overmesh/internal/rib"
)

// Options configure a Bus at construction. Fields left zero take the
// documented development-mode defaults (no auth, no proxy/gateway push).
type Options struct {
	Node         meshtypes.NodeIdentity
	NodeToken    string
	HoldTime     time.Duration
	TickInterval time.Duration

	Allocator *portalloc.Allocator

	AuthValidator authshim.Validator
	ProxyClient   proxyshim.Client
	GatewayClient gatewayshim.Client
	TLS           *proxyshim.TLSConfig

	Transport  *peertransport.Transport
	Logger     *slog.Logger
	QueueDepth int

	Metrics *observability.Metrics
}

// Bus is the orchestrator: every externally visible effect on this node's
// route state flows through it.
type Bus struct {
	node      meshtypes.NodeIdentity
	nodeToken string
	holdTime  time.Duration
	tick      time.Duration

	rib       *rib.RIB
	allocator *portalloc.Allocator
	transport *peertransport.Transport
	queue     *queue.ActionQueue

	auth    authshim.Validator
	proxy   proxyshim.Client
	gateway gatewayshim.Client
	tls     *proxyshim.TLSConfig

	logger  *slog.Logger
	metrics *observability.Metrics

	postCommitMu   sync.Mutex
	postCommitDone chan struct{}

	tickCancel context.CancelFunc
}

// New constructs a Bus. Construction fails if the node's name does not end
// with one of its configured domains.
func New(opts Options) (*Bus, error) {
	if err := validateNodeIdentity(opts.Node); err != nil {
		return nil, err
	}
	if opts.HoldTime <= 0 {
		opts.HoldTime = 90 * time.Second
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = opts.HoldTime / 3
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Allocator == nil {
		opts.Allocator = portalloc.New(portalloc.Range{Min: 20000, Max: 29999})
	}
	if opts.AuthValidator == nil {
		opts.AuthValidator = authshim.AllowAll{}
	}
	if opts.Transport == nil {
		opts.Transport = peertransport.New(opts.Logger, nil, nil, nil)
	}

	b := &Bus{
		node:      opts.Node,
		nodeToken: opts.NodeToken,
		holdTime:  opts.HoldTime,
		tick:      opts.TickInterval,
		allocator: opts.Allocator,
		transport: opts.Transport,
		auth:      opts.AuthValidator,
		proxy:     opts.ProxyClient,
		gateway:   opts.GatewayClient,
		tls:       opts.TLS,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
	}
	b.rib = rib.New(opts.Node, opts.HoldTime, opts.Allocator)
	b.queue = queue.New(b.pipeline, opts.Logger, opts.QueueDepth)
	return b, nil
}

func validateNodeIdentity(node meshtypes.NodeIdentity) error {
	if node.Name == "" {
		return fmt.Errorf("bus: node name must not be empty")
	}
	if len(node.Domains) == 0 {
		return fmt.Errorf("bus: node %q must configure at least one domain", node.Name)
	}
	for _, d := range node.Domains {
		if node.Name == d || strings.HasSuffix(node.Name, "."+d) {
			return nil
		}
	}
	return fmt.Errorf("bus: node name %q does not end with any configured domain %v", node.Name, node.Domains)
}

// authorize gates a scoped-client call against the configured validator.
// With no authEndpoint configured (AllowAll), every call passes.
func (b *Bus) authorize(ctx context.Context, token, actionTag string) error {
	ok, err := b.auth.ValidateToken(ctx, token, actionTag)
	if err != nil {
		return fmt.Errorf("bus: token validation failed: %w", err)
	}
	if !ok {
		return fmt.Errorf("bus: permission denied for %s", actionTag)
	}
	return nil
}

// dispatch is the single funnel every scoped client call and every
// internally generated action (tick, inbound iBGP RPC) goes through.
func (b *Bus) dispatch(ctx context.Context, action meshtypes.Action) (rib.CommitResult, error) {
	value, err := b.queue.EnqueueAndWait(ctx, action)
	if err != nil {
		return rib.CommitResult{}, err
	}
	result, ok := value.(rib.CommitResult)
	if !ok {
		return rib.CommitResult{}, fmt.Errorf("bus: unexpected pipeline result type %T", value)
	}
	return result, nil
}

// GetState returns a read-only snapshot of the RIB.
func (b *Bus) GetState() meshtypes.RouteTable {
	return b.rib.GetState()
}

// RunTick drives the periodic InternalProtocolTick dispatch until ctx is
// canceled.
func (b *Bus) RunTick(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	b.tickCancel = cancel

	ticker := time.NewTicker(b.tick)
	defer ticker.Stop()

	b.logger.Info("starting tick loop", "interval", b.tick)
	for {
		select {
		case <-ctx.Done():
			b.logger.Info("tick loop stopped")
			return
		case now := <-ticker.C:
			if _, err := b.dispatch(ctx, meshtypes.InternalProtocolTick{Now: now}); err != nil {
				b.logger.Error("tick dispatch failed", "error", err)
			}
		}
	}
}

// Stop halts the tick loop and the action queue. Pending post-commit work
// in flight is allowed to finish; callers that need to wait for it should
// use waitForLastPostCommit in tests.
func (b *Bus) Stop() {
	if b.tickCancel != nil {
		b.tickCancel()
	}
	b.queue.Stop()
}

// waitForLastPostCommit blocks until the most recently started post-commit
// task finishes. It exists so tests can observe fan-out/proxy-push effects
// deterministically instead of sleeping.
func (b *Bus) waitForLastPostCommit(ctx context.Context) error {
	b.postCommitMu.Lock()
	done := b.postCommitDone
	b.postCommitMu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
