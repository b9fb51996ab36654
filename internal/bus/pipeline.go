package bus

import (
	"context"
	"time"

	"github.com/lucas/overmesh/internal/gatewayshim"
	"github.com/lucas/overmesh/internal/meshtypes"
	"github.com/lucas/overmesh/internal/proxyshim"
	"github.com/lucas/overmesh/internal/rib"
)

// pipeline is the queue.Pipeline this Bus installs: plan, commit, then
// start post-commit as a detached task. The plan->commit segment is
// synchronous and never awaits; only post-commit performs I/O, outside the
// serial segment.
func (b *Bus) pipeline(ctx context.Context, action meshtypes.Action) (any, error) {
	start := time.Now()
	planResult, err := b.rib.Plan(action)
	if err != nil {
		return nil, err
	}
	commitResult := b.rib.Commit(planResult)
	if b.metrics != nil {
		b.metrics.PipelineDuration.WithLabelValues(string(action.Kind())).Observe(time.Since(start).Seconds())
	}
	b.recordStateMetrics(commitResult.NewState)

	done := make(chan struct{})
	b.postCommitMu.Lock()
	b.postCommitDone = done
	b.postCommitMu.Unlock()

	go func() {
		defer close(done)
		postCommitStart := time.Now()
		b.runPostCommit(context.Background(), action, commitResult)
		if b.metrics != nil {
			b.metrics.PostCommitDuration.Observe(time.Since(postCommitStart).Seconds())
		}
	}()

	return commitResult, nil
}

// recordStateMetrics refreshes the gauges that reflect a point-in-time
// snapshot of RIB state: peers by status, route counts, and allocator
// utilization.
func (b *Bus) recordStateMetrics(state meshtypes.RouteTable) {
	if b.metrics == nil {
		return
	}
	byStatus := map[meshtypes.ConnectionStatus]int{
		meshtypes.StatusInitializing: 0,
		meshtypes.StatusConnected:    0,
		meshtypes.StatusDegraded:     0,
	}
	for _, peer := range state.Internal.Peers {
		byStatus[peer.ConnectionStatus]++
	}
	for status, count := range byStatus {
		b.metrics.PeersByStatus.WithLabelValues(string(status)).Set(float64(count))
	}

	b.metrics.RoutesLocal.Set(float64(len(state.Local.Routes)))
	b.metrics.RoutesInternal.Set(float64(len(state.Internal.Routes)))

	capacity := 0
	for _, r := range b.allocator.SortedRanges() {
		capacity += r.Max - r.Min + 1
	}
	b.metrics.PortAllocatorCapacity.Set(float64(capacity))
	b.metrics.PortAllocatorInUse.Set(float64(len(b.allocator.GetAllocations())))
}

// runPostCommit performs every post-commit side effect: peer fan-out and,
// for route-affecting actions, data-plane reconciliation. Each sub-step is
// independently wrapped so its failure logs but never rolls back state or
// blocks the others.
func (b *Bus) runPostCommit(ctx context.Context, action meshtypes.Action, commit rib.CommitResult) {
	if len(commit.Propagations) > 0 {
		results := b.transport.FanOut(ctx, b.selfPeerInfo(), commit.Propagations)
		for _, r := range results {
			outcome := "ok"
			if r.Err != nil {
				outcome = "error"
				b.logger.Warn("propagation rejected", "target", r.Target.Name, "kind", r.Kind, "error", r.Err)
			}
			if b.metrics != nil {
				b.metrics.PropagationsTotal.WithLabelValues(string(r.Kind), outcome).Inc()
			}
		}
		// A peer that accepted our Open is connected from this side too.
		for _, r := range results {
			if r.Kind != meshtypes.PropagationOpen || r.Err != nil {
				continue
			}
			if _, err := b.dispatch(ctx, meshtypes.InternalProtocolConnected{Peer: r.Target, Now: time.Now()}); err != nil {
				b.logger.Warn("marking peer connected failed", "peer", r.Target.Name, "error", err)
			}
		}
	}

	if routeAffecting(action) {
		b.reconcileDataPlane(ctx, commit)
	}
}

func routeAffecting(action meshtypes.Action) bool {
	switch action.Kind() {
	case meshtypes.KindLocalRouteCreate, meshtypes.KindLocalRouteDelete,
		meshtypes.KindLocalPeerDelete,
		meshtypes.KindInternalProtocolUpdate, meshtypes.KindInternalProtocolClose,
		meshtypes.KindInternalProtocolTick:
		return true
	default:
		return false
	}
}

// reconcileDataPlane allocates ports for routes newly present in
// commit.NewState, releases ports for routes dropped since commit.PrevState,
// and pushes the resulting payload to the proxy config service. It then
// conditionally syncs the GraphQL gateway. Local routes are keyed by name,
// internal routes by egress_${name}_via_${peerName}.
func (b *Bus) reconcileDataPlane(ctx context.Context, commit rib.CommitResult) {
	for name := range commit.NewState.Local.Routes {
		if _, err := b.allocator.Allocate(name); err != nil {
			b.logger.Warn("port allocation failed for local route", "route", name, "error", err)
		}
	}
	for key := range commit.NewState.Internal.Routes {
		if _, err := b.allocator.Allocate(key.EgressAllocationKey()); err != nil {
			b.logger.Warn("port allocation failed for internal route", "route", key.Name, "peer", key.PeerName, "error", err)
		}
	}

	for name := range commit.PrevState.Local.Routes {
		if _, stillPresent := commit.NewState.Local.Routes[name]; !stillPresent {
			b.allocator.Release(name)
		}
	}
	for key := range commit.PrevState.Internal.Routes {
		if _, stillPresent := commit.NewState.Internal.Routes[key]; !stillPresent {
			b.allocator.Release(key.EgressAllocationKey())
		}
	}

	if b.metrics != nil {
		b.metrics.PortAllocatorInUse.Set(float64(len(b.allocator.GetAllocations())))
	}

	if b.proxy != nil {
		payload := proxyshim.RoutePayload{
			PortAllocations: b.allocator.GetAllocations(),
			TLS:             b.tls,
		}
		for _, dc := range commit.NewState.Local.Routes {
			payload.Local = append(payload.Local, dc)
		}
		for _, rt := range commit.NewState.Internal.Routes {
			payload.Internal = append(payload.Internal, rt)
		}
		if err := b.proxy.UpdateRoutes(ctx, payload); err != nil {
			b.logger.Warn("proxy config push failed", "error", err)
		}
	}

	if b.gateway != nil {
		if services, ok := graphqlServices(commit.NewState); ok {
			if err := b.gateway.UpdateConfig(ctx, services); err != nil {
				b.logger.Warn("gateway config push failed", "error", err)
			}
		}
	}
}

const (
	protocolGraphQL    = "http:graphql"
	protocolGraphQLAlt = "http:gql"
)

// graphqlServices returns the filtered service list for the gateway push,
// and whether at least one route qualified.
func graphqlServices(state meshtypes.RouteTable) ([]gatewayshim.ServiceEntry, bool) {
	var out []gatewayshim.ServiceEntry
	for name, dc := range state.Local.Routes {
		if dc.Protocol == protocolGraphQL || dc.Protocol == protocolGraphQLAlt {
			out = append(out, gatewayshim.ServiceEntry{Name: name, URL: dc.Endpoint})
		}
	}
	for _, rt := range state.Internal.Routes {
		if rt.Protocol == protocolGraphQL || rt.Protocol == protocolGraphQLAlt {
			out = append(out, gatewayshim.ServiceEntry{Name: rt.Name, URL: rt.Endpoint})
		}
	}
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}

func (b *Bus) selfPeerInfo() meshtypes.PeerInfo {
	return meshtypes.PeerInfo{
		Name:          b.node.Name,
		Endpoint:      b.node.Endpoint,
		Domains:       b.node.Domains,
		PublicAddress: b.node.PublicAddress,
		EnvoyAddress:  b.node.EnvoyAddress,
	}
}
