// Package rib implements the Routing Information Base: the authoritative
// in-memory route database and its plan/commit discipline. Plan computes,
// without mutating anything, the state that would result from an action and
// the propagations it must emit; Commit swaps state atomically. The RIB
// never performs I/O — propagations are handed to the caller for delivery.
package rib

import (
	"sync"
	"time"

	"github.com/lucas/overmesh/internal/meshtypes"
)

// PortAllocator is the subset of portalloc.Allocator's surface Plan needs to
// rewrite envoyPort on a freshly learned internal route. Plan never releases
// ports itself — that reconciliation happens post-commit, over the diff
// between PrevState and NewState, where it can also see routes dropped by
// peer removal or hold-timer expiry.
type PortAllocator interface {
	Allocate(key string) (int, error)
}

// PlanResult is what Plan computes: the state that would result from
// applying an action, and the propagations that commit will hand back once
// the state swap happens.
type PlanResult struct {
	NewState     meshtypes.RouteTable
	Propagations []meshtypes.Propagation
}

// CommitResult is returned by Commit: the state before and after the swap,
// plus the propagations carried over from Plan.
type CommitResult struct {
	NewState     meshtypes.RouteTable
	PrevState    meshtypes.RouteTable
	Propagations []meshtypes.Propagation
}

// RIB is the route database for one node. Plan/Commit are meant to be
// invoked back-to-back from a single serialized pipeline (see
// internal/queue); RIB itself only guards state against concurrent readers
// calling GetState.
type RIB struct {
	mu    sync.RWMutex
	state meshtypes.RouteTable

	node      meshtypes.NodeIdentity
	holdTime  time.Duration
	allocator PortAllocator
}

// New constructs an empty RIB for the given node identity. allocator may be
// nil, in which case routes are never assigned an envoyPort by Plan.
func New(node meshtypes.NodeIdentity, holdTime time.Duration, allocator PortAllocator) *RIB {
	return &RIB{
		state:     meshtypes.NewRouteTable(),
		node:      node,
		holdTime:  holdTime,
		allocator: allocator,
	}
}

// GetState returns a read-only snapshot of the current route table.
func (r *RIB) GetState() meshtypes.RouteTable {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.Clone()
}

// Plan computes the effect of action against the current state without
// mutating it. The returned NewState is a full replacement state, ready to
// be handed to Commit.
func (r *RIB) Plan(action meshtypes.Action) (PlanResult, error) {
	r.mu.RLock()
	state := r.state.Clone()
	r.mu.RUnlock()

	switch a := action.(type) {
	case meshtypes.LocalPeerCreate:
		return r.planLocalPeerCreate(state, a)
	case meshtypes.LocalPeerUpdate:
		return r.planLocalPeerUpdate(state, a)
	case meshtypes.LocalPeerDelete:
		return r.planLocalPeerDelete(state, a)
	case meshtypes.LocalRouteCreate:
		return r.planLocalRouteCreate(state, a)
	case meshtypes.LocalRouteDelete:
		return r.planLocalRouteDelete(state, a)
	case meshtypes.InternalProtocolOpen:
		return r.planInternalOpen(state, a)
	case meshtypes.InternalProtocolConnected:
		return r.planInternalConnected(state, a)
	case meshtypes.InternalProtocolClose:
		return r.planInternalClose(state, a)
	case meshtypes.InternalProtocolUpdate:
		return r.planInternalUpdate(state, a)
	case meshtypes.InternalProtocolKeepalive:
		return r.planInternalKeepalive(state, a)
	case meshtypes.InternalProtocolTick:
		return r.planInternalTick(state, a)
	default:
		return PlanResult{}, errUnsupportedAction(action.Kind())
	}
}

// Commit swaps state to result.NewState and returns the before/after state
// plus the propagations computed by Plan. Commit itself cannot fail: Plan
// already rejected anything that would make the swap invalid.
func (r *RIB) Commit(result PlanResult) CommitResult {
	r.mu.Lock()
	prev := r.state
	r.state = result.NewState
	r.mu.Unlock()

	return CommitResult{
		NewState:     result.NewState,
		PrevState:    prev,
		Propagations: result.Propagations,
	}
}

func (r *RIB) selfPeerInfo() meshtypes.PeerInfo {
	return meshtypes.PeerInfo{
		Name:          r.node.Name,
		Endpoint:      r.node.Endpoint,
		Domains:       r.node.Domains,
		PublicAddress: r.node.PublicAddress,
		EnvoyAddress:  r.node.EnvoyAddress,
	}
}
