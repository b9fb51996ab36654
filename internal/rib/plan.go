package rib

import (
	"fmt"
	"sort"
	"time"

	"github.com/lucas/overmesh/internal/meshtypes"
)

// connectedPeerInfos returns the PeerInfo of every connected peer, sorted by
// name so propagation order (and test expectations) are deterministic.
func connectedPeerInfos(state meshtypes.RouteTable) []meshtypes.PeerInfo {
	names := state.ConnectedPeers()
	sort.Strings(names)
	out := make([]meshtypes.PeerInfo, 0, len(names))
	for _, n := range names {
		out = append(out, state.Internal.Peers[n].PeerInfo)
	}
	return out
}

func updateMessage(entries ...meshtypes.UpdateEntry) meshtypes.UpdateMessage {
	return meshtypes.UpdateMessage{Updates: entries}
}

func fanOutUpdate(targets []meshtypes.PeerInfo, msg meshtypes.UpdateMessage) []meshtypes.Propagation {
	if len(msg.Updates) == 0 {
		return nil
	}
	props := make([]meshtypes.Propagation, 0, len(targets))
	for _, t := range targets {
		props = append(props, meshtypes.Propagation{
			Kind:   meshtypes.PropagationUpdate,
			Target: t,
			Update: msg,
		})
	}
	return props
}

// ---- LocalPeerCreate / LocalPeerUpdate / LocalPeerDelete ----

func (r *RIB) planLocalPeerCreate(state meshtypes.RouteTable, a meshtypes.LocalPeerCreate) (PlanResult, error) {
	if _, exists := state.Internal.Peers[a.Peer.Name]; exists {
		return PlanResult{}, fmt.Errorf("peer %q: %w", a.Peer.Name, meshtypes.ErrPeerExists)
	}
	state.Internal.Peers[a.Peer.Name] = meshtypes.PeerRecord{
		PeerInfo:         a.Peer,
		ConnectionStatus: meshtypes.StatusInitializing,
	}
	props := []meshtypes.Propagation{{
		Kind:   meshtypes.PropagationOpen,
		Target: a.Peer,
		Open:   r.selfPeerInfo(),
	}}
	return PlanResult{NewState: state, Propagations: props}, nil
}

func (r *RIB) planLocalPeerUpdate(state meshtypes.RouteTable, a meshtypes.LocalPeerUpdate) (PlanResult, error) {
	existing, ok := state.Internal.Peers[a.Peer.Name]
	if !ok {
		return PlanResult{}, fmt.Errorf("peer %q: %w", a.Peer.Name, meshtypes.ErrPeerNotFound)
	}
	replaced := existing.PeerInfo.Replace(a.Peer)
	state.Internal.Peers[a.Peer.Name] = meshtypes.PeerRecord{
		PeerInfo:         replaced,
		ConnectionStatus: meshtypes.StatusInitializing,
	}
	props := []meshtypes.Propagation{{
		Kind:   meshtypes.PropagationOpen,
		Target: replaced,
		Open:   r.selfPeerInfo(),
	}}
	return PlanResult{NewState: state, Propagations: props}, nil
}

func (r *RIB) planLocalPeerDelete(state meshtypes.RouteTable, a meshtypes.LocalPeerDelete) (PlanResult, error) {
	existing, ok := state.Internal.Peers[a.Name]
	if !ok {
		return PlanResult{}, fmt.Errorf("peer %q: %w", a.Name, meshtypes.ErrPeerNotFound)
	}
	delete(state.Internal.Peers, a.Name)

	dropped := dropRoutesForPeer(state, a.Name)

	props := []meshtypes.Propagation{{
		Kind:   meshtypes.PropagationClose,
		Target: existing.PeerInfo,
		Close:  meshtypes.ClosePayload{Code: 0, Reason: "peer removed"},
	}}
	props = append(props, fanOutUpdate(connectedPeerInfos(state), removeMessage(dropped))...)
	return PlanResult{NewState: state, Propagations: props}, nil
}

// dropRoutesForPeer removes every internal route learned from peerName and
// returns the removed routes.
func dropRoutesForPeer(state meshtypes.RouteTable, peerName string) []meshtypes.InternalRoute {
	var dropped []meshtypes.InternalRoute
	for k, route := range state.Internal.Routes {
		if k.PeerName == peerName {
			dropped = append(dropped, route)
			delete(state.Internal.Routes, k)
		}
	}
	sort.Slice(dropped, func(i, j int) bool { return dropped[i].Name < dropped[j].Name })
	return dropped
}

func removeMessage(routes []meshtypes.InternalRoute) meshtypes.UpdateMessage {
	entries := make([]meshtypes.UpdateEntry, 0, len(routes))
	for _, rt := range routes {
		entries = append(entries, meshtypes.UpdateEntry{
			Action: meshtypes.UpdateRemove,
			Route:  rt.DataChannelDefinition,
		})
	}
	return updateMessage(entries...)
}

// ---- LocalRouteCreate / LocalRouteDelete ----

func (r *RIB) planLocalRouteCreate(state meshtypes.RouteTable, a meshtypes.LocalRouteCreate) (PlanResult, error) {
	if _, exists := state.Local.Routes[a.Route.Name]; exists {
		return PlanResult{}, fmt.Errorf("route %q: %w", a.Route.Name, meshtypes.ErrRouteExists)
	}
	state.Local.Routes[a.Route.Name] = a.Route

	msg := updateMessage(meshtypes.UpdateEntry{
		Action:   meshtypes.UpdateAdd,
		Route:    a.Route,
		NodePath: []string{r.node.Name},
	})
	props := fanOutUpdate(connectedPeerInfos(state), msg)
	return PlanResult{NewState: state, Propagations: props}, nil
}

func (r *RIB) planLocalRouteDelete(state meshtypes.RouteTable, a meshtypes.LocalRouteDelete) (PlanResult, error) {
	existing, ok := state.Local.Routes[a.Route.Name]
	if !ok {
		return PlanResult{}, fmt.Errorf("route %q: %w", a.Route.Name, meshtypes.ErrRouteNotFound)
	}
	delete(state.Local.Routes, a.Route.Name)

	msg := updateMessage(meshtypes.UpdateEntry{Action: meshtypes.UpdateRemove, Route: existing})
	props := fanOutUpdate(connectedPeerInfos(state), msg)
	return PlanResult{NewState: state, Propagations: props}, nil
}

// ---- InternalProtocolOpen / Connected ----

func (r *RIB) planInternalOpen(state meshtypes.RouteTable, a meshtypes.InternalProtocolOpen) (PlanResult, error) {
	existing, ok := state.Internal.Peers[a.Peer.Name]
	if !ok {
		return PlanResult{}, fmt.Errorf("peer %q: %w", a.Peer.Name, meshtypes.ErrPeerUnconfigured)
	}
	return r.openOrConnect(state, existing, a.Peer, a.Now)
}

func (r *RIB) planInternalConnected(state meshtypes.RouteTable, a meshtypes.InternalProtocolConnected) (PlanResult, error) {
	existing, ok := state.Internal.Peers[a.Peer.Name]
	if !ok {
		return PlanResult{}, fmt.Errorf("peer %q: %w", a.Peer.Name, meshtypes.ErrPeerNotFound)
	}
	return r.openOrConnect(state, existing, a.Peer, a.Now)
}

func (r *RIB) openOrConnect(state meshtypes.RouteTable, existing meshtypes.PeerRecord, advertised meshtypes.PeerInfo, now time.Time) (PlanResult, error) {
	merged := existing.PeerInfo.Merge(advertised)
	rec := existing
	rec.PeerInfo = merged
	rec.ConnectionStatus = meshtypes.StatusConnected
	rec.LastMessageReceived = now
	state.Internal.Peers[merged.Name] = rec

	msg := fullResync(state, merged.Name, r.node.Name)
	var props []meshtypes.Propagation
	if len(msg.Updates) > 0 {
		props = []meshtypes.Propagation{{
			Kind:   meshtypes.PropagationUpdate,
			Target: merged,
			Update: msg,
		}}
	}
	return PlanResult{NewState: state, Propagations: props}, nil
}

// fullResync builds the add-update set sent to a peer on Open/Connected:
// every local route, plus every internal route whose path does not already
// contain that peer (poison-reverse-like filter).
func fullResync(state meshtypes.RouteTable, peerName, selfName string) meshtypes.UpdateMessage {
	var entries []meshtypes.UpdateEntry

	localNames := make([]string, 0, len(state.Local.Routes))
	for name := range state.Local.Routes {
		localNames = append(localNames, name)
	}
	sort.Strings(localNames)
	for _, name := range localNames {
		entries = append(entries, meshtypes.UpdateEntry{
			Action:   meshtypes.UpdateAdd,
			Route:    state.Local.Routes[name],
			NodePath: []string{selfName},
		})
	}

	keys := make([]meshtypes.InternalRouteKey, 0, len(state.Internal.Routes))
	for k := range state.Internal.Routes {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Name != keys[j].Name {
			return keys[i].Name < keys[j].Name
		}
		return keys[i].PeerName < keys[j].PeerName
	})
	for _, k := range keys {
		route := state.Internal.Routes[k]
		if route.ContainsNode(peerName) {
			continue
		}
		entries = append(entries, meshtypes.UpdateEntry{
			Action:   meshtypes.UpdateAdd,
			Route:    route.DataChannelDefinition,
			NodePath: advertisedPath(selfName, route.NodePath),
		})
	}
	return updateMessage(entries...)
}

func advertisedPath(selfName string, stored []string) []string {
	out := make([]string, 0, len(stored)+1)
	out = append(out, selfName)
	out = append(out, stored...)
	return out
}

// ---- InternalProtocolClose ----

func (r *RIB) planInternalClose(state meshtypes.RouteTable, a meshtypes.InternalProtocolClose) (PlanResult, error) {
	existing, ok := state.Internal.Peers[a.Peer.Name]
	if !ok {
		// Closing an already-unknown peer is a silent no-op, matching the
		// "remove on unknown key" tolerance elsewhere in the RIB.
		return PlanResult{NewState: state}, nil
	}
	existing.ConnectionStatus = meshtypes.StatusDegraded
	state.Internal.Peers[a.Peer.Name] = existing

	dropped := dropRoutesForPeer(state, a.Peer.Name)
	props := fanOutUpdate(connectedPeerInfos(state), removeMessage(dropped))
	return PlanResult{NewState: state, Propagations: props}, nil
}

// ---- InternalProtocolUpdate ----

func (r *RIB) planInternalUpdate(state meshtypes.RouteTable, a meshtypes.InternalProtocolUpdate) (PlanResult, error) {
	originator, ok := state.Internal.Peers[a.Peer.Name]
	if !ok {
		return PlanResult{}, fmt.Errorf("peer %q: %w", a.Peer.Name, meshtypes.ErrPeerUnconfigured)
	}
	originator.LastMessageReceived = a.Now
	state.Internal.Peers[a.Peer.Name] = originator

	targets := otherConnectedPeers(state, a.Peer.Name)
	perTarget := make(map[string][]meshtypes.UpdateEntry, len(targets))

	for _, entry := range a.Update.Updates {
		switch entry.Action {
		case meshtypes.UpdateAdd:
			if containsName(entry.NodePath, r.node.Name) {
				continue // loop: silently dropped, plan still succeeds
			}
			key := meshtypes.InternalRouteKey{Name: entry.Route.Name, PeerName: a.Peer.Name}

			advertisedRoute := entry.Route
			if r.allocator != nil {
				if port, err := r.allocator.Allocate(key.EgressAllocationKey()); err == nil {
					advertisedRoute.EnvoyPort = port
				} else {
					advertisedRoute.EnvoyPort = 0
				}
				// Exhaustion here is non-fatal: the route is stored and
				// re-advertised without an envoyPort.
			}
			state.Internal.Routes[key] = meshtypes.InternalRoute{
				DataChannelDefinition: advertisedRoute,
				Peer:                  a.Peer,
				PeerName:              a.Peer.Name,
				NodePath:              entry.NodePath,
			}

			for _, t := range targets {
				if containsName(entry.NodePath, t) {
					continue
				}
				perTarget[t] = append(perTarget[t], meshtypes.UpdateEntry{
					Action:   meshtypes.UpdateAdd,
					Route:    advertisedRoute,
					NodePath: advertisedPath(r.node.Name, entry.NodePath),
				})
			}

		case meshtypes.UpdateRemove:
			key := meshtypes.InternalRouteKey{Name: entry.Route.Name, PeerName: a.Peer.Name}
			delete(state.Internal.Routes, key) // no-op if unknown

			for _, t := range targets {
				perTarget[t] = append(perTarget[t], meshtypes.UpdateEntry{
					Action: meshtypes.UpdateRemove,
					Route:  entry.Route,
				})
			}
		}
	}

	var props []meshtypes.Propagation
	for _, t := range targets {
		entries := perTarget[t]
		if len(entries) == 0 {
			continue
		}
		props = append(props, meshtypes.Propagation{
			Kind:   meshtypes.PropagationUpdate,
			Target: state.Internal.Peers[t].PeerInfo,
			Update: updateMessage(entries...),
		})
	}
	return PlanResult{NewState: state, Propagations: props}, nil
}

func otherConnectedPeers(state meshtypes.RouteTable, exclude string) []string {
	names := state.ConnectedPeers()
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n != exclude {
			out = append(out, n)
		}
	}
	return out
}

func containsName(path []string, name string) bool {
	for _, n := range path {
		if n == name {
			return true
		}
	}
	return false
}

// ---- InternalProtocolKeepalive ----

func (r *RIB) planInternalKeepalive(state meshtypes.RouteTable, a meshtypes.InternalProtocolKeepalive) (PlanResult, error) {
	existing, ok := state.Internal.Peers[a.Peer.Name]
	if !ok {
		return PlanResult{}, fmt.Errorf("peer %q: %w", a.Peer.Name, meshtypes.ErrPeerUnconfigured)
	}
	existing.LastMessageReceived = a.Now
	state.Internal.Peers[a.Peer.Name] = existing
	return PlanResult{NewState: state}, nil
}

// ---- InternalProtocolTick ----

func (r *RIB) planInternalTick(state meshtypes.RouteTable, a meshtypes.InternalProtocolTick) (PlanResult, error) {
	var props []meshtypes.Propagation
	var allDropped []meshtypes.InternalRoute
	demoted := make(map[string]bool)

	names := make([]string, 0, len(state.Internal.Peers))
	for n := range state.Internal.Peers {
		names = append(names, n)
	}
	sort.Strings(names)

	for _, name := range names {
		peer := state.Internal.Peers[name]

		if peer.ConnectionStatus == meshtypes.StatusConnected && peer.HoldExpired(a.Now, r.holdTime) {
			peer.ConnectionStatus = meshtypes.StatusDegraded
			state.Internal.Peers[name] = peer
			demoted[name] = true
			allDropped = append(allDropped, dropRoutesForPeer(state, name)...)
			continue
		}

		if peer.ConnectionStatus == meshtypes.StatusDegraded {
			props = append(props, meshtypes.Propagation{
				Kind:   meshtypes.PropagationOpen,
				Target: peer.PeerInfo,
				Open:   r.selfPeerInfo(),
			})
			continue
		}
	}

	// Withdrawals from demoted peers go out to whoever is still connected.
	if len(allDropped) > 0 {
		props = append(props, fanOutUpdate(connectedPeerInfos(state), removeMessage(allDropped))...)
	}

	for _, name := range names {
		if demoted[name] {
			continue // just demoted: don't also keepalive a peer declared dead
		}
		peer := state.Internal.Peers[name]
		if peer.ConnectionStatus != meshtypes.StatusConnected {
			continue
		}
		if peer.NeedsKeepalive(a.Now, r.holdTime) {
			peer.LastKeepaliveSent = a.Now
			state.Internal.Peers[name] = peer
			props = append(props, meshtypes.Propagation{
				Kind:   meshtypes.PropagationKeepalive,
				Target: peer.PeerInfo,
			})
		}
	}

	return PlanResult{NewState: state, Propagations: props}, nil
}
