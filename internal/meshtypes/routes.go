package meshtypes

// DataChannelDefinition is a service route originated by this node (a
// "local route").
type DataChannelDefinition struct {
	Name      string
	Protocol  string
	Endpoint  string
	EnvoyPort int // 0 means unset
}

// InternalRoute is a route learned from a peer.
type InternalRoute struct {
	DataChannelDefinition
	Peer     PeerInfo
	PeerName string
	NodePath []string // latest hop first
}

// ContainsNode reports whether name already appears in the route's path.
func (r InternalRoute) ContainsNode(name string) bool {
	for _, n := range r.NodePath {
		if n == name {
			return true
		}
	}
	return false
}

// InternalRouteKey uniquely identifies an internal route: (name, peerName).
type InternalRouteKey struct {
	Name     string
	PeerName string
}

// EgressAllocationKey is the port-allocator key for an internal route's
// rewritten egress listener.
func (k InternalRouteKey) EgressAllocationKey() string {
	return "egress_" + k.Name + "_via_" + k.PeerName
}

// RouteTable is the RIB's state: locally originated routes and the peers
// and routes learned from them.
type RouteTable struct {
	Local    LocalRIB
	Internal InternalRIB
}

// LocalRIB holds routes originated by this node, keyed by name.
type LocalRIB struct {
	Routes map[string]DataChannelDefinition
}

// InternalRIB holds known peers and the routes learned from them.
type InternalRIB struct {
	Peers  map[string]PeerRecord
	Routes map[InternalRouteKey]InternalRoute
}

// Clone returns a deep-enough copy of the table for plan()'s
// referentially-transparent "would result" computation: maps are copied,
// slice-valued fields are not mutated in place by any plan step (they are
// always replaced wholesale), so a shallow copy of slice headers is safe.
func (t RouteTable) Clone() RouteTable {
	out := RouteTable{
		Local: LocalRIB{Routes: make(map[string]DataChannelDefinition, len(t.Local.Routes))},
		Internal: InternalRIB{
			Peers:  make(map[string]PeerRecord, len(t.Internal.Peers)),
			Routes: make(map[InternalRouteKey]InternalRoute, len(t.Internal.Routes)),
		},
	}
	for k, v := range t.Local.Routes {
		out.Local.Routes[k] = v
	}
	for k, v := range t.Internal.Peers {
		out.Internal.Peers[k] = v
	}
	for k, v := range t.Internal.Routes {
		out.Internal.Routes[k] = v
	}
	return out
}

// NewRouteTable returns an empty, initialized RouteTable.
func NewRouteTable() RouteTable {
	return RouteTable{
		Local: LocalRIB{Routes: make(map[string]DataChannelDefinition)},
		Internal: InternalRIB{
			Peers:  make(map[string]PeerRecord),
			Routes: make(map[InternalRouteKey]InternalRoute),
		},
	}
}

// ConnectedPeers returns the names of all peers currently connected.
func (t RouteTable) ConnectedPeers() []string {
	var names []string
	for name, rec := range t.Internal.Peers {
		if rec.ConnectionStatus == StatusConnected {
			names = append(names, name)
		}
	}
	return names
}
