package rib

import (
	"sort"

	"github.com/lucas/overmesh/internal/meshtypes"
)

// SelectedRoute is one entry of the deterministic view SelectForDataPlane
// computes: one winner per route name. The bus's proxy push does not use
// this view; it sends every local and internal route.
type SelectedRoute struct {
	meshtypes.DataChannelDefinition
	// Origin is "local" for a locally originated route, or the winning
	// peerName for a route learned from a peer.
	Origin   string
	NodePath []string
}

// SelectForDataPlane resolves, for every route name known to the RIB, the
// single entry that should be programmed into the data plane. A locally
// originated route always wins over anything learned for the same name.
// Among competing internal routes for the same name, the tie-break is the
// one this system documents but the source left unspecified: shortest
// nodePath first, then lexicographically smallest peerName.
func SelectForDataPlane(state meshtypes.RouteTable) map[string]SelectedRoute {
	out := make(map[string]SelectedRoute, len(state.Local.Routes)+len(state.Internal.Routes))
	for name, dc := range state.Local.Routes {
		out[name] = SelectedRoute{DataChannelDefinition: dc, Origin: "local"}
	}

	byName := make(map[string][]meshtypes.InternalRoute)
	for _, rt := range state.Internal.Routes {
		byName[rt.Name] = append(byName[rt.Name], rt)
	}
	for name, candidates := range byName {
		if _, exists := out[name]; exists {
			continue
		}
		best := bestInternalRoute(candidates)
		out[name] = SelectedRoute{
			DataChannelDefinition: best.DataChannelDefinition,
			Origin:                best.PeerName,
			NodePath:              best.NodePath,
		}
	}
	return out
}

func bestInternalRoute(candidates []meshtypes.InternalRoute) meshtypes.InternalRoute {
	sort.Slice(candidates, func(i, j int) bool {
		if len(candidates[i].NodePath) != len(candidates[j].NodePath) {
			return len(candidates[i].NodePath) < len(candidates[j].NodePath)
		}
		return candidates[i].PeerName < candidates[j].PeerName
	})
	return candidates[0]
}
