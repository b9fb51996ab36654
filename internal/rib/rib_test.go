package rib

import (
	"errors"
	"testing"
	"time"

	"github.com/lucas/overmesh/internal/meshtypes"
	"github.com/lucas/overmesh/internal/portalloc"
)

func mustCommit(t *testing.T, r *RIB, action meshtypes.Action) CommitResult {
	t.Helper()
	plan, err := r.Plan(action)
	if err != nil {
		t.Fatalf("plan(%T) failed: %v", action, err)
	}
	return r.Commit(plan)
}

func connectPeer(t *testing.T, r *RIB, self meshtypes.NodeIdentity, peer meshtypes.PeerInfo, now time.Time) {
	t.Helper()
	mustCommit(t, r, meshtypes.LocalPeerCreate{Peer: peer})
	mustCommit(t, r, meshtypes.InternalProtocolConnected{Peer: peer, Now: now})
}

func TestLocalRouteCreatePropagatesWithOwnNodePath(t *testing.T) {
	now := time.Unix(1700000000, 0)
	a := New(meshtypes.NodeIdentity{Name: "a.x.io"}, 90*time.Second, nil)
	connectPeer(t, a, meshtypes.NodeIdentity{Name: "a.x.io"}, meshtypes.PeerInfo{Name: "b.x.io"}, now)

	commit := mustCommit(t, a, meshtypes.LocalRouteCreate{
		Route: meshtypes.DataChannelDefinition{Name: "svc", Protocol: "http", Endpoint: "http://svc:8080"},
	})

	if len(commit.Propagations) != 1 {
		t.Fatalf("expected 1 propagation, got %d", len(commit.Propagations))
	}
	p := commit.Propagations[0]
	if p.Target.Name != "b.x.io" || p.Kind != meshtypes.PropagationUpdate {
		t.Fatalf("unexpected propagation: %+v", p)
	}
	entry := p.Update.Updates[0]
	if entry.Action != meshtypes.UpdateAdd || entry.Route.Name != "svc" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if len(entry.NodePath) != 1 || entry.NodePath[0] != "a.x.io" {
		t.Fatalf("expected nodePath [a.x.io], got %v", entry.NodePath)
	}
}

func TestTransitPrependsOwnName(t *testing.T) {
	now := time.Unix(1700000000, 0)
	b := New(meshtypes.NodeIdentity{Name: "b.x.io"}, 90*time.Second, nil)
	connectPeer(t, b, meshtypes.NodeIdentity{Name: "b.x.io"}, meshtypes.PeerInfo{Name: "a.x.io"}, now)
	connectPeer(t, b, meshtypes.NodeIdentity{Name: "b.x.io"}, meshtypes.PeerInfo{Name: "c.x.io"}, now)

	commit := mustCommit(t, b, meshtypes.InternalProtocolUpdate{
		Peer: meshtypes.PeerInfo{Name: "a.x.io"},
		Now:  now,
		Update: meshtypes.UpdateMessage{Updates: []meshtypes.UpdateEntry{{
			Action:   meshtypes.UpdateAdd,
			Route:    meshtypes.DataChannelDefinition{Name: "svc"},
			NodePath: []string{"a.x.io"},
		}}},
	})

	key := meshtypes.InternalRouteKey{Name: "svc", PeerName: "a.x.io"}
	route, ok := commit.NewState.Internal.Routes[key]
	if !ok {
		t.Fatalf("expected route to be stored")
	}
	if len(route.NodePath) != 1 || route.NodePath[0] != "a.x.io" {
		t.Fatalf("expected stored nodePath [a.x.io], got %v", route.NodePath)
	}

	if len(commit.Propagations) != 1 {
		t.Fatalf("expected 1 propagation (to c, not back to a), got %d", len(commit.Propagations))
	}
	p := commit.Propagations[0]
	if p.Target.Name != "c.x.io" {
		t.Fatalf("expected propagation to c.x.io, got %s", p.Target.Name)
	}
	entry := p.Update.Updates[0]
	if len(entry.NodePath) != 2 || entry.NodePath[0] != "b.x.io" || entry.NodePath[1] != "a.x.io" {
		t.Fatalf("expected nodePath [b.x.io a.x.io], got %v", entry.NodePath)
	}
}

func TestLoopedUpdateIsSilentlyDropped(t *testing.T) {
	now := time.Unix(1700000000, 0)
	a := New(meshtypes.NodeIdentity{Name: "a.x.io"}, 90*time.Second, nil)
	connectPeer(t, a, meshtypes.NodeIdentity{Name: "a.x.io"}, meshtypes.PeerInfo{Name: "c.x.io"}, now)

	commit := mustCommit(t, a, meshtypes.InternalProtocolUpdate{
		Peer: meshtypes.PeerInfo{Name: "c.x.io"},
		Now:  now,
		Update: meshtypes.UpdateMessage{Updates: []meshtypes.UpdateEntry{{
			Action:   meshtypes.UpdateAdd,
			Route:    meshtypes.DataChannelDefinition{Name: "svc"},
			NodePath: []string{"c.x.io", "a.x.io"},
		}}},
	})

	if len(commit.NewState.Internal.Routes) != 0 {
		t.Fatalf("expected loop to be dropped, got routes: %+v", commit.NewState.Internal.Routes)
	}
	if len(commit.Propagations) != 0 {
		t.Fatalf("expected no propagations for a dropped loop, got %+v", commit.Propagations)
	}
}

func TestHoldTimerExpiryDegradesAndWithdraws(t *testing.T) {
	start := time.Unix(1700000000, 0)
	b := New(meshtypes.NodeIdentity{Name: "b.x.io"}, 5*time.Second, nil)
	connectPeer(t, b, meshtypes.NodeIdentity{Name: "b.x.io"}, meshtypes.PeerInfo{Name: "a.x.io"}, start)

	mustCommit(t, b, meshtypes.InternalProtocolUpdate{
		Peer: meshtypes.PeerInfo{Name: "a.x.io"},
		Now:  start,
		Update: meshtypes.UpdateMessage{Updates: []meshtypes.UpdateEntry{{
			Action:   meshtypes.UpdateAdd,
			Route:    meshtypes.DataChannelDefinition{Name: "svc"},
			NodePath: []string{"a.x.io"},
		}}},
	})

	farFuture := start.Add(200 * time.Second)
	commit := mustCommit(t, b, meshtypes.InternalProtocolTick{Now: farFuture})

	peer := commit.NewState.Internal.Peers["a.x.io"]
	if peer.ConnectionStatus != meshtypes.StatusDegraded {
		t.Fatalf("expected peer a.x.io to be degraded, got %s", peer.ConnectionStatus)
	}
	for k := range commit.NewState.Internal.Routes {
		if k.PeerName == "a.x.io" {
			t.Fatalf("expected routes from a.x.io to be withdrawn, found %+v", k)
		}
	}
}

func TestEgressPortRewriteOnReadvertisement(t *testing.T) {
	now := time.Unix(1700000000, 0)
	alloc := portalloc.New(portalloc.Range{Min: 10000, Max: 10100})
	a := New(meshtypes.NodeIdentity{Name: "a.x.io"}, 90*time.Second, alloc)
	connectPeer(t, a, meshtypes.NodeIdentity{Name: "a.x.io"}, meshtypes.PeerInfo{Name: "b.x.io"}, now)
	connectPeer(t, a, meshtypes.NodeIdentity{Name: "a.x.io"}, meshtypes.PeerInfo{Name: "c.x.io"}, now)

	commit := mustCommit(t, a, meshtypes.InternalProtocolUpdate{
		Peer: meshtypes.PeerInfo{Name: "b.x.io"},
		Now:  now,
		Update: meshtypes.UpdateMessage{Updates: []meshtypes.UpdateEntry{{
			Action:   meshtypes.UpdateAdd,
			Route:    meshtypes.DataChannelDefinition{Name: "books", EnvoyPort: 5000},
			NodePath: []string{"b.x.io"},
		}}},
	})

	if len(commit.Propagations) != 1 || commit.Propagations[0].Target.Name != "c.x.io" {
		t.Fatalf("expected a single propagation to c.x.io, got %+v", commit.Propagations)
	}
	entry := commit.Propagations[0].Update.Updates[0]
	if entry.Route.EnvoyPort < 10000 || entry.Route.EnvoyPort > 10100 {
		t.Fatalf("expected rewritten envoyPort in [10000,10100], got %d", entry.Route.EnvoyPort)
	}
	if len(entry.NodePath) != 2 || entry.NodePath[0] != "a.x.io" || entry.NodePath[1] != "b.x.io" {
		t.Fatalf("expected nodePath [a.x.io b.x.io], got %v", entry.NodePath)
	}

	// A subsequent remove must pass through unchanged: no envoyPort rewrite.
	removeCommit := mustCommit(t, a, meshtypes.InternalProtocolUpdate{
		Peer: meshtypes.PeerInfo{Name: "b.x.io"},
		Now:  now,
		Update: meshtypes.UpdateMessage{Updates: []meshtypes.UpdateEntry{{
			Action: meshtypes.UpdateRemove,
			Route:  meshtypes.DataChannelDefinition{Name: "books"},
		}}},
	})
	removeEntry := removeCommit.Propagations[0].Update.Updates[0]
	if removeEntry.Route.EnvoyPort != 0 {
		t.Fatalf("expected remove to carry no envoyPort, got %d", removeEntry.Route.EnvoyPort)
	}
}

func TestPortExhaustionIsNonFatal(t *testing.T) {
	alloc := portalloc.New(portalloc.Range{Min: 10000, Max: 10000})
	if _, err := alloc.Allocate("egress_books_via_b.x.io"); err != nil {
		t.Fatal(err)
	}

	a := New(meshtypes.NodeIdentity{Name: "a.x.io"}, 90*time.Second, alloc)
	connectPeer(t, a, meshtypes.NodeIdentity{Name: "a.x.io"}, meshtypes.PeerInfo{Name: "b.x.io"}, time.Unix(0, 0))

	commit, err := a.Plan(meshtypes.InternalProtocolUpdate{
		Peer: meshtypes.PeerInfo{Name: "b.x.io"},
		Now:  time.Unix(0, 0),
		Update: meshtypes.UpdateMessage{Updates: []meshtypes.UpdateEntry{{
			Action:   meshtypes.UpdateAdd,
			Route:    meshtypes.DataChannelDefinition{Name: "other", EnvoyPort: 9999},
			NodePath: []string{"b.x.io"},
		}}},
	})
	if err != nil {
		t.Fatalf("expected no plan error on allocator exhaustion, got %v", err)
	}
	a.Commit(commit)
	// No panic, no returned error: exhaustion is recovered per the error taxonomy.
}

func TestFullResyncExcludesPathsContainingTarget(t *testing.T) {
	now := time.Unix(0, 0)
	b := New(meshtypes.NodeIdentity{Name: "b.x.io"}, 90*time.Second, nil)
	connectPeer(t, b, meshtypes.NodeIdentity{Name: "b.x.io"}, meshtypes.PeerInfo{Name: "a.x.io"}, now)

	mustCommit(t, b, meshtypes.InternalProtocolUpdate{
		Peer: meshtypes.PeerInfo{Name: "a.x.io"},
		Now:  now,
		Update: meshtypes.UpdateMessage{Updates: []meshtypes.UpdateEntry{{
			Action:   meshtypes.UpdateAdd,
			Route:    meshtypes.DataChannelDefinition{Name: "svc"},
			NodePath: []string{"c.x.io"},
		}}},
	})

	mustCommit(t, b, meshtypes.LocalRouteCreate{Route: meshtypes.DataChannelDefinition{Name: "local-svc"}})

	// c now joins b; the resync sent to c carries local-svc, but the route
	// learned from a with path [c.x.io] must be excluded from it.
	mustCommit(t, b, meshtypes.LocalPeerCreate{Peer: meshtypes.PeerInfo{Name: "c.x.io"}})
	commit := mustCommit(t, b, meshtypes.InternalProtocolConnected{Peer: meshtypes.PeerInfo{Name: "c.x.io"}, Now: now})

	if len(commit.Propagations) != 1 {
		t.Fatalf("expected exactly one resync propagation, got %d", len(commit.Propagations))
	}
	for _, e := range commit.Propagations[0].Update.Updates {
		if e.Route.Name == "svc" {
			t.Fatalf("expected svc (path contains c.x.io) to be excluded from resync to c.x.io")
		}
	}
}

func TestDuplicatePeerCreateFails(t *testing.T) {
	r := New(meshtypes.NodeIdentity{Name: "a.x.io"}, 90*time.Second, nil)
	mustCommit(t, r, meshtypes.LocalPeerCreate{Peer: meshtypes.PeerInfo{Name: "b.x.io"}})

	_, err := r.Plan(meshtypes.LocalPeerCreate{Peer: meshtypes.PeerInfo{Name: "b.x.io"}})
	if !errors.Is(err, meshtypes.ErrPeerExists) {
		t.Fatalf("expected ErrPeerExists, got %v", err)
	}
}

func TestLocalPeerUpdateReplacesFieldsButKeepsToken(t *testing.T) {
	r := New(meshtypes.NodeIdentity{Name: "a.x.io"}, 90*time.Second, nil)
	mustCommit(t, r, meshtypes.LocalPeerCreate{Peer: meshtypes.PeerInfo{
		Name:          "b.x.io",
		Endpoint:      "b.x.io:9000",
		PublicAddress: "1.2.3.4",
		PeerToken:     "secret",
	}})

	commit := mustCommit(t, r, meshtypes.LocalPeerUpdate{Peer: meshtypes.PeerInfo{
		Name:     "b.x.io",
		Endpoint: "b.x.io:9001",
	}})

	peer := commit.NewState.Internal.Peers["b.x.io"].PeerInfo
	if peer.PublicAddress != "" {
		t.Fatalf("expected publicAddress to be cleared by replace, got %q", peer.PublicAddress)
	}
	if peer.Endpoint != "b.x.io:9001" {
		t.Fatalf("expected endpoint to be replaced, got %q", peer.Endpoint)
	}
	if peer.PeerToken != "secret" {
		t.Fatalf("expected peerToken to survive the update, got %q", peer.PeerToken)
	}
}

func TestRemoveAfterAddReturnsToBaseline(t *testing.T) {
	r := New(meshtypes.NodeIdentity{Name: "a.x.io"}, 90*time.Second, nil)
	route := meshtypes.DataChannelDefinition{Name: "svc", Protocol: "http", Endpoint: "http://svc"}

	mustCommit(t, r, meshtypes.LocalRouteCreate{Route: route})
	commit := mustCommit(t, r, meshtypes.LocalRouteDelete{Route: route})

	if _, exists := commit.NewState.Local.Routes["svc"]; exists {
		t.Fatalf("expected route to be gone after delete")
	}
}

func TestSelectForDataPlanePrefersShortestPathThenPeerName(t *testing.T) {
	state := meshtypes.NewRouteTable()
	state.Internal.Routes[meshtypes.InternalRouteKey{Name: "svc", PeerName: "z.x.io"}] = meshtypes.InternalRoute{
		DataChannelDefinition: meshtypes.DataChannelDefinition{Name: "svc"},
		PeerName:              "z.x.io",
		NodePath:              []string{"z.x.io"},
	}
	state.Internal.Routes[meshtypes.InternalRouteKey{Name: "svc", PeerName: "m.x.io"}] = meshtypes.InternalRoute{
		DataChannelDefinition: meshtypes.DataChannelDefinition{Name: "svc"},
		PeerName:              "m.x.io",
		NodePath:              []string{"m.x.io"},
	}
	state.Internal.Routes[meshtypes.InternalRouteKey{Name: "svc", PeerName: "a.x.io"}] = meshtypes.InternalRoute{
		DataChannelDefinition: meshtypes.DataChannelDefinition{Name: "svc"},
		PeerName:              "a.x.io",
		NodePath:              []string{"a.x.io", "x.x.io"},
	}

	selected := SelectForDataPlane(state)
	got := selected["svc"]
	if got.Origin != "m.x.io" {
		t.Fatalf("expected tie-break to pick lexicographically smallest peerName among equal-length paths, got %s", got.Origin)
	}
}
