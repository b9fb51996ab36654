package bus

import (
	"context"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/lucas/overmesh/internal/meshtypes"
	"github.com/lucas/overmesh/internal/peertransport/rpc"
)

func dialAdmin(t *testing.T, addr string) *rpc.AdminClient {
	t.Helper()
	rpc.RegisterCodec()
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial admin surface: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return rpc.NewAdminClient(conn)
}

func TestAdminRPCAddPeerAndListPeers(t *testing.T) {
	ctx := context.Background()
	node := startTestNode(t, "a.mesh.test", Options{})
	client := dialAdmin(t, node.addr)

	ack, err := client.AddPeer(ctx, &rpc.AddPeerRequest{
		Peer: meshtypes.PeerInfo{Name: "b.mesh.test", Endpoint: "127.0.0.1:1", Domains: []string{"mesh.test"}},
	})
	if err != nil {
		t.Fatalf("AddPeer rpc: %v", err)
	}
	if !ack.OK {
		t.Fatalf("expected AddPeer ack OK, got error %q", ack.Error)
	}

	resp, err := client.ListPeers(ctx, &rpc.ListPeersRequest{})
	if err != nil {
		t.Fatalf("ListPeers rpc: %v", err)
	}
	if resp.Error != "" {
		t.Fatalf("ListPeers returned error: %s", resp.Error)
	}
	var found bool
	for _, p := range resp.Peers {
		if p.Name == "b.mesh.test" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected b.mesh.test in ListPeers response, got %+v", resp.Peers)
	}
}

func TestAdminRPCAddRouteAndStatus(t *testing.T) {
	ctx := context.Background()
	node := startTestNode(t, "a.mesh.test", Options{})
	client := dialAdmin(t, node.addr)

	ack, err := client.AddRoute(ctx, &rpc.AddRouteRequest{
		Route: meshtypes.DataChannelDefinition{Name: "checkout", Protocol: "http", Endpoint: "10.0.0.5:8080"},
	})
	if err != nil {
		t.Fatalf("AddRoute rpc: %v", err)
	}
	if !ack.OK {
		t.Fatalf("expected AddRoute ack OK, got error %q", ack.Error)
	}

	status, err := client.Status(ctx, &rpc.StatusRequest{})
	if err != nil {
		t.Fatalf("Status rpc: %v", err)
	}
	if status.Error != "" {
		t.Fatalf("Status returned error: %s", status.Error)
	}
	if status.Node.Name != "a.mesh.test" {
		t.Fatalf("expected status node a.mesh.test, got %s", status.Node.Name)
	}
	if status.LocalRoutes != 1 {
		t.Fatalf("expected 1 local route, got %d", status.LocalRoutes)
	}
}

func TestAdminRPCRejectsUnauthorizedToken(t *testing.T) {
	ctx := context.Background()
	node := startTestNode(t, "a.mesh.test", Options{AuthValidator: denyAll{}})
	client := dialAdmin(t, node.addr)

	ack, err := client.AddPeer(ctx, &rpc.AddPeerRequest{
		Token: "bad-token",
		Peer:  meshtypes.PeerInfo{Name: "b.mesh.test", Endpoint: "127.0.0.1:1"},
	})
	if err != nil {
		t.Fatalf("AddPeer rpc transport error: %v", err)
	}
	if ack.OK {
		t.Fatal("expected AddPeer ack to report denial, got OK")
	}
}
