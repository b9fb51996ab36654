package bus

import (
	"context"

	"github.com/lucas/overmesh/internal/peertransport/rpc"
)

// adminServer adapts the Bus's NetworkClient/DataChannel scoped surfaces to
// rpc.AdminServer, so meshctl reaches peer and route CRUD the same way an
// in-process caller would: through authorize->dispatch, never by touching
// netlink or VXLAN state directly.
type adminServer struct {
	network *NetworkClient
	data    *DataChannel
}

func newAdminServer(b *Bus) *adminServer {
	return &adminServer{network: b.NetworkClient(), data: b.DataChannel()}
}

func (s *adminServer) AddPeer(ctx context.Context, req *rpc.AddPeerRequest) (*rpc.Ack, error) {
	return ack(s.network.AddPeer(ctx, req.Token, req.Peer))
}

func (s *adminServer) UpdatePeer(ctx context.Context, req *rpc.UpdatePeerRequest) (*rpc.Ack, error) {
	return ack(s.network.UpdatePeer(ctx, req.Token, req.Peer))
}

func (s *adminServer) RemovePeer(ctx context.Context, req *rpc.RemovePeerRequest) (*rpc.Ack, error) {
	return ack(s.network.RemovePeer(ctx, req.Token, req.Name))
}

func (s *adminServer) ListPeers(ctx context.Context, req *rpc.ListPeersRequest) (*rpc.ListPeersResponse, error) {
	peers, err := s.network.ListPeers(ctx, req.Token)
	if err != nil {
		return &rpc.ListPeersResponse{Error: err.Error()}, nil
	}
	return &rpc.ListPeersResponse{Peers: peers}, nil
}

func (s *adminServer) AddRoute(ctx context.Context, req *rpc.AddRouteRequest) (*rpc.Ack, error) {
	return ack(s.data.AddRoute(ctx, req.Token, req.Route))
}

func (s *adminServer) RemoveRoute(ctx context.Context, req *rpc.RemoveRouteRequest) (*rpc.Ack, error) {
	return ack(s.data.RemoveRoute(ctx, req.Token, req.Route))
}

func (s *adminServer) ListRoutes(ctx context.Context, req *rpc.ListRoutesRequest) (*rpc.ListRoutesResponse, error) {
	table, err := s.data.ListRoutes(ctx, req.Token)
	if err != nil {
		return &rpc.ListRoutesResponse{Error: err.Error()}, nil
	}
	return &rpc.ListRoutesResponse{Table: table}, nil
}

func (s *adminServer) Status(ctx context.Context, req *rpc.StatusRequest) (*rpc.StatusResponse, error) {
	peers, err := s.network.ListPeers(ctx, req.Token)
	if err != nil {
		return &rpc.StatusResponse{Error: err.Error()}, nil
	}
	table, err := s.data.ListRoutes(ctx, req.Token)
	if err != nil {
		return &rpc.StatusResponse{Error: err.Error()}, nil
	}
	return &rpc.StatusResponse{
		Node:           s.network.bus.node,
		PeerCount:      len(peers),
		LocalRoutes:    len(table.Local.Routes),
		InternalRoutes: len(table.Internal.Routes),
	}, nil
}

// ack converts an error into the shared Ack response shape, matching the
// helper rpc.service.go defines for the IBGP surface (unexported there, so
// duplicated here rather than exported solely for this one caller).
func ack(err error) (*rpc.Ack, error) {
	if err != nil {
		return &rpc.Ack{OK: false, Error: err.Error()}, nil
	}
	return &rpc.Ack{OK: true}, nil
}
