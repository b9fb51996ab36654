package bus

import (
	"context"

	"google.golang.org/grpc"

	"github.com/lucas/overmesh/internal/peertransport/rpc"
)

// ibgpServer adapts the Bus's IBGPClient scoped surface to rpc.IBGPServer,
// so inbound peer RPCs funnel through the same authorize->dispatch path as
// any other scoped-client caller. The token presented over the wire (field
// or bearer metadata — the methods below only read the field; the
// metadata copy exists for collaborators that prefer interceptor-based
// auth) is what gets validated.
type ibgpServer struct {
	client *IBGPClient
}

func newIBGPServer(b *Bus) *ibgpServer {
	return &ibgpServer{client: b.IBGPClient()}
}

func (s *ibgpServer) Open(ctx context.Context, req *rpc.OpenRequest) (*rpc.Ack, error) {
	if err := s.client.Open(ctx, req.Token, req.Peer); err != nil {
		return &rpc.Ack{OK: false, Error: err.Error()}, nil
	}
	return &rpc.Ack{OK: true}, nil
}

func (s *ibgpServer) Close(ctx context.Context, req *rpc.CloseRequest) (*rpc.Ack, error) {
	if err := s.client.Close(ctx, req.Token, req.Peer, req.Code, req.Reason); err != nil {
		return &rpc.Ack{OK: false, Error: err.Error()}, nil
	}
	return &rpc.Ack{OK: true}, nil
}

func (s *ibgpServer) Update(ctx context.Context, req *rpc.UpdateRequest) (*rpc.Ack, error) {
	if err := s.client.Update(ctx, req.Token, req.Peer, req.Update); err != nil {
		return &rpc.Ack{OK: false, Error: err.Error()}, nil
	}
	return &rpc.Ack{OK: true}, nil
}

func (s *ibgpServer) Keepalive(ctx context.Context, req *rpc.KeepaliveRequest) (*rpc.Ack, error) {
	if err := s.client.Keepalive(ctx, req.Token, req.Peer); err != nil {
		return &rpc.Ack{OK: false, Error: err.Error()}, nil
	}
	return &rpc.Ack{OK: true}, nil
}

// RegisterGRPC attaches the peer-facing iBGP surface and the meshctl-facing
// admin surface to s.
func (b *Bus) RegisterGRPC(s *grpc.Server) {
	rpc.RegisterIBGPServer(s, newIBGPServer(b))
	rpc.RegisterAdminServer(s, newAdminServer(b))
}
