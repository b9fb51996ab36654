package peertransport

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/lucas/overmesh/internal/meshtypes"
	"github.com/lucas/overmesh/internal/peertransport/rpc"
)

// Session is the abstract remote-side surface: the four iBGP verbs this
// node can send to one peer. The RIB never sees this type — only the
// bus's post-commit fan-out does.
type Session interface {
	Open(ctx context.Context, self meshtypes.PeerInfo) error
	Close(ctx context.Context, self meshtypes.PeerInfo, code int, reason string) error
	Update(ctx context.Context, self meshtypes.PeerInfo, msg meshtypes.UpdateMessage) error
	Keepalive(ctx context.Context, self meshtypes.PeerInfo) error
}

// grpcSession is the only Session implementation: a cached *grpc.ClientConn
// plus the hand-written IBGP client stub, with the caller-presented
// credential attached to every outbound RPC as bearer metadata.
type grpcSession struct {
	conn   *grpc.ClientConn
	client *rpc.IBGPClient
	token  string
}

func newGRPCSession(conn *grpc.ClientConn, token string) *grpcSession {
	return &grpcSession{conn: conn, client: rpc.NewIBGPClient(conn), token: token}
}

func (s *grpcSession) withToken(ctx context.Context) context.Context {
	if s.token == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+s.token)
}

func (s *grpcSession) Open(ctx context.Context, self meshtypes.PeerInfo) error {
	ack, err := s.client.Open(s.withToken(ctx), &rpc.OpenRequest{Token: s.token, Peer: self})
	return ackErr(ack, err)
}

func (s *grpcSession) Close(ctx context.Context, self meshtypes.PeerInfo, code int, reason string) error {
	ack, err := s.client.Close(s.withToken(ctx), &rpc.CloseRequest{Token: s.token, Peer: self, Code: code, Reason: reason})
	return ackErr(ack, err)
}

func (s *grpcSession) Update(ctx context.Context, self meshtypes.PeerInfo, msg meshtypes.UpdateMessage) error {
	ack, err := s.client.Update(s.withToken(ctx), &rpc.UpdateRequest{Token: s.token, Peer: self, Update: msg})
	return ackErr(ack, err)
}

func (s *grpcSession) Keepalive(ctx context.Context, self meshtypes.PeerInfo) error {
	ack, err := s.client.Keepalive(s.withToken(ctx), &rpc.KeepaliveRequest{Token: s.token, Peer: self})
	return ackErr(ack, err)
}

func ackErr(ack *rpc.Ack, err error) error {
	if err != nil {
		return err
	}
	if !ack.OK {
		return fmt.Errorf("peer rejected request: %s", ack.Error)
	}
	return nil
}
