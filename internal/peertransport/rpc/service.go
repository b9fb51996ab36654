package rpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"

	"github.com/lucas/overmesh/internal/meshtypes"
)

// ServiceName mirrors what protoc-gen-go-grpc would have generated from a
// package named "overmesh" and a service named "IBGP".
const ServiceName = "overmesh.IBGP"

// Ack is the response shape shared by every method on the surface: the
// scoped-client API in spec terms never returns more than {ok, error}.
type Ack struct {
	OK    bool
	Error string
}

func ack(err error) (*Ack, error) {
	if err != nil {
		return &Ack{OK: false, Error: err.Error()}, nil
	}
	return &Ack{OK: true}, nil
}

type OpenRequest struct {
	Token string
	Peer  meshtypes.PeerInfo
}

type CloseRequest struct {
	Token  string
	Peer   meshtypes.PeerInfo
	Code   int
	Reason string
}

type UpdateRequest struct {
	Token  string
	Peer   meshtypes.PeerInfo
	Update meshtypes.UpdateMessage
}

type KeepaliveRequest struct {
	Token string
	Peer  meshtypes.PeerInfo
}

// IBGPServer is implemented by whatever receives these RPCs — the bus's
// IBGPClient scoped-client surface, wrapped to satisfy this interface.
type IBGPServer interface {
	Open(ctx context.Context, req *OpenRequest) (*Ack, error)
	Close(ctx context.Context, req *CloseRequest) (*Ack, error)
	Update(ctx context.Context, req *UpdateRequest) (*Ack, error)
	Keepalive(ctx context.Context, req *KeepaliveRequest) (*Ack, error)
}

func openHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(OpenRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(IBGPServer).Open(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/Open"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(IBGPServer).Open(ctx, req.(*OpenRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func closeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(CloseRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(IBGPServer).Close(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/Close"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(IBGPServer).Close(ctx, req.(*CloseRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func updateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(UpdateRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(IBGPServer).Update(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/Update"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(IBGPServer).Update(ctx, req.(*UpdateRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func keepaliveHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(KeepaliveRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(IBGPServer).Keepalive(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/Keepalive"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(IBGPServer).Keepalive(ctx, req.(*KeepaliveRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// ServiceDesc is the hand-written analogue of what protoc-gen-go-grpc emits.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*IBGPServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Open", Handler: openHandler},
		{MethodName: "Close", Handler: closeHandler},
		{MethodName: "Update", Handler: updateHandler},
		{MethodName: "Keepalive", Handler: keepaliveHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "internal/peertransport/rpc/service.go",
}

// RegisterIBGPServer attaches srv to s under the IBGP service descriptor.
func RegisterIBGPServer(s *grpc.Server, srv IBGPServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// IBGPClient is the hand-written analogue of a protoc-gen-go-grpc client
// stub: every method is a thin wrapper around ClientConn.Invoke, forcing
// the JSON content-subtype so the call rides the codec above.
type IBGPClient struct {
	cc *grpc.ClientConn
}

func NewIBGPClient(cc *grpc.ClientConn) *IBGPClient {
	return &IBGPClient{cc: cc}
}

func (c *IBGPClient) callOpts(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
}

func (c *IBGPClient) Open(ctx context.Context, in *OpenRequest, opts ...grpc.CallOption) (*Ack, error) {
	out := new(Ack)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/Open", in, out, c.callOpts(opts)...); err != nil {
		return nil, fmt.Errorf("ibgp open rpc: %w", err)
	}
	return out, nil
}

func (c *IBGPClient) Close(ctx context.Context, in *CloseRequest, opts ...grpc.CallOption) (*Ack, error) {
	out := new(Ack)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/Close", in, out, c.callOpts(opts)...); err != nil {
		return nil, fmt.Errorf("ibgp close rpc: %w", err)
	}
	return out, nil
}

func (c *IBGPClient) Update(ctx context.Context, in *UpdateRequest, opts ...grpc.CallOption) (*Ack, error) {
	out := new(Ack)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/Update", in, out, c.callOpts(opts)...); err != nil {
		return nil, fmt.Errorf("ibgp update rpc: %w", err)
	}
	return out, nil
}

func (c *IBGPClient) Keepalive(ctx context.Context, in *KeepaliveRequest, opts ...grpc.CallOption) (*Ack, error) {
	out := new(Ack)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/Keepalive", in, out, c.callOpts(opts)...); err != nil {
		return nil, fmt.Errorf("ibgp keepalive rpc: %w", err)
	}
	return out, nil
}
