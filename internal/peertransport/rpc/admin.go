package rpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"

	"github.com/lucas/overmesh/internal/meshtypes"
)

// AdminServiceName mirrors what protoc-gen-go-grpc would have generated
// for a service named "Admin" in the same "overmesh" package as IBGP.
// This is the surface meshctl dials — NetworkClient/DataChannel exposed
// over the wire instead of IBGPClient's peer-to-peer protocol calls.
const AdminServiceName = "overmesh.Admin"

type AddPeerRequest struct {
	Token string
	Peer  meshtypes.PeerInfo
}

type UpdatePeerRequest struct {
	Token string
	Peer  meshtypes.PeerInfo
}

type RemovePeerRequest struct {
	Token string
	Name  string
}

type ListPeersRequest struct {
	Token string
}

type ListPeersResponse struct {
	Peers []meshtypes.PeerRecord
	Error string
}

type AddRouteRequest struct {
	Token string
	Route meshtypes.DataChannelDefinition
}

type RemoveRouteRequest struct {
	Token string
	Route meshtypes.DataChannelDefinition
}

type ListRoutesRequest struct {
	Token string
}

type ListRoutesResponse struct {
	Table meshtypes.RouteTable
	Error string
}

type StatusRequest struct {
	Token string
}

type StatusResponse struct {
	Node           meshtypes.NodeIdentity
	PeerCount      int
	LocalRoutes    int
	InternalRoutes int
	Error          string
}

// AdminServer is implemented by whatever receives these RPCs — the bus's
// NetworkClient/DataChannel scoped-client surface, wrapped to satisfy this
// interface so meshctl never talks to netlink or VXLAN state directly.
type AdminServer interface {
	AddPeer(ctx context.Context, req *AddPeerRequest) (*Ack, error)
	UpdatePeer(ctx context.Context, req *UpdatePeerRequest) (*Ack, error)
	RemovePeer(ctx context.Context, req *RemovePeerRequest) (*Ack, error)
	ListPeers(ctx context.Context, req *ListPeersRequest) (*ListPeersResponse, error)
	AddRoute(ctx context.Context, req *AddRouteRequest) (*Ack, error)
	RemoveRoute(ctx context.Context, req *RemoveRouteRequest) (*Ack, error)
	ListRoutes(ctx context.Context, req *ListRoutesRequest) (*ListRoutesResponse, error)
	Status(ctx context.Context, req *StatusRequest) (*StatusResponse, error)
}

func adminAddPeerHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(AddPeerRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdminServer).AddPeer(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + AdminServiceName + "/AddPeer"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AdminServer).AddPeer(ctx, req.(*AddPeerRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func adminUpdatePeerHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(UpdatePeerRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdminServer).UpdatePeer(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + AdminServiceName + "/UpdatePeer"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AdminServer).UpdatePeer(ctx, req.(*UpdatePeerRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func adminRemovePeerHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(RemovePeerRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdminServer).RemovePeer(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + AdminServiceName + "/RemovePeer"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AdminServer).RemovePeer(ctx, req.(*RemovePeerRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func adminListPeersHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ListPeersRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdminServer).ListPeers(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + AdminServiceName + "/ListPeers"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AdminServer).ListPeers(ctx, req.(*ListPeersRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func adminAddRouteHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(AddRouteRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdminServer).AddRoute(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + AdminServiceName + "/AddRoute"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AdminServer).AddRoute(ctx, req.(*AddRouteRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func adminRemoveRouteHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(RemoveRouteRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdminServer).RemoveRoute(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + AdminServiceName + "/RemoveRoute"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AdminServer).RemoveRoute(ctx, req.(*RemoveRouteRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func adminListRoutesHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ListRoutesRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdminServer).ListRoutes(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + AdminServiceName + "/ListRoutes"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AdminServer).ListRoutes(ctx, req.(*ListRoutesRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func adminStatusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(StatusRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdminServer).Status(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + AdminServiceName + "/Status"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AdminServer).Status(ctx, req.(*StatusRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// AdminServiceDesc is the hand-written analogue of what protoc-gen-go-grpc
// emits for the Admin service.
var AdminServiceDesc = grpc.ServiceDesc{
	ServiceName: AdminServiceName,
	HandlerType: (*AdminServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "AddPeer", Handler: adminAddPeerHandler},
		{MethodName: "UpdatePeer", Handler: adminUpdatePeerHandler},
		{MethodName: "RemovePeer", Handler: adminRemovePeerHandler},
		{MethodName: "ListPeers", Handler: adminListPeersHandler},
		{MethodName: "AddRoute", Handler: adminAddRouteHandler},
		{MethodName: "RemoveRoute", Handler: adminRemoveRouteHandler},
		{MethodName: "ListRoutes", Handler: adminListRoutesHandler},
		{MethodName: "Status", Handler: adminStatusHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "internal/peertransport/rpc/admin.go",
}

// RegisterAdminServer attaches srv to s under the Admin service descriptor.
func RegisterAdminServer(s *grpc.Server, srv AdminServer) {
	s.RegisterService(&AdminServiceDesc, srv)
}

// AdminClient is the hand-written analogue of a protoc-gen-go-grpc client
// stub for the Admin service; meshctl is its only caller.
type AdminClient struct {
	cc *grpc.ClientConn
}

func NewAdminClient(cc *grpc.ClientConn) *AdminClient {
	return &AdminClient{cc: cc}
}

func (c *AdminClient) callOpts(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
}

func (c *AdminClient) AddPeer(ctx context.Context, in *AddPeerRequest, opts ...grpc.CallOption) (*Ack, error) {
	out := new(Ack)
	if err := c.cc.Invoke(ctx, "/"+AdminServiceName+"/AddPeer", in, out, c.callOpts(opts)...); err != nil {
		return nil, fmt.Errorf("admin addPeer rpc: %w", err)
	}
	return out, nil
}

func (c *AdminClient) UpdatePeer(ctx context.Context, in *UpdatePeerRequest, opts ...grpc.CallOption) (*Ack, error) {
	out := new(Ack)
	if err := c.cc.Invoke(ctx, "/"+AdminServiceName+"/UpdatePeer", in, out, c.callOpts(opts)...); err != nil {
		return nil, fmt.Errorf("admin updatePeer rpc: %w", err)
	}
	return out, nil
}

func (c *AdminClient) RemovePeer(ctx context.Context, in *RemovePeerRequest, opts ...grpc.CallOption) (*Ack, error) {
	out := new(Ack)
	if err := c.cc.Invoke(ctx, "/"+AdminServiceName+"/RemovePeer", in, out, c.callOpts(opts)...); err != nil {
		return nil, fmt.Errorf("admin removePeer rpc: %w", err)
	}
	return out, nil
}

func (c *AdminClient) ListPeers(ctx context.Context, in *ListPeersRequest, opts ...grpc.CallOption) (*ListPeersResponse, error) {
	out := new(ListPeersResponse)
	if err := c.cc.Invoke(ctx, "/"+AdminServiceName+"/ListPeers", in, out, c.callOpts(opts)...); err != nil {
		return nil, fmt.Errorf("admin listPeers rpc: %w", err)
	}
	return out, nil
}

func (c *AdminClient) AddRoute(ctx context.Context, in *AddRouteRequest, opts ...grpc.CallOption) (*Ack, error) {
	out := new(Ack)
	if err := c.cc.Invoke(ctx, "/"+AdminServiceName+"/AddRoute", in, out, c.callOpts(opts)...); err != nil {
		return nil, fmt.Errorf("admin addRoute rpc: %w", err)
	}
	return out, nil
}

func (c *AdminClient) RemoveRoute(ctx context.Context, in *RemoveRouteRequest, opts ...grpc.CallOption) (*Ack, error) {
	out := new(Ack)
	if err := c.cc.Invoke(ctx, "/"+AdminServiceName+"/RemoveRoute", in, out, c.callOpts(opts)...); err != nil {
		return nil, fmt.Errorf("admin removeRoute rpc: %w", err)
	}
	return out, nil
}

func (c *AdminClient) ListRoutes(ctx context.Context, in *ListRoutesRequest, opts ...grpc.CallOption) (*ListRoutesResponse, error) {
	out := new(ListRoutesResponse)
	if err := c.cc.Invoke(ctx, "/"+AdminServiceName+"/ListRoutes", in, out, c.callOpts(opts)...); err != nil {
		return nil, fmt.Errorf("admin listRoutes rpc: %w", err)
	}
	return out, nil
}

func (c *AdminClient) Status(ctx context.Context, in *StatusRequest, opts ...grpc.CallOption) (*StatusResponse, error) {
	out := new(StatusResponse)
	if err := c.cc.Invoke(ctx, "/"+AdminServiceName+"/Status", in, out, c.callOpts(opts)...); err != nil {
		return nil, fmt.Errorf("admin status rpc: %w", err)
	}
	return out, nil
}
