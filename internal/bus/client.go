package bus

import (
	"context"
	"time"

	"github.com/lucas/overmesh/internal/meshtypes"
)

// Action tags presented to the auth validator, one per scoped-client method.
const (
	tagAddPeer     = "network:addPeer"
	tagUpdatePeer  = "network:updatePeer"
	tagRemovePeer  = "network:removePeer"
	tagListPeers   = "network:listPeers"
	tagAddRoute    = "datachannel:addRoute"
	tagRemoveRoute = "datachannel:removeRoute"
	tagListRoutes  = "datachannel:listRoutes"
	tagIBGPOpen    = "ibgp:open"
	tagIBGPClose   = "ibgp:close"
	tagIBGPUpdate  = "ibgp:update"
	tagIBGPKeepal  = "ibgp:keepalive"
)

// NetworkClient is the peer-CRUD scoped surface.
type NetworkClient struct{ bus *Bus }

func (b *Bus) NetworkClient() *NetworkClient { return &NetworkClient{bus: b} }

func (c *NetworkClient) AddPeer(ctx context.Context, token string, peer meshtypes.PeerInfo) error {
	if err := c.bus.authorize(ctx, token, tagAddPeer); err != nil {
		return err
	}
	_, err := c.bus.dispatch(ctx, meshtypes.LocalPeerCreate{Peer: peer})
	return err
}

func (c *NetworkClient) UpdatePeer(ctx context.Context, token string, peer meshtypes.PeerInfo) error {
	if err := c.bus.authorize(ctx, token, tagUpdatePeer); err != nil {
		return err
	}
	_, err := c.bus.dispatch(ctx, meshtypes.LocalPeerUpdate{Peer: peer})
	return err
}

func (c *NetworkClient) RemovePeer(ctx context.Context, token, name string) error {
	if err := c.bus.authorize(ctx, token, tagRemovePeer); err != nil {
		return err
	}
	_, err := c.bus.dispatch(ctx, meshtypes.LocalPeerDelete{Name: name})
	return err
}

// ListPeers is a read-only snapshot; it does not go through the queue.
func (c *NetworkClient) ListPeers(ctx context.Context, token string) ([]meshtypes.PeerRecord, error) {
	if err := c.bus.authorize(ctx, token, tagListPeers); err != nil {
		return nil, err
	}
	state := c.bus.GetState()
	out := make([]meshtypes.PeerRecord, 0, len(state.Internal.Peers))
	for _, rec := range state.Internal.Peers {
		out = append(out, rec)
	}
	return out, nil
}

// DataChannel is the route-CRUD scoped surface.
type DataChannel struct{ bus *Bus }

func (b *Bus) DataChannel() *DataChannel { return &DataChannel{bus: b} }

func (c *DataChannel) AddRoute(ctx context.Context, token string, route meshtypes.DataChannelDefinition) error {
	if err := c.bus.authorize(ctx, token, tagAddRoute); err != nil {
		return err
	}
	_, err := c.bus.dispatch(ctx, meshtypes.LocalRouteCreate{Route: route})
	return err
}

func (c *DataChannel) RemoveRoute(ctx context.Context, token string, route meshtypes.DataChannelDefinition) error {
	if err := c.bus.authorize(ctx, token, tagRemoveRoute); err != nil {
		return err
	}
	_, err := c.bus.dispatch(ctx, meshtypes.LocalRouteDelete{Route: route})
	return err
}

func (c *DataChannel) ListRoutes(ctx context.Context, token string) (meshtypes.RouteTable, error) {
	if err := c.bus.authorize(ctx, token, tagListRoutes); err != nil {
		return meshtypes.RouteTable{}, err
	}
	return c.bus.GetState(), nil
}

// IBGPClient is the peer-facing protocol surface, typically invoked by
// another node's peer transport rather than an operator. Named distinctly
// from rpc.IBGPClient (the outbound stub this same method set is delivered
// over the wire through).
type IBGPClient struct{ bus *Bus }

func (b *Bus) IBGPClient() *IBGPClient { return &IBGPClient{bus: b} }

func (c *IBGPClient) Open(ctx context.Context, token string, peer meshtypes.PeerInfo) error {
	if err := c.bus.authorize(ctx, token, tagIBGPOpen); err != nil {
		return err
	}
	_, err := c.bus.dispatch(ctx, meshtypes.InternalProtocolOpen{Peer: peer, Now: time.Now()})
	return err
}

func (c *IBGPClient) Close(ctx context.Context, token string, peer meshtypes.PeerInfo, code int, reason string) error {
	if err := c.bus.authorize(ctx, token, tagIBGPClose); err != nil {
		return err
	}
	_, err := c.bus.dispatch(ctx, meshtypes.InternalProtocolClose{Peer: peer, Code: code, Reason: reason, Now: time.Now()})
	return err
}

func (c *IBGPClient) Update(ctx context.Context, token string, peer meshtypes.PeerInfo, msg meshtypes.UpdateMessage) error {
	if err := c.bus.authorize(ctx, token, tagIBGPUpdate); err != nil {
		return err
	}
	_, err := c.bus.dispatch(ctx, meshtypes.InternalProtocolUpdate{Peer: peer, Update: msg, Now: time.Now()})
	return err
}

func (c *IBGPClient) Keepalive(ctx context.Context, token string, peer meshtypes.PeerInfo) error {
	if err := c.bus.authorize(ctx, token, tagIBGPKeepal); err != nil {
		return err
	}
	_, err := c.bus.dispatch(ctx, meshtypes.InternalProtocolKeepalive{Peer: peer, Now: time.Now()})
	return err
}
