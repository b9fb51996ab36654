package meshtypes

import "time"

// ActionKind tags the concrete type of an Action for dispatch.
type ActionKind string

const (
	KindLocalPeerCreate          ActionKind = "LocalPeerCreate"
	KindLocalPeerUpdate          ActionKind = "LocalPeerUpdate"
	KindLocalPeerDelete          ActionKind = "LocalPeerDelete"
	KindLocalRouteCreate         ActionKind = "LocalRouteCreate"
	KindLocalRouteDelete         ActionKind = "LocalRouteDelete"
	KindInternalProtocolOpen     ActionKind = "InternalProtocolOpen"
	KindInternalProtocolConn     ActionKind = "InternalProtocolConnected"
	KindInternalProtocolClose    ActionKind = "InternalProtocolClose"
	KindInternalProtocolUpdate   ActionKind = "InternalProtocolUpdate"
	KindInternalProtocolKeepal   ActionKind = "InternalProtocolKeepalive"
	KindInternalProtocolTick     ActionKind = "InternalProtocolTick"
)

// Action is the only way to mutate RIB state: a tagged command fed to the
// pipeline. Concrete action types implement Kind() so RIB.Plan can dispatch
// on the tag rather than on ad-hoc type assertions scattered through the
// codebase.
type Action interface {
	Kind() ActionKind
}

type LocalPeerCreate struct{ Peer PeerInfo }

func (LocalPeerCreate) Kind() ActionKind { return KindLocalPeerCreate }

type LocalPeerUpdate struct{ Peer PeerInfo }

func (LocalPeerUpdate) Kind() ActionKind { return KindLocalPeerUpdate }

type LocalPeerDelete struct{ Name string }

func (LocalPeerDelete) Kind() ActionKind { return KindLocalPeerDelete }

type LocalRouteCreate struct{ Route DataChannelDefinition }

func (LocalRouteCreate) Kind() ActionKind { return KindLocalRouteCreate }

type LocalRouteDelete struct{ Route DataChannelDefinition }

func (LocalRouteDelete) Kind() ActionKind { return KindLocalRouteDelete }

// Protocol actions all thread Now explicitly, alongside InternalProtocolTick,
// so Plan never reads the wall clock itself. Open, Connected, Update and
// Keepalive advance the originating peer's lastMessageReceived to Now;
// Close does not.

type InternalProtocolOpen struct {
	Peer PeerInfo
	Now  time.Time
}

func (InternalProtocolOpen) Kind() ActionKind { return KindInternalProtocolOpen }

type InternalProtocolConnected struct {
	Peer PeerInfo
	Now  time.Time
}

func (InternalProtocolConnected) Kind() ActionKind { return KindInternalProtocolConn }

type InternalProtocolClose struct {
	Peer   PeerInfo
	Code   int
	Reason string
	Now    time.Time
}

func (InternalProtocolClose) Kind() ActionKind { return KindInternalProtocolClose }

type InternalProtocolUpdate struct {
	Peer   PeerInfo
	Update UpdateMessage
	Now    time.Time
}

func (InternalProtocolUpdate) Kind() ActionKind { return KindInternalProtocolUpdate }

type InternalProtocolKeepalive struct {
	Peer PeerInfo
	Now  time.Time
}

func (InternalProtocolKeepalive) Kind() ActionKind { return KindInternalProtocolKeepal }

// InternalProtocolTick drives hold-timer expiry, keep-alive emission, and
// reconnect scheduling. Now is threaded through explicitly so Plan stays
// referentially transparent — it never reads the wall clock itself.
type InternalProtocolTick struct{ Now time.Time }

func (InternalProtocolTick) Kind() ActionKind { return KindInternalProtocolTick }

// UpdateAction tags a single entry of an UpdateMessage.
type UpdateAction string

const (
	UpdateAdd    UpdateAction = "add"
	UpdateRemove UpdateAction = "remove"
)

// UpdateEntry is one route add/remove inside an UpdateMessage. NodePath is
// only meaningful for "add" entries.
type UpdateEntry struct {
	Action   UpdateAction
	Route    DataChannelDefinition
	NodePath []string
}

// UpdateMessage is the wire shape exchanged between peers' IBGP clients.
type UpdateMessage struct {
	Updates []UpdateEntry
}
