package meshtypes

// PropagationKind tags the kind of message a Propagation carries.
type PropagationKind string

const (
	PropagationOpen      PropagationKind = "open"
	PropagationClose     PropagationKind = "close"
	PropagationUpdate    PropagationKind = "update"
	PropagationKeepalive PropagationKind = "keepalive"
)

// ClosePayload carries the reason for a close propagation.
type ClosePayload struct {
	Code   int
	Reason string
}

// Propagation is a message derived by Plan, to be delivered post-commit to
// one specific peer. The RIB never performs I/O itself — Propagation values
// are handed to the fan-out layer.
type Propagation struct {
	Kind   PropagationKind
	Target PeerInfo

	// Valid when Kind == PropagationOpen: the identity to open with.
	Open PeerInfo

	// Valid when Kind == PropagationClose.
	Close ClosePayload

	// Valid when Kind == PropagationUpdate.
	Update UpdateMessage
}
