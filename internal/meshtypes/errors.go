package meshtypes

import "errors"

// Sentinel errors returned by RIB.Plan. They are wrapped with fmt.Errorf
// by callers that need to name the offending peer or route, but callers
// that only need to branch on the failure kind can use errors.Is against
// these directly.
var (
	ErrPeerExists       = errors.New("peer already exists")
	ErrPeerNotFound     = errors.New("peer not found")
	ErrRouteExists      = errors.New("route already exists")
	ErrRouteNotFound    = errors.New("route not found")
	ErrPeerUnconfigured = errors.New("peer not configured locally")
)
