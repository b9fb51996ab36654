package rib

import (
	"fmt"

	"github.com/lucas/overmesh/internal/meshtypes"
)

// errUnsupportedAction guards the Plan type switch's default case. It
// should be unreachable in practice: every meshtypes.ActionKind has a case.
func errUnsupportedAction(kind meshtypes.ActionKind) error {
	return fmt.Errorf("rib: unsupported action kind %s", kind)
}
