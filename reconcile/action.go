package reconcile

import (
	"fmt"

	"github.com/iw2rmb/modalsync/buffer"
	"github.com/iw2rmb/modalsync/pane"
	"github.com/iw2rmb/modalsync/position"
	"github.com/iw2rmb/modalsync/viewport"
)

// ActionKind is an outbound update the session has to perform.
type ActionKind uint8

const (
	ActEngineAttach ActionKind = iota + 1
	ActEngineDetach
	ActEngineSetCursor
	ActEngineSetViewport
	ActHostSetCursor
	ActHostReveal
	ActHostApplyEdits
)

var actionNames = map[ActionKind]string{
	ActEngineAttach:      "engine-attach",
	ActEngineDetach:      "engine-detach",
	ActEngineSetCursor:   "engine-set-cursor",
	ActEngineSetViewport: "engine-set-viewport",
	ActHostSetCursor:     "host-set-cursor",
	ActHostReveal:        "host-reveal",
	ActHostApplyEdits:    "host-apply-edits",
}

func (k ActionKind) String() string {
	if s, ok := actionNames[k]; ok {
		return s
	}
	return "unknown"
}

// Engine reports whether the action targets the engine.
func (k ActionKind) Engine() bool { return k <= ActEngineSetViewport }

// Action is one outbound update. Gen is non-zero for actions that suspend a
// track until they are acknowledged.
type Action struct {
	Kind ActionKind
	Pane pane.ID
	Ref  pane.EngineRef
	Gen  uint64

	HostPos   position.Host
	EnginePos position.Engine
	Range     viewport.Range
	TopLine   int
	Height    int

	DocumentID string
	Text       string
	Edits      []buffer.TextEdit
}

// Awaited reports whether the action holds a track.
func (a Action) Awaited() bool { return a.Gen != 0 }

func (a Action) String() string {
	switch a.Kind {
	case ActEngineSetCursor:
		return fmt.Sprintf("%s %d %s", a.Kind, a.Ref, a.EnginePos)
	case ActHostSetCursor:
		return fmt.Sprintf("%s %s %s", a.Kind, a.Pane, a.HostPos)
	case ActHostReveal:
		return fmt.Sprintf("%s %s %s", a.Kind, a.Pane, a.Range)
	case ActEngineSetViewport:
		return fmt.Sprintf("%s %d top=%d height=%d", a.Kind, a.Ref, a.TopLine, a.Height)
	case ActEngineAttach:
		return fmt.Sprintf("%s %d %s", a.Kind, a.Ref, a.DocumentID)
	case ActHostApplyEdits:
		return fmt.Sprintf("%s %s edits=%d", a.Kind, a.Pane, len(a.Edits))
	default:
		return fmt.Sprintf("%s %s/%d", a.Kind, a.Pane, a.Ref)
	}
}
