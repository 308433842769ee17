package sequencer

import (
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/iw2rmb/modalsync/buffer"
	"github.com/iw2rmb/modalsync/pane"
	"github.com/iw2rmb/modalsync/position"
	"github.com/iw2rmb/modalsync/viewport"
)

// Source is the side of the bridge an event was observed on.
type Source uint8

const (
	SourceHost Source = iota
	SourceEngine
)

func (s Source) String() string {
	if s == SourceEngine {
		return "engine"
	}
	return "host"
}

// Kind is the event type. Host and engine variants of the same concern are
// distinct kinds.
type Kind uint8

const (
	KindHostOpened Kind = iota + 1
	KindHostClosed
	KindHostActive
	KindHostCursor
	KindHostScroll
	KindEngineCursor
	KindEngineScroll
	KindEngineBuffer
	KindEngineError
)

var kindNames = map[Kind]string{
	KindHostOpened:   "host-opened",
	KindHostClosed:   "host-closed",
	KindHostActive:   "host-active",
	KindHostCursor:   "host-cursor",
	KindHostScroll:   "host-scroll",
	KindEngineCursor: "engine-cursor",
	KindEngineScroll: "engine-scroll",
	KindEngineBuffer: "engine-buffer",
	KindEngineError:  "engine-error",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

func (k Kind) Source() Source {
	if k >= KindEngineCursor {
		return SourceEngine
	}
	return SourceHost
}

// Coalescable kinds carry state, not history: only the latest value matters.
func (k Kind) Coalescable() bool {
	switch k {
	case KindHostCursor, KindHostScroll, KindEngineCursor, KindEngineScroll:
		return true
	default:
		return false
	}
}

// Urgent kinds are dispatched even while their pane waits for an
// acknowledgement.
func (k Kind) Urgent() bool {
	return k == KindHostClosed || k == KindEngineError
}

// Event is one observation from either side. Events are immutable once
// pushed; the sequencer fills ID, Seq, At and, for engine events, Pane.
type Event struct {
	ID   ulid.ULID
	Seq  uint64
	At   time.Time
	Kind Kind

	Pane pane.ID
	Ref  pane.EngineRef

	HostPos   position.Host
	EnginePos position.Engine
	Range     viewport.Range
	TopLine   int

	Document pane.Document
	Role     pane.Role

	Version uint64
	Edits   []buffer.TextEdit
	Reason  string

	// Set on engine cursor events that won over queued host cursor events:
	// the host last showed OverriddenHost.
	OverriddenHost position.Host
	HostOverridden bool
}

func (e Event) Source() Source { return e.Kind.Source() }

// sameValue compares the payload a kind carries.
func sameValue(k Kind, a, b Event) bool {
	switch k {
	case KindHostCursor:
		return a.HostPos == b.HostPos
	case KindEngineCursor:
		return a.EnginePos == b.EnginePos
	case KindHostScroll:
		return a.Range == b.Range
	case KindEngineScroll:
		return a.TopLine == b.TopLine
	default:
		return false
	}
}
