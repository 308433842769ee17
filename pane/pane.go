package pane

import (
	"time"

	"github.com/iw2rmb/modalsync/buffer"
	"github.com/iw2rmb/modalsync/position"
	"github.com/iw2rmb/modalsync/viewport"
)

// ID is the host's opaque pane handle.
type ID string

// EngineRef identifies the engine-side window that mirrors a pane.
type EngineRef int

// Role separates the pane the user edits in from transient previews.
type Role uint8

const (
	// RoleEphemeral marks peek/preview panes and panes opened as a side
	// effect of navigation. It is the zero value.
	RoleEphemeral Role = iota
	RolePrimary
)

func (r Role) String() string {
	switch r {
	case RolePrimary:
		return "primary"
	case RoleEphemeral:
		return "ephemeral"
	default:
		return "unknown"
	}
}

// Document is the content a host pane shows when it is opened.
type Document struct {
	ID   string
	Text string
}

// Pane is the synchronization state of one host pane.
type Pane struct {
	ID         ID
	Role       Role
	DocumentID string
	EngineRef  EngineRef

	// Content is the document text the session currently knows for the pane.
	Content *buffer.Buffer

	LastHostCursor   position.Host
	HasHostCursor    bool
	LastEngineCursor position.Engine
	HasEngineCursor  bool

	// LastViewport is the host's visible range; the host is authoritative.
	LastViewport viewport.Range
	HasViewport  bool
	// EngineTop is the 1-based top line the engine last reported, 0 if none.
	EngineTop int

	Cursor   Track
	Viewport Track
}

// Busy reports whether either track waits for an acknowledgement.
func (p *Pane) Busy() bool {
	return p.Cursor.Busy() || p.Viewport.Busy()
}

func (p *Pane) SetHostCursor(pos position.Host) {
	p.LastHostCursor = pos
	p.HasHostCursor = true
}

func (p *Pane) SetEngineCursor(pos position.Engine) {
	p.LastEngineCursor = pos
	p.HasEngineCursor = true
}

func (p *Pane) SetViewport(r viewport.Range) {
	p.LastViewport = r
	p.HasViewport = true
}

func (p *Pane) retarget(docID, text string) {
	p.DocumentID = docID
	if p.Content == nil {
		p.Content = buffer.New(text)
	} else {
		p.Content.Reset(text)
	}
	p.LastHostCursor, p.HasHostCursor = position.Host{}, false
	p.LastEngineCursor, p.HasEngineCursor = position.Engine{}, false
	p.EngineTop = 0
	p.Cursor.Reset()
	p.Viewport.Reset()
}

// Snapshot is a copy of a pane's state that is safe to hand to other
// goroutines.
type Snapshot struct {
	ID            ID
	Role          Role
	DocumentID    string
	EngineRef     EngineRef
	Focused       bool
	Text          string
	HostCursor    position.Host
	HasHost       bool
	EngineCursor  position.Engine
	HasEngine     bool
	Viewport      viewport.Range
	HasViewport   bool
	CursorState   State
	ViewportState State
}

func (p *Pane) Snapshot(focused bool) Snapshot {
	s := Snapshot{
		ID:            p.ID,
		Role:          p.Role,
		DocumentID:    p.DocumentID,
		EngineRef:     p.EngineRef,
		Focused:       focused,
		HostCursor:    p.LastHostCursor,
		HasHost:       p.HasHostCursor,
		EngineCursor:  p.LastEngineCursor,
		HasEngine:     p.HasEngineCursor,
		Viewport:      p.LastViewport,
		HasViewport:   p.HasViewport,
		CursorState:   p.Cursor.State,
		ViewportState: p.Viewport.State,
	}
	if p.Content != nil {
		s.Text = p.Content.Text()
	}
	return s
}

// State is the acknowledgement state of one synchronization track.
type State uint8

const (
	StateIdle State = iota
	StateAwaitingHostAck
	StateAwaitingEngineAck
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingHostAck:
		return "awaiting-host-ack"
	case StateAwaitingEngineAck:
		return "awaiting-engine-ack"
	default:
		return "unknown"
	}
}

// Track is one of a pane's two state machines (cursor or viewport). At most
// one operation per track is in flight; Gen identifies it.
type Track struct {
	State    State
	Gen      uint64
	Deadline time.Time
}

func (t *Track) Busy() bool { return t.State != StateIdle }

// Await suspends the track until Resolve(gen) or the deadline.
func (t *Track) Await(state State, gen uint64, deadline time.Time) {
	t.State = state
	t.Gen = gen
	t.Deadline = deadline
}

// Resolve returns the track to idle if gen is the operation it waits for.
// Results of superseded or abandoned operations report false.
func (t *Track) Resolve(gen uint64) bool {
	if t.State == StateIdle || t.Gen != gen {
		return false
	}
	t.Reset()
	return true
}

// Expired reports whether an awaiting track passed its deadline at now.
func (t *Track) Expired(now time.Time) bool {
	return t.State != StateIdle && !t.Deadline.IsZero() && !now.Before(t.Deadline)
}

func (t *Track) Reset() {
	*t = Track{}
}
