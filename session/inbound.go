package session

import (
	"github.com/iw2rmb/modalsync/buffer"
	"github.com/iw2rmb/modalsync/pane"
	"github.com/iw2rmb/modalsync/position"
	"github.com/iw2rmb/modalsync/sequencer"
	"github.com/iw2rmb/modalsync/viewport"
)

func (s *Session) push(ev sequencer.Event) {
	if v := s.seq.Push(ev); v != sequencer.Queued {
		s.log.Debug("inbound", "kind", ev.Kind, "pane", ev.Pane, "ref", ev.Ref, "verdict", v)
	}
}

// OnActiveEditorChanged reports that the user switched to pane id.
func (s *Session) OnActiveEditorChanged(id pane.ID) {
	s.push(sequencer.Event{Kind: sequencer.KindHostActive, Pane: id})
}

func (s *Session) OnCursorMoved(id pane.ID, pos position.Host) {
	s.push(sequencer.Event{Kind: sequencer.KindHostCursor, Pane: id, HostPos: pos})
}

func (s *Session) OnVisibleRangeChanged(id pane.ID, r viewport.Range) {
	s.push(sequencer.Event{Kind: sequencer.KindHostScroll, Pane: id, Range: r})
}

// OnDocumentOpened attaches a pane. Panes opened as a side effect of
// navigation (peek, preview) should pass pane.RoleEphemeral.
func (s *Session) OnDocumentOpened(id pane.ID, doc Document, role pane.Role) {
	s.push(sequencer.Event{Kind: sequencer.KindHostOpened, Pane: id, Document: doc, Role: role})
}

func (s *Session) OnDocumentClosed(id pane.ID) {
	s.push(sequencer.Event{Kind: sequencer.KindHostClosed, Pane: id})
}

func (s *Session) OnEngineCursorMoved(ref pane.EngineRef, pos position.Engine) {
	s.push(sequencer.Event{Kind: sequencer.KindEngineCursor, Ref: ref, EnginePos: pos})
}

// OnEngineScroll reports the engine window's 1-based top line.
func (s *Session) OnEngineScroll(ref pane.EngineRef, topLine int) {
	s.push(sequencer.Event{Kind: sequencer.KindEngineScroll, Ref: ref, TopLine: topLine})
}

// OnEngineBufferChanged reports edits made in the engine together with the
// buffer version they produced.
func (s *Session) OnEngineBufferChanged(ref pane.EngineRef, version uint64, edits []buffer.TextEdit) {
	s.push(sequencer.Event{Kind: sequencer.KindEngineBuffer, Ref: ref, Version: version, Edits: edits})
}

func (s *Session) OnEngineCommandError(ref pane.EngineRef, reason string) {
	s.push(sequencer.Event{Kind: sequencer.KindEngineError, Ref: ref, Reason: reason})
}
