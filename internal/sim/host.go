package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/iw2rmb/modalsync/buffer"
	"github.com/iw2rmb/modalsync/pane"
	"github.com/iw2rmb/modalsync/position"
	"github.com/iw2rmb/modalsync/viewport"
)

type hostPane struct {
	doc     string
	role    pane.Role
	content *buffer.Buffer
	cursor  position.Host
	visible viewport.Range
}

// Host simulates a host editor with a fixed pane height.
type Host struct {
	// Latency delays every outbound call.
	Latency time.Duration

	mu     sync.Mutex
	sink   HostSink
	height int
	panes  map[pane.ID]*hostPane
	order  []pane.ID
	active pane.ID
	calls  []Call
	faults faults
}

func NewHost(height int) *Host {
	if height < 1 {
		height = 1
	}
	return &Host{height: height, panes: make(map[pane.ID]*hostPane)}
}

// Bind sets where user actions and echoes are reported.
func (h *Host) Bind(sink HostSink) {
	h.mu.Lock()
	h.sink = sink
	h.mu.Unlock()
}

func (h *Host) report(fn func(HostSink)) {
	h.mu.Lock()
	sink := h.sink
	h.mu.Unlock()
	if sink != nil {
		fn(sink)
	}
}

// begin records a call and applies latency and injected faults. It returns a
// non-nil error when the call must fail.
func (h *Host) begin(ctx context.Context, c Call) error {
	h.mu.Lock()
	hang, ferr := h.faults.take(c.Op)
	latency := h.Latency
	h.mu.Unlock()

	err := ferr
	if hang {
		<-ctx.Done()
		err = ctx.Err()
	} else if perr := pause(ctx, latency); perr != nil {
		err = perr
	}

	c.Err = err
	h.mu.Lock()
	h.calls = append(h.calls, c)
	h.mu.Unlock()
	return err
}

// SetCursor moves a pane's cursor and reports the move like a user move.
func (h *Host) SetCursor(ctx context.Context, id pane.ID, pos position.Host) error {
	if err := h.begin(ctx, Call{Op: OpSetCursor, Pane: id, HostPos: pos}); err != nil {
		return err
	}
	h.mu.Lock()
	p, ok := h.panes[id]
	if ok {
		p.cursor = clampHost(pos, p.content)
		pos = p.cursor
	}
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("set cursor %s: %w", id, ErrNoPane)
	}
	h.report(func(s HostSink) { s.OnCursorMoved(id, pos) })
	return nil
}

// RevealRange scrolls a pane and reports the new visible range.
func (h *Host) RevealRange(ctx context.Context, id pane.ID, r viewport.Range) error {
	if err := h.begin(ctx, Call{Op: OpReveal, Pane: id, Range: r}); err != nil {
		return err
	}
	h.mu.Lock()
	p, ok := h.panes[id]
	if ok {
		p.visible = r
	}
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("reveal %s: %w", id, ErrNoPane)
	}
	h.report(func(s HostSink) { s.OnVisibleRangeChanged(id, r) })
	return nil
}

func (h *Host) ApplyEdits(ctx context.Context, id pane.ID, edits []buffer.TextEdit) error {
	if err := h.begin(ctx, Call{Op: OpApplyEdits, Pane: id, Edits: edits}); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.panes[id]
	if !ok {
		return fmt.Errorf("apply edits %s: %w", id, ErrNoPane)
	}
	p.content.Apply(edits...)
	return nil
}

// Open shows doc in pane id. Panes start at the top of the document.
func (h *Host) Open(id pane.ID, doc pane.Document, role pane.Role) {
	h.mu.Lock()
	if _, ok := h.panes[id]; !ok {
		h.order = append(h.order, id)
	}
	p := &hostPane{
		doc:     doc.ID,
		role:    role,
		content: buffer.New(doc.Text),
		visible: viewport.Range{Start: 0, End: h.height - 1},
	}
	h.panes[id] = p
	visible := p.visible
	h.mu.Unlock()

	h.report(func(s HostSink) {
		s.OnDocumentOpened(id, doc, role)
		s.OnVisibleRangeChanged(id, visible)
	})
}

func (h *Host) Close(id pane.ID) {
	h.mu.Lock()
	_, ok := h.panes[id]
	delete(h.panes, id)
	for i, v := range h.order {
		if v == id {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
	if h.active == id {
		h.active = ""
	}
	h.mu.Unlock()
	if ok {
		h.report(func(s HostSink) { s.OnDocumentClosed(id) })
	}
}

// Activate makes id the active editor.
func (h *Host) Activate(id pane.ID) {
	h.mu.Lock()
	h.active = id
	h.mu.Unlock()
	h.report(func(s HostSink) { s.OnActiveEditorChanged(id) })
}

// MoveCursor is a user cursor move (click or arrow keys).
func (h *Host) MoveCursor(id pane.ID, pos position.Host) {
	h.mu.Lock()
	p, ok := h.panes[id]
	if ok {
		p.cursor = clampHost(pos, p.content)
		pos = p.cursor
	}
	h.mu.Unlock()
	if ok {
		h.report(func(s HostSink) { s.OnCursorMoved(id, pos) })
	}
}

// Scroll is a user scroll to the given first visible line.
func (h *Host) Scroll(id pane.ID, start int) {
	h.mu.Lock()
	p, ok := h.panes[id]
	var r viewport.Range
	if ok {
		if start < 0 {
			start = 0
		}
		r = viewport.Range{Start: start, End: start + h.height - 1}
		p.visible = r
	}
	h.mu.Unlock()
	if ok {
		h.report(func(s HostSink) { s.OnVisibleRangeChanged(id, r) })
	}
}

// FailNext makes the next call of op return err.
func (h *Host) FailNext(op string, err error) {
	h.mu.Lock()
	h.faults.failNext(op, err)
	h.mu.Unlock()
}

// Hang makes the next call of op block until its context is done.
func (h *Host) Hang(op string) {
	h.mu.Lock()
	h.faults.hangNext(op)
	h.mu.Unlock()
}

func (h *Host) Cursor(id pane.ID) (position.Host, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.panes[id]
	if !ok {
		return position.Host{}, false
	}
	return p.cursor, true
}

func (h *Host) Visible(id pane.ID) (viewport.Range, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.panes[id]
	if !ok {
		return viewport.Range{}, false
	}
	return p.visible, true
}

func (h *Host) Text(id pane.ID) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if p, ok := h.panes[id]; ok {
		return p.content.Text()
	}
	return ""
}

func (h *Host) Active() pane.ID {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.active
}

// Panes returns open pane ids in opening order.
func (h *Host) Panes() []pane.ID {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]pane.ID(nil), h.order...)
}

func (h *Host) Height() int { return h.height }

// Calls returns the recorded outbound calls, optionally only those of op.
func (h *Host) Calls(op string) []Call {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []Call
	for _, c := range h.calls {
		if op == "" || c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (h *Host) ResetCalls() {
	h.mu.Lock()
	h.calls = nil
	h.mu.Unlock()
}

func clampHost(pos position.Host, doc *buffer.Buffer) position.Host {
	pos = position.ReclampHost(pos, doc)
	if pos.Col < 0 {
		pos.Col = 0
	}
	if n := doc.LineLen(pos.Line); pos.Col > n {
		pos.Col = n
	}
	return pos
}
