package sim

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/iw2rmb/modalsync/buffer"
	"github.com/iw2rmb/modalsync/pane"
	"github.com/iw2rmb/modalsync/position"
	"github.com/iw2rmb/modalsync/reconcile"
)

type window struct {
	doc     string
	content *buffer.Buffer
	cursor  position.Engine
	top     int
	version uint64
}

// Engine simulates a headless modal engine: one window per attached pane,
// a 1-based cursor per window and a scrolled view of Height lines kept
// ScrollOff lines away from the cursor.
type Engine struct {
	Latency time.Duration

	mu        sync.Mutex
	sink      EngineSink
	height    int
	scrollOff int
	windows   map[pane.EngineRef]*window
	calls     []Call
	faults    faults
}

func NewEngine(height, scrollOff int) *Engine {
	if height < 1 {
		height = 1
	}
	if scrollOff < 0 {
		scrollOff = 0
	}
	return &Engine{height: height, scrollOff: scrollOff, windows: make(map[pane.EngineRef]*window)}
}

func (e *Engine) Bind(sink EngineSink) {
	e.mu.Lock()
	e.sink = sink
	e.mu.Unlock()
}

func (e *Engine) report(fn func(EngineSink)) {
	e.mu.Lock()
	sink := e.sink
	e.mu.Unlock()
	if sink != nil {
		fn(sink)
	}
}

func (e *Engine) begin(ctx context.Context, c Call) error {
	e.mu.Lock()
	hang, ferr := e.faults.take(c.Op)
	latency := e.Latency
	e.mu.Unlock()

	err := ferr
	if hang {
		<-ctx.Done()
		err = ctx.Err()
	} else if perr := pause(ctx, latency); perr != nil {
		err = perr
	}

	c.Err = err
	e.mu.Lock()
	e.calls = append(e.calls, c)
	e.mu.Unlock()
	return err
}

func (e *Engine) Attach(ctx context.Context, ref pane.EngineRef, docID, text string) error {
	if err := e.begin(ctx, Call{Op: OpAttach, Ref: ref}); err != nil {
		return err
	}
	e.mu.Lock()
	e.windows[ref] = &window{
		doc:     docID,
		content: buffer.New(text),
		cursor:  position.Engine{Line: 1, Col: 1},
		top:     1,
	}
	e.mu.Unlock()
	return nil
}

func (e *Engine) Detach(ctx context.Context, ref pane.EngineRef) error {
	if err := e.begin(ctx, Call{Op: OpDetach, Ref: ref}); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.windows[ref]; !ok {
		return fmt.Errorf("detach %d: %w", ref, ErrNoPane)
	}
	delete(e.windows, ref)
	return nil
}

// SetCursor places the cursor like a "call cursor(line, col)" command. Lines
// outside the buffer are rejected with a *reconcile.EngineError; columns are
// clamped. The move is reported back.
func (e *Engine) SetCursor(ctx context.Context, ref pane.EngineRef, pos position.Engine) error {
	if err := e.begin(ctx, Call{Op: OpSetCursor, Ref: ref, EnginePos: pos}); err != nil {
		return err
	}

	e.mu.Lock()
	w, ok := e.windows[ref]
	if !ok {
		e.mu.Unlock()
		return &reconcile.EngineError{Ref: ref, Reason: "E957: Invalid window number"}
	}
	if pos.Line < 1 || pos.Line > w.content.LineCount() {
		e.mu.Unlock()
		return &reconcile.EngineError{Ref: ref, Reason: fmt.Sprintf("E16: Invalid range: line %d", pos.Line)}
	}
	e.mu.Unlock()

	e.moveTo(ref, pos)
	return nil
}

// SetViewport scrolls a window so topLine is the first visible line.
func (e *Engine) SetViewport(ctx context.Context, ref pane.EngineRef, topLine, height int) error {
	if err := e.begin(ctx, Call{Op: OpSetViewport, Ref: ref, TopLine: topLine}); err != nil {
		return err
	}
	e.mu.Lock()
	w, ok := e.windows[ref]
	if ok {
		w.top = max(1, topLine)
		topLine = w.top
	}
	e.mu.Unlock()
	if !ok {
		return &reconcile.EngineError{Ref: ref, Reason: "E957: Invalid window number"}
	}
	e.report(func(s EngineSink) { s.OnEngineScroll(ref, topLine) })
	return nil
}

// Move is a relative vertical motion, n > 0 down ("130j"), n < 0 up ("40k").
func (e *Engine) Move(ref pane.EngineRef, n int) {
	e.mu.Lock()
	w, ok := e.windows[ref]
	var pos position.Engine
	if ok {
		pos = position.Engine{Line: w.cursor.Line + n, Col: w.cursor.Col}
	}
	e.mu.Unlock()
	if ok {
		e.moveTo(ref, pos)
	}
}

// Jump moves the cursor to pos, e.g. after go-to-definition.
func (e *Engine) Jump(ref pane.EngineRef, pos position.Engine) {
	e.moveTo(ref, pos)
}

// moveTo clamps pos into the window, scrolls the view and reports both.
func (e *Engine) moveTo(ref pane.EngineRef, pos position.Engine) {
	e.mu.Lock()
	w, ok := e.windows[ref]
	if !ok {
		e.mu.Unlock()
		return
	}
	pos = position.ReclampEngine(pos, w.content)
	pos.Col = min(max(pos.Col, 1), w.content.LineLen(pos.Line-1)+1)
	w.cursor = pos

	top := e.scrollFor(w)
	scrolled := top != w.top
	w.top = top
	e.mu.Unlock()

	e.report(func(s EngineSink) {
		s.OnEngineCursorMoved(ref, pos)
		if scrolled {
			s.OnEngineScroll(ref, top)
		}
	})
}

func (e *Engine) scrollFor(w *window) int {
	so := min(e.scrollOff, (e.height-1)/2)
	top := w.top
	line := w.cursor.Line
	if line < top+so {
		top = line - so
	}
	if bottom := top + e.height - 1; line > bottom-so {
		top = line + so - e.height + 1
	}
	if last := w.content.LineCount() - e.height + 1; top > last {
		top = last
	}
	return max(top, 1)
}

// Edit applies edits to a window's buffer and reports them with the new
// buffer version.
func (e *Engine) Edit(ref pane.EngineRef, edits ...buffer.TextEdit) {
	e.mu.Lock()
	w, ok := e.windows[ref]
	var version uint64
	if ok {
		w.content.Apply(edits...)
		w.version++
		version = w.version
		w.cursor = position.ReclampEngine(w.cursor, w.content)
	}
	e.mu.Unlock()
	if ok {
		e.report(func(s EngineSink) { s.OnEngineBufferChanged(ref, version, edits) })
	}
}

// Fail reports a failed command, e.g. a mapping that errored.
func (e *Engine) Fail(ref pane.EngineRef, reason string) {
	e.report(func(s EngineSink) { s.OnEngineCommandError(ref, reason) })
}

// FailNext makes the next call of op return err.
func (e *Engine) FailNext(op string, err error) {
	e.mu.Lock()
	e.faults.failNext(op, err)
	e.mu.Unlock()
}

func (e *Engine) Hang(op string) {
	e.mu.Lock()
	e.faults.hangNext(op)
	e.mu.Unlock()
}

func (e *Engine) Cursor(ref pane.EngineRef) (position.Engine, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	w, ok := e.windows[ref]
	if !ok {
		return position.Engine{}, false
	}
	return w.cursor, true
}

// Top returns the first visible line of a window.
func (e *Engine) Top(ref pane.EngineRef) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if w, ok := e.windows[ref]; ok {
		return w.top
	}
	return 0
}

func (e *Engine) Text(ref pane.EngineRef) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if w, ok := e.windows[ref]; ok {
		return w.content.Text()
	}
	return ""
}

// Document returns the document a window was attached with.
func (e *Engine) Document(ref pane.EngineRef) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if w, ok := e.windows[ref]; ok {
		return w.doc
	}
	return ""
}

// Windows returns attached refs in ascending order.
func (e *Engine) Windows() []pane.EngineRef {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]pane.EngineRef, 0, len(e.windows))
	for ref := range e.windows {
		out = append(out, ref)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (e *Engine) Calls(op string) []Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []Call
	for _, c := range e.calls {
		if op == "" || c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (e *Engine) ResetCalls() {
	e.mu.Lock()
	e.calls = nil
	e.mu.Unlock()
}
