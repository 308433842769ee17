// Package sim provides in-process stand-ins for a host editor and a headless
// modal engine. Both record the calls they receive and report state changes
// back through a sink the way the real processes do, including the echo of
// changes made on request.
package sim

import (
	"context"
	"errors"
	"time"

	"github.com/iw2rmb/modalsync/buffer"
	"github.com/iw2rmb/modalsync/pane"
	"github.com/iw2rmb/modalsync/position"
	"github.com/iw2rmb/modalsync/viewport"
)

// ErrNoPane is returned for calls that name a pane or window that is not
// open.
var ErrNoPane = errors.New("sim: no such pane")

// HostSink receives what a host editor reports.
type HostSink interface {
	OnActiveEditorChanged(id pane.ID)
	OnCursorMoved(id pane.ID, pos position.Host)
	OnVisibleRangeChanged(id pane.ID, r viewport.Range)
	OnDocumentOpened(id pane.ID, doc pane.Document, role pane.Role)
	OnDocumentClosed(id pane.ID)
}

// EngineSink receives what an engine reports.
type EngineSink interface {
	OnEngineCursorMoved(ref pane.EngineRef, pos position.Engine)
	OnEngineScroll(ref pane.EngineRef, topLine int)
	OnEngineBufferChanged(ref pane.EngineRef, version uint64, edits []buffer.TextEdit)
	OnEngineCommandError(ref pane.EngineRef, reason string)
}

// Call is one recorded outbound call.
type Call struct {
	Op        string
	Pane      pane.ID
	Ref       pane.EngineRef
	HostPos   position.Host
	EnginePos position.Engine
	Range     viewport.Range
	TopLine   int
	Edits     []buffer.TextEdit
	Err       error
}

// Operation names used in Call.Op and for FailNext/Hang.
const (
	OpSetCursor   = "set-cursor"
	OpReveal      = "reveal"
	OpApplyEdits  = "apply-edits"
	OpAttach      = "attach"
	OpDetach      = "detach"
	OpSetViewport = "set-viewport"
)

// faults injects failures and hangs into outbound calls. Callers hold the
// owner's lock.
type faults struct {
	fail map[string]error
	hang map[string]int
}

func (f *faults) failNext(op string, err error) {
	if f.fail == nil {
		f.fail = make(map[string]error)
	}
	f.fail[op] = err
}

func (f *faults) hangNext(op string) {
	if f.hang == nil {
		f.hang = make(map[string]int)
	}
	f.hang[op]++
}

// take reports the injected fault for op, consuming it.
func (f *faults) take(op string) (hang bool, err error) {
	if n := f.hang[op]; n > 0 {
		f.hang[op] = n - 1
		return true, nil
	}
	if err, ok := f.fail[op]; ok {
		delete(f.fail, op)
		return false, err
	}
	return false, nil
}

// pause waits d or until ctx is done.
func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
