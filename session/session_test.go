package session_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iw2rmb/modalsync/buffer"
	"github.com/iw2rmb/modalsync/config"
	"github.com/iw2rmb/modalsync/internal/sim"
	"github.com/iw2rmb/modalsync/internal/telemetry"
	"github.com/iw2rmb/modalsync/pane"
	"github.com/iw2rmb/modalsync/position"
	"github.com/iw2rmb/modalsync/reconcile"
	"github.com/iw2rmb/modalsync/session"
	"github.com/iw2rmb/modalsync/viewport"
)

const testSource = "declare function test(a: number): void;\n\ntest(\"\")\n"

const aSource = "export const a = \"blah\";\n\nexport const b = \"blah\";\n\nexport function someFunc(): void;\n"

type harness struct {
	t      *testing.T
	host   *sim.Host
	engine *sim.Engine
	s      *session.Session
	logs   *telemetry.Recorder
	cancel context.CancelFunc
	done   chan error
	once   sync.Once

	mu   sync.Mutex
	errs []error
}

func newHarness(t *testing.T, mutate func(*config.Config)) *harness {
	t.Helper()
	cfg := config.Default()
	cfg.Sync.AckTimeout = time.Second
	if mutate != nil {
		mutate(&cfg)
	}

	log, rec, err := telemetry.NewLogger(config.LogConfig{Level: "debug", History: 2000}, nil)
	require.NoError(t, err)

	h := &harness{
		t:      t,
		host:   sim.NewHost(40),
		engine: sim.NewEngine(40, 3),
		logs:   rec,
		done:   make(chan error, 1),
	}
	h.s = session.New(h.host, h.engine, session.Options{
		Config: cfg,
		Logger: log,
		OnError: func(err error) {
			h.mu.Lock()
			h.errs = append(h.errs, err)
			h.mu.Unlock()
		},
	})
	h.host.Bind(h.s)
	h.engine.Bind(h.s)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- h.s.Run(ctx) }()
	t.Cleanup(h.stop)
	return h
}

func (h *harness) stop() {
	h.once.Do(func() {
		h.cancel()
		select {
		case err := <-h.done:
			assert.NoError(h.t, err)
		case <-time.After(5 * time.Second):
			h.t.Error("session did not stop")
		}
	})
}

func (h *harness) sync() {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(h.t, h.s.Sync(ctx))
}

func (h *harness) pane(id pane.ID) pane.Snapshot {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snap, ok, err := h.s.Pane(ctx, id)
	require.NoError(h.t, err)
	require.True(h.t, ok, "pane %s not attached", id)
	return snap
}

func (h *harness) ref(id pane.ID) pane.EngineRef { return h.pane(id).EngineRef }

func (h *harness) errors() []error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]error(nil), h.errs...)
}

// focus opens a primary pane, activates it and waits for the session.
func (h *harness) focus(id pane.ID, text string) pane.EngineRef {
	h.t.Helper()
	h.host.Open(id, session.Document{ID: string(id) + ".ts", Text: text}, pane.RolePrimary)
	h.host.Activate(id)
	h.sync()
	return h.ref(id)
}

func numbered(n int) string {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = fmt.Sprintf("line %d", i+1)
	}
	return strings.Join(lines, "\n")
}

func TestSession_HostCursorReachesEngine(t *testing.T) {
	h := newHarness(t, nil)
	ref := h.focus("main", testSource)

	h.host.MoveCursor("main", position.Host{Line: 2, Col: 1})
	h.sync()

	got, ok := h.engine.Cursor(ref)
	require.True(t, ok)
	assert.Equal(t, position.Engine{Line: 3, Col: 2}, got)
	assert.Equal(t, testSource, h.engine.Text(ref))

	// The engine's report of the move is an echo, not a new event.
	assert.Empty(t, h.host.Calls(sim.OpSetCursor))
	assert.GreaterOrEqual(t, h.s.Stats().Echoes, uint64(1))
	assert.Empty(t, h.errors())
}

func TestSession_PeekKeepsPrimaryCursor(t *testing.T) {
	h := newHarness(t, nil)
	mainRef := h.focus("main", testSource)
	h.host.MoveCursor("main", position.Host{Line: 2, Col: 1})
	h.sync()

	h.host.Open("peek", session.Document{ID: "test.ts", Text: testSource}, pane.RoleEphemeral)
	h.host.MoveCursor("peek", position.Host{Line: 0, Col: 17})
	h.sync()
	peekRef := h.ref("peek")

	cur, _ := h.host.Cursor("main")
	assert.Equal(t, position.Host{Line: 2, Col: 1}, cur)
	ecur, _ := h.engine.Cursor(mainRef)
	assert.Equal(t, position.Engine{Line: 3, Col: 2}, ecur)
	pcur, _ := h.engine.Cursor(peekRef)
	assert.Equal(t, position.Engine{Line: 1, Col: 1}, pcur, "ephemeral pane never drives the engine")

	peek := h.pane("peek")
	assert.Equal(t, pane.RoleEphemeral, peek.Role)
	assert.False(t, peek.Focused)
	assert.True(t, h.pane("main").Focused)
}

func TestSession_EngineJumpMovesHostOnce(t *testing.T) {
	h := newHarness(t, nil)
	ref := h.focus("main", testSource)
	h.host.ResetCalls()
	h.engine.ResetCalls()

	h.engine.Jump(ref, position.Engine{Line: 1, Col: 18})
	h.sync()

	calls := h.host.Calls(sim.OpSetCursor)
	require.Len(t, calls, 1)
	assert.Equal(t, position.Host{Line: 0, Col: 17}, calls[0].HostPos)
	cur, _ := h.host.Cursor("main")
	assert.Equal(t, position.Host{Line: 0, Col: 17}, cur)
	assert.Empty(t, h.engine.Calls(sim.OpSetCursor), "host echo must not bounce back")

	// Same engine state again: idempotent.
	h.engine.Jump(ref, position.Engine{Line: 1, Col: 18})
	h.sync()
	assert.Len(t, h.host.Calls(sim.OpSetCursor), 1)
}

func TestSession_RevealFollowsEngineWithHysteresis(t *testing.T) {
	h := newHarness(t, nil)
	ref := h.focus("main", numbered(200))

	h.engine.Move(ref, 130)
	h.sync()
	vis, _ := h.host.Visible("main")
	assert.LessOrEqual(t, vis.Start, 129)
	assert.True(t, vis.Contains(130), "visible %s", vis)
	cur, _ := h.host.Cursor("main")
	assert.Equal(t, 130, cur.Line)

	h.engine.Move(ref, -40)
	h.sync()
	vis, _ = h.host.Visible("main")
	assert.LessOrEqual(t, vis.Start, 89)
	assert.True(t, vis.Contains(90), "visible %s", vis)

	h.host.ResetCalls()
	h.engine.Move(ref, 1)
	h.sync()
	assert.Empty(t, h.host.Calls(sim.OpReveal), "moves inside the margin window never scroll")
	assert.Len(t, h.host.Calls(sim.OpSetCursor), 1)
}

func TestSession_CrossFileNavigation(t *testing.T) {
	h := newHarness(t, nil)
	bRef := h.focus("b", testSource)
	h.host.MoveCursor("b", position.Host{Line: 2, Col: 1})
	h.sync()

	h.host.Open("a", session.Document{ID: "a.ts", Text: aSource}, pane.RoleEphemeral)
	h.host.MoveCursor("a", position.Host{Line: 4, Col: 16})
	h.host.Activate("a")
	h.sync()
	aRef := h.ref("a")

	got, _ := h.engine.Cursor(aRef)
	assert.Equal(t, position.Engine{Line: 5, Col: 17}, got)
	assert.Equal(t, aSource, h.engine.Text(aRef))
	assert.Equal(t, "a.ts", h.engine.Document(aRef))

	bCur, _ := h.engine.Cursor(bRef)
	assert.Equal(t, position.Engine{Line: 3, Col: 2}, bCur)
	hostB, _ := h.host.Cursor("b")
	assert.Equal(t, position.Host{Line: 2, Col: 1}, hostB)

	a := h.pane("a")
	assert.True(t, a.Focused)
	assert.Equal(t, pane.RolePrimary, a.Role)
	assert.Equal(t, pane.RoleEphemeral, h.pane("b").Role)
}

func TestSession_EngineCursorWithoutFocusIsReplayed(t *testing.T) {
	h := newHarness(t, nil)
	h.host.Open("a", session.Document{ID: "a.ts", Text: testSource}, pane.RolePrimary)
	h.sync()
	ref := h.ref("a")

	h.engine.Jump(ref, position.Engine{Line: 3, Col: 2})
	h.sync()
	assert.Empty(t, h.host.Calls(sim.OpSetCursor))

	h.host.Activate("a")
	h.sync()
	cur, _ := h.host.Cursor("a")
	assert.Equal(t, position.Host{Line: 2, Col: 1}, cur)
}

func TestSession_EngineCursorAfterFocusedCloseIsReplayed(t *testing.T) {
	h := newHarness(t, nil)
	h.focus("main", testSource)
	h.host.Open("b", session.Document{ID: "test.ts", Text: testSource}, pane.RoleEphemeral)
	h.sync()
	bRef := h.ref("b")

	h.host.Close("main")
	h.sync()
	h.host.ResetCalls()

	h.engine.Jump(bRef, position.Engine{Line: 1, Col: 18})
	h.sync()
	assert.Empty(t, h.host.Calls(sim.OpSetCursor), "no pane has focus after the focused one closed")

	h.host.Activate("b")
	h.sync()
	calls := h.host.Calls(sim.OpSetCursor)
	require.Len(t, calls, 1)
	assert.Equal(t, pane.ID("b"), calls[0].Pane)
	assert.Equal(t, position.Host{Line: 0, Col: 17}, calls[0].HostPos)
	assert.True(t, h.pane("b").Focused)
	assert.Empty(t, h.errors())
}

func TestSession_EngineEditsReachFocusedHost(t *testing.T) {
	h := newHarness(t, nil)
	ref := h.focus("a", "hello\nworld")

	h.engine.Edit(ref, buffer.TextEdit{Range: buffer.Range{End: buffer.Pos{Row: 0, Col: 5}}, Text: "HELLO"})
	h.sync()

	assert.Equal(t, "HELLO\nworld", h.host.Text("a"))
	assert.Equal(t, "HELLO\nworld", h.pane("a").Text)
}

func TestSession_EngineRejectionKeepsState(t *testing.T) {
	h := newHarness(t, nil)
	ref := h.focus("a", testSource)
	h.host.MoveCursor("a", position.Host{Line: 2, Col: 1})
	h.sync()

	h.engine.FailNext(sim.OpSetCursor, &reconcile.EngineError{Reason: "E16: Invalid range"})
	h.host.MoveCursor("a", position.Host{Line: 0, Col: 4})
	h.sync()

	errs := h.errors()
	require.Len(t, errs, 1)
	var ee *reconcile.EngineError
	require.ErrorAs(t, errs[0], &ee)
	assert.Equal(t, pane.ID("a"), ee.Pane)
	assert.Equal(t, ref, ee.Ref)

	snap := h.pane("a")
	assert.Equal(t, position.Engine{Line: 3, Col: 2}, snap.EngineCursor)
	assert.Equal(t, pane.StateIdle, snap.CursorState)

	h.engine.Fail(ref, "E492: Not an editor command")
	h.sync()
	errs = h.errors()
	require.Len(t, errs, 2)
	require.ErrorAs(t, errs[1], &ee)
	assert.Equal(t, "E492: Not an editor command", ee.Reason)
	assert.NotEmpty(t, h.logs.Find("sync error"))
}

func TestSession_TimeoutResetsWithoutRetry(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Sync.AckTimeout = 50 * time.Millisecond })
	ref := h.focus("a", testSource)

	h.engine.Hang(sim.OpSetCursor)
	h.host.MoveCursor("a", position.Host{Line: 1, Col: 0})
	h.sync()

	var timeouts int
	for _, err := range h.errors() {
		if errors.Is(err, reconcile.ErrReconciliationTimeout) {
			timeouts++
		}
	}
	assert.Equal(t, 1, timeouts)
	assert.Len(t, h.engine.Calls(sim.OpSetCursor), 1, "timed out updates are not retried")
	assert.Equal(t, pane.StateIdle, h.pane("a").CursorState)

	h.host.MoveCursor("a", position.Host{Line: 2, Col: 1})
	h.sync()
	got, _ := h.engine.Cursor(ref)
	assert.Equal(t, position.Engine{Line: 3, Col: 2}, got)
}

func TestSession_CloseWhileUpdateInFlight(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Sync.AckTimeout = 100 * time.Millisecond })
	h.focus("a", testSource)

	h.engine.Hang(sim.OpSetCursor)
	h.host.MoveCursor("a", position.Host{Line: 2, Col: 1})
	h.host.Close("a")
	h.sync()

	assert.Empty(t, h.errors(), "late results for closed panes are dropped")
	assert.Empty(t, h.engine.Windows())
	assert.Len(t, h.engine.Calls(sim.OpDetach), 1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	panes, err := h.s.Panes(ctx)
	require.NoError(t, err)
	assert.Empty(t, panes)
}

func TestSession_HostScrollDrivesEngineViewport(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Sync.EngineViewports = true })
	ref := h.focus("a", numbered(200))
	h.engine.ResetCalls()

	h.host.Scroll("a", 50)
	h.sync()

	assert.Equal(t, 51, h.engine.Top(ref))
	calls := h.engine.Calls(sim.OpSetViewport)
	require.Len(t, calls, 1)
	assert.Equal(t, 51, calls[0].TopLine)
	assert.Equal(t, viewport.Range{Start: 50, End: 89}, h.pane("a").Viewport)
	assert.Empty(t, h.host.Calls(sim.OpReveal))
}

func TestSession_CloseDetachesEverything(t *testing.T) {
	h := newHarness(t, nil)
	h.focus("a", testSource)
	h.host.Open("b", session.Document{ID: "b.ts", Text: testSource}, pane.RoleEphemeral)
	h.sync()
	require.Len(t, h.engine.Windows(), 2)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.s.Close(ctx))
	assert.Empty(t, h.engine.Windows())
}

func TestSession_RunOnceAndStop(t *testing.T) {
	h := newHarness(t, nil)
	h.sync()
	assert.Len(t, h.logs.Find("session started"), 1)

	err := h.s.Run(context.Background())
	assert.ErrorIs(t, err, session.ErrRunning)

	h.stop()
	assert.ErrorIs(t, h.s.Sync(context.Background()), session.ErrStopped)
}
