package main

import (
	"context"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iw2rmb/modalsync/config"
	"github.com/iw2rmb/modalsync/internal/sim"
	"github.com/iw2rmb/modalsync/internal/telemetry"
	"github.com/iw2rmb/modalsync/pane"
	"github.com/iw2rmb/modalsync/position"
	"github.com/iw2rmb/modalsync/session"
)

func startDemo(t *testing.T) (model, *session.Session) {
	t.Helper()
	lipgloss.SetColorProfile(termenv.Ascii)

	cfg := config.Default()
	log, logs, err := telemetry.NewLogger(cfg.Log, nil)
	require.NoError(t, err)

	host := sim.NewHost(10)
	engine := sim.NewEngine(10, cfg.Viewport.Margin)
	s := session.New(host, engine, session.Options{Config: cfg, Logger: log})
	host.Bind(s)
	engine.Bind(s)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	docs := documents()
	host.Open("main", docs["test.ts"], pane.RolePrimary)
	host.Activate("main")

	m := newModel(host, engine, s, logs, docs)
	syncDemo(t, s)
	return refreshed(m), s
}

// refreshed runs the snapshot fetch a tick schedules and applies its result.
func refreshed(m model) model {
	next, _ := m.Update(fetchPanes(m.s)())
	return next.(model)
}

func syncDemo(t *testing.T, s *session.Session) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Sync(ctx))
}

func press(m model, msg tea.KeyMsg) model {
	next, _ := m.Update(msg)
	return next.(model)
}

func runes(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

func TestModel_GoToDefinitionMovesHostCursor(t *testing.T) {
	m, s := startDemo(t)

	m = press(m, runes("d"))
	syncDemo(t, s)

	cur, ok := m.host.Cursor("main")
	require.True(t, ok)
	assert.Equal(t, position.Host{Line: 0, Col: 17}, cur)
}

func TestModel_OpenOtherFileTakesFocus(t *testing.T) {
	m, s := startDemo(t)

	m = press(m, runes("o"))
	syncDemo(t, s)
	m = refreshed(m)

	snap, ok := m.snapshot("a")
	require.True(t, ok)
	assert.True(t, snap.Focused)
	ec, _ := m.engine.Cursor(snap.EngineRef)
	assert.Equal(t, position.Engine{Line: 5, Col: 17}, ec)
	assert.Contains(t, m.View(), "● a a.ts (primary)")

	m = press(m, tea.KeyMsg{Type: tea.KeyTab})
	syncDemo(t, s)
	m = refreshed(m)
	snap, _ = m.snapshot("main")
	assert.True(t, snap.Focused)
}

func TestModel_QuitKey(t *testing.T) {
	m, _ := startDemo(t)
	_, cmd := m.Update(runes("q"))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestModel_TickFetchesPanesOffTheUpdateLoop(t *testing.T) {
	m, s := startDemo(t)
	m.host.Open("side", session.Document{ID: "a.ts", Text: aSource}, pane.RoleEphemeral)
	syncDemo(t, s)

	next, cmd := m.Update(tickMsg(time.Now()))
	require.NotNil(t, cmd)
	m = next.(model)
	_, ok := m.snapshot("side")
	assert.False(t, ok, "the tick itself does not query the session")

	msg := cmd()
	require.IsType(t, panesMsg{}, msg)
	next, cmd = m.Update(msg)
	m = next.(model)
	assert.NotNil(t, cmd, "the next tick is scheduled after snapshots arrive")
	_, ok = m.snapshot("side")
	assert.True(t, ok)
}

func TestModel_PeekIsDrawnOverFocusedPane(t *testing.T) {
	m, s := startDemo(t)

	m = press(m, runes("p"))
	syncDemo(t, s)
	m = refreshed(m)

	snap, ok := m.snapshot("peek1")
	require.True(t, ok)
	assert.Equal(t, pane.RoleEphemeral, snap.Role)

	view := m.View()
	assert.Contains(t, view, "● main test.ts (primary)")
	assert.Contains(t, view, "peek1 test.ts (ephemeral)")
	cur, _ := m.host.Cursor("main")
	assert.Equal(t, position.Host{}, cur, "peeking leaves the main cursor alone")
}
