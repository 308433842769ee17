package main

import (
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"

	"github.com/iw2rmb/modalsync/internal/telemetry"
	"github.com/iw2rmb/modalsync/pane"
	"github.com/iw2rmb/modalsync/position"
	"github.com/iw2rmb/modalsync/viewport"
)

func TestRenderPane_ShowsCursorsAndFocus(t *testing.T) {
	lipgloss.SetColorProfile(termenv.Ascii)

	v := paneView{
		ID:           "main",
		Doc:          "test.ts",
		Role:         pane.RolePrimary,
		Focused:      true,
		Lines:        strings.Split(testSource, "\n"),
		Visible:      viewport.Range{Start: 0, End: 5},
		Cursor:       position.Host{Line: 2, Col: 1},
		EngineCursor: position.Engine{Line: 3, Col: 2},
		HasEngine:    true,
	}
	out := renderPane(defaultStyles(), v, 40)

	assert.Contains(t, out, "● main test.ts (primary)")
	assert.Contains(t, out, "host [2,1]  engine (3,2)")
	assert.Contains(t, out, `3 test("")`)
	assert.Contains(t, out, "void")
	assert.NotContains(t, out, "void;", "long lines are cut to the pane width")
	assert.Contains(t, out, " ~")
}

func TestRenderPane_UnfocusedWithoutEngineCursor(t *testing.T) {
	lipgloss.SetColorProfile(termenv.Ascii)

	v := paneView{ID: "peek1", Doc: "test.ts", Lines: []string{"x"}, Visible: viewport.Range{Start: 0, End: 0}}
	out := renderPane(defaultStyles(), v, 30)
	assert.Contains(t, out, "  peek1 test.ts (ephemeral)")
	assert.Contains(t, out, "engine -")
}

func TestRenderLine_CursorPastEndAddsCell(t *testing.T) {
	lipgloss.SetColorProfile(termenv.Ascii)

	st := defaultStyles()
	assert.Equal(t, "a世b", renderLine(st, "a世b", 10, true, 1))
	assert.Equal(t, "a世b ", renderLine(st, "a世b", 10, true, 3))
	assert.Equal(t, "a世", renderLine(st, "a世b", 3, false, 0))
}

func TestFormatEntries(t *testing.T) {
	lipgloss.SetColorProfile(termenv.Ascii)

	at := time.Date(2026, 1, 2, 3, 4, 5, 6_000_000, time.UTC)
	out := formatEntries(defaultStyles(), []telemetry.Entry{
		{Time: at, Level: slog.LevelInfo, Message: "event", Attrs: map[string]string{"session": "x", "pane": "a", "kind": "host-cursor"}},
		{Time: at, Level: slog.LevelWarn, Message: "sync error", Attrs: map[string]string{"err": "boom"}},
	})

	lines := strings.Split(out, "\n")
	assert.Equal(t, "03:04:05.006 INFO  event kind=host-cursor pane=a", lines[0])
	assert.Equal(t, "03:04:05.006 WARN  sync error err=boom", lines[1])
}
