package main

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	overlay "github.com/rmhubbert/bubbletea-overlay"

	"github.com/iw2rmb/modalsync/internal/grapheme"
	"github.com/iw2rmb/modalsync/internal/telemetry"
	"github.com/iw2rmb/modalsync/pane"
	"github.com/iw2rmb/modalsync/position"
	"github.com/iw2rmb/modalsync/viewport"
)

const tabWidth = 4

// paneView is what the host shows for one pane plus the session's view of it.
type paneView struct {
	ID      pane.ID
	Doc     string
	Role    pane.Role
	Focused bool

	Lines   []string
	Visible viewport.Range
	Cursor  position.Host

	EngineCursor position.Engine
	HasEngine    bool
}

func renderPane(st styles, v paneView, width int) string {
	title := fmt.Sprintf("%s %s (%s)", v.ID, v.Doc, v.Role)
	if v.Focused {
		title = st.TitleFocused.Render("● " + title)
	} else {
		title = st.Title.Render("  " + title)
	}

	digits := len(fmt.Sprint(len(v.Lines)))
	textWidth := max(width-digits-1, 1)

	var b strings.Builder
	b.WriteString(title)
	for row := v.Visible.Start; row <= v.Visible.End; row++ {
		b.WriteByte('\n')
		if row < 0 || row >= len(v.Lines) {
			b.WriteString(st.Gutter.Render(strings.Repeat(" ", digits) + "~"))
			continue
		}
		b.WriteString(st.Gutter.Render(fmt.Sprintf("%*d ", digits, row+1)))
		b.WriteString(renderLine(st, v.Lines[row], textWidth, row == v.Cursor.Line, v.Cursor.Col))
	}

	engine := "engine -"
	if v.HasEngine {
		engine = "engine " + v.EngineCursor.String()
	}
	b.WriteByte('\n')
	b.WriteString(st.Status.Render(fmt.Sprintf("host %s  %s", v.Cursor, engine)))
	return st.Frame.Width(width).Render(b.String())
}

func renderLine(st styles, line string, width int, hasCursor bool, col int) string {
	if !hasCursor {
		return st.Text.Render(grapheme.Fit(line, width, tabWidth))
	}

	clusters := grapheme.Split(line)
	var before, at, after string
	switch {
	case col >= len(clusters):
		before, at = strings.Join(clusters, ""), " "
	default:
		before = strings.Join(clusters[:col], "")
		at = clusters[col]
		after = strings.Join(clusters[col+1:], "")
	}
	if at == "\t" {
		at = " "
	}

	cell := grapheme.CellOffset(line, col, tabWidth)
	if cell >= width {
		return st.Text.Render(grapheme.Fit(line, width, tabWidth))
	}
	left := grapheme.Fit(before, cell, tabWidth)
	rest := max(width-cell-grapheme.Width(at, cell, tabWidth), 0)
	return st.Text.Render(left) + st.Cursor.Render(at) + st.Text.Render(grapheme.Fit(after, rest, tabWidth))
}

func renderStatus(st styles, focused pane.ID, echoes, coalesced, superseded uint64) string {
	f := string(focused)
	if f == "" {
		f = "none"
	}
	return st.Status.Render(fmt.Sprintf("focus %s · echoes %d · coalesced %d · superseded %d",
		f, echoes, coalesced, superseded))
}

func renderHelp(st styles, k keyMap) string {
	parts := make([]string, 0, len(k.bindings()))
	for _, b := range k.bindings() {
		parts = append(parts, helpEntry(b))
	}
	return st.Help.Render(strings.Join(parts, "  "))
}

func helpEntry(b key.Binding) string {
	h := b.Help()
	return h.Key + " " + h.Desc
}

func formatEntries(st styles, entries []telemetry.Entry) string {
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		keys := make([]string, 0, len(e.Attrs))
		for k := range e.Attrs {
			if k == "session" {
				continue
			}
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var b strings.Builder
		fmt.Fprintf(&b, "%s %-5s %s", e.Time.Format("15:04:05.000"), e.Level, e.Message)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%s", k, e.Attrs[k])
		}
		line := b.String()
		if e.Level >= slog.LevelWarn {
			line = st.LogWarn.Render(line)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func joinPanes(views []string) string {
	if len(views) == 0 {
		return ""
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, views...)
}

// overlayPeek draws a peek pane over base with its top-left corner at (x, y).
func overlayPeek(base, peek string, x, y int) string {
	if base == "" {
		return peek
	}
	return overlay.New(staticView(peek), staticView(base), overlay.Left, overlay.Top, x, y).View()
}

// staticView is a tea.Model that renders a fixed string, used to feed
// pre-rendered text to the overlay compositor.
type staticView string

func (v staticView) Init() tea.Cmd                       { return nil }
func (v staticView) Update(tea.Msg) (tea.Model, tea.Cmd) { return v, nil }
func (v staticView) View() string                        { return string(v) }
