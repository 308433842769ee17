package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/iw2rmb/modalsync/buffer"
	"github.com/iw2rmb/modalsync/internal/sim"
	"github.com/iw2rmb/modalsync/internal/telemetry"
	"github.com/iw2rmb/modalsync/pane"
	"github.com/iw2rmb/modalsync/position"
	"github.com/iw2rmb/modalsync/session"
)

const (
	refreshEvery = 50 * time.Millisecond
	peekRows     = 5
)

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(refreshEvery, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// panesMsg carries pane snapshots fetched off the update loop.
type panesMsg struct {
	snaps []pane.Snapshot
	err   error
}

func fetchPanes(s *session.Session) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		snaps, err := s.Panes(ctx)
		return panesMsg{snaps: snaps, err: err}
	}
}

type model struct {
	keys  keyMap
	style styles

	host   *sim.Host
	engine *sim.Engine
	s      *session.Session
	logs   *telemetry.Recorder
	docs   map[string]pane.Document

	snaps []pane.Snapshot
	peeks int

	width, height int
	logView       viewport.Model
}

func newModel(host *sim.Host, engine *sim.Engine, s *session.Session, logs *telemetry.Recorder, docs map[string]pane.Document) model {
	return model{
		keys:    defaultKeyMap(),
		style:   defaultStyles(),
		host:    host,
		engine:  engine,
		s:       s,
		logs:    logs,
		docs:    docs,
		logView: viewport.New(80, 6),
	}
}

func (m model) Init() tea.Cmd {
	return tick()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.logView.Width = msg.Width
		m.logView.Height = max(msg.Height-m.host.Height()-7, 3)
		return m, nil
	case tickMsg:
		return m, fetchPanes(m.s)
	case panesMsg:
		if msg.err == nil {
			m.snaps = msg.snaps
		}
		m.logView.SetContent(formatEntries(m.style, m.logs.Recent(200)))
		m.logView.GotoBottom()
		return m, tick()
	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			return m, tea.Quit
		}
		m.handleKey(msg)
		return m, nil
	}

	var cmd tea.Cmd
	m.logView, cmd = m.logView.Update(msg)
	return m, cmd
}

func (m model) snapshot(id pane.ID) (pane.Snapshot, bool) {
	for _, s := range m.snaps {
		if s.ID == id {
			return s, true
		}
	}
	return pane.Snapshot{}, false
}

func (m *model) handleKey(msg tea.KeyMsg) {
	active := m.host.Active()
	cur, hasPane := m.host.Cursor(active)
	snap, attached := m.snapshot(active)
	ref := snap.EngineRef

	switch {
	case key.Matches(msg, m.keys.NextPane):
		m.cyclePane(active)
	case key.Matches(msg, m.keys.OpenOther):
		doc := m.docs["a.ts"]
		m.host.Open("a", doc, pane.RoleEphemeral)
		m.host.MoveCursor("a", position.Host{Line: 4, Col: 16})
		m.host.Activate("a")
	case !hasPane:
		return
	case key.Matches(msg, m.keys.Left):
		m.host.MoveCursor(active, position.Host{Line: cur.Line, Col: cur.Col - 1})
	case key.Matches(msg, m.keys.Right):
		m.host.MoveCursor(active, position.Host{Line: cur.Line, Col: cur.Col + 1})
	case key.Matches(msg, m.keys.Up):
		m.host.MoveCursor(active, position.Host{Line: cur.Line - 1, Col: cur.Col})
	case key.Matches(msg, m.keys.Down):
		m.host.MoveCursor(active, position.Host{Line: cur.Line + 1, Col: cur.Col})
	case key.Matches(msg, m.keys.PageDown):
		vis, _ := m.host.Visible(active)
		m.host.Scroll(active, vis.Start+vis.Height()/2)
	case key.Matches(msg, m.keys.PageUp):
		vis, _ := m.host.Visible(active)
		m.host.Scroll(active, vis.Start-vis.Height()/2)
	case key.Matches(msg, m.keys.ClosePane):
		m.host.Close(active)
	case !attached:
		return
	case key.Matches(msg, m.keys.Peek):
		m.peeks++
		id := pane.ID(fmt.Sprintf("peek%d", m.peeks))
		m.host.Open(id, m.docs[snap.DocumentID], pane.RoleEphemeral)
		m.host.MoveCursor(id, position.Host{Line: 0, Col: 17})
	case key.Matches(msg, m.keys.EngineDown):
		m.engine.Move(ref, 1)
	case key.Matches(msg, m.keys.EngineUp):
		m.engine.Move(ref, -1)
	case key.Matches(msg, m.keys.EngineJumpDown):
		m.engine.Move(ref, 30)
	case key.Matches(msg, m.keys.EngineJumpUp):
		m.engine.Move(ref, -30)
	case key.Matches(msg, m.keys.EngineBottom):
		m.engine.Move(ref, 1<<20)
	case key.Matches(msg, m.keys.Definition):
		m.engine.Jump(ref, position.Engine{Line: 1, Col: 18})
	case key.Matches(msg, m.keys.EngineEdit):
		ec, _ := m.engine.Cursor(ref)
		at := buffer.Pos{Row: ec.Line - 1}
		m.engine.Edit(ref, buffer.TextEdit{Range: buffer.Range{Start: at, End: at}, Text: "// edited in engine\n"})
	case key.Matches(msg, m.keys.EngineFail):
		m.engine.Fail(ref, "E492: Not an editor command")
	}
}

func (m *model) cyclePane(active pane.ID) {
	ids := m.host.Panes()
	if len(ids) == 0 {
		return
	}
	next := ids[0]
	for i, id := range ids {
		if id == active {
			next = ids[(i+1)%len(ids)]
			break
		}
	}
	m.host.Activate(next)
}

// isPeek reports whether id is a peek pane opened by this demo. Peeks are
// drawn over the pane they were opened from.
func isPeek(id pane.ID) bool { return strings.HasPrefix(string(id), "peek") }

func (m model) View() string {
	ids := m.host.Panes()
	width := m.width
	if width <= 0 {
		width = 120
	}
	var tiled, peeks []pane.ID
	for _, id := range ids {
		if isPeek(id) {
			peeks = append(peeks, id)
		} else {
			tiled = append(tiled, id)
		}
	}
	paneWidth := width
	if len(tiled) > 0 {
		paneWidth = max(width/len(tiled)-2, 20)
	}

	var (
		focused        pane.ID
		offset, anchor int
	)
	views := make([]string, 0, len(tiled))
	for _, id := range tiled {
		v := m.paneView(id)
		if v.Focused {
			focused, anchor = id, offset
		}
		rendered := renderPane(m.style, v, paneWidth)
		offset += lipgloss.Width(rendered)
		views = append(views, rendered)
	}

	base := joinPanes(views)
	peekWidth := max(paneWidth*2/3, 20)
	for i, id := range peeks {
		v := m.paneView(id)
		if v.Focused {
			focused = id
		}
		v.Visible.End = min(v.Visible.End, v.Visible.Start+peekRows-1)
		peek := renderPane(m.style, v, peekWidth)
		x := min(anchor+4+2*i, max(lipgloss.Width(base)-lipgloss.Width(peek), 0))
		y := min(3+2*i, max(lipgloss.Height(base)-lipgloss.Height(peek), 0))
		base = overlayPeek(base, peek, x, y)
	}

	st := m.s.Stats()
	return lipgloss.JoinVertical(lipgloss.Left,
		base,
		renderStatus(m.style, focused, st.Echoes, st.Coalesced, st.Superseded),
		renderHelp(m.style, m.keys),
		m.logView.View(),
	)
}

func (m model) paneView(id pane.ID) paneView {
	v := paneView{ID: id}
	v.Lines = strings.Split(m.host.Text(id), "\n")
	v.Visible, _ = m.host.Visible(id)
	v.Cursor, _ = m.host.Cursor(id)
	if snap, ok := m.snapshot(id); ok {
		v.Doc, v.Role, v.Focused = snap.DocumentID, snap.Role, snap.Focused
		v.EngineCursor, v.HasEngine = snap.EngineCursor, snap.HasEngine
		if ec, ok := m.engine.Cursor(snap.EngineRef); ok {
			v.EngineCursor, v.HasEngine = ec, true
		}
	}
	return v
}
