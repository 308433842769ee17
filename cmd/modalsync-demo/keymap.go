package main

import "github.com/charmbracelet/bubbles/key"

// keyMap splits keys between the two sides of the bridge: arrows and paging
// act in the host editor, vi keys act in the engine.
type keyMap struct {
	Left, Right, Up, Down key.Binding
	PageUp, PageDown      key.Binding

	EngineDown, EngineUp         key.Binding
	EngineJumpDown, EngineJumpUp key.Binding
	EngineBottom                 key.Binding
	Definition                   key.Binding
	EngineEdit, EngineFail       key.Binding

	Peek, OpenOther, NextPane, ClosePane key.Binding
	Quit                                 key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Left:     key.NewBinding(key.WithKeys("left"), key.WithHelp("←", "host left")),
		Right:    key.NewBinding(key.WithKeys("right"), key.WithHelp("→", "host right")),
		Up:       key.NewBinding(key.WithKeys("up"), key.WithHelp("↑", "host up")),
		Down:     key.NewBinding(key.WithKeys("down"), key.WithHelp("↓", "host down")),
		PageUp:   key.NewBinding(key.WithKeys("pgup"), key.WithHelp("pgup", "host scroll up")),
		PageDown: key.NewBinding(key.WithKeys("pgdown"), key.WithHelp("pgdn", "host scroll down")),

		EngineDown:     key.NewBinding(key.WithKeys("j"), key.WithHelp("j", "engine down")),
		EngineUp:       key.NewBinding(key.WithKeys("k"), key.WithHelp("k", "engine up")),
		EngineJumpDown: key.NewBinding(key.WithKeys("J"), key.WithHelp("J", "engine 30j")),
		EngineJumpUp:   key.NewBinding(key.WithKeys("K"), key.WithHelp("K", "engine 30k")),
		EngineBottom:   key.NewBinding(key.WithKeys("G"), key.WithHelp("G", "engine last line")),
		Definition:     key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "go to definition")),
		EngineEdit:     key.NewBinding(key.WithKeys("i"), key.WithHelp("i", "engine insert")),
		EngineFail:     key.NewBinding(key.WithKeys("!"), key.WithHelp("!", "engine error")),

		Peek:      key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "peek")),
		OpenOther: key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "open a.ts")),
		NextPane:  key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next pane")),
		ClosePane: key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "close pane")),
		Quit:      key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) bindings() []key.Binding {
	return []key.Binding{
		k.Up, k.Down, k.PageDown, k.EngineDown, k.EngineUp, k.EngineJumpDown, k.EngineJumpUp,
		k.Definition, k.EngineEdit, k.EngineFail, k.Peek, k.OpenOther, k.NextPane, k.ClosePane, k.Quit,
	}
}
