// Package pane tracks the host panes attached to a synchronization session.
//
// A Registry holds every attached pane, which one is primary and which one is
// focused for synchronization. Only the focused pane may move the engine's
// authoritative cursor; every other pane keeps shadow copies of the cursors
// it last pushed or received.
//
// The registry is not safe for concurrent use. A session accesses it from a
// single control flow.
package pane
