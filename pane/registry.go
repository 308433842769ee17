package pane

import (
	"errors"
	"fmt"

	"github.com/iw2rmb/modalsync/buffer"
)

var (
	ErrUnknownPane = errors.New("pane: unknown pane")
	ErrEmptyID     = errors.New("pane: empty pane id")
)

// Registry is the set of attached panes plus the focus-for-sync marker.
type Registry struct {
	panes   map[ID]*Pane
	order   []ID
	byRef   map[EngineRef]ID
	focused ID
	nextRef EngineRef
}

func NewRegistry() *Registry {
	return &Registry{
		panes:   make(map[ID]*Pane),
		byRef:   make(map[EngineRef]ID),
		nextRef: 1000,
	}
}

// Register attaches a pane showing doc. It never changes focus. A pane asking
// for RolePrimary while another primary exists is registered ephemeral; only
// Activate promotes.
//
// Registering a known ID retargets the pane to doc: content is replaced and
// shadow cursors are forgotten, role and focus stay. created reports whether
// the pane is new.
func (r *Registry) Register(id ID, doc Document, role Role) (p *Pane, created bool, err error) {
	if id == "" {
		return nil, false, ErrEmptyID
	}
	if p, ok := r.panes[id]; ok {
		p.retarget(doc.ID, doc.Text)
		return p, false, nil
	}

	if role == RolePrimary {
		if _, ok := r.Primary(); ok {
			role = RoleEphemeral
		}
	}

	p = &Pane{
		ID:         id,
		Role:       role,
		DocumentID: doc.ID,
		EngineRef:  r.nextRef,
		Content:    buffer.New(doc.Text),
	}
	r.nextRef++
	r.panes[id] = p
	r.byRef[p.EngineRef] = id
	r.order = append(r.order, id)
	return p, true, nil
}

// Unregister detaches a pane. Removing the focused pane leaves the registry
// without focus until the next Activate.
func (r *Registry) Unregister(id ID) (*Pane, bool) {
	p, ok := r.panes[id]
	if !ok {
		return nil, false
	}
	delete(r.panes, id)
	delete(r.byRef, p.EngineRef)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	if r.focused == id {
		r.focused = ""
	}
	return p, true
}

// SetRole changes a pane's role without touching focus. Promoting a pane
// demotes the previous primary.
func (r *Registry) SetRole(id ID, role Role) error {
	p, ok := r.panes[id]
	if !ok {
		return fmt.Errorf("set role %s: %w", id, ErrUnknownPane)
	}
	if role == RolePrimary {
		if prev, ok := r.Primary(); ok && prev.ID != id {
			prev.Role = RoleEphemeral
		}
	}
	p.Role = role
	return nil
}

// Activate handles the host's "user switched active editor" signal: the pane
// becomes primary and focused.
func (r *Registry) Activate(id ID) (*Pane, error) {
	if err := r.SetRole(id, RolePrimary); err != nil {
		return nil, err
	}
	r.focused = id
	return r.panes[id], nil
}

func (r *Registry) Get(id ID) (*Pane, bool) {
	p, ok := r.panes[id]
	return p, ok
}

func (r *Registry) ByEngineRef(ref EngineRef) (*Pane, bool) {
	id, ok := r.byRef[ref]
	if !ok {
		return nil, false
	}
	return r.Get(id)
}

// Focused returns the pane that currently owns the engine cursor.
func (r *Registry) Focused() (*Pane, bool) {
	if r.focused == "" {
		return nil, false
	}
	return r.Get(r.focused)
}

func (r *Registry) IsFocused(id ID) bool {
	return id != "" && r.focused == id
}

func (r *Registry) Primary() (*Pane, bool) {
	for _, id := range r.order {
		if p := r.panes[id]; p.Role == RolePrimary {
			return p, true
		}
	}
	return nil, false
}

// Panes returns the attached panes in registration order.
func (r *Registry) Panes() []*Pane {
	out := make([]*Pane, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.panes[id])
	}
	return out
}

func (r *Registry) Len() int { return len(r.panes) }

// Snapshots copies every pane's state in registration order.
func (r *Registry) Snapshots() []Snapshot {
	out := make([]Snapshot, 0, len(r.order))
	for _, p := range r.Panes() {
		out = append(out, p.Snapshot(r.IsFocused(p.ID)))
	}
	return out
}
