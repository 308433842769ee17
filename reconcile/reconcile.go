// Package reconcile decides, for each sequenced event, which outbound updates
// bring the host and the engine back in agreement.
//
// The Reconciler is not safe for concurrent use. It never performs I/O: it
// returns Actions and is told about their outcome through Ack.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/iw2rmb/modalsync/buffer"
	"github.com/iw2rmb/modalsync/pane"
	"github.com/iw2rmb/modalsync/position"
	"github.com/iw2rmb/modalsync/sequencer"
	"github.com/iw2rmb/modalsync/viewport"
)

type Options struct {
	Mapper viewport.Mapper
	// AckTimeout bounds how long a track waits for an acknowledgement. Zero
	// waits forever.
	AckTimeout time.Duration
	// DefaultHeight is the visible height assumed for panes whose host has
	// not reported a visible range yet.
	DefaultHeight int
	// EngineViewports forwards host scrolling to the engine.
	EngineViewports bool

	Now    func() time.Time
	Logger *slog.Logger
}

type Reconciler struct {
	reg *pane.Registry
	opt Options
	log *slog.Logger
	gen uint64

	// held keeps the latest engine cursor per window reported while no pane
	// had focus.
	held map[pane.EngineRef]position.Engine
}

func New(reg *pane.Registry, opt Options) *Reconciler {
	if opt.Now == nil {
		opt.Now = time.Now
	}
	if opt.DefaultHeight < 1 {
		opt.DefaultHeight = 1
	}
	log := opt.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Reconciler{
		reg:  reg,
		opt:  opt,
		log:  log.With("component", "reconcile"),
		held: make(map[pane.EngineRef]position.Engine),
	}
}

func (r *Reconciler) Registry() *pane.Registry { return r.reg }

// Ready reports whether events for id can be handled. Unknown panes are
// ready so that their events reach Handle.
func (r *Reconciler) Ready(id pane.ID) bool {
	p, ok := r.reg.Get(id)
	return !ok || !p.Busy()
}

// Handle applies one event and returns the updates it requires. Returned
// errors are non-fatal; events for unknown panes fail with ErrStalePane.
func (r *Reconciler) Handle(ev sequencer.Event) ([]Action, error) {
	switch ev.Kind {
	case sequencer.KindHostOpened:
		return r.opened(ev)
	case sequencer.KindHostClosed:
		return r.closed(ev)
	case sequencer.KindHostActive:
		return r.activated(ev)
	}

	p, ok := r.reg.Get(ev.Pane)
	if !ok || (ev.Source() == sequencer.SourceEngine && p.EngineRef != ev.Ref) {
		return nil, fmt.Errorf("%s for pane %q: %w", ev.Kind, ev.Pane, ErrStalePane)
	}

	switch ev.Kind {
	case sequencer.KindHostCursor:
		return r.hostCursor(p, ev.HostPos)
	case sequencer.KindHostScroll:
		return r.hostScroll(p, ev.Range), nil
	case sequencer.KindEngineCursor:
		if ev.HostOverridden {
			p.SetHostCursor(ev.OverriddenHost)
		}
		return r.engineCursor(p, ev.EnginePos)
	case sequencer.KindEngineScroll:
		return r.engineScroll(p, ev.TopLine), nil
	case sequencer.KindEngineBuffer:
		return r.engineBuffer(p, ev.Version, ev.Edits)
	case sequencer.KindEngineError:
		// In-flight updates keep their tracks; they settle through Ack or
		// Expire.
		return nil, &EngineError{Pane: p.ID, Ref: p.EngineRef, Reason: ev.Reason}
	default:
		return nil, fmt.Errorf("unhandled event kind %s", ev.Kind)
	}
}

func (r *Reconciler) opened(ev sequencer.Event) ([]Action, error) {
	p, created, err := r.reg.Register(ev.Pane, ev.Document, ev.Role)
	if err != nil {
		return nil, fmt.Errorf("open pane %q: %w", ev.Pane, err)
	}
	delete(r.held, p.EngineRef)
	r.log.Debug("pane opened", "pane", p.ID, "doc", p.DocumentID, "role", p.Role, "ref", p.EngineRef, "created", created)

	a := Action{
		Kind:       ActEngineAttach,
		Pane:       p.ID,
		Ref:        p.EngineRef,
		DocumentID: p.DocumentID,
		Text:       ev.Document.Text,
	}
	r.await(&p.Cursor, pane.StateAwaitingEngineAck, &a)
	return []Action{a}, nil
}

func (r *Reconciler) closed(ev sequencer.Event) ([]Action, error) {
	p, ok := r.reg.Unregister(ev.Pane)
	if !ok {
		return nil, fmt.Errorf("close pane %q: %w", ev.Pane, ErrStalePane)
	}
	delete(r.held, p.EngineRef)
	r.log.Debug("pane closed", "pane", p.ID, "ref", p.EngineRef)
	return []Action{{Kind: ActEngineDetach, Pane: p.ID, Ref: p.EngineRef}}, nil
}

func (r *Reconciler) activated(ev sequencer.Event) ([]Action, error) {
	p, err := r.reg.Activate(ev.Pane)
	if errors.Is(err, pane.ErrUnknownPane) {
		return nil, fmt.Errorf("activate pane %q: %w", ev.Pane, ErrStalePane)
	}
	if err != nil {
		return nil, err
	}
	r.log.Debug("pane focused", "pane", p.ID, "ref", p.EngineRef)

	// Engine cursors reported while nothing had focus win over the host.
	ep, held := r.held[p.EngineRef]
	clear(r.held)
	if held {
		return r.engineCursor(p, ep)
	}

	if !p.HasHostCursor {
		return nil, nil
	}
	return r.pushHostCursor(p)
}

func (r *Reconciler) hostCursor(p *pane.Pane, pos position.Host) ([]Action, error) {
	p.SetHostCursor(pos)
	if !r.reg.IsFocused(p.ID) {
		return nil, nil
	}
	return r.pushHostCursor(p)
}

func (r *Reconciler) pushHostCursor(p *pane.Pane) ([]Action, error) {
	ep, err := position.HostToEngine(p.LastHostCursor, p.Content)
	if err != nil {
		return nil, fmt.Errorf("pane %q cursor %s: %w", p.ID, p.LastHostCursor, err)
	}
	if p.HasEngineCursor && ep == p.LastEngineCursor {
		return nil, nil
	}

	a := Action{Kind: ActEngineSetCursor, Pane: p.ID, Ref: p.EngineRef, EnginePos: ep}
	r.await(&p.Cursor, pane.StateAwaitingEngineAck, &a)
	return []Action{a}, nil
}

func (r *Reconciler) engineCursor(p *pane.Pane, pos position.Engine) ([]Action, error) {
	p.SetEngineCursor(pos)

	if _, ok := r.reg.Focused(); !ok {
		r.held[p.EngineRef] = pos
		return nil, nil
	}
	if !r.reg.IsFocused(p.ID) {
		return nil, nil
	}

	hp, err := position.EngineToHost(pos, p.Content)
	if err != nil {
		return nil, fmt.Errorf("pane %q engine cursor %s: %w", p.ID, pos, err)
	}

	var acts []Action
	if !p.HasHostCursor || hp != p.LastHostCursor {
		a := Action{Kind: ActHostSetCursor, Pane: p.ID, Ref: p.EngineRef, HostPos: hp}
		r.await(&p.Cursor, pane.StateAwaitingHostAck, &a)
		acts = append(acts, a)
	}
	if a, ok := r.follow(p, hp.Line); ok {
		acts = append(acts, a)
	}
	return acts, nil
}

// follow returns the reveal that keeps line inside the margin window.
func (r *Reconciler) follow(p *pane.Pane, line int) (Action, bool) {
	if p.Viewport.Busy() {
		return Action{}, false
	}
	next, ok := r.opt.Mapper.Follow(line, r.visible(p), p.Content.LineCount())
	if !ok {
		return Action{}, false
	}
	return r.reveal(p, next), true
}

func (r *Reconciler) reveal(p *pane.Pane, rng viewport.Range) Action {
	a := Action{Kind: ActHostReveal, Pane: p.ID, Ref: p.EngineRef, Range: rng}
	r.await(&p.Viewport, pane.StateAwaitingHostAck, &a)
	return a
}

func (r *Reconciler) visible(p *pane.Pane) viewport.Range {
	if p.HasViewport {
		return p.LastViewport
	}
	return viewport.Range{Start: 0, End: r.opt.DefaultHeight - 1}
}

func (r *Reconciler) hostScroll(p *pane.Pane, rng viewport.Range) []Action {
	p.SetViewport(rng)
	if !r.opt.EngineViewports || !r.reg.IsFocused(p.ID) || p.Viewport.Busy() {
		return nil
	}

	top, height := r.opt.Mapper.HostRangeToEngineScroll(rng)
	if top == p.EngineTop {
		return nil
	}
	a := Action{Kind: ActEngineSetViewport, Pane: p.ID, Ref: p.EngineRef, TopLine: top, Height: height}
	r.await(&p.Viewport, pane.StateAwaitingEngineAck, &a)
	return []Action{a}
}

func (r *Reconciler) engineScroll(p *pane.Pane, top int) []Action {
	p.EngineTop = top
	if !r.reg.IsFocused(p.ID) || p.Viewport.Busy() {
		return nil
	}

	line, ok := r.cursorLine(p)
	if !ok {
		return nil
	}
	visible := r.visible(p)
	lines := p.Content.LineCount()
	if !r.opt.Mapper.NeedsReveal(line, visible, lines) {
		return nil
	}

	target := r.opt.Mapper.EngineScrollToHostRange(top, visible.Height())
	if r.opt.Mapper.NeedsReveal(line, target, lines) {
		if target, ok = r.opt.Mapper.Follow(line, visible, lines); !ok {
			return nil
		}
	}
	return []Action{r.reveal(p, target)}
}

// cursorLine is the host line of the authoritative cursor.
func (r *Reconciler) cursorLine(p *pane.Pane) (int, bool) {
	if p.HasEngineCursor {
		hp, err := position.EngineToHost(p.LastEngineCursor, p.Content)
		if err == nil {
			return hp.Line, true
		}
	}
	if p.HasHostCursor {
		return position.ReclampHost(p.LastHostCursor, p.Content).Line, true
	}
	return 0, false
}

func (r *Reconciler) engineBuffer(p *pane.Pane, version uint64, edits []buffer.TextEdit) ([]Action, error) {
	ch, err := p.Content.ApplyRemote(version, edits)
	if errors.Is(err, buffer.ErrStaleVersion) {
		r.log.Debug("stale engine buffer report dropped", "pane", p.ID, "version", version, "have", p.Content.RemoteVersion())
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !r.reg.IsFocused(p.ID) || len(ch.AppliedEdits) == 0 {
		return nil, nil
	}
	return []Action{{Kind: ActHostApplyEdits, Pane: p.ID, Ref: p.EngineRef, Edits: ch.Edits()}}, nil
}

func (r *Reconciler) await(t *pane.Track, state pane.State, a *Action) {
	r.gen++
	a.Gen = r.gen
	var deadline time.Time
	if r.opt.AckTimeout > 0 {
		deadline = r.opt.Now().Add(r.opt.AckTimeout)
	}
	t.Await(state, a.Gen, deadline)
}

func trackFor(p *pane.Pane, k ActionKind) (*pane.Track, string) {
	switch k {
	case ActEngineAttach, ActEngineSetCursor, ActHostSetCursor:
		return &p.Cursor, "cursor"
	case ActEngineSetViewport, ActHostReveal:
		return &p.Viewport, "viewport"
	default:
		return nil, ""
	}
}

// Ack reports the outcome of an action. Success commits the value the action
// carried; failure keeps the prior state. Outcomes for unregistered panes or
// superseded generations are dropped.
func (r *Reconciler) Ack(a Action, err error) error {
	p, ok := r.reg.Get(a.Pane)
	if !ok || p.EngineRef != a.Ref {
		r.log.Debug("ack for stale pane dropped", "action", a.String(), "err", err)
		return nil
	}
	if a.Awaited() {
		t, _ := trackFor(p, a.Kind)
		if t == nil || !t.Resolve(a.Gen) {
			r.log.Debug("stale ack dropped", "action", a.String(), "gen", a.Gen)
			return nil
		}
	}

	if err != nil {
		return r.failed(p, a, err)
	}

	switch a.Kind {
	case ActEngineSetCursor:
		p.SetEngineCursor(a.EnginePos)
	case ActHostSetCursor:
		p.SetHostCursor(a.HostPos)
	case ActHostReveal:
		p.SetViewport(a.Range)
	case ActEngineSetViewport:
		p.EngineTop = a.TopLine
	}
	return nil
}

func (r *Reconciler) failed(p *pane.Pane, a Action, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		_, track := trackFor(p, a.Kind)
		state := pane.StateAwaitingHostAck
		if a.Kind.Engine() {
			state = pane.StateAwaitingEngineAck
		}
		return &TimeoutError{Pane: p.ID, Track: track, State: state}
	}

	if !a.Kind.Engine() {
		return &HostError{Pane: p.ID, Op: a.Kind.String(), Err: err}
	}
	var ee *EngineError
	if errors.As(err, &ee) {
		out := *ee
		out.Pane, out.Ref = p.ID, p.EngineRef
		return &out
	}
	return &EngineError{Pane: p.ID, Ref: p.EngineRef, Reason: err.Error()}
}

// Expire resets every track that waited past its deadline.
func (r *Reconciler) Expire(now time.Time) []error {
	var errs []error
	for _, p := range r.reg.Panes() {
		for _, t := range []struct {
			name  string
			track *pane.Track
		}{{"cursor", &p.Cursor}, {"viewport", &p.Viewport}} {
			if !t.track.Expired(now) {
				continue
			}
			errs = append(errs, &TimeoutError{Pane: p.ID, Track: t.name, State: t.track.State})
			t.track.Reset()
		}
	}
	return errs
}

// NextDeadline returns the earliest deadline among awaiting tracks.
func (r *Reconciler) NextDeadline() (time.Time, bool) {
	var (
		next  time.Time
		found bool
	)
	for _, p := range r.reg.Panes() {
		for _, t := range []*pane.Track{&p.Cursor, &p.Viewport} {
			if !t.Busy() || t.Deadline.IsZero() {
				continue
			}
			if !found || t.Deadline.Before(next) {
				next, found = t.Deadline, true
			}
		}
	}
	return next, found
}

// DetachAll unregisters every pane and returns the detaches to perform.
func (r *Reconciler) DetachAll() []Action {
	var acts []Action
	for _, p := range r.reg.Panes() {
		r.reg.Unregister(p.ID)
		acts = append(acts, Action{Kind: ActEngineDetach, Pane: p.ID, Ref: p.EngineRef})
	}
	clear(r.held)
	return acts
}
