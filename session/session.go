// Package session runs the bridge between one host editor and one headless
// modal engine.
//
// Host and engine adapters report what they observe through the On* methods,
// from any goroutine. A single loop started with Run sequences those events,
// reconciles them against the pane registry and performs the resulting
// outbound calls asynchronously, each bounded by the configured ack timeout.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/iw2rmb/modalsync"
	"github.com/iw2rmb/modalsync/buffer"
	"github.com/iw2rmb/modalsync/config"
	"github.com/iw2rmb/modalsync/pane"
	"github.com/iw2rmb/modalsync/position"
	"github.com/iw2rmb/modalsync/reconcile"
	"github.com/iw2rmb/modalsync/sequencer"
	"github.com/iw2rmb/modalsync/viewport"
)

// Host is the outbound side of a host editor.
type Host interface {
	SetCursor(ctx context.Context, id pane.ID, pos position.Host) error
	RevealRange(ctx context.Context, id pane.ID, r viewport.Range) error
	ApplyEdits(ctx context.Context, id pane.ID, edits []buffer.TextEdit) error
}

// Engine is the outbound side of a headless modal engine. SetCursor returns a
// *reconcile.EngineError when the engine rejects the command.
type Engine interface {
	SetCursor(ctx context.Context, ref pane.EngineRef, pos position.Engine) error
	Attach(ctx context.Context, ref pane.EngineRef, docID, text string) error
	Detach(ctx context.Context, ref pane.EngineRef) error
}

// Viewporter is implemented by engines that accept scroll positions.
type Viewporter interface {
	SetViewport(ctx context.Context, ref pane.EngineRef, topLine, height int) error
}

// Document is the content of a newly opened pane.
type Document = pane.Document

var (
	ErrRunning = errors.New("session: already running")
	ErrStopped = errors.New("session: not running")
)

type Options struct {
	Config config.Config
	Logger *slog.Logger
	// OnError receives non-fatal errors: engine rejections, failed host
	// calls and timeouts. It runs on the session loop and must not block.
	OnError func(error)
	Now     func() time.Time
}

type result struct {
	action reconcile.Action
	err    error
}

type Session struct {
	id         uuid.UUID
	host       Host
	engine     Engine
	viewporter Viewporter
	cfg        config.Config
	log        *slog.Logger
	onError    func(error)
	now        func() time.Time

	seq *sequencer.Sequencer
	rec *reconcile.Reconciler

	results  chan result
	requests chan func()
	running  atomic.Bool
	stopped  chan struct{}

	// Owned by the loop goroutine.
	inflight int
	waiters  []chan struct{}
	calls    sync.WaitGroup
	callCtx  context.Context
}

func New(host Host, engine Engine, opts Options) *Session {
	cfg := opts.Config
	if cfg == (config.Config{}) {
		cfg = config.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	id := uuid.New()
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	log = log.With("session", id.String())

	vp, _ := engine.(Viewporter)
	s := &Session{
		id:         id,
		host:       host,
		engine:     engine,
		viewporter: vp,
		cfg:        cfg,
		log:        log,
		onError:    opts.OnError,
		now:        opts.Now,
		seq: sequencer.New(sequencer.Options{
			EchoGrace: cfg.Sync.EchoGrace,
			Now:       opts.Now,
		}),
		results:  make(chan result),
		requests: make(chan func()),
		stopped:  make(chan struct{}),
	}
	s.rec = reconcile.New(pane.NewRegistry(), reconcile.Options{
		Mapper:          viewport.Mapper{Margin: cfg.Viewport.Margin},
		AckTimeout:      cfg.Sync.AckTimeout,
		DefaultHeight:   cfg.Viewport.DefaultHeight,
		EngineViewports: cfg.Sync.EngineViewports && vp != nil,
		Now:             opts.Now,
		Logger:          log,
	})
	return s
}

func (s *Session) ID() uuid.UUID { return s.id }

// Stats reports what the sequencer did with inbound events so far.
func (s *Session) Stats() sequencer.Stats { return s.seq.Stats() }

// Run processes events until ctx is done. It waits for outbound calls to
// return before it does.
func (s *Session) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer close(s.stopped)

	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		s.calls.Wait()
	}()
	s.callCtx = ctx

	s.log.Info("session started", "agent", modalsync.UserAgent(),
		"echo_grace", s.cfg.Sync.EchoGrace, "ack_timeout", s.cfg.Sync.AckTimeout, "margin", s.cfg.Viewport.Margin)

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		s.dispatch()
		s.release()

		var deadline <-chan time.Time
		if at, ok := s.rec.NextDeadline(); ok {
			timer.Reset(max(at.Sub(s.now()), 0))
			deadline = timer.C
		}

		select {
		case <-ctx.Done():
			s.log.Info("session stopped", "panes", s.rec.Registry().Len())
			return nil
		case <-s.seq.Notify():
			if d := s.cfg.Sync.Debounce; d > 0 {
				select {
				case <-ctx.Done():
				case <-time.After(d):
				}
			}
		case r := <-s.results:
			s.inflight--
			s.report(s.rec.Ack(r.action, r.err))
		case <-deadline:
			for _, err := range s.rec.Expire(s.now()) {
				s.report(err)
			}
		case req := <-s.requests:
			req()
		}
		timer.Stop()
	}
}

// dispatch handles every event that is ready.
func (s *Session) dispatch() {
	for {
		ev, ok := s.seq.Next(s.rec.Ready)
		if !ok {
			return
		}
		s.log.Debug("event", "kind", ev.Kind, "pane", ev.Pane, "seq", ev.Seq, "id", ev.ID)
		acts, err := s.rec.Handle(ev)
		s.report(err)
		for _, a := range acts {
			s.execute(a)
		}
	}
}

// release wakes Sync callers once nothing is queued or in flight.
func (s *Session) release() {
	if len(s.waiters) == 0 || s.inflight > 0 || !s.seq.Empty() {
		return
	}
	for _, w := range s.waiters {
		close(w)
	}
	s.waiters = nil
}

func (s *Session) report(err error) {
	if err == nil {
		return
	}
	if errors.Is(err, reconcile.ErrStalePane) {
		s.log.Debug("dropped", "err", err)
		return
	}
	s.log.Warn("sync error", "err", err)
	if s.onError != nil {
		s.onError(err)
	}
}

// execute starts an outbound call. Its predicted echo is registered before
// the call so that an echo racing the acknowledgement is still recognized.
func (s *Session) execute(a reconcile.Action) {
	switch a.Kind {
	case reconcile.ActEngineAttach:
		s.seq.Route(a.Ref, a.Pane)
	case reconcile.ActEngineDetach:
		s.seq.Unroute(a.Ref)
		s.seq.Forget(a.Pane)
	}
	if kind, want, ok := echoOf(a); ok {
		s.seq.Expect(a.Pane, kind, want, a.Gen)
	}
	s.log.Debug("update", "action", a.String(), "gen", a.Gen)

	ctx := s.callCtx
	s.inflight++
	s.calls.Add(1)
	go func() {
		defer s.calls.Done()
		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if d := s.cfg.Sync.AckTimeout; d > 0 {
			callCtx, cancel = context.WithTimeout(ctx, d)
		}
		err := s.call(callCtx, a)
		cancel()

		select {
		case s.results <- result{action: a, err: err}:
		case <-ctx.Done():
		}
	}()
}

func (s *Session) call(ctx context.Context, a reconcile.Action) error {
	switch a.Kind {
	case reconcile.ActEngineAttach:
		return s.engine.Attach(ctx, a.Ref, a.DocumentID, a.Text)
	case reconcile.ActEngineDetach:
		return s.engine.Detach(ctx, a.Ref)
	case reconcile.ActEngineSetCursor:
		return s.engine.SetCursor(ctx, a.Ref, a.EnginePos)
	case reconcile.ActEngineSetViewport:
		if s.viewporter == nil {
			return fmt.Errorf("engine does not support viewports")
		}
		return s.viewporter.SetViewport(ctx, a.Ref, a.TopLine, a.Height)
	case reconcile.ActHostSetCursor:
		return s.host.SetCursor(ctx, a.Pane, a.HostPos)
	case reconcile.ActHostReveal:
		return s.host.RevealRange(ctx, a.Pane, a.Range)
	case reconcile.ActHostApplyEdits:
		return s.host.ApplyEdits(ctx, a.Pane, a.Edits)
	default:
		return fmt.Errorf("unknown action %s", a.Kind)
	}
}

// echoOf predicts the inbound event an action causes on the receiving side.
func echoOf(a reconcile.Action) (sequencer.Kind, sequencer.Event, bool) {
	switch a.Kind {
	case reconcile.ActEngineSetCursor:
		return sequencer.KindEngineCursor, sequencer.Event{EnginePos: a.EnginePos}, true
	case reconcile.ActEngineSetViewport:
		return sequencer.KindEngineScroll, sequencer.Event{TopLine: a.TopLine}, true
	case reconcile.ActHostSetCursor:
		return sequencer.KindHostCursor, sequencer.Event{HostPos: a.HostPos}, true
	case reconcile.ActHostReveal:
		return sequencer.KindHostScroll, sequencer.Event{Range: a.Range}, true
	default:
		return 0, sequencer.Event{}, false
	}
}

// do runs fn on the loop goroutine.
func (s *Session) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	select {
	case s.requests <- func() { fn(); close(done) }:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopped:
		return ErrStopped
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopped:
		return ErrStopped
	}
}

// Sync blocks until every queued event is handled and no outbound call is in
// flight. It needs a running session.
func (s *Session) Sync(ctx context.Context) error {
	idle := make(chan struct{})
	if err := s.do(ctx, func() { s.waiters = append(s.waiters, idle) }); err != nil {
		return err
	}
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopped:
		return ErrStopped
	}
}

// Panes returns a snapshot of every attached pane in opening order.
func (s *Session) Panes(ctx context.Context) ([]pane.Snapshot, error) {
	var out []pane.Snapshot
	err := s.do(ctx, func() { out = s.rec.Registry().Snapshots() })
	return out, err
}

// Pane returns the snapshot of one pane.
func (s *Session) Pane(ctx context.Context, id pane.ID) (pane.Snapshot, bool, error) {
	var (
		out pane.Snapshot
		ok  bool
	)
	err := s.do(ctx, func() {
		var p *pane.Pane
		if p, ok = s.rec.Registry().Get(id); ok {
			out = p.Snapshot(s.rec.Registry().IsFocused(id))
		}
	})
	return out, ok, err
}

// Close detaches every pane from the engine and waits for the detaches.
func (s *Session) Close(ctx context.Context) error {
	err := s.do(ctx, func() {
		for _, a := range s.rec.DetachAll() {
			s.seq.Discard(a.Pane)
			s.execute(a)
		}
	})
	if err != nil {
		return err
	}
	return s.Sync(ctx)
}
