// Package sequencer serializes host and engine events into per-pane queues.
//
// Producers on either side push events concurrently. The sequencer keeps each
// source's order per pane, collapses bursts of state events, lets engine
// cursor state win over host cursor state observed in the same window, and
// drops events that are echoes of updates the session itself sent.
package sequencer

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/iw2rmb/modalsync/pane"
	"github.com/iw2rmb/modalsync/position"
)

// Verdict is what Push did with an event.
type Verdict uint8

const (
	Queued Verdict = iota
	Coalesced
	SelfEcho
	Stale
)

func (v Verdict) String() string {
	switch v {
	case Queued:
		return "queued"
	case Coalesced:
		return "coalesced"
	case SelfEcho:
		return "self-echo"
	case Stale:
		return "stale"
	default:
		return "unknown"
	}
}

type Options struct {
	// EchoGrace is how long a predicted echo stays valid.
	EchoGrace time.Duration
	Now       func() time.Time
}

// Stats counts what happened to pushed events.
type Stats struct {
	Queued     uint64
	Coalesced  uint64
	Echoes     uint64
	Stale      uint64
	Superseded uint64
}

type prediction struct {
	gen uint64
	ev  Event
	at  time.Time
}

type Sequencer struct {
	mu  sync.Mutex
	opt Options
	seq uint64

	queues      map[pane.ID][]Event
	routes      map[pane.EngineRef]pane.ID
	predictions map[pane.ID]map[Kind][]prediction
	// overridden holds the newest host cursor dropped by the tie-break until
	// the engine cursor event that won is popped.
	overridden map[pane.ID]position.Host
	stats      Stats

	notify chan struct{}
}

func New(opt Options) *Sequencer {
	if opt.Now == nil {
		opt.Now = time.Now
	}
	return &Sequencer{
		opt:         opt,
		queues:      make(map[pane.ID][]Event),
		routes:      make(map[pane.EngineRef]pane.ID),
		predictions: make(map[pane.ID]map[Kind][]prediction),
		overridden:  make(map[pane.ID]position.Host),
		notify:      make(chan struct{}, 1),
	}
}

// Notify receives a value after pushes; several pushes may share one value.
func (s *Sequencer) Notify() <-chan struct{} { return s.notify }

// Route maps an engine window to its pane so engine events join the pane's
// queue. Engine events for unrouted refs are stale.
func (s *Sequencer) Route(ref pane.EngineRef, id pane.ID) {
	s.mu.Lock()
	s.routes[ref] = id
	s.mu.Unlock()
}

func (s *Sequencer) Unroute(ref pane.EngineRef) {
	s.mu.Lock()
	delete(s.routes, ref)
	s.mu.Unlock()
}

// Push enqueues ev. It is safe to call from any goroutine.
func (s *Sequencer) Push(ev Event) Verdict {
	s.mu.Lock()
	v := s.push(ev)
	s.mu.Unlock()

	if v == Queued || v == Coalesced {
		select {
		case s.notify <- struct{}{}:
		default:
		}
	}
	return v
}

func (s *Sequencer) push(ev Event) Verdict {
	now := s.opt.Now()
	if ev.Source() == SourceEngine {
		id, ok := s.routes[ev.Ref]
		if !ok {
			s.stats.Stale++
			return Stale
		}
		ev.Pane = id
	}
	if s.isEcho(ev, now) {
		s.stats.Echoes++
		return SelfEcho
	}

	ev.At = now
	if ev.ID == (ulid.ULID{}) {
		ev.ID = ulid.Make()
	}

	q := s.queues[ev.Pane]
	if ev.Kind.Coalescable() {
		for i := len(q) - 1; i >= 0; i-- {
			if q[i].Source() != ev.Source() {
				continue
			}
			if q[i].Kind == ev.Kind {
				ev.Seq = q[i].Seq
				q[i] = ev
				s.stats.Coalesced++
				return Coalesced
			}
			break
		}
	}

	s.seq++
	ev.Seq = s.seq
	s.queues[ev.Pane] = append(q, ev)
	s.stats.Queued++
	return Queued
}

// Expect records the echo an outbound update is predicted to produce: an
// inbound event of kind for pane carrying the same value as want. gen is the
// update's generation.
func (s *Sequencer) Expect(id pane.ID, kind Kind, want Event, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byKind, ok := s.predictions[id]
	if !ok {
		byKind = make(map[Kind][]prediction)
		s.predictions[id] = byKind
	}
	now := s.opt.Now()
	byKind[kind] = append(s.live(byKind[kind], now), prediction{gen: gen, ev: want, at: now})
}

// live drops expired predictions in place.
func (s *Sequencer) live(preds []prediction, now time.Time) []prediction {
	out := preds[:0]
	for _, p := range preds {
		if now.Sub(p.at) <= s.opt.EchoGrace {
			out = append(out, p)
		}
	}
	clear(preds[len(out):])
	return out
}

// isEcho consumes the oldest unexpired prediction matching ev, together with
// every older prediction of the same kind. Expired predictions are dropped.
func (s *Sequencer) isEcho(ev Event, now time.Time) bool {
	byKind, ok := s.predictions[ev.Pane]
	if !ok {
		return false
	}
	preds := byKind[ev.Kind]
	if len(preds) == 0 {
		return false
	}

	live := s.live(preds, now)
	for i, p := range live {
		if sameValue(ev.Kind, p.ev, ev) {
			byKind[ev.Kind] = append([]prediction(nil), live[i+1:]...)
			return true
		}
	}
	byKind[ev.Kind] = live
	return false
}

// Next pops the oldest dispatchable event. A pane is dispatchable when ready
// reports true for it. Urgent events are dispatched from panes that are not
// ready; a host close drops whatever was queued before it.
//
// Host cursor events that share a pane's queue with an engine cursor event
// are dropped: the engine owns the cursor. The newest dropped host position
// travels on the engine cursor event (HostOverridden, OverriddenHost) so the
// host can be moved back to the engine's cursor.
func (s *Sequencer) Next(ready func(pane.ID) bool) (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		id, idx, ok := s.pick(ready)
		if !ok {
			return Event{}, false
		}

		q := s.queues[id]
		ev := q[idx]
		var rest []Event
		if ev.Kind != KindHostClosed {
			rest = append(rest, q[:idx]...)
		} else {
			delete(s.overridden, id)
		}
		rest = append(rest, q[idx+1:]...)

		if ev.Kind == KindHostCursor && hasKind(rest, KindEngineCursor) {
			s.stats.Superseded++
			s.overridden[id] = ev.HostPos
			s.store(id, rest)
			continue
		}
		if ev.Kind == KindEngineCursor {
			if hp, ok := s.overridden[id]; ok {
				ev.OverriddenHost, ev.HostOverridden = hp, true
				delete(s.overridden, id)
			}
			kept := rest[:0]
			for _, e := range rest {
				if e.Kind != KindHostCursor {
					kept = append(kept, e)
					continue
				}
				s.stats.Superseded++
				ev.OverriddenHost, ev.HostOverridden = e.HostPos, true
			}
			rest = kept
		}
		s.store(id, rest)
		return ev, true
	}
}

func (s *Sequencer) pick(ready func(pane.ID) bool) (pane.ID, int, bool) {
	var (
		best    pane.ID
		bestIdx int
		bestSeq uint64
		found   bool
	)
	for id, q := range s.queues {
		if len(q) == 0 {
			continue
		}
		idx := 0
		if ready != nil && !ready(id) {
			idx = indexOfUrgent(q)
			if idx < 0 {
				continue
			}
		}
		if !found || q[idx].Seq < bestSeq {
			best, bestIdx, bestSeq, found = id, idx, q[idx].Seq, true
		}
	}
	return best, bestIdx, found
}

func (s *Sequencer) store(id pane.ID, q []Event) {
	if len(q) == 0 {
		delete(s.queues, id)
		return
	}
	s.queues[id] = q
}

// Discard drops a pane's queued events and predictions.
func (s *Sequencer) Discard(id pane.ID) {
	s.mu.Lock()
	delete(s.queues, id)
	delete(s.predictions, id)
	delete(s.overridden, id)
	s.mu.Unlock()
}

// Forget drops a pane's echo predictions and keeps its queue.
func (s *Sequencer) Forget(id pane.ID) {
	s.mu.Lock()
	delete(s.predictions, id)
	s.mu.Unlock()
}

// Len returns the number of queued events for a pane.
func (s *Sequencer) Len(id pane.ID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queues[id])
}

// Empty reports whether no events are queued for any pane.
func (s *Sequencer) Empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queues) == 0
}

func (s *Sequencer) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func indexOfKind(q []Event, k Kind) int {
	for i, ev := range q {
		if ev.Kind == k {
			return i
		}
	}
	return -1
}

func indexOfUrgent(q []Event) int {
	for i, ev := range q {
		if ev.Kind.Urgent() {
			return i
		}
	}
	return -1
}

func hasKind(q []Event, k Kind) bool { return indexOfKind(q, k) >= 0 }
