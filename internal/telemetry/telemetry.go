// Package telemetry builds the session logger: a log/slog logger whose
// records are kept in a bounded in-memory history and optionally written to
// a text or JSON handler.
package telemetry

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/iw2rmb/modalsync/config"
)

// Entry is one recorded log record.
type Entry struct {
	Time    time.Time
	Level   slog.Level
	Message string
	Attrs   map[string]string
}

// Attr returns the value of a recorded attribute. Grouped attributes use
// dotted keys.
func (e Entry) Attr(key string) string { return e.Attrs[key] }

type store struct {
	mu      sync.RWMutex
	entries []Entry
	max     int
}

// Recorder is a slog.Handler keeping the last records in a ring. Handlers
// derived with WithAttrs or WithGroup share the ring.
type Recorder struct {
	store  *store
	level  slog.Leveler
	next   slog.Handler
	attrs  []slog.Attr
	groups []string
}

// NewRecorder keeps up to max entries (1000 when max <= 0) at or above level
// and forwards every record it accepts to next, if non-nil.
func NewRecorder(max int, level slog.Leveler, next slog.Handler) *Recorder {
	if max <= 0 {
		max = 1000
	}
	if level == nil {
		level = slog.LevelInfo
	}
	return &Recorder{
		store: &store{entries: make([]Entry, 0, max), max: max},
		level: level,
		next:  next,
	}
}

func (h *Recorder) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *Recorder) Handle(ctx context.Context, record slog.Record) error {
	attrs := make(map[string]string, len(h.attrs)+record.NumAttrs())
	prefix := strings.Join(h.groups, ".")
	for _, a := range h.attrs {
		addAttr(attrs, "", a)
	}
	record.Attrs(func(a slog.Attr) bool {
		addAttr(attrs, prefix, a)
		return true
	})

	h.store.add(Entry{
		Time:    record.Time,
		Level:   record.Level,
		Message: record.Message,
		Attrs:   attrs,
	})

	if h.next != nil && h.next.Enabled(ctx, record.Level) {
		return h.next.Handle(ctx, record)
	}
	return nil
}

func addAttr(dst map[string]string, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	key := a.Key
	if prefix != "" {
		key = prefix + "." + key
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			addAttr(dst, key, ga)
		}
		return
	}
	dst[key] = a.Value.String()
}

func (h *Recorder) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	out := *h
	prefix := strings.Join(h.groups, ".")
	out.attrs = append([]slog.Attr(nil), h.attrs...)
	for _, a := range attrs {
		if prefix != "" {
			a = slog.Group(prefix, a)
		}
		out.attrs = append(out.attrs, a)
	}
	if h.next != nil {
		out.next = h.next.WithAttrs(attrs)
	}
	return &out
}

func (h *Recorder) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	out := *h
	out.groups = append(append([]string(nil), h.groups...), name)
	if h.next != nil {
		out.next = h.next.WithGroup(name)
	}
	return &out
}

func (s *store) add(e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	if len(s.entries) > s.max {
		s.entries = s.entries[1:]
	}
}

// Entries returns a copy of the recorded entries, oldest first.
func (h *Recorder) Entries() []Entry {
	h.store.mu.RLock()
	defer h.store.mu.RUnlock()
	out := make([]Entry, len(h.store.entries))
	copy(out, h.store.entries)
	return out
}

// Recent returns the last n entries.
func (h *Recorder) Recent(n int) []Entry {
	all := h.Entries()
	if n <= 0 || n > len(all) {
		return all
	}
	return all[len(all)-n:]
}

// Find returns recorded entries with the given message.
func (h *Recorder) Find(msg string) []Entry {
	var out []Entry
	for _, e := range h.Entries() {
		if e.Message == msg {
			out = append(out, e)
		}
	}
	return out
}

// NewLogger builds a logger from cfg. Records are kept in the returned
// Recorder and, when w is non-nil, written to w in cfg.Format.
func NewLogger(cfg config.LogConfig, w io.Writer) (*slog.Logger, *Recorder, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, nil, err
	}

	var next slog.Handler
	if w != nil {
		opts := &slog.HandlerOptions{Level: level}
		if strings.EqualFold(cfg.Format, "json") {
			next = slog.NewJSONHandler(w, opts)
		} else {
			next = slog.NewTextHandler(w, opts)
		}
	}

	rec := NewRecorder(cfg.History, level, next)
	return slog.New(rec), rec, nil
}
