// Package viewport maps engine scroll state to host visible ranges.
//
// The host owns scrolling. The mapper only asks the host to move when the
// authoritative cursor leaves the visible range shrunk by Margin lines on each
// side, so cursor moves inside the window never cause a scroll.
package viewport

import "fmt"

// Range is an inclusive span of 0-based host lines.
type Range struct {
	Start int
	End   int
}

func (r Range) String() string { return fmt.Sprintf("[%d..%d]", r.Start, r.End) }

// Height returns the number of lines in r, at least 1.
func (r Range) Height() int {
	if r.End < r.Start {
		return 1
	}
	return r.End - r.Start + 1
}

func (r Range) Contains(line int) bool { return line >= r.Start && line <= r.End }

// Mapper applies the scroll policy. The zero value uses no margin.
type Mapper struct {
	Margin int
}

// EngineScrollToHostRange converts the engine's 1-based top line and pane
// height into the host range it shows.
func (m Mapper) EngineScrollToHostRange(topLine, paneHeight int) Range {
	if paneHeight < 1 {
		paneHeight = 1
	}
	start := topLine - 1
	if start < 0 {
		start = 0
	}
	return Range{Start: start, End: start + paneHeight - 1}
}

// HostRangeToEngineScroll is the inverse of EngineScrollToHostRange.
func (m Mapper) HostRangeToEngineScroll(r Range) (topLine, height int) {
	start := r.Start
	if start < 0 {
		start = 0
	}
	return start + 1, r.Height()
}

// margin returns the effective margin for a window of the given height. It
// never exceeds half of the window so a cursor always has somewhere to rest.
func (m Mapper) margin(height int) int {
	mg := m.Margin
	if mg < 0 {
		mg = 0
	}
	if limit := (height - 1) / 2; mg > limit {
		mg = limit
	}
	return mg
}

// window returns the cursor band [lo, hi] that needs no scrolling. Margins
// collapse at the document edges: a range starting at line 0 cannot scroll
// further up, and one reaching the last line cannot scroll further down.
func (m Mapper) window(visible Range, lineCount int) (lo, hi int) {
	mg := m.margin(visible.Height())
	lo, hi = visible.Start+mg, visible.End-mg
	if visible.Start <= 0 {
		lo = visible.Start
	}
	if lineCount > 0 && visible.End >= lineCount-1 {
		hi = visible.End
	}
	return lo, hi
}

// NeedsReveal reports whether the cursor line falls outside
// [visible.Start+Margin, visible.End-Margin].
func (m Mapper) NeedsReveal(cursorLine int, visible Range, lineCount int) bool {
	lo, hi := m.window(visible, lineCount)
	return cursorLine < lo || cursorLine > hi
}

// Follow returns the smallest scroll of visible that brings cursorLine back
// inside the margin band, keeping the height. ok is false when no scroll is
// needed.
func (m Mapper) Follow(cursorLine int, visible Range, lineCount int) (next Range, ok bool) {
	if !m.NeedsReveal(cursorLine, visible, lineCount) {
		return visible, false
	}

	h := visible.Height()
	mg := m.margin(h)
	lo, _ := m.window(visible, lineCount)

	var start int
	if cursorLine < lo {
		start = cursorLine - mg
	} else {
		end := cursorLine + mg
		if lineCount > 0 && end > lineCount-1 {
			end = lineCount - 1
		}
		start = end - h + 1
	}
	if start < 0 {
		start = 0
	}

	next = Range{Start: start, End: start + h - 1}
	return next, next != visible
}
