package buffer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/iw2rmb/modalsync/internal/grapheme"
)

// ErrStaleVersion is returned by ApplyRemote when the reported version does
// not advance past the last one applied.
var ErrStaleVersion = errors.New("buffer: stale remote version")

// Apply applies a sequence of host-side text edits in order. Each edit's range
// is interpreted against the buffer state at the time that edit is applied.
//
// Edit ranges are clamped into current document bounds. An empty range with
// non-empty text inserts.
func (b *Buffer) Apply(edits ...TextEdit) (Change, bool) {
	return b.apply(ChangeSourceHost, edits)
}

// ApplyRemote applies edits reported by the engine together with the engine's
// buffer version after the edits. Versions must strictly increase; a report
// at or below the last applied version is rejected with ErrStaleVersion and
// leaves the content untouched.
func (b *Buffer) ApplyRemote(version uint64, edits []TextEdit) (Change, error) {
	if version <= b.remoteVersion {
		return Change{}, fmt.Errorf("%w: got %d, have %d", ErrStaleVersion, version, b.remoteVersion)
	}
	b.remoteVersion = version
	ch, changed := b.apply(ChangeSourceEngine, edits)
	if !changed {
		return Change{RemoteVersion: version, Source: ChangeSourceEngine}, nil
	}
	return ch, nil
}

func (b *Buffer) apply(source ChangeSource, edits []TextEdit) (Change, bool) {
	if len(edits) == 0 {
		return Change{}, false
	}

	change := b.beginChange(source)
	anyChanged := false
	for _, e := range edits {
		applied, changed := b.replaceRange(e.Range, e.Text)
		if !changed {
			continue
		}
		anyChanged = true
		change.addAppliedEdit(applied)
	}
	if !anyChanged {
		return Change{}, false
	}

	b.version++
	return b.commitChange(change)
}

func (b *Buffer) replaceRange(r Range, text string) (applied AppliedEdit, changed bool) {
	r = NormalizeRange(ClampRange(r, len(b.lines), b.LineLen))
	if r.IsEmpty() && text == "" {
		return AppliedEdit{}, false
	}

	deletedText := textForLinesRange(b.lines, r)
	if deletedText == text {
		return AppliedEdit{}, false
	}

	startRow, startCol := r.Start.Row, r.Start.Col
	endRow, endCol := r.End.Row, r.End.Col

	prefix := append([]string(nil), b.lines[startRow][:startCol]...)
	suffix := append([]string(nil), b.lines[endRow][endCol:]...)

	parts := strings.Split(text, "\n")
	ins := make([][]string, 0, len(parts))
	for _, p := range parts {
		ins = append(ins, grapheme.Split(p))
	}

	var end Pos
	repl := make([][]string, 0, len(ins))
	if len(ins) == 1 {
		line := make([]string, 0, len(prefix)+len(ins[0])+len(suffix))
		line = append(line, prefix...)
		line = append(line, ins[0]...)
		line = append(line, suffix...)
		repl = append(repl, line)
		end = Pos{Row: startRow, Col: len(prefix) + len(ins[0])}
	} else {
		first := make([]string, 0, len(prefix)+len(ins[0]))
		first = append(first, prefix...)
		first = append(first, ins[0]...)
		repl = append(repl, first)

		for i := 1; i < len(ins)-1; i++ {
			repl = append(repl, append([]string(nil), ins[i]...))
		}

		lastPart := ins[len(ins)-1]
		last := make([]string, 0, len(lastPart)+len(suffix))
		last = append(last, lastPart...)
		last = append(last, suffix...)
		repl = append(repl, last)

		end = Pos{Row: startRow + len(ins) - 1, Col: len(lastPart)}
	}

	before := b.lines[:startRow]
	after := b.lines[endRow+1:]
	out := make([][]string, 0, len(before)+len(repl)+len(after))
	out = append(out, before...)
	out = append(out, repl...)
	out = append(out, after...)
	if len(out) == 0 {
		out = [][]string{nil}
	}

	b.lines = out
	return AppliedEdit{
		RangeBefore: r,
		RangeAfter:  Range{Start: r.Start, End: end},
		InsertText:  text,
		DeletedText: deletedText,
	}, true
}

func textForLinesRange(lines [][]string, r Range) string {
	r = NormalizeRange(r)
	if r.IsEmpty() {
		return ""
	}

	startRow, startCol := r.Start.Row, r.Start.Col
	endRow, endCol := r.End.Row, r.End.Col

	if startRow == endRow {
		return strings.Join(lines[startRow][startCol:endCol], "")
	}

	var sb strings.Builder
	for row := startRow; row <= endRow; row++ {
		if row > startRow {
			sb.WriteByte('\n')
		}
		partStart := 0
		partEnd := len(lines[row])
		if row == startRow {
			partStart = startCol
		}
		if row == endRow {
			partEnd = endCol
		}
		sb.WriteString(strings.Join(lines[row][partStart:partEnd], ""))
	}
	return sb.String()
}
