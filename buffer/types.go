package buffer

import "fmt"

// Pos points into a document by (row, col), col counted in grapheme
// clusters. Both are 0-based.
type Pos struct {
	Row int
	Col int
}

func (p Pos) String() string { return fmt.Sprintf("%d:%d", p.Row, p.Col) }

// Before reports whether p sorts strictly before q in document order.
func (p Pos) Before(q Pos) bool {
	return p.Row < q.Row || (p.Row == q.Row && p.Col < q.Col)
}

// Range is a half-open span [Start, End).
type Range struct {
	Start Pos
	End   Pos
}

// TextEdit replaces the text in Range with Text (which may contain '\n').
// Engine buffer-change reports and host apply-edits calls carry these.
type TextEdit struct {
	Range Range
	Text  string
}

// NormalizeRange orders r so that Start is not after End.
func NormalizeRange(r Range) Range {
	if r.End.Before(r.Start) {
		return Range{Start: r.End, End: r.Start}
	}
	return r
}

func (r Range) IsEmpty() bool { return r.Start == r.End }

// ClampPos clamps p into a document of rowCount rows (at least one) whose
// row lengths are reported by lineLen.
func ClampPos(p Pos, rowCount int, lineLen func(row int) int) Pos {
	rowCount = max(rowCount, 1)
	row := min(max(p.Row, 0), rowCount-1)
	maxCol := 0
	if lineLen != nil {
		maxCol = max(lineLen(row), 0)
	}
	return Pos{Row: row, Col: min(max(p.Col, 0), maxCol)}
}

func ClampRange(r Range, rowCount int, lineLen func(row int) int) Range {
	return Range{
		Start: ClampPos(r.Start, rowCount, lineLen),
		End:   ClampPos(r.End, rowCount, lineLen),
	}
}
