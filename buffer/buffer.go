package buffer

import (
	"strings"

	"github.com/iw2rmb/modalsync/internal/grapheme"
)

// Buffer is the content a pane is known to show: lines of grapheme clusters
// plus two counters. Version counts effective local mutations; RemoteVersion
// is the last version reported by the engine for this content.
type Buffer struct {
	lines         [][]string
	version       uint64
	remoteVersion uint64

	lastChange    Change
	hasLastChange bool
}

func New(text string) *Buffer {
	return &Buffer{lines: splitLines(text)}
}

func (b *Buffer) Text() string {
	if len(b.lines) == 0 {
		return ""
	}

	var sb strings.Builder
	for i, line := range b.lines {
		if i > 0 {
			sb.WriteByte('\n')
		}
		for _, cluster := range line {
			sb.WriteString(cluster)
		}
	}
	return sb.String()
}

// Lines returns the document split into lines.
func (b *Buffer) Lines() []string {
	out := make([]string, 0, len(b.lines))
	for _, line := range b.lines {
		out = append(out, strings.Join(line, ""))
	}
	return out
}

// Line returns row as a string, or "" when row is outside the document.
func (b *Buffer) Line(row int) string {
	if row < 0 || row >= len(b.lines) {
		return ""
	}
	return strings.Join(b.lines[row], "")
}

func (b *Buffer) Version() uint64 { return b.version }

func (b *Buffer) RemoteVersion() uint64 { return b.remoteVersion }

// LineCount returns the number of logical lines. It is at least 1.
func (b *Buffer) LineCount() int { return len(b.lines) }

// LineLen returns the grapheme length of row, or 0 outside the document.
func (b *Buffer) LineLen(row int) int {
	if row < 0 || row >= len(b.lines) {
		return 0
	}
	return len(b.lines[row])
}

// Reset replaces the whole content, e.g. when a pane is retargeted to a
// different document. Both counters start over.
func (b *Buffer) Reset(text string) {
	b.lines = splitLines(text)
	b.version = 0
	b.remoteVersion = 0
	b.lastChange = Change{}
	b.hasLastChange = false
}

func (b *Buffer) ClampPos(p Pos) Pos {
	return ClampPos(p, len(b.lines), b.LineLen)
}

func splitLines(text string) [][]string {
	parts := strings.Split(text, "\n")
	lines := make([][]string, 0, len(parts))
	for _, s := range parts {
		lines = append(lines, grapheme.Split(s))
	}
	if len(lines) == 0 {
		lines = append(lines, nil)
	}
	return lines
}
