package position

import (
	"errors"
	"fmt"
)

// Host is a 0-based host editor position.
type Host struct {
	Line int
	Col  int
}

func (p Host) String() string { return fmt.Sprintf("[%d,%d]", p.Line, p.Col) }

// Engine is a 1-based engine position.
type Engine struct {
	Line int
	Col  int
}

func (p Engine) String() string { return fmt.Sprintf("(%d,%d)", p.Line, p.Col) }

// Lines is the read-only view of a document the translator clamps against.
// Line indexes are 0-based.
type Lines interface {
	LineCount() int
	LineLen(line int) int
}

// ErrOutOfRange matches every *OutOfRangeError.
var ErrOutOfRange = errors.New("position: line out of range")

// OutOfRangeError reports a line outside the document. Line is expressed in
// the coordinate system of the input position.
type OutOfRangeError struct {
	Line      int
	LineCount int
	Engine    bool
}

func (e *OutOfRangeError) Error() string {
	side := "host"
	if e.Engine {
		side = "engine"
	}
	return fmt.Sprintf("position: %s line %d outside document of %d lines", side, e.Line, e.LineCount)
}

func (e *OutOfRangeError) Is(target error) bool { return target == ErrOutOfRange }

// ToEngine converts a host position. Columns past the end of the line (or
// negative) clamp to the line; lines outside the document fail.
func ToEngine(p Host, doc Lines) (Engine, error) {
	n := doc.LineCount()
	if p.Line < 0 || p.Line >= n {
		return Engine{}, &OutOfRangeError{Line: p.Line, LineCount: n}
	}
	col := clampCol(p.Col, doc.LineLen(p.Line))
	return Engine{Line: p.Line + 1, Col: col + 1}, nil
}

// ToHost converts an engine position with the same clamping rules as ToEngine.
func ToHost(p Engine, doc Lines) (Host, error) {
	n := doc.LineCount()
	if p.Line < 1 || p.Line > n {
		return Host{}, &OutOfRangeError{Line: p.Line, LineCount: n, Engine: true}
	}
	col := clampCol(p.Col-1, doc.LineLen(p.Line-1))
	return Host{Line: p.Line - 1, Col: col}, nil
}

// ReclampHost moves a host position's line back into the document. It is the
// caller-side recovery for ErrOutOfRange; the column is left for ToEngine to
// clamp.
func ReclampHost(p Host, doc Lines) Host {
	p.Line = clampLine(p.Line, doc.LineCount())
	return p
}

// ReclampEngine is ReclampHost for engine positions.
func ReclampEngine(p Engine, doc Lines) Engine {
	p.Line = clampLine(p.Line-1, doc.LineCount()) + 1
	return p
}

// HostToEngine converts p, re-clamping the line once when it falls outside
// the document. It only fails for documents without lines.
func HostToEngine(p Host, doc Lines) (Engine, error) {
	ep, err := ToEngine(p, doc)
	if errors.Is(err, ErrOutOfRange) {
		return ToEngine(ReclampHost(p, doc), doc)
	}
	return ep, err
}

// EngineToHost is the engine-side counterpart of HostToEngine.
func EngineToHost(p Engine, doc Lines) (Host, error) {
	hp, err := ToHost(p, doc)
	if errors.Is(err, ErrOutOfRange) {
		return ToHost(ReclampEngine(p, doc), doc)
	}
	return hp, err
}

func clampCol(col, lineLen int) int {
	if lineLen < 0 {
		lineLen = 0
	}
	if col < 0 {
		return 0
	}
	if col > lineLen {
		return lineLen
	}
	return col
}

func clampLine(line, count int) int {
	if count <= 0 || line < 0 {
		return 0
	}
	if line >= count {
		return count - 1
	}
	return line
}
