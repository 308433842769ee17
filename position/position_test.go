package position_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/iw2rmb/modalsync/buffer"
	"github.com/iw2rmb/modalsync/position"
)

type lineLens []int

func (l lineLens) LineCount() int { return len(l) }

func (l lineLens) LineLen(line int) int {
	if line < 0 || line >= len(l) {
		return 0
	}
	return l[line]
}

func TestToEngine_ShiftsToOneBased(t *testing.T) {
	doc := buffer.New("declare function test(a: number): void;\n\ntest(\"\")\n")

	got, err := position.ToEngine(position.Host{Line: 2, Col: 1}, doc)
	require.NoError(t, err)
	assert.Equal(t, position.Engine{Line: 3, Col: 2}, got)

	got, err = position.ToEngine(position.Host{Line: 0, Col: 17}, doc)
	require.NoError(t, err)
	assert.Equal(t, position.Engine{Line: 1, Col: 18}, got)
}

func TestConversions_ClampColumns(t *testing.T) {
	doc := lineLens{3, 0}

	ep, err := position.ToEngine(position.Host{Line: 0, Col: 10}, doc)
	require.NoError(t, err)
	assert.Equal(t, position.Engine{Line: 1, Col: 4}, ep)

	ep, err = position.ToEngine(position.Host{Line: 1, Col: -4}, doc)
	require.NoError(t, err)
	assert.Equal(t, position.Engine{Line: 2, Col: 1}, ep)

	hp, err := position.ToHost(position.Engine{Line: 1, Col: 99}, doc)
	require.NoError(t, err)
	assert.Equal(t, position.Host{Line: 0, Col: 3}, hp)

	hp, err = position.ToHost(position.Engine{Line: 2, Col: 0}, doc)
	require.NoError(t, err)
	assert.Equal(t, position.Host{Line: 1, Col: 0}, hp)
}

func TestConversions_RejectLinesOutsideDocument(t *testing.T) {
	doc := lineLens{3, 0}

	_, err := position.ToEngine(position.Host{Line: 2}, doc)
	require.ErrorIs(t, err, position.ErrOutOfRange)
	var oor *position.OutOfRangeError
	require.True(t, errors.As(err, &oor))
	assert.Equal(t, 2, oor.Line)
	assert.Equal(t, 2, oor.LineCount)
	assert.False(t, oor.Engine)

	_, err = position.ToHost(position.Engine{Line: 0, Col: 1}, doc)
	require.ErrorIs(t, err, position.ErrOutOfRange)
	_, err = position.ToHost(position.Engine{Line: 3, Col: 1}, doc)
	require.ErrorIs(t, err, position.ErrOutOfRange)
}

func TestReclampThenRetry(t *testing.T) {
	doc := lineLens{5, 2}

	ep, err := position.HostToEngine(position.Host{Line: 40, Col: 4}, doc)
	require.NoError(t, err)
	assert.Equal(t, position.Engine{Line: 2, Col: 3}, ep)

	hp, err := position.EngineToHost(position.Engine{Line: -3, Col: 2}, doc)
	require.NoError(t, err)
	assert.Equal(t, position.Host{Line: 0, Col: 1}, hp)

	_, err = position.HostToEngine(position.Host{}, lineLens{})
	require.ErrorIs(t, err, position.ErrOutOfRange)
}

func TestRoundTrip_InBounds(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		doc := lineLens(rapid.SliceOfN(rapid.IntRange(0, 120), 1, 40).Draw(t, "lines"))
		line := rapid.IntRange(0, len(doc)-1).Draw(t, "line")
		col := rapid.IntRange(0, doc[line]).Draw(t, "col")
		hp := position.Host{Line: line, Col: col}

		ep, err := position.ToEngine(hp, doc)
		if err != nil {
			t.Fatalf("ToEngine(%v): %v", hp, err)
		}
		back, err := position.ToHost(ep, doc)
		if err != nil {
			t.Fatalf("ToHost(%v): %v", ep, err)
		}
		if back != hp {
			t.Fatalf("host round trip: %v -> %v -> %v", hp, ep, back)
		}

		ep2 := position.Engine{Line: line + 1, Col: col + 1}
		hp2, err := position.ToHost(ep2, doc)
		if err != nil {
			t.Fatalf("ToHost(%v): %v", ep2, err)
		}
		again, err := position.ToEngine(hp2, doc)
		if err != nil {
			t.Fatalf("ToEngine(%v): %v", hp2, err)
		}
		if again != ep2 {
			t.Fatalf("engine round trip: %v -> %v -> %v", ep2, hp2, again)
		}
	})
}

func TestClampedColumnsAreStable(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		doc := lineLens(rapid.SliceOfN(rapid.IntRange(0, 50), 1, 20).Draw(t, "lines"))
		line := rapid.IntRange(0, len(doc)-1).Draw(t, "line")
		col := rapid.IntRange(-20, 200).Draw(t, "col")

		ep, err := position.ToEngine(position.Host{Line: line, Col: col}, doc)
		if err != nil {
			t.Fatalf("ToEngine: %v", err)
		}
		if ep.Col < 1 || ep.Col > doc[line]+1 {
			t.Fatalf("engine col %d outside [1,%d]", ep.Col, doc[line]+1)
		}
		hp, err := position.ToHost(ep, doc)
		if err != nil {
			t.Fatalf("ToHost: %v", err)
		}
		if again, _ := position.ToEngine(hp, doc); again != ep {
			t.Fatalf("clamped position not a fixed point: %v -> %v -> %v", ep, hp, again)
		}
	})
}
