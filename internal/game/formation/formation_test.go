package formation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voidecho/voidecho-server-go/internal/game/state"
)

func TestEveryFactionHasNineCells(t *testing.T) {
	table := NewTable()
	for _, f := range state.Factions {
		mask, ok := table.Mask(f)
		require.True(t, ok, "faction %s missing", f)

		valid := 0
		for r := 0; r < state.Rows; r++ {
			for c := 0; c < state.Cols; c++ {
				pos := state.Position{Row: r, Col: c}
				got := table.IsValidPosition(f, pos)
				if got != mask[r][c] {
					t.Fatalf("%s %s: IsValidPosition=%v mask=%v", f, pos, got, mask[r][c])
				}
				if got {
					valid++
				}
			}
		}
		if valid != 9 {
			t.Errorf("%s: expected 9 valid cells, got %d", f, valid)
		}
		assert.Len(t, table.Positions(f), 9)
	}
}

func TestShapesAreDistinct(t *testing.T) {
	table := NewTable()
	seen := make(map[string]state.Faction)
	for _, f := range state.Factions {
		m, _ := table.Mask(f)
		if other, dup := seen[m.String()]; dup {
			t.Fatalf("%s shares its formation with %s", f, other)
		}
		seen[m.String()] = f
	}
}

func TestOutOfBoundsAndUnknownFaction(t *testing.T) {
	table := NewTable()
	assert.False(t, table.IsValidPosition(state.FactionHumans, state.Position{Row: -1, Col: 0}))
	assert.False(t, table.IsValidPosition(state.FactionHumans, state.Position{Row: 0, Col: 5}))
	assert.False(t, table.IsValidPosition("pirates", state.Position{Row: 0, Col: 0}))
}

func TestParseMaskRejectsBadRows(t *testing.T) {
	_, err := ParseMask([state.Rows]string{"1111", "00000", "00000"})
	assert.Error(t, err)

	_, err = ParseMask([state.Rows]string{"11x11", "00000", "00000"})
	assert.Error(t, err)
}

func TestPositionsReturnsCopy(t *testing.T) {
	table := NewTable()
	p := table.Positions(state.FactionRobots)
	p[0] = state.Position{Row: 2, Col: 0}
	assert.False(t, table.IsValidPosition(state.FactionRobots, state.Position{Row: 2, Col: 0}))
	assert.NotEqual(t, state.Position{Row: 2, Col: 0}, table.Positions(state.FactionRobots)[0])
}
