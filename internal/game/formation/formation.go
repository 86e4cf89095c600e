// Package formation holds the per-faction placement masks of the 3x5 board.
package formation

import (
	"fmt"
	"strings"

	"github.com/voidecho/voidecho-server-go/internal/game/state"
)

// Mask marks the cells a faction may place units on.
type Mask [state.Rows][state.Cols]bool

// Count returns the number of placeable cells.
func (m Mask) Count() int {
	n := 0
	for r := range m {
		for c := range m[r] {
			if m[r][c] {
				n++
			}
		}
	}
	return n
}

func (m Mask) String() string {
	var sb strings.Builder
	for r := range m {
		if r > 0 {
			sb.WriteByte('/')
		}
		for c := range m[r] {
			if m[r][c] {
				sb.WriteByte('1')
			} else {
				sb.WriteByte('0')
			}
		}
	}
	return sb.String()
}

// Base game shapes, top row first.
var basePatterns = map[state.Faction][state.Rows]string{
	state.FactionHumans: {"11111", "01110", "00100"},
	state.FactionAliens: {"10101", "01110", "10101"},
	state.FactionRobots: {"01110", "01110", "01110"},
}

// ParseMask reads a mask from one string per row of '0'/'1' runes.
func ParseMask(rows [state.Rows]string) (Mask, error) {
	var m Mask
	for r, row := range rows {
		if len(row) != state.Cols {
			return m, fmt.Errorf("row %d: expected %d cells, got %d", r, state.Cols, len(row))
		}
		for c, ch := range row {
			switch ch {
			case '1':
				m[r][c] = true
			case '0':
			default:
				return m, fmt.Errorf("row %d col %d: invalid cell %q", r, c, ch)
			}
		}
	}
	return m, nil
}

// Table is an immutable lookup of formation masks with positions precomputed
// per faction. It is safe for concurrent use.
type Table struct {
	masks     map[state.Faction]Mask
	positions map[state.Faction][]state.Position
	sets      map[state.Faction]map[state.Position]struct{}
}

// NewTable builds the base game table.
func NewTable() *Table {
	masks := make(map[state.Faction]Mask, len(basePatterns))
	for f, rows := range basePatterns {
		m, err := ParseMask(rows)
		if err != nil {
			panic(fmt.Sprintf("formation: base pattern for %s: %v", f, err))
		}
		masks[f] = m
	}
	t, err := NewTableFrom(masks)
	if err != nil {
		panic(fmt.Sprintf("formation: %v", err))
	}
	return t
}

// NewTableFrom builds a table from explicit masks, one per known faction.
func NewTableFrom(masks map[state.Faction]Mask) (*Table, error) {
	t := &Table{
		masks:     make(map[state.Faction]Mask, len(masks)),
		positions: make(map[state.Faction][]state.Position, len(masks)),
		sets:      make(map[state.Faction]map[state.Position]struct{}, len(masks)),
	}
	for f, m := range masks {
		if !f.Valid() {
			return nil, fmt.Errorf("unknown faction %q", f)
		}
		if m.Count() == 0 {
			return nil, fmt.Errorf("faction %s: empty formation", f)
		}
		t.masks[f] = m
		set := make(map[state.Position]struct{}, m.Count())
		var positions []state.Position
		for r := 0; r < state.Rows; r++ {
			for c := 0; c < state.Cols; c++ {
				if m[r][c] {
					p := state.Position{Row: r, Col: c}
					positions = append(positions, p)
					set[p] = struct{}{}
				}
			}
		}
		t.positions[f] = positions
		t.sets[f] = set
	}
	return t, nil
}

// IsValidPosition reports whether faction f may place a unit at pos.
func (t *Table) IsValidPosition(f state.Faction, pos state.Position) bool {
	set, ok := t.sets[f]
	if !ok {
		return false
	}
	_, ok = set[pos]
	return ok
}

// Positions returns a copy of the placeable cells of faction f in row-major order.
func (t *Table) Positions(f state.Faction) []state.Position {
	return append([]state.Position(nil), t.positions[f]...)
}

// Mask returns the mask of faction f.
func (t *Table) Mask(f state.Faction) (Mask, bool) {
	m, ok := t.masks[f]
	return m, ok
}
