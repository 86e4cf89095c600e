package state

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrOutOfBounds  = errors.New("position out of bounds")
	ErrCellOccupied = errors.New("cell occupied")
)

// Ability describes a card ability. Resolution belongs to the ability layer;
// the engine only carries the descriptor and flags units that have one.
type Ability struct {
	Keyword string            `json:"keyword"`
	Trigger string            `json:"trigger,omitempty"`
	Params  map[string]string `json:"params,omitempty"`
}

// Card is a card definition, or a copy of one held in a player's zones.
// InstanceID is unique per copy inside a game; ID is the catalog id.
type Card struct {
	ID         string    `json:"id"`
	InstanceID string    `json:"instance_id,omitempty"`
	Name       string    `json:"name"`
	Faction    Faction   `json:"faction"`
	Type       CardType  `json:"type"`
	Cost       int       `json:"cost"`
	Attack     int       `json:"attack,omitempty"`
	HP         int       `json:"hp,omitempty"`
	Range      int       `json:"range,omitempty"`
	Abilities  []Ability `json:"abilities,omitempty"`
	SetID      string    `json:"set_id,omitempty"`
}

// Matches reports whether id names this card, either as instance or catalog id.
func (c Card) Matches(id string) bool {
	return id != "" && (c.InstanceID == id || (c.InstanceID == "" && c.ID == id))
}

// Clone returns a deep copy of the card.
func (c Card) Clone() Card {
	out := c
	if c.Abilities != nil {
		out.Abilities = make([]Ability, len(c.Abilities))
		for i, a := range c.Abilities {
			out.Abilities[i] = a
			if a.Params != nil {
				params := make(map[string]string, len(a.Params))
				for k, v := range a.Params {
					params[k] = v
				}
				out.Abilities[i].Params = params
			}
		}
	}
	return out
}

// Position addresses a cell of a 3x5 board.
type Position struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// InBounds reports whether p lies on the grid.
func (p Position) InBounds() bool {
	return p.Row >= 0 && p.Row < Rows && p.Col >= 0 && p.Col < Cols
}

func (p Position) String() string {
	return fmt.Sprintf("(%d,%d)", p.Row, p.Col)
}

// Neighbors returns the orthogonally adjacent in-bounds positions.
func (p Position) Neighbors() []Position {
	candidates := []Position{
		{p.Row - 1, p.Col},
		{p.Row + 1, p.Col},
		{p.Row, p.Col - 1},
		{p.Row, p.Col + 1},
	}
	out := make([]Position, 0, len(candidates))
	for _, c := range candidates {
		if c.InBounds() {
			out = append(out, c)
		}
	}
	return out
}

// Effect is a transient modifier attached to a unit by the ability layer.
type Effect struct {
	ID       string `json:"id"`
	Kind     string `json:"kind"`
	Amount   int    `json:"amount,omitempty"`
	Duration int    `json:"duration,omitempty"`
}

// BoardCard is a unit on the battlefield.
type BoardCard struct {
	Card
	OwnerID          string   `json:"owner_id"`
	Position         Position `json:"position"`
	CurrentHP        int      `json:"current_hp"`
	CanAttack        bool     `json:"can_attack"`
	CanMove          bool     `json:"can_move"`
	HasAttacked      bool     `json:"has_attacked"`
	SummonedThisTurn bool     `json:"summoned_this_turn"`
	Effects          []Effect `json:"effects,omitempty"`
}

// Clone returns a deep copy of the unit.
func (bc *BoardCard) Clone() *BoardCard {
	if bc == nil {
		return nil
	}
	out := *bc
	out.Card = bc.Card.Clone()
	if bc.Effects != nil {
		out.Effects = append([]Effect(nil), bc.Effects...)
	}
	return &out
}

// HasKeywords reports whether the unit carries any ability descriptor.
func (bc *BoardCard) HasKeywords() bool {
	return len(bc.Abilities) > 0
}

// Board is a player's 3x5 grid. Units are stored sparsely; the methods keep
// at most one unit per cell.
type Board struct {
	Units []*BoardCard `json:"units"`
}

// At returns the unit at pos, or nil.
func (b *Board) At(pos Position) *BoardCard {
	for _, u := range b.Units {
		if u.Position == pos {
			return u
		}
	}
	return nil
}

// IsOccupied reports whether pos holds a unit.
func (b *Board) IsOccupied(pos Position) bool {
	return b.At(pos) != nil
}

// Place puts a unit on its Position.
func (b *Board) Place(unit *BoardCard) error {
	if !unit.Position.InBounds() {
		return fmt.Errorf("place %s at %s: %w", unit.InstanceID, unit.Position, ErrOutOfBounds)
	}
	if b.IsOccupied(unit.Position) {
		return fmt.Errorf("place %s at %s: %w", unit.InstanceID, unit.Position, ErrCellOccupied)
	}
	b.Units = append(b.Units, unit)
	return nil
}

// Remove takes the unit with the given instance id off the board.
func (b *Board) Remove(instanceID string) *BoardCard {
	for i, u := range b.Units {
		if u.InstanceID == instanceID {
			b.Units = append(b.Units[:i], b.Units[i+1:]...)
			return u
		}
	}
	return nil
}

// Count returns the number of occupied cells.
func (b *Board) Count() int {
	return len(b.Units)
}

// Cells returns the board as a row-major matrix.
func (b *Board) Cells() [Rows][Cols]*BoardCard {
	var cells [Rows][Cols]*BoardCard
	for _, u := range b.Units {
		if u.Position.InBounds() {
			cells[u.Position.Row][u.Position.Col] = u
		}
	}
	return cells
}

// Sorted returns the units in row-major order.
func (b *Board) Sorted() []*BoardCard {
	out := append([]*BoardCard(nil), b.Units...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position.Row != out[j].Position.Row {
			return out[i].Position.Row < out[j].Position.Row
		}
		return out[i].Position.Col < out[j].Position.Col
	})
	return out
}

// Clone returns a deep copy of the board.
func (b Board) Clone() Board {
	out := Board{Units: make([]*BoardCard, len(b.Units))}
	for i, u := range b.Units {
		out.Units[i] = u.Clone()
	}
	return out
}

func cloneCards(cards []Card) []Card {
	if cards == nil {
		return nil
	}
	out := make([]Card, len(cards))
	for i, c := range cards {
		out[i] = c.Clone()
	}
	return out
}
