package state

import (
	"time"

	"github.com/google/uuid"
)

// ActionType tags the payload carried by a GameAction.
type ActionType string

const (
	ActionPlaceUnit ActionType = "place_unit"
	ActionAttack    ActionType = "attack"
	ActionCastSpell ActionType = "cast_spell"
	ActionEndTurn   ActionType = "end_turn"
	ActionSurrender ActionType = "surrender"
)

func (t ActionType) String() string { return string(t) }

// PlacePayload places a unit from hand onto the acting player's board.
type PlacePayload struct {
	CardID   string   `json:"card_id"`
	Position Position `json:"position"`
}

// AttackPayload names an attacking unit and its target on the opposing board.
type AttackPayload struct {
	AttackerID string `json:"attacker_id"`
	TargetID   string `json:"target_id"`
}

// SpellPayload casts a spell from hand. Target is optional.
type SpellPayload struct {
	CardID   string `json:"card_id"`
	TargetID string `json:"target_id,omitempty"`
}

// GameAction is one entry of the audit log. Exactly one payload pointer is set
// and it matches Type; end_turn and surrender carry none. Actions are never
// mutated after they are appended to a game's history.
type GameAction struct {
	ID           string         `json:"id"`
	PlayerID     string         `json:"player_id"`
	Type         ActionType     `json:"type"`
	Turn         int            `json:"turn"`
	Phase        Phase          `json:"phase"`
	Timestamp    time.Time      `json:"timestamp"`
	Place        *PlacePayload  `json:"place,omitempty"`
	Attack       *AttackPayload `json:"attack,omitempty"`
	Spell        *SpellPayload  `json:"spell,omitempty"`
	ResourceCost int            `json:"resource_cost"`
	Valid        bool           `json:"valid"`
	Forced       bool           `json:"forced,omitempty"`
}

// PayloadMatches reports whether the payload fields agree with Type.
func (a GameAction) PayloadMatches() bool {
	switch a.Type {
	case ActionPlaceUnit:
		return a.Place != nil && a.Attack == nil && a.Spell == nil
	case ActionAttack:
		return a.Attack != nil && a.Place == nil && a.Spell == nil
	case ActionCastSpell:
		return a.Spell != nil && a.Place == nil && a.Attack == nil
	case ActionEndTurn, ActionSurrender:
		return a.Place == nil && a.Attack == nil && a.Spell == nil
	default:
		return false
	}
}

// Clone copies the action including its payload.
func (a GameAction) Clone() GameAction {
	out := a
	if a.Place != nil {
		p := *a.Place
		out.Place = &p
	}
	if a.Attack != nil {
		p := *a.Attack
		out.Attack = &p
	}
	if a.Spell != nil {
		p := *a.Spell
		out.Spell = &p
	}
	return out
}

func newAction(playerID string, t ActionType) GameAction {
	return GameAction{
		ID:       uuid.NewString(),
		PlayerID: playerID,
		Type:     t,
	}
}

// NewPlaceUnit builds a place_unit action.
func NewPlaceUnit(playerID, cardID string, pos Position) GameAction {
	a := newAction(playerID, ActionPlaceUnit)
	a.Place = &PlacePayload{CardID: cardID, Position: pos}
	return a
}

// NewAttack builds an attack action.
func NewAttack(playerID, attackerID, targetID string) GameAction {
	a := newAction(playerID, ActionAttack)
	a.Attack = &AttackPayload{AttackerID: attackerID, TargetID: targetID}
	return a
}

// NewCastSpell builds a cast_spell action.
func NewCastSpell(playerID, cardID, targetID string) GameAction {
	a := newAction(playerID, ActionCastSpell)
	a.Spell = &SpellPayload{CardID: cardID, TargetID: targetID}
	return a
}

// NewEndTurn builds an end_turn action.
func NewEndTurn(playerID string) GameAction {
	return newAction(playerID, ActionEndTurn)
}

// NewSurrender builds a surrender action.
func NewSurrender(playerID string) GameAction {
	return newAction(playerID, ActionSurrender)
}
