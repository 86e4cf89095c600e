package state

import "time"

// Counters are reset for a player at the start of each of their turns.
type Counters struct {
	UnitsPlaced int `json:"units_placed"`
	SpellsCast  int `json:"spells_cast"`
	UnitsKilled int `json:"units_killed"`
	DamageDealt int `json:"damage_dealt"`
}

// QuestProgress tracks a player's hidden victory condition.
type QuestProgress struct {
	QuestID       string        `json:"quest_id"`
	Faction       Faction       `json:"faction"`
	ConditionType ConditionType `json:"condition_type"`
	TargetValue   int           `json:"target_value"`
	CurrentValue  int           `json:"current_value"`
	IsCompleted   bool          `json:"is_completed"`
	Milestones    []int         `json:"milestones,omitempty"`
}

// Clone returns a deep copy, or nil for a nil quest.
func (q *QuestProgress) Clone() *QuestProgress {
	if q == nil {
		return nil
	}
	out := *q
	if q.Milestones != nil {
		out.Milestones = append([]int(nil), q.Milestones...)
	}
	return &out
}

// PlayerState is one side of a game. It is owned by its GameState.
type PlayerState struct {
	ID        string         `json:"id"`
	Faction   Faction        `json:"faction"`
	DeckID    string         `json:"deck_id,omitempty"`
	Hand      []Card         `json:"hand"`
	Deck      []Card         `json:"deck"`
	Graveyard []Card         `json:"graveyard"`
	Board     Board          `json:"board"`
	Resources int            `json:"resources"`
	Quest     *QuestProgress `json:"quest,omitempty"`
	Counters  Counters       `json:"counters"`
	Ready     bool           `json:"ready"`
	CanAct    bool           `json:"can_act"`
	Timeouts  int            `json:"timeouts"`
}

// FindInHand returns the index and card matching id, or -1.
func (ps *PlayerState) FindInHand(id string) (int, *Card) {
	for i := range ps.Hand {
		if ps.Hand[i].Matches(id) {
			return i, &ps.Hand[i]
		}
	}
	// Fall back to the catalog id so callers may name any copy.
	for i := range ps.Hand {
		if ps.Hand[i].ID == id {
			return i, &ps.Hand[i]
		}
	}
	return -1, nil
}

// RemoveFromHand removes and returns the card at index i.
func (ps *PlayerState) RemoveFromHand(i int) Card {
	card := ps.Hand[i]
	ps.Hand = append(ps.Hand[:i], ps.Hand[i+1:]...)
	return card
}

// Draw moves the top card of the deck into the hand. It reports false when the
// deck is empty or the hand is full.
func (ps *PlayerState) Draw() (Card, bool) {
	if len(ps.Deck) == 0 || len(ps.Hand) >= MaxHandSize {
		return Card{}, false
	}
	card := ps.Deck[0]
	ps.Deck = ps.Deck[1:]
	ps.Hand = append(ps.Hand, card)
	return card, true
}

// Bury moves a unit's card to the graveyard.
func (ps *PlayerState) Bury(unit *BoardCard) {
	ps.Graveyard = append(ps.Graveyard, unit.Card)
}

// Clone returns a deep copy of the player.
func (ps *PlayerState) Clone() *PlayerState {
	if ps == nil {
		return nil
	}
	out := *ps
	out.Hand = cloneCards(ps.Hand)
	out.Deck = cloneCards(ps.Deck)
	out.Graveyard = cloneCards(ps.Graveyard)
	out.Board = ps.Board.Clone()
	out.Quest = ps.Quest.Clone()
	return &out
}

// GameState is the aggregate root of a match. Version increases by exactly one
// per committed change.
type GameState struct {
	ID            string                  `json:"id"`
	GameNumber    int64                   `json:"game_number"`
	Player1ID     string                  `json:"player1_id"`
	Player2ID     string                  `json:"player2_id"`
	CurrentPlayer string                  `json:"current_player"`
	Turn          int                     `json:"turn"`
	Phase         Phase                   `json:"phase"`
	Status        Status                  `json:"status"`
	GameOver      bool                    `json:"game_over"`
	Winner        string                  `json:"winner,omitempty"`
	EndReason     EndReason               `json:"end_reason,omitempty"`
	Version       int64                   `json:"version"`
	TimeLimit     time.Duration           `json:"time_limit"`
	TimeRemaining time.Duration           `json:"time_remaining"`
	TurnStartedAt time.Time               `json:"turn_started_at"`
	ActionHistory []GameAction            `json:"action_history"`
	CreatedAt     time.Time               `json:"created_at"`
	LastActionAt  time.Time               `json:"last_action_at"`
	Players       map[string]*PlayerState `json:"players"`
}

// Player returns the player with the given id, or nil.
func (gs *GameState) Player(id string) *PlayerState {
	if gs.Players == nil {
		return nil
	}
	return gs.Players[id]
}

// OpponentID returns the other participant's id, or "" if id is not seated.
func (gs *GameState) OpponentID(id string) string {
	switch id {
	case gs.Player1ID:
		return gs.Player2ID
	case gs.Player2ID:
		return gs.Player1ID
	default:
		return ""
	}
}

// Opponent returns the other participant's state.
func (gs *GameState) Opponent(id string) *PlayerState {
	return gs.Player(gs.OpponentID(id))
}

// Current returns the state of the player whose turn it is.
func (gs *GameState) Current() *PlayerState {
	return gs.Player(gs.CurrentPlayer)
}

// PlayerIDs returns the seated players in seat order.
func (gs *GameState) PlayerIDs() []string {
	return []string{gs.Player1ID, gs.Player2ID}
}

// FindUnit searches both boards for a unit by instance id.
func (gs *GameState) FindUnit(instanceID string) (*PlayerState, *BoardCard) {
	for _, id := range gs.PlayerIDs() {
		ps := gs.Player(id)
		if ps == nil {
			continue
		}
		for _, u := range ps.Board.Units {
			if u.InstanceID == instanceID {
				return ps, u
			}
		}
	}
	return nil, nil
}

// LastAction returns the most recent history entry.
func (gs *GameState) LastAction() (GameAction, bool) {
	if len(gs.ActionHistory) == 0 {
		return GameAction{}, false
	}
	return gs.ActionHistory[len(gs.ActionHistory)-1], true
}

// Clone returns a deep copy sharing no mutable memory with gs.
func (gs *GameState) Clone() *GameState {
	if gs == nil {
		return nil
	}
	out := *gs
	if gs.ActionHistory != nil {
		out.ActionHistory = make([]GameAction, len(gs.ActionHistory))
		for i, a := range gs.ActionHistory {
			out.ActionHistory[i] = a.Clone()
		}
	}
	if gs.Players != nil {
		out.Players = make(map[string]*PlayerState, len(gs.Players))
		for id, ps := range gs.Players {
			out.Players[id] = ps.Clone()
		}
	}
	return &out
}

// Effects summarizes what a committed action did for one player. The quest
// tracker derives progress from it.
type Effects struct {
	UnitsPlaced   int `json:"units_placed"`
	UnitsKilled   int `json:"units_killed"`
	DamageDealt   int `json:"damage_dealt"`
	SpellsCast    int `json:"spells_cast"`
	SynergyCombos int `json:"synergy_combos"`
	TurnsSurvived int `json:"turns_survived"`
}

// EffectSet maps player ids to their effects.
type EffectSet map[string]*Effects

// For returns the entry for playerID, creating it if needed.
func (es EffectSet) For(playerID string) *Effects {
	e, ok := es[playerID]
	if !ok {
		e = &Effects{}
		es[playerID] = e
	}
	return e
}
