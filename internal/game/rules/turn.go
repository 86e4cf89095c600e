package rules

import (
	"errors"
	"fmt"
	"time"

	"github.com/voidecho/voidecho-server-go/internal/game/state"
)

// DefaultMaxConsecutiveTimeouts ends a game after this many forced turn ends
// in a row by the same player.
const DefaultMaxConsecutiveTimeouts = 3

var ErrInvalidTransition = errors.New("invalid phase transition")

// PhaseChange describes one step of the turn state machine.
type PhaseChange struct {
	From            state.Phase `json:"from"`
	To              state.Phase `json:"to"`
	ResourcesGained int         `json:"resources_gained"`
	Drawn           *state.Card `json:"drawn,omitempty"`
	DrawSkipped     bool        `json:"draw_skipped,omitempty"`
	DeckEmpty       bool        `json:"deck_empty,omitempty"`
}

// nextPhase is the order of the turn. actions only leaves through end_turn.
var nextPhase = map[state.Phase]state.Phase{
	state.PhaseResources: state.PhaseDraw,
	state.PhaseDraw:      state.PhaseActions,
}

// StartGame activates a waiting game once both players are ready.
func StartGame(gs *state.GameState, now time.Time) bool {
	if gs.Status != state.StatusWaiting {
		return false
	}
	for _, id := range gs.PlayerIDs() {
		if ps := gs.Player(id); ps == nil || !ps.Ready {
			return false
		}
	}
	gs.Status = state.StatusActive
	gs.CurrentPlayer = gs.Player1ID
	gs.Phase = state.PhaseResources
	gs.TurnStartedAt = now
	gs.TimeRemaining = gs.TimeLimit
	return true
}

// AdvancePhase moves the current player from resources to draw, or from draw
// to actions. An empty deck at the draw step ends the game in favour of the
// opponent.
func AdvancePhase(gs *state.GameState, now time.Time) (PhaseChange, error) {
	to, ok := nextPhase[gs.Phase]
	if !ok || gs.GameOver {
		return PhaseChange{}, fmt.Errorf("%w: from %s", ErrInvalidTransition, gs.Phase)
	}
	ps := gs.Current()
	if ps == nil {
		return PhaseChange{}, fmt.Errorf("%w: no current player", ErrInvalidTransition)
	}

	change := PhaseChange{From: gs.Phase, To: to}
	switch gs.Phase {
	case state.PhaseResources:
		before := ps.Resources
		ps.Resources = min(ps.Resources+1, state.MaxResources)
		change.ResourcesGained = ps.Resources - before
	case state.PhaseDraw:
		if len(ps.Deck) == 0 {
			change.DeckEmpty = true
			EndGame(gs, gs.OpponentID(ps.ID), state.EndReasonDeckEmpty)
			return change, nil
		}
		if card, drawn := ps.Draw(); drawn {
			change.Drawn = &card
		} else {
			change.DrawSkipped = true
		}
		ps.CanAct = true
	}
	gs.Phase = to
	Tick(gs, now)
	return change, nil
}

// EndTurn hands the turn to the opponent. The incoming player's units lose
// summoning sickness and their per-turn counters reset. A voluntary end
// clears the outgoing player's timeout streak.
func EndTurn(gs *state.GameState, now time.Time, forced bool) {
	ender := gs.Current()
	if ender != nil {
		ender.CanAct = false
		if !forced {
			ender.Timeouts = 0
		}
	}

	next := gs.OpponentID(gs.CurrentPlayer)
	gs.CurrentPlayer = next
	gs.Turn++
	if ps := gs.Player(next); ps != nil {
		for _, u := range ps.Board.Units {
			u.HasAttacked = false
			u.SummonedThisTurn = false
			u.CanAttack = true
			u.CanMove = true
		}
		ps.Counters = state.Counters{}
	}
	gs.Phase = state.PhaseResources
	gs.TurnStartedAt = now
	gs.TimeRemaining = gs.TimeLimit
}

// ForceEndTurn applies a timer expiry to the current player. It reports true
// when the player reached maxTimeouts and lost the game instead.
func ForceEndTurn(gs *state.GameState, now time.Time, maxTimeouts int) bool {
	ps := gs.Current()
	if ps == nil {
		return false
	}
	ps.Timeouts++
	if maxTimeouts > 0 && ps.Timeouts >= maxTimeouts {
		EndGame(gs, gs.OpponentID(ps.ID), state.EndReasonTimeout)
		return true
	}
	EndTurn(gs, now, true)
	return false
}

// EndGame records a terminal transition. A finished game is never reopened.
func EndGame(gs *state.GameState, winner string, reason state.EndReason) {
	if gs.GameOver {
		return
	}
	gs.GameOver = true
	gs.Status = state.StatusFinished
	gs.Winner = winner
	gs.EndReason = reason
	for _, ps := range gs.Players {
		ps.CanAct = false
	}
}

// Remaining returns the time left in the current turn, never negative.
func Remaining(gs *state.GameState, now time.Time) time.Duration {
	if gs.TimeLimit <= 0 {
		return 0
	}
	left := gs.TimeLimit - now.Sub(gs.TurnStartedAt)
	if left < 0 {
		return 0
	}
	return left
}

// IsExpired reports whether the current turn has run out of time.
func IsExpired(gs *state.GameState, now time.Time) bool {
	if gs.Status != state.StatusActive || gs.GameOver || gs.TimeLimit <= 0 {
		return false
	}
	return !now.Before(gs.TurnStartedAt.Add(gs.TimeLimit))
}

// Tick refreshes TimeRemaining.
func Tick(gs *state.GameState, now time.Time) {
	if gs.Status == state.StatusActive && !gs.GameOver {
		gs.TimeRemaining = Remaining(gs, now)
	}
}
