package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voidecho/voidecho-server-go/internal/game/state"
)

var testNow = time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)

func card(id string, typ state.CardType, cost int) state.Card {
	return state.Card{ID: id, InstanceID: id + "#1", Name: id, Faction: state.FactionHumans, Type: typ, Cost: cost, Attack: 2, HP: 2}
}

func newActiveGame() *state.GameState {
	gs := &state.GameState{
		ID:            "game-1",
		Player1ID:     "alice",
		Player2ID:     "bob",
		CurrentPlayer: "alice",
		Turn:          1,
		Phase:         state.PhaseResources,
		Status:        state.StatusActive,
		Version:       1,
		TimeLimit:     90 * time.Second,
		TurnStartedAt: testNow,
		Players: map[string]*state.PlayerState{
			"alice": {ID: "alice", Faction: state.FactionHumans, Resources: 1, Ready: true},
			"bob":   {ID: "bob", Faction: state.FactionRobots, Resources: 1, Ready: true},
		},
	}
	for i := 0; i < 5; i++ {
		gs.Players["alice"].Deck = append(gs.Players["alice"].Deck, card("grunt", state.CardTypeUnit, 1))
		gs.Players["bob"].Deck = append(gs.Players["bob"].Deck, card("drone", state.CardTypeUnit, 1))
	}
	return gs
}

func TestStartGameNeedsBothReady(t *testing.T) {
	gs := newActiveGame()
	gs.Status = state.StatusWaiting
	gs.Players["bob"].Ready = false

	if StartGame(gs, testNow) {
		t.Fatalf("game started with one player unready")
	}
	gs.Players["bob"].Ready = true
	require.True(t, StartGame(gs, testNow))
	assert.Equal(t, state.StatusActive, gs.Status)
	assert.Equal(t, "alice", gs.CurrentPlayer)
	assert.Equal(t, gs.TimeLimit, gs.TimeRemaining)
}

func TestAdvancePhaseSequence(t *testing.T) {
	gs := newActiveGame()
	alice := gs.Players["alice"]

	change, err := AdvancePhase(gs, testNow)
	require.NoError(t, err)
	assert.Equal(t, state.PhaseDraw, gs.Phase)
	assert.Equal(t, 1, change.ResourcesGained)
	assert.Equal(t, 2, alice.Resources)

	change, err = AdvancePhase(gs, testNow)
	require.NoError(t, err)
	assert.Equal(t, state.PhaseActions, gs.Phase)
	require.NotNil(t, change.Drawn)
	assert.Len(t, alice.Hand, 1)
	assert.True(t, alice.CanAct)

	_, err = AdvancePhase(gs, testNow)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestResourcesCapAtTen(t *testing.T) {
	gs := newActiveGame()
	gs.Players["alice"].Resources = state.MaxResources

	change, err := AdvancePhase(gs, testNow)
	require.NoError(t, err)
	assert.Equal(t, 0, change.ResourcesGained)
	assert.Equal(t, state.MaxResources, gs.Players["alice"].Resources)
}

func TestDrawWithFullHandIsSkipped(t *testing.T) {
	gs := newActiveGame()
	gs.Phase = state.PhaseDraw
	alice := gs.Players["alice"]
	for i := 0; i < state.MaxHandSize; i++ {
		alice.Hand = append(alice.Hand, card("held", state.CardTypeUnit, 1))
	}

	change, err := AdvancePhase(gs, testNow)
	require.NoError(t, err)
	assert.True(t, change.DrawSkipped)
	assert.Len(t, alice.Hand, state.MaxHandSize)
	assert.Equal(t, state.PhaseActions, gs.Phase)
}

func TestEmptyDeckEndsGame(t *testing.T) {
	gs := newActiveGame()
	gs.Phase = state.PhaseDraw
	gs.Players["alice"].Deck = nil

	change, err := AdvancePhase(gs, testNow)
	require.NoError(t, err)
	assert.True(t, change.DeckEmpty)
	assert.True(t, gs.GameOver)
	assert.Equal(t, state.StatusFinished, gs.Status)
	assert.Equal(t, "bob", gs.Winner)
	assert.Equal(t, state.EndReasonDeckEmpty, gs.EndReason)
}

func TestEndTurnResetsIncomingPlayer(t *testing.T) {
	gs := newActiveGame()
	gs.Phase = state.PhaseActions
	bob := gs.Players["bob"]
	bob.Counters.UnitsPlaced = 2
	require.NoError(t, bob.Board.Place(&state.BoardCard{
		Card:             card("drone", state.CardTypeUnit, 1),
		Position:         state.Position{Row: 0, Col: 1},
		HasAttacked:      true,
		SummonedThisTurn: true,
	}))
	gs.Players["alice"].Timeouts = 2

	later := testNow.Add(30 * time.Second)
	EndTurn(gs, later, false)

	assert.Equal(t, "bob", gs.CurrentPlayer)
	assert.Equal(t, 2, gs.Turn)
	assert.Equal(t, state.PhaseResources, gs.Phase)
	assert.Equal(t, later, gs.TurnStartedAt)
	assert.Equal(t, gs.TimeLimit, gs.TimeRemaining)
	assert.Equal(t, state.Counters{}, bob.Counters)
	assert.Equal(t, 0, gs.Players["alice"].Timeouts)

	u := bob.Board.Units[0]
	if u.HasAttacked || u.SummonedThisTurn || !u.CanAttack || !u.CanMove {
		t.Fatalf("unit flags not reset: %+v", u)
	}
}

func TestForceEndTurnLosesAfterMaxTimeouts(t *testing.T) {
	gs := newActiveGame()
	gs.Phase = state.PhaseActions

	for i := 0; i < DefaultMaxConsecutiveTimeouts-1; i++ {
		gs.CurrentPlayer = "alice"
		if ForceEndTurn(gs, testNow, DefaultMaxConsecutiveTimeouts) {
			t.Fatalf("game ended after %d timeouts", i+1)
		}
	}
	gs.CurrentPlayer = "alice"
	require.True(t, ForceEndTurn(gs, testNow, DefaultMaxConsecutiveTimeouts))
	assert.Equal(t, state.EndReasonTimeout, gs.EndReason)
	assert.Equal(t, "bob", gs.Winner)
}

func TestTimer(t *testing.T) {
	gs := newActiveGame()

	assert.False(t, IsExpired(gs, testNow.Add(89*time.Second)))
	assert.True(t, IsExpired(gs, testNow.Add(90*time.Second)))
	assert.Equal(t, 30*time.Second, Remaining(gs, testNow.Add(60*time.Second)))
	assert.Equal(t, time.Duration(0), Remaining(gs, testNow.Add(2*time.Minute)))

	gs.GameOver = true
	assert.False(t, IsExpired(gs, testNow.Add(time.Hour)))
}

func TestEndGameIsFinal(t *testing.T) {
	gs := newActiveGame()
	EndGame(gs, "alice", state.EndReasonQuestComplete)
	EndGame(gs, "bob", state.EndReasonSurrender)

	assert.Equal(t, "alice", gs.Winner)
	assert.Equal(t, state.EndReasonQuestComplete, gs.EndReason)
}
