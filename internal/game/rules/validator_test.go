package rules

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voidecho/voidecho-server-go/internal/game/state"
)

type stubPlacement struct{ issues []Issue }

func (s stubPlacement) CheckPlacement(*state.GameState, string, string, state.Position) []Issue {
	return s.issues
}

type stubAttack struct{ called bool }

func (s *stubAttack) CheckAttack(*state.GameState, string, string, string) []Issue {
	s.called = true
	return nil
}

func newTestValidator(p PlacementChecker, a AttackChecker) *Validator {
	return NewValidator(p, a, WithClock(func() time.Time { return testNow }))
}

func TestValidateActionAccumulatesErrors(t *testing.T) {
	gs := newActiveGame()
	gs.Phase = state.PhaseDraw
	v := newTestValidator(stubPlacement{issues: []Issue{Errorf(CodePositionOccupied, "taken")}}, nil)

	res := v.ValidateAction(gs, state.NewPlaceUnit("bob", "drone#1", state.Position{}))

	require.False(t, res.IsValid)
	assert.Equal(t, []Code{CodeNotYourTurn, CodeInvalidPhase, CodePositionOccupied}, res.Codes())
}

func TestValidateActionGameOverAndInactive(t *testing.T) {
	gs := newActiveGame()
	gs.Phase = state.PhaseActions
	v := newTestValidator(nil, nil)

	gs.Status = state.StatusWaiting
	res := v.ValidateAction(gs, state.NewEndTurn("alice"))
	assert.True(t, res.HasCode(CodeGameNotActive))

	EndGame(gs, "bob", state.EndReasonSurrender)
	res = v.ValidateAction(gs, state.NewEndTurn("alice"))
	assert.True(t, res.HasCode(CodeGameOver))
	assert.False(t, res.HasCode(CodeGameNotActive))
}

func TestSurrenderIsAllowedOffTurn(t *testing.T) {
	gs := newActiveGame()
	v := newTestValidator(nil, nil)

	res := v.ValidateAction(gs, state.NewSurrender("bob"))
	assert.True(t, res.IsValid, "unexpected issues: %+v", res.Errors)
}

func TestEndTurnOnlyInActionsPhase(t *testing.T) {
	gs := newActiveGame()
	v := newTestValidator(nil, nil)

	res := v.ValidateAction(gs, state.NewEndTurn("alice"))
	assert.Equal(t, []Code{CodeInvalidPhase}, res.Codes())

	gs.Phase = state.PhaseActions
	res = v.ValidateAction(gs, state.NewEndTurn("alice"))
	assert.True(t, res.IsValid)
}

func TestUnknownActionAndPayloadMismatch(t *testing.T) {
	gs := newActiveGame()
	gs.Phase = state.PhaseActions
	v := newTestValidator(nil, nil)

	res := v.ValidateAction(gs, state.GameAction{PlayerID: "alice", Type: "dance"})
	assert.True(t, res.HasCode(CodeUnknownAction))

	res = v.ValidateAction(gs, state.GameAction{PlayerID: "alice", Type: state.ActionAttack})
	assert.True(t, res.HasCode(CodeInvalidPayload))
}

func TestAttackDelegatesToChecker(t *testing.T) {
	gs := newActiveGame()
	gs.Phase = state.PhaseActions
	attack := &stubAttack{}
	v := newTestValidator(nil, attack)

	v.ValidateAction(gs, state.NewAttack("alice", "a", "b"))
	assert.True(t, attack.called)
}

func TestCastSpellChecks(t *testing.T) {
	gs := newActiveGame()
	gs.Phase = state.PhaseActions
	alice := gs.Players["alice"]
	alice.Hand = []state.Card{card("bolt", state.CardTypeSpell, 3), card("grunt", state.CardTypeUnit, 1)}
	v := newTestValidator(nil, nil)

	res := v.ValidateAction(gs, state.NewCastSpell("alice", "bolt#1", ""))
	assert.Equal(t, []Code{CodeInsufficientResources}, res.Codes())

	res = v.ValidateAction(gs, state.NewCastSpell("alice", "grunt#1", "nobody"))
	assert.Equal(t, []Code{CodeNotSpellCard, CodeTargetNotFound}, res.Codes())

	res = v.ValidateAction(gs, state.NewCastSpell("alice", "missing", ""))
	assert.Equal(t, []Code{CodeCardNotInHand}, res.Codes())
}

func TestWarningsDoNotBlock(t *testing.T) {
	gs := newActiveGame()
	gs.Phase = state.PhaseActions
	bob := gs.Players["bob"]
	for i := 0; i < state.MaxHandSize; i++ {
		bob.Hand = append(bob.Hand, card("drone", state.CardTypeUnit, 1))
	}
	v := NewValidator(nil, nil, WithClock(func() time.Time { return testNow.Add(85 * time.Second) }))

	res := v.ValidateAction(gs, state.NewEndTurn("alice"))
	require.True(t, res.IsValid)
	codes := []Code{}
	for _, w := range res.Warnings {
		codes = append(codes, w.Code)
	}
	assert.ElementsMatch(t, []Code{CodeHandFull, CodeTurnTimerLow}, codes)
}

func TestValidateResources(t *testing.T) {
	gs := newActiveGame()

	assert.True(t, ValidateResources(gs, "alice", 1).IsValid)
	res := ValidateResources(gs, "alice", 2)
	assert.True(t, res.HasCode(CodeInsufficientResources))
	res = ValidateResources(gs, "carol", 0)
	assert.True(t, res.HasCode(CodePlayerNotFound))
}

func TestValidateAdvance(t *testing.T) {
	gs := newActiveGame()
	v := newTestValidator(nil, nil)

	assert.True(t, v.ValidateAdvance(gs, "alice").IsValid)
	assert.True(t, v.ValidateAdvance(gs, "bob").HasCode(CodeNotYourTurn))

	gs.Phase = state.PhaseActions
	assert.True(t, v.ValidateAdvance(gs, "alice").HasCode(CodeInvalidPhase))
}

func TestRejectWrapsResult(t *testing.T) {
	assert.NoError(t, Reject(ValidationResult{IsValid: true}))

	err := Reject(newResult([]Issue{Errorf(CodeGameOver, "over")}))
	var rej *RejectionError
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, "action rejected: GAME_OVER", err.Error())
}

func TestValidateActionReportsEachCodeOnce(t *testing.T) {
	gs := newActiveGame()
	gs.Phase = state.PhaseActions
	v := newTestValidator(stubPlacement{issues: []Issue{
		Errorf(CodePlayerNotFound, "unknown player"),
		Errorf(CodePositionOccupied, "taken"),
	}}, nil)

	res := v.ValidateAction(gs, state.NewPlaceUnit("carol", "drone#1", state.Position{}))

	require.False(t, res.IsValid)
	count := 0
	for _, c := range res.Codes() {
		if c == CodePlayerNotFound {
			count++
		}
	}
	assert.Equal(t, 1, count)
	assert.True(t, res.HasCode(CodePositionOccupied))
}
