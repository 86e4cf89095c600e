package rules

import (
	"time"

	"github.com/voidecho/voidecho-server-go/internal/game/state"
)

// DefaultLowTimerThreshold is the remaining turn time under which a
// TURN_TIMER_LOW warning is attached to results.
const DefaultLowTimerThreshold = 10 * time.Second

// PlacementChecker runs the placement-specific checks of a place_unit action.
type PlacementChecker interface {
	CheckPlacement(gs *state.GameState, playerID, cardID string, pos state.Position) []Issue
}

// AttackChecker runs the combat-specific checks of an attack action.
type AttackChecker interface {
	CheckAttack(gs *state.GameState, playerID, attackerID, targetID string) []Issue
}

// Validator checks proposed actions against a game state. It never mutates
// the state and never stops at the first failure.
type Validator struct {
	placement PlacementChecker
	attack    AttackChecker
	now       func() time.Time
	lowTimer  time.Duration
}

// ValidatorOption configures a Validator.
type ValidatorOption func(*Validator)

// WithClock overrides the time source used for timer warnings.
func WithClock(now func() time.Time) ValidatorOption {
	return func(v *Validator) {
		if now != nil {
			v.now = now
		}
	}
}

// WithLowTimerThreshold overrides DefaultLowTimerThreshold.
func WithLowTimerThreshold(d time.Duration) ValidatorOption {
	return func(v *Validator) { v.lowTimer = d }
}

// NewValidator builds a validator delegating type-specific checks to the
// given checkers. A nil checker skips those checks.
func NewValidator(placement PlacementChecker, attack AttackChecker, opts ...ValidatorOption) *Validator {
	v := &Validator{
		placement: placement,
		attack:    attack,
		now:       time.Now,
		lowTimer:  DefaultLowTimerThreshold,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// ValidateAction returns every issue that applies to action in gs.
func (v *Validator) ValidateAction(gs *state.GameState, action state.GameAction) ValidationResult {
	issues := CheckCommon(gs, action)

	if action.PayloadMatches() {
		switch action.Type {
		case state.ActionPlaceUnit:
			if v.placement != nil {
				issues = append(issues, v.placement.CheckPlacement(gs, action.PlayerID, action.Place.CardID, action.Place.Position)...)
			}
		case state.ActionAttack:
			if v.attack != nil {
				issues = append(issues, v.attack.CheckAttack(gs, action.PlayerID, action.Attack.AttackerID, action.Attack.TargetID)...)
			}
		case state.ActionCastSpell:
			issues = append(issues, CheckSpell(gs, action.PlayerID, action.Spell.CardID, action.Spell.TargetID)...)
		case state.ActionEndTurn:
			issues = append(issues, v.handWarnings(gs, action.PlayerID)...)
		case state.ActionSurrender:
		}
	}

	issues = append(issues, v.timerWarnings(gs)...)
	return newResult(issues)
}

// ValidateAdvance checks a request to move the current player's turn from
// resources to draw or from draw to actions.
func (v *Validator) ValidateAdvance(gs *state.GameState, playerID string) ValidationResult {
	issues := checkStatus(gs)
	if gs.Player(playerID) == nil {
		issues = append(issues, Errorf(CodePlayerNotFound, "player %s is not seated in game %s", playerID, gs.ID))
	}
	if playerID != gs.CurrentPlayer {
		issues = append(issues, Errorf(CodeNotYourTurn, "it is %s's turn", gs.CurrentPlayer))
	}
	if gs.Phase == state.PhaseActions {
		issues = append(issues, Errorf(CodeInvalidPhase, "phase %s ends with end_turn", gs.Phase))
	}
	if gs.Phase == state.PhaseResources {
		issues = append(issues, v.handWarnings(gs, playerID)...)
	}
	return newResult(issues)
}

func (v *Validator) timerWarnings(gs *state.GameState) []Issue {
	if gs.Status != state.StatusActive || gs.GameOver || gs.TimeLimit <= 0 {
		return nil
	}
	left := Remaining(gs, v.now())
	if left < v.lowTimer {
		return []Issue{Warnf(CodeTurnTimerLow, "%s left in turn", left.Round(time.Second))}
	}
	return nil
}

// handWarnings flags a draw that will be skipped. When playerID is ending
// their turn, the next draw belongs to the opponent.
func (v *Validator) handWarnings(gs *state.GameState, playerID string) []Issue {
	drawer := gs.Player(playerID)
	if gs.Phase == state.PhaseActions {
		drawer = gs.Opponent(playerID)
	}
	if drawer == nil || len(drawer.Deck) == 0 || len(drawer.Hand) < state.MaxHandSize {
		return nil
	}
	return []Issue{Warnf(CodeHandFull, "player %s has a full hand; the next draw is skipped", drawer.ID)}
}

func checkStatus(gs *state.GameState) []Issue {
	switch {
	case gs.GameOver:
		return []Issue{Errorf(CodeGameOver, "game %s is over", gs.ID)}
	case gs.Status != state.StatusActive:
		return []Issue{Errorf(CodeGameNotActive, "game %s is %s", gs.ID, gs.Status)}
	}
	return nil
}

// CheckCommon runs the checks every action shares: game status, turn
// ownership, phase gating and payload shape. Surrender is accepted from either
// player in any phase.
func CheckCommon(gs *state.GameState, action state.GameAction) []Issue {
	issues := checkStatus(gs)

	if gs.Player(action.PlayerID) == nil {
		issues = append(issues, Errorf(CodePlayerNotFound, "player %s is not seated in game %s", action.PlayerID, gs.ID))
	}

	switch action.Type {
	case state.ActionPlaceUnit, state.ActionAttack, state.ActionCastSpell, state.ActionEndTurn:
		if action.PlayerID != gs.CurrentPlayer {
			issues = append(issues, Errorf(CodeNotYourTurn, "it is %s's turn", gs.CurrentPlayer))
		}
		if gs.Phase != state.PhaseActions {
			issues = append(issues, Errorf(CodeInvalidPhase, "%s is not allowed in the %s phase", action.Type, gs.Phase))
		}
	case state.ActionSurrender:
	default:
		return append(issues, Errorf(CodeUnknownAction, "unknown action type %q", action.Type))
	}

	if !action.PayloadMatches() {
		issues = append(issues, Errorf(CodeInvalidPayload, "payload does not match action type %s", action.Type))
	}
	return issues
}

// CheckSpell runs the cast_spell checks for playerID.
func CheckSpell(gs *state.GameState, playerID, cardID, targetID string) []Issue {
	ps := gs.Player(playerID)
	if ps == nil {
		return nil
	}
	var issues []Issue
	_, card := ps.FindInHand(cardID)
	if card == nil {
		issues = append(issues, Errorf(CodeCardNotInHand, "card %s is not in hand", cardID))
	} else {
		if card.Type != state.CardTypeSpell {
			issues = append(issues, Errorf(CodeNotSpellCard, "card %s is a %s", cardID, card.Type))
		}
		if card.Cost > ps.Resources {
			issues = append(issues, Errorf(CodeInsufficientResources, "card %s costs %d, %d available", cardID, card.Cost, ps.Resources))
		}
	}
	if targetID != "" {
		if _, unit := gs.FindUnit(targetID); unit == nil {
			issues = append(issues, Errorf(CodeTargetNotFound, "target %s is not on the battlefield", targetID))
		}
	}
	return issues
}

// ValidateResources checks that playerID can pay amount from their pool.
func ValidateResources(gs *state.GameState, playerID string, amount int) ValidationResult {
	ps := gs.Player(playerID)
	if ps == nil {
		return newResult([]Issue{Errorf(CodePlayerNotFound, "player %s is not seated in game %s", playerID, gs.ID)})
	}
	if amount > ps.Resources {
		return newResult([]Issue{Errorf(CodeInsufficientResources, "need %d, %d available", amount, ps.Resources)})
	}
	return newResult(nil)
}
