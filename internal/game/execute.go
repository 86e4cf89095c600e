package game

import (
	"fmt"
	"time"

	"github.com/voidecho/voidecho-server-go/internal/game/combat"
	"github.com/voidecho/voidecho-server-go/internal/game/quest"
	"github.com/voidecho/voidecho-server-go/internal/game/rules"
	"github.com/voidecho/voidecho-server-go/internal/game/state"
)

// execute applies a validated action to gs, appends it to the history and
// lets the quest tracker see its effects. It returns the units the ability
// hooks must hear about once the commit succeeds.
func (e *Engine) execute(gs *state.GameState, action state.GameAction, now time.Time, out *Outcome) ([]combat.Casualty, error) {
	var (
		effects  state.EffectSet
		affected []combat.Casualty
	)

	switch action.Type {
	case state.ActionPlaceUnit:
		_, card := gs.Player(action.PlayerID).FindInHand(action.Place.CardID)
		if card != nil {
			action.ResourceCost = card.Cost
		}
		var err error
		effects, err = e.placement.Apply(gs, action)
		if err != nil {
			return nil, err
		}
		unit := gs.Player(action.PlayerID).Board.At(action.Place.Position)
		ev := rules.NewEventWithAmount(rules.EventUnitPlaced, gs.ID, action.PlayerID, unit.InstanceID, action.ResourceCost)
		ev.Data = unit.Position.String()
		out.Events = append(out.Events, ev)

	case state.ActionAttack:
		res, err := combat.Execute(gs, action.PlayerID, action.Attack.AttackerID, action.Attack.TargetID)
		if err != nil {
			return nil, err
		}
		effects = res.Effects
		affected = res.Affected
		out.Combat = &res.Result
		for _, c := range res.Affected {
			out.Events = append(out.Events, rules.NewEventWithAmount(rules.EventUnitDamaged, gs.ID, c.Unit.OwnerID, c.Unit.InstanceID, c.Damage))
			if c.Died {
				out.Events = append(out.Events, rules.NewEvent(rules.EventUnitDestroyed, gs.ID, c.Unit.OwnerID, c.Unit.InstanceID))
			}
		}

	case state.ActionCastSpell:
		var err error
		effects, err = castSpell(gs, &action)
		if err != nil {
			return nil, err
		}
		ev := rules.NewEventWithAmount(rules.EventSpellCast, gs.ID, action.PlayerID, action.Spell.TargetID, action.ResourceCost)
		ev.Data = action.Spell.CardID
		out.Events = append(out.Events, ev)

	case state.ActionEndTurn:
		effects = state.EffectSet{}
		effects.For(action.PlayerID).TurnsSurvived = 1
		rules.EndTurn(gs, now, action.Forced)
		out.Events = append(out.Events, turnEndedEvent(gs, action))

	case state.ActionSurrender:
		rules.EndGame(gs, gs.OpponentID(action.PlayerID), state.EndReasonSurrender)

	default:
		return nil, fmt.Errorf("execute: unhandled action type %q", action.Type)
	}

	action.Valid = true
	gs.ActionHistory = append(gs.ActionHistory, action)
	rules.Tick(gs, now)

	e.observeQuests(gs, action, effects, out)
	for i := range out.Events {
		out.Events[i].SourceID = action.ID
	}
	return affected, nil
}

// castSpell pays for a spell and moves it to the graveyard. Spell effects
// belong to the ability layer.
func castSpell(gs *state.GameState, action *state.GameAction) (state.EffectSet, error) {
	ps := gs.Player(action.PlayerID)
	idx, card := ps.FindInHand(action.Spell.CardID)
	if card == nil {
		return nil, fmt.Errorf("cast spell: card %s not in hand", action.Spell.CardID)
	}
	c := ps.RemoveFromHand(idx)
	ps.Resources -= c.Cost
	ps.Graveyard = append(ps.Graveyard, c)
	ps.Counters.SpellsCast++
	action.ResourceCost = c.Cost

	effects := state.EffectSet{}
	effects.For(ps.ID).SpellsCast = 1
	return effects, nil
}

func turnEndedEvent(gs *state.GameState, action state.GameAction) rules.Event {
	ev := rules.NewEvent(rules.EventTurnEnded, gs.ID, action.PlayerID, gs.CurrentPlayer)
	ev.SourceID = action.ID
	ev.Amount = gs.Turn
	if action.Forced {
		ev.Data = "forced"
	}
	return ev
}

func phaseEvents(gs *state.GameState, playerID string, change rules.PhaseChange) []rules.Event {
	var events []rules.Event
	if change.DeckEmpty {
		return events
	}
	ev := rules.NewEventWithAmount(rules.EventPhaseChanged, gs.ID, playerID, "", change.ResourcesGained)
	ev.Data = string(change.To)
	events = append(events, ev)
	if change.Drawn != nil {
		events = append(events, rules.NewEvent(rules.EventCardDrawn, gs.ID, playerID, change.Drawn.InstanceID))
	}
	return events
}

// observeQuests lets the quest tracker see an applied action. A completed
// quest ends the game inside the same commit.
func (e *Engine) observeQuests(gs *state.GameState, action state.GameAction, effects state.EffectSet, out *Outcome) {
	if e.quests == nil {
		return
	}
	for _, r := range e.quests.Observe(gs, action, effects) {
		out.Events = append(out.Events, questEvents(gs, r)...)
		if r.Completed {
			out.QuestCompleted = true
		}
	}
}

func questEvents(gs *state.GameState, r quest.Report) []rules.Event {
	var events []rules.Event
	for _, m := range r.NewMilestones {
		events = append(events, rules.NewEventWithAmount(rules.EventQuestMilestone, gs.ID, r.PlayerID, r.QuestID, m))
	}
	if r.Completed {
		events = append(events, rules.NewEvent(rules.EventQuestCompleted, gs.ID, r.PlayerID, r.QuestID))
	}
	return events
}
