// Package combat resolves attacks between units. Damage is simultaneous and
// keyword abilities are only flagged for the ability layer.
package combat

import (
	"fmt"

	"github.com/voidecho/voidecho-server-go/internal/game/rules"
	"github.com/voidecho/voidecho-server-go/internal/game/state"
)

// Result is the outcome of one exchange of blows.
type Result struct {
	TargetDamage      int      `json:"target_damage"`
	AttackerDamage    int      `json:"attacker_damage"`
	TargetDestroyed   bool     `json:"target_destroyed"`
	AttackerDestroyed bool     `json:"attacker_destroyed"`
	Flagged           []string `json:"flagged,omitempty"`
}

// ProcessCombat computes the exchange without touching either unit. Both
// destruction checks are independent, so both units may die.
func ProcessCombat(attacker, target state.BoardCard) Result {
	res := Result{
		TargetDamage:   max(attacker.Attack, 0),
		AttackerDamage: max(target.Attack, 0),
	}
	res.TargetDestroyed = target.CurrentHP-res.TargetDamage <= 0
	res.AttackerDestroyed = attacker.CurrentHP-res.AttackerDamage <= 0
	if attacker.HasKeywords() {
		res.Flagged = append(res.Flagged, attacker.InstanceID)
	}
	if target.HasKeywords() {
		res.Flagged = append(res.Flagged, target.InstanceID)
	}
	return res
}

// Checker validates attack actions. It satisfies rules.AttackChecker.
type Checker struct{}

// CheckAttack returns every attack-specific issue.
func (Checker) CheckAttack(gs *state.GameState, playerID, attackerID, targetID string) []rules.Issue {
	ps := gs.Player(playerID)
	if ps == nil {
		return nil
	}
	var issues []rules.Issue

	attacker := findOn(ps, attackerID)
	if attacker == nil {
		issues = append(issues, rules.Errorf(rules.CodeAttackerNotFound, "unit %s is not on your board", attackerID))
	}
	if opp := gs.Opponent(playerID); opp == nil || findOn(opp, targetID) == nil {
		issues = append(issues, rules.Errorf(rules.CodeTargetNotFound, "unit %s is not on the opposing board", targetID))
	}
	if attacker == nil {
		return issues
	}

	switch {
	case attacker.SummonedThisTurn:
		issues = append(issues, rules.Errorf(rules.CodeSummoningSickness, "unit %s was placed this turn", attackerID))
	case attacker.HasAttacked:
		issues = append(issues, rules.Errorf(rules.CodeAlreadyAttacked, "unit %s has already attacked", attackerID))
	case !attacker.CanAttack || attacker.Attack <= 0:
		issues = append(issues, rules.Errorf(rules.CodeCannotAttack, "unit %s cannot attack", attackerID))
	}
	return issues
}

func findOn(ps *state.PlayerState, instanceID string) *state.BoardCard {
	for _, u := range ps.Board.Units {
		if u.InstanceID == instanceID {
			return u
		}
	}
	return nil
}

// Casualty is a snapshot of a unit affected by combat, taken after damage.
type Casualty struct {
	Unit   state.BoardCard
	Damage int
	Died   bool
}

// Resolution is what Execute did to the game.
type Resolution struct {
	Result   Result
	Affected []Casualty
	Effects  state.EffectSet
}

// Execute applies an already validated attack to gs: damage, graveyard moves,
// the attacker's HasAttacked flag and both players' counters.
func Execute(gs *state.GameState, playerID, attackerID, targetID string) (Resolution, error) {
	ps := gs.Player(playerID)
	opp := gs.Opponent(playerID)
	if ps == nil || opp == nil {
		return Resolution{}, fmt.Errorf("attack by %s: player not seated", playerID)
	}
	attacker := findOn(ps, attackerID)
	target := findOn(opp, targetID)
	if attacker == nil || target == nil {
		return Resolution{}, fmt.Errorf("attack %s -> %s: unit not found", attackerID, targetID)
	}

	res := ProcessCombat(*attacker, *target)
	target.CurrentHP -= res.TargetDamage
	attacker.CurrentHP -= res.AttackerDamage
	attacker.HasAttacked = true

	out := Resolution{Result: res, Effects: state.EffectSet{}}
	mine, theirs := out.Effects.For(ps.ID), out.Effects.For(opp.ID)

	ps.Counters.DamageDealt += res.TargetDamage
	mine.DamageDealt += res.TargetDamage
	opp.Counters.DamageDealt += res.AttackerDamage
	theirs.DamageDealt += res.AttackerDamage

	if res.TargetDamage > 0 {
		out.Affected = append(out.Affected, Casualty{Unit: *target.Clone(), Damage: res.TargetDamage, Died: res.TargetDestroyed})
	}
	if res.AttackerDamage > 0 {
		out.Affected = append(out.Affected, Casualty{Unit: *attacker.Clone(), Damage: res.AttackerDamage, Died: res.AttackerDestroyed})
	}

	if res.TargetDestroyed {
		opp.Bury(opp.Board.Remove(target.InstanceID))
		ps.Counters.UnitsKilled++
		mine.UnitsKilled++
	}
	if res.AttackerDestroyed {
		ps.Bury(ps.Board.Remove(attacker.InstanceID))
		opp.Counters.UnitsKilled++
		theirs.UnitsKilled++
	}
	return out, nil
}
