// Package placement validates and executes unit placement against faction
// formations.
package placement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/voidecho/voidecho-server-go/internal/game/formation"
	"github.com/voidecho/voidecho-server-go/internal/game/rules"
	"github.com/voidecho/voidecho-server-go/internal/game/state"
	"github.com/voidecho/voidecho-server-go/internal/store"
)

// Result is the full placement check of one card and cell.
type Result struct {
	CanPlace         bool          `json:"can_place"`
	ResourceCost     int           `json:"resource_cost"`
	FormationValid   bool          `json:"formation_valid"`
	PositionOccupied bool          `json:"position_occupied"`
	Errors           []rules.Issue `json:"errors,omitempty"`
}

// Observer sees a placement after it is applied and before it commits.
type Observer func(gs *state.GameState, action state.GameAction, effects state.EffectSet)

// Engine owns placement rules. It is safe for concurrent use.
type Engine struct {
	table    *formation.Table
	store    *store.Store
	observer Observer
	now      func() time.Time
	logger   *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithObserver registers the commit observer, usually the quest tracker.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// New builds a placement engine. st may be nil when only validation and
// Apply are used.
func New(table *formation.Table, st *store.Store, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		table:  table,
		store:  st,
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ValidatePlacement runs every placement check for cardID at pos. cardID may
// be an instance id or a catalog id.
func (e *Engine) ValidatePlacement(gs *state.GameState, playerID, cardID string, pos state.Position) Result {
	res := Result{}
	ps := gs.Player(playerID)
	if ps == nil {
		res.Errors = append(res.Errors, rules.Errorf(rules.CodePlayerNotFound, "player %s is not seated in game %s", playerID, gs.ID))
		return res
	}

	_, card := ps.FindInHand(cardID)
	if card == nil {
		res.Errors = append(res.Errors, rules.Errorf(rules.CodeCardNotInHand, "card %s is not in hand", cardID))
	} else {
		res.ResourceCost = card.Cost
		if card.Type != state.CardTypeUnit {
			res.Errors = append(res.Errors, rules.Errorf(rules.CodeNotUnitCard, "card %s is a %s", cardID, card.Type))
		}
	}

	if !pos.InBounds() {
		res.Errors = append(res.Errors, rules.Errorf(rules.CodeInvalidPosition, "position %s is off the board", pos))
	} else {
		res.FormationValid = e.table.IsValidPosition(ps.Faction, pos)
		if !res.FormationValid {
			res.Errors = append(res.Errors, rules.Errorf(rules.CodeInvalidFormationPosition, "%s cannot deploy at %s", ps.Faction, pos))
		}
		res.PositionOccupied = ps.Board.IsOccupied(pos)
		if res.PositionOccupied {
			res.Errors = append(res.Errors, rules.Errorf(rules.CodePositionOccupied, "position %s is occupied", pos))
		}
	}

	if card != nil && card.Cost > ps.Resources {
		res.Errors = append(res.Errors, rules.Errorf(rules.CodeInsufficientResources, "card %s costs %d, %d available", cardID, card.Cost, ps.Resources))
	}

	res.CanPlace = len(res.Errors) == 0
	return res
}

// CheckPlacement adapts ValidatePlacement to rules.PlacementChecker.
func (e *Engine) CheckPlacement(gs *state.GameState, playerID, cardID string, pos state.Position) []rules.Issue {
	return e.ValidatePlacement(gs, playerID, cardID, pos).Errors
}

// Apply performs a validated placement on gs and returns its effects. It does
// not append the action to history.
func (e *Engine) Apply(gs *state.GameState, action state.GameAction) (state.EffectSet, error) {
	if action.Type != state.ActionPlaceUnit || action.Place == nil {
		return nil, fmt.Errorf("apply placement: unexpected action %s", action.Type)
	}
	ps := gs.Player(action.PlayerID)
	if ps == nil {
		return nil, fmt.Errorf("apply placement: player %s not seated", action.PlayerID)
	}
	idx, card := ps.FindInHand(action.Place.CardID)
	if card == nil {
		return nil, fmt.Errorf("apply placement: card %s not in hand", action.Place.CardID)
	}

	c := ps.RemoveFromHand(idx)
	unit := &state.BoardCard{
		Card:             c,
		OwnerID:          ps.ID,
		Position:         action.Place.Position,
		CurrentHP:        c.HP,
		CanAttack:        false,
		CanMove:          false,
		HasAttacked:      false,
		SummonedThisTurn: true,
	}
	if err := ps.Board.Place(unit); err != nil {
		return nil, fmt.Errorf("apply placement: %w", err)
	}
	ps.Resources -= c.Cost
	ps.Counters.UnitsPlaced++

	effects := state.EffectSet{}
	mine := effects.For(ps.ID)
	mine.UnitsPlaced = 1
	mine.SynergyCombos = synergy(ps, unit)
	return effects, nil
}

// synergy counts friendly units of the same faction orthogonally adjacent to
// the newly placed unit.
func synergy(ps *state.PlayerState, placed *state.BoardCard) int {
	n := 0
	for _, p := range placed.Position.Neighbors() {
		if u := ps.Board.At(p); u != nil && u.Faction == placed.Faction {
			n++
		}
	}
	return n
}

// ExecutePlacement validates and commits a placement in one store update.
// A rejected placement returns a nil state, the failing Result and a nil
// error; no state is changed. Version conflicts are returned, never retried.
func (e *Engine) ExecutePlacement(ctx context.Context, gameID, playerID, cardID string, pos state.Position, expectedVersion int64) (*state.GameState, Result, error) {
	if e.store == nil {
		return nil, Result{}, errors.New("placement engine has no store")
	}

	var res Result
	gs, err := e.store.Update(ctx, gameID, expectedVersion, func(gs *state.GameState) error {
		action := state.NewPlaceUnit(playerID, cardID, pos)
		action.Turn = gs.Turn
		action.Phase = gs.Phase
		action.Timestamp = e.now()

		res = e.ValidatePlacement(gs, playerID, cardID, pos)
		common := rules.CheckCommon(gs, action)
		if len(common) > 0 {
			res.Errors = rules.Dedupe(append(common, res.Errors...))
			res.CanPlace = false
		}
		if !res.CanPlace {
			return rules.Reject(rules.ValidationResult{Errors: res.Errors})
		}

		effects, err := e.Apply(gs, action)
		if err != nil {
			return err
		}
		action.ResourceCost = res.ResourceCost
		action.Valid = true
		gs.ActionHistory = append(gs.ActionHistory, action)
		rules.Tick(gs, action.Timestamp)
		if e.observer != nil {
			e.observer(gs, action, effects)
		}
		return nil
	})

	var rejected *rules.RejectionError
	if errors.As(err, &rejected) {
		e.logger.Debug("placement rejected",
			zap.String("game_id", gameID),
			zap.String("player_id", playerID),
			zap.Any("codes", rejected.Result.Codes()),
		)
		return nil, res, nil
	}
	if err != nil {
		return nil, res, err
	}

	e.logger.Debug("placement committed",
		zap.String("game_id", gameID),
		zap.String("player_id", playerID),
		zap.String("card_id", cardID),
		zap.Stringer("position", pos),
		zap.Int64("version", gs.Version),
	)
	return gs, res, nil
}
