package placement

import (
	"context"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/voidecho/voidecho-server-go/internal/game/formation"
	"github.com/voidecho/voidecho-server-go/internal/game/quest"
	"github.com/voidecho/voidecho-server-go/internal/game/rules"
	"github.com/voidecho/voidecho-server-go/internal/game/state"
	"github.com/voidecho/voidecho-server-go/internal/store"
)

type deckCatalog struct{}

func (deckCatalog) Deck(_ context.Context, id string) (state.Deck, error) {
	for _, f := range state.Factions {
		if id != store.DefaultDeckID(f) {
			continue
		}
		d := state.Deck{ID: id, Faction: f}
		for i := 0; i < state.DeckSize; i++ {
			cid := fmt.Sprintf("%s_%d", f, i/state.MaxCopies)
			d.Cards = append(d.Cards, state.Card{ID: cid, Faction: f, Type: state.CardTypeUnit, Cost: 1, Attack: 1, HP: 1})
		}
		return d, nil
	}
	return state.Deck{}, store.ErrDeckNotFound
}

type fixture struct {
	store  *store.Store
	engine *Engine
	game   *state.GameState
	seen   []state.EffectSet
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	st := store.New(store.NewMemoryPersistence(logger), deckCatalog{}, quest.NewTracker(logger, rand.NewPCG(1, 1)), store.DefaultConfig(), logger)
	f := &fixture{store: st}
	f.engine = New(formation.NewTable(), st, logger, WithObserver(func(_ *state.GameState, _ state.GameAction, e state.EffectSet) {
		f.seen = append(f.seen, e)
	}))

	ctx := context.Background()
	gs, err := st.Create(ctx, store.CreateConfig{
		Player1ID:      "alice",
		Player2ID:      "bob",
		Player1Faction: state.FactionHumans,
		Player2Faction: state.FactionRobots,
	})
	require.NoError(t, err)

	gs, err = st.Update(ctx, gs.ID, gs.Version, func(gs *state.GameState) error {
		gs.Status = state.StatusActive
		gs.Phase = state.PhaseActions
		alice := gs.Players["alice"]
		alice.Resources = 5
		alice.Hand = []state.Card{
			{ID: "knight", InstanceID: "knight#1", Faction: state.FactionHumans, Type: state.CardTypeUnit, Cost: 3, Attack: 3, HP: 4},
			{ID: "squire", InstanceID: "squire#1", Faction: state.FactionHumans, Type: state.CardTypeUnit, Cost: 1, Attack: 1, HP: 1},
			{ID: "rally", InstanceID: "rally#1", Faction: state.FactionHumans, Type: state.CardTypeSpell, Cost: 1},
			{ID: "titan", InstanceID: "titan#1", Faction: state.FactionHumans, Type: state.CardTypeUnit, Cost: 9, Attack: 9, HP: 9},
		}
		return nil
	})
	require.NoError(t, err)
	f.game = gs
	return f
}

func TestExecutePlacementDeltas(t *testing.T) {
	f := newFixture(t)
	before := f.game
	alice := before.Players["alice"]

	after, res, err := f.engine.ExecutePlacement(context.Background(), before.ID, "alice", "knight#1", state.Position{Row: 0, Col: 0}, before.Version)
	require.NoError(t, err)
	require.True(t, res.CanPlace, "errors: %+v", res.Errors)
	require.NotNil(t, after)

	got := after.Players["alice"]
	assert.Len(t, got.Hand, len(alice.Hand)-1)
	assert.Equal(t, alice.Board.Count()+1, got.Board.Count())
	assert.Equal(t, alice.Resources-3, got.Resources)
	assert.Equal(t, before.Version+1, after.Version)
	require.Len(t, after.ActionHistory, len(before.ActionHistory)+1)

	last, _ := after.LastAction()
	assert.Equal(t, state.ActionPlaceUnit, last.Type)
	assert.Equal(t, 3, last.ResourceCost)
	assert.True(t, last.Valid)

	unit := got.Board.At(state.Position{Row: 0, Col: 0})
	require.NotNil(t, unit)
	assert.Equal(t, 4, unit.CurrentHP)
	assert.True(t, unit.SummonedThisTurn)
	assert.False(t, unit.CanAttack)
	assert.False(t, unit.CanMove)
	assert.False(t, unit.HasAttacked)
	assert.Equal(t, 1, got.Counters.UnitsPlaced)
}

func TestValidatePlacementOccupiedCell(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gs, _, err := f.engine.ExecutePlacement(ctx, f.game.ID, "alice", "knight#1", state.Position{Row: 0, Col: 0}, f.game.Version)
	require.NoError(t, err)

	res := f.engine.ValidatePlacement(gs, "alice", "squire#1", state.Position{Row: 0, Col: 0})
	assert.False(t, res.CanPlace)
	assert.True(t, res.FormationValid)
	assert.True(t, res.PositionOccupied)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, rules.CodePositionOccupied, res.Errors[0].Code)
}

func TestValidatePlacementAccumulates(t *testing.T) {
	f := newFixture(t)

	res := f.engine.ValidatePlacement(f.game, "alice", "titan#1", state.Position{Row: 2, Col: 0})
	codes := []rules.Code{}
	for _, is := range res.Errors {
		codes = append(codes, is.Code)
	}
	assert.Equal(t, []rules.Code{rules.CodeInvalidFormationPosition, rules.CodeInsufficientResources}, codes)
	assert.Equal(t, 9, res.ResourceCost)

	res = f.engine.ValidatePlacement(f.game, "alice", "rally#1", state.Position{Row: 5, Col: 0})
	codes = codes[:0]
	for _, is := range res.Errors {
		codes = append(codes, is.Code)
	}
	assert.Equal(t, []rules.Code{rules.CodeNotUnitCard, rules.CodeInvalidPosition}, codes)

	res = f.engine.ValidatePlacement(f.game, "alice", "ghost", state.Position{Row: 0, Col: 1})
	require.Len(t, res.Errors, 1)
	assert.Equal(t, rules.CodeCardNotInHand, res.Errors[0].Code)

	res = f.engine.ValidatePlacement(f.game, "carol", "knight#1", state.Position{})
	require.Len(t, res.Errors, 1)
	assert.Equal(t, rules.CodePlayerNotFound, res.Errors[0].Code)
}

func TestRejectedPlacementLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	gs, res, err := f.engine.ExecutePlacement(ctx, f.game.ID, "bob", "knight#1", state.Position{Row: 0, Col: 0}, f.game.Version)
	require.NoError(t, err)
	assert.Nil(t, gs)
	assert.False(t, res.CanPlace)

	stored, err := f.store.Get(ctx, f.game.ID)
	require.NoError(t, err)
	assert.Equal(t, f.game.Version, stored.Version)
	assert.Equal(t, f.game.ActionHistory, stored.ActionHistory)
	assert.Empty(t, f.seen)
}

func TestConcurrentPlacementConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.engine.ExecutePlacement(ctx, f.game.ID, "alice", "knight#1", state.Position{Row: 0, Col: 0}, f.game.Version)
	require.NoError(t, err)

	_, _, err = f.engine.ExecutePlacement(ctx, f.game.ID, "alice", "squire#1", state.Position{Row: 0, Col: 1}, f.game.Version)
	assert.ErrorIs(t, err, store.ErrOptimisticLock)
}

func TestSynergyEffects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	gs, _, err := f.engine.ExecutePlacement(ctx, f.game.ID, "alice", "knight#1", state.Position{Row: 0, Col: 1}, f.game.Version)
	require.NoError(t, err)
	_, _, err = f.engine.ExecutePlacement(ctx, gs.ID, "alice", "squire#1", state.Position{Row: 1, Col: 1}, gs.Version)
	require.NoError(t, err)

	require.Len(t, f.seen, 2)
	assert.Equal(t, 0, f.seen[0]["alice"].SynergyCombos)
	assert.Equal(t, 1, f.seen[1]["alice"].SynergyCombos)
}

func TestExecutePlacementReportsEachCodeOnce(t *testing.T) {
	f := newFixture(t)

	gs, res, err := f.engine.ExecutePlacement(context.Background(), f.game.ID, "carol", "knight#1", state.Position{Row: 0, Col: 0}, f.game.Version)
	require.NoError(t, err)
	assert.Nil(t, gs)
	assert.False(t, res.CanPlace)

	seen := map[rules.Code]int{}
	for _, is := range res.Errors {
		seen[is.Code]++
	}
	assert.Equal(t, 1, seen[rules.CodePlayerNotFound])
	for code, n := range seen {
		assert.Equal(t, 1, n, "code %s reported %d times", code, n)
	}
}
