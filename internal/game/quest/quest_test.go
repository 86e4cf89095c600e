package quest

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/voidecho/voidecho-server-go/internal/game/state"
)

func newTestTracker(t *testing.T) *Tracker {
	return NewTracker(zaptest.NewLogger(t), rand.NewPCG(1, 2))
}

func inPool(tr *Tracker, f state.Faction, id string) bool {
	for _, d := range tr.Pool(f) {
		if d.ID == id {
			return true
		}
	}
	return false
}

func TestAssignQuestPerFaction(t *testing.T) {
	tr := newTestTracker(t)
	seen := map[string]bool{}
	for _, f := range state.Factions {
		q, err := tr.AssignQuest(f, "")
		require.NoError(t, err)
		if !inPool(tr, f, q.QuestID) {
			t.Fatalf("%s got quest %s from another pool", f, q.QuestID)
		}
		if seen[q.QuestID] {
			t.Fatalf("quest %s assigned to two factions", q.QuestID)
		}
		seen[q.QuestID] = true
		assert.Equal(t, 0, q.CurrentValue)
		assert.False(t, q.IsCompleted)
		assert.Positive(t, q.TargetValue)
	}
}

func TestAssignQuestPreferred(t *testing.T) {
	tr := newTestTracker(t)

	q, err := tr.AssignQuest(state.FactionRobots, "robots_grid_lock")
	require.NoError(t, err)
	assert.Equal(t, "robots_grid_lock", q.QuestID)
	assert.Equal(t, state.ConditionTerritory, q.ConditionType)
	assert.Equal(t, 7, q.TargetValue)

	for i := 0; i < 20; i++ {
		q, err = tr.AssignQuest(state.FactionRobots, "humans_last_stand")
		require.NoError(t, err)
		assert.True(t, inPool(tr, state.FactionRobots, q.QuestID), "foreign id leaked: %s", q.QuestID)
	}

	_, err = tr.AssignQuest("pirates", "")
	assert.Error(t, err)
}

func TestUpdateProgressByCondition(t *testing.T) {
	tr := newTestTracker(t)
	gs := &state.GameState{ID: "g1"}

	elim := &state.PlayerState{ID: "p", Quest: &state.QuestProgress{ConditionType: state.ConditionElimination, TargetValue: 5}}
	tr.UpdateQuestProgress(gs, elim, state.NewEndTurn("p"), &state.Effects{UnitsKilled: 2})
	assert.Equal(t, 2, elim.Quest.CurrentValue)

	terr := &state.PlayerState{ID: "p", Quest: &state.QuestProgress{ConditionType: state.ConditionTerritory, TargetValue: 6, CurrentValue: 3}}
	require.NoError(t, terr.Board.Place(&state.BoardCard{Card: state.Card{InstanceID: "u1"}, Position: state.Position{Row: 0, Col: 0}}))
	tr.UpdateQuestProgress(gs, terr, state.NewEndTurn("p"), nil)
	assert.Equal(t, 3, terr.Quest.CurrentValue, "territory never decreases")

	syn := &state.PlayerState{ID: "p", Quest: &state.QuestProgress{ConditionType: state.ConditionSynergy, TargetValue: 5}}
	tr.UpdateQuestProgress(gs, syn, state.NewEndTurn("p"), &state.Effects{SynergyCombos: 2})
	assert.Equal(t, 2, syn.Quest.CurrentValue)

	surv := &state.PlayerState{ID: "p", Quest: &state.QuestProgress{ConditionType: state.ConditionSurvival, TargetValue: 8}}
	tr.UpdateQuestProgress(gs, surv, state.NewEndTurn("p"), &state.Effects{TurnsSurvived: 1})
	assert.Equal(t, 1, surv.Quest.CurrentValue)
}

func TestCompletionAndMilestones(t *testing.T) {
	tr := newTestTracker(t)
	gs := &state.GameState{ID: "g1"}
	ps := &state.PlayerState{ID: "p", Quest: &state.QuestProgress{ConditionType: state.ConditionSurvival, TargetValue: 8}}

	for i := 1; i < 8; i++ {
		if tr.UpdateQuestProgress(gs, ps, state.NewEndTurn("p"), &state.Effects{TurnsSurvived: 1}) {
			t.Fatalf("completed early at %d", i)
		}
	}
	assert.Equal(t, []int{2, 4, 6}, ps.Quest.Milestones)
	assert.True(t, tr.UpdateQuestProgress(gs, ps, state.NewEndTurn("p"), &state.Effects{TurnsSurvived: 1}))
	assert.True(t, ps.Quest.IsCompleted)
}

func TestObserveEndsGameOnCompletion(t *testing.T) {
	tr := newTestTracker(t)
	gs := &state.GameState{
		ID:        "g1",
		Player1ID: "alice",
		Player2ID: "bob",
		Status:    state.StatusActive,
		Players: map[string]*state.PlayerState{
			"alice": {ID: "alice", Quest: &state.QuestProgress{QuestID: "aliens_harvest", ConditionType: state.ConditionElimination, TargetValue: 5, CurrentValue: 4}},
			"bob":   {ID: "bob", Quest: &state.QuestProgress{QuestID: "robots_purge_protocol", ConditionType: state.ConditionElimination, TargetValue: 6}},
		},
	}
	effects := state.EffectSet{}
	effects.For("alice").UnitsKilled = 1
	effects.For("bob").UnitsKilled = 1

	reports := tr.Observe(gs, state.NewAttack("alice", "a", "b"), effects)

	require.True(t, gs.GameOver)
	assert.Equal(t, "alice", gs.Winner)
	assert.Equal(t, state.EndReasonQuestComplete, gs.EndReason)
	require.NotEmpty(t, reports)
	assert.True(t, reports[0].Completed)
	assert.Equal(t, 1, gs.Players["bob"].Quest.CurrentValue)
}
