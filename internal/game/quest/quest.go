// Package quest assigns faction quests and advances them from committed
// action effects.
package quest

import (
	"fmt"
	"math/rand/v2"
	"sync"

	"go.uber.org/zap"

	"github.com/voidecho/voidecho-server-go/internal/game/rules"
	"github.com/voidecho/voidecho-server-go/internal/game/state"
)

// Definition is a quest template from a faction pool.
type Definition struct {
	ID        string
	Name      string
	Faction   state.Faction
	Condition state.ConditionType
	Target    int
}

// MilestonePercents are the fractions of the target at which progress is
// announced.
var MilestonePercents = []int{25, 50, 75}

var basePools = map[state.Faction][]Definition{
	state.FactionHumans: {
		{ID: "humans_last_stand", Name: "Last Stand", Faction: state.FactionHumans, Condition: state.ConditionSurvival, Target: 8},
		{ID: "humans_fortify", Name: "Fortify", Faction: state.FactionHumans, Condition: state.ConditionTerritory, Target: 6},
	},
	state.FactionAliens: {
		{ID: "aliens_hive_bloom", Name: "Hive Bloom", Faction: state.FactionAliens, Condition: state.ConditionSynergy, Target: 5},
		{ID: "aliens_harvest", Name: "Harvest", Faction: state.FactionAliens, Condition: state.ConditionElimination, Target: 5},
	},
	state.FactionRobots: {
		{ID: "robots_purge_protocol", Name: "Purge Protocol", Faction: state.FactionRobots, Condition: state.ConditionElimination, Target: 6},
		{ID: "robots_grid_lock", Name: "Grid Lock", Faction: state.FactionRobots, Condition: state.ConditionTerritory, Target: 7},
	},
}

// Tracker assigns and advances quests. It holds no per-game state.
type Tracker struct {
	pools  map[state.Faction][]Definition
	byID   map[string]Definition
	logger *zap.Logger

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewTracker builds a tracker over the base quest pools. src drives random
// assignment; nil seeds from the runtime.
func NewTracker(logger *zap.Logger, src rand.Source) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	t := &Tracker{
		pools:  basePools,
		byID:   make(map[string]Definition),
		logger: logger,
		rnd:    rand.New(src),
	}
	for _, pool := range basePools {
		for _, d := range pool {
			t.byID[d.ID] = d
		}
	}
	return t
}

// Pool returns the quests available to faction f.
func (t *Tracker) Pool(f state.Faction) []Definition {
	return append([]Definition(nil), t.pools[f]...)
}

// Definition looks a quest up by id.
func (t *Tracker) Definition(id string) (Definition, bool) {
	d, ok := t.byID[id]
	return d, ok
}

// AssignQuest picks preferredID when it belongs to f's pool, otherwise a
// uniformly random quest from the pool.
func (t *Tracker) AssignQuest(f state.Faction, preferredID string) (state.QuestProgress, error) {
	pool := t.pools[f]
	if len(pool) == 0 {
		return state.QuestProgress{}, fmt.Errorf("no quests for faction %q", f)
	}

	var def Definition
	if d, ok := t.byID[preferredID]; ok && d.Faction == f {
		def = d
	} else {
		if preferredID != "" {
			t.logger.Debug("preferred quest not in faction pool",
				zap.String("faction", string(f)),
				zap.String("quest_id", preferredID),
			)
		}
		t.mu.Lock()
		def = pool[t.rnd.IntN(len(pool))]
		t.mu.Unlock()
	}

	return state.QuestProgress{
		QuestID:       def.ID,
		Faction:       f,
		ConditionType: def.Condition,
		TargetValue:   def.Target,
	}, nil
}

// UpdateQuestProgress advances ps's quest from effects and reports whether
// the quest is complete.
func (t *Tracker) UpdateQuestProgress(gs *state.GameState, ps *state.PlayerState, action state.GameAction, effects *state.Effects) bool {
	q := ps.Quest
	if q == nil {
		return false
	}
	if q.IsCompleted {
		return true
	}
	if effects == nil {
		effects = &state.Effects{}
	}

	switch q.ConditionType {
	case state.ConditionElimination:
		q.CurrentValue += effects.UnitsKilled
	case state.ConditionTerritory:
		q.CurrentValue = max(q.CurrentValue, ps.Board.Count())
	case state.ConditionSynergy:
		q.CurrentValue += effects.SynergyCombos
	case state.ConditionSurvival:
		q.CurrentValue += effects.TurnsSurvived
	}

	for _, m := range milestoneValues(q.TargetValue) {
		if q.CurrentValue >= m && !contains(q.Milestones, m) {
			q.Milestones = append(q.Milestones, m)
		}
	}

	if q.CurrentValue >= q.TargetValue {
		q.IsCompleted = true
		t.logger.Info("quest completed",
			zap.String("game_id", gs.ID),
			zap.String("player_id", ps.ID),
			zap.String("quest_id", q.QuestID),
			zap.String("action_type", string(action.Type)),
		)
	}
	return q.IsCompleted
}

// Report is what Observe changed for one player.
type Report struct {
	PlayerID      string
	QuestID       string
	NewMilestones []int
	Completed     bool
}

// Observe runs after an action is applied and before it is committed. The
// acting player is evaluated first, so a simultaneous completion goes to them.
// A completed quest ends the game.
func (t *Tracker) Observe(gs *state.GameState, action state.GameAction, effects state.EffectSet) []Report {
	if gs.GameOver {
		return nil
	}
	order := []string{action.PlayerID, gs.OpponentID(action.PlayerID)}
	var reports []Report
	for _, id := range order {
		ps := gs.Player(id)
		if ps == nil || ps.Quest == nil || ps.Quest.IsCompleted {
			continue
		}
		before := len(ps.Quest.Milestones)
		done := t.UpdateQuestProgress(gs, ps, action, effects[id])
		r := Report{PlayerID: id, QuestID: ps.Quest.QuestID, Completed: done}
		if len(ps.Quest.Milestones) > before {
			r.NewMilestones = append([]int(nil), ps.Quest.Milestones[before:]...)
		}
		if done || len(r.NewMilestones) > 0 {
			reports = append(reports, r)
		}
		if done && !gs.GameOver {
			rules.EndGame(gs, id, state.EndReasonQuestComplete)
		}
	}
	return reports
}

func milestoneValues(target int) []int {
	out := make([]int, 0, len(MilestonePercents))
	for _, p := range MilestonePercents {
		v := (target*p + 99) / 100
		if v > 0 && v < target && !contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}

func contains(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}
