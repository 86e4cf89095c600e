package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestState() *GameState {
	gs := &GameState{
		ID:            "game-123",
		GameNumber:    7,
		Player1ID:     "alice",
		Player2ID:     "bob",
		CurrentPlayer: "alice",
		Turn:          3,
		Phase:         PhaseActions,
		Status:        StatusActive,
		Version:       4,
		TimeLimit:     90 * time.Second,
		CreatedAt:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Players: map[string]*PlayerState{
			"alice": {
				ID:        "alice",
				Faction:   FactionHumans,
				Hand:      []Card{{ID: "knight", InstanceID: "k1", Type: CardTypeUnit, Cost: 3}},
				Deck:      []Card{{ID: "militia", InstanceID: "m1"}, {ID: "militia", InstanceID: "m2"}},
				Resources: 4,
				Quest:     &QuestProgress{QuestID: "humans_fortify", ConditionType: ConditionTerritory, TargetValue: 6, CurrentValue: 2, Milestones: []int{2}},
			},
			"bob": {
				ID:        "bob",
				Faction:   FactionRobots,
				Graveyard: []Card{{ID: "sentry", InstanceID: "s1"}},
				Resources: 2,
			},
		},
		ActionHistory: []GameAction{
			{ID: "a1", PlayerID: "alice", Type: ActionPlaceUnit, Turn: 1, Phase: PhaseActions, Place: &PlacePayload{CardID: "k0", Position: Position{0, 0}}, Valid: true},
			{ID: "a2", PlayerID: "alice", Type: ActionEndTurn, Turn: 1, Phase: PhaseActions, Valid: true},
		},
	}
	_ = gs.Players["alice"].Board.Place(&BoardCard{
		Card:      Card{ID: "knight", InstanceID: "k0", Attack: 3, HP: 3, Abilities: []Ability{{Keyword: "guard", Params: map[string]string{"x": "1"}}}},
		OwnerID:   "alice",
		Position:  Position{0, 0},
		CurrentHP: 2,
		CanAttack: true,
	})
	return gs
}

// TestDeterministicChecksum verifies identical states hash identically
// regardless of map iteration order.
func TestDeterministicChecksum(t *testing.T) {
	expected, err := ComputeChecksum(createTestState())
	require.NoError(t, err)
	assert.Equal(t, ChecksumVersion, expected.Version)

	for i := 0; i < 10; i++ {
		got, err := ComputeChecksum(createTestState())
		require.NoError(t, err)
		assert.Equal(t, expected.Hash, got.Hash, "checksum %d differs", i)
	}
}

// TestChecksumDetectsChanges verifies that meaningful changes alter the hash.
func TestChecksumDetectsChanges(t *testing.T) {
	base, err := ComputeChecksum(createTestState())
	require.NoError(t, err)

	mutations := map[string]func(*GameState){
		"turn":      func(gs *GameState) { gs.Turn++ },
		"resources": func(gs *GameState) { gs.Players["bob"].Resources = 9 },
		"unit hp":   func(gs *GameState) { gs.Players["alice"].Board.Units[0].CurrentHP = 1 },
		"deck":      func(gs *GameState) { d := gs.Players["alice"].Deck; d[0], d[1] = d[1], d[0] },
		"quest":     func(gs *GameState) { gs.Players["alice"].Quest.CurrentValue = 3 },
		"history":   func(gs *GameState) { gs.ActionHistory = gs.ActionHistory[:1] },
	}
	for name, mutate := range mutations {
		gs := createTestState()
		mutate(gs)
		got, err := ComputeChecksum(gs)
		require.NoError(t, err)
		assert.NotEqual(t, base.Hash, got.Hash, "%s change not detected", name)
	}
}

// TestChecksumIgnoresTimestamps verifies that wall-clock fields do not
// affect the hash.
func TestChecksumIgnoresTimestamps(t *testing.T) {
	a := createTestState()
	b := createTestState()
	b.LastActionAt = time.Now()
	b.TurnStartedAt = time.Now()

	ca, err := ComputeChecksum(a)
	require.NoError(t, err)
	ok, err := VerifyChecksum(b, ca.Hash)
	require.NoError(t, err)
	assert.True(t, ok)
}

// TestSerializationRoundtrip verifies gob encoding preserves the state.
func TestSerializationRoundtrip(t *testing.T) {
	gs := createTestState()
	require.NoError(t, ValidateSerializationRoundtrip(gs))

	data, err := SerializeToBytes(gs)
	require.NoError(t, err)
	decoded, err := DeserializeFromBytes(data)
	require.NoError(t, err)
	assert.Equal(t, gs.Players["alice"].Board.Units[0].Abilities, decoded.Players["alice"].Board.Units[0].Abilities)
	assert.Equal(t, gs.TimeLimit, decoded.TimeLimit)

	_, err = DeserializeFromBytes([]byte("not gob"))
	assert.Error(t, err)
}
