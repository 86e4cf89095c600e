package repository

import (
	"context"
	"errors"
	"math/rand/v2"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/voidecho/voidecho-server-go/internal/catalog"
	"github.com/voidecho/voidecho-server-go/internal/game/quest"
	"github.com/voidecho/voidecho-server-go/internal/game/state"
	"github.com/voidecho/voidecho-server-go/internal/store"
)

func openTempStore(t *testing.T) (*SQLite, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "games.db")
	s, err := OpenSQLite(context.Background(), path, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s, path
}

func sampleGame(id string, version int64) *state.GameState {
	return &state.GameState{
		ID:            id,
		GameNumber:    7,
		Player1ID:     "alice",
		Player2ID:     "bob",
		CurrentPlayer: "alice",
		Turn:          1,
		Phase:         state.PhaseResources,
		Status:        state.StatusWaiting,
		Version:       version,
		TimeLimit:     90 * time.Second,
		CreatedAt:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Players: map[string]*state.PlayerState{
			"alice": {ID: "alice", Faction: state.FactionHumans, Resources: 1},
			"bob":   {ID: "bob", Faction: state.FactionRobots},
		},
	}
}

// TestSQLiteSaveLoad verifies that a stored snapshot reads back intact.
func TestSQLiteSaveLoad(t *testing.T) {
	s, _ := openTempStore(t)
	ctx := context.Background()

	gs := sampleGame("g1", 1)
	require.NoError(t, s.SaveGameState(ctx, gs, 0))

	loaded, err := s.LoadGameState(ctx, "g1")
	require.NoError(t, err)

	want, err := state.ComputeChecksum(gs)
	require.NoError(t, err)
	got, err := state.ComputeChecksum(loaded)
	require.NoError(t, err)
	assert.Equal(t, want.Hash, got.Hash)
	assert.Equal(t, int64(1), loaded.Version)
	assert.Equal(t, 1, loaded.Players["alice"].Resources)

	_, err = s.LoadGameState(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrGameNotFound)
}

// TestSQLiteVersionCheck verifies the conditional write.
func TestSQLiteVersionCheck(t *testing.T) {
	s, _ := openTempStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveGameState(ctx, sampleGame("g1", 1), 0))
	require.NoError(t, s.SaveGameState(ctx, sampleGame("g1", 2), 1))

	err := s.SaveGameState(ctx, sampleGame("g1", 2), 1)
	require.ErrorIs(t, err, store.ErrOptimisticLock)
	var lockErr *store.OptimisticLockError
	require.True(t, errors.As(err, &lockErr))
	assert.Equal(t, int64(1), lockErr.Expected)
	assert.Equal(t, int64(2), lockErr.Actual)

	err = s.SaveGameState(ctx, sampleGame("g1", 1), 0)
	assert.ErrorIs(t, err, store.ErrOptimisticLock)

	err = s.SaveGameState(ctx, sampleGame("nope", 2), 1)
	assert.ErrorIs(t, err, store.ErrGameNotFound)

	loaded, err := s.LoadGameState(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), loaded.Version)
}

// TestSQLiteCorruptSnapshot verifies that tampered rows are refused.
func TestSQLiteCorruptSnapshot(t *testing.T) {
	s, _ := openTempStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveGameState(ctx, sampleGame("g1", 1), 0))
	_, err := s.db.ExecContext(ctx, "UPDATE games SET checksum = 'deadbeef' WHERE id = 'g1'")
	require.NoError(t, err)

	_, err = s.LoadGameState(ctx, "g1")
	assert.ErrorIs(t, err, store.ErrCorruptSnapshot)

	_, err = s.db.ExecContext(ctx, "UPDATE games SET snapshot = '{' WHERE id = 'g1'")
	require.NoError(t, err)
	_, err = s.LoadGameState(ctx, "g1")
	assert.ErrorIs(t, err, store.ErrCorruptSnapshot)
}

func TestSQLiteDelete(t *testing.T) {
	s, _ := openTempStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveGameState(ctx, sampleGame("g1", 1), 0))
	require.NoError(t, s.DeleteGameState(ctx, "g1"))
	assert.ErrorIs(t, s.DeleteGameState(ctx, "g1"), store.ErrGameNotFound)
}

// TestSQLiteGameNumbersSurviveReopen verifies that numbering continues after
// a restart and that migrations are not replayed.
func TestSQLiteGameNumbersSurviveReopen(t *testing.T) {
	s, path := openTempStore(t)
	ctx := context.Background()

	n1, err := s.NextGameNumber(ctx)
	require.NoError(t, err)
	n2, err := s.NextGameNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n1)
	assert.Equal(t, int64(2), n2)
	require.NoError(t, s.SaveGameState(ctx, sampleGame("g1", 1), 0))
	require.NoError(t, s.Close())

	reopened, err := OpenSQLite(ctx, path, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer reopened.Close()

	n3, err := reopened.NextGameNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n3)

	waiting, err := reopened.CountByStatus(ctx, state.StatusWaiting)
	require.NoError(t, err)
	assert.Equal(t, 1, waiting)
}

// TestStoreOnSQLite verifies the store's optimistic locking end to end on a
// durable backend.
func TestStoreOnSQLite(t *testing.T) {
	s, _ := openTempStore(t)
	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	cat, err := catalog.Default()
	require.NoError(t, err)
	st := store.New(s, cat, quest.NewTracker(logger, rand.NewPCG(1, 2)), store.DefaultConfig(), logger,
		store.WithRandSource(rand.NewPCG(3, 4)))

	gs, err := st.Create(ctx, store.CreateConfig{
		Player1ID:      "alice",
		Player2ID:      "bob",
		Player1Faction: state.FactionHumans,
		Player2Faction: state.FactionAliens,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), gs.GameNumber)

	first, err := st.Update(ctx, gs.ID, 1, func(g *state.GameState) error {
		g.Player("alice").Ready = true
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), first.Version)

	_, err = st.Update(ctx, gs.ID, 1, func(g *state.GameState) error {
		g.Player("bob").Ready = true
		return nil
	})
	require.ErrorIs(t, err, store.ErrOptimisticLock)

	stored, err := s.LoadGameState(ctx, gs.ID)
	require.NoError(t, err)
	assert.True(t, stored.Player("alice").Ready)
	assert.False(t, stored.Player("bob").Ready)
}
