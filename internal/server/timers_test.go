package server

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/voidecho/voidecho-server-go/internal/game"
	"github.com/voidecho/voidecho-server-go/internal/game/state"
	"github.com/voidecho/voidecho-server-go/internal/store"
)

// timeoutGames answers GetGame and HandleTimeout; every other method panics
// through the nil embedded interface.
type timeoutGames struct {
	GameService

	mu       sync.Mutex
	games    map[string]*state.GameState
	timeouts chan int64
}

func (f *timeoutGames) GetGame(_ context.Context, id string) (*state.GameState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	gs, ok := f.games[id]
	if !ok {
		return nil, store.ErrGameNotFound
	}
	return gs.Clone(), nil
}

func (f *timeoutGames) HandleTimeout(_ context.Context, id string, expected int64) (*game.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	gs := f.games[id].Clone()
	if gs.Version != expected {
		return nil, &store.OptimisticLockError{GameID: id, Expected: expected, Actual: gs.Version}
	}
	gs.Version++
	gs.GameOver = true
	gs.Status = state.StatusFinished
	f.games[id] = gs
	f.timeouts <- expected
	return &game.Outcome{State: gs.Clone(), Committed: true}, nil
}

func activeGame(id string, version int64, limit time.Duration) *state.GameState {
	return &state.GameState{
		ID:            id,
		Status:        state.StatusActive,
		Version:       version,
		TimeLimit:     limit,
		TurnStartedAt: time.Now(),
	}
}

// TestTurnTimerFires verifies that an expired turn is reported once with
// the armed version and that the finished game is disarmed.
func TestTurnTimerFires(t *testing.T) {
	gs := activeGame("g1", 4, 20*time.Millisecond)
	games := &timeoutGames{games: map[string]*state.GameState{"g1": gs}, timeouts: make(chan int64, 2)}
	timers := NewTurnTimers(games, zap.NewNop(), WithTimeoutGrace(0))
	defer timers.Close()

	timers.Sync(gs)
	v, ok := timers.Armed("g1")
	require.True(t, ok)
	assert.Equal(t, int64(4), v)

	select {
	case got := <-games.timeouts:
		assert.Equal(t, int64(4), got)
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not fire")
	}
	require.Eventually(t, func() bool {
		_, armed := timers.Armed("g1")
		return !armed
	}, time.Second, 5*time.Millisecond)
}

// TestTurnTimerIgnoresOlderVersions verifies that a late, older state does
// not replace the armed timer.
func TestTurnTimerIgnoresOlderVersions(t *testing.T) {
	games := &timeoutGames{games: map[string]*state.GameState{}, timeouts: make(chan int64, 1)}
	timers := NewTurnTimers(games, zap.NewNop())
	defer timers.Close()

	timers.Sync(activeGame("g1", 7, time.Minute))
	timers.Sync(activeGame("g1", 6, time.Minute))

	v, ok := timers.Armed("g1")
	require.True(t, ok)
	assert.Equal(t, int64(7), v)

	finished := activeGame("g1", 8, time.Minute)
	finished.GameOver = true
	timers.Sync(finished)
	_, ok = timers.Armed("g1")
	assert.False(t, ok)
}

// TestTurnTimerSkipsUntimedGames verifies that games without a time limit
// never arm a timer.
func TestTurnTimerSkipsUntimedGames(t *testing.T) {
	timers := NewTurnTimers(&timeoutGames{}, zap.NewNop())
	defer timers.Close()

	timers.Sync(activeGame("g1", 2, 0))
	_, ok := timers.Armed("g1")
	assert.False(t, ok)
}

// TestTurnTimerOnDiffDeletedGame verifies that a diff for a vanished game
// disarms its timer.
func TestTurnTimerOnDiffDeletedGame(t *testing.T) {
	games := &timeoutGames{games: map[string]*state.GameState{}, timeouts: make(chan int64, 1)}
	timers := NewTurnTimers(games, zap.NewNop())
	defer timers.Close()

	timers.Sync(activeGame("g1", 3, time.Minute))
	require.NoError(t, timers.OnDiff(context.Background(), game.StateDiff{GameID: "g1", ToVersion: 4}))
	_, ok := timers.Armed("g1")
	assert.False(t, ok)
}
