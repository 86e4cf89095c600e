package store

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/voidecho/voidecho-server-go/internal/game/state"
)

// Persistence stores game snapshots durably. SaveGameState must write only
// when the stored version equals expectedVersion (0 means the game must not
// exist yet) and report a mismatch with an error matching ErrOptimisticLock.
type Persistence interface {
	LoadGameState(ctx context.Context, id string) (*state.GameState, error)
	SaveGameState(ctx context.Context, gs *state.GameState, expectedVersion int64) error
	DeleteGameState(ctx context.Context, id string) error
	NextGameNumber(ctx context.Context) (int64, error)
}

// Catalog resolves deck ids to card lists.
type Catalog interface {
	Deck(ctx context.Context, deckID string) (state.Deck, error)
}

// MemoryPersistence keeps snapshots in process memory. Snapshots are cloned
// on the way in and out.
type MemoryPersistence struct {
	logger *zap.Logger

	mu         sync.RWMutex
	games      map[string]*state.GameState
	gameNumber int64
}

// NewMemoryPersistence creates an empty in-memory store.
func NewMemoryPersistence(logger *zap.Logger) *MemoryPersistence {
	return &MemoryPersistence{
		logger: logger,
		games:  make(map[string]*state.GameState),
	}
}

// LoadGameState returns a copy of the stored snapshot.
func (m *MemoryPersistence) LoadGameState(_ context.Context, id string) (*state.GameState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	gs, ok := m.games[id]
	if !ok {
		return nil, fmt.Errorf("load %s: %w", id, ErrGameNotFound)
	}
	return gs.Clone(), nil
}

// SaveGameState writes gs if the stored version matches expectedVersion.
func (m *MemoryPersistence) SaveGameState(_ context.Context, gs *state.GameState, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, exists := m.games[gs.ID]
	switch {
	case expectedVersion == 0 && exists:
		return &OptimisticLockError{GameID: gs.ID, Expected: 0, Actual: current.Version}
	case expectedVersion != 0 && !exists:
		return fmt.Errorf("save %s: %w", gs.ID, ErrGameNotFound)
	case exists && current.Version != expectedVersion:
		return &OptimisticLockError{GameID: gs.ID, Expected: expectedVersion, Actual: current.Version}
	}
	m.games[gs.ID] = gs.Clone()

	if m.logger != nil {
		m.logger.Debug("memory persistence saved game",
			zap.String("game_id", gs.ID),
			zap.Int64("version", gs.Version),
		)
	}
	return nil
}

// DeleteGameState removes the snapshot.
func (m *MemoryPersistence) DeleteGameState(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.games[id]; !ok {
		return fmt.Errorf("delete %s: %w", id, ErrGameNotFound)
	}
	delete(m.games, id)
	return nil
}

// NextGameNumber allocates a sequential game number.
func (m *MemoryPersistence) NextGameNumber(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gameNumber++
	return m.gameNumber, nil
}

// Len returns the number of stored games.
func (m *MemoryPersistence) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.games)
}
