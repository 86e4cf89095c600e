// Package store is the versioned container for game states. All mutation
// goes through Update, a compare-and-swap on the state's version.
package store

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/voidecho/voidecho-server-go/internal/game/state"
)

// Diff mutates a private copy of a game state. Returning an error discards
// the copy.
type Diff func(gs *state.GameState) error

// QuestAssigner picks the quest a player starts with.
type QuestAssigner interface {
	AssignQuest(f state.Faction, preferredID string) (state.QuestProgress, error)
}

// Config bounds the cache and new games.
type Config struct {
	CacheSize        int
	CacheTTL         time.Duration
	MinTimeLimit     time.Duration
	MaxTimeLimit     time.Duration
	DefaultTimeLimit time.Duration
	InitialHandSize  int
}

// DefaultConfig returns the settings used when none are configured.
func DefaultConfig() Config {
	return Config{
		CacheSize:        1024,
		CacheTTL:         30 * time.Minute,
		MinTimeLimit:     30 * time.Second,
		MaxTimeLimit:     10 * time.Minute,
		DefaultTimeLimit: 90 * time.Second,
	}
}

// CreateConfig describes a new game. Empty deck ids select the faction's
// starter deck; quest ids are preferences.
type CreateConfig struct {
	Player1ID      string        `validate:"required,max=64"`
	Player2ID      string        `validate:"required,max=64,nefield=Player1ID"`
	Player1Faction state.Faction `validate:"required,oneof=humans aliens robots"`
	Player2Faction state.Faction `validate:"required,oneof=humans aliens robots"`
	Player1DeckID  string        `validate:"max=64"`
	Player2DeckID  string        `validate:"max=64"`
	Player1QuestID string
	Player2QuestID string
	TimeLimit      time.Duration `validate:"gte=0"`
}

// DefaultDeckID names the starter deck of faction f.
func DefaultDeckID(f state.Faction) string {
	return "starter_" + string(f)
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRandSource makes deck shuffles deterministic.
func WithRandSource(src rand.Source) Option {
	return func(s *Store) {
		if src != nil {
			s.rnd = rand.New(src)
		}
	}
}

// Store fronts a Persistence with a bounded TTL cache. Cached states are
// never handed out directly; callers always receive copies.
type Store struct {
	persistence Persistence
	catalog     Catalog
	quests      QuestAssigner
	cfg         Config
	cache       *expirable.LRU[string, *state.GameState]
	cacheMu     sync.Mutex
	validate    *validator.Validate
	logger      *zap.Logger
	now         func() time.Time

	rndMu sync.Mutex
	rnd   *rand.Rand
}

// New builds a store.
func New(p Persistence, catalog Catalog, quests QuestAssigner, cfg Config, logger *zap.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = def.CacheSize
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = def.CacheTTL
	}
	if cfg.DefaultTimeLimit <= 0 {
		cfg.DefaultTimeLimit = def.DefaultTimeLimit
	}
	s := &Store{
		persistence: p,
		catalog:     catalog,
		quests:      quests,
		cfg:         cfg,
		cache:       expirable.NewLRU[string, *state.GameState](cfg.CacheSize, nil, cfg.CacheTTL),
		validate:    validator.New(),
		logger:      logger,
		now:         time.Now,
		rnd:         rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates cfg, deals both sides and persists the game at version 1.
func (s *Store) Create(ctx context.Context, cfg CreateConfig) (*state.GameState, error) {
	if err := s.validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if cfg.TimeLimit == 0 {
		cfg.TimeLimit = s.cfg.DefaultTimeLimit
	}
	if s.cfg.MinTimeLimit > 0 && cfg.TimeLimit < s.cfg.MinTimeLimit {
		return nil, fmt.Errorf("%w: time limit %s below minimum %s", ErrInvalidConfig, cfg.TimeLimit, s.cfg.MinTimeLimit)
	}
	if s.cfg.MaxTimeLimit > 0 && cfg.TimeLimit > s.cfg.MaxTimeLimit {
		return nil, fmt.Errorf("%w: time limit %s above maximum %s", ErrInvalidConfig, cfg.TimeLimit, s.cfg.MaxTimeLimit)
	}

	p1, err := s.newPlayer(ctx, cfg.Player1ID, cfg.Player1Faction, cfg.Player1DeckID, cfg.Player1QuestID)
	if err != nil {
		return nil, err
	}
	p2, err := s.newPlayer(ctx, cfg.Player2ID, cfg.Player2Faction, cfg.Player2DeckID, cfg.Player2QuestID)
	if err != nil {
		return nil, err
	}

	number, err := s.persistence.NextGameNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("allocate game number: %w", err)
	}

	now := s.now()
	gs := &state.GameState{
		ID:            uuid.NewString(),
		GameNumber:    number,
		Player1ID:     p1.ID,
		Player2ID:     p2.ID,
		CurrentPlayer: p1.ID,
		Turn:          1,
		Phase:         state.PhaseResources,
		Status:        state.StatusWaiting,
		Version:       1,
		TimeLimit:     cfg.TimeLimit,
		TimeRemaining: cfg.TimeLimit,
		ActionHistory: []state.GameAction{},
		CreatedAt:     now,
		LastActionAt:  now,
		Players: map[string]*state.PlayerState{
			p1.ID: p1,
			p2.ID: p2,
		},
	}

	if err := s.persistence.SaveGameState(ctx, gs, 0); err != nil {
		return nil, fmt.Errorf("persist new game %s: %w", gs.ID, err)
	}
	s.remember(gs)

	s.logger.Info("game created",
		zap.String("game_id", gs.ID),
		zap.Int64("game_number", gs.GameNumber),
		zap.String("player1", p1.ID),
		zap.String("player2", p2.ID),
	)
	return gs.Clone(), nil
}

func (s *Store) newPlayer(ctx context.Context, id string, faction state.Faction, deckID, questID string) (*state.PlayerState, error) {
	if deckID == "" {
		deckID = DefaultDeckID(faction)
	}
	deck, err := s.catalog.Deck(ctx, deckID)
	if err != nil {
		if errors.Is(err, ErrDeckNotFound) || errors.Is(err, state.ErrInvalidDeck) {
			return nil, fmt.Errorf("%w: player %s: %w", ErrInvalidConfig, id, err)
		}
		return nil, fmt.Errorf("resolve deck %s: %w", deckID, err)
	}
	if deck.Faction != faction {
		return nil, fmt.Errorf("%w: deck %s is %s, player %s chose %s", ErrInvalidConfig, deckID, deck.Faction, id, faction)
	}

	quest, err := s.quests.AssignQuest(faction, questID)
	if err != nil {
		return nil, fmt.Errorf("%w: assign quest for %s: %w", ErrInvalidConfig, id, err)
	}

	cards := make([]state.Card, len(deck.Cards))
	for i, c := range deck.Cards {
		cards[i] = c.Clone()
		cards[i].InstanceID = uuid.NewString()
	}
	s.rndMu.Lock()
	s.rnd.Shuffle(len(cards), func(i, j int) { cards[i], cards[j] = cards[j], cards[i] })
	s.rndMu.Unlock()

	ps := &state.PlayerState{
		ID:        id,
		Faction:   faction,
		DeckID:    deckID,
		Hand:      []state.Card{},
		Deck:      cards,
		Graveyard: []state.Card{},
		Board:     state.Board{Units: []*state.BoardCard{}},
		Resources: 1,
		Quest:     &quest,
	}
	for i := 0; i < s.cfg.InitialHandSize; i++ {
		if _, ok := ps.Draw(); !ok {
			break
		}
	}
	return ps, nil
}

// Get returns a copy of the game. Cache reads do not refresh an entry's
// eviction position.
func (s *Store) Get(ctx context.Context, id string) (*state.GameState, error) {
	gs, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return gs.Clone(), nil
}

func (s *Store) load(ctx context.Context, id string) (*state.GameState, error) {
	if gs, ok := s.cache.Peek(id); ok {
		return gs, nil
	}
	gs, err := s.persistence.LoadGameState(ctx, id)
	if err != nil {
		return nil, err
	}
	s.remember(gs)
	return gs, nil
}

// remember caches gs unless a newer version of the game is already cached.
func (s *Store) remember(gs *state.GameState) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if cached, ok := s.cache.Peek(gs.ID); ok && cached.Version >= gs.Version {
		return
	}
	s.cache.Add(gs.ID, gs)
}

// Update applies diff to a copy of the game if its version is still
// expectedVersion, then persists the copy as version expectedVersion+1.
// Nothing is retried.
func (s *Store) Update(ctx context.Context, id string, expectedVersion int64, diff Diff) (*state.GameState, error) {
	current, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Version != expectedVersion {
		return nil, &OptimisticLockError{GameID: id, Expected: expectedVersion, Actual: current.Version}
	}

	next := current.Clone()
	if err := diff(next); err != nil {
		return nil, err
	}
	next.ID = id
	next.Version = expectedVersion + 1
	next.LastActionAt = s.now()

	if err := s.persistence.SaveGameState(ctx, next, expectedVersion); err != nil {
		if errors.Is(err, ErrOptimisticLock) {
			s.cache.Remove(id)
			var lockErr *OptimisticLockError
			if errors.As(err, &lockErr) {
				return nil, lockErr
			}
			return nil, &OptimisticLockError{GameID: id, Expected: expectedVersion, Actual: -1}
		}
		return nil, fmt.Errorf("persist game %s v%d: %w", id, next.Version, err)
	}
	s.remember(next)

	s.logger.Debug("game updated",
		zap.String("game_id", id),
		zap.Int64("version", next.Version),
	)
	return next.Clone(), nil
}

// Delete removes the game from persistence and cache.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.cache.Remove(id)
	if err := s.persistence.DeleteGameState(ctx, id); err != nil {
		return err
	}
	s.logger.Info("game deleted", zap.String("game_id", id))
	return nil
}

// CachedGames returns the number of live cache entries.
func (s *Store) CachedGames() int {
	return s.cache.Len()
}
