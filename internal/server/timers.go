package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/voidecho/voidecho-server-go/internal/game"
	"github.com/voidecho/voidecho-server-go/internal/game/rules"
	"github.com/voidecho/voidecho-server-go/internal/game/state"
	"github.com/voidecho/voidecho-server-go/internal/store"
)

// DefaultTimeoutGrace is added to the remaining turn time so the engine's
// own expiry check always agrees when the timer fires.
const DefaultTimeoutGrace = 250 * time.Millisecond

// TurnTimers keeps one timer per active game and reports an expired turn
// to the engine. A timer is armed for a specific version; any later commit
// replaces it.
type TurnTimers struct {
	games  GameService
	now    func() time.Time
	grace  time.Duration
	logger *zap.Logger

	mu     sync.Mutex
	timers map[string]*turnTimer
	closed bool
}

type turnTimer struct {
	version int64
	timer   *time.Timer
}

// TimerOption configures TurnTimers.
type TimerOption func(*TurnTimers)

// WithTimerClock overrides the clock used to compute the remaining time.
func WithTimerClock(now func() time.Time) TimerOption {
	return func(t *TurnTimers) {
		t.now = now
	}
}

// WithTimeoutGrace overrides DefaultTimeoutGrace.
func WithTimeoutGrace(d time.Duration) TimerOption {
	return func(t *TurnTimers) {
		t.grace = d
	}
}

// NewTurnTimers creates an empty timer set.
func NewTurnTimers(games GameService, logger *zap.Logger, opts ...TimerOption) *TurnTimers {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &TurnTimers{
		games:  games,
		now:    time.Now,
		grace:  DefaultTimeoutGrace,
		logger: logger,
		timers: make(map[string]*turnTimer),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// OnDiff re-arms the timer of the changed game.
func (t *TurnTimers) OnDiff(ctx context.Context, diff game.StateDiff) error {
	gs, err := t.games.GetGame(ctx, diff.GameID)
	if errors.Is(err, store.ErrGameNotFound) {
		t.Stop(diff.GameID)
		return nil
	}
	if err != nil {
		return err
	}
	t.Sync(gs)
	return nil
}

// Sync arms, re-arms or stops the timer of gs. States older than the armed
// timer are ignored.
func (t *TurnTimers) Sync(gs *state.GameState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}

	cur, ok := t.timers[gs.ID]
	if ok && cur.version >= gs.Version {
		return
	}
	if ok {
		cur.timer.Stop()
		delete(t.timers, gs.ID)
	}
	if gs.Status != state.StatusActive || gs.GameOver || gs.TimeLimit <= 0 {
		return
	}

	id, version := gs.ID, gs.Version
	d := rules.Remaining(gs, t.now()) + t.grace
	t.timers[id] = &turnTimer{
		version: version,
		timer:   time.AfterFunc(d, func() { t.fire(id, version) }),
	}
}

func (t *TurnTimers) fire(gameID string, version int64) {
	t.mu.Lock()
	cur, ok := t.timers[gameID]
	if !ok || cur.version != version || t.closed {
		t.mu.Unlock()
		return
	}
	delete(t.timers, gameID)
	t.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	out, err := t.games.HandleTimeout(ctx, gameID, version)
	switch {
	case err == nil:
		t.logger.Info("turn timed out",
			zap.String("game_id", gameID),
			zap.Int64("version", out.State.Version),
			zap.Bool("game_over", out.State.GameOver),
		)
		t.Sync(out.State)
	case errors.Is(err, game.ErrTimerNotExpired):
		if gs, err := t.games.GetGame(ctx, gameID); err == nil {
			t.Sync(gs)
		}
	case errors.Is(err, store.ErrOptimisticLock):
		t.logger.Debug("turn timer superseded", zap.String("game_id", gameID), zap.Int64("version", version))
	default:
		t.logger.Warn("turn timeout failed", zap.String("game_id", gameID), zap.Error(err))
	}
}

// Stop disarms the timer of gameID.
func (t *TurnTimers) Stop(gameID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.timers[gameID]; ok {
		cur.timer.Stop()
		delete(t.timers, gameID)
	}
}

// Armed returns the version the timer of gameID is armed for.
func (t *TurnTimers) Armed(gameID string) (int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur, ok := t.timers[gameID]
	if !ok {
		return 0, false
	}
	return cur.version, true
}

// Close stops every timer. Later calls to Sync are ignored.
func (t *TurnTimers) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for id, cur := range t.timers {
		cur.timer.Stop()
		delete(t.timers, id)
	}
}
