// Package game is the authoritative entry point for Void Echo matches. It
// routes player actions through validation, resolution and the versioned
// store, then fans committed changes out to the diff publisher, replays,
// the event bus and the ability hooks.
package game

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/voidecho/voidecho-server-go/internal/game/combat"
	"github.com/voidecho/voidecho-server-go/internal/game/formation"
	"github.com/voidecho/voidecho-server-go/internal/game/placement"
	"github.com/voidecho/voidecho-server-go/internal/game/quest"
	"github.com/voidecho/voidecho-server-go/internal/game/rules"
	"github.com/voidecho/voidecho-server-go/internal/game/state"
	"github.com/voidecho/voidecho-server-go/internal/store"
)

var (
	// ErrAbilityHook wraps failures reported by the ability layer after a
	// commit. The commit itself stands.
	ErrAbilityHook = combat.ErrAbilityHook

	ErrTimerNotExpired = errors.New("turn timer has not expired")
	ErrNotSeated       = errors.New("player not seated")
)

// Config tunes engine behaviour.
type Config struct {
	MaxConsecutiveTimeouts int
	HookTimeout            time.Duration
	SlowOperationThreshold time.Duration
	LowTimerThreshold      time.Duration
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		MaxConsecutiveTimeouts: rules.DefaultMaxConsecutiveTimeouts,
		HookTimeout:            2 * time.Second,
		SlowOperationThreshold: DefaultSlowOperationThreshold,
		LowTimerThreshold:      rules.DefaultLowTimerThreshold,
	}
}

// StateDiff announces one committed version change.
type StateDiff struct {
	GameID      string             `json:"game_id"`
	FromVersion int64              `json:"from_version"`
	ToVersion   int64              `json:"to_version"`
	Actions     []state.GameAction `json:"actions"`
	Phase       state.Phase        `json:"phase"`
	GameOver    bool               `json:"game_over"`
	Winner      string             `json:"winner,omitempty"`
	EndReason   state.EndReason    `json:"end_reason,omitempty"`
	Timestamp   time.Time          `json:"timestamp"`
}

// Publisher delivers committed diffs to clients.
type Publisher interface {
	PublishDiff(ctx context.Context, diff StateDiff) error
}

// Outcome is the result of one submitted request. A rejected request has
// Committed false, the state it was checked against and the failing
// Validation.
type Outcome struct {
	State          *state.GameState
	Validation     rules.ValidationResult
	Committed      bool
	Combat         *combat.Result
	Phase          *rules.PhaseChange
	QuestCompleted bool
	Events         []rules.Event
}

// Engine coordinates every component for all games. It holds no per-game
// state in memory; the store is the only source of truth.
type Engine struct {
	store     *store.Store
	table     *formation.Table
	validator *rules.Validator
	placement *placement.Engine
	quests    *quest.Tracker
	hooks     combat.Hooks
	publisher Publisher
	events    *rules.EventBus
	replays   *ReplayRecorder
	cfg       Config
	now       func() time.Time
	tracer    trace.Tracer
	logger    *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithHooks installs the ability layer.
func WithHooks(h combat.Hooks) Option {
	return func(e *Engine) {
		if h != nil {
			e.hooks = h
		}
	}
}

// WithPublisher installs the diff publisher.
func WithPublisher(p Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithReplayRecorder records every committed version of every game.
func WithReplayRecorder(rr *ReplayRecorder) Option {
	return func(e *Engine) { e.replays = rr }
}

// WithEventBus publishes committed events on bus.
func WithEventBus(bus *rules.EventBus) Option {
	return func(e *Engine) {
		if bus != nil {
			e.events = bus
		}
	}
}

// WithFormationTable replaces the built-in formations.
func WithFormationTable(t *formation.Table) Option {
	return func(e *Engine) {
		if t != nil {
			e.table = t
		}
	}
}

// WithClock overrides the time source used for turns and timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithTracer overrides the global OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

// NewEngine wires an engine around st. The store must have been built with
// the same quest tracker so assignment and progress agree on definitions.
func NewEngine(st *store.Store, quests *quest.Tracker, cfg Config, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.MaxConsecutiveTimeouts <= 0 {
		cfg.MaxConsecutiveTimeouts = def.MaxConsecutiveTimeouts
	}
	if cfg.HookTimeout <= 0 {
		cfg.HookTimeout = def.HookTimeout
	}
	if cfg.SlowOperationThreshold <= 0 {
		cfg.SlowOperationThreshold = def.SlowOperationThreshold
	}
	if cfg.LowTimerThreshold <= 0 {
		cfg.LowTimerThreshold = def.LowTimerThreshold
	}

	e := &Engine{
		store:  st,
		quests: quests,
		hooks:  combat.NoopHooks{},
		events: rules.NewEventBus(),
		cfg:    cfg,
		now:    time.Now,
		tracer: otel.Tracer(instrumentationName),
		logger: logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.table == nil {
		e.table = formation.NewTable()
	}
	e.placement = placement.New(e.table, st, logger, placement.WithClock(e.now))
	e.validator = rules.NewValidator(e.placement, combat.Checker{},
		rules.WithClock(e.now),
		rules.WithLowTimerThreshold(cfg.LowTimerThreshold),
	)
	return e
}

// Events returns the bus committed events are published on.
func (e *Engine) Events() *rules.EventBus { return e.events }

// Replays returns the replay recorder, or nil when recording is off.
func (e *Engine) Replays() *ReplayRecorder { return e.replays }

// Placement exposes the placement engine for read-only previews.
func (e *Engine) Placement() *placement.Engine { return e.placement }

// CreateGame deals a new game and announces it at version 1.
func (e *Engine) CreateGame(ctx context.Context, cfg store.CreateConfig) (*state.GameState, error) {
	var gs *state.GameState
	err := e.timed(ctx, "create", []zap.Field{zap.String("player1_id", cfg.Player1ID), zap.String("player2_id", cfg.Player2ID)}, func(ctx context.Context) error {
		var err error
		gs, err = e.store.Create(ctx, cfg)
		return err
	})
	if err != nil {
		return nil, err
	}

	if e.replays != nil {
		if err := e.replays.StartRecording(gs); err != nil {
			e.logger.Warn("failed to start replay", zap.String("game_id", gs.ID), zap.Error(err))
		}
	}

	ev := rules.NewEvent(rules.EventGameCreated, gs.ID, gs.Player1ID, gs.Player2ID)
	ev.Version = gs.Version
	ev.Timestamp = gs.CreatedAt
	e.events.Publish(ev)
	e.publish(ctx, StateDiff{
		GameID:      gs.ID,
		FromVersion: 0,
		ToVersion:   gs.Version,
		Phase:       gs.Phase,
		Timestamp:   gs.CreatedAt,
	})

	return gs, nil
}

// GetGame returns a copy of the current state.
func (e *Engine) GetGame(ctx context.Context, gameID string) (*state.GameState, error) {
	return e.store.Get(ctx, gameID)
}

// DeleteGame removes a game and any replay still recording it.
func (e *Engine) DeleteGame(ctx context.Context, gameID string) error {
	if err := e.store.Delete(ctx, gameID); err != nil {
		return err
	}
	if e.replays != nil {
		e.replays.ClearReplay(gameID)
	}
	return nil
}

// MarkReady flags playerID as ready. The game becomes active, with player 1
// in the resources phase, once both players are ready.
func (e *Engine) MarkReady(ctx context.Context, gameID, playerID string, expectedVersion int64) (*Outcome, error) {
	return e.commit(ctx, gameID, expectedVersion, "ready", playerID, func(gs *state.GameState, out *Outcome) error {
		v := rules.ValidationResult{IsValid: true}
		switch ps := gs.Player(playerID); {
		case ps == nil:
			v.Add(rules.Errorf(rules.CodePlayerNotFound, "player %s is not seated in game %s", playerID, gs.ID))
		case ps.Ready:
			v.Add(rules.Errorf(rules.CodeAlreadyReady, "player %s is already ready", playerID))
		}
		if gs.Status != state.StatusWaiting {
			v.Add(rules.Errorf(rules.CodeGameNotActive, "game %s is %s, not waiting", gs.ID, gs.Status))
		}
		out.Validation = v
		if err := rules.Reject(v); err != nil {
			return err
		}

		gs.Player(playerID).Ready = true
		if rules.StartGame(gs, e.now()) {
			ev := rules.NewEvent(rules.EventGameStarted, gs.ID, gs.CurrentPlayer, "")
			out.Events = append(out.Events, ev)
		}
		return nil
	})
}

// AdvancePhase performs one resources→draw or draw→actions step for the
// current player.
func (e *Engine) AdvancePhase(ctx context.Context, gameID, playerID string, expectedVersion int64) (*Outcome, error) {
	return e.commit(ctx, gameID, expectedVersion, "advance", playerID, func(gs *state.GameState, out *Outcome) error {
		out.Validation = e.validator.ValidateAdvance(gs, playerID)
		if err := rules.Reject(out.Validation); err != nil {
			return err
		}

		change, err := rules.AdvancePhase(gs, e.now())
		if err != nil {
			return err
		}
		out.Phase = &change
		out.Events = append(out.Events, phaseEvents(gs, playerID, change)...)
		return nil
	})
}

// Submit validates and applies one player action. expectedVersion 0 means
// the version current when the request is read. Rejections are reported in
// Outcome.Validation with a nil error; version conflicts are returned and
// never retried.
func (e *Engine) Submit(ctx context.Context, gameID string, action state.GameAction, expectedVersion int64) (*Outcome, error) {
	out, affected, err := e.submit(ctx, gameID, action, expectedVersion)
	if err != nil || !out.Committed {
		return out, err
	}
	if len(affected) > 0 {
		if err := e.timed(ctx, "hooks", []zap.Field{zap.String("game_id", gameID)}, func(ctx context.Context) error {
			return combat.Fire(ctx, e.hooks, e.cfg.HookTimeout, affected, out.State)
		}); err != nil {
			e.logger.Warn("ability hooks failed", zap.String("game_id", gameID), zap.Error(err))
			return out, err
		}
	}
	return out, nil
}

func (e *Engine) submit(ctx context.Context, gameID string, action state.GameAction, expectedVersion int64) (*Outcome, []combat.Casualty, error) {
	if expectedVersion == 0 {
		current, err := e.store.Get(ctx, gameID)
		if err != nil {
			return nil, nil, err
		}
		expectedVersion = current.Version
	}
	// Audit fields are set by the engine, never by the caller.
	action = action.Clone()
	action.Forced = false
	action.Valid = false
	action.ResourceCost = 0
	if action.ID == "" {
		action.ID = uuid.NewString()
	}

	var affected []combat.Casualty
	fields := []zap.Field{zap.String("game_id", gameID), zap.String("player_id", action.PlayerID), zap.String("action_type", string(action.Type))}
	out, err := e.commit(ctx, gameID, expectedVersion, string(action.Type), action.PlayerID, func(gs *state.GameState, out *Outcome) error {
		now := e.now()
		action.Turn = gs.Turn
		action.Phase = gs.Phase
		action.Timestamp = now

		_ = e.timed(ctx, "validate", fields, func(context.Context) error {
			out.Validation = e.validator.ValidateAction(gs, action)
			return nil
		})
		if err := rules.Reject(out.Validation); err != nil {
			return err
		}

		return e.timed(ctx, "execute", fields, func(context.Context) error {
			var err error
			affected, err = e.execute(gs, action, now, out)
			return err
		})
	})
	return out, affected, err
}

// HandleTimeout forces the current player's turn to end once their timer
// has run out. Reaching the consecutive-timeout limit loses the game.
func (e *Engine) HandleTimeout(ctx context.Context, gameID string, expectedVersion int64) (*Outcome, error) {
	if expectedVersion == 0 {
		current, err := e.store.Get(ctx, gameID)
		if err != nil {
			return nil, err
		}
		expectedVersion = current.Version
	}
	return e.commit(ctx, gameID, expectedVersion, "timeout", "", func(gs *state.GameState, out *Outcome) error {
		now := e.now()
		if !rules.IsExpired(gs, now) {
			return fmt.Errorf("game %s: %w", gs.ID, ErrTimerNotExpired)
		}

		action := state.NewEndTurn(gs.CurrentPlayer)
		action.Turn = gs.Turn
		action.Phase = gs.Phase
		action.Timestamp = now
		action.Valid = true
		action.Forced = true

		ps := gs.Current()
		lost := rules.ForceEndTurn(gs, now, e.cfg.MaxConsecutiveTimeouts)
		gs.ActionHistory = append(gs.ActionHistory, action)

		ev := rules.NewEventWithAmount(rules.EventTurnTimeout, gs.ID, action.PlayerID, "", ps.Timeouts)
		ev.SourceID = action.ID
		out.Events = append(out.Events, ev)
		if !lost {
			out.Events = append(out.Events, turnEndedEvent(gs, action))
			effects := state.EffectSet{}
			effects.For(action.PlayerID).TurnsSurvived = 1
			first := len(out.Events)
			e.observeQuests(gs, action, effects, out)
			for i := first; i < len(out.Events); i++ {
				out.Events[i].SourceID = action.ID
			}
		}
		return nil
	})
}

type commitFunc func(gs *state.GameState, out *Outcome) error

// commit runs fn as a store diff and, when it commits, fans the new version
// out. A rejection returns the unchanged state with the validation result.
func (e *Engine) commit(ctx context.Context, gameID string, expectedVersion int64, op, playerID string, fn commitFunc) (*Outcome, error) {
	out := &Outcome{}
	var previous *state.GameState
	fields := []zap.Field{zap.String("game_id", gameID), zap.String("op", op), zap.Int64("version", expectedVersion)}
	if playerID != "" {
		fields = append(fields, zap.String("player_id", playerID))
	}

	var next *state.GameState
	err := e.timed(ctx, "commit", fields, func(ctx context.Context) error {
		var err error
		next, err = e.store.Update(ctx, gameID, expectedVersion, func(gs *state.GameState) error {
			previous = gs.Clone()
			return fn(gs, out)
		})
		return err
	})

	var rejected *rules.RejectionError
	if errors.As(err, &rejected) {
		out.State = previous
		out.Validation = rejected.Result
		e.logger.Debug("request rejected",
			append(fields, zap.Any("codes", rejected.Result.Codes()))...,
		)
		return out, nil
	}
	if err != nil {
		return nil, err
	}

	out.State = next
	out.Committed = true
	out.Validation.IsValid = true
	e.afterCommit(ctx, previous, out)
	return out, nil
}

// afterCommit publishes the diff and events and records the replay frame.
// None of these can undo the commit; failures are logged.
func (e *Engine) afterCommit(ctx context.Context, previous *state.GameState, out *Outcome) {
	gs := out.State
	var actions []state.GameAction
	if previous != nil && len(gs.ActionHistory) > len(previous.ActionHistory) {
		actions = gs.ActionHistory[len(previous.ActionHistory):]
	}

	if gs.GameOver && (previous == nil || !previous.GameOver) {
		ev := rules.NewEvent(rules.EventGameOver, gs.ID, gs.Winner, "")
		ev.Data = string(gs.EndReason)
		out.Events = append(out.Events, ev)
	}
	for i := range out.Events {
		out.Events[i].GameID = gs.ID
		out.Events[i].Version = gs.Version
		out.Events[i].Timestamp = gs.LastActionAt
	}

	e.publish(ctx, StateDiff{
		GameID:      gs.ID,
		FromVersion: gs.Version - 1,
		ToVersion:   gs.Version,
		Actions:     actions,
		Phase:       gs.Phase,
		GameOver:    gs.GameOver,
		Winner:      gs.Winner,
		EndReason:   gs.EndReason,
		Timestamp:   gs.LastActionAt,
	})

	if e.replays != nil {
		if err := e.replays.Record(gs); err != nil {
			e.logger.Warn("failed to record replay", zap.String("game_id", gs.ID), zap.Error(err))
		}
		if gs.GameOver && e.replays.IsRecording(gs.ID) {
			if err := e.replays.SaveReplay(gs.ID); err != nil {
				e.logger.Warn("failed to save replay", zap.String("game_id", gs.ID), zap.Error(err))
			}
		}
	}

	e.events.PublishBatch(out.Events)

	if gs.GameOver && (previous == nil || !previous.GameOver) {
		e.logger.Info("game over",
			zap.String("game_id", gs.ID),
			zap.String("winner", gs.Winner),
			zap.String("reason", string(gs.EndReason)),
			zap.Int("turn", gs.Turn),
			zap.Int64("version", gs.Version),
		)
	}
}

func (e *Engine) publish(ctx context.Context, diff StateDiff) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.PublishDiff(ctx, diff); err != nil {
		e.logger.Warn("failed to publish diff",
			zap.String("game_id", diff.GameID),
			zap.Int64("version", diff.ToVersion),
			zap.Error(err),
		)
	}
}
