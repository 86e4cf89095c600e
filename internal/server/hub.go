package server

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/voidecho/voidecho-server-go/internal/config"
	"github.com/voidecho/voidecho-server-go/internal/game"
	"github.com/voidecho/voidecho-server-go/internal/game/rules"
	"github.com/voidecho/voidecho-server-go/internal/game/state"
	"github.com/voidecho/voidecho-server-go/internal/store"
)

var (
	ErrClientClosed   = errors.New("client closed")
	ErrSendBufferFull = errors.New("send buffer full")
)

// GameService is the part of the engine the transport drives.
type GameService interface {
	CreateGame(ctx context.Context, cfg store.CreateConfig) (*state.GameState, error)
	GetGame(ctx context.Context, gameID string) (*state.GameState, error)
	View(ctx context.Context, gameID, playerID string) (*game.GameView, error)
	MarkReady(ctx context.Context, gameID, playerID string, expectedVersion int64) (*game.Outcome, error)
	AdvancePhase(ctx context.Context, gameID, playerID string, expectedVersion int64) (*game.Outcome, error)
	Submit(ctx context.Context, gameID string, action state.GameAction, expectedVersion int64) (*game.Outcome, error)
	HandleTimeout(ctx context.Context, gameID string, expectedVersion int64) (*game.Outcome, error)
}

// Hub tracks websocket clients per game and pushes each of them a fresh view
// whenever their game changes.
type Hub struct {
	games    GameService
	cfg      config.WebSocketConfig
	upgrader websocket.Upgrader
	logger   *zap.Logger

	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
}

// NewHub creates a hub serving games.
func NewHub(games GameService, cfg config.WebSocketConfig, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		games:   games,
		cfg:     cfg,
		logger:  logger,
		clients: make(map[string]map[*Client]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range h.cfg.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

// ServeHTTP upgrades a request of the form ?game=<id>&player=<id>. The
// player must hold a seat in the game.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	gameID := r.URL.Query().Get("game")
	playerID := r.URL.Query().Get("player")
	if gameID == "" || playerID == "" {
		http.Error(w, "game and player are required", http.StatusBadRequest)
		return
	}
	view, err := h.games.View(r.Context(), gameID, playerID)
	if err != nil {
		http.Error(w, err.Error(), httpStatus(CodeFromError(err)))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.String("game_id", gameID), zap.Error(err))
		return
	}

	c := newClient(h, conn, gameID, playerID)
	h.register(c)
	c.advance(view.Version)
	_ = c.sendData(FrameView, "", view)

	go c.writePump()
	go c.readPump()
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	set, ok := h.clients[c.gameID]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[c.gameID] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()

	h.logger.Info("websocket client connected",
		zap.String("client_id", c.id),
		zap.String("game_id", c.gameID),
		zap.String("player_id", c.playerID),
	)
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if set, ok := h.clients[c.gameID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, c.gameID)
		}
	}
	h.mu.Unlock()

	h.logger.Info("websocket client disconnected",
		zap.String("client_id", c.id),
		zap.String("game_id", c.gameID),
		zap.String("player_id", c.playerID),
	)
}

func (h *Hub) clientsOf(gameID string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Client, 0, len(h.clients[gameID]))
	for c := range h.clients[gameID] {
		out = append(out, c)
	}
	return out
}

// Connected returns the number of open connections for gameID.
func (h *Hub) Connected(gameID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[gameID])
}

// OnDiff pushes the current view to every client of the changed game.
// Diffs may arrive out of order; clients never receive a view older than
// one they already have.
func (h *Hub) OnDiff(ctx context.Context, diff game.StateDiff) error {
	for _, c := range h.clientsOf(diff.GameID) {
		view, err := h.games.View(ctx, diff.GameID, c.playerID)
		if err != nil {
			h.logger.Warn("failed to build view",
				zap.String("game_id", diff.GameID),
				zap.String("player_id", c.playerID),
				zap.Error(err),
			)
			continue
		}
		if !c.advance(view.Version) {
			continue
		}
		if err := c.sendData(FrameView, "", view); err != nil {
			h.logger.Debug("dropping view", zap.String("client_id", c.id), zap.Error(err))
		}
	}
	return nil
}

// OnEvent relays ev to the clients allowed to see it.
func (h *Hub) OnEvent(_ context.Context, ev rules.Event) error {
	for _, c := range h.clientsOf(ev.GameID) {
		if !visibleTo(ev, c.playerID) {
			continue
		}
		_ = c.sendData(FrameEvent, "", ev)
	}
	return nil
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	var all []*Client
	for _, set := range h.clients {
		for c := range set {
			all = append(all, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range all {
		c.close()
	}
}

// handle executes one client frame against the engine.
func (h *Hub) handle(ctx context.Context, c *Client, f ClientFrame) {
	var (
		out *game.Outcome
		err error
	)
	switch f.Type {
	case FramePing:
		_ = c.send(ServerFrame{Type: FramePong, RequestID: f.RequestID})
		return
	case FrameView:
		view, err := h.games.View(ctx, c.gameID, c.playerID)
		if err != nil {
			c.sendError(f.RequestID, err)
			return
		}
		c.advance(view.Version)
		_ = c.sendData(FrameView, f.RequestID, view)
		return
	case FrameReady:
		out, err = h.games.MarkReady(ctx, c.gameID, c.playerID, f.Version)
	case FrameAdvance:
		out, err = h.games.AdvancePhase(ctx, c.gameID, c.playerID, f.Version)
	case FrameTimeout:
		out, err = h.games.HandleTimeout(ctx, c.gameID, f.Version)
	case FrameAction:
		if f.Action == nil {
			c.sendFrameErr(f.RequestID, "InvalidArgument", "action frame without action")
			return
		}
		action := *f.Action
		action.PlayerID = c.playerID
		if action.ID == "" {
			action.ID = uuid.NewString()
		}
		out, err = h.games.Submit(ctx, c.gameID, action, f.Version)
	default:
		c.sendFrameErr(f.RequestID, "InvalidArgument", "unknown frame type "+f.Type)
		return
	}

	if err != nil && !(out != nil && out.Committed && errors.Is(err, game.ErrAbilityHook)) {
		c.sendError(f.RequestID, err)
		return
	}
	res := newResult(out)
	if err != nil {
		h.logger.Warn("ability hooks failed after commit",
			zap.String("game_id", c.gameID),
			zap.Error(err),
		)
		res.HookError = err.Error()
	}
	_ = c.sendData(FrameResult, f.RequestID, res)
}

var _ GameService = (*game.Engine)(nil)
