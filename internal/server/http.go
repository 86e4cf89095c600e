package server

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/voidecho/voidecho-server-go/internal/game/state"
	"github.com/voidecho/voidecho-server-go/internal/store"
)

// CreateGameRequest is the body of POST /games.
type CreateGameRequest struct {
	Player1ID      string        `json:"player1_id"`
	Player2ID      string        `json:"player2_id"`
	Player1Faction state.Faction `json:"player1_faction"`
	Player2Faction state.Faction `json:"player2_faction"`
	Player1DeckID  string        `json:"player1_deck_id,omitempty"`
	Player2DeckID  string        `json:"player2_deck_id,omitempty"`
	Player1QuestID string        `json:"player1_quest_id,omitempty"`
	Player2QuestID string        `json:"player2_quest_id,omitempty"`
	TimeLimitSecs  int           `json:"time_limit_seconds,omitempty"`
}

// CreateGameResponse answers POST /games.
type CreateGameResponse struct {
	GameID     string `json:"game_id"`
	GameNumber int64  `json:"game_number"`
	Version    int64  `json:"version"`
}

// NewHTTPHandler routes the websocket endpoint and the small REST surface
// used to open games.
func NewHTTPHandler(hub *Hub, games GameService, logger *zap.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET "+hub.cfg.Path, hub)
	mux.HandleFunc("POST /games", createGameHandler(games, logger))
	mux.HandleFunc("GET /games/{id}/view", viewHandler(games))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

func createGameHandler(games GameService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateGameRequest
		r.Body = http.MaxBytesReader(w, r.Body, 1<<16)
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "malformed request body", http.StatusBadRequest)
			return
		}
		gs, err := games.CreateGame(r.Context(), store.CreateConfig{
			Player1ID:      req.Player1ID,
			Player2ID:      req.Player2ID,
			Player1Faction: req.Player1Faction,
			Player2Faction: req.Player2Faction,
			Player1DeckID:  req.Player1DeckID,
			Player2DeckID:  req.Player2DeckID,
			Player1QuestID: req.Player1QuestID,
			Player2QuestID: req.Player2QuestID,
			TimeLimit:      time.Duration(req.TimeLimitSecs) * time.Second,
		})
		if err != nil {
			code := CodeFromError(err)
			if httpStatus(code) >= http.StatusInternalServerError {
				logger.Error("create game failed", zap.Error(err))
			}
			http.Error(w, StatusFromError(err).Error(), httpStatus(code))
			return
		}
		writeJSON(w, http.StatusCreated, CreateGameResponse{
			GameID:     gs.ID,
			GameNumber: gs.GameNumber,
			Version:    gs.Version,
		})
	}
}

func viewHandler(games GameService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := games.View(r.Context(), r.PathValue("id"), r.URL.Query().Get("player"))
		if err != nil {
			http.Error(w, StatusFromError(err).Error(), httpStatus(CodeFromError(err)))
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
