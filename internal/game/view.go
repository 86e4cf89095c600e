package game

import (
	"context"
	"fmt"
	"time"

	"github.com/voidecho/voidecho-server-go/internal/game/rules"
	"github.com/voidecho/voidecho-server-go/internal/game/state"
)

// PlayerView is one side of the table as seen by a viewer. Hidden zones of
// the opponent are reduced to counts.
type PlayerView struct {
	ID            string               `json:"id"`
	Faction       state.Faction        `json:"faction"`
	Hand          []state.Card         `json:"hand,omitempty"`
	HandCount     int                  `json:"hand_count"`
	DeckCount     int                  `json:"deck_count"`
	Graveyard     []state.Card         `json:"graveyard"`
	Board         []*state.BoardCard   `json:"board"`
	Resources     int                  `json:"resources"`
	QuestProgress int                  `json:"quest_progress_pct,omitempty"`
	Quest         *state.QuestProgress `json:"quest,omitempty"`
	Counters      state.Counters       `json:"counters"`
	Ready         bool                 `json:"ready"`
	CanAct        bool                 `json:"can_act"`
	Timeouts      int                  `json:"timeouts"`
}

// GameView is what one player is allowed to see of a game.
type GameView struct {
	GameID        string        `json:"game_id"`
	GameNumber    int64         `json:"game_number"`
	Version       int64         `json:"version"`
	ViewerID      string        `json:"viewer_id"`
	CurrentPlayer string        `json:"current_player"`
	Turn          int           `json:"turn"`
	Phase         state.Phase   `json:"phase"`
	Status        state.Status  `json:"status"`
	GameOver      bool          `json:"game_over"`
	Winner        string        `json:"winner,omitempty"`
	EndReason     string        `json:"end_reason,omitempty"`
	TimeRemaining time.Duration `json:"time_remaining"`
	Self          PlayerView    `json:"self"`
	Opponent      PlayerView    `json:"opponent"`
}

// View returns the game as playerID sees it.
func (e *Engine) View(ctx context.Context, gameID, playerID string) (*GameView, error) {
	gs, err := e.store.Get(ctx, gameID)
	if err != nil {
		return nil, err
	}
	return BuildView(gs, playerID, e.now())
}

// BuildView redacts gs for playerID. The opponent's hand, deck order and
// quest identity stay hidden until the game is over.
func BuildView(gs *state.GameState, playerID string, now time.Time) (*GameView, error) {
	self := gs.Player(playerID)
	if self == nil {
		return nil, fmt.Errorf("game %s: %w: %s", gs.ID, ErrNotSeated, playerID)
	}
	v := &GameView{
		GameID:        gs.ID,
		GameNumber:    gs.GameNumber,
		Version:       gs.Version,
		ViewerID:      playerID,
		CurrentPlayer: gs.CurrentPlayer,
		Turn:          gs.Turn,
		Phase:         gs.Phase,
		Status:        gs.Status,
		GameOver:      gs.GameOver,
		Winner:        gs.Winner,
		EndReason:     string(gs.EndReason),
		TimeRemaining: rules.Remaining(gs, now),
		Self:          playerView(self, true),
	}
	if opp := gs.Opponent(playerID); opp != nil {
		v.Opponent = playerView(opp, gs.GameOver)
	}
	return v, nil
}

func playerView(ps *state.PlayerState, reveal bool) PlayerView {
	pv := PlayerView{
		ID:        ps.ID,
		Faction:   ps.Faction,
		HandCount: len(ps.Hand),
		DeckCount: len(ps.Deck),
		Graveyard: ps.Graveyard,
		Board:     ps.Board.Sorted(),
		Resources: ps.Resources,
		Counters:  ps.Counters,
		Ready:     ps.Ready,
		CanAct:    ps.CanAct,
		Timeouts:  ps.Timeouts,
	}
	if reveal {
		pv.Hand = ps.Hand
		pv.Quest = ps.Quest
		if q := ps.Quest; q != nil && q.TargetValue > 0 {
			pv.QuestProgress = min(q.CurrentValue*100/q.TargetValue, 100)
		}
	}
	return pv
}
