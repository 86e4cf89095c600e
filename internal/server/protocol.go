package server

import (
	"encoding/json"

	"github.com/voidecho/voidecho-server-go/internal/game"
	"github.com/voidecho/voidecho-server-go/internal/game/combat"
	"github.com/voidecho/voidecho-server-go/internal/game/rules"
	"github.com/voidecho/voidecho-server-go/internal/game/state"
)

// Frame types sent by clients.
const (
	FrameAction  = "action"
	FrameReady   = "ready"
	FrameAdvance = "advance"
	FrameTimeout = "timeout"
	FrameView    = "view"
	FramePing    = "ping"
)

// Frame types sent by the server.
const (
	FrameResult = "result"
	FrameEvent  = "event"
	FrameError  = "error"
	FramePong   = "pong"
)

// ClientFrame is one request read from a websocket. Version is the state
// version the client last saw; 0 means "whatever is current".
type ClientFrame struct {
	Type      string            `json:"type"`
	RequestID string            `json:"request_id,omitempty"`
	Version   int64             `json:"version,omitempty"`
	Action    *state.GameAction `json:"action,omitempty"`
}

// ServerFrame is one message written to a websocket.
type ServerFrame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     *FrameErr       `json:"error,omitempty"`
}

// FrameErr describes a request the server could not process. Code is a gRPC
// code name such as "Aborted".
type FrameErr struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Result answers a request that reached the engine, committed or not.
type Result struct {
	Committed      bool                   `json:"committed"`
	Version        int64                  `json:"version"`
	Validation     rules.ValidationResult `json:"validation"`
	Combat         *combat.Result         `json:"combat,omitempty"`
	Phase          *rules.PhaseChange     `json:"phase,omitempty"`
	QuestCompleted bool                   `json:"quest_completed,omitempty"`
	HookError      string                 `json:"hook_error,omitempty"`
}

func newResult(out *game.Outcome) Result {
	r := Result{
		Committed:      out.Committed,
		Validation:     out.Validation,
		Combat:         out.Combat,
		Phase:          out.Phase,
		QuestCompleted: out.QuestCompleted,
	}
	if out.State != nil {
		r.Version = out.State.Version
	}
	return r
}

// visibleTo reports whether playerID may see ev. Quest progress and card
// draws are private to their owner.
func visibleTo(ev rules.Event, playerID string) bool {
	switch ev.Type {
	case rules.EventQuestMilestone, rules.EventQuestCompleted, rules.EventCardDrawn:
		return ev.PlayerID == playerID
	}
	return true
}
