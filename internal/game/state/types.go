package state

// Grid dimensions of a player's board.
const (
	Rows = 3
	Cols = 5

	MaxHandSize  = 7
	MaxResources = 10
	DeckSize     = 40
	MaxCopies    = 4
)

// Faction identifies one of the three playable factions.
type Faction string

const (
	FactionHumans Faction = "humans"
	FactionAliens Faction = "aliens"
	FactionRobots Faction = "robots"
)

// Factions lists every playable faction in a stable order.
var Factions = []Faction{FactionHumans, FactionAliens, FactionRobots}

// Valid reports whether f is a known faction.
func (f Faction) Valid() bool {
	switch f {
	case FactionHumans, FactionAliens, FactionRobots:
		return true
	default:
		return false
	}
}

func (f Faction) String() string { return string(f) }

// Phase is a step of a player's turn.
type Phase string

const (
	PhaseResources Phase = "resources"
	PhaseDraw      Phase = "draw"
	PhaseActions   Phase = "actions"
)

func (p Phase) String() string { return string(p) }

// Status is the lifecycle state of a game.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusActive   Status = "active"
	StatusFinished Status = "finished"
)

func (s Status) String() string { return string(s) }

// EndReason records why a game finished.
type EndReason string

const (
	EndReasonNone          EndReason = ""
	EndReasonQuestComplete EndReason = "quest_complete"
	EndReasonSurrender     EndReason = "surrender"
	EndReasonDeckEmpty     EndReason = "deck_empty"
	EndReasonTimeout       EndReason = "timeout"
)

// CardType distinguishes units from spells.
type CardType string

const (
	CardTypeUnit  CardType = "unit"
	CardTypeSpell CardType = "spell"
)

// ConditionType is the kind of progress a quest measures.
type ConditionType string

const (
	ConditionElimination ConditionType = "elimination"
	ConditionTerritory   ConditionType = "territory"
	ConditionSynergy     ConditionType = "synergy"
	ConditionSurvival    ConditionType = "survival"
)
