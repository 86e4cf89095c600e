package rules

import (
	"sync"
	"time"
)

// EventType indicates the category of a game event.
type EventType string

const (
	// Lifecycle events
	EventGameCreated EventType = "GAME_CREATED"
	EventGameStarted EventType = "GAME_STARTED"
	EventGameOver    EventType = "GAME_OVER"

	// Turn events
	EventPhaseChanged EventType = "PHASE_CHANGED"
	EventCardDrawn    EventType = "CARD_DRAWN"
	EventTurnEnded    EventType = "TURN_ENDED"
	EventTurnTimeout  EventType = "TURN_TIMEOUT"

	// Board events
	EventUnitPlaced    EventType = "UNIT_PLACED"
	EventSpellCast     EventType = "SPELL_CAST"
	EventUnitDamaged   EventType = "UNIT_DAMAGED"
	EventUnitDestroyed EventType = "UNIT_DESTROYED"

	// Quest events
	EventQuestMilestone EventType = "QUEST_MILESTONE"
	EventQuestCompleted EventType = "QUEST_COMPLETED"
)

// Event is a notification raised after a commit. Events describe committed
// state and are never used to change it.
type Event struct {
	Type      EventType         `json:"type"`
	GameID    string            `json:"game_id"`
	PlayerID  string            `json:"player_id,omitempty"`
	TargetID  string            `json:"target_id,omitempty"` // unit instance id, quest id, ...
	SourceID  string            `json:"source_id,omitempty"` // action id that caused the event
	Amount    int               `json:"amount,omitempty"`
	Data      string            `json:"data,omitempty"`
	Version   int64             `json:"version"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Listener defines a callback that reacts to incoming events.
type Listener func(Event)

// TypedListener defines a callback that reacts to a specific event type.
type TypedListener struct {
	Handle    int
	EventType EventType
	Callback  func(Event)
}

// EventBus provides a synchronous publish/subscribe implementation with type filtering.
type EventBus struct {
	mu             sync.RWMutex
	listeners      map[int]Listener
	typedListeners map[EventType][]TypedListener
	nextHandle     int
}

// NewEventBus constructs a fresh event bus instance.
func NewEventBus() *EventBus {
	return &EventBus{
		listeners:      make(map[int]Listener),
		typedListeners: make(map[EventType][]TypedListener),
	}
}

// Subscribe registers a listener for all events and returns a handle.
func (bus *EventBus) Subscribe(listener Listener) int {
	if listener == nil {
		return -1
	}
	bus.mu.Lock()
	defer bus.mu.Unlock()
	handle := bus.nextHandle
	bus.nextHandle++
	bus.listeners[handle] = listener
	return handle
}

// SubscribeTyped registers a listener for a specific event type.
func (bus *EventBus) SubscribeTyped(eventType EventType, callback func(Event)) int {
	if callback == nil {
		return -1
	}
	bus.mu.Lock()
	defer bus.mu.Unlock()
	handle := bus.nextHandle
	bus.nextHandle++
	bus.typedListeners[eventType] = append(bus.typedListeners[eventType], TypedListener{
		Handle:    handle,
		EventType: eventType,
		Callback:  callback,
	})
	return handle
}

// Unsubscribe removes the listener identified by handle, typed or not.
func (bus *EventBus) Unsubscribe(handle int) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	delete(bus.listeners, handle)
	for eventType, listeners := range bus.typedListeners {
		for i := len(listeners) - 1; i >= 0; i-- {
			if listeners[i].Handle == handle {
				bus.typedListeners[eventType] = append(listeners[:i], listeners[i+1:]...)
				break
			}
		}
	}
}

// Publish delivers the event to all registered listeners synchronously.
func (bus *EventBus) Publish(event Event) {
	bus.mu.RLock()
	defer bus.mu.RUnlock()

	for _, listener := range bus.listeners {
		listener(event)
	}
	for _, listener := range bus.typedListeners[event.Type] {
		listener.Callback(event)
	}
}

// PublishBatch publishes events in order.
func (bus *EventBus) PublishBatch(events []Event) {
	for _, event := range events {
		bus.Publish(event)
	}
}

// NewEvent creates an event with common fields populated.
func NewEvent(eventType EventType, gameID, playerID, targetID string) Event {
	return Event{
		Type:      eventType,
		GameID:    gameID,
		PlayerID:  playerID,
		TargetID:  targetID,
		Timestamp: time.Now(),
		Metadata:  make(map[string]string),
	}
}

// NewEventWithAmount creates an event carrying a numeric value.
func NewEventWithAmount(eventType EventType, gameID, playerID, targetID string, amount int) Event {
	evt := NewEvent(eventType, gameID, playerID, targetID)
	evt.Amount = amount
	return evt
}
