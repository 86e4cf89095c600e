// Package pubsub fans committed game changes out to interested parties over
// an in-process watermill channel.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"go.uber.org/zap"

	"github.com/voidecho/voidecho-server-go/internal/game"
	"github.com/voidecho/voidecho-server-go/internal/game/rules"
)

const (
	// DiffTopic carries one game.StateDiff per committed version.
	DiffTopic = "game.diffs"
	// EventTopic carries individual rules.Event notifications.
	EventTopic = "game.events"

	metaGameID  = "game_id"
	metaVersion = "version"
	metaType    = "event_type"
)

// Bus publishes diffs and events and lets transports subscribe to them.
type Bus struct {
	ch     *gochannel.GoChannel
	logger *zap.Logger
}

// NewBus creates a bus. buffer sizes each subscriber's output channel.
func NewBus(buffer int64, logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	ch := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: buffer},
		newZapAdapter(logger),
	)
	return &Bus{ch: ch, logger: logger}
}

// PublishDiff implements game.Publisher.
func (b *Bus) PublishDiff(ctx context.Context, diff game.StateDiff) error {
	msg, err := newMessage(ctx, diff)
	if err != nil {
		return err
	}
	msg.Metadata.Set(metaGameID, diff.GameID)
	msg.Metadata.Set(metaVersion, fmt.Sprint(diff.ToVersion))
	if err := b.ch.Publish(DiffTopic, msg); err != nil {
		return fmt.Errorf("publish diff %s@%d: %w", diff.GameID, diff.ToVersion, err)
	}
	return nil
}

// PublishEvent sends a single event on EventTopic.
func (b *Bus) PublishEvent(ctx context.Context, ev rules.Event) error {
	msg, err := newMessage(ctx, ev)
	if err != nil {
		return err
	}
	msg.Metadata.Set(metaGameID, ev.GameID)
	msg.Metadata.Set(metaType, string(ev.Type))
	if err := b.ch.Publish(EventTopic, msg); err != nil {
		return fmt.Errorf("publish event %s: %w", ev.Type, err)
	}
	return nil
}

// ForwardEvents relays everything published on events to EventTopic. The
// returned function detaches the relay.
func (b *Bus) ForwardEvents(events *rules.EventBus) func() {
	handle := events.Subscribe(func(ev rules.Event) {
		if err := b.PublishEvent(context.Background(), ev); err != nil {
			b.logger.Warn("failed to forward event",
				zap.String("game_id", ev.GameID),
				zap.String("event_type", string(ev.Type)),
				zap.Error(err),
			)
		}
	})
	return func() { events.Unsubscribe(handle) }
}

// SubscribeDiffs calls handler for every diff until ctx is cancelled or the
// bus is closed.
func (b *Bus) SubscribeDiffs(ctx context.Context, handler func(context.Context, game.StateDiff) error) error {
	return subscribe(ctx, b, DiffTopic, handler)
}

// SubscribeEvents calls handler for every event until ctx is cancelled or
// the bus is closed.
func (b *Bus) SubscribeEvents(ctx context.Context, handler func(context.Context, rules.Event) error) error {
	return subscribe(ctx, b, EventTopic, handler)
}

// Close stops every subscription.
func (b *Bus) Close() error {
	return b.ch.Close()
}

func newMessage(ctx context.Context, payload any) (*message.Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.SetContext(ctx)
	return msg, nil
}

// subscribe decodes messages on topic and hands them to handler. Messages
// are always acked: gochannel redelivers nacked messages immediately, and a
// consumer that cannot handle one now will not handle it on retry either.
func subscribe[T any](ctx context.Context, b *Bus, topic string, handler func(context.Context, T) error) error {
	messages, err := b.ch.Subscribe(ctx, topic)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	go func() {
		for msg := range messages {
			var payload T
			if err := json.Unmarshal(msg.Payload, &payload); err != nil {
				b.logger.Error("dropping undecodable message",
					zap.String("topic", topic),
					zap.String("msg_id", msg.UUID),
					zap.Error(err),
				)
				msg.Ack()
				continue
			}
			if err := handler(msg.Context(), payload); err != nil {
				b.logger.Warn("message handler failed",
					zap.String("topic", topic),
					zap.String("game_id", msg.Metadata.Get(metaGameID)),
					zap.Error(err),
				)
			}
			msg.Ack()
		}
		b.logger.Debug("subscription ended", zap.String("topic", topic))
	}()
	return nil
}

var _ game.Publisher = (*Bus)(nil)
