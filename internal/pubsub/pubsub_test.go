package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/voidecho/voidecho-server-go/internal/game"
	"github.com/voidecho/voidecho-server-go/internal/game/rules"
)

// Subscription goroutines may log after the test returns, so the bus gets a
// no-op logger rather than a test-bound one.
func newTestBus(t *testing.T) *Bus {
	t.Helper()
	b := NewBus(16, zap.NewNop())
	t.Cleanup(func() { _ = b.Close() })
	return b
}

// TestDiffDelivery verifies that a published diff reaches a subscriber.
func TestDiffDelivery(t *testing.T) {
	b := newTestBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan game.StateDiff, 1)
	require.NoError(t, b.SubscribeDiffs(ctx, func(_ context.Context, d game.StateDiff) error {
		got <- d
		return nil
	}))

	require.NoError(t, b.PublishDiff(ctx, game.StateDiff{
		GameID:      "g1",
		FromVersion: 3,
		ToVersion:   4,
		GameOver:    true,
		Winner:      "alice",
	}))

	select {
	case d := <-got:
		assert.Equal(t, "g1", d.GameID)
		assert.Equal(t, int64(4), d.ToVersion)
		assert.True(t, d.GameOver)
		assert.Equal(t, "alice", d.Winner)
	case <-time.After(2 * time.Second):
		t.Fatal("diff not delivered")
	}
}

// TestForwardEvents verifies that events raised on the rules bus are
// relayed until the relay is detached.
func TestForwardEvents(t *testing.T) {
	b := newTestBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan rules.Event, 4)
	require.NoError(t, b.SubscribeEvents(ctx, func(_ context.Context, ev rules.Event) error {
		got <- ev
		return nil
	}))

	events := rules.NewEventBus()
	detach := b.ForwardEvents(events)
	events.Publish(rules.NewEventWithAmount(rules.EventUnitDamaged, "g1", "bob", "u1", 3))

	select {
	case ev := <-got:
		assert.Equal(t, rules.EventUnitDamaged, ev.Type)
		assert.Equal(t, "u1", ev.TargetID)
		assert.Equal(t, 3, ev.Amount)
	case <-time.After(2 * time.Second):
		t.Fatal("event not forwarded")
	}

	detach()
	events.Publish(rules.NewEvent(rules.EventUnitDestroyed, "g1", "bob", "u1"))
	select {
	case ev := <-got:
		t.Fatalf("unexpected event after detach: %s", ev.Type)
	case <-time.After(100 * time.Millisecond):
	}
}

// TestHandlerErrorDoesNotStall verifies that a failing handler keeps
// receiving later messages.
func TestHandlerErrorDoesNotStall(t *testing.T) {
	b := newTestBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := make(chan int64, 4)
	require.NoError(t, b.SubscribeDiffs(ctx, func(_ context.Context, d game.StateDiff) error {
		calls <- d.ToVersion
		return assert.AnError
	}))

	require.NoError(t, b.PublishDiff(ctx, game.StateDiff{GameID: "g1", ToVersion: 2}))
	require.NoError(t, b.PublishDiff(ctx, game.StateDiff{GameID: "g1", ToVersion: 3}))

	seen := map[int64]bool{}
	deadline := time.After(2 * time.Second)
	for len(seen) < 2 {
		select {
		case v := <-calls:
			seen[v] = true
		case <-deadline:
			t.Fatalf("saw %v", seen)
		}
	}
	assert.True(t, seen[2])
	assert.True(t, seen[3])
}
