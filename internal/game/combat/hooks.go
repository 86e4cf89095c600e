package combat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/voidecho/voidecho-server-go/internal/game/state"
)

var ErrAbilityHook = errors.New("ability hook failed")

// Hooks is the ability layer's entry point. Calls happen after the causing
// action committed; gs is a private copy.
type Hooks interface {
	OnDamage(ctx context.Context, unit state.BoardCard, amount int, gs *state.GameState) error
	OnDeath(ctx context.Context, unit state.BoardCard, gs *state.GameState) error
}

// NoopHooks ignores every call.
type NoopHooks struct{}

func (NoopHooks) OnDamage(context.Context, state.BoardCard, int, *state.GameState) error { return nil }
func (NoopHooks) OnDeath(context.Context, state.BoardCard, *state.GameState) error      { return nil }

// Fire invokes OnDamage for every damaged unit and OnDeath for every destroyed
// one under a shared timeout. Failures are joined and wrapped with
// ErrAbilityHook; they are not retried.
func Fire(ctx context.Context, hooks Hooks, timeout time.Duration, affected []Casualty, gs *state.GameState) error {
	if hooks == nil || len(affected) == 0 {
		return nil
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var errs []error
	for _, c := range affected {
		if err := hooks.OnDamage(ctx, c.Unit, c.Damage, gs.Clone()); err != nil {
			errs = append(errs, fmt.Errorf("on_damage %s: %w", c.Unit.InstanceID, err))
		}
		if c.Died {
			if err := hooks.OnDeath(ctx, c.Unit, gs.Clone()); err != nil {
				errs = append(errs, fmt.Errorf("on_death %s: %w", c.Unit.InstanceID, err))
			}
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrAbilityHook, errors.Join(errs...))
}
