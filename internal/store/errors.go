package store

import (
	"errors"
	"fmt"
)

var (
	ErrGameNotFound           = errors.New("game not found")
	ErrOptimisticLock         = errors.New("optimistic lock conflict")
	ErrPersistenceUnavailable = errors.New("persistence unavailable")
	ErrInvalidConfig          = errors.New("invalid game config")
	ErrCorruptSnapshot        = errors.New("corrupt snapshot")
	ErrDeckNotFound           = errors.New("deck not found")
)

// OptimisticLockError reports a commit against a superseded version. Actual
// is -1 when the conflict was detected by the storage engine.
type OptimisticLockError struct {
	GameID   string
	Expected int64
	Actual   int64
}

func (e *OptimisticLockError) Error() string {
	if e.Actual < 0 {
		return fmt.Sprintf("game %s: version %d was superseded", e.GameID, e.Expected)
	}
	return fmt.Sprintf("game %s: expected version %d, current is %d", e.GameID, e.Expected, e.Actual)
}

// Is makes errors.Is(err, ErrOptimisticLock) match.
func (e *OptimisticLockError) Is(target error) bool {
	return target == ErrOptimisticLock
}
