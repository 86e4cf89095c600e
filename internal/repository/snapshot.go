// Package repository holds the durable implementations of
// store.Persistence. Both backends keep one row per game: the JSON snapshot,
// its checksum and the version column the optimistic lock compares against.
package repository

import (
	"encoding/json"
	"fmt"

	"github.com/voidecho/voidecho-server-go/internal/game/state"
	"github.com/voidecho/voidecho-server-go/internal/store"
)

func encodeSnapshot(gs *state.GameState) ([]byte, string, error) {
	payload, err := json.Marshal(gs)
	if err != nil {
		return nil, "", fmt.Errorf("encode game %s: %w", gs.ID, err)
	}
	sum, err := state.ComputeChecksum(gs)
	if err != nil {
		return nil, "", fmt.Errorf("checksum game %s: %w", gs.ID, err)
	}
	return payload, sum.Hash, nil
}

// decodeSnapshot rebuilds a game and rejects rows whose payload no longer
// matches the stored checksum or version column.
func decodeSnapshot(id string, version int64, payload []byte, checksum string) (*state.GameState, error) {
	var gs state.GameState
	if err := json.Unmarshal(payload, &gs); err != nil {
		return nil, fmt.Errorf("decode game %s: %w: %v", id, store.ErrCorruptSnapshot, err)
	}
	if gs.ID != id || gs.Version != version {
		return nil, fmt.Errorf("game %s: %w: row holds %s@%d", id, store.ErrCorruptSnapshot, gs.ID, gs.Version)
	}
	ok, err := state.VerifyChecksum(&gs, checksum)
	if err != nil {
		return nil, fmt.Errorf("verify game %s: %w", id, err)
	}
	if !ok {
		return nil, fmt.Errorf("game %s: %w: checksum mismatch", id, store.ErrCorruptSnapshot)
	}
	return &gs, nil
}
