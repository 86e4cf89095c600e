package state

import (
	"bytes"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// ChecksumVersion is bumped whenever the canonical representation changes.
const ChecksumVersion = 1

// Checksum is a deterministic digest of a game state. Timestamps are excluded
// so a snapshot hashes the same after any lossless round trip.
type Checksum struct {
	Hash    string
	Version int
}

// ComputeChecksum hashes the canonical representation of gs.
func ComputeChecksum(gs *GameState) (Checksum, error) {
	hash := sha256.New()
	if _, err := hash.Write([]byte(canonical(gs))); err != nil {
		return Checksum{}, fmt.Errorf("failed to compute hash: %w", err)
	}
	return Checksum{Hash: hex.EncodeToString(hash.Sum(nil)), Version: ChecksumVersion}, nil
}

// VerifyChecksum reports whether gs still hashes to expected.
func VerifyChecksum(gs *GameState, expected string) (bool, error) {
	computed, err := ComputeChecksum(gs)
	if err != nil {
		return false, err
	}
	return computed.Hash == expected, nil
}

// canonical renders gs independently of map iteration order. Sequences whose
// order is meaningful (deck, hand, history) keep their order.
func canonical(gs *GameState) string {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "GAME:%s|%d|%s|%s|%s|%d|%s|%s|%t|%s|%s|%d|%d\n",
		gs.ID,
		gs.GameNumber,
		gs.Player1ID,
		gs.Player2ID,
		gs.CurrentPlayer,
		gs.Turn,
		gs.Phase,
		gs.Status,
		gs.GameOver,
		gs.Winner,
		gs.EndReason,
		gs.Version,
		gs.TimeLimit,
	)

	ids := make([]string, 0, len(gs.Players))
	for id := range gs.Players {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		ps := gs.Players[id]
		fmt.Fprintf(&buf, "PLAYER:%s|%s|%s|%d|%d|%d|%d|%d|%t|%t|%d\n",
			id,
			ps.Faction,
			ps.DeckID,
			ps.Resources,
			ps.Counters.UnitsPlaced,
			ps.Counters.SpellsCast,
			ps.Counters.UnitsKilled,
			ps.Counters.DamageDealt,
			ps.Ready,
			ps.CanAct,
			ps.Timeouts,
		)
		buf.WriteString("  HAND:" + cardIDs(ps.Hand) + "\n")
		buf.WriteString("  DECK:" + cardIDs(ps.Deck) + "\n")
		buf.WriteString("  GRAVEYARD:" + cardIDs(ps.Graveyard) + "\n")

		for _, u := range ps.Board.Sorted() {
			fmt.Fprintf(&buf, "  UNIT:%s|%s|%d|%d|%d|%d|%t|%t|%t|%t\n",
				u.InstanceID,
				u.Position,
				u.Attack,
				u.HP,
				u.CurrentHP,
				len(u.Effects),
				u.CanAttack,
				u.CanMove,
				u.HasAttacked,
				u.SummonedThisTurn,
			)
		}

		if q := ps.Quest; q != nil {
			milestones := make([]string, len(q.Milestones))
			for i, m := range q.Milestones {
				milestones[i] = fmt.Sprint(m)
			}
			fmt.Fprintf(&buf, "  QUEST:%s|%s|%d|%d|%t|%s\n",
				q.QuestID,
				q.ConditionType,
				q.TargetValue,
				q.CurrentValue,
				q.IsCompleted,
				strings.Join(milestones, ","),
			)
		}
	}

	buf.WriteString("HISTORY:\n")
	for i, a := range gs.ActionHistory {
		fmt.Fprintf(&buf, "  %d:%s|%s|%s|%d|%s|%d|%t|%t\n",
			i, a.ID, a.PlayerID, a.Type, a.Turn, a.Phase, a.ResourceCost, a.Valid, a.Forced)
	}
	return buf.String()
}

func cardIDs(cards []Card) string {
	ids := make([]string, len(cards))
	for i, c := range cards {
		if c.InstanceID != "" {
			ids[i] = c.InstanceID
		} else {
			ids[i] = c.ID
		}
	}
	return strings.Join(ids, ",")
}

// SerializeToBytes encodes gs with gob. This is the format used for replay
// files.
func SerializeToBytes(gs *GameState) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(gs); err != nil {
		return nil, fmt.Errorf("failed to encode game state: %w", err)
	}
	return buf.Bytes(), nil
}

// DeserializeFromBytes decodes a gob-encoded game state.
func DeserializeFromBytes(data []byte) (*GameState, error) {
	var gs GameState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&gs); err != nil {
		return nil, fmt.Errorf("failed to decode game state: %w", err)
	}
	return &gs, nil
}

// ValidateSerializationRoundtrip checks that gs survives gob encoding by
// comparing checksums.
func ValidateSerializationRoundtrip(gs *GameState) error {
	original, err := ComputeChecksum(gs)
	if err != nil {
		return fmt.Errorf("failed to compute original checksum: %w", err)
	}
	data, err := SerializeToBytes(gs)
	if err != nil {
		return err
	}
	decoded, err := DeserializeFromBytes(data)
	if err != nil {
		return err
	}
	roundtrip, err := ComputeChecksum(decoded)
	if err != nil {
		return fmt.Errorf("failed to compute deserialized checksum: %w", err)
	}
	if original.Hash != roundtrip.Hash {
		return fmt.Errorf("checksum mismatch: original=%s, deserialized=%s", original.Hash, roundtrip.Hash)
	}
	return nil
}
