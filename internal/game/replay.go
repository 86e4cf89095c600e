package game

import (
	"compress/gzip"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/voidecho/voidecho-server-go/internal/game/state"
)

const replayFormatVersion = 1

var ErrReplayNotFound = errors.New("replay not found")

// Frame is one committed version of a game together with the checksum it
// had when it was recorded.
type Frame struct {
	Version  int64
	Checksum string
	State    *state.GameState
}

// Replay is the ordered list of committed states of one game.
type Replay struct {
	GameID       string
	Frames       []Frame
	CurrentIndex int
	mu           sync.RWMutex
}

// NewReplay creates an empty replay.
func NewReplay(gameID string) *Replay {
	return &Replay{GameID: gameID}
}

// Record appends a private copy of gs. Versions must increase; a stale or
// duplicate version is ignored.
func (r *Replay) Record(gs *state.GameState) (bool, error) {
	sum, err := state.ComputeChecksum(gs)
	if err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if n := len(r.Frames); n > 0 && r.Frames[n-1].Version >= gs.Version {
		return false, nil
	}
	r.Frames = append(r.Frames, Frame{Version: gs.Version, Checksum: sum.Hash, State: gs.Clone()})
	return true, nil
}

// Start rewinds to the first frame.
func (r *Replay) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.CurrentIndex = 0
}

// Next returns the frame at the cursor and advances it, or nil at the end.
func (r *Replay) Next() *state.GameState {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.CurrentIndex < len(r.Frames) {
		gs := r.Frames[r.CurrentIndex].State
		r.CurrentIndex++
		return gs.Clone()
	}
	return nil
}

// Previous steps the cursor back and returns that frame, or nil at the start.
func (r *Replay) Previous() *state.GameState {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.CurrentIndex > 0 {
		r.CurrentIndex--
		return r.Frames[r.CurrentIndex].State.Clone()
	}
	return nil
}

// Skip moves the cursor by count frames, clamped to the recording.
func (r *Replay) Skip(count int) *state.GameState {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.Frames) == 0 {
		return nil
	}
	r.CurrentIndex = min(max(r.CurrentIndex+count, 0), len(r.Frames)-1)
	return r.Frames[r.CurrentIndex].State.Clone()
}

// Size returns the number of recorded frames.
func (r *Replay) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.Frames)
}

// At returns the frame holding version v.
func (r *Replay) At(v int64) (*state.GameState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, f := range r.Frames {
		if f.Version == v {
			return f.State.Clone(), true
		}
	}
	return nil, false
}

// Verify recomputes every frame checksum.
func (r *Replay) Verify() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, f := range r.Frames {
		ok, err := state.VerifyChecksum(f.State, f.Checksum)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("replay %s: frame v%d checksum mismatch", r.GameID, f.Version)
		}
	}
	return nil
}

type replayMetadata struct {
	GameID     string
	SavedAt    time.Time
	Version    int
	FrameCount int
}

func replayPath(dir, gameID string) string {
	return filepath.Join(dir, gameID+".replay")
}

// SaveToFile writes the replay as gzip-compressed gob.
func (r *Replay) SaveToFile(dir string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	file, err := os.Create(replayPath(dir, r.GameID))
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	zw := gzip.NewWriter(file)
	enc := gob.NewEncoder(zw)
	meta := replayMetadata{
		GameID:     r.GameID,
		SavedAt:    time.Now(),
		Version:    replayFormatVersion,
		FrameCount: len(r.Frames),
	}
	if err := enc.Encode(&meta); err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	for i := range r.Frames {
		if err := enc.Encode(&r.Frames[i]); err != nil {
			return fmt.Errorf("failed to encode frame %d: %w", i, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to flush replay: %w", err)
	}
	return nil
}

// LoadReplayFromFile reads a replay written by SaveToFile and verifies its
// checksums.
func LoadReplayFromFile(dir, gameID string) (*Replay, error) {
	file, err := os.Open(replayPath(dir, gameID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrReplayNotFound, gameID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	zr, err := gzip.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer zr.Close()

	dec := gob.NewDecoder(zr)
	var meta replayMetadata
	if err := dec.Decode(&meta); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	if meta.Version != replayFormatVersion {
		return nil, fmt.Errorf("unsupported replay version: %d", meta.Version)
	}

	replay := NewReplay(meta.GameID)
	for i := 0; i < meta.FrameCount; i++ {
		var f Frame
		if err := dec.Decode(&f); err != nil {
			return nil, fmt.Errorf("failed to decode frame %d: %w", i, err)
		}
		replay.Frames = append(replay.Frames, f)
	}
	if err := replay.Verify(); err != nil {
		return nil, err
	}
	return replay, nil
}

// ReplayRecorder keeps one replay per game being recorded.
type ReplayRecorder struct {
	logger  *zap.Logger
	saveDir string

	mu      sync.RWMutex
	replays map[string]*Replay
}

// NewReplayRecorder creates a recorder that saves into saveDir.
func NewReplayRecorder(logger *zap.Logger, saveDir string) *ReplayRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReplayRecorder{
		logger:  logger,
		saveDir: saveDir,
		replays: make(map[string]*Replay),
	}
}

// StartRecording begins a replay with gs as its first frame.
func (rr *ReplayRecorder) StartRecording(gs *state.GameState) error {
	replay := NewReplay(gs.ID)
	if _, err := replay.Record(gs); err != nil {
		return err
	}
	rr.mu.Lock()
	rr.replays[gs.ID] = replay
	rr.mu.Unlock()

	rr.logger.Info("started replay recording", zap.String("game_id", gs.ID))
	return nil
}

// Record appends gs when its game is being recorded.
func (rr *ReplayRecorder) Record(gs *state.GameState) error {
	rr.mu.RLock()
	replay := rr.replays[gs.ID]
	rr.mu.RUnlock()
	if replay == nil {
		return nil
	}

	added, err := replay.Record(gs)
	if err != nil {
		return fmt.Errorf("record replay frame: %w", err)
	}
	if added {
		rr.logger.Debug("recorded replay frame",
			zap.String("game_id", gs.ID),
			zap.Int64("version", gs.Version),
			zap.Int("frame_count", replay.Size()),
		)
	}
	return nil
}

// Replay returns the in-memory replay of a game.
func (rr *ReplayRecorder) Replay(gameID string) (*Replay, bool) {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	r, ok := rr.replays[gameID]
	return r, ok
}

// IsRecording reports whether gameID has a live replay.
func (rr *ReplayRecorder) IsRecording(gameID string) bool {
	_, ok := rr.Replay(gameID)
	return ok
}

// SaveReplay writes the replay to disk and drops it from memory.
func (rr *ReplayRecorder) SaveReplay(gameID string) error {
	rr.mu.Lock()
	replay, ok := rr.replays[gameID]
	delete(rr.replays, gameID)
	rr.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrReplayNotFound, gameID)
	}

	if err := replay.SaveToFile(rr.saveDir); err != nil {
		return fmt.Errorf("failed to save replay: %w", err)
	}
	rr.logger.Info("saved replay to disk",
		zap.String("game_id", gameID),
		zap.Int("frame_count", replay.Size()),
		zap.String("directory", rr.saveDir),
	)
	return nil
}

// LoadReplay reads a saved replay.
func (rr *ReplayRecorder) LoadReplay(gameID string) (*Replay, error) {
	replay, err := LoadReplayFromFile(rr.saveDir, gameID)
	if err != nil {
		return nil, err
	}
	rr.logger.Info("loaded replay from disk",
		zap.String("game_id", gameID),
		zap.Int("frame_count", replay.Size()),
	)
	return replay, nil
}

// ClearReplay drops a replay without saving it.
func (rr *ReplayRecorder) ClearReplay(gameID string) {
	rr.mu.Lock()
	delete(rr.replays, gameID)
	rr.mu.Unlock()
	rr.logger.Debug("cleared replay from memory", zap.String("game_id", gameID))
}
