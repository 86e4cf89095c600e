package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/voidecho/voidecho-server-go/internal/game/state"
	"github.com/voidecho/voidecho-server-go/internal/repository/migrations"
	"github.com/voidecho/voidecho-server-go/internal/store"
)

// SQLite persists game snapshots in a single SQLite file.
type SQLite struct {
	db     *sql.DB
	logger *zap.Logger
}

// OpenSQLite opens (or creates) the database at path and applies the
// embedded migrations.
func OpenSQLite(ctx context.Context, path string, logger *zap.Logger) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer at a time; the version check does the rest.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	applied, err := applySQLiteMigrations(ctx, db, migrations.SQLite)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	if len(applied) > 0 {
		logger.Info("sqlite migrations applied", zap.Strings("migrations", applied))
	}
	return &SQLite{db: db, logger: logger}, nil
}

// Close closes the database handle.
func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// LoadGameState reads and verifies the stored snapshot.
func (s *SQLite) LoadGameState(ctx context.Context, id string) (*state.GameState, error) {
	var (
		version  int64
		checksum string
		payload  string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT version, checksum, snapshot FROM games WHERE id = ?", id,
	).Scan(&version, &checksum, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load %s: %w", id, store.ErrGameNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w: %w", id, store.ErrPersistenceUnavailable, err)
	}
	return decodeSnapshot(id, version, []byte(payload), checksum)
}

// SaveGameState inserts the game when expectedVersion is 0 and otherwise
// overwrites it only if the stored version still equals expectedVersion.
func (s *SQLite) SaveGameState(ctx context.Context, gs *state.GameState, expectedVersion int64) error {
	payload, checksum, err := encodeSnapshot(gs)
	if err != nil {
		return err
	}
	now := time.Now().UTC().UnixMilli()

	if expectedVersion == 0 {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO games (id, game_number, version, status, checksum, snapshot, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			gs.ID, gs.GameNumber, gs.Version, string(gs.Status), checksum, string(payload),
			gs.CreatedAt.UTC().UnixMilli(), now,
		)
		if isUniqueViolation(err) {
			return s.conflict(ctx, gs.ID, expectedVersion)
		}
		if err != nil {
			return fmt.Errorf("insert %s: %w: %w", gs.ID, store.ErrPersistenceUnavailable, err)
		}
		s.logger.Debug("sqlite inserted game", zap.String("game_id", gs.ID), zap.Int64("version", gs.Version))
		return nil
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE games SET version = ?, status = ?, checksum = ?, snapshot = ?, updated_at = ?
		 WHERE id = ? AND version = ?`,
		gs.Version, string(gs.Status), checksum, string(payload), now,
		gs.ID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update %s: %w: %w", gs.ID, store.ErrPersistenceUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s: %w: %w", gs.ID, store.ErrPersistenceUnavailable, err)
	}
	if n == 0 {
		return s.conflict(ctx, gs.ID, expectedVersion)
	}
	s.logger.Debug("sqlite updated game", zap.String("game_id", gs.ID), zap.Int64("version", gs.Version))
	return nil
}

// conflict explains a write that matched no row.
func (s *SQLite) conflict(ctx context.Context, id string, expected int64) error {
	var actual int64
	err := s.db.QueryRowContext(ctx, "SELECT version FROM games WHERE id = ?", id).Scan(&actual)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("save %s: %w", id, store.ErrGameNotFound)
	case err != nil:
		return &store.OptimisticLockError{GameID: id, Expected: expected, Actual: -1}
	}
	return &store.OptimisticLockError{GameID: id, Expected: expected, Actual: actual}
}

// DeleteGameState removes the game row.
func (s *SQLite) DeleteGameState(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM games WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete %s: %w: %w", id, store.ErrPersistenceUnavailable, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("delete %s: %w", id, store.ErrGameNotFound)
	}
	return nil
}

// NextGameNumber allocates the next number from an autoincrement table.
func (s *SQLite) NextGameNumber(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO game_numbers (allocated_at) VALUES (?)", time.Now().UTC().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("allocate game number: %w: %w", store.ErrPersistenceUnavailable, err)
	}
	return res.LastInsertId()
}

// CountByStatus returns how many stored games are in status.
func (s *SQLite) CountByStatus(ctx context.Context, status state.Status) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM games WHERE status = ?", string(status),
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("count games: %w: %w", store.ErrPersistenceUnavailable, err)
	}
	return n, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

var _ store.Persistence = (*SQLite)(nil)
