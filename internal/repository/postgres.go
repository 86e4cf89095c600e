package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/voidecho/voidecho-server-go/internal/config"
	"github.com/voidecho/voidecho-server-go/internal/game/state"
	"github.com/voidecho/voidecho-server-go/internal/repository/migrations"
	"github.com/voidecho/voidecho-server-go/internal/store"
)

const uniqueViolation = "23505"

// migrationLockKey serialises concurrent migrators across processes.
const migrationLockKey = 0x766f6964

// DB wraps the PostgreSQL connection pool.
type DB struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewDB connects to PostgreSQL and verifies the connection.
func NewDB(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w: %w", store.ErrPersistenceUnavailable, err)
	}

	logger.Info("connected to database",
		zap.String("host", poolCfg.ConnConfig.Host),
		zap.String("database", poolCfg.ConnConfig.Database),
		zap.Int32("max_conns", poolCfg.MaxConns),
	)
	return &DB{pool: pool, logger: logger}, nil
}

// Close releases every pooled connection.
func (db *DB) Close() {
	db.pool.Close()
}

// Stats reports pool usage.
func (db *DB) Stats() *pgxpool.Stat {
	return db.pool.Stat()
}

// Migrate applies the embedded PostgreSQL schema, skipping files already
// recorded in schema_migrations. It returns the files applied by this call.
func (db *DB) Migrate(ctx context.Context) ([]string, error) {
	ms, err := loadMigrations(migrations.Postgres, "postgres")
	if err != nil {
		return nil, err
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin migrations: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", migrationLockKey); err != nil {
		return nil, fmt.Errorf("lock migrations: %w", err)
	}
	if _, err := tx.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+migrationTable+` (
    name TEXT PRIMARY KEY,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`); err != nil {
		return nil, fmt.Errorf("ensure migration table: %w", err)
	}

	var applied []string
	for _, m := range ms {
		var found bool
		if err := tx.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM "+migrationTable+" WHERE name = $1)", m.name,
		).Scan(&found); err != nil {
			return nil, fmt.Errorf("check migration %s: %w", m.name, err)
		}
		if found {
			continue
		}
		if _, err := tx.Exec(ctx, m.up); err != nil {
			return nil, fmt.Errorf("exec migration %s: %w", m.name, err)
		}
		if _, err := tx.Exec(ctx,
			"INSERT INTO "+migrationTable+" (name) VALUES ($1) ON CONFLICT DO NOTHING", m.name,
		); err != nil {
			return nil, fmt.Errorf("record migration %s: %w", m.name, err)
		}
		applied = append(applied, m.name)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit migrations: %w", err)
	}
	if len(applied) > 0 {
		db.logger.Info("postgres migrations applied", zap.Strings("migrations", applied))
	}
	return applied, nil
}

// GameRepository stores game snapshots in PostgreSQL.
type GameRepository struct {
	db *DB
}

// NewGameRepository creates a repository on db.
func NewGameRepository(db *DB) *GameRepository {
	return &GameRepository{db: db}
}

// LoadGameState reads and verifies the stored snapshot.
func (r *GameRepository) LoadGameState(ctx context.Context, id string) (*state.GameState, error) {
	var (
		version  int64
		checksum string
		payload  []byte
	)
	err := r.db.pool.QueryRow(ctx,
		"SELECT version, checksum, snapshot FROM games WHERE id = $1", id,
	).Scan(&version, &checksum, &payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("load %s: %w", id, store.ErrGameNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w: %w", id, store.ErrPersistenceUnavailable, err)
	}
	return decodeSnapshot(id, version, payload, checksum)
}

// SaveGameState inserts when expectedVersion is 0, otherwise performs a
// conditional update on the version column.
func (r *GameRepository) SaveGameState(ctx context.Context, gs *state.GameState, expectedVersion int64) error {
	payload, checksum, err := encodeSnapshot(gs)
	if err != nil {
		return err
	}

	if expectedVersion == 0 {
		_, err := r.db.pool.Exec(ctx,
			`INSERT INTO games (id, game_number, version, status, checksum, snapshot, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, now())`,
			gs.ID, gs.GameNumber, gs.Version, string(gs.Status), checksum, payload, gs.CreatedAt,
		)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return r.conflict(ctx, gs.ID, expectedVersion)
		}
		if err != nil {
			return fmt.Errorf("insert %s: %w: %w", gs.ID, store.ErrPersistenceUnavailable, err)
		}
		return nil
	}

	tag, err := r.db.pool.Exec(ctx,
		`UPDATE games SET version = $1, status = $2, checksum = $3, snapshot = $4, updated_at = now()
		 WHERE id = $5 AND version = $6`,
		gs.Version, string(gs.Status), checksum, payload, gs.ID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update %s: %w: %w", gs.ID, store.ErrPersistenceUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return r.conflict(ctx, gs.ID, expectedVersion)
	}
	return nil
}

func (r *GameRepository) conflict(ctx context.Context, id string, expected int64) error {
	var actual int64
	err := r.db.pool.QueryRow(ctx, "SELECT version FROM games WHERE id = $1", id).Scan(&actual)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return fmt.Errorf("save %s: %w", id, store.ErrGameNotFound)
	case err != nil:
		return &store.OptimisticLockError{GameID: id, Expected: expected, Actual: -1}
	}
	return &store.OptimisticLockError{GameID: id, Expected: expected, Actual: actual}
}

// DeleteGameState removes the game row.
func (r *GameRepository) DeleteGameState(ctx context.Context, id string) error {
	tag, err := r.db.pool.Exec(ctx, "DELETE FROM games WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete %s: %w: %w", id, store.ErrPersistenceUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete %s: %w", id, store.ErrGameNotFound)
	}
	return nil
}

// NextGameNumber draws from the game_number_seq sequence.
func (r *GameRepository) NextGameNumber(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.pool.QueryRow(ctx, "SELECT nextval('game_number_seq')").Scan(&n); err != nil {
		return 0, fmt.Errorf("allocate game number: %w: %w", store.ErrPersistenceUnavailable, err)
	}
	return n, nil
}

var _ store.Persistence = (*GameRepository)(nil)
