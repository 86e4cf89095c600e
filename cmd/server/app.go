package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/voidecho/voidecho-server-go/internal/config"
	"github.com/voidecho/voidecho-server-go/internal/game"
	"github.com/voidecho/voidecho-server-go/internal/game/state"
	"github.com/voidecho/voidecho-server-go/internal/repository"
	"github.com/voidecho/voidecho-server-go/internal/store"
)

func storeConfig(cfg config.Config) store.Config {
	return store.Config{
		CacheSize:        cfg.Cache.Size,
		CacheTTL:         cfg.Cache.TTL,
		MinTimeLimit:     cfg.Game.MinTimeLimit,
		MaxTimeLimit:     cfg.Game.MaxTimeLimit,
		DefaultTimeLimit: cfg.Game.DefaultTimeLimit,
		InitialHandSize:  cfg.Game.InitialHandSize,
	}
}

func engineConfig(cfg config.Config) game.Config {
	return game.Config{
		MaxConsecutiveTimeouts: cfg.Game.MaxConsecutiveTimeouts,
		HookTimeout:            cfg.Game.HookTimeout,
		SlowOperationThreshold: cfg.Game.SlowOperationThreshold,
		LowTimerThreshold:      cfg.Game.LowTimerThreshold,
	}
}

func seededSource() rand.Source {
	return rand.NewPCG(uint64(time.Now().UnixNano()), rand.Uint64())
}

// openPersistence returns the configured backend and a function releasing
// it.
func openPersistence(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (store.Persistence, func(), error) {
	switch cfg.Driver {
	case "memory":
		logger.Warn("using in-memory persistence; games are lost on restart")
		return store.NewMemoryPersistence(logger), func() {}, nil

	case "sqlite":
		db, err := repository.OpenSQLite(ctx, cfg.Path, logger)
		if err != nil {
			return nil, nil, err
		}
		active, err := db.CountByStatus(ctx, state.StatusActive)
		if err == nil {
			logger.Info("sqlite persistence ready", zap.String("path", cfg.Path), zap.Int("active_games", active))
		}
		return db, func() { _ = db.Close() }, nil

	case "postgres":
		db, err := repository.NewDB(ctx, cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		if cfg.AutoMigrate {
			if _, err := db.Migrate(ctx); err != nil {
				db.Close()
				return nil, nil, err
			}
		}
		stats := db.Stats()
		logger.Info("database connection pool initialized",
			zap.Int32("total_conns", stats.TotalConns()),
			zap.Int32("idle_conns", stats.IdleConns()),
		)
		return repository.NewGameRepository(db), db.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
}
