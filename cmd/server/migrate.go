package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/voidecho/voidecho-server-go/internal/config"
	"github.com/voidecho/voidecho-server-go/internal/logging"
	"github.com/voidecho/voidecho-server-go/internal/repository"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}
		logger, err := logging.New(cfg.Logging)
		if err != nil {
			return fmt.Errorf("initialize logger: %w", err)
		}
		defer logger.Close()

		ctx := cmd.Context()
		switch cfg.Database.Driver {
		case "sqlite":
			// Opening the database applies pending migrations.
			db, err := repository.OpenSQLite(ctx, cfg.Database.Path, logger.Logger)
			if err != nil {
				return err
			}
			return db.Close()
		case "postgres":
			db, err := repository.NewDB(ctx, cfg.Database, logger.Logger)
			if err != nil {
				return err
			}
			defer db.Close()
			applied, err := db.Migrate(ctx)
			if err != nil {
				return err
			}
			logger.Info("migrations complete", zap.Int("applied", len(applied)))
			return nil
		default:
			logger.Info("nothing to migrate", zap.String("driver", cfg.Database.Driver))
			return nil
		}
	},
}
