package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/voidecho/voidecho-server-go/internal/catalog"
	"github.com/voidecho/voidecho-server-go/internal/config"
	"github.com/voidecho/voidecho-server-go/internal/game"
	"github.com/voidecho/voidecho-server-go/internal/game/quest"
	"github.com/voidecho/voidecho-server-go/internal/logging"
	"github.com/voidecho/voidecho-server-go/internal/pubsub"
	"github.com/voidecho/voidecho-server-go/internal/server"
	"github.com/voidecho/voidecho-server-go/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the game server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return serve(cmd.Context())
	},
}

func serve(parent context.Context) error {
	loader := config.NewLoader(configPath)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer logger.Close()

	logger.Info("starting Void Echo server",
		zap.String("version", version),
		zap.String("config", loader.File()),
		zap.String("database", cfg.Database.Driver),
	)

	loader.Watch(func(next *config.Config, err error) {
		if err != nil {
			logger.Warn("ignoring invalid configuration change", zap.Error(err))
			return
		}
		logger.SetLevel(next.Logging.Level)
	})

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	persistence, closePersistence, err := openPersistence(ctx, cfg.Database, logger.Logger)
	if err != nil {
		return fmt.Errorf("open persistence: %w", err)
	}
	defer closePersistence()

	cat, err := catalog.Default()
	if err != nil {
		return fmt.Errorf("load card catalog: %w", err)
	}
	tracker := quest.NewTracker(logger.Named("quest"), seededSource())
	st := store.New(persistence, cat, tracker, storeConfig(*cfg), logger.Named("store"),
		store.WithRandSource(seededSource()))

	bus := pubsub.NewBus(int64(cfg.Server.WebSocket.SendBuffer), logger.Named("pubsub"))
	defer bus.Close()

	opts := []game.Option{game.WithPublisher(bus)}
	if cfg.Replay.Enabled {
		if err := os.MkdirAll(cfg.Replay.Dir, 0o755); err != nil {
			return fmt.Errorf("create replay dir: %w", err)
		}
		opts = append(opts, game.WithReplayRecorder(game.NewReplayRecorder(logger.Named("replay"), cfg.Replay.Dir)))
	}
	engine := game.NewEngine(st, tracker, engineConfig(*cfg), logger.Named("engine"), opts...)
	detach := bus.ForwardEvents(engine.Events())
	defer detach()

	hub := server.NewHub(engine, cfg.Server.WebSocket, logger.Named("ws"))
	timers := server.NewTurnTimers(engine, logger.Named("timers"))
	for _, sub := range []func(context.Context, game.StateDiff) error{hub.OnDiff, timers.OnDiff} {
		if err := bus.SubscribeDiffs(ctx, sub); err != nil {
			return err
		}
	}
	if err := bus.SubscribeEvents(ctx, hub.OnEvent); err != nil {
		return err
	}

	grpcServer, health := server.NewGRPCServer(cfg.Server.GRPC, logger.Named("grpc"))
	lis, err := net.Listen("tcp", cfg.Server.GRPC.Address)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Server.GRPC.Address, err)
	}
	httpServer := &http.Server{
		Addr:    cfg.Server.WebSocket.Address,
		Handler: server.NewHTTPHandler(hub, engine, logger.Named("http")),
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("starting gRPC server", zap.String("address", cfg.Server.GRPC.Address))
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("gRPC server: %w", err)
		}
	}()
	go func() {
		logger.Info("starting WebSocket server",
			zap.String("address", cfg.Server.WebSocket.Address),
			zap.String("path", cfg.Server.WebSocket.Path),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("WebSocket server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err = <-errCh:
		logger.Error("server failed", zap.Error(err))
	}

	logger.Info("shutting down gracefully...")
	health.Shutdown()
	timers.Close()
	hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if serr := httpServer.Shutdown(shutdownCtx); serr != nil {
		logger.Warn("http shutdown", zap.Error(serr))
	}
	grpcServer.GracefulStop()

	logger.Info("Void Echo server stopped")
	return err
}
