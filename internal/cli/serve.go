package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mcoot/tradegame-bot/internal/config"
	"github.com/mcoot/tradegame-bot/internal/factory"
	"github.com/mcoot/tradegame-bot/internal/platform"
	"github.com/mcoot/tradegame-bot/internal/services/trade"
	redisstorage "github.com/mcoot/tradegame-bot/internal/storage/redis"
	"github.com/mcoot/tradegame-bot/internal/webhook"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot webhook server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("configuration error", slog.String("error", err.Error()))
		return err
	}

	lineClient, err := platform.NewLineClient(cfg.LineChannelSecret, cfg.LineChannelToken)
	if err != nil {
		logger.Error("failed to create LINE client", slog.String("error", err.Error()))
		return err
	}

	factoryCfg := factory.Config{
		Logger:      logger,
		Platform:    lineClient,
		StorageType: string(cfg.StorageType),
		DatabaseURL: cfg.DatabaseURL,
		TradeConfig: trade.Config{
			Window:        cfg.TradeWindow,
			SweepInterval: cfg.TradeSweepInterval,
		},
	}
	if cfg.StorageType == config.StorageRedis {
		redisCfg := redisstorage.DefaultConfig()
		redisCfg.URL = cfg.RedisURL
		factoryCfg.RedisConfig = &redisCfg
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := factory.New(ctx, factoryCfg)
	if err != nil {
		logger.Error("failed to create application", slog.String("error", err.Error()))
		return err
	}

	// Background loops: trade expiry sweeper and announcement dispatcher
	app.TradeEngine.StartSweeper(ctx)
	app.AnnounceService.SetInterval(cfg.DispatchInterval)
	app.AnnounceService.Start(ctx)

	handler := webhook.NewHandler(lineClient, lineClient, app.Router, logger)
	httpRouter := webhook.NewRouter(handler, logger)

	serverCfg := webhook.DefaultServerConfig()
	serverCfg.Port = cfg.Port
	server := webhook.NewServer(httpRouter, serverCfg, logger)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", slog.String("error", err.Error()))
			return err
		}
	case <-ctx.Done():
		if err := server.Shutdown(context.Background()); err != nil {
			logger.Error("shutdown error", slog.String("error", err.Error()))
			return err
		}
	}

	logger.Info("server stopped")
	return nil
}
