package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/zeebo/pollkv/internal/config"
	"github.com/zeebo/pollkv/internal/logger"
	"github.com/zeebo/pollkv/internal/server"
)

func main() {
	cfg := config.Load()

	log := logger.New(cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	srv, err := server.Listen(cfg.Host, cfg.Port, server.Options{
		Log:           log,
		Trace:         cfg.Trace(),
		PollTimeout:   cfg.PollTimeout,
		StatsInterval: cfg.StatsInterval,
	})
	if err != nil {
		log.Fatal("listen failed", zap.Error(err))
	}

	log.Info("listening",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.Int("level", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		_ = srv.Close()
		log.Fatal("poll failed", zap.Error(err))
	}

	log.Info("shutting down", srv.Stats().Field())
	if err := srv.Close(); err != nil {
		log.Warn("close failed", zap.Error(err))
	}
	log.Info("stopped")
}
