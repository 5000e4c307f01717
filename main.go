package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"hackrx/backend/internal/app"
	"hackrx/backend/internal/config"
	"hackrx/backend/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := logger.New(os.Stdout, cfg.SlogLevel())
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.Close()

	a, err := app.New(ctx, cfg, deps)
	if err != nil {
		return err
	}
	return a.Run(ctx)
}
