// Command server runs the review intelligence and recovery engine: the HTTP
// API, the Kafka consumers and the scheduled crisis and goal jobs.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/03aar/review-sub000/internal/app"
	"github.com/03aar/review-sub000/internal/config"
	"github.com/03aar/review-sub000/pkg/logger"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := serve(ctx)
	stop()
	if err != nil {
		slog.Error("reputation engine exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func serve(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logger.New("reputation-engine", cfg.LogLevel)
	slog.SetDefault(log)
	log.Info("reputation engine starting",
		slog.String("version", version),
		slog.String("environment", cfg.Environment),
		slog.Int("http_port", cfg.HTTPPort),
	)

	engine, err := app.NewApp(cfg, log)
	if err != nil {
		return fmt.Errorf("wire dependencies: %w", err)
	}
	if err := engine.Run(ctx); err != nil {
		return err
	}

	log.Info("reputation engine stopped")
	return nil
}
