package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/GreenMint-Hub/GreenMintBackend/internal/config"
	"github.com/GreenMint-Hub/GreenMintBackend/internal/domain"
	"github.com/GreenMint-Hub/GreenMintBackend/internal/logging"
	"github.com/GreenMint-Hub/GreenMintBackend/internal/outbox"
	"github.com/GreenMint-Hub/GreenMintBackend/internal/persistence/postgres"
	"github.com/GreenMint-Hub/GreenMintBackend/internal/sweeper"
	httptransport "github.com/GreenMint-Hub/GreenMintBackend/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := logging.New(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("janitor exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	sw, err := sweeper.New(postgres.NewRepository(pool), sweeper.Config{
		TTL:      cfg.Sweeper.TTL,
		Interval: cfg.Sweeper.Interval,
		Policy:   domain.ExpiryPolicy(cfg.Sweeper.Policy),
	}, sweeper.WithLogger(logger))
	if err != nil {
		return err
	}
	manager := outbox.NewDLQManager(pool, cfg.DLQ.MaxRetries, cfg.DLQ.BaseDelay, logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sw.Start(ctx)
		return nil
	})
	g.Go(func() error {
		manager.Start(ctx, cfg.DLQ.PollInterval, cfg.DLQ.BatchSize)
		return nil
	})
	g.Go(func() error {
		return httptransport.Run(ctx, httptransport.NewMetricsServer(cfg.HTTP.MetricsAddress), cfg.HTTP.ShutdownTimeout, logger)
	})
	return g.Wait()
}
