package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/GreenMint-Hub/GreenMintBackend/internal/config"
	"github.com/GreenMint-Hub/GreenMintBackend/internal/domain"
	"github.com/GreenMint-Hub/GreenMintBackend/internal/intake"
	"github.com/GreenMint-Hub/GreenMintBackend/internal/logging"
	"github.com/GreenMint-Hub/GreenMintBackend/internal/persistence/postgres"
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
		logger.Error("intake exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	repo := postgres.NewRepository(pool)
	// Traces only take the sensor path, which never touches media.
	service := domain.NewService(repo, repo, nil, domain.Config{
		DefaultStrategy:   cfg.Detection.Strategy,
		VotingQuorum:      cfg.Voting.Quorum,
		VotersPerActivity: cfg.Voting.VotersPerActivity,
		RecentInStats:     cfg.Voting.RecentInStats,
	}, domain.WithLogger(logger))

	client, err := intake.Connect(intake.ClientConfig{
		Broker:   cfg.MQTT.Broker,
		ClientID: cfg.MQTT.ClientID,
		Username: cfg.MQTT.Username,
		Password: cfg.MQTT.Password,
	}, logger)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	subscriber := intake.NewSubscriber(client, cfg.MQTT.Topic, cfg.MQTT.QoS, service, intake.WithLogger(logger))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := subscriber.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return httptransport.Run(ctx, httptransport.NewMetricsServer(cfg.HTTP.MetricsAddress), cfg.HTTP.ShutdownTimeout, logger)
	})
	return g.Wait()
}
