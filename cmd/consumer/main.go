package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"

	"github.com/GreenMint-Hub/GreenMintBackend/internal/config"
	"github.com/GreenMint-Hub/GreenMintBackend/internal/consumer"
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
		logger.Error("consumer exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	handlers := []consumer.Handler{consumer.NewEventLogHandler(pool)}
	if cfg.ClickHouse.Enabled {
		conn, err := consumer.OpenClickHouse(ctx, consumer.ClickHouseOptions{
			Addr:     cfg.ClickHouse.Addr,
			Database: cfg.ClickHouse.Database,
			Username: cfg.ClickHouse.Username,
			Password: cfg.ClickHouse.Password,
		})
		if err != nil {
			return err
		}
		defer conn.Close()
		analytics, err := consumer.NewAnalyticsHandler(ctx, conn)
		if err != nil {
			return err
		}
		handlers = append(handlers, analytics)
	}
	handler := consumer.Fanout(handlers...)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httptransport.Run(ctx, httptransport.NewMetricsServer(cfg.HTTP.MetricsAddress), cfg.HTTP.ShutdownTimeout, logger)
	})

	for _, topic := range cfg.Kafka.Topics {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:         cfg.Kafka.Brokers,
			GroupID:         cfg.Kafka.ConsumerGroup,
			Topic:           topic,
			MinBytes:        1e3,
			MaxBytes:        10e6,
			CommitInterval:  time.Second,
			ReadLagInterval: -1,
		})
		proc := consumer.NewProcessor(reader, handler, consumer.WithLogger(logger))

		g.Go(func() error {
			defer reader.Close()
			logger.Info("consumer started", slog.String("topic", topic), slog.String("group", cfg.Kafka.ConsumerGroup))
			if err := proc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	return g.Wait()
}
