package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/GreenMint-Hub/GreenMintBackend/internal/api"
	"github.com/GreenMint-Hub/GreenMintBackend/internal/auth"
	"github.com/GreenMint-Hub/GreenMintBackend/internal/config"
	"github.com/GreenMint-Hub/GreenMintBackend/internal/domain"
	"github.com/GreenMint-Hub/GreenMintBackend/internal/logging"
	"github.com/GreenMint-Hub/GreenMintBackend/internal/media"
	"github.com/GreenMint-Hub/GreenMintBackend/internal/notary"
	"github.com/GreenMint-Hub/GreenMintBackend/internal/outbox"
	"github.com/GreenMint-Hub/GreenMintBackend/internal/persistence/memory"
	"github.com/GreenMint-Hub/GreenMintBackend/internal/persistence/postgres"
	"github.com/GreenMint-Hub/GreenMintBackend/internal/sweeper"
	httptransport "github.com/GreenMint-Hub/GreenMintBackend/internal/transport/http"
)

// store is what both backends provide to the API process.
type store interface {
	domain.Repository
	domain.ChallengeParticipation
	sweeper.Store
}

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
		logger.Error("api exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	g, ctx := errgroup.WithContext(ctx)

	var repo store
	switch cfg.Store {
	case config.StoreMemory:
		mem := memory.NewRepository()
		repo = mem
		// Without Postgres there is no janitor, so expiry runs here.
		sw, err := sweeper.New(mem, sweeper.Config{
			TTL:      cfg.Sweeper.TTL,
			Interval: cfg.Sweeper.Interval,
			Policy:   domain.ExpiryPolicy(cfg.Sweeper.Policy),
		}, sweeper.WithLogger(logger))
		if err != nil {
			return err
		}
		g.Go(func() error {
			sw.Start(ctx)
			return nil
		})
		logger.Warn("using in-memory store; data is lost on restart")
	default:
		if cfg.Database.MigrateOnStart {
			applied, err := postgres.Migrate(ctx, cfg.Database.DSN)
			if err != nil {
				return err
			}
			logger.Info("migrations applied", slog.Int("count", applied))
		}
		pool, err := postgres.NewPool(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer pool.Close()
		repo = postgres.NewRepository(pool)

		if cfg.Outbox.Enabled {
			producer := outbox.NewKafkaProducer(cfg.Kafka.Brokers)
			defer producer.Close()
			registry := outbox.NewSchemaRegistryClient(cfg.Kafka.SchemaRegistryURL, cfg.Kafka.SchemaRegistryTimeout)
			dispatcher := outbox.NewDispatcher(pool, producer, registry, cfg.Outbox.PollInterval, cfg.Outbox.BatchSize,
				outbox.WithDispatcherLogger(logger))
			g.Go(func() error {
				dispatcher.Start(ctx)
				return nil
			})
		}
	}

	files, err := media.NewFileStore(cfg.Media.RootDir, cfg.Media.PublicBaseURL, cfg.Media.MaxUploadBytes)
	if err != nil {
		return fmt.Errorf("open media store: %w", err)
	}

	var notarizer domain.Notarizer
	if cfg.Notary.URL != "" {
		notarizer = notary.NewClient(cfg.Notary.URL, cfg.Notary.Timeout)
	} else {
		notarizer = notary.NewMock(logger)
	}

	service := domain.NewService(repo, repo, files, domain.Config{
		DefaultStrategy:   cfg.Detection.Strategy,
		VotingQuorum:      cfg.Voting.Quorum,
		VotersPerActivity: cfg.Voting.VotersPerActivity,
		RecentInStats:     cfg.Voting.RecentInStats,
	}, domain.WithLogger(logger))
	voting := domain.NewVotingEngine(repo, notarizer, domain.VotingConfig{
		ApprovalThreshold: cfg.Voting.ApprovalThreshold,
		ApprovalPoints:    cfg.Voting.ApprovalPoints,
		DefaultQuorum:     cfg.Voting.Quorum,
		NotaryTimeout:     cfg.Voting.NotaryTimeout,
	}, domain.WithLogger(logger))

	mux := http.NewServeMux()
	api.NewHandler(service, voting, cfg.Media.MaxUploadBytes).RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/media/", http.StripPrefix("/media", files.Handler()))

	authMiddleware := auth.NewMiddleware(
		auth.Config{Secret: cfg.Auth.JWTSecret, Issuer: cfg.Auth.JWTIssuer},
		auth.PublicPaths("/healthz", "/metrics", "/media/"),
	)
	server := httptransport.NewServer(httptransport.FromConfig(cfg.HTTP),
		api.RequestLogger(logger, api.CORS(cfg.HTTP.CORSOrigin, authMiddleware.Wrap(mux))))

	g.Go(func() error {
		return httptransport.Run(ctx, server, cfg.HTTP.ShutdownTimeout, logger)
	})
	return g.Wait()
}
