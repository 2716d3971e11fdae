// Package sweeper reaps voting activities that never reached quorum.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/GreenMint-Hub/GreenMintBackend/internal/domain"
	"github.com/GreenMint-Hub/GreenMintBackend/internal/observability"
)

// Defaults for the recurring sweep.
const (
	DefaultTTL      = 48 * time.Hour
	DefaultInterval = time.Hour
)

// Store expires voting activities created strictly before cutoff in a single
// conditional operation and returns their ids.
type Store interface {
	ExpireVoting(ctx context.Context, cutoff time.Time, policy domain.ExpiryPolicy) ([]string, error)
}

// Config controls sweep cadence and behaviour.
type Config struct {
	TTL      time.Duration
	Interval time.Duration
	Policy   domain.ExpiryPolicy
}

// Sweeper runs ExpireVoting against a Store on a clock-driven schedule.
type Sweeper struct {
	store  Store
	cfg    Config
	clock  clockwork.Clock
	logger *slog.Logger

	started atomic.Bool
	done    chan struct{}
}

// Option customises a Sweeper.
type Option func(*Sweeper)

// WithClock overrides the clock, used by tests to drive the schedule.
func WithClock(clock clockwork.Clock) Option {
	return func(s *Sweeper) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger overrides the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New constructs a Sweeper. Zero config values fall back to the defaults.
func New(store Store, cfg Config, opts ...Option) (*Sweeper, error) {
	if store == nil {
		return nil, errors.New("sweeper: store is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	switch cfg.Policy {
	case "":
		cfg.Policy = domain.ExpireDelete
	case domain.ExpireDelete, domain.ExpireReject:
	default:
		return nil, fmt.Errorf("sweeper: unknown expiry policy %q", cfg.Policy)
	}

	s := &Sweeper{
		store:  store,
		cfg:    cfg,
		clock:  clockwork.NewRealClock(),
		logger: slog.Default(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "sweeper")
	return s, nil
}

// SweepOnce expires every voting activity older than the TTL.
func (s *Sweeper) SweepOnce(ctx context.Context) ([]string, error) {
	now := s.clock.Now().UTC()
	cutoff := now.Add(-s.cfg.TTL)

	ids, err := s.store.ExpireVoting(ctx, cutoff, s.cfg.Policy)
	if err != nil {
		return nil, fmt.Errorf("expire voting activities: %w", err)
	}
	observability.RecordSweep(string(s.cfg.Policy), len(ids), now)
	if len(ids) > 0 {
		s.logger.InfoContext(ctx, "expired voting activities",
			slog.Int("count", len(ids)),
			slog.String("policy", string(s.cfg.Policy)),
			slog.Time("cutoff", cutoff),
		)
	}
	return ids, nil
}

// Start sweeps immediately and then on every interval until ctx is cancelled.
// It should be called in a goroutine. Only the first call runs; later calls
// return at once.
func (s *Sweeper) Start(ctx context.Context) {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	ticker := s.clock.NewTicker(s.cfg.Interval)
	defer func() {
		ticker.Stop()
		close(s.done)
	}()

	for {
		if _, err := s.SweepOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.ErrorContext(ctx, "sweep failed", slog.Any("error", err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
		}
	}
}

// Wait blocks until the running Start returns. It returns at once if Start
// was never called.
func (s *Sweeper) Wait() {
	if !s.started.Load() {
		return
	}
	<-s.done
}
