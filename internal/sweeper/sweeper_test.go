package sweeper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/GreenMint-Hub/GreenMintBackend/internal/domain"
	"github.com/GreenMint-Hub/GreenMintBackend/internal/persistence/memory"
)

var t0 = time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

func seed(t *testing.T, repo *memory.Repository, id string, created time.Time, votes int) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, domain.Activity{
		ID:           id,
		UserID:       "owner",
		Type:         domain.ActivityRecycling,
		Status:       domain.StatusVoting,
		VotingQuorum: 5,
		CreatedAt:    created,
		UpdatedAt:    created,
	}))
	for i := 0; i < votes; i++ {
		_, err := repo.AppendVote(ctx, domain.Vote{ActivityID: id, UserID: string(rune('a' + i)), Value: domain.VoteYes})
		require.NoError(t, err)
	}
}

func TestSweepRemovesStaleVotingActivities(t *testing.T) {
	repo := memory.NewRepository()
	clock := clockwork.NewFakeClockAt(t0)

	seed(t, repo, "stale", t0, 2)
	seed(t, repo, "fresh", t0.Add(2*time.Hour), 0)

	s, err := New(repo, Config{}, WithClock(clock))
	require.NoError(t, err)

	clock.Advance(49 * time.Hour)
	ids, err := s.SweepOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"stale"}, ids)

	_, err = repo.Get(context.Background(), "stale")
	require.ErrorIs(t, err, domain.ErrNotFound)

	fresh, err := repo.Get(context.Background(), "fresh")
	require.NoError(t, err)
	require.Equal(t, domain.StatusVoting, fresh.Status)
}

func TestSweepLeavesActivitiesYoungerThanTTL(t *testing.T) {
	repo := memory.NewRepository()
	clock := clockwork.NewFakeClockAt(t0)
	seed(t, repo, "a1", t0, 2)

	s, err := New(repo, Config{}, WithClock(clock))
	require.NoError(t, err)

	clock.Advance(47 * time.Hour)
	ids, err := s.SweepOnce(context.Background())
	require.NoError(t, err)
	require.Empty(t, ids)

	clock.Advance(time.Hour)
	ids, err = s.SweepOnce(context.Background())
	require.NoError(t, err)
	require.Empty(t, ids, "an activity exactly at the TTL is kept")
}

func TestSweepIgnoresClosedActivities(t *testing.T) {
	repo := memory.NewRepository()
	clock := clockwork.NewFakeClockAt(t0)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, domain.Activity{ID: "done", UserID: "owner", Status: domain.StatusVerified, CreatedAt: t0}))

	s, err := New(repo, Config{}, WithClock(clock))
	require.NoError(t, err)

	clock.Advance(72 * time.Hour)
	ids, err := s.SweepOnce(ctx)
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestSweepRejectPolicyKeepsAuditTrail(t *testing.T) {
	repo := memory.NewRepository()
	clock := clockwork.NewFakeClockAt(t0)
	seed(t, repo, "a1", t0, 2)

	s, err := New(repo, Config{Policy: domain.ExpireReject}, WithClock(clock))
	require.NoError(t, err)

	clock.Advance(49 * time.Hour)
	ids, err := s.SweepOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"a1"}, ids)

	got, err := repo.Get(context.Background(), "a1")
	require.NoError(t, err)
	require.Equal(t, domain.StatusRejected, got.Status)
	require.Len(t, got.Votes, 2)
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(nil, Config{})
	require.Error(t, err)

	_, err = New(memory.NewRepository(), Config{Policy: "archive"})
	require.Error(t, err)
}

type countingStore struct {
	mu      sync.Mutex
	cutoffs []time.Time
	err     error
}

func (c *countingStore) ExpireVoting(ctx context.Context, cutoff time.Time, policy domain.ExpiryPolicy) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cutoffs = append(c.cutoffs, cutoff)
	return nil, c.err
}

func (c *countingStore) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cutoffs)
}

func TestStartSweepsOnEveryTick(t *testing.T) {
	store := &countingStore{err: errors.New("database unavailable")}
	clock := clockwork.NewFakeClockAt(t0)

	s, err := New(store, Config{Interval: time.Hour}, WithClock(clock))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go s.Start(ctx)

	require.Eventually(t, func() bool { return store.calls() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Hour)
	require.Eventually(t, func() bool { return store.calls() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	s.Wait()

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Equal(t, t0.Add(-DefaultTTL), store.cutoffs[0])
	require.Equal(t, t0.Add(time.Hour-DefaultTTL), store.cutoffs[1])
}

func TestStartRunsOnce(t *testing.T) {
	store := &countingStore{}
	clock := clockwork.NewFakeClockAt(t0)
	s, err := New(store, Config{}, WithClock(clock))
	require.NoError(t, err)

	s.Wait()

	ctx, cancel := context.WithCancel(context.Background())
	go s.Start(ctx)
	require.Eventually(t, func() bool { return store.calls() == 1 }, time.Second, 5*time.Millisecond)

	s.Start(ctx)
	require.Equal(t, 1, store.calls())

	cancel()
	s.Wait()
	s.Start(context.Background())
	require.Equal(t, 1, store.calls())
}
