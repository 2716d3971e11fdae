package memory

import (
	"context"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"

	"github.com/GreenMint-Hub/GreenMintBackend/internal/domain"
)

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func votingActivity(id, owner string, created time.Time) domain.Activity {
	return domain.Activity{
		ID:                 id,
		UserID:             owner,
		Type:               domain.ActivityRecycling,
		Status:             domain.StatusVoting,
		VerificationMethod: domain.VerificationReceipt,
		VotingQuorum:       5,
		CreatedAt:          created,
		UpdatedAt:          created,
	}
}

func TestCreateRejectsDuplicateID(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, votingActivity("a1", "owner", base)))
	err := repo.Create(ctx, votingActivity("a1", "owner", base))
	require.ErrorIs(t, err, domain.ErrConflict)
}

func TestGetReturnsCopies(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()

	a := votingActivity("a1", "owner", base)
	a.Route = orb.LineString{{0, 0}, {1, 1}}
	require.NoError(t, repo.Create(ctx, a))

	got, err := repo.Get(ctx, "a1")
	require.NoError(t, err)
	got.Route[0] = orb.Point{9, 9}
	got.Status = domain.StatusVerified

	again, err := repo.Get(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, orb.Point{0, 0}, again.Route[0])
	require.Equal(t, domain.StatusVoting, again.Status)
	require.Empty(t, again.Votes)

	_, err = repo.Get(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListByUserPaginatesNewestFirst(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()

	for i, id := range []string{"a", "b", "c"} {
		a := votingActivity(id, "u1", base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, repo.Create(ctx, a))
	}
	require.NoError(t, repo.Create(ctx, votingActivity("other", "u2", base)))

	page, next, err := repo.ListByUser(ctx, "u1", nil, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, "c", page[0].ID)
	require.Equal(t, "b", page[1].ID)
	require.NotNil(t, next)

	page, next, err = repo.ListByUser(ctx, "u1", next, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, "a", page[0].ID)
	require.Nil(t, next)
}

func TestAppendVoteEnforcesUniquenessAndStatus(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, votingActivity("a1", "owner", base)))

	count, err := repo.AppendVote(ctx, domain.Vote{ActivityID: "a1", UserID: "v1", Value: domain.VoteYes})
	require.NoError(t, err)
	require.Equal(t, 1, count)

	_, err = repo.AppendVote(ctx, domain.Vote{ActivityID: "a1", UserID: "v1", Value: domain.VoteNo})
	require.ErrorIs(t, err, domain.ErrAlreadyVoted)

	voted, err := repo.HasVoted(ctx, "a1", "v1")
	require.NoError(t, err)
	require.True(t, voted)

	won, err := repo.TransitionFromVoting(ctx, "a1", domain.Transition{Status: domain.StatusRejected, Result: domain.VotingResultRejected})
	require.NoError(t, err)
	require.True(t, won)

	_, err = repo.AppendVote(ctx, domain.Vote{ActivityID: "a1", UserID: "v2", Value: domain.VoteYes})
	require.ErrorIs(t, err, domain.ErrVotingClosed)
}

func TestTransitionFromVotingIsCompareAndSwap(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, votingActivity("a1", "owner", base)))

	verdict := domain.Transition{Status: domain.StatusVerified, Result: domain.VotingResultValid, ApprovalRatio: 0.8, PointsAwarded: 50, At: base}
	won, err := repo.TransitionFromVoting(ctx, "a1", verdict)
	require.NoError(t, err)
	require.True(t, won)

	won, err = repo.TransitionFromVoting(ctx, "a1", domain.Transition{Status: domain.StatusRejected})
	require.NoError(t, err)
	require.False(t, won)

	got, err := repo.Get(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, domain.StatusVerified, got.Status)
	require.Equal(t, 50, got.Points)
	require.NotNil(t, got.ApprovalRatio)
	require.InDelta(t, 0.8, *got.ApprovalRatio, 1e-9)
}

func TestListCommunityHidesOwnVotedAndClosed(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, votingActivity("mine", "viewer", base)))
	require.NoError(t, repo.Create(ctx, votingActivity("voted", "owner", base)))
	require.NoError(t, repo.Create(ctx, votingActivity("open", "owner", base.Add(time.Minute))))
	require.NoError(t, repo.Create(ctx, votingActivity("assigned", "owner", base.Add(2*time.Minute))))
	closed := votingActivity("closed", "owner", base)
	closed.Status = domain.StatusVerified
	require.NoError(t, repo.Create(ctx, closed))

	require.NoError(t, repo.AssignVoters(ctx, "assigned", []string{"viewer"}))
	_, err := repo.AppendVote(ctx, domain.Vote{ActivityID: "voted", UserID: "viewer", Value: domain.VoteYes})
	require.NoError(t, err)

	feed, err := repo.ListCommunity(ctx, "viewer", 10)
	require.NoError(t, err)
	require.Len(t, feed, 2)
	require.Equal(t, "assigned", feed[0].ID)
	require.Equal(t, "open", feed[1].ID)
}

func TestUpdateStatusRefusesVotingActivities(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, votingActivity("a1", "owner", base)))

	_, err := repo.UpdateStatus(ctx, "a1", domain.StatusVerified, base)
	require.ErrorIs(t, err, domain.ErrConflict)

	pending := votingActivity("a2", "owner", base)
	pending.Status = domain.StatusPending
	require.NoError(t, repo.Create(ctx, pending))

	got, err := repo.UpdateStatus(ctx, "a2", domain.StatusRejected, base.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, domain.StatusRejected, got.Status)
	require.Equal(t, base.Add(time.Hour), got.UpdatedAt)
}

func TestExpireVotingPolicies(t *testing.T) {
	ctx := context.Background()
	cutoff := base

	t.Run("delete", func(t *testing.T) {
		repo := NewRepository()
		require.NoError(t, repo.Create(ctx, votingActivity("old", "owner", cutoff.Add(-time.Hour))))
		require.NoError(t, repo.Create(ctx, votingActivity("edge", "owner", cutoff)))
		_, err := repo.AppendVote(ctx, domain.Vote{ActivityID: "old", UserID: "v1", Value: domain.VoteYes})
		require.NoError(t, err)

		ids, err := repo.ExpireVoting(ctx, cutoff, domain.ExpireDelete)
		require.NoError(t, err)
		require.Equal(t, []string{"old"}, ids)

		_, err = repo.Get(ctx, "old")
		require.ErrorIs(t, err, domain.ErrNotFound)
		_, err = repo.Get(ctx, "edge")
		require.NoError(t, err)
	})

	t.Run("reject", func(t *testing.T) {
		repo := NewRepository()
		require.NoError(t, repo.Create(ctx, votingActivity("old", "owner", cutoff.Add(-time.Hour))))

		ids, err := repo.ExpireVoting(ctx, cutoff, domain.ExpireReject)
		require.NoError(t, err)
		require.Equal(t, []string{"old"}, ids)

		got, err := repo.Get(ctx, "old")
		require.NoError(t, err)
		require.Equal(t, domain.StatusRejected, got.Status)
		require.Equal(t, domain.VotingResultRejected, got.VotingResult)
	})
}

func TestLedgerAppliesReferenceOnce(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()

	credit := domain.Credit{UserID: "u1", Points: 50, CarbonSaved: 1.5, Reference: "vote-approval:a1"}
	applied, err := repo.AddPoints(ctx, credit)
	require.NoError(t, err)
	require.True(t, applied)

	applied, err = repo.AddPoints(ctx, credit)
	require.NoError(t, err)
	require.False(t, applied)

	require.NoError(t, repo.IncrementEcoPoints(ctx, "u1", 50))
	require.Equal(t, Balance{Points: 50, EcoPoints: 50, CarbonSaved: 1.5}, repo.Balance("u1"))
}

func TestChallengeWindow(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()

	repo.AddChallenge(Challenge{ID: "c1", StartAt: base.Add(-time.Hour), EndAt: base.Add(time.Hour)})
	require.NoError(t, repo.JoinChallenge("c1", "u1"))

	id, ok, err := repo.FindActiveChallengeForUser(ctx, "u1", base)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "c1", id)

	_, ok, err = repo.FindActiveChallengeForUser(ctx, "u1", base.Add(2*time.Hour))
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = repo.FindActiveChallengeForUser(ctx, "u2", base)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, repo.AddPointsToParticipant(ctx, "c1", "u1", 7))
	require.Equal(t, 7, repo.ParticipantPoints("c1", "u1"))
	require.ErrorIs(t, repo.AddPointsToParticipant(ctx, "c1", "u2", 7), domain.ErrNotFound)
}

func TestTransitionCreditAppliesOnlyToWinner(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, votingActivity("a1", "owner", base)))

	verdict := domain.Transition{
		Status:        domain.StatusVerified,
		Result:        domain.VotingResultValid,
		PointsAwarded: 50,
		At:            base,
		Credit:        &domain.Credit{UserID: "owner", Points: 50, Reference: "vote-approval:a1"},
	}
	for i := 0; i < 3; i++ {
		_, err := repo.TransitionFromVoting(ctx, "a1", verdict)
		require.NoError(t, err)
	}
	require.Equal(t, Balance{Points: 50, EcoPoints: 50}, repo.Balance("owner"))
}

func TestCreateManualIsAllOrNothing(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()
	repo.AddChallenge(Challenge{ID: "c1", StartAt: base.Add(-time.Hour), EndAt: base.Add(time.Hour)})
	require.NoError(t, repo.JoinChallenge("c1", "u1"))

	manual := func(id, user string) domain.ManualRecord {
		return domain.ManualRecord{
			Activity: domain.Activity{
				ID:                 id,
				UserID:             user,
				Type:               domain.ActivityRecycling,
				Points:             15,
				CarbonSaved:        1.5,
				Status:             domain.StatusVerified,
				VerificationMethod: domain.VerificationManual,
				ChallengeID:        "c1",
				CreatedAt:          base,
				UpdatedAt:          base,
			},
			Credit:      domain.Credit{UserID: user, Points: 15, CarbonSaved: 1.5, Reference: "manual:" + id},
			ChallengeID: "c1",
		}
	}

	require.NoError(t, repo.CreateManual(ctx, manual("m1", "u1")))
	require.Equal(t, Balance{Points: 15, EcoPoints: 15, CarbonSaved: 1.5}, repo.Balance("u1"))
	require.Equal(t, 15, repo.ParticipantPoints("c1", "u1"))

	err := repo.CreateManual(ctx, manual("m2", "u2"))
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = repo.Get(ctx, "m2")
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.Equal(t, Balance{}, repo.Balance("u2"))

	require.ErrorIs(t, repo.CreateManual(ctx, manual("m1", "u1")), domain.ErrConflict)
	require.Equal(t, 15, repo.Balance("u1").Points)
}
