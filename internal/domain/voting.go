package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/GreenMint-Hub/GreenMintBackend/internal/observability"
)

// VotingConfig tunes quorum resolution.
type VotingConfig struct {
	ApprovalThreshold float64
	ApprovalPoints    int
	DefaultQuorum     int
	NotaryTimeout     time.Duration
}

// DefaultVotingConfig returns the production defaults.
func DefaultVotingConfig() VotingConfig {
	return VotingConfig{
		ApprovalThreshold: 0.8,
		ApprovalPoints:    50,
		DefaultQuorum:     DefaultVotingQuorum,
		NotaryTimeout:     5 * time.Second,
	}
}

// VoteOutcome is returned to every voter whether or not their vote closed
// the activity.
type VoteOutcome struct {
	Activity     *Activity
	Counted      bool
	Transitioned bool
}

// VotingEngine accumulates community votes and closes voting activities once
// they reach quorum.
type VotingEngine struct {
	repo   Repository
	notary Notarizer
	cfg    VotingConfig
	logger *slog.Logger
	clock  clockwork.Clock
}

// NewVotingEngine constructs a VotingEngine. A nil notary disables notarization.
func NewVotingEngine(repo Repository, notary Notarizer, cfg VotingConfig, opts ...Option) *VotingEngine {
	o := buildOptions(opts)
	defaults := DefaultVotingConfig()
	if cfg.ApprovalThreshold <= 0 || cfg.ApprovalThreshold > 1 {
		cfg.ApprovalThreshold = defaults.ApprovalThreshold
	}
	if cfg.ApprovalPoints < 0 {
		cfg.ApprovalPoints = defaults.ApprovalPoints
	}
	if cfg.DefaultQuorum <= 0 {
		cfg.DefaultQuorum = defaults.DefaultQuorum
	}
	if cfg.NotaryTimeout <= 0 {
		cfg.NotaryTimeout = defaults.NotaryTimeout
	}
	return &VotingEngine{
		repo:   repo,
		notary: notary,
		cfg:    cfg,
		logger: o.logger.With("component", "voting_engine"),
		clock:  o.clock,
	}
}

// CastVote records userID's verdict on a voting activity. A vote on an
// activity that has already closed is not stored and the closed state is
// returned. A repeat vote fails with ErrAlreadyVoted.
func (e *VotingEngine) CastVote(ctx context.Context, activityID, userID string, value VoteValue) (VoteOutcome, error) {
	if strings.TrimSpace(activityID) == "" {
		return VoteOutcome{}, NewValidationError("id", "is required")
	}
	if strings.TrimSpace(userID) == "" {
		return VoteOutcome{}, NewValidationError("userId", "is required")
	}
	if !value.Valid() {
		return VoteOutcome{}, NewValidationError("value", fmt.Sprintf("must be one of yes, no, fake, spam (got %q)", value))
	}

	activity, err := e.repo.Get(ctx, activityID)
	if err != nil {
		return VoteOutcome{}, err
	}
	if activity.Status != StatusVoting {
		observability.RecordVoteIgnored()
		return VoteOutcome{Activity: activity}, nil
	}
	if activity.UserID == userID {
		return VoteOutcome{}, NewValidationError("userId", "owners cannot vote on their own activity")
	}
	quorum := activity.VotingQuorum
	if quorum <= 0 {
		quorum = e.cfg.DefaultQuorum
	}

	voted, err := e.repo.HasVoted(ctx, activityID, userID)
	if err != nil {
		return VoteOutcome{}, fmt.Errorf("check prior vote: %w", err)
	}
	if voted {
		observability.RecordDuplicateVote()
		// The earlier call may have stored the deciding vote and then failed
		// to close voting.
		if _, err := e.finalize(ctx, *activity, quorum); err != nil {
			return VoteOutcome{}, err
		}
		return VoteOutcome{}, ErrAlreadyVoted
	}

	count, err := e.repo.AppendVote(ctx, Vote{
		ID:         uuid.NewString(),
		ActivityID: activityID,
		UserID:     userID,
		Value:      value,
		CreatedAt:  e.clock.Now().UTC(),
	})
	switch {
	case errors.Is(err, ErrVotingClosed):
		observability.RecordVoteIgnored()
		current, getErr := e.repo.Get(ctx, activityID)
		if getErr != nil {
			return VoteOutcome{}, getErr
		}
		return VoteOutcome{Activity: current}, nil
	case errors.Is(err, ErrAlreadyVoted):
		observability.RecordDuplicateVote()
		return VoteOutcome{}, err
	case err != nil:
		return VoteOutcome{}, fmt.Errorf("append vote: %w", err)
	}
	observability.RecordVote(string(value))

	outcome := VoteOutcome{Counted: true}
	if count >= quorum {
		transitioned, err := e.finalize(ctx, *activity, quorum)
		if err != nil {
			return VoteOutcome{}, err
		}
		outcome.Transitioned = transitioned
	}

	current, err := e.repo.Get(ctx, activityID)
	if err != nil {
		return VoteOutcome{}, err
	}
	outcome.Activity = current
	return outcome, nil
}

// finalize decides the activity over its first quorum votes. The approval
// credit travels with the conditional transition, so points land exactly when
// the status changes. Only the winning caller notarizes.
func (e *VotingEngine) finalize(ctx context.Context, activity Activity, quorum int) (bool, error) {
	votes, err := e.repo.FirstVotes(ctx, activity.ID, quorum)
	if err != nil {
		return false, fmt.Errorf("load deciding votes: %w", err)
	}
	if len(votes) < quorum {
		return false, nil
	}

	ratio := ApprovalRatio(votes)
	t := Transition{
		Status:        StatusRejected,
		Result:        VotingResultRejected,
		ApprovalRatio: ratio,
		At:            e.clock.Now().UTC(),
	}
	if ratio >= e.cfg.ApprovalThreshold {
		t.Status = StatusVerified
		t.Result = VotingResultValid
		t.PointsAwarded = e.cfg.ApprovalPoints
		if t.PointsAwarded > 0 {
			t.Credit = &Credit{
				UserID:    activity.UserID,
				Points:    t.PointsAwarded,
				Reference: "vote-approval:" + activity.ID,
			}
		}
	}

	won, err := e.repo.TransitionFromVoting(ctx, activity.ID, t)
	if err != nil {
		return false, fmt.Errorf("close voting: %w", err)
	}
	if !won {
		observability.RecordTransitionLost()
		return false, nil
	}
	observability.RecordTransition(string(t.Status))
	e.logger.InfoContext(ctx, "voting closed",
		slog.String("activity_id", activity.ID),
		slog.String("status", string(t.Status)),
		slog.Float64("approval_ratio", ratio),
	)

	if t.Status != StatusVerified {
		return true, nil
	}
	if t.Credit != nil {
		observability.RecordPointsAwarded(t.Credit.Points)
	}
	e.notarize(ctx, activity)
	return true, nil
}

// notarize is best-effort: failures are logged and never undo the verdict.
func (e *VotingEngine) notarize(ctx context.Context, activity Activity) {
	if e.notary == nil {
		return
	}
	notaryCtx, cancel := context.WithTimeout(ctx, e.cfg.NotaryTimeout)
	defer cancel()

	hash, err := e.notary.Record(notaryCtx, activity.UserID, activity.MediaURL)
	if err != nil {
		observability.RecordNotarizationFailure()
		e.logger.WarnContext(ctx, "notarization failed",
			slog.String("activity_id", activity.ID),
			slog.String("user_id", activity.UserID),
			slog.Any("error", err),
		)
		return
	}
	if err := e.repo.SetBlockchainTxHash(ctx, activity.ID, hash); err != nil {
		e.logger.WarnContext(ctx, "store notarization handle failed",
			slog.String("activity_id", activity.ID),
			slog.Any("error", err),
		)
	}
}

// ApprovalRatio is the share of yes votes. An empty slice yields 0.
func ApprovalRatio(votes []Vote) float64 {
	if len(votes) == 0 {
		return 0
	}
	yes := 0
	for _, v := range votes {
		if v.Value == VoteYes {
			yes++
		}
	}
	return float64(yes) / float64(len(votes))
}
