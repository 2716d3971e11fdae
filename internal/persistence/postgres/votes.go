package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/GreenMint-Hub/GreenMintBackend/internal/domain"
	"github.com/GreenMint-Hub/GreenMintBackend/internal/events"
)

// HasVoted reports whether userID already voted on the activity.
func (r *Repository) HasVoted(ctx context.Context, activityID, userID string) (bool, error) {
	var voted bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM activity_votes WHERE activity_id = $1 AND user_id = $2)`,
		activityID, userID,
	).Scan(&voted)
	if err != nil {
		return false, mapError(err, "vote", activityID)
	}
	return voted, nil
}

// AppendVote inserts the vote while holding the activity row lock and returns
// the vote count. The lock serializes appends to one activity and the closing
// transition, so every count is seen by exactly one caller.
func (r *Repository) AppendVote(ctx context.Context, vote domain.Vote) (int, error) {
	var count int
	err := withTx(ctx, r.db, func(tx pgx.Tx) error {
		var status string
		err := tx.QueryRow(ctx, `SELECT status FROM activities WHERE activity_id = $1 FOR UPDATE`, vote.ActivityID).Scan(&status)
		if err != nil {
			return mapError(err, "activity", vote.ActivityID)
		}
		if domain.Status(status) != domain.StatusVoting {
			return fmt.Errorf("activity %s: %w", vote.ActivityID, domain.ErrVotingClosed)
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO activity_votes (vote_id, activity_id, user_id, value, created_at) VALUES ($1,$2,$3,$4,$5)`,
			vote.ID, vote.ActivityID, vote.UserID, string(vote.Value), vote.CreatedAt,
		)
		if isUniqueViolation(err) {
			return fmt.Errorf("activity %s user %s: %w", vote.ActivityID, vote.UserID, domain.ErrAlreadyVoted)
		}
		if err != nil {
			return mapError(err, "vote", vote.ID)
		}

		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM activity_votes WHERE activity_id = $1`, vote.ActivityID).Scan(&count); err != nil {
			return mapError(err, "vote count", vote.ActivityID)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// FirstVotes returns up to n votes in cast order.
func (r *Repository) FirstVotes(ctx context.Context, activityID string, n int) ([]domain.Vote, error) {
	rows, err := r.db.Query(ctx, `SELECT vote_id, activity_id, user_id, value, created_at
        FROM activity_votes WHERE activity_id = $1 ORDER BY vote_seq LIMIT $2`, activityID, n)
	if err != nil {
		return nil, mapError(err, "votes", activityID)
	}
	defer rows.Close()

	votes := make([]domain.Vote, 0, n)
	for rows.Next() {
		v, err := scanVote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan vote: %w", err)
		}
		votes = append(votes, v)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "votes", activityID)
	}
	return votes, nil
}

// TransitionFromVoting closes voting with a conditional update on status. The
// approval credit and activity.finalized are written in the same transaction.
// It reports false when the activity was no longer voting.
func (r *Repository) TransitionFromVoting(ctx context.Context, activityID string, t domain.Transition) (bool, error) {
	const stmt = `UPDATE activities
           SET status = $2, voting_result = $3, approval_ratio = $4, points = $5, updated_at = $6
         WHERE activity_id = $1 AND status = 'voting'
     RETURNING user_id`

	won := false
	err := withTx(ctx, r.db, func(tx pgx.Tx) error {
		var userID string
		err := tx.QueryRow(ctx, stmt,
			activityID, string(t.Status), string(t.Result), t.ApprovalRatio, t.PointsAwarded, t.At,
		).Scan(&userID)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return mapError(err, "activity", activityID)
		}
		won = true

		if t.Credit != nil {
			if err := applyCredit(ctx, tx, *t.Credit); err != nil {
				return err
			}
		}
		return insertOutbox(ctx, tx, activityID, events.TypeActivityFinalized, events.ActivityFinalized{
			ActivityID:    activityID,
			UserID:        userID,
			Status:        string(t.Status),
			VotingResult:  string(t.Result),
			ApprovalRatio: t.ApprovalRatio,
			PointsAwarded: t.PointsAwarded,
			OccurredAt:    t.At,
		})
	})
	if err != nil {
		return false, err
	}
	return won, nil
}
