package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/GreenMint-Hub/GreenMintBackend/internal/domain"
)

// FindActiveChallengeForUser returns the challenge the user joined whose
// window contains now. The one ending soonest wins.
func (r *Repository) FindActiveChallengeForUser(ctx context.Context, userID string, now time.Time) (string, bool, error) {
	var challengeID string
	err := r.db.QueryRow(ctx,
		`SELECT c.challenge_id
           FROM challenges c
           JOIN challenge_participants p ON p.challenge_id = c.challenge_id
          WHERE p.user_id = $1 AND c.start_at <= $2 AND c.end_at >= $2
          ORDER BY c.end_at, c.challenge_id
          LIMIT 1`,
		userID, now,
	).Scan(&challengeID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, mapError(err, "challenge participant", userID)
	}
	return challengeID, true, nil
}

// AddPointsToParticipant credits a participant's challenge score.
func (r *Repository) AddPointsToParticipant(ctx context.Context, challengeID, userID string, points int) error {
	return creditParticipant(ctx, r.db, challengeID, userID, points)
}

func creditParticipant(ctx context.Context, q execer, challengeID, userID string, points int) error {
	tag, err := q.Exec(ctx,
		`UPDATE challenge_participants SET points = points + $3 WHERE challenge_id = $1 AND user_id = $2`,
		challengeID, userID, points,
	)
	if err != nil {
		return mapError(err, "challenge", challengeID)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("challenge %s participant %s: %w", challengeID, userID, domain.ErrNotFound)
	}
	return nil
}

// CreateChallenge registers a challenge window.
func (r *Repository) CreateChallenge(ctx context.Context, id, title string, startAt, endAt time.Time) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO challenges (challenge_id, title, start_at, end_at) VALUES ($1,$2,$3,$4)`,
		id, title, startAt, endAt,
	)
	return mapError(err, "challenge", id)
}

// JoinChallenge enrols a user. Joining twice is a no-op.
func (r *Repository) JoinChallenge(ctx context.Context, challengeID, userID string) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO challenge_participants (challenge_id, user_id) VALUES ($1,$2)
         ON CONFLICT (challenge_id, user_id) DO NOTHING`,
		challengeID, userID,
	)
	return mapError(err, "challenge", challengeID)
}
