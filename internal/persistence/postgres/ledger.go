package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/GreenMint-Hub/GreenMintBackend/internal/domain"
)

// Balance is a user's running totals.
type Balance struct {
	UserID      string
	Points      int64
	EcoPoints   int64
	CarbonSaved float64
	UpdatedAt   time.Time
}

// AddPoints writes a ledger entry keyed by reference and, when the entry is
// new, folds it into the user's balance.
func (r *Repository) AddPoints(ctx context.Context, credit domain.Credit) (bool, error) {
	applied := false
	err := withTx(ctx, r.db, func(tx pgx.Tx) error {
		var err error
		applied, err = insertCredit(ctx, tx, credit)
		return err
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

// IncrementEcoPoints adds to the user's eco points.
func (r *Repository) IncrementEcoPoints(ctx context.Context, userID string, amount int) error {
	return addEcoPoints(ctx, r.db, userID, amount)
}

// applyCredit books a credit that accompanies another write in tx: the ledger
// entry, the balance and the eco points.
func applyCredit(ctx context.Context, tx pgx.Tx, credit domain.Credit) error {
	applied, err := insertCredit(ctx, tx, credit)
	if err != nil || !applied || credit.Points <= 0 {
		return err
	}
	return addEcoPoints(ctx, tx, credit.UserID, credit.Points)
}

func insertCredit(ctx context.Context, tx pgx.Tx, credit domain.Credit) (bool, error) {
	reference := credit.Reference
	if reference == "" {
		reference = "adhoc:" + uuid.NewString()
	}

	tag, err := tx.Exec(ctx,
		`INSERT INTO point_ledger (reference, user_id, points, carbon_saved) VALUES ($1,$2,$3,$4)
         ON CONFLICT (reference) DO NOTHING`,
		reference, credit.UserID, credit.Points, credit.CarbonSaved,
	)
	if err != nil {
		return false, mapError(err, "ledger entry", reference)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO user_balances (user_id, points, carbon_saved) VALUES ($1,$2,$3)
         ON CONFLICT (user_id) DO UPDATE
            SET points = user_balances.points + EXCLUDED.points,
                carbon_saved = user_balances.carbon_saved + EXCLUDED.carbon_saved,
                updated_at = NOW()`,
		credit.UserID, credit.Points, credit.CarbonSaved,
	); err != nil {
		return false, mapError(err, "balance", credit.UserID)
	}
	return true, nil
}

func addEcoPoints(ctx context.Context, q execer, userID string, amount int) error {
	_, err := q.Exec(ctx,
		`INSERT INTO user_balances (user_id, eco_points) VALUES ($1,$2)
         ON CONFLICT (user_id) DO UPDATE
            SET eco_points = user_balances.eco_points + EXCLUDED.eco_points,
                updated_at = NOW()`,
		userID, amount,
	)
	if err != nil {
		return mapError(err, "balance", userID)
	}
	return nil
}

// Balance returns the user's totals. Users without credits have a zero balance.
func (r *Repository) Balance(ctx context.Context, userID string) (Balance, error) {
	b := Balance{UserID: userID}
	err := r.db.QueryRow(ctx,
		`SELECT points, eco_points, carbon_saved, updated_at FROM user_balances WHERE user_id = $1`,
		userID,
	).Scan(&b.Points, &b.EcoPoints, &b.CarbonSaved, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return b, nil
	}
	if err != nil {
		return Balance{}, fmt.Errorf("balance %s: %w", userID, err)
	}
	return b, nil
}
