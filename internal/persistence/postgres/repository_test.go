package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v2"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"

	"github.com/GreenMint-Hub/GreenMintBackend/internal/domain"
)

var now = time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

func newMock(t *testing.T) (*Repository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewRepository(mock), mock
}

func activityRow(id, userID string, status domain.Status) []any {
	return []any{
		id, userID, "recycling", "", "returned cans",
		now, now, 0.0, 0.0, 0,
		(*float64)(nil), (*float64)(nil), (*float64)(nil), (*float64)(nil), []byte(nil),
		(*float64)(nil), (*float64)(nil), string(status), "receipt",
		"https://media.test/a.jpg", "image/jpeg", []string{"v1"}, 5,
		"", (*float64)(nil), (*string)(nil), "",
		now, now,
	}
}

func uniqueViolation() error {
	return &pgconn.PgError{Code: codeUniqueViolation, ConstraintName: "activity_votes_activity_id_user_id_key"}
}

func TestCreateWritesActivityAndOutboxEvent(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO activities").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO outbox").
		WithArgs("activity", "a1", "activity.recorded", "activity_recorded", "activity_recorded-value", "a1", pgxmock.AnyArg(), "a1:activity.recorded").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := repo.Create(context.Background(), domain.Activity{
		ID:                 "a1",
		UserID:             "u1",
		Type:               domain.ActivityBiking,
		Route:              orb.LineString{{-0.12, 51.5}, {-0.12, 51.51}},
		Status:             domain.StatusPending,
		VerificationMethod: domain.VerificationSensor,
		CreatedAt:          now,
		UpdatedAt:          now,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateMapsDuplicateToConflict(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO activities").WillReturnError(&pgconn.PgError{Code: codeUniqueViolation})
	mock.ExpectRollback()

	err := repo.Create(context.Background(), domain.Activity{ID: "a1", UserID: "u1", Type: domain.ActivityBiking, Status: domain.StatusPending})
	require.ErrorIs(t, err, domain.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetLoadsVotesInOrder(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectQuery("FROM activities WHERE activity_id = \\$1").
		WithArgs("a1").
		WillReturnRows(pgxmock.NewRows(activityColumns).AddRow(activityRow("a1", "owner", domain.StatusVoting)...))
	mock.ExpectQuery("FROM activity_votes WHERE activity_id = ANY").
		WillReturnRows(pgxmock.NewRows([]string{"vote_id", "activity_id", "user_id", "value", "created_at"}).
			AddRow("v-1", "a1", "alice", "yes", now).
			AddRow("v-2", "a1", "bob", "no", now.Add(time.Minute)))

	got, err := repo.Get(context.Background(), "a1")
	require.NoError(t, err)
	require.Equal(t, domain.StatusVoting, got.Status)
	require.Equal(t, []string{"v1"}, got.AssignedVoters)
	require.Nil(t, got.StartLocation)
	require.Len(t, got.Votes, 2)
	require.Equal(t, "alice", got.Votes[0].UserID)
	require.Equal(t, domain.VoteNo, got.Votes[1].Value)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMissingActivity(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectQuery("FROM activities WHERE activity_id").WithArgs("missing").WillReturnError(pgx.ErrNoRows)

	_, err := repo.Get(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendVote(t *testing.T) {
	vote := domain.Vote{ID: "v-1", ActivityID: "a1", UserID: "alice", Value: domain.VoteYes, CreatedAt: now}
	lockStatus := regexp.QuoteMeta("SELECT status FROM activities WHERE activity_id = $1 FOR UPDATE")

	tests := []struct {
		name    string
		setup   func(mock pgxmock.PgxPoolIface)
		want    int
		wantErr error
	}{
		{
			name: "counted",
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectBegin()
				mock.ExpectQuery(lockStatus).WithArgs("a1").WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("voting"))
				mock.ExpectExec("INSERT INTO activity_votes").
					WithArgs("v-1", "a1", "alice", "yes", now).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
				mock.ExpectQuery("SELECT COUNT").WithArgs("a1").WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(3))
				mock.ExpectCommit()
			},
			want: 3,
		},
		{
			name: "closed",
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectBegin()
				mock.ExpectQuery(lockStatus).WithArgs("a1").WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("verified"))
				mock.ExpectRollback()
			},
			wantErr: domain.ErrVotingClosed,
		},
		{
			name: "duplicate",
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectBegin()
				mock.ExpectQuery(lockStatus).WithArgs("a1").WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("voting"))
				mock.ExpectExec("INSERT INTO activity_votes").WillReturnError(uniqueViolation())
				mock.ExpectRollback()
			},
			wantErr: domain.ErrAlreadyVoted,
		},
		{
			name: "missing activity",
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectBegin()
				mock.ExpectQuery(lockStatus).WithArgs("a1").WillReturnError(pgx.ErrNoRows)
				mock.ExpectRollback()
			},
			wantErr: domain.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newMock(t)
			tt.setup(mock)

			count, err := repo.AppendVote(context.Background(), vote)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				require.Equal(t, tt.want, count)
			}
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestTransitionFromVoting(t *testing.T) {
	verdict := domain.Transition{
		Status:        domain.StatusVerified,
		Result:        domain.VotingResultValid,
		ApprovalRatio: 0.8,
		PointsAwarded: 50,
		At:            now,
	}

	t.Run("winner records finalized event", func(t *testing.T) {
		repo, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE activities").
			WithArgs("a1", "verified", "valid", 0.8, 50, now).
			WillReturnRows(pgxmock.NewRows([]string{"user_id"}).AddRow("owner"))
		mock.ExpectExec("INSERT INTO outbox").
			WithArgs("activity", "a1", "activity.finalized", "activity_finalized", "activity_finalized-value", "a1", pgxmock.AnyArg(), "a1:activity.finalized").
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()

		won, err := repo.TransitionFromVoting(context.Background(), "a1", verdict)
		require.NoError(t, err)
		require.True(t, won)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	credited := verdict
	credited.Credit = &domain.Credit{UserID: "owner", Points: 50, Reference: "vote-approval:a1"}

	t.Run("winner books approval credit in the same transaction", func(t *testing.T) {
		repo, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE activities").
			WithArgs("a1", "verified", "valid", 0.8, 50, now).
			WillReturnRows(pgxmock.NewRows([]string{"user_id"}).AddRow("owner"))
		mock.ExpectExec("INSERT INTO point_ledger").
			WithArgs("vote-approval:a1", "owner", 50, 0.0).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec("INSERT INTO user_balances \\(user_id, points").
			WithArgs("owner", 50, 0.0).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec("INSERT INTO user_balances \\(user_id, eco_points").
			WithArgs("owner", 50).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec("INSERT INTO outbox").
			WithArgs("activity", "a1", "activity.finalized", "activity_finalized", "activity_finalized-value", "a1", pgxmock.AnyArg(), "a1:activity.finalized").
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()

		won, err := repo.TransitionFromVoting(context.Background(), "a1", credited)
		require.NoError(t, err)
		require.True(t, won)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ledger failure rolls the verdict back", func(t *testing.T) {
		repo, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE activities").
			WillReturnRows(pgxmock.NewRows([]string{"user_id"}).AddRow("owner"))
		mock.ExpectExec("INSERT INTO point_ledger").WillReturnError(errors.New("connection reset"))
		mock.ExpectRollback()

		won, err := repo.TransitionFromVoting(context.Background(), "a1", credited)
		require.ErrorContains(t, err, "connection reset")
		require.False(t, won)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already closed", func(t *testing.T) {
		repo, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE activities").WillReturnError(pgx.ErrNoRows)
		mock.ExpectCommit()

		won, err := repo.TransitionFromVoting(context.Background(), "a1", verdict)
		require.NoError(t, err)
		require.False(t, won)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCreateManualWritesActivityAndCredits(t *testing.T) {
	record := domain.ManualRecord{
		Activity: domain.Activity{
			ID:                 "m1",
			UserID:             "u1",
			Type:               domain.ActivityRecycling,
			Points:             15,
			CarbonSaved:        1.5,
			Status:             domain.StatusVerified,
			VerificationMethod: domain.VerificationManual,
			ChallengeID:        "spring",
			CreatedAt:          now,
			UpdatedAt:          now,
		},
		Credit:      domain.Credit{UserID: "u1", Points: 15, CarbonSaved: 1.5, Reference: "manual:m1"},
		ChallengeID: "spring",
	}

	expectActivityAndCredit := func(mock pgxmock.PgxPoolIface) {
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO activities").WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec("INSERT INTO outbox").WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec("INSERT INTO point_ledger").
			WithArgs("manual:m1", "u1", 15, 1.5).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec("INSERT INTO user_balances \\(user_id, points").WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec("INSERT INTO user_balances \\(user_id, eco_points").
			WithArgs("u1", 15).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}

	t.Run("commits everything", func(t *testing.T) {
		repo, mock := newMock(t)
		expectActivityAndCredit(mock)
		mock.ExpectExec("UPDATE challenge_participants").
			WithArgs("spring", "u1", 15).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectCommit()

		require.NoError(t, repo.CreateManual(context.Background(), record))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("challenge failure rolls back activity and ledger", func(t *testing.T) {
		repo, mock := newMock(t)
		expectActivityAndCredit(mock)
		mock.ExpectExec("UPDATE challenge_participants").
			WithArgs("spring", "u1", 15).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectRollback()

		err := repo.CreateManual(context.Background(), record)
		require.ErrorIs(t, err, domain.ErrNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAddPointsAppliesReferenceOnce(t *testing.T) {
	credit := domain.Credit{UserID: "owner", Points: 50, Reference: "vote-approval:a1"}

	t.Run("new reference", func(t *testing.T) {
		repo, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO point_ledger").
			WithArgs("vote-approval:a1", "owner", 50, 0.0).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec("INSERT INTO user_balances").
			WithArgs("owner", 50, 0.0).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()

		applied, err := repo.AddPoints(context.Background(), credit)
		require.NoError(t, err)
		require.True(t, applied)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("replayed reference", func(t *testing.T) {
		repo, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO point_ledger").WillReturnResult(pgxmock.NewResult("INSERT", 0))
		mock.ExpectCommit()

		applied, err := repo.AddPoints(context.Background(), credit)
		require.NoError(t, err)
		require.False(t, applied)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestExpireVotingDeletesAndRecordsEvents(t *testing.T) {
	repo, mock := newMock(t)
	cutoff := now.Add(-48 * time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery("DELETE FROM activities WHERE status = 'voting' AND created_at < \\$1").
		WithArgs(cutoff).
		WillReturnRows(pgxmock.NewRows([]string{"activity_id", "user_id", "created_at"}).
			AddRow("b", "owner", cutoff.Add(-time.Hour)).
			AddRow("a", "owner", cutoff.Add(-2*time.Hour)))
	mock.ExpectExec("INSERT INTO outbox").
		WithArgs("activity", "b", "activity.expired", "activity_expired", "activity_expired-value", "b", pgxmock.AnyArg(), "b:activity.expired").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO outbox").
		WithArgs("activity", "a", "activity.expired", "activity_expired", "activity_expired-value", "a", pgxmock.AnyArg(), "a:activity.expired").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	ids, err := repo.ExpireVoting(context.Background(), cutoff, domain.ExpireDelete)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExpireVotingRejectsUnknownPolicy(t *testing.T) {
	repo, mock := newMock(t)

	_, err := repo.ExpireVoting(context.Background(), now, domain.ExpiryPolicy("archive"))
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatusRefusesVotingActivity(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectQuery("UPDATE activities SET status").
		WithArgs("a1", "verified", now).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("a1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	_, err := repo.UpdateStatus(context.Background(), "a1", domain.StatusVerified, now)
	require.ErrorIs(t, err, domain.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAddPointsToParticipantMissing(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectExec("UPDATE challenge_participants").
		WithArgs("spring", "u1", 5).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.AddPointsToParticipant(context.Background(), "spring", "u1", 5)
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindActiveChallengeNone(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectQuery("FROM challenges c").WithArgs("u1", now).WillReturnError(pgx.ErrNoRows)

	_, ok, err := repo.FindActiveChallengeForUser(context.Background(), "u1", now)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		in   error
		want error
	}{
		{name: "no rows", in: pgx.ErrNoRows, want: domain.ErrNotFound},
		{name: "unique", in: &pgconn.PgError{Code: codeUniqueViolation}, want: domain.ErrConflict},
		{name: "foreign key", in: &pgconn.PgError{Code: codeForeignKeyViolation}, want: domain.ErrNotFound},
		{name: "check", in: &pgconn.PgError{Code: codeCheckViolation}, want: domain.ErrInvalidInput},
		{name: "canceled", in: context.Canceled, want: context.Canceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, mapError(tt.in, "activity", "a1"), tt.want)
		})
	}

	require.NoError(t, mapError(nil, "activity", "a1"))
	other := errors.New("boom")
	require.ErrorIs(t, mapError(other, "activity", "a1"), other)
}

func TestRouteRoundTrip(t *testing.T) {
	route := orb.LineString{{-0.12, 51.5}, {-0.121, 51.502}}
	raw, err := encodeRoute(route)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"LineString"`)

	decoded, err := decodeRoute(raw)
	require.NoError(t, err)
	require.Equal(t, route, decoded)

	empty, err := encodeRoute(nil)
	require.NoError(t, err)
	require.Nil(t, empty)
}
