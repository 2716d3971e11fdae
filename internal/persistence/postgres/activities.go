package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/GreenMint-Hub/GreenMintBackend/internal/domain"
	"github.com/GreenMint-Hub/GreenMintBackend/internal/events"
	"github.com/GreenMint-Hub/GreenMintBackend/internal/observability"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var activityColumns = []string{
	"activity_id", "user_id", "activity_type", "title", "description",
	"start_time", "end_time", "distance_km", "carbon_saved", "points",
	"start_lat", "start_lon", "end_lat", "end_lon", "route",
	"avg_speed", "max_speed", "status", "verification_method",
	"media_url", "media_type", "assigned_voters", "voting_quorum",
	"voting_result", "approval_ratio", "challenge_id", "blockchain_tx_hash",
	"created_at", "updated_at",
}

var (
	selectActivitySQL = "SELECT " + strings.Join(activityColumns, ", ") + " FROM activities"
	returningActivity = " RETURNING " + strings.Join(activityColumns, ", ")
)

const insertActivitySQL = `INSERT INTO activities (activity_id, user_id, activity_type, title, description, start_time, end_time, distance_km, carbon_saved, points,
        start_lat, start_lon, end_lat, end_lon, route, avg_speed, max_speed, status, verification_method, media_url, media_type,
        assigned_voters, voting_quorum, voting_result, approval_ratio, challenge_id, blockchain_tx_hash, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28,$29)`

// Repository provides Postgres-backed persistence for activities, votes,
// balances and challenges.
type Repository struct {
	db DB
}

// NewRepository constructs a Repository.
func NewRepository(db DB) *Repository {
	return &Repository{db: db}
}

// Create persists the activity and its activity.recorded outbox event in one transaction.
func (r *Repository) Create(ctx context.Context, a domain.Activity) error {
	err := withTx(ctx, r.db, func(tx pgx.Tx) error {
		return insertActivity(ctx, tx, a)
	})
	if err != nil {
		return err
	}
	observability.RecordActivityPersisted(a.UpdatedAt)
	return nil
}

// CreateManual writes the activity, its outbox event, the ledger credit and the
// challenge credit in one transaction.
func (r *Repository) CreateManual(ctx context.Context, record domain.ManualRecord) error {
	err := withTx(ctx, r.db, func(tx pgx.Tx) error {
		if err := insertActivity(ctx, tx, record.Activity); err != nil {
			return err
		}
		if err := applyCredit(ctx, tx, record.Credit); err != nil {
			return err
		}
		if record.ChallengeID == "" {
			return nil
		}
		return creditParticipant(ctx, tx, record.ChallengeID, record.Credit.UserID, record.Credit.Points)
	})
	if err != nil {
		return err
	}
	observability.RecordActivityPersisted(record.Activity.UpdatedAt)
	return nil
}

func insertActivity(ctx context.Context, tx pgx.Tx, a domain.Activity) error {
	route, err := encodeRoute(a.Route)
	if err != nil {
		return err
	}
	startLat, startLon := latLon(a.StartLocation)
	endLat, endLon := latLon(a.EndLocation)
	voters := a.AssignedVoters
	if voters == nil {
		voters = []string{}
	}

	if _, err := tx.Exec(ctx, insertActivitySQL,
		a.ID, a.UserID, string(a.Type), a.Title, a.Description,
		a.StartTime, a.EndTime, a.Distance, a.CarbonSaved, a.Points,
		startLat, startLon, endLat, endLon, route,
		a.AverageSpeed, a.MaxSpeed, string(a.Status), string(a.VerificationMethod),
		a.MediaURL, a.MediaType, voters, a.VotingQuorum,
		string(a.VotingResult), a.ApprovalRatio, nullIfEmpty(a.ChallengeID), a.BlockchainTxHash,
		a.CreatedAt, a.UpdatedAt,
	); err != nil {
		return mapError(err, "activity", a.ID)
	}
	return insertOutbox(ctx, tx, a.ID, events.TypeActivityRecorded, events.ActivityRecorded{
		ActivityID:         a.ID,
		UserID:             a.UserID,
		ActivityType:       string(a.Type),
		Status:             string(a.Status),
		VerificationMethod: string(a.VerificationMethod),
		DistanceKm:         a.Distance,
		CarbonSaved:        a.CarbonSaved,
		Points:             a.Points,
		RecordedAt:         a.CreatedAt,
	})
}

// Get retrieves an activity with its votes in cast order.
func (r *Repository) Get(ctx context.Context, activityID string) (*domain.Activity, error) {
	a, err := scanActivity(r.db.QueryRow(ctx, selectActivitySQL+" WHERE activity_id = $1", activityID))
	if err != nil {
		return nil, mapError(err, "activity", activityID)
	}
	list := []domain.Activity{a}
	if err := r.attachVotes(ctx, list); err != nil {
		return nil, err
	}
	return &list[0], nil
}

// ListByUser returns a user's activities newest first.
func (r *Repository) ListByUser(ctx context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.Activity, *domain.Cursor, error) {
	query := psql.Select(activityColumns...).
		From("activities").
		Where(sq.Eq{"user_id": userID})
	if cursor != nil {
		query = query.Where(sq.Expr("(created_at, activity_id) < (?, ?)", cursor.CreatedAt, cursor.ID))
	}
	query = query.OrderBy("created_at DESC", "activity_id DESC").Limit(uint64(limit))

	results, err := r.queryActivities(ctx, query)
	if err != nil {
		return nil, nil, err
	}

	var next *domain.Cursor
	if limit > 0 && len(results) == limit {
		last := results[len(results)-1]
		next = &domain.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}
	return results, next, nil
}

// ListCommunity lists voting activities the viewer neither owns nor has
// voted on. Activities the viewer was assigned to come first, then oldest.
func (r *Repository) ListCommunity(ctx context.Context, viewerID string, limit int) ([]domain.Activity, error) {
	query := psql.Select(activityColumns...).
		From("activities").
		Where(sq.Eq{"status": string(domain.StatusVoting)}).
		Where(sq.NotEq{"user_id": viewerID}).
		Where(sq.Expr("NOT EXISTS (SELECT 1 FROM activity_votes v WHERE v.activity_id = activities.activity_id AND v.user_id = ?)", viewerID)).
		OrderByClause("(? = ANY(assigned_voters)) DESC", viewerID).
		OrderBy("created_at ASC", "activity_id ASC").
		Limit(uint64(limit))
	return r.queryActivities(ctx, query)
}

// Stats aggregates a user's totals and most recent activities.
func (r *Repository) Stats(ctx context.Context, userID string, recent int) (domain.UserStats, error) {
	query, args, err := psql.Select("COALESCE(SUM(carbon_saved), 0)", "COALESCE(SUM(points), 0)", "COUNT(*)").
		From("activities").
		Where(sq.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return domain.UserStats{}, fmt.Errorf("build stats query: %w", err)
	}

	var (
		stats  domain.UserStats
		points int64
		count  int64
	)
	if err := r.db.QueryRow(ctx, query, args...).Scan(&stats.TotalCarbonSaved, &points, &count); err != nil {
		return domain.UserStats{}, mapError(err, "user stats", userID)
	}
	stats.TotalPoints = int(points)
	stats.TotalActivities = int(count)

	stats.Recent, _, err = r.ListByUser(ctx, userID, nil, recent)
	if err != nil {
		return domain.UserStats{}, err
	}
	return stats, nil
}

// UpdateStatus overrides a non-voting activity's status.
func (r *Repository) UpdateStatus(ctx context.Context, activityID string, status domain.Status, at time.Time) (*domain.Activity, error) {
	const stmt = `UPDATE activities SET status = $2, updated_at = $3 WHERE activity_id = $1 AND status <> 'voting'`
	a, err := scanActivity(r.db.QueryRow(ctx, stmt+returningActivity, activityID, string(status), at))
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM activities WHERE activity_id = $1)`, activityID).Scan(&exists); err != nil {
			return nil, mapError(err, "activity", activityID)
		}
		if exists {
			return nil, fmt.Errorf("activity %s is being voted on: %w", activityID, domain.ErrConflict)
		}
		return nil, fmt.Errorf("activity %s: %w", activityID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, mapError(err, "activity", activityID)
	}
	list := []domain.Activity{a}
	if err := r.attachVotes(ctx, list); err != nil {
		return nil, err
	}
	return &list[0], nil
}

// AssignVoters replaces the activity's assigned voter list.
func (r *Repository) AssignVoters(ctx context.Context, activityID string, voters []string) error {
	if voters == nil {
		voters = []string{}
	}
	tag, err := r.db.Exec(ctx, `UPDATE activities SET assigned_voters = $2 WHERE activity_id = $1`, activityID, voters)
	if err != nil {
		return mapError(err, "activity", activityID)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("activity %s: %w", activityID, domain.ErrNotFound)
	}
	return nil
}

// VoterCandidates returns distinct owners of other activities, most recently
// active first.
func (r *Repository) VoterCandidates(ctx context.Context, excludeUserID string, limit int) ([]string, error) {
	query, args, err := psql.Select("user_id").
		From("activities").
		Where(sq.NotEq{"user_id": excludeUserID}).
		GroupBy("user_id").
		OrderBy("MAX(created_at) DESC", "user_id ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build voter candidate query: %w", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, "voter candidates", excludeUserID)
	}
	users, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, mapError(err, "voter candidates", excludeUserID)
	}
	return users, nil
}

// SetBlockchainTxHash stores the notarization handle.
func (r *Repository) SetBlockchainTxHash(ctx context.Context, activityID, hash string) error {
	tag, err := r.db.Exec(ctx, `UPDATE activities SET blockchain_tx_hash = $2 WHERE activity_id = $1`, activityID, hash)
	if err != nil {
		return mapError(err, "activity", activityID)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("activity %s: %w", activityID, domain.ErrNotFound)
	}
	return nil
}

// ExpireVoting reaps voting activities created strictly before cutoff in a
// single conditional statement and records an activity.expired event for each.
func (r *Repository) ExpireVoting(ctx context.Context, cutoff time.Time, policy domain.ExpiryPolicy) ([]string, error) {
	var stmt string
	switch policy {
	case domain.ExpireReject:
		stmt = `UPDATE activities SET status = 'rejected', voting_result = 'rejected', updated_at = NOW()
                WHERE status = 'voting' AND created_at < $1
                RETURNING activity_id, user_id, created_at`
	case domain.ExpireDelete, "":
		policy = domain.ExpireDelete
		stmt = `DELETE FROM activities WHERE status = 'voting' AND created_at < $1
                RETURNING activity_id, user_id, created_at`
	default:
		return nil, fmt.Errorf("unknown expiry policy %q: %w", policy, domain.ErrInvalidInput)
	}

	type expired struct {
		id, userID string
		createdAt  time.Time
	}
	var ids []string
	err := withTx(ctx, r.db, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, stmt, cutoff)
		if err != nil {
			return fmt.Errorf("expire voting activities: %w", err)
		}
		var reaped []expired
		for rows.Next() {
			var e expired
			if err := rows.Scan(&e.id, &e.userID, &e.createdAt); err != nil {
				rows.Close()
				return fmt.Errorf("scan expired activity: %w", err)
			}
			reaped = append(reaped, e)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("expire voting activities: %w", err)
		}

		for _, e := range reaped {
			if err := insertOutbox(ctx, tx, e.id, events.TypeActivityExpired, events.ActivityExpired{
				ActivityID: e.id,
				UserID:     e.userID,
				Policy:     string(policy),
				CreatedAt:  e.createdAt,
				ExpiredAt:  cutoff,
			}); err != nil {
				return err
			}
			ids = append(ids, e.id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *Repository) queryActivities(ctx context.Context, builder sq.SelectBuilder) ([]domain.Activity, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build activity query: %w", err)
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query activities: %w", err)
	}
	defer rows.Close()

	results := make([]domain.Activity, 0)
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		results = append(results, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query activities: %w", err)
	}
	rows.Close()

	if err := r.attachVotes(ctx, results); err != nil {
		return nil, err
	}
	return results, nil
}

func (r *Repository) attachVotes(ctx context.Context, activities []domain.Activity) error {
	if len(activities) == 0 {
		return nil
	}
	ids := make([]string, len(activities))
	for i, a := range activities {
		ids[i] = a.ID
	}

	rows, err := r.db.Query(ctx, `SELECT vote_id, activity_id, user_id, value, created_at
        FROM activity_votes WHERE activity_id = ANY($1) ORDER BY vote_seq`, ids)
	if err != nil {
		return fmt.Errorf("query votes: %w", err)
	}
	defer rows.Close()

	byActivity := make(map[string][]domain.Vote, len(activities))
	for rows.Next() {
		v, err := scanVote(rows)
		if err != nil {
			return fmt.Errorf("scan vote: %w", err)
		}
		byActivity[v.ActivityID] = append(byActivity[v.ActivityID], v)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("query votes: %w", err)
	}

	for i := range activities {
		votes := byActivity[activities[i].ID]
		if votes == nil {
			votes = []domain.Vote{}
		}
		activities[i].Votes = votes
	}
	return nil
}

func scanActivity(row pgx.Row) (domain.Activity, error) {
	var (
		a                                  domain.Activity
		activityType, status, method       string
		votingResult                       string
		startLat, startLon, endLat, endLon *float64
		route                              []byte
		challengeID                        *string
	)
	err := row.Scan(
		&a.ID, &a.UserID, &activityType, &a.Title, &a.Description,
		&a.StartTime, &a.EndTime, &a.Distance, &a.CarbonSaved, &a.Points,
		&startLat, &startLon, &endLat, &endLon, &route,
		&a.AverageSpeed, &a.MaxSpeed, &status, &method,
		&a.MediaURL, &a.MediaType, &a.AssignedVoters, &a.VotingQuorum,
		&votingResult, &a.ApprovalRatio, &challengeID, &a.BlockchainTxHash,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return domain.Activity{}, err
	}

	a.Type = domain.ActivityType(activityType)
	a.Status = domain.Status(status)
	a.VerificationMethod = domain.VerificationMethod(method)
	a.VotingResult = domain.VotingResult(votingResult)
	a.StartLocation = location(startLat, startLon)
	a.EndLocation = location(endLat, endLon)
	if challengeID != nil {
		a.ChallengeID = *challengeID
	}
	if a.AssignedVoters == nil {
		a.AssignedVoters = []string{}
	}
	if a.Route, err = decodeRoute(route); err != nil {
		return domain.Activity{}, fmt.Errorf("activity %s: %w", a.ID, err)
	}
	return a, nil
}

func scanVote(row pgx.Row) (domain.Vote, error) {
	var (
		v     domain.Vote
		value string
	)
	if err := row.Scan(&v.ID, &v.ActivityID, &v.UserID, &value, &v.CreatedAt); err != nil {
		return domain.Vote{}, err
	}
	v.Value = domain.VoteValue(value)
	return v, nil
}

// encodeRoute stores a route as a GeoJSON LineString geometry.
func encodeRoute(route orb.LineString) ([]byte, error) {
	if len(route) == 0 {
		return nil, nil
	}
	body, err := geojson.NewGeometry(route).MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encode route: %w", err)
	}
	return body, nil
}

func decodeRoute(raw []byte) (orb.LineString, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	g, err := geojson.UnmarshalGeometry(raw)
	if err != nil {
		return nil, fmt.Errorf("decode route: %w", err)
	}
	route, ok := g.Geometry().(orb.LineString)
	if !ok {
		return nil, fmt.Errorf("decode route: unexpected geometry %s", g.Geometry().GeoJSONType())
	}
	return route, nil
}

func latLon(loc *domain.Location) (*float64, *float64) {
	if loc == nil {
		return nil, nil
	}
	lat, lon := loc.Latitude, loc.Longitude
	return &lat, &lon
}

func location(lat, lon *float64) *domain.Location {
	if lat == nil || lon == nil {
		return nil
	}
	return &domain.Location{Latitude: *lat, Longitude: *lon}
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}
