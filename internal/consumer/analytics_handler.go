package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/GreenMint-Hub/GreenMintBackend/internal/events"
)

// ClickHouseOptions holds connection settings for the analytics sink.
type ClickHouseOptions struct {
	Addr     string
	Database string
	Username string
	Password string
}

// OpenClickHouse dials ClickHouse and verifies the connection.
func OpenClickHouse(ctx context.Context, opts ClickHouseOptions) (driver.Conn, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{opts.Addr},
		Auth: clickhouse.Auth{
			Database: opts.Database,
			Username: opts.Username,
			Password: opts.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout: 5 * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping clickhouse at %s: %w", opts.Addr, err)
	}
	return conn, nil
}

// AnalyticsConn is the part of driver.Conn the analytics sink uses.
type AnalyticsConn interface {
	Exec(ctx context.Context, query string, args ...any) error
}

const createRewardsTableSQL = `CREATE TABLE IF NOT EXISTS activity_rewards (
    event_type   LowCardinality(String),
    activity_id  String,
    user_id      String,
    type         LowCardinality(String),
    status       LowCardinality(String),
    points       Int64,
    carbon_saved Float64,
    occurred_at  DateTime64(3, 'UTC')
) ENGINE = MergeTree
ORDER BY (user_id, occurred_at, activity_id)`

const insertRewardSQL = `INSERT INTO activity_rewards (event_type, activity_id, user_id, type, status, points, carbon_saved, occurred_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

// AnalyticsHandler mirrors reward-bearing events into ClickHouse.
type AnalyticsHandler struct {
	conn AnalyticsConn
}

// NewAnalyticsHandler creates the activity_rewards table when missing and
// returns a handler writing to it.
func NewAnalyticsHandler(ctx context.Context, conn AnalyticsConn) (*AnalyticsHandler, error) {
	if err := conn.Exec(ctx, createRewardsTableSQL); err != nil {
		return nil, fmt.Errorf("create activity_rewards: %w", err)
	}
	return &AnalyticsHandler{conn: conn}, nil
}

// Handle inserts recorded and finalized events. Other event types are ignored.
func (h *AnalyticsHandler) Handle(ctx context.Context, msg Message) error {
	var args []any

	switch msg.EventType {
	case events.TypeActivityRecorded:
		var evt events.ActivityRecorded
		if err := json.Unmarshal(msg.Payload, &evt); err != nil {
			return fmt.Errorf("decode %s payload: %w", msg.EventType, err)
		}
		args = []any{msg.EventType, evt.ActivityID, evt.UserID, evt.ActivityType, evt.Status, int64(evt.Points), evt.CarbonSaved, evt.RecordedAt}
	case events.TypeActivityFinalized:
		var evt events.ActivityFinalized
		if err := json.Unmarshal(msg.Payload, &evt); err != nil {
			return fmt.Errorf("decode %s payload: %w", msg.EventType, err)
		}
		args = []any{msg.EventType, evt.ActivityID, evt.UserID, "", evt.Status, int64(evt.PointsAwarded), 0.0, evt.OccurredAt}
	default:
		return nil
	}

	if err := h.conn.Exec(ctx, insertRewardSQL, args...); err != nil {
		return fmt.Errorf("insert activity reward: %w", err)
	}
	return nil
}
