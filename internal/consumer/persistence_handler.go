package consumer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Execer is satisfied by *pgxpool.Pool.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// EventLogHandler appends every consumed event to activity_event_log.
type EventLogHandler struct {
	db Execer
}

// NewEventLogHandler constructs a handler backed by db.
func NewEventLogHandler(db Execer) *EventLogHandler {
	return &EventLogHandler{db: db}
}

const insertEventLogSQL = `INSERT INTO activity_event_log (topic, partition, record_offset, event_type, schema_subject, schema_id, activity_id, user_id, payload, received_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        ON CONFLICT (topic, partition, record_offset) DO NOTHING`

// Handle stores the event. A redelivered record is ignored.
func (h *EventLogHandler) Handle(ctx context.Context, msg Message) error {
	var ids struct {
		ActivityID string `json:"activity_id"`
		UserID     string `json:"user_id"`
	}
	if err := json.Unmarshal(msg.Payload, &ids); err != nil {
		return fmt.Errorf("decode %s payload: %w", msg.EventType, err)
	}
	if ids.ActivityID == "" {
		ids.ActivityID = msg.AggregateID
	}

	_, err := h.db.Exec(ctx, insertEventLogSQL,
		msg.Topic,
		msg.Partition,
		msg.Offset,
		msg.EventType,
		msg.SchemaSubject,
		msg.SchemaID,
		ids.ActivityID,
		ids.UserID,
		msg.Payload,
		msg.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("append event log: %w", err)
	}
	return nil
}
