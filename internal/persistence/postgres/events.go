package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/GreenMint-Hub/GreenMintBackend/internal/events"
)

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic         string
	SchemaSubject string
}

// EventCatalog maps event types to their Kafka topic and schema subject.
// Every event is keyed by activity id so a consumer sees one activity's
// events in order.
var EventCatalog = map[string]EventMetadata{
	events.TypeActivityRecorded: {
		Topic:         "activity_recorded",
		SchemaSubject: "activity_recorded-value",
	},
	events.TypeActivityFinalized: {
		Topic:         "activity_finalized",
		SchemaSubject: "activity_finalized-value",
	},
	events.TypeActivityExpired: {
		Topic:         "activity_expired",
		SchemaSubject: "activity_expired-value",
	},
}

const insertOutboxSQL = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        ON CONFLICT (dedupe_key) DO NOTHING`

func insertOutbox(ctx context.Context, tx pgx.Tx, activityID, eventType string, payload any) error {
	meta, ok := EventCatalog[eventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", eventType)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	_, err = tx.Exec(ctx, insertOutboxSQL,
		"activity",
		activityID,
		eventType,
		meta.Topic,
		meta.SchemaSubject,
		activityID,
		body,
		fmt.Sprintf("%s:%s", activityID, eventType),
	)
	if err != nil {
		return fmt.Errorf("insert %s outbox event: %w", eventType, err)
	}
	return nil
}
