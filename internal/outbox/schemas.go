package outbox

import "github.com/GreenMint-Hub/GreenMintBackend/internal/events"

// SchemaCatalogEntry maps event type to its JSON Schema definition.
type SchemaCatalogEntry struct {
	Schema string
}

var schemaCatalog = map[string]SchemaCatalogEntry{
	events.TypeActivityRecorded:  {Schema: activityRecordedSchema},
	events.TypeActivityFinalized: {Schema: activityFinalizedSchema},
	events.TypeActivityExpired:   {Schema: activityExpiredSchema},
}

const activityRecordedSchema = `{
  "type": "object",
  "title": "ActivityRecorded",
  "properties": {
    "activity_id": {"type": "string"},
    "user_id": {"type": "string"},
    "activity_type": {"type": "string"},
    "status": {"type": "string", "enum": ["pending", "verified", "rejected", "voting"]},
    "verification_method": {"type": "string", "enum": ["sensor", "manual", "receipt"]},
    "distance_km": {"type": "number", "minimum": 0},
    "carbon_saved": {"type": "number", "minimum": 0},
    "points": {"type": "integer", "minimum": 0},
    "recorded_at": {"type": "string", "format": "date-time"}
  },
  "required": ["activity_id", "user_id", "activity_type", "status", "verification_method", "recorded_at"],
  "additionalProperties": false
}`

const activityFinalizedSchema = `{
  "type": "object",
  "title": "ActivityFinalized",
  "properties": {
    "activity_id": {"type": "string"},
    "user_id": {"type": "string"},
    "status": {"type": "string", "enum": ["verified", "rejected"]},
    "voting_result": {"type": "string", "enum": ["valid", "rejected"]},
    "approval_ratio": {"type": "number", "minimum": 0, "maximum": 1},
    "points_awarded": {"type": "integer", "minimum": 0},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["activity_id", "user_id", "status", "voting_result", "approval_ratio", "points_awarded", "occurred_at"],
  "additionalProperties": false
}`

const activityExpiredSchema = `{
  "type": "object",
  "title": "ActivityExpired",
  "properties": {
    "activity_id": {"type": "string"},
    "user_id": {"type": "string"},
    "policy": {"type": "string", "enum": ["delete", "reject"]},
    "created_at": {"type": "string", "format": "date-time"},
    "expired_at": {"type": "string", "format": "date-time"}
  },
  "required": ["activity_id", "user_id", "policy", "created_at", "expired_at"],
  "additionalProperties": false
}`
