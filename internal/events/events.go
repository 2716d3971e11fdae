// Package events defines the activity event payloads published through the outbox.
package events

import "time"

// Event type names as stored in outbox.event_type.
const (
	TypeActivityRecorded  = "activity.recorded"
	TypeActivityFinalized = "activity.finalized"
	TypeActivityExpired   = "activity.expired"
)

// ActivityRecorded is emitted when any submission path persists an activity.
type ActivityRecorded struct {
	ActivityID         string    `json:"activity_id"`
	UserID             string    `json:"user_id"`
	ActivityType       string    `json:"activity_type"`
	Status             string    `json:"status"`
	VerificationMethod string    `json:"verification_method"`
	DistanceKm         float64   `json:"distance_km"`
	CarbonSaved        float64   `json:"carbon_saved"`
	Points             int       `json:"points"`
	RecordedAt         time.Time `json:"recorded_at"`
}

// ActivityFinalized is emitted once by the caller that closes voting.
type ActivityFinalized struct {
	ActivityID    string    `json:"activity_id"`
	UserID        string    `json:"user_id"`
	Status        string    `json:"status"`
	VotingResult  string    `json:"voting_result"`
	ApprovalRatio float64   `json:"approval_ratio"`
	PointsAwarded int       `json:"points_awarded"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// ActivityExpired is emitted when the sweeper reaps a voting activity.
type ActivityExpired struct {
	ActivityID string    `json:"activity_id"`
	UserID     string    `json:"user_id"`
	Policy     string    `json:"policy"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiredAt  time.Time `json:"expired_at"`
}
