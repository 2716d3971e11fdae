package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/paulmach/orb"
)

// ActivityType enumerates the kinds of activity users can record.
type ActivityType string

const (
	ActivityWalking         ActivityType = "walking"
	ActivityBiking          ActivityType = "biking"
	ActivityCycling         ActivityType = "cycling"
	ActivityDriving         ActivityType = "driving"
	ActivityBus             ActivityType = "bus"
	ActivityPublicTransport ActivityType = "public_transport"
	ActivityRecycling       ActivityType = "recycling"
	ActivityOther           ActivityType = "other"
)

var knownActivityTypes = map[ActivityType]struct{}{
	ActivityWalking:         {},
	ActivityBiking:          {},
	ActivityCycling:         {},
	ActivityDriving:         {},
	ActivityBus:             {},
	ActivityPublicTransport: {},
	ActivityRecycling:       {},
	ActivityOther:           {},
}

// ParseActivityType validates a user supplied type name.
func ParseActivityType(raw string) (ActivityType, error) {
	t := ActivityType(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := knownActivityTypes[t]; !ok {
		return "", NewValidationError("type", fmt.Sprintf("unknown activity type %q", raw))
	}
	return t, nil
}

// Status is the lifecycle state of an activity.
type Status string

const (
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
	StatusRejected Status = "rejected"
	StatusVoting   Status = "voting"
)

// ParseStatus validates a status name.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	switch s {
	case StatusPending, StatusVerified, StatusRejected, StatusVoting:
		return s, nil
	}
	return "", NewValidationError("status", fmt.Sprintf("unknown status %q", raw))
}

// VerificationMethod records which path produced an activity.
type VerificationMethod string

const (
	VerificationSensor  VerificationMethod = "sensor"
	VerificationManual  VerificationMethod = "manual"
	VerificationReceipt VerificationMethod = "receipt"
)

// VoteValue is a community verdict on submitted evidence.
type VoteValue string

const (
	VoteYes  VoteValue = "yes"
	VoteNo   VoteValue = "no"
	VoteFake VoteValue = "fake"
	VoteSpam VoteValue = "spam"
)

// Valid reports whether v is one of the accepted verdicts.
func (v VoteValue) Valid() bool {
	switch v {
	case VoteYes, VoteNo, VoteFake, VoteSpam:
		return true
	}
	return false
}

// VotingResult is the outcome stored once voting closes. Empty while open.
type VotingResult string

const (
	VotingResultValid    VotingResult = "valid"
	VotingResultRejected VotingResult = "rejected"
)

// Location is a latitude/longitude pair in degrees.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// LocationOf converts an orb point, which stores [lon, lat].
func LocationOf(p orb.Point) *Location {
	return &Location{Latitude: p.Lat(), Longitude: p.Lon()}
}

// Activity is the persisted record of one user activity.
type Activity struct {
	ID                 string
	UserID             string
	Type               ActivityType
	Title              string
	Description        string
	StartTime          time.Time
	EndTime            time.Time
	Distance           float64
	CarbonSaved        float64
	Points             int
	StartLocation      *Location
	EndLocation        *Location
	Route              orb.LineString
	AverageSpeed       *float64
	MaxSpeed           *float64
	Status             Status
	VerificationMethod VerificationMethod
	MediaURL           string
	MediaType          string
	AssignedVoters     []string
	Votes              []Vote
	VotingQuorum       int
	VotingResult       VotingResult
	ApprovalRatio      *float64
	ChallengeID        string
	BlockchainTxHash   string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Vote is one user's verdict on a voting activity.
type Vote struct {
	ID         string
	ActivityID string
	UserID     string
	Value      VoteValue
	CreatedAt  time.Time
}

// Cursor models the pagination token for user listings.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// UserStats summarises a user's recorded activities.
type UserStats struct {
	TotalCarbonSaved float64
	TotalPoints      int
	TotalActivities  int
	Recent           []Activity
}

// Transition is the terminal state written when voting closes. Credit, when
// set, is applied by the store in the same atomic step as the status change.
type Transition struct {
	Status        Status
	Result        VotingResult
	ApprovalRatio float64
	PointsAwarded int
	At            time.Time
	Credit        *Credit
}

// ExpiryPolicy selects what happens to voting activities that outlive their TTL.
type ExpiryPolicy string

const (
	ExpireDelete ExpiryPolicy = "delete"
	ExpireReject ExpiryPolicy = "reject"
)

// Credit is a ledger entry. Reference makes the entry idempotent. A credit
// written together with an activity also adds Points to the eco points.
type Credit struct {
	UserID      string
	Points      int
	CarbonSaved float64
	Reference   string
}

// ManualRecord is a verified activity and the credits it earns. Stores write
// all of it or none of it.
type ManualRecord struct {
	Activity    Activity
	Credit      Credit
	ChallengeID string
}
