package api

import (
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/GreenMint-Hub/GreenMintBackend/internal/detection"
	"github.com/GreenMint-Hub/GreenMintBackend/internal/domain"
	"github.com/GreenMint-Hub/GreenMintBackend/internal/geo"
)

// TraceRequest is the payload for detection and sensor submission.
type TraceRequest struct {
	SensorData []detection.Sample `json:"sensorData"`
	Strategy   string             `json:"strategy,omitempty"`
}

// ManualActivityRequest is the payload for POST /v1/activities/log.
type ManualActivityRequest struct {
	Type        string  `json:"type"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Points      int     `json:"points"`
	CO2Saved    float64 `json:"co2Saved"`
}

// VoteRequest is the payload for POST /v1/activities/{id}/votes.
type VoteRequest struct {
	Value string `json:"value"`
}

// StatusRequest is the payload for PATCH /v1/activities/{id}/status.
type StatusRequest struct {
	Status string `json:"status"`
}

// DetectionView is the dry-run classification of a trace.
type DetectionView struct {
	Strategy         string             `json:"strategy"`
	Type             string             `json:"type"`
	Confidence       float64            `json:"confidence"`
	Features         detection.Features `json:"features"`
	CarbonSavedPerKm float64            `json:"carbonSavedPerKm"`
	Points           int                `json:"points"`
	DistanceKm       float64            `json:"distanceKm"`
	CarbonSaved      float64            `json:"carbonSaved"`
}

// VoteView is one community verdict.
type VoteView struct {
	UserID    string    `json:"userId"`
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"createdAt"`
}

// ActivityView exposes full details about an activity.
type ActivityView struct {
	ID                 string           `json:"id"`
	UserID             string           `json:"userId"`
	Type               string           `json:"type"`
	Title              string           `json:"title,omitempty"`
	Description        string           `json:"description,omitempty"`
	StartTime          time.Time        `json:"startTime"`
	EndTime            time.Time        `json:"endTime"`
	Distance           float64          `json:"distance"`
	CarbonSaved        float64          `json:"carbonSaved"`
	Points             int              `json:"points"`
	StartLocation      *domain.Location `json:"startLocation,omitempty"`
	EndLocation        *domain.Location `json:"endLocation,omitempty"`
	Route              *geojson.Feature `json:"route,omitempty"`
	AverageSpeed       *float64         `json:"averageSpeed,omitempty"`
	MaxSpeed           *float64         `json:"maxSpeed,omitempty"`
	Status             string           `json:"status"`
	VerificationMethod string           `json:"verificationMethod"`
	MediaURL           string           `json:"mediaUrl,omitempty"`
	MediaType          string           `json:"mediaType,omitempty"`
	AssignedVoters     []string         `json:"assignedVoters,omitempty"`
	Votes              []VoteView       `json:"votes"`
	VotingQuorum       int              `json:"votingQuorum,omitempty"`
	VotingResult       string           `json:"votingResult,omitempty"`
	ApprovalRatio      *float64         `json:"approvalRatio,omitempty"`
	ChallengeID        string           `json:"challengeId,omitempty"`
	BlockchainTxHash   string           `json:"blockchainTxHash,omitempty"`
	CreatedAt          time.Time        `json:"createdAt"`
	UpdatedAt          time.Time        `json:"updatedAt"`
}

// RecordActivityResponse pairs a stored sensor activity with its detection.
type RecordActivityResponse struct {
	Activity  ActivityView  `json:"activity"`
	Detection DetectionView `json:"detection"`
}

// ListActivitiesResponse packages list results.
type ListActivitiesResponse struct {
	Items      []ActivityView `json:"items"`
	NextCursor string         `json:"nextCursor,omitempty"`
}

// StatsResponse summarises the caller's activities.
type StatsResponse struct {
	TotalCarbonSaved float64        `json:"totalCarbonSaved"`
	TotalPoints      int            `json:"totalPoints"`
	TotalActivities  int            `json:"totalActivities"`
	Recent           []ActivityView `json:"recent"`
}

// VoteResponse is the activity after a vote plus what the vote did.
type VoteResponse struct {
	Activity     ActivityView `json:"activity"`
	Counted      bool         `json:"counted"`
	Transitioned bool         `json:"transitioned"`
}

func toDetectionView(det domain.Detection) DetectionView {
	return DetectionView{
		Strategy:         det.Strategy,
		Type:             string(det.Classification.Type),
		Confidence:       det.Classification.Confidence,
		Features:         det.Classification.Features,
		CarbonSavedPerKm: det.Rates.CarbonPerKm,
		Points:           det.Rates.Points,
		DistanceKm:       det.Distance,
		CarbonSaved:      det.CarbonSaved,
	}
}

func toActivityView(a domain.Activity) ActivityView {
	votes := make([]VoteView, 0, len(a.Votes))
	for _, v := range a.Votes {
		votes = append(votes, VoteView{UserID: v.UserID, Value: string(v.Value), CreatedAt: v.CreatedAt})
	}
	return ActivityView{
		ID:                 a.ID,
		UserID:             a.UserID,
		Type:               string(a.Type),
		Title:              a.Title,
		Description:        a.Description,
		StartTime:          a.StartTime,
		EndTime:            a.EndTime,
		Distance:           a.Distance,
		CarbonSaved:        a.CarbonSaved,
		Points:             a.Points,
		StartLocation:      a.StartLocation,
		EndLocation:        a.EndLocation,
		Route:              geo.RouteFeature(a.Route, map[string]any{"activityId": a.ID, "distanceKm": a.Distance}),
		AverageSpeed:       a.AverageSpeed,
		MaxSpeed:           a.MaxSpeed,
		Status:             string(a.Status),
		VerificationMethod: string(a.VerificationMethod),
		MediaURL:           a.MediaURL,
		MediaType:          a.MediaType,
		AssignedVoters:     a.AssignedVoters,
		Votes:              votes,
		VotingQuorum:       a.VotingQuorum,
		VotingResult:       string(a.VotingResult),
		ApprovalRatio:      a.ApprovalRatio,
		ChallengeID:        a.ChallengeID,
		BlockchainTxHash:   a.BlockchainTxHash,
		CreatedAt:          a.CreatedAt,
		UpdatedAt:          a.UpdatedAt,
	}
}

func toActivityViews(activities []domain.Activity) []ActivityView {
	items := make([]ActivityView, 0, len(activities))
	for _, a := range activities {
		items = append(items, toActivityView(a))
	}
	return items
}
