// Package domain defines the business logic for the green activity service.
package domain

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb"

	"github.com/GreenMint-Hub/GreenMintBackend/internal/detection"
	"github.com/GreenMint-Hub/GreenMintBackend/internal/geo"
	"github.com/GreenMint-Hub/GreenMintBackend/internal/observability"
	"github.com/GreenMint-Hub/GreenMintBackend/internal/reward"
)

// DefaultVotingQuorum is the number of votes that closes voting.
const DefaultVotingQuorum = 5

// Config tunes the record builder.
type Config struct {
	DefaultStrategy   string
	VotingQuorum      int
	VotersPerActivity int
	RecentInStats     int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		DefaultStrategy:   detection.StrategySpeed,
		VotingQuorum:      DefaultVotingQuorum,
		VotersPerActivity: 10,
		RecentInStats:     10,
	}
}

type options struct {
	logger *slog.Logger
	clock  clockwork.Clock
}

// Option configures Service and VotingEngine.
type Option func(*options)

// WithLogger overrides the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock overrides the clock used for timestamps.
func WithClock(clock clockwork.Clock) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: slog.Default(), clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Service builds activity records from the three submission paths and serves
// read queries.
type Service struct {
	repo       Repository
	challenges ChallengeParticipation
	media      MediaStore
	cfg        Config
	logger     *slog.Logger
	clock      clockwork.Clock
}

// NewService constructs a Service.
func NewService(repo Repository, challenges ChallengeParticipation, media MediaStore, cfg Config, opts ...Option) *Service {
	o := buildOptions(opts)
	defaults := DefaultConfig()
	if cfg.DefaultStrategy == "" {
		cfg.DefaultStrategy = defaults.DefaultStrategy
	}
	if cfg.VotingQuorum <= 0 {
		cfg.VotingQuorum = defaults.VotingQuorum
	}
	if cfg.VotersPerActivity < 0 {
		cfg.VotersPerActivity = 0
	}
	if cfg.RecentInStats <= 0 {
		cfg.RecentInStats = defaults.RecentInStats
	}
	return &Service{
		repo:       repo,
		challenges: challenges,
		media:      media,
		cfg:        cfg,
		logger:     o.logger.With("component", "activity_service"),
		clock:      o.clock,
	}
}

// Detection is the dry-run result of classifying a trace.
type Detection struct {
	Strategy       string
	Classification detection.Classification
	Rates          reward.Rates
	Distance       float64
	CarbonSaved    float64
	Route          orb.LineString
}

// Detect classifies a trace with the named strategy (the configured default
// when empty) and prices it. Nothing is persisted.
func (s *Service) Detect(samples []detection.Sample, strategy string) (Detection, error) {
	if err := validateSamples(samples); err != nil {
		return Detection{}, err
	}
	if strings.TrimSpace(strategy) == "" {
		strategy = s.cfg.DefaultStrategy
	}
	classifier, err := detection.Lookup(strategy)
	if err != nil {
		return Detection{}, NewValidationError("strategy", err.Error())
	}

	classification, err := detection.ClassifyTrace(classifier, samples)
	if err != nil {
		return Detection{}, NewValidationError("sensorData", err.Error())
	}

	route := make(orb.LineString, len(samples))
	for i, sample := range samples {
		route[i] = geo.NewPoint(sample.Latitude, sample.Longitude)
	}
	distance := geo.RouteDistance(route)
	rates := reward.Calculate(string(classification.Type), classification.Features.AvgSpeed)

	return Detection{
		Strategy:       classifier.Name(),
		Classification: classification,
		Rates:          rates,
		Distance:       distance,
		CarbonSaved:    rates.CarbonSaved(distance),
		Route:          route,
	}, nil
}

// SensorInput is a raw trace submitted for a user.
type SensorInput struct {
	UserID   string
	Samples  []detection.Sample
	Strategy string
}

// RecordSensorActivity classifies the trace and persists a pending activity.
func (s *Service) RecordSensorActivity(ctx context.Context, input SensorInput) (*Activity, Detection, error) {
	if strings.TrimSpace(input.UserID) == "" {
		return nil, Detection{}, NewValidationError("userId", "is required")
	}
	det, err := s.Detect(input.Samples, input.Strategy)
	if err != nil {
		return nil, Detection{}, err
	}

	first, last := input.Samples[0], input.Samples[len(input.Samples)-1]
	start, end := first.Timestamp.UTC(), last.Timestamp.UTC()
	if end.Before(start) {
		start, end = end, start
	}
	avg := det.Classification.Features.AvgSpeed
	maxSpeed := det.Classification.Features.MaxSpeed
	now := s.clock.Now().UTC()

	activity := Activity{
		ID:                 uuid.NewString(),
		UserID:             input.UserID,
		Type:               ActivityType(det.Classification.Type),
		StartTime:          start,
		EndTime:            end,
		Distance:           det.Distance,
		CarbonSaved:        det.CarbonSaved,
		Points:             det.Rates.Points,
		StartLocation:      LocationOf(det.Route[0]),
		EndLocation:        LocationOf(det.Route[len(det.Route)-1]),
		Route:              det.Route,
		AverageSpeed:       &avg,
		MaxSpeed:           &maxSpeed,
		Status:             StatusPending,
		VerificationMethod: VerificationSensor,
		VotingQuorum:       s.cfg.VotingQuorum,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.repo.Create(ctx, activity); err != nil {
		return nil, Detection{}, fmt.Errorf("create sensor activity: %w", err)
	}
	observability.RecordActivityRecorded(string(VerificationSensor), string(activity.Type))
	s.logger.InfoContext(ctx, "sensor activity recorded",
		slog.String("activity_id", activity.ID),
		slog.String("user_id", activity.UserID),
		slog.String("type", string(activity.Type)),
		slog.Float64("confidence", det.Classification.Confidence),
		slog.String("strategy", det.Strategy),
	)
	return &activity, det, nil
}

// ManualInput is a self-reported activity. Points and carbon are trusted.
type ManualInput struct {
	UserID      string
	Type        string
	Title       string
	Description string
	Points      int
	CarbonSaved float64
}

// LogManualActivity stores a verified activity together with the credit to the
// user's balance and to any challenge running now. Nothing is written if any
// part fails.
func (s *Service) LogManualActivity(ctx context.Context, input ManualInput) (*Activity, error) {
	if strings.TrimSpace(input.UserID) == "" {
		return nil, NewValidationError("userId", "is required")
	}
	activityType, err := ParseActivityType(input.Type)
	if err != nil {
		return nil, err
	}
	if input.Points < 0 {
		return nil, NewValidationError("points", "must be >= 0")
	}
	if input.CarbonSaved < 0 || math.IsNaN(input.CarbonSaved) || math.IsInf(input.CarbonSaved, 0) {
		return nil, NewValidationError("co2Saved", "must be a finite value >= 0")
	}

	now := s.clock.Now().UTC()
	challengeID, inChallenge, err := s.challenges.FindActiveChallengeForUser(ctx, input.UserID, now)
	if err != nil {
		return nil, fmt.Errorf("find active challenge: %w", err)
	}

	activity := Activity{
		ID:                 uuid.NewString(),
		UserID:             input.UserID,
		Type:               activityType,
		Title:              input.Title,
		Description:        input.Description,
		StartTime:          now,
		EndTime:            now,
		CarbonSaved:        input.CarbonSaved,
		Points:             input.Points,
		Status:             StatusVerified,
		VerificationMethod: VerificationManual,
		VotingQuorum:       s.cfg.VotingQuorum,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	record := ManualRecord{
		Activity: activity,
		Credit: Credit{
			UserID:      input.UserID,
			Points:      input.Points,
			CarbonSaved: input.CarbonSaved,
			Reference:   "manual:" + activity.ID,
		},
	}
	if inChallenge {
		activity.ChallengeID = challengeID
		record.Activity.ChallengeID = challengeID
		record.ChallengeID = challengeID
	}

	if err := s.repo.CreateManual(ctx, record); err != nil {
		return nil, fmt.Errorf("create manual activity: %w", err)
	}
	observability.RecordActivityRecorded(string(VerificationManual), string(activity.Type))

	s.logger.InfoContext(ctx, "manual activity logged",
		slog.String("activity_id", activity.ID),
		slog.String("user_id", activity.UserID),
		slog.Int("points", activity.Points),
		slog.String("challenge_id", activity.ChallengeID),
	)
	return &activity, nil
}

// MediaInput is uploaded evidence for community review.
type MediaInput struct {
	UserID      string
	ActionType  string
	Description string
	Data        []byte
	ContentType string
}

// SubmitMediaActivity uploads the evidence and opens a voting activity. Voter
// assignment is best-effort.
func (s *Service) SubmitMediaActivity(ctx context.Context, input MediaInput) (*Activity, error) {
	if strings.TrimSpace(input.UserID) == "" {
		return nil, NewValidationError("userId", "is required")
	}
	activityType, err := ParseActivityType(input.ActionType)
	if err != nil {
		return nil, err
	}
	if len(input.Data) == 0 {
		return nil, NewValidationError("file", "is required")
	}
	if strings.TrimSpace(input.ContentType) == "" {
		return nil, NewValidationError("file", "content type is required")
	}

	url, err := s.media.Upload(ctx, input.Data, input.ContentType)
	if err != nil {
		return nil, fmt.Errorf("%w: upload media: %v", ErrExternalService, err)
	}

	now := s.clock.Now().UTC()
	activity := Activity{
		ID:                 uuid.NewString(),
		UserID:             input.UserID,
		Type:               activityType,
		Description:        input.Description,
		StartTime:          now,
		EndTime:            now,
		Status:             StatusVoting,
		VerificationMethod: VerificationReceipt,
		MediaURL:           url,
		MediaType:          input.ContentType,
		AssignedVoters:     []string{},
		Votes:              []Vote{},
		VotingQuorum:       s.cfg.VotingQuorum,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.repo.Create(ctx, activity); err != nil {
		return nil, fmt.Errorf("create media activity: %w", err)
	}
	observability.RecordActivityRecorded(string(VerificationReceipt), string(activity.Type))

	activity.AssignedVoters = s.assignVoters(ctx, activity)
	return &activity, nil
}

func (s *Service) assignVoters(ctx context.Context, activity Activity) []string {
	if s.cfg.VotersPerActivity == 0 {
		return []string{}
	}
	voters, err := s.repo.VoterCandidates(ctx, activity.UserID, s.cfg.VotersPerActivity)
	if err == nil && len(voters) > 0 {
		err = s.repo.AssignVoters(ctx, activity.ID, voters)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "voter assignment failed",
			slog.String("activity_id", activity.ID),
			slog.Any("error", err),
		)
		return []string{}
	}
	if voters == nil {
		voters = []string{}
	}
	return voters
}

// GetActivity fetches by ID.
func (s *Service) GetActivity(ctx context.Context, activityID string) (*Activity, error) {
	if strings.TrimSpace(activityID) == "" {
		return nil, NewValidationError("id", "is required")
	}
	return s.repo.Get(ctx, activityID)
}

// ListActivitiesByUser fetches activities with cursor pagination.
func (s *Service) ListActivitiesByUser(ctx context.Context, userID string, cursor *Cursor, limit int) ([]Activity, *Cursor, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, nil, NewValidationError("user_id", "is required")
	}
	return s.repo.ListByUser(ctx, userID, cursor, clampLimit(limit))
}

// CommunityFeed lists voting activities the viewer may still vote on.
func (s *Service) CommunityFeed(ctx context.Context, viewerID string, limit int) ([]Activity, error) {
	if strings.TrimSpace(viewerID) == "" {
		return nil, NewValidationError("userId", "is required")
	}
	return s.repo.ListCommunity(ctx, viewerID, clampLimit(limit))
}

// UserStats aggregates totals over the user's activities.
func (s *Service) UserStats(ctx context.Context, userID string) (UserStats, error) {
	if strings.TrimSpace(userID) == "" {
		return UserStats{}, NewValidationError("userId", "is required")
	}
	return s.repo.Stats(ctx, userID, s.cfg.RecentInStats)
}

// UpdateStatus is the administrative override. Voting activities can only be
// closed by votes, and voting cannot be reopened by hand.
func (s *Service) UpdateStatus(ctx context.Context, activityID, rawStatus string) (*Activity, error) {
	if strings.TrimSpace(activityID) == "" {
		return nil, NewValidationError("id", "is required")
	}
	status, err := ParseStatus(rawStatus)
	if err != nil {
		return nil, err
	}
	if status == StatusVoting {
		return nil, NewValidationError("status", "voting cannot be set manually")
	}
	activity, err := s.repo.UpdateStatus(ctx, activityID, status, s.clock.Now().UTC())
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "activity status overridden",
		slog.String("activity_id", activityID),
		slog.String("status", string(status)),
	)
	return activity, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return 20
	case limit > 100:
		return 100
	}
	return limit
}

func validateSamples(samples []detection.Sample) error {
	if len(samples) == 0 {
		return NewValidationError("sensorData", detection.ErrEmptyTrace.Error())
	}
	var errs []FieldError
	for i, sample := range samples {
		field := fmt.Sprintf("sensorData[%d]", i)
		if math.IsNaN(sample.Speed) || math.IsInf(sample.Speed, 0) || sample.Speed < 0 {
			errs = append(errs, FieldError{Field: field + ".speed", Message: "must be a finite value >= 0"})
		}
		if math.IsNaN(sample.Latitude) || sample.Latitude < -90 || sample.Latitude > 90 {
			errs = append(errs, FieldError{Field: field + ".latitude", Message: "must be within [-90, 90]"})
		}
		if math.IsNaN(sample.Longitude) || sample.Longitude < -180 || sample.Longitude > 180 {
			errs = append(errs, FieldError{Field: field + ".longitude", Message: "must be within [-180, 180]"})
		}
		if sample.Timestamp.IsZero() {
			errs = append(errs, FieldError{Field: field + ".timestamp", Message: "is required"})
		}
	}
	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}
