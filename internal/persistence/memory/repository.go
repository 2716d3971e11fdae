// Package memory provides an in-process store for local development and tests.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"

	"github.com/GreenMint-Hub/GreenMintBackend/internal/domain"
)

// Balance is a user's running totals.
type Balance struct {
	Points      int
	EcoPoints   int
	CarbonSaved float64
}

// Challenge is a time-boxed competition users can join.
type Challenge struct {
	ID      string
	Title   string
	StartAt time.Time
	EndAt   time.Time
}

// Repository stores activities, votes, balances and challenges in maps
// guarded by one RWMutex, so every method is atomic.
type Repository struct {
	mu           sync.RWMutex
	activities   map[string]domain.Activity
	votes        map[string][]domain.Vote
	balances     map[string]Balance
	references   map[string]struct{}
	challenges   map[string]Challenge
	participants map[string]map[string]int
}

// NewRepository constructs an empty Repository.
func NewRepository() *Repository {
	return &Repository{
		activities:   make(map[string]domain.Activity),
		votes:        make(map[string][]domain.Vote),
		balances:     make(map[string]Balance),
		references:   make(map[string]struct{}),
		challenges:   make(map[string]Challenge),
		participants: make(map[string]map[string]int),
	}
}

// Create implements domain.ActivityStore.
func (r *Repository) Create(ctx context.Context, activity domain.Activity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.insert(activity)
}

// CreateManual implements domain.ActivityStore. Every check runs before the
// first write, so a failure leaves nothing behind.
func (r *Repository) CreateManual(ctx context.Context, record domain.ManualRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.activities[record.Activity.ID]; exists {
		return fmt.Errorf("activity %s: %w", record.Activity.ID, domain.ErrConflict)
	}
	if record.ChallengeID != "" {
		if err := r.checkParticipant(record.ChallengeID, record.Credit.UserID); err != nil {
			return err
		}
	}

	if err := r.insert(record.Activity); err != nil {
		return err
	}
	if r.credit(record.Credit) {
		r.addEcoPoints(record.Credit.UserID, record.Credit.Points)
	}
	if record.ChallengeID != "" {
		r.participants[record.ChallengeID][record.Credit.UserID] += record.Credit.Points
	}
	return nil
}

func (r *Repository) insert(activity domain.Activity) error {
	if activity.ID == "" {
		activity.ID = uuid.NewString()
	}
	if _, exists := r.activities[activity.ID]; exists {
		return fmt.Errorf("activity %s: %w", activity.ID, domain.ErrConflict)
	}
	activity.Votes = nil
	r.activities[activity.ID] = clone(activity)
	return nil
}

// Get implements domain.ActivityStore.
func (r *Repository) Get(ctx context.Context, activityID string) (*domain.Activity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	activity, ok := r.activities[activityID]
	if !ok {
		return nil, fmt.Errorf("activity %s: %w", activityID, domain.ErrNotFound)
	}
	out := r.withVotes(activity)
	return &out, nil
}

// ListByUser implements domain.ActivityStore, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.Activity, *domain.Cursor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	owned := r.ownedBy(userID)
	results := make([]domain.Activity, 0, limit)
	for _, a := range owned {
		if cursor != nil && !before(a, *cursor) {
			continue
		}
		results = append(results, r.withVotes(a))
		if len(results) == limit {
			break
		}
	}

	var next *domain.Cursor
	if limit > 0 && len(results) == limit {
		last := results[len(results)-1]
		next = &domain.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}
	return results, next, nil
}

// ListCommunity implements domain.ActivityStore. Activities the viewer was
// assigned to come first, then oldest first.
func (r *Repository) ListCommunity(ctx context.Context, viewerID string, limit int) ([]domain.Activity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	candidates := make([]domain.Activity, 0)
	for _, a := range r.activities {
		if a.Status != domain.StatusVoting || a.UserID == viewerID || r.hasVoted(a.ID, viewerID) {
			continue
		}
		candidates = append(candidates, a)
	}
	sort.Slice(candidates, func(i, j int) bool {
		ai := slices.Contains(candidates[i].AssignedVoters, viewerID)
		aj := slices.Contains(candidates[j].AssignedVoters, viewerID)
		if ai != aj {
			return ai
		}
		if !candidates[i].CreatedAt.Equal(candidates[j].CreatedAt) {
			return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
		}
		return candidates[i].ID < candidates[j].ID
	})
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]domain.Activity, len(candidates))
	for i, a := range candidates {
		out[i] = r.withVotes(a)
	}
	return out, nil
}

// Stats implements domain.ActivityStore.
func (r *Repository) Stats(ctx context.Context, userID string, recent int) (domain.UserStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	owned := r.ownedBy(userID)
	stats := domain.UserStats{TotalActivities: len(owned), Recent: make([]domain.Activity, 0, recent)}
	for i, a := range owned {
		stats.TotalCarbonSaved += a.CarbonSaved
		stats.TotalPoints += a.Points
		if i < recent {
			stats.Recent = append(stats.Recent, r.withVotes(a))
		}
	}
	return stats, nil
}

// UpdateStatus implements domain.ActivityStore.
func (r *Repository) UpdateStatus(ctx context.Context, activityID string, status domain.Status, at time.Time) (*domain.Activity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	activity, ok := r.activities[activityID]
	if !ok {
		return nil, fmt.Errorf("activity %s: %w", activityID, domain.ErrNotFound)
	}
	if activity.Status == domain.StatusVoting {
		return nil, fmt.Errorf("activity %s is being voted on: %w", activityID, domain.ErrConflict)
	}
	activity.Status = status
	activity.UpdatedAt = at
	r.activities[activityID] = activity

	out := r.withVotes(activity)
	return &out, nil
}

// AssignVoters implements domain.ActivityStore.
func (r *Repository) AssignVoters(ctx context.Context, activityID string, voters []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	activity, ok := r.activities[activityID]
	if !ok {
		return fmt.Errorf("activity %s: %w", activityID, domain.ErrNotFound)
	}
	activity.AssignedVoters = slices.Clone(voters)
	r.activities[activityID] = activity
	return nil
}

// VoterCandidates implements domain.ActivityStore: distinct owners of other
// activities, most recently active first.
func (r *Repository) VoterCandidates(ctx context.Context, excludeUserID string, limit int) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	latest := make(map[string]time.Time)
	for _, a := range r.activities {
		if a.UserID == excludeUserID {
			continue
		}
		if a.CreatedAt.After(latest[a.UserID]) {
			latest[a.UserID] = a.CreatedAt
		}
	}
	users := make([]string, 0, len(latest))
	for u := range latest {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool {
		if !latest[users[i]].Equal(latest[users[j]]) {
			return latest[users[i]].After(latest[users[j]])
		}
		return users[i] < users[j]
	})
	if limit >= 0 && len(users) > limit {
		users = users[:limit]
	}
	return users, nil
}

// SetBlockchainTxHash implements domain.ActivityStore.
func (r *Repository) SetBlockchainTxHash(ctx context.Context, activityID, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	activity, ok := r.activities[activityID]
	if !ok {
		return fmt.Errorf("activity %s: %w", activityID, domain.ErrNotFound)
	}
	activity.BlockchainTxHash = hash
	r.activities[activityID] = activity
	return nil
}

// HasVoted implements domain.VoteStore.
func (r *Repository) HasVoted(ctx context.Context, activityID, userID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.hasVoted(activityID, userID), nil
}

// AppendVote implements domain.VoteStore.
func (r *Repository) AppendVote(ctx context.Context, vote domain.Vote) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	activity, ok := r.activities[vote.ActivityID]
	if !ok {
		return 0, fmt.Errorf("activity %s: %w", vote.ActivityID, domain.ErrNotFound)
	}
	if activity.Status != domain.StatusVoting {
		return 0, fmt.Errorf("activity %s: %w", vote.ActivityID, domain.ErrVotingClosed)
	}
	if r.hasVoted(vote.ActivityID, vote.UserID) {
		return 0, fmt.Errorf("activity %s user %s: %w", vote.ActivityID, vote.UserID, domain.ErrAlreadyVoted)
	}
	if vote.ID == "" {
		vote.ID = uuid.NewString()
	}
	r.votes[vote.ActivityID] = append(r.votes[vote.ActivityID], vote)
	return len(r.votes[vote.ActivityID]), nil
}

// FirstVotes implements domain.VoteStore.
func (r *Repository) FirstVotes(ctx context.Context, activityID string, n int) ([]domain.Vote, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	votes := r.votes[activityID]
	if n < len(votes) {
		votes = votes[:n]
	}
	return slices.Clone(votes), nil
}

// TransitionFromVoting implements domain.VoteStore as a compare-and-swap on status.
func (r *Repository) TransitionFromVoting(ctx context.Context, activityID string, t domain.Transition) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	activity, ok := r.activities[activityID]
	if !ok || activity.Status != domain.StatusVoting {
		return false, nil
	}
	ratio := t.ApprovalRatio
	activity.Status = t.Status
	activity.VotingResult = t.Result
	activity.ApprovalRatio = &ratio
	activity.Points = t.PointsAwarded
	activity.UpdatedAt = t.At
	r.activities[activityID] = activity
	if t.Credit != nil && r.credit(*t.Credit) {
		r.addEcoPoints(t.Credit.UserID, t.Credit.Points)
	}
	return true, nil
}

// ExpireVoting reaps voting activities created strictly before cutoff and
// returns their ids.
func (r *Repository) ExpireVoting(ctx context.Context, cutoff time.Time, policy domain.ExpiryPolicy) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	expired := make([]string, 0)
	for id, a := range r.activities {
		if a.Status != domain.StatusVoting || !a.CreatedAt.Before(cutoff) {
			continue
		}
		switch policy {
		case domain.ExpireReject:
			a.Status = domain.StatusRejected
			a.VotingResult = domain.VotingResultRejected
			a.UpdatedAt = cutoff
			r.activities[id] = a
		default:
			delete(r.activities, id)
			delete(r.votes, id)
		}
		expired = append(expired, id)
	}
	sort.Strings(expired)
	return expired, nil
}

// AddPoints applies the credit once per reference and reports whether this
// call applied it.
func (r *Repository) AddPoints(ctx context.Context, credit domain.Credit) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.credit(credit), nil
}

// IncrementEcoPoints adds to the user's eco points.
func (r *Repository) IncrementEcoPoints(ctx context.Context, userID string, amount int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.addEcoPoints(userID, amount)
	return nil
}

func (r *Repository) credit(c domain.Credit) bool {
	if c.Reference != "" {
		if _, seen := r.references[c.Reference]; seen {
			return false
		}
		r.references[c.Reference] = struct{}{}
	}
	b := r.balances[c.UserID]
	b.Points += c.Points
	b.CarbonSaved += c.CarbonSaved
	r.balances[c.UserID] = b
	return true
}

func (r *Repository) addEcoPoints(userID string, amount int) {
	b := r.balances[userID]
	b.EcoPoints += amount
	r.balances[userID] = b
}

// Balance returns the user's running totals.
func (r *Repository) Balance(userID string) Balance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.balances[userID]
}

// AddChallenge registers a challenge.
func (r *Repository) AddChallenge(c Challenge) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.challenges[c.ID] = c
	if _, ok := r.participants[c.ID]; !ok {
		r.participants[c.ID] = make(map[string]int)
	}
}

// JoinChallenge enrols a user with zero points.
func (r *Repository) JoinChallenge(challengeID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.participants[challengeID]
	if !ok {
		return fmt.Errorf("challenge %s: %w", challengeID, domain.ErrNotFound)
	}
	if _, joined := members[userID]; !joined {
		members[userID] = 0
	}
	return nil
}

// ParticipantPoints returns the points a user earned within a challenge.
func (r *Repository) ParticipantPoints(challengeID, userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.participants[challengeID][userID]
}

// FindActiveChallengeForUser implements domain.ChallengeParticipation. When
// several windows contain now, the one ending first wins.
func (r *Repository) FindActiveChallengeForUser(ctx context.Context, userID string, now time.Time) (string, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		found Challenge
		ok    bool
	)
	for id, members := range r.participants {
		if _, joined := members[userID]; !joined {
			continue
		}
		c := r.challenges[id]
		if now.Before(c.StartAt) || now.After(c.EndAt) {
			continue
		}
		if !ok || c.EndAt.Before(found.EndAt) || (c.EndAt.Equal(found.EndAt) && c.ID < found.ID) {
			found, ok = c, true
		}
	}
	return found.ID, ok, nil
}

// AddPointsToParticipant credits a participant's challenge score.
func (r *Repository) AddPointsToParticipant(ctx context.Context, challengeID, userID string, points int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkParticipant(challengeID, userID); err != nil {
		return err
	}
	r.participants[challengeID][userID] += points
	return nil
}

func (r *Repository) checkParticipant(challengeID, userID string) error {
	members, ok := r.participants[challengeID]
	if !ok {
		return fmt.Errorf("challenge %s: %w", challengeID, domain.ErrNotFound)
	}
	if _, joined := members[userID]; !joined {
		return fmt.Errorf("challenge %s participant %s: %w", challengeID, userID, domain.ErrNotFound)
	}
	return nil
}

func (r *Repository) hasVoted(activityID, userID string) bool {
	for _, v := range r.votes[activityID] {
		if v.UserID == userID {
			return true
		}
	}
	return false
}

func (r *Repository) ownedBy(userID string) []domain.Activity {
	owned := make([]domain.Activity, 0)
	for _, a := range r.activities {
		if a.UserID == userID {
			owned = append(owned, a)
		}
	}
	sort.Slice(owned, func(i, j int) bool {
		return before(owned[j], domain.Cursor{CreatedAt: owned[i].CreatedAt, ID: owned[i].ID})
	})
	return owned
}

// before reports whether a sorts after the cursor in newest-first order.
func before(a domain.Activity, c domain.Cursor) bool {
	if a.CreatedAt.Equal(c.CreatedAt) {
		return a.ID < c.ID
	}
	return a.CreatedAt.Before(c.CreatedAt)
}

func (r *Repository) withVotes(a domain.Activity) domain.Activity {
	out := clone(a)
	out.Votes = slices.Clone(r.votes[a.ID])
	if out.Votes == nil {
		out.Votes = []domain.Vote{}
	}
	return out
}

func clone(a domain.Activity) domain.Activity {
	out := a
	out.AssignedVoters = slices.Clone(a.AssignedVoters)
	if a.Route != nil {
		out.Route = append(orb.LineString(nil), a.Route...)
	}
	if a.StartLocation != nil {
		loc := *a.StartLocation
		out.StartLocation = &loc
	}
	if a.EndLocation != nil {
		loc := *a.EndLocation
		out.EndLocation = &loc
	}
	if a.AverageSpeed != nil {
		v := *a.AverageSpeed
		out.AverageSpeed = &v
	}
	if a.MaxSpeed != nil {
		v := *a.MaxSpeed
		out.MaxSpeed = &v
	}
	if a.ApprovalRatio != nil {
		v := *a.ApprovalRatio
		out.ApprovalRatio = &v
	}
	return out
}
