package domain

import (
	"context"
	"time"
)

// ActivityStore persists activities.
type ActivityStore interface {
	Create(ctx context.Context, activity Activity) error
	// CreateManual stores the activity with its ledger credit and, when
	// ChallengeID is set, the challenge credit. It fails with ErrNotFound if the
	// user is not a participant of that challenge.
	CreateManual(ctx context.Context, record ManualRecord) error
	// Get returns ErrNotFound when the id does not resolve. Votes are loaded in cast order.
	Get(ctx context.Context, activityID string) (*Activity, error)
	ListByUser(ctx context.Context, userID string, cursor *Cursor, limit int) ([]Activity, *Cursor, error)
	ListCommunity(ctx context.Context, viewerID string, limit int) ([]Activity, error)
	Stats(ctx context.Context, userID string, recent int) (UserStats, error)
	// UpdateStatus changes a non-voting activity's status. It returns ErrConflict
	// for activities still in voting.
	UpdateStatus(ctx context.Context, activityID string, status Status, at time.Time) (*Activity, error)
	AssignVoters(ctx context.Context, activityID string, voters []string) error
	VoterCandidates(ctx context.Context, excludeUserID string, limit int) ([]string, error)
	SetBlockchainTxHash(ctx context.Context, activityID, hash string) error
}

// VoteStore persists votes and owns the atomic voting transition.
type VoteStore interface {
	HasVoted(ctx context.Context, activityID, userID string) (bool, error)
	// AppendVote stores the vote and returns the number of votes now held.
	// Appends to one activity are serialized, so exactly one caller observes
	// each count. It fails with ErrAlreadyVoted on a repeat voter and
	// ErrVotingClosed once the activity has left voting.
	AppendVote(ctx context.Context, vote Vote) (int, error)
	// FirstVotes returns up to n votes in cast order.
	FirstVotes(ctx context.Context, activityID string, n int) ([]Vote, error)
	// TransitionFromVoting applies t, including t.Credit, only if the activity
	// is still voting and reports whether this call performed the transition.
	// A missing activity reports false.
	TransitionFromVoting(ctx context.Context, activityID string, t Transition) (bool, error)
}

// Repository is the storage surface the service needs.
type Repository interface {
	ActivityStore
	VoteStore
}

// ChallengeParticipation resolves challenge membership for the manual path.
// The participant credit itself is written by CreateManual.
type ChallengeParticipation interface {
	FindActiveChallengeForUser(ctx context.Context, userID string, now time.Time) (string, bool, error)
}

// MediaStore uploads evidence and returns a public URL.
type MediaStore interface {
	Upload(ctx context.Context, data []byte, contentType string) (string, error)
}

// Notarizer records verified evidence with an external registry and returns
// a transaction handle.
type Notarizer interface {
	Record(ctx context.Context, userID, evidenceURI string) (string, error)
}
