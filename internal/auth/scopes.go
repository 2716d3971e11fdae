package auth

// Scopes understood by the activity API.
const (
	ScopeActivitiesWrite = "activities:write"
	ScopeActivitiesRead  = "activities:read"
	ScopeVotesWrite      = "votes:write"
	ScopeActivitiesAdmin = "activities:admin"
)
