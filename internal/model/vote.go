package model

import "time"

// Vote types accepted by the voting core.
const (
	VoteTypeUp = "up"
)

// DefaultConfidence is applied when a cast request carries no confidence.
const DefaultConfidence = 100

// Vote represents an individual vote record.
type Vote struct {
	ID            string    `json:"id"`
	UserID        string    `json:"userId"`
	SetlistSongID string    `json:"setlistSongId"`
	ShowID        string    `json:"showId"`
	SongID        string    `json:"songId"`
	VoteType      string    `json:"voteType"`
	Confidence    int       `json:"confidence"`
	CastAt        time.Time `json:"castAt"`
}

// CastVoteRequest is the API request body for casting a vote.
type CastVoteRequest struct {
	UserID        string `json:"userId"`
	ShowID        string `json:"showId"`
	SongID        string `json:"songId"`
	SetlistSongID string `json:"setlistSongId"`
	VoteType      string `json:"voteType,omitempty"`
	Confidence    int    `json:"confidence,omitempty"`
}

// CastVoteResponse is the API response after a successful cast.
type CastVoteResponse struct {
	Success             bool   `json:"success"`
	VoteID              string `json:"voteId"`
	NewVoteCount        int    `json:"newVoteCount"`
	DailyVotesRemaining int    `json:"dailyVotesRemaining"`
	ShowVotesRemaining  int    `json:"showVotesRemaining"`
}

// UnvoteRequest is the API request for retracting a vote.
type UnvoteRequest struct {
	VoteID string `json:"voteId"`
	UserID string `json:"userId"`
}

// UnvoteResponse is the API response after a successful unvote.
type UnvoteResponse struct {
	Success      bool `json:"success"`
	NewVoteCount int  `json:"newVoteCount"`
}

// BatchVoteRequest wraps an ordered list of cast requests.
type BatchVoteRequest struct {
	Votes []CastVoteRequest `json:"votes"`
}

// BatchItemResult is the outcome of one cast inside a batch.
type BatchItemResult struct {
	Index   int               `json:"index"`
	Success bool              `json:"success"`
	Result  *CastVoteResponse `json:"result,omitempty"`
	Error   *ErrorBody        `json:"error,omitempty"`
}

// ErrorBody is the {code, message} pair returned for failed operations.
type ErrorBody struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retryAfter,omitempty"`
}

// VoteLimits reports a user's quota usage for one show.
type VoteLimits struct {
	DailyLimit     int `json:"dailyLimit"`
	DailyUsed      int `json:"dailyUsed"`
	DailyRemaining int `json:"dailyRemaining"`
	ShowLimit      int `json:"showLimit"`
	ShowUsed       int `json:"showUsed"`
	ShowRemaining  int `json:"showRemaining"`
}

// CastVoteParams carries everything the store needs to commit one cast.
// DayStart and the limits let the store re-validate quotas inside the
// same transaction as the insert.
type CastVoteParams struct {
	Vote       Vote
	DayStart   time.Time
	DailyLimit int
	ShowLimit  int
}

// CastVoteResult is what the store returns after a committed cast.
type CastVoteResult struct {
	Vote         Vote
	SetlistID    string
	NewVoteCount int
	Version      int64
	DailyVotes   int
	ShowVotes    int
}

// DeleteVoteParams identifies a vote to remove. Votes cast before NotBefore
// are outside the grace window and are not deleted.
type DeleteVoteParams struct {
	VoteID    string
	UserID    string
	NotBefore time.Time
}

// DeleteVoteResult is what the store returns after a committed unvote.
type DeleteVoteResult struct {
	Vote         Vote
	SetlistID    string
	NewVoteCount int
	Version      int64
}

// VoteSample is the slice of a vote the live trending factor needs.
type VoteSample struct {
	CastAt     time.Time
	Confidence int
}

// UserVoteStats is the per-user, per-show analytics aggregate.
type UserVoteStats struct {
	UserID     string     `json:"userId"`
	ShowID     string     `json:"showId"`
	DailyVotes int        `json:"dailyVotes"`
	ShowVotes  int        `json:"showVotes"`
	LastVoteAt *time.Time `json:"lastVoteAt,omitempty"`
}
