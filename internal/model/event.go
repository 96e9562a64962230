package model

import "time"

// Change kinds reported by the vote store.
const (
	ChangeCast   = "cast"
	ChangeRemove = "remove"
)

// Event types delivered to real-time subscribers.
const (
	EventVoteUpdate = "vote_update"
	EventShowUpdate = "show_update"
)

// VoteChange is the store-change notification emitted after a committed
// cast or unvote. VoteCount and Version are the values written by that
// transaction.
type VoteChange struct {
	Kind          string    `json:"kind"`
	VoteID        string    `json:"voteId"`
	UserID        string    `json:"userId"`
	SetlistSongID string    `json:"setlistSongId"`
	SetlistID     string    `json:"setlistId"`
	ShowID        string    `json:"showId"`
	SongID        string    `json:"songId"`
	VoteCount     int       `json:"voteCount"`
	Version       int64     `json:"version"`
	At            time.Time `json:"at"`
}

// VoteUpdate is the per-song live event.
type VoteUpdate struct {
	SongID         string  `json:"songId"`
	SetlistSongID  string  `json:"setlistSongId"`
	SetlistID      string  `json:"setlistId"`
	VoteCount      int     `json:"voteCount"`
	Version        int64   `json:"version"`
	TrendingFactor float64 `json:"trendingFactor"`
}

// ShowUpdate is the per-show live event.
type ShowUpdate struct {
	ShowID        string  `json:"showId"`
	TotalVotes    int64   `json:"totalVotes"`
	ActiveVoters  int64   `json:"activeVoters"`
	TrendingScore float64 `json:"trendingScore"`
}

// Event is the envelope delivered to subscribers. Exactly one of Vote or
// Show is set, matching Type.
type Event struct {
	Type  string      `json:"type"`
	Topic string      `json:"topic"`
	Vote  *VoteUpdate `json:"vote,omitempty"`
	Show  *ShowUpdate `json:"show,omitempty"`
}

// VoteEvent is the outbound domain event published to the message broker.
type VoteEvent struct {
	Kind          string    `json:"kind"`
	VoteID        string    `json:"vote_id"`
	UserID        string    `json:"user_id"`
	ShowID        string    `json:"show_id"`
	SongID        string    `json:"song_id"`
	SetlistSongID string    `json:"setlist_song_id"`
	VoteCount     int       `json:"vote_count"`
	OccurredAt    time.Time `json:"occurred_at"`
}
