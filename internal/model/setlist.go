package model

// SetlistSong is a song's position within a setlist together with its
// denormalized vote counter. Version increments on every counter change.
type SetlistSong struct {
	ID        string `json:"id"`
	SetlistID string `json:"setlistId"`
	SongID    string `json:"songId"`
	Position  int    `json:"position"`
	VoteCount int    `json:"voteCount"`
	Version   int64  `json:"version"`
}

// SetlistVotesResponse is the API response for a setlist's live counts.
type SetlistVotesResponse struct {
	SetlistID  string        `json:"setlistId"`
	Songs      []SetlistSong `json:"songs"`
	TotalVotes int           `json:"totalVotes"`
}
