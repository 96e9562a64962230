package model

import "time"

// Show statuses.
const (
	ShowStatusUpcoming  = "upcoming"
	ShowStatusOngoing   = "ongoing"
	ShowStatusCompleted = "completed"
	ShowStatusCancelled = "cancelled"
)

// Show represents a concert that fans vote on.
type Show struct {
	ID            string    `json:"id"`
	TrendingScore float64   `json:"trendingScore"`
	ViewCount     int64     `json:"viewCount"`
	Date          time.Time `json:"date"`
	Status        string    `json:"status"`
}

// ShowMetrics are the aggregates the trend scorer reads for one show.
type ShowMetrics struct {
	ShowID          string
	ViewCount       int64
	VoteCount       int64
	UniqueVoters    int64
	AvgVotesPerSong float64
	RecentVotes     int64
	RecentViews     int64
	DaysUntilShow   int
}

// ShowTotals are the live aggregates carried by a ShowUpdate.
type ShowTotals struct {
	ShowID        string
	TotalVotes    int64
	ActiveVoters  int64
	TrendingScore float64
}

// TrendingScore is one entry of a trending snapshot.
type TrendingScore struct {
	ShowID string  `json:"showId"`
	Score  float64 `json:"score"`
}

// TrendRecomputeResult is returned by a manual trend recompute.
type TrendRecomputeResult struct {
	ProcessedCount int             `json:"processedCount"`
	FailedCount    int             `json:"failedCount"`
	TopTrending    []TrendingScore `json:"topTrending"`
	DurationMs     int64           `json:"durationMs"`
}
