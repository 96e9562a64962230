package service

import (
	"context"
	"time"

	"github.com/setlistvote/setlistvote/internal/model"
)

// VoteStore is the durable home of votes and the per-song counter. It is the
// only component that mutates SetlistSong.VoteCount, and it does so inside
// the same transaction as the vote insert or delete.
type VoteStore interface {
	CastVote(ctx context.Context, p model.CastVoteParams) (*model.CastVoteResult, error)
	DeleteVote(ctx context.Context, p model.DeleteVoteParams) (*model.DeleteVoteResult, error)
	GetVote(ctx context.Context, voteID string) (*model.Vote, error)
	CountUserVotes(ctx context.Context, userID, showID string, since time.Time) (daily, show int, err error)
	UserStats(ctx context.Context, userID, showID string, dayStart time.Time) (*model.UserVoteStats, error)
	SetlistSongs(ctx context.Context, setlistID string) ([]model.SetlistSong, error)
}

// StatsSource supplies the live aggregates carried by real-time events.
type StatsSource interface {
	RecentVotes(ctx context.Context, setlistSongID string, since time.Time) ([]model.VoteSample, error)
	ShowTotals(ctx context.Context, showID string, activeSince time.Time) (*model.ShowTotals, error)
}

// ShowStore backs the trend scorer and the view-count hook.
type ShowStore interface {
	TrendCandidates(ctx context.Context, from time.Time) ([]string, error)
	ShowMetrics(ctx context.Context, showID string, now, recentSince time.Time) (*model.ShowMetrics, error)
	WriteTrendingScores(ctx context.Context, scores []model.TrendingScore) error
	TopTrending(ctx context.Context, from time.Time, limit int) ([]model.TrendingScore, error)
	RecordView(ctx context.Context, showID string, at time.Time) (int64, error)
}

// ChangeNotifier publishes a committed vote change to every instance. The
// Postgres store implements it with NOTIFY.
type ChangeNotifier interface {
	Notify(ctx context.Context, change model.VoteChange) error
}

// Announcer turns a vote change into real-time events.
type Announcer interface {
	Announce(ctx context.Context, change model.VoteChange)
}

// EventSink receives best-effort outbound domain events.
type EventSink interface {
	PublishVoteEvent(ctx context.Context, ev model.VoteEvent) error
}
