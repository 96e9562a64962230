package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/setlistvote/setlistvote/internal/model"
)

var now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func newStore() *MemoryStore {
	s := NewMemoryStore()
	s.AddShow(model.Show{ID: "show-1", Date: now.Add(72 * time.Hour), Status: model.ShowStatusUpcoming})
	s.AddSetlist("sl-1", "show-1")
	s.AddSetlistSong(model.SetlistSong{ID: "ss-2", SetlistID: "sl-1", SongID: "song-2", Position: 2})
	s.AddSetlistSong(model.SetlistSong{ID: "ss-1", SetlistID: "sl-1", SongID: "song-1", Position: 1})
	return s
}

func params(id, user, ss, song string, at time.Time, show int) model.CastVoteParams {
	return model.CastVoteParams{
		Vote: model.Vote{
			ID: id, UserID: user, SetlistSongID: ss, ShowID: "show-1", SongID: song,
			VoteType: model.VoteTypeUp, Confidence: 100, CastAt: at,
		},
		DayStart:   dayOf(at),
		DailyLimit: 50,
		ShowLimit:  show,
	}
}

func TestMemoryStoreCastVote(t *testing.T) {
	s := newStore()
	ctx := context.Background()

	res, err := s.CastVote(ctx, params("v1", "fan-1", "ss-1", "song-1", now, 10))
	require.NoError(t, err)
	assert.Equal(t, "sl-1", res.SetlistID)
	assert.Equal(t, 1, res.NewVoteCount)
	assert.Equal(t, int64(1), res.Version)
	assert.Equal(t, 1, res.DailyVotes)
	assert.Equal(t, 1, res.ShowVotes)

	_, err = s.CastVote(ctx, params("v2", "fan-1", "ss-1", "song-1", now, 10))
	assert.ErrorIs(t, err, ErrDuplicateVote)

	_, err = s.CastVote(ctx, params("v3", "fan-1", "ss-9", "song-9", now, 10))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.CastVote(ctx, params("v4", "fan-1", "ss-2", "song-1", now, 10))
	assert.ErrorIs(t, err, ErrNotFound, "song id must match the setlist song")

	counter, records := s.VoteCount("ss-1")
	assert.Equal(t, 1, counter)
	assert.Equal(t, 1, records)
}

func TestMemoryStoreQuotaInsideTransaction(t *testing.T) {
	s := newStore()
	ctx := context.Background()

	_, err := s.CastVote(ctx, params("v1", "fan-1", "ss-1", "song-1", now, 1))
	require.NoError(t, err)

	_, err = s.CastVote(ctx, params("v2", "fan-1", "ss-2", "song-2", now, 1))
	var qe *QuotaError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, "show", qe.Scope)
	assert.Equal(t, 1, qe.Limit)

	p := params("v3", "fan-2", "ss-1", "song-1", now, 10)
	p.DailyLimit = 0
	_, err = s.CastVote(ctx, p)
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, "daily", qe.Scope)
}

func TestMemoryStoreDeleteVote(t *testing.T) {
	s := newStore()
	ctx := context.Background()

	_, err := s.CastVote(ctx, params("v1", "fan-1", "ss-1", "song-1", now, 10))
	require.NoError(t, err)

	_, err = s.DeleteVote(ctx, model.DeleteVoteParams{VoteID: "v1", UserID: "fan-2", NotBefore: now.Add(-time.Minute)})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.DeleteVote(ctx, model.DeleteVoteParams{VoteID: "v1", UserID: "fan-1", NotBefore: now.Add(time.Second)})
	assert.ErrorIs(t, err, ErrNotFound, "outside the grace window")

	res, err := s.DeleteVote(ctx, model.DeleteVoteParams{VoteID: "v1", UserID: "fan-1", NotBefore: now.Add(-time.Minute)})
	require.NoError(t, err)
	assert.Zero(t, res.NewVoteCount)
	assert.Equal(t, int64(2), res.Version)
	assert.Equal(t, "fan-1", res.Vote.UserID)

	daily, show, err := s.CountUserVotes(ctx, "fan-1", "show-1", dayOf(now))
	require.NoError(t, err)
	assert.Zero(t, daily)
	assert.Zero(t, show)

	stats, err := s.UserStats(ctx, "fan-1", "show-1", dayOf(now))
	require.NoError(t, err)
	assert.Zero(t, stats.ShowVotes)
	assert.Zero(t, stats.DailyVotes)

	_, err = s.GetVote(ctx, "v1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreCountUserVotesByDay(t *testing.T) {
	s := newStore()
	ctx := context.Background()

	yesterday := now.Add(-24 * time.Hour)
	_, err := s.CastVote(ctx, params("v1", "fan-1", "ss-1", "song-1", yesterday, 10))
	require.NoError(t, err)
	_, err = s.CastVote(ctx, params("v2", "fan-1", "ss-2", "song-2", now, 10))
	require.NoError(t, err)

	daily, show, err := s.CountUserVotes(ctx, "fan-1", "show-1", dayOf(now))
	require.NoError(t, err)
	assert.Equal(t, 1, daily)
	assert.Equal(t, 2, show)
}

func TestMemoryStoreSetlistSongsOrdered(t *testing.T) {
	s := newStore()
	songs, err := s.SetlistSongs(context.Background(), "sl-1")
	require.NoError(t, err)
	require.Len(t, songs, 2)
	assert.Equal(t, "ss-1", songs[0].ID)
	assert.Equal(t, "ss-2", songs[1].ID)

	_, err = s.SetlistSongs(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreLiveAggregates(t *testing.T) {
	s := newStore()
	ctx := context.Background()

	_, err := s.CastVote(ctx, params("v1", "fan-1", "ss-1", "song-1", now.Add(-2*time.Hour), 10))
	require.NoError(t, err)
	_, err = s.CastVote(ctx, params("v2", "fan-2", "ss-1", "song-1", now, 10))
	require.NoError(t, err)

	samples, err := s.RecentVotes(ctx, "ss-1", now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Len(t, samples, 1)

	totals, err := s.ShowTotals(ctx, "show-1", now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), totals.TotalVotes)
	assert.Equal(t, int64(1), totals.ActiveVoters)

	_, err = s.ShowTotals(ctx, "show-404", now)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreShowMetricsAndViews(t *testing.T) {
	s := newStore()
	ctx := context.Background()

	_, err := s.CastVote(ctx, params("v1", "fan-1", "ss-1", "song-1", now, 10))
	require.NoError(t, err)
	_, err = s.CastVote(ctx, params("v2", "fan-1", "ss-2", "song-2", now, 10))
	require.NoError(t, err)
	_, err = s.CastVote(ctx, params("v3", "fan-2", "ss-1", "song-1", now, 10))
	require.NoError(t, err)

	n, err := s.RecordView(ctx, "show-1", now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	_, err = s.RecordView(ctx, "show-404", now)
	assert.ErrorIs(t, err, ErrNotFound)

	m, err := s.ShowMetrics(ctx, "show-1", now, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, model.ShowMetrics{
		ShowID:          "show-1",
		ViewCount:       1,
		VoteCount:       3,
		UniqueVoters:    2,
		AvgVotesPerSong: 1.5,
		RecentVotes:     3,
		RecentViews:     1,
		DaysUntilShow:   3,
	}, *m)
}

func TestMemoryStoreTrendingSnapshot(t *testing.T) {
	s := newStore()
	s.AddShow(model.Show{ID: "show-2", Date: now, Status: model.ShowStatusOngoing})
	s.AddShow(model.Show{ID: "show-3", Date: now.Add(-72 * time.Hour), Status: model.ShowStatusCompleted})
	ctx := context.Background()

	ids, err := s.TrendCandidates(ctx, dayOf(now).Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{"show-1", "show-2"}, ids)

	require.NoError(t, s.WriteTrendingScores(ctx, []model.TrendingScore{
		{ShowID: "show-1", Score: 3},
		{ShowID: "show-2", Score: 7},
	}))

	top, err := s.TopTrending(ctx, dayOf(now).Add(-24*time.Hour), 1)
	require.NoError(t, err)
	assert.Equal(t, []model.TrendingScore{{ShowID: "show-2", Score: 7}}, top)
}

func TestMemoryStoreTopTrendingHonoursWindow(t *testing.T) {
	s := newStore()
	s.AddShow(model.Show{ID: "show-old", Date: now.Add(-96 * time.Hour), Status: model.ShowStatusUpcoming, TrendingScore: 9999})
	ctx := context.Background()

	top, err := s.TopTrending(ctx, dayOf(now).Add(-24*time.Hour), 10)
	require.NoError(t, err)
	for _, ts := range top {
		assert.NotEqual(t, "show-old", ts.ShowID)
	}

	all, err := s.TopTrending(ctx, now.Add(-30*24*time.Hour), 1)
	require.NoError(t, err)
	assert.Equal(t, []model.TrendingScore{{ShowID: "show-old", Score: 9999}}, all)
}

func TestDaysUntil(t *testing.T) {
	assert.Equal(t, 3, DaysUntil(now, now.Add(72*time.Hour)))
	assert.Equal(t, 2, DaysUntil(now, now.Add(71*time.Hour)))
	assert.Equal(t, -1, DaysUntil(now, now.Add(-time.Hour)))
}
