package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/setlistvote/setlistvote/internal/model"
)

func TestSetlistVotes(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	ctx := context.Background()

	for _, vote := range []struct {
		user string
		song int
	}{{"fan-1", 2}, {"fan-2", 2}, {"fan-1", 5}} {
		_, err := f.svc.Cast(ctx, castReq(vote.user, vote.song))
		require.NoError(t, err)
	}

	resp, err := f.setlists.SetlistVotes(ctx, "sl-1")
	require.NoError(t, err)
	assert.Equal(t, "sl-1", resp.SetlistID)
	assert.Equal(t, 3, resp.TotalVotes)
	require.Len(t, resp.Songs, 12)
	for i, song := range resp.Songs {
		assert.Equal(t, i+1, song.Position)
	}
	assert.Equal(t, 2, resp.Songs[1].VoteCount)
	assert.Equal(t, 1, resp.Songs[4].VoteCount)

	assert.Equal(t, 1, f.cache.Len())
}

func TestSetlistVotesNotFound(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	_, err := f.setlists.SetlistVotes(context.Background(), "sl-404")
	requireCode(t, err, CodeNotFound)
	assert.Zero(t, f.cache.Len())
}

func TestSetlistVotesServedFromCache(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	ctx := context.Background()

	_, err := f.setlists.SetlistVotes(ctx, "sl-1")
	require.NoError(t, err)

	// A write that bypasses the service leaves the cached value in place
	// until the key is invalidated.
	_, err = f.store.CastVote(ctx, castParams(f, "fan-9", 1))
	require.NoError(t, err)

	cached, err := f.setlists.SetlistVotes(ctx, "sl-1")
	require.NoError(t, err)
	assert.Zero(t, cached.TotalVotes)

	f.cache.Invalidate(ctx, SetlistVotesKey("sl-1"))
	fresh, err := f.setlists.SetlistVotes(ctx, "sl-1")
	require.NoError(t, err)
	assert.Equal(t, 1, fresh.TotalVotes)
}

func TestUserStats(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	ctx := context.Background()

	for n := 1; n <= 3; n++ {
		_, err := f.svc.Cast(ctx, castReq("fan-1", n))
		require.NoError(t, err)
	}

	stats, err := f.setlists.UserStats(ctx, "fan-1", "show-1")
	require.NoError(t, err)
	assert.Equal(t, "fan-1", stats.UserID)
	assert.Equal(t, 3, stats.ShowVotes)
	assert.Equal(t, 3, stats.DailyVotes)
	require.NotNil(t, stats.LastVoteAt)
	assert.True(t, stats.LastVoteAt.Equal(testNow))

	other, err := f.setlists.UserStats(ctx, "fan-2", "show-1")
	require.NoError(t, err)
	assert.Zero(t, other.ShowVotes)
}

func castParams(f *fixture, userID string, n int) model.CastVoteParams {
	req := castReq(userID, n)
	return model.CastVoteParams{
		Vote: model.Vote{
			ID:            uuid.NewString(),
			UserID:        req.UserID,
			SetlistSongID: req.SetlistSongID,
			ShowID:        req.ShowID,
			SongID:        req.SongID,
			VoteType:      model.VoteTypeUp,
			Confidence:    model.DefaultConfidence,
			CastAt:        f.clock.Now(),
		},
		DayStart:   DayStart(f.clock.Now()),
		DailyLimit: 50,
		ShowLimit:  10,
	}
}

// pausingStore holds each read after it has loaded from the store until
// release is closed.
type pausingStore struct {
	VoteStore
	loaded  chan struct{}
	release chan struct{}
}

func newPausingStore(inner VoteStore) *pausingStore {
	return &pausingStore{VoteStore: inner, loaded: make(chan struct{}), release: make(chan struct{})}
}

func (s *pausingStore) pause() {
	close(s.loaded)
	<-s.release
}

func (s *pausingStore) SetlistSongs(ctx context.Context, setlistID string) ([]model.SetlistSong, error) {
	songs, err := s.VoteStore.SetlistSongs(ctx, setlistID)
	s.pause()
	return songs, err
}

func (s *pausingStore) UserStats(ctx context.Context, userID, showID string, dayStart time.Time) (*model.UserVoteStats, error) {
	stats, err := s.VoteStore.UserStats(ctx, userID, showID, dayStart)
	s.pause()
	return stats, err
}

func TestSetlistVotesReadRacingCastDoesNotCacheStaleCount(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	ctx := context.Background()
	paused := newPausingStore(f.store)
	slow := NewSetlistService(paused, f.cache, f.clock, zerolog.Nop())

	done := make(chan *model.SetlistVotesResponse, 1)
	go func() {
		resp, err := slow.SetlistVotes(ctx, "sl-1")
		assert.NoError(t, err)
		done <- resp
	}()

	<-paused.loaded
	_, err := f.svc.Cast(ctx, castReq("fan-1", 1))
	require.NoError(t, err)
	close(paused.release)

	first := <-done
	assert.Zero(t, first.TotalVotes, "the racing read returns its own snapshot")

	again, err := f.setlists.SetlistVotes(ctx, "sl-1")
	require.NoError(t, err)
	assert.Equal(t, 1, again.TotalVotes)
}

func TestUserStatsReadRacingCastDoesNotCacheStaleStats(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	ctx := context.Background()
	paused := newPausingStore(f.store)
	slow := NewSetlistService(paused, f.cache, f.clock, zerolog.Nop())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := slow.UserStats(ctx, "fan-1", "show-1")
		assert.NoError(t, err)
	}()

	<-paused.loaded
	_, err := f.svc.Cast(ctx, castReq("fan-1", 1))
	require.NoError(t, err)
	close(paused.release)
	<-done

	stats, err := f.setlists.UserStats(ctx, "fan-1", "show-1")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ShowVotes)
}
