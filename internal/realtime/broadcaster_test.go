package realtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/setlistvote/setlistvote/internal/model"
)

type fakeStats struct {
	samples   []model.VoteSample
	totals    *model.ShowTotals
	err       error
	sampleHit int
}

func (f *fakeStats) RecentVotes(context.Context, string, time.Time) ([]model.VoteSample, error) {
	f.sampleHit++
	return f.samples, f.err
}

func (f *fakeStats) ShowTotals(context.Context, string, time.Time) (*model.ShowTotals, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.totals, nil
}

func change() model.VoteChange {
	return model.VoteChange{
		Kind:          model.ChangeCast,
		SetlistSongID: "ss-1",
		SetlistID:     "sl-1",
		ShowID:        "show-1",
		SongID:        "song-1",
		VoteCount:     4,
		Version:       4,
	}
}

func TestBroadcasterPublishesVoteAndShowUpdates(t *testing.T) {
	clock := clockwork.NewFakeClock()
	hub := NewHub(clock, time.Minute, 8)
	stats := &fakeStats{
		samples: []model.VoteSample{{CastAt: clock.Now(), Confidence: 100}},
		totals:  &model.ShowTotals{ShowID: "show-1", TotalVotes: 12, ActiveVoters: 3, TrendingScore: 42},
	}
	b := NewBroadcaster(hub, stats, clock, zerolog.Nop())

	setlist, err := hub.Open(context.Background(), SetlistTopic("sl-1"))
	require.NoError(t, err)
	show, err := hub.Open(context.Background(), ShowTopic("show-1"))
	require.NoError(t, err)

	b.Announce(context.Background(), change())

	ev, err := recv(t, setlist)
	require.NoError(t, err)
	assert.Equal(t, model.EventVoteUpdate, ev.Type)
	assert.Equal(t, 4, ev.Vote.VoteCount)
	assert.InDelta(t, 1.5, ev.Vote.TrendingFactor, 1e-9)

	ev, err = recv(t, show)
	require.NoError(t, err)
	assert.Equal(t, model.EventVoteUpdate, ev.Type)

	ev, err = recv(t, show)
	require.NoError(t, err)
	require.Equal(t, model.EventShowUpdate, ev.Type)
	assert.Equal(t, int64(12), ev.Show.TotalVotes)
	assert.Equal(t, int64(3), ev.Show.ActiveVoters)
}

func TestBroadcasterSkipsWhenNobodyListens(t *testing.T) {
	hub := NewHub(clockwork.NewFakeClock(), time.Minute, 8)
	stats := &fakeStats{}
	NewBroadcaster(hub, stats, nil, zerolog.Nop()).Announce(context.Background(), change())
	assert.Zero(t, stats.sampleHit)
}

func TestBroadcasterDegradesOnStatsError(t *testing.T) {
	hub := NewHub(clockwork.NewFakeClock(), time.Minute, 8)
	stats := &fakeStats{err: errors.New("db down")}
	b := NewBroadcaster(hub, stats, nil, zerolog.Nop())

	s, err := hub.Open(context.Background(), SetlistTopic("sl-1"))
	require.NoError(t, err)

	b.Announce(context.Background(), change())

	ev, err := recv(t, s)
	require.NoError(t, err)
	assert.Equal(t, 4, ev.Vote.VoteCount)
	assert.Zero(t, ev.Vote.TrendingFactor)
}
