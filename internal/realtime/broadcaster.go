package realtime

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/setlistvote/setlistvote/internal/model"
)

// StatsSource supplies the aggregates attached to events.
type StatsSource interface {
	RecentVotes(ctx context.Context, setlistSongID string, since time.Time) ([]model.VoteSample, error)
	ShowTotals(ctx context.Context, showID string, activeSince time.Time) (*model.ShowTotals, error)
}

// ActiveWindow is how recently a user must have voted to count as active.
const ActiveWindow = time.Hour

// Broadcaster turns committed vote changes into hub events.
type Broadcaster struct {
	hub   *Hub
	stats StatsSource
	clock clockwork.Clock
	log   zerolog.Logger
}

// NewBroadcaster creates a broadcaster publishing to hub.
func NewBroadcaster(hub *Hub, stats StatsSource, clock clockwork.Clock, log zerolog.Logger) *Broadcaster {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Broadcaster{hub: hub, stats: stats, clock: clock, log: log}
}

// Announce publishes a VoteUpdate to the setlist and show channels and a
// ShowUpdate to the show channel. Nothing is read from the store when no
// one is listening. Aggregate lookups that fail degrade the event rather
// than suppress it.
func (b *Broadcaster) Announce(ctx context.Context, change model.VoteChange) {
	setlistTopic := SetlistTopic(change.SetlistID)
	showTopic := ShowTopic(change.ShowID)
	if !b.hub.HasSubscribers(setlistTopic) && !b.hub.HasSubscribers(showTopic) {
		return
	}
	now := b.clock.Now()

	var factor float64
	samples, err := b.stats.RecentVotes(ctx, change.SetlistSongID, now.Add(-FactorWindow))
	if err != nil {
		b.log.Warn().Err(err).Str("setlist_song_id", change.SetlistSongID).Msg("broadcaster: trending factor unavailable")
	} else {
		factor = TrendingFactor(samples, now)
	}

	update := &model.VoteUpdate{
		SongID:         change.SongID,
		SetlistSongID:  change.SetlistSongID,
		SetlistID:      change.SetlistID,
		VoteCount:      change.VoteCount,
		Version:        change.Version,
		TrendingFactor: factor,
	}
	b.hub.Publish(model.Event{Type: model.EventVoteUpdate, Topic: setlistTopic, Vote: update})
	b.hub.Publish(model.Event{Type: model.EventVoteUpdate, Topic: showTopic, Vote: update})

	if !b.hub.HasSubscribers(showTopic) {
		return
	}
	totals, err := b.stats.ShowTotals(ctx, change.ShowID, now.Add(-ActiveWindow))
	if err != nil {
		b.log.Warn().Err(err).Str("show_id", change.ShowID).Msg("broadcaster: show totals unavailable")
		return
	}
	b.hub.Publish(model.Event{
		Type:  model.EventShowUpdate,
		Topic: showTopic,
		Show: &model.ShowUpdate{
			ShowID:        change.ShowID,
			TotalVotes:    totals.TotalVotes,
			ActiveVoters:  totals.ActiveVoters,
			TrendingScore: totals.TrendingScore,
		},
	})
}
