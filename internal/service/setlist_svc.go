package service

import (
	"context"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/setlistvote/setlistvote/internal/model"
)

// SetlistService serves the cached read paths over vote counts and
// per-user stats. Writes go through VoteService, which invalidates the
// keys read here.
type SetlistService struct {
	store VoteStore
	cache *CacheService
	clock clockwork.Clock
	log   zerolog.Logger
}

func NewSetlistService(store VoteStore, cache *CacheService, clock clockwork.Clock, log zerolog.Logger) *SetlistService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &SetlistService{store: store, cache: cache, clock: clock, log: log}
}

// SetlistVotes returns the songs of a setlist with their counters.
func (s *SetlistService) SetlistVotes(ctx context.Context, setlistID string) (*model.SetlistVotesResponse, error) {
	const op = "setlist.votes"
	key := SetlistVotesKey(setlistID)

	var cached model.SetlistVotesResponse
	if s.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}

	tok := s.cache.Token(key)
	songs, err := s.store.SetlistSongs(ctx, setlistID)
	if err != nil {
		return nil, readError(op, "", setlistID, "Setlist not found", err)
	}

	resp := &model.SetlistVotesResponse{SetlistID: setlistID, Songs: songs}
	if resp.Songs == nil {
		resp.Songs = []model.SetlistSong{}
	}
	for _, song := range songs {
		resp.TotalVotes += song.VoteCount
	}

	if _, err := s.cache.SetIfCurrent(ctx, key, tok, resp); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("cache: set failed")
	}
	return resp, nil
}

// UserStats returns the user's vote aggregate for a show.
func (s *SetlistService) UserStats(ctx context.Context, userID, showID string) (*model.UserVoteStats, error) {
	const op = "user.stats"
	key := UserStatsKey(userID, showID)

	var cached model.UserVoteStats
	if s.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}

	tok := s.cache.Token(key)
	stats, err := s.store.UserStats(ctx, userID, showID, DayStart(s.clock.Now()))
	if err != nil {
		return nil, readError(op, userID, showID, "Stats not found", err)
	}

	if _, err := s.cache.SetIfCurrent(ctx, key, tok, stats); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("cache: set failed")
	}
	return stats, nil
}
