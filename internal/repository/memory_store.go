package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/setlistvote/setlistvote/internal/model"
)

type userSong struct{ userID, setlistSongID string }
type userShow struct{ userID, showID string }

type analytics struct {
	dailyVotes int
	showVotes  int
	voteDay    time.Time
	lastVoteAt time.Time
}

type memSetlist struct {
	showID string
	songs  []string
}

// MemoryStore is an in-process implementation of the vote and show stores.
// A single mutex scopes every transaction, which makes it suitable for
// development and tests but not for more than one instance.
type MemoryStore struct {
	mu sync.Mutex

	shows        map[string]*model.Show
	setlists     map[string]*memSetlist
	setlistSongs map[string]*model.SetlistSong
	votes        map[string]*model.Vote
	byUserSong   map[userSong]string
	analytics    map[userShow]*analytics
	views        map[string][]time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		shows:        make(map[string]*model.Show),
		setlists:     make(map[string]*memSetlist),
		setlistSongs: make(map[string]*model.SetlistSong),
		votes:        make(map[string]*model.Vote),
		byUserSong:   make(map[userSong]string),
		analytics:    make(map[userShow]*analytics),
		views:        make(map[string][]time.Time),
	}
}

// AddShow registers a show.
func (s *MemoryStore) AddShow(show model.Show) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := show
	s.shows[show.ID] = &cp
}

// AddSetlist registers a setlist for a show.
func (s *MemoryStore) AddSetlist(setlistID, showID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.setlists[setlistID]; !ok {
		s.setlists[setlistID] = &memSetlist{showID: showID}
	}
}

// AddSetlistSong registers a song position on an existing setlist.
func (s *MemoryStore) AddSetlistSong(song model.SetlistSong) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.setlists[song.SetlistID]
	if !ok {
		return
	}
	cp := song
	s.setlistSongs[song.ID] = &cp
	sl.songs = append(sl.songs, song.ID)
}

// Show returns a copy of a show, for inspection.
func (s *MemoryStore) Show(showID string) (model.Show, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.shows[showID]
	if !ok {
		return model.Show{}, false
	}
	return *sh, true
}

// VoteCount returns the counter of a setlist song together with the number
// of vote records pointing at it.
func (s *MemoryStore) VoteCount(setlistSongID string) (counter, records int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ss, ok := s.setlistSongs[setlistSongID]; ok {
		counter = ss.VoteCount
	}
	for _, v := range s.votes {
		if v.SetlistSongID == setlistSongID {
			records++
		}
	}
	return counter, records
}

func (s *MemoryStore) CastVote(_ context.Context, p model.CastVoteParams) (*model.CastVoteResult, error) {
	v := p.Vote

	s.mu.Lock()
	defer s.mu.Unlock()

	ss, ok := s.setlistSongs[v.SetlistSongID]
	if !ok {
		return nil, ErrNotFound
	}
	sl := s.setlists[ss.SetlistID]
	if sl == nil || sl.showID != v.ShowID || ss.SongID != v.SongID {
		return nil, ErrNotFound
	}

	daily, show := s.countLocked(v.UserID, v.ShowID, p.DayStart)
	if daily >= p.DailyLimit {
		return nil, &QuotaError{Scope: "daily", Used: daily, Limit: p.DailyLimit}
	}
	if show >= p.ShowLimit {
		return nil, &QuotaError{Scope: "show", Used: show, Limit: p.ShowLimit}
	}

	key := userSong{v.UserID, v.SetlistSongID}
	if _, dup := s.byUserSong[key]; dup {
		return nil, ErrDuplicateVote
	}

	cp := v
	s.votes[v.ID] = &cp
	s.byUserSong[key] = v.ID
	ss.VoteCount++
	ss.Version++

	ak := userShow{v.UserID, v.ShowID}
	a, ok := s.analytics[ak]
	if !ok {
		a = &analytics{}
		s.analytics[ak] = a
	}
	if a.voteDay.Equal(p.DayStart) {
		a.dailyVotes++
	} else {
		a.dailyVotes = 1
	}
	a.showVotes++
	a.voteDay = p.DayStart
	a.lastVoteAt = v.CastAt

	return &model.CastVoteResult{
		Vote:         v,
		SetlistID:    ss.SetlistID,
		NewVoteCount: ss.VoteCount,
		Version:      ss.Version,
		DailyVotes:   daily + 1,
		ShowVotes:    show + 1,
	}, nil
}

func (s *MemoryStore) DeleteVote(_ context.Context, p model.DeleteVoteParams) (*model.DeleteVoteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.votes[p.VoteID]
	if !ok || v.UserID != p.UserID || v.CastAt.Before(p.NotBefore) {
		return nil, ErrNotFound
	}
	ss := s.setlistSongs[v.SetlistSongID]

	delete(s.votes, v.ID)
	delete(s.byUserSong, userSong{v.UserID, v.SetlistSongID})
	if ss.VoteCount > 0 {
		ss.VoteCount--
	}
	ss.Version++

	if a, ok := s.analytics[userShow{v.UserID, v.ShowID}]; ok {
		if a.showVotes > 0 {
			a.showVotes--
		}
		if a.voteDay.Equal(dayOf(v.CastAt)) && a.dailyVotes > 0 {
			a.dailyVotes--
		}
	}

	return &model.DeleteVoteResult{
		Vote:         *v,
		SetlistID:    ss.SetlistID,
		NewVoteCount: ss.VoteCount,
		Version:      ss.Version,
	}, nil
}

func (s *MemoryStore) GetVote(_ context.Context, voteID string) (*model.Vote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.votes[voteID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (s *MemoryStore) CountUserVotes(_ context.Context, userID, showID string, since time.Time) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	daily, show := s.countLocked(userID, showID, since)
	return daily, show, nil
}

func (s *MemoryStore) countLocked(userID, showID string, since time.Time) (daily, show int) {
	for _, v := range s.votes {
		if v.UserID != userID {
			continue
		}
		if !v.CastAt.Before(since) {
			daily++
		}
		if v.ShowID == showID {
			show++
		}
	}
	return daily, show
}

func (s *MemoryStore) UserStats(_ context.Context, userID, showID string, dayStart time.Time) (*model.UserVoteStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := &model.UserVoteStats{UserID: userID, ShowID: showID}
	a, ok := s.analytics[userShow{userID, showID}]
	if !ok {
		return stats, nil
	}
	stats.ShowVotes = a.showVotes
	if !a.voteDay.Before(dayStart) {
		stats.DailyVotes = a.dailyVotes
	}
	last := a.lastVoteAt
	stats.LastVoteAt = &last
	return stats, nil
}

func (s *MemoryStore) SetlistSongs(_ context.Context, setlistID string) ([]model.SetlistSong, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.setlists[setlistID]
	if !ok {
		return nil, ErrNotFound
	}
	songs := make([]model.SetlistSong, 0, len(sl.songs))
	for _, id := range sl.songs {
		songs = append(songs, *s.setlistSongs[id])
	}
	sort.Slice(songs, func(i, j int) bool { return songs[i].Position < songs[j].Position })
	return songs, nil
}

func (s *MemoryStore) RecentVotes(_ context.Context, setlistSongID string, since time.Time) ([]model.VoteSample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.VoteSample
	for _, v := range s.votes {
		if v.SetlistSongID == setlistSongID && !v.CastAt.Before(since) {
			out = append(out, model.VoteSample{CastAt: v.CastAt, Confidence: v.Confidence})
		}
	}
	return out, nil
}

func (s *MemoryStore) ShowTotals(_ context.Context, showID string, activeSince time.Time) (*model.ShowTotals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.shows[showID]
	if !ok {
		return nil, ErrNotFound
	}
	t := &model.ShowTotals{ShowID: showID, TrendingScore: sh.TrendingScore}
	active := make(map[string]struct{})
	for _, v := range s.votes {
		if v.ShowID != showID {
			continue
		}
		t.TotalVotes++
		if !v.CastAt.Before(activeSince) {
			active[v.UserID] = struct{}{}
		}
	}
	t.ActiveVoters = int64(len(active))
	return t, nil
}

func (s *MemoryStore) TrendCandidates(_ context.Context, from time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, sh := range s.shows {
		if isCandidate(sh, from) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func isCandidate(sh *model.Show, from time.Time) bool {
	if sh.Status != model.ShowStatusUpcoming && sh.Status != model.ShowStatusOngoing {
		return false
	}
	return !sh.Date.Before(from)
}

func (s *MemoryStore) ShowMetrics(_ context.Context, showID string, now, recentSince time.Time) (*model.ShowMetrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.shows[showID]
	if !ok {
		return nil, ErrNotFound
	}
	m := &model.ShowMetrics{ShowID: showID, ViewCount: sh.ViewCount, DaysUntilShow: DaysUntil(now, sh.Date)}

	voters := make(map[string]struct{})
	for _, v := range s.votes {
		if v.ShowID != showID {
			continue
		}
		m.VoteCount++
		voters[v.UserID] = struct{}{}
		if !v.CastAt.Before(recentSince) {
			m.RecentVotes++
		}
	}
	m.UniqueVoters = int64(len(voters))

	var songs, total int
	for _, sl := range s.setlists {
		if sl.showID != showID {
			continue
		}
		for _, id := range sl.songs {
			songs++
			total += s.setlistSongs[id].VoteCount
		}
	}
	if songs > 0 {
		m.AvgVotesPerSong = float64(total) / float64(songs)
	}

	for _, at := range s.views[showID] {
		if !at.Before(recentSince) {
			m.RecentViews++
		}
	}
	return m, nil
}

func (s *MemoryStore) WriteTrendingScores(_ context.Context, scores []model.TrendingScore) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ts := range scores {
		if sh, ok := s.shows[ts.ShowID]; ok {
			sh.TrendingScore = ts.Score
		}
	}
	return nil
}

func (s *MemoryStore) TopTrending(_ context.Context, from time.Time, limit int) ([]model.TrendingScore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.TrendingScore
	for _, sh := range s.shows {
		if isCandidate(sh, from) {
			out = append(out, model.TrendingScore{ShowID: sh.ID, Score: sh.TrendingScore})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ShowID < out[j].ShowID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) RecordView(_ context.Context, showID string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.shows[showID]
	if !ok {
		return 0, ErrNotFound
	}
	sh.ViewCount++
	s.views[showID] = append(s.views[showID], at)
	return sh.ViewCount, nil
}
