package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/setlistvote/setlistvote/internal/model"
	"github.com/setlistvote/setlistvote/internal/repository"
)

var testNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

type recordingAnnouncer struct {
	mu      sync.Mutex
	changes []model.VoteChange
}

func (a *recordingAnnouncer) Announce(_ context.Context, c model.VoteChange) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.changes = append(a.changes, c)
}

func (a *recordingAnnouncer) all() []model.VoteChange {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]model.VoteChange(nil), a.changes...)
}

type recordingNotifier struct {
	recordingAnnouncer
	err error
}

func (n *recordingNotifier) Notify(ctx context.Context, c model.VoteChange) error {
	n.Announce(ctx, c)
	return n.err
}

type recordingSink struct {
	mu     sync.Mutex
	events []model.VoteEvent
}

func (s *recordingSink) PublishVoteEvent(_ context.Context, ev model.VoteEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

type fixture struct {
	clock     *clockwork.FakeClock
	store     *repository.MemoryStore
	counters  *repository.MemoryCounterStore
	cache     *CacheService
	announcer *recordingAnnouncer
	svc       *VoteService
	setlists  *SetlistService
}

type fixtureOpts struct {
	dailyLimit int
	showLimit  int
	rateLimit  int
	store      VoteStore
	deps       func(*VoteDeps)
}

// seedStore creates show-1 (setlist sl-1, songs ss-1..ss-12) and show-2
// (setlist sl-2, songs sl2-ss-1..sl2-ss-5), both upcoming.
func seedStore(clock clockwork.Clock) *repository.MemoryStore {
	store := repository.NewMemoryStore()
	for _, sh := range []struct {
		show, setlist, prefix string
		songs                 int
	}{
		{"show-1", "sl-1", "", 12},
		{"show-2", "sl-2", "sl2-", 5},
	} {
		store.AddShow(model.Show{ID: sh.show, Date: clock.Now().Add(5 * 24 * time.Hour), Status: model.ShowStatusUpcoming})
		store.AddSetlist(sh.setlist, sh.show)
		for i := 1; i <= sh.songs; i++ {
			store.AddSetlistSong(model.SetlistSong{
				ID:        fmt.Sprintf("%sss-%d", sh.prefix, i),
				SetlistID: sh.setlist,
				SongID:    fmt.Sprintf("%ssong-%d", sh.prefix, i),
				Position:  i,
			})
		}
	}
	return store
}

func newFixture(t *testing.T, opts fixtureOpts) *fixture {
	t.Helper()
	if opts.dailyLimit == 0 {
		opts.dailyLimit = 50
	}
	if opts.showLimit == 0 {
		opts.showLimit = 10
	}
	if opts.rateLimit == 0 {
		opts.rateLimit = 1000
	}

	f := &fixture{clock: clockwork.NewFakeClockAt(testNow)}
	f.store = seedStore(f.clock)
	f.counters = repository.NewMemoryCounterStore(f.clock)
	f.cache = NewCacheService(100, time.Hour, zerolog.Nop())
	f.announcer = &recordingAnnouncer{}

	var store VoteStore = f.store
	if opts.store != nil {
		store = opts.store
	}
	deps := VoteDeps{
		Store:      store,
		Limiter:    NewRateLimiter(f.counters, opts.rateLimit, time.Minute),
		Cache:      f.cache,
		Announcer:  f.announcer,
		Clock:      f.clock,
		DailyLimit: opts.dailyLimit,
		ShowLimit:  opts.showLimit,
		Logger:     zerolog.Nop(),
	}
	if opts.deps != nil {
		opts.deps(&deps)
	}
	f.svc = NewVoteService(deps)
	f.setlists = NewSetlistService(store, f.cache, f.clock, zerolog.Nop())
	return f
}

// castReq votes on song n of show-1.
func castReq(userID string, n int) model.CastVoteRequest {
	return model.CastVoteRequest{
		UserID:        userID,
		ShowID:        "show-1",
		SongID:        fmt.Sprintf("song-%d", n),
		SetlistSongID: fmt.Sprintf("ss-%d", n),
	}
}

// failingStore wraps a VoteStore and fails the named operations.
type failingStore struct {
	VoteStore
	failCast   error
	failCount  error
	failDelete error
}

func (s *failingStore) CastVote(ctx context.Context, p model.CastVoteParams) (*model.CastVoteResult, error) {
	if s.failCast != nil {
		return nil, s.failCast
	}
	return s.VoteStore.CastVote(ctx, p)
}

func (s *failingStore) CountUserVotes(ctx context.Context, userID, showID string, since time.Time) (int, int, error) {
	if s.failCount != nil {
		return 0, 0, s.failCount
	}
	return s.VoteStore.CountUserVotes(ctx, userID, showID, since)
}

func (s *failingStore) DeleteVote(ctx context.Context, p model.DeleteVoteParams) (*model.DeleteVoteResult, error) {
	if s.failDelete != nil {
		return nil, s.failDelete
	}
	return s.VoteStore.DeleteVote(ctx, p)
}
