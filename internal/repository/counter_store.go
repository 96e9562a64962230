package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
)

// fixedWindowScript increments the counter and sets its expiry only on the
// first increment of a window, so later hits share that window.
var fixedWindowScript = redis.NewScript(`
	local n = redis.call('INCR', KEYS[1])
	if n == 1 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
	end
	local ttl = redis.call('PTTL', KEYS[1])
	if ttl < 0 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
		ttl = tonumber(ARGV[1])
	end
	return { n, ttl }
`)

// RedisCounterStore keeps fixed-window counters in Redis so every instance
// shares the same budget.
type RedisCounterStore struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisCounterStore wraps an existing Redis client.
func NewRedisCounterStore(rdb *redis.Client, prefix string) *RedisCounterStore {
	return &RedisCounterStore{rdb: rdb, prefix: prefix}
}

// Incr adds one to key and returns the new count with the window's
// remaining lifetime.
func (s *RedisCounterStore) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	vals, err := fixedWindowScript.Run(ctx, s.rdb, []string{s.prefix + ":" + key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, 0, fmt.Errorf("counter incr %s: %w", key, err)
	}
	if len(vals) != 2 {
		return 0, 0, fmt.Errorf("counter incr %s: unexpected script result %v", key, vals)
	}
	return vals[0], time.Duration(vals[1]) * time.Millisecond, nil
}

// entry tracks the count and window end for a single key.
type entry struct {
	count     int64
	windowEnd time.Time
}

// MemoryCounterStore is the single-instance counter store.
type MemoryCounterStore struct {
	mu      sync.Mutex
	entries map[string]*entry
	clock   clockwork.Clock
}

// NewMemoryCounterStore creates an in-memory counter store.
func NewMemoryCounterStore(clock clockwork.Clock) *MemoryCounterStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryCounterStore{
		entries: make(map[string]*entry),
		clock:   clock,
	}
}

func (s *MemoryCounterStore) Incr(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	e, exists := s.entries[key]
	if !exists || !now.Before(e.windowEnd) {
		e = &entry{windowEnd: now.Add(window)}
		s.entries[key] = e
	}
	e.count++
	return e.count, e.windowEnd.Sub(now), nil
}

// Sweep drops expired windows and returns how many were removed.
func (s *MemoryCounterStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	removed := 0
	for key, e := range s.entries {
		if !now.Before(e.windowEnd) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// Run sweeps expired windows every interval until ctx is done.
func (s *MemoryCounterStore) Run(ctx context.Context, interval time.Duration) {
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.Chan():
			s.Sweep()
		case <-ctx.Done():
			return
		}
	}
}
