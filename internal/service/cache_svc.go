package service

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"

	"github.com/setlistvote/setlistvote/internal/metrics"
)

// Cache key namespaces.
const (
	SetlistVotesPrefix = "votes:setlist:"
	UserStatsPrefix    = "stats:user:"
)

// SetlistVotesKey is the cache key for a setlist's vote counts.
func SetlistVotesKey(setlistID string) string {
	return SetlistVotesPrefix + setlistID
}

// UserStatsKey is the cache key for a user's stats on one show.
func UserStatsKey(userID, showID string) string {
	return UserStatsPrefix + userID + ":" + showID
}

// genStripes is the number of invalidation counters keys are spread over.
const genStripes = 256

// CacheService is a fixed-capacity LRU with per-entry TTL for hot reads.
// Values are stored JSON-encoded so callers never share memory with the
// cache. It is an optimization only: a nil or empty cache changes latency,
// never results.
//
// Readers that fill the cache from the store take a Token before the store
// read and fill with SetIfCurrent, which refuses the value if the key was
// invalidated in between.
type CacheService struct {
	lru *expirable.LRU[string, []byte]
	log zerolog.Logger

	mu   sync.Mutex
	gens [genStripes]uint64
}

// Token is the invalidation generation of a key at some instant.
type Token uint64

func stripe(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % genStripes)
}

// NewCacheService creates a cache holding at most size entries, each living
// for ttl. A size of zero or less disables caching.
func NewCacheService(size int, ttl time.Duration, log zerolog.Logger) *CacheService {
	if size <= 0 {
		log.Info().Msg("cache: disabled")
		return &CacheService{log: log}
	}
	log.Info().Int("size", size).Dur("ttl", ttl).Msg("cache: enabled")
	return &CacheService{
		lru: expirable.NewLRU[string, []byte](size, nil, ttl),
		log: log,
	}
}

// Get decodes the cached value for key into dst. It reports false on a miss,
// an expired entry or a decode failure.
func (c *CacheService) Get(_ context.Context, key string, dst any) bool {
	if c == nil || c.lru == nil {
		return false
	}
	data, ok := c.lru.Get(key)
	if !ok {
		metrics.CacheMisses.Inc()
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache: decode failed, dropping entry")
		c.lru.Remove(key)
		return false
	}
	metrics.CacheHits.Inc()
	return true
}

// Set stores value under key.
func (c *CacheService) Set(_ context.Context, key string, value any) error {
	if c == nil || c.lru == nil {
		return nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.lru.Add(key, b)
	return nil
}

// Token returns the current invalidation generation of key.
func (c *CacheService) Token(key string) Token {
	if c == nil || c.lru == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return Token(c.gens[stripe(key)])
}

// SetIfCurrent stores value under key only if key has not been invalidated
// since tok was taken. It reports whether the value was stored.
func (c *CacheService) SetIfCurrent(_ context.Context, key string, tok Token, value any) (bool, error) {
	if c == nil || c.lru == nil {
		return false, nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if Token(c.gens[stripe(key)]) != tok {
		metrics.CacheStaleFills.Inc()
		return false, nil
	}
	c.lru.Add(key, b)
	return true, nil
}

// Invalidate removes key. Invalidating an absent key is a no-op apart from
// failing any SetIfCurrent still in flight for it.
func (c *CacheService) Invalidate(_ context.Context, key string) {
	if c == nil || c.lru == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[stripe(key)]++
	c.lru.Remove(key)
}

// InvalidatePattern removes every key starting with prefix and returns the
// number of entries removed.
func (c *CacheService) InvalidatePattern(_ context.Context, prefix string) int {
	if c == nil || c.lru == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.gens {
		c.gens[i]++
	}
	removed := 0
	for _, key := range c.lru.Keys() {
		if strings.HasPrefix(key, prefix) && c.lru.Remove(key) {
			removed++
		}
	}
	return removed
}

// Len returns the number of live entries.
func (c *CacheService) Len() int {
	if c == nil || c.lru == nil {
		return 0
	}
	return c.lru.Len()
}
