package repository

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCounterStoreWindow(t *testing.T) {
	clock := clockwork.NewFakeClockAt(now)
	s := NewMemoryCounterStore(clock)
	ctx := context.Background()

	n, ttl, err := s.Incr(ctx, "fan-1:vote", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, time.Minute, ttl)

	clock.Advance(20 * time.Second)
	n, ttl, err = s.Incr(ctx, "fan-1:vote", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, 40*time.Second, ttl)

	clock.Advance(40 * time.Second)
	n, ttl, err = s.Incr(ctx, "fan-1:vote", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "a new window starts once the old one ends")
	assert.Equal(t, time.Minute, ttl)
}

func TestMemoryCounterStoreSweep(t *testing.T) {
	clock := clockwork.NewFakeClockAt(now)
	s := NewMemoryCounterStore(clock)
	ctx := context.Background()

	_, _, _ = s.Incr(ctx, "short", time.Second)
	_, _, _ = s.Incr(ctx, "long", time.Hour)

	assert.Zero(t, s.Sweep())
	clock.Advance(time.Second)
	assert.Equal(t, 1, s.Sweep())

	n, _, _ := s.Incr(ctx, "long", time.Hour)
	assert.Equal(t, int64(2), n)
}

func TestMemoryCounterStoreRunStops(t *testing.T) {
	clock := clockwork.NewFakeClockAt(now)
	s := NewMemoryCounterStore(clock)
	_, _, _ = s.Incr(context.Background(), "k", time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx, time.Minute)
		close(done)
	}()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Minute)
	assert.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.entries) == 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
