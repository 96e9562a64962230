package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/setlistvote/setlistvote/internal/metrics"
	"github.com/setlistvote/setlistvote/internal/model"
)

var (
	// ErrHubClosed is returned once the hub has shut down.
	ErrHubClosed = errors.New("realtime: hub closed")
	// ErrSlowConsumer ends a stream whose buffer overflowed.
	ErrSlowConsumer = errors.New("realtime: subscriber too slow, stream dropped")
	// ErrStreamClosed is returned by Recv after Close.
	ErrStreamClosed = errors.New("realtime: stream closed")
)

// SetlistTopic is the channel name for a setlist.
func SetlistTopic(setlistID string) string { return "setlist:" + setlistID }

// ShowTopic is the channel name for a show.
func ShowTopic(showID string) string { return "show:" + showID }

// Stream is one open attachment to a topic.
type Stream interface {
	Recv(ctx context.Context) (model.Event, error)
	Close() error
}

// Transport opens streams on topics.
type Transport interface {
	Open(ctx context.Context, topic string) (Stream, error)
}

type channel struct {
	subs        map[uint64]*hubStream
	lastVersion map[string]int64
	idleSince   time.Time
}

// Hub is the in-process pub/sub channel registry. It implements Transport.
type Hub struct {
	mu       sync.Mutex
	channels map[string]*channel
	nextID   uint64
	closed   bool

	clock   clockwork.Clock
	idleTTL time.Duration
	bufSize int
}

// NewHub creates a hub. Channels idle for idleTTL are removed by Sweep;
// each stream buffers up to bufSize events.
func NewHub(clock clockwork.Clock, idleTTL time.Duration, bufSize int) *Hub {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if bufSize <= 0 {
		bufSize = 64
	}
	return &Hub{
		channels: make(map[string]*channel),
		clock:    clock,
		idleTTL:  idleTTL,
		bufSize:  bufSize,
	}
}

// Open attaches a new stream to topic, creating the channel on demand.
func (h *Hub) Open(_ context.Context, topic string) (Stream, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHubClosed
	}
	ch, ok := h.channels[topic]
	if !ok {
		ch = &channel{
			subs:        make(map[uint64]*hubStream),
			lastVersion: make(map[string]int64),
		}
		h.channels[topic] = ch
	}

	h.nextID++
	s := &hubStream{
		id:     h.nextID,
		topic:  topic,
		hub:    h,
		events: make(chan model.Event, h.bufSize),
		done:   make(chan struct{}),
	}
	ch.subs[s.id] = s
	metrics.Subscribers.Inc()
	return s, nil
}

// Publish delivers ev to every stream on ev.Topic and returns how many
// streams received it. Topics without a channel are ignored. A VoteUpdate
// whose version is not newer than the last one delivered for that song is
// dropped.
func (h *Hub) Publish(ev model.Event) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch, ok := h.channels[ev.Topic]
	if !ok || h.closed {
		return 0
	}
	if ev.Vote != nil {
		if ev.Vote.Version <= ch.lastVersion[ev.Vote.SetlistSongID] {
			metrics.EventsDropped.Inc()
			return 0
		}
		ch.lastVersion[ev.Vote.SetlistSongID] = ev.Vote.Version
	}

	delivered := 0
	for id, s := range ch.subs {
		select {
		case s.events <- ev:
			delivered++
		default:
			metrics.EventsDropped.Inc()
			h.detachLocked(ch, id)
			s.finish(ErrSlowConsumer)
		}
	}
	metrics.EventsPublished.WithLabelValues(ev.Type).Inc()
	return delivered
}

// HasSubscribers reports whether any stream is open on topic.
func (h *Hub) HasSubscribers(topic string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch, ok := h.channels[topic]
	return ok && len(ch.subs) > 0
}

// Channels returns the number of live channels.
func (h *Hub) Channels() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.channels)
}

// Sweep removes channels that have had no subscriber for the idle period
// and returns how many were removed.
func (h *Hub) Sweep() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.clock.Now()
	removed := 0
	for topic, ch := range h.channels {
		if len(ch.subs) == 0 && now.Sub(ch.idleSince) >= h.idleTTL {
			delete(h.channels, topic)
			removed++
		}
	}
	return removed
}

// Run sweeps idle channels every interval until ctx is done.
func (h *Hub) Run(ctx context.Context, interval time.Duration) {
	ticker := h.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.Chan():
			h.Sweep()
		case <-ctx.Done():
			return
		}
	}
}

// Close ends every stream and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for _, ch := range h.channels {
		for id, s := range ch.subs {
			h.detachLocked(ch, id)
			s.finish(ErrHubClosed)
		}
	}
	h.channels = make(map[string]*channel)
}

func (h *Hub) detach(s *hubStream) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.channels[s.topic]; ok {
		if _, attached := ch.subs[s.id]; attached {
			h.detachLocked(ch, s.id)
		}
	}
}

func (h *Hub) detachLocked(ch *channel, id uint64) {
	delete(ch.subs, id)
	metrics.Subscribers.Dec()
	if len(ch.subs) == 0 {
		ch.idleSince = h.clock.Now()
	}
}

type hubStream struct {
	id     uint64
	topic  string
	hub    *Hub
	events chan model.Event

	once sync.Once
	done chan struct{}
	err  error
}

func (s *hubStream) Recv(ctx context.Context) (model.Event, error) {
	select {
	case ev := <-s.events:
		return ev, nil
	case <-s.done:
		return model.Event{}, s.err
	case <-ctx.Done():
		return model.Event{}, ctx.Err()
	}
}

func (s *hubStream) Close() error {
	s.hub.detach(s)
	s.finish(ErrStreamClosed)
	return nil
}

func (s *hubStream) finish(err error) {
	s.once.Do(func() {
		s.err = err
		close(s.done)
	})
}
