package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/setlistvote/setlistvote/internal/model"
)

// State is a subscription's connection state.
type State int

const (
	StateConnecting State = iota
	StateOpen
	StateBackoff
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	case StateBackoff:
		return "BACKOFF"
	case StateFailed:
		return "FAILED"
	case StateClosed:
		return "CLOSED"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ErrRetriesExhausted is the terminal error of a FAILED subscription.
var ErrRetriesExhausted = errors.New("realtime: reconnect attempts exhausted")

// BackoffPolicy computes reconnect delays. The delay for attempt n (n >= 1)
// is Base * 2^(n-1), capped at MaxDelay when set.
type BackoffPolicy struct {
	Base        time.Duration
	MaxAttempts int
	MaxDelay    time.Duration
}

// DefaultBackoff is 1s doubling, five attempts.
var DefaultBackoff = BackoffPolicy{Base: time.Second, MaxAttempts: 5}

// Delay returns the wait before reconnect attempt n. It is a pure function
// of the policy and n.
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 || p.Base <= 0 {
		return 0
	}
	shift := attempt - 1
	if shift > 30 {
		shift = 30
	}
	d := p.Base << shift
	if p.MaxDelay > 0 && (d <= 0 || d > p.MaxDelay) {
		return p.MaxDelay
	}
	return d
}

// Transition is reported on every state change.
type Transition struct {
	State   State
	Attempt int
	Delay   time.Duration
	Err     error
}

// SubscribeOptions tunes a Subscription.
type SubscribeOptions struct {
	Backoff  BackoffPolicy
	Clock    clockwork.Clock
	OnChange func(Transition)
}

// Subscription keeps a stream on one topic open across transport failures.
type Subscription struct {
	transport Transport
	topic     string
	handler   func(model.Event)
	policy    BackoffPolicy
	clock     clockwork.Clock
	onChange  func(Transition)

	mu      sync.Mutex
	state   State
	attempt int
	err     error

	lastVersion map[string]int64

	cancel context.CancelFunc
	done   chan struct{}
}

// Subscribe starts a subscription on topic. handler is called from the
// subscription's goroutine, in delivery order.
func Subscribe(ctx context.Context, t Transport, topic string, handler func(model.Event), opts SubscribeOptions) *Subscription {
	if opts.Backoff.Base <= 0 {
		opts.Backoff = DefaultBackoff
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &Subscription{
		transport:   t,
		topic:       topic,
		handler:     handler,
		policy:      opts.Backoff,
		clock:       opts.Clock,
		onChange:    opts.OnChange,
		lastVersion: make(map[string]int64),
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	go s.run(ctx)
	return s
}

// State returns the current state and, while in BACKOFF, the attempt number.
func (s *Subscription) State() (State, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.attempt
}

// Err returns the terminal error once the subscription has FAILED.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Done is closed when the subscription stops for good.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Close stops the subscription and waits for its goroutine.
func (s *Subscription) Close() {
	s.cancel()
	<-s.done
}

func (s *Subscription) run(ctx context.Context) {
	defer close(s.done)

	attempt := 0
	for {
		s.transition(Transition{State: StateConnecting, Attempt: attempt})
		stream, err := s.transport.Open(ctx, s.topic)
		if err == nil {
			attempt = 0
			s.transition(Transition{State: StateOpen})
			err = s.pump(ctx, stream)
			stream.Close()
		}
		if ctx.Err() != nil {
			s.transition(Transition{State: StateClosed})
			return
		}

		attempt++
		if attempt > s.policy.MaxAttempts {
			s.transition(Transition{
				State:   StateFailed,
				Attempt: attempt - 1,
				Err:     fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, attempt-1, err),
			})
			return
		}

		delay := s.policy.Delay(attempt)
		s.transition(Transition{State: StateBackoff, Attempt: attempt, Delay: delay, Err: err})
		select {
		case <-s.clock.After(delay):
		case <-ctx.Done():
			s.transition(Transition{State: StateClosed})
			return
		}
	}
}

func (s *Subscription) pump(ctx context.Context, stream Stream) error {
	for {
		ev, err := stream.Recv(ctx)
		if err != nil {
			return err
		}
		if ev.Vote != nil {
			if ev.Vote.Version <= s.lastVersion[ev.Vote.SetlistSongID] {
				continue
			}
			s.lastVersion[ev.Vote.SetlistSongID] = ev.Vote.Version
		}
		if s.handler != nil {
			s.handler(ev)
		}
	}
}

func (s *Subscription) transition(t Transition) {
	s.mu.Lock()
	s.state = t.State
	s.attempt = t.Attempt
	if t.State == StateFailed {
		s.err = t.Err
	}
	s.mu.Unlock()

	if s.onChange != nil {
		s.onChange(t)
	}
}
