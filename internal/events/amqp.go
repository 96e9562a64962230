// Package events publishes vote domain events to RabbitMQ.
//
// Publishing is best effort: events are queued in memory and a background
// loop delivers them, redialing the broker with backoff. A full queue or a
// broker outage never fails the vote that produced the event.
package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/setlistvote/setlistvote/internal/model"
)

// DefaultQueue is the durable queue vote events are routed to.
const DefaultQueue = "vote.events"

// ErrQueueFull is returned when the in-memory buffer cannot take an event.
var ErrQueueFull = errors.New("events: publish queue full")

const (
	minRedial = time.Second
	maxRedial = 30 * time.Second
)

// AMQPPublisher delivers VoteEvents to a durable queue.
type AMQPPublisher struct {
	url     string
	queue   string
	pending chan model.VoteEvent
	log     zerolog.Logger
}

// NewAMQPPublisher creates a publisher buffering up to buffer events.
func NewAMQPPublisher(url, queue string, buffer int, log zerolog.Logger) *AMQPPublisher {
	if queue == "" {
		queue = DefaultQueue
	}
	if buffer <= 0 {
		buffer = 1024
	}
	return &AMQPPublisher{
		url:     url,
		queue:   queue,
		pending: make(chan model.VoteEvent, buffer),
		log:     log,
	}
}

// PublishVoteEvent queues ev for delivery without blocking.
func (p *AMQPPublisher) PublishVoteEvent(_ context.Context, ev model.VoteEvent) error {
	select {
	case p.pending <- ev:
		return nil
	default:
		return ErrQueueFull
	}
}

// Pending returns the number of queued events.
func (p *AMQPPublisher) Pending() int { return len(p.pending) }

// Run delivers queued events until ctx is cancelled.
func (p *AMQPPublisher) Run(ctx context.Context) {
	backoff := minRedial
	for {
		conn, err := amqp.Dial(p.url)
		if err != nil {
			p.log.Warn().Err(err).Dur("retry_in", backoff).Msg("amqp: dial failed")
			if !sleep(ctx, backoff) {
				return
			}
			backoff = min(backoff*2, maxRedial)
			continue
		}
		backoff = minRedial

		err = p.publishLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			p.log.Info().Int("undelivered", len(p.pending)).Msg("amqp: publisher stopped")
			return
		}
		p.log.Warn().Err(err).Msg("amqp: publish loop ended, reconnecting")
		if !sleep(ctx, minRedial) {
			return
		}
	}
}

func (p *AMQPPublisher) publishLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	p.log.Info().Str("queue", p.queue).Msg("amqp: publisher connected")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case amqpErr := <-closed:
			return fmt.Errorf("connection closed: %v", amqpErr)
		case ev := <-p.pending:
			msg, err := Encode(ev)
			if err != nil {
				p.log.Error().Err(err).Str("vote_id", ev.VoteID).Msg("amqp: encode failed, dropping event")
				continue
			}
			if err := ch.PublishWithContext(ctx, "", p.queue, false, false, msg); err != nil {
				// Requeue for the next connection if there is room.
				select {
				case p.pending <- ev:
				default:
					p.log.Warn().Str("vote_id", ev.VoteID).Msg("amqp: event lost on publish failure")
				}
				return fmt.Errorf("publish: %w", err)
			}
		}
	}
}

// Encode builds the persistent AMQP message for ev.
func Encode(ev model.VoteEvent) (amqp.Publishing, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return amqp.Publishing{}, err
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Type:         "vote." + ev.Kind,
		MessageId:    ev.VoteID + ":" + ev.Kind,
		Timestamp:    ev.OccurredAt.UTC(),
		Body:         body,
	}, nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
