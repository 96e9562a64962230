package realtime

import (
	"context"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/setlistvote/setlistvote/internal/model"
)

// ChangeHandler consumes decoded vote changes.
type ChangeHandler interface {
	HandleChange(ctx context.Context, change model.VoteChange)
}

// PGListener LISTENs on a Postgres channel and hands each vote change to
// the handler, reconnecting with backoff when the connection drops.
type PGListener struct {
	pool    *pgxpool.Pool
	channel string
	handler ChangeHandler
	policy  BackoffPolicy
	clock   clockwork.Clock
	log     zerolog.Logger
}

// NewPGListener creates a listener. policy.MaxAttempts is ignored: the
// listener retries for as long as ctx lives, with delays capped at
// policy.MaxDelay.
func NewPGListener(pool *pgxpool.Pool, channel string, handler ChangeHandler, policy BackoffPolicy, log zerolog.Logger) *PGListener {
	if policy.Base <= 0 {
		policy = DefaultBackoff
	}
	return &PGListener{
		pool:    pool,
		channel: channel,
		handler: handler,
		policy:  policy,
		clock:   clockwork.NewRealClock(),
		log:     log,
	}
}

// Start blocks until ctx is cancelled.
func (l *PGListener) Start(ctx context.Context) {
	l.log.Info().Str("channel", l.channel).Msg("pg-listener: starting")

	attempt := 0
	for {
		err := l.listenLoop(ctx, &attempt)
		if ctx.Err() != nil {
			l.log.Info().Msg("pg-listener: stopping (context cancelled)")
			return
		}
		attempt++
		delay := l.policy.Delay(attempt)
		l.log.Warn().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("pg-listener: listen error, reconnecting")
		select {
		case <-l.clock.After(delay):
		case <-ctx.Done():
			l.log.Info().Msg("pg-listener: stopping (context cancelled)")
			return
		}
	}
}

func (l *PGListener) listenLoop(ctx context.Context, attempt *int) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.channel}.Sanitize()); err != nil {
		return err
	}
	*attempt = 0
	l.log.Info().Str("channel", l.channel).Msg("pg-listener: listening")

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		var change model.VoteChange
		if err := json.Unmarshal([]byte(n.Payload), &change); err != nil {
			l.log.Warn().Err(err).Str("payload", n.Payload).Msg("pg-listener: bad payload")
			continue
		}
		l.handler.HandleChange(ctx, change)
	}
}
