package service

import (
	"context"
	"errors"
	"time"

	"github.com/roylee0704/gron"
	"github.com/rs/zerolog"
)

// TrendWorker runs the trend scorer on a fixed schedule.
type TrendWorker struct {
	scorer   *TrendScorer
	interval time.Duration
	timeout  time.Duration
	cron     *gron.Cron
	log      zerolog.Logger
}

// NewTrendWorker creates a worker that recomputes every interval.
func NewTrendWorker(scorer *TrendScorer, interval time.Duration, log zerolog.Logger) *TrendWorker {
	return &TrendWorker{
		scorer:   scorer,
		interval: interval,
		timeout:  interval / 2,
		log:      log,
	}
}

// Start runs one recompute immediately, then schedules the rest.
func (w *TrendWorker) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Msg("trend-worker: starting")

	go w.tick(ctx)

	w.cron = gron.New()
	w.cron.AddFunc(gron.Every(w.interval), func() { w.tick(ctx) })
	w.cron.Start()
}

// Stop halts the schedule. A run already in progress finishes on its own.
func (w *TrendWorker) Stop() {
	if w.cron != nil {
		w.cron.Stop()
	}
	w.log.Info().Msg("trend-worker: stopped")
}

func (w *TrendWorker) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	runCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	res, err := w.scorer.Recompute(runCtx)
	if errors.Is(err, ErrRecomputeRunning) {
		w.log.Info().Msg("trend-worker: previous run still in progress, skipping")
		return
	}
	if err != nil {
		w.log.Error().Err(err).Msg("trend-worker: recompute failed")
		return
	}
	w.log.Info().
		Int("processed", res.ProcessedCount).
		Int("failed", res.FailedCount).
		Int64("duration_ms", res.DurationMs).
		Msg("trend-worker: recompute complete")
}
