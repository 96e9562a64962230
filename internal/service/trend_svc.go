package service

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/setlistvote/setlistvote/internal/metrics"
	"github.com/setlistvote/setlistvote/internal/model"
)

// Trend scorer windows.
const (
	RecentWindow   = 7 * 24 * time.Hour
	TopTrendingLen = 10
)

// ErrRecomputeRunning is returned when a recompute is requested while
// another one is still in progress.
var ErrRecomputeRunning = errors.New("trend recompute already running")

// TrendBreakdown is the scoring of one show, factor by factor.
type TrendBreakdown struct {
	VisibilityScore float64
	EngagementScore float64
	RecencyScore    float64
	BaseScore       float64
	TimeMultiplier  float64
	TrendingScore   float64
}

// CandidatesFrom is the earliest show date the scorer considers at now.
// Scoring and top-N reads share it so both see the same set of shows.
func CandidatesFrom(now time.Time) time.Time {
	return DayStart(now).Add(-24 * time.Hour)
}

// TimeMultiplier weights shows by how soon they happen.
func TimeMultiplier(daysUntilShow int) float64 {
	switch {
	case daysUntilShow <= 7:
		return 2.0
	case daysUntilShow <= 30:
		return 1.5
	case daysUntilShow <= 90:
		return 1.0
	default:
		return 0.5
	}
}

// ScoreShow computes the trending score of one show:
//
//	recency    = recentVotes*2 + recentViews
//	engagement = uniqueVoters*3 + voteCount*0.5 + avgVotesPerSong*2
//	visibility = log10(viewCount+1) * 10
//	base       = visibility*0.2 + engagement*0.5 + recency*0.3
//	trending   = base * timeMultiplier(daysUntilShow)
func ScoreShow(m model.ShowMetrics) TrendBreakdown {
	var b TrendBreakdown
	b.RecencyScore = float64(m.RecentVotes)*2 + float64(m.RecentViews)
	b.EngagementScore = float64(m.UniqueVoters)*3 + float64(m.VoteCount)*0.5 + m.AvgVotesPerSong*2
	b.VisibilityScore = math.Log10(float64(m.ViewCount)+1) * 10
	b.BaseScore = b.VisibilityScore*0.2 + b.EngagementScore*0.5 + b.RecencyScore*0.3
	b.TimeMultiplier = TimeMultiplier(m.DaysUntilShow)
	b.TrendingScore = b.BaseScore * b.TimeMultiplier
	return b
}

// TrendScorer recomputes the trending score of every upcoming or ongoing
// show and writes the whole snapshot back at once.
type TrendScorer struct {
	store ShowStore
	clock clockwork.Clock
	log   zerolog.Logger

	running sync.Mutex
}

func NewTrendScorer(store ShowStore, clock clockwork.Clock, log zerolog.Logger) *TrendScorer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &TrendScorer{store: store, clock: clock, log: log}
}

// Recompute scores all candidate shows. A failure on one show is logged and
// skipped; only a failure to list candidates or to write the snapshot fails
// the run.
func (t *TrendScorer) Recompute(ctx context.Context) (*model.TrendRecomputeResult, error) {
	if !t.running.TryLock() {
		return nil, ErrRecomputeRunning
	}
	defer t.running.Unlock()

	start := t.clock.Now()
	now := start.UTC()

	ids, err := t.store.TrendCandidates(ctx, CandidatesFrom(now))
	if err != nil {
		return nil, err
	}

	scores := make([]model.TrendingScore, 0, len(ids))
	failed := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		m, err := t.store.ShowMetrics(ctx, id, now, now.Add(-RecentWindow))
		if err != nil {
			failed++
			metrics.TrendShowsProcessed.WithLabelValues("failed").Inc()
			t.log.Warn().Err(err).Str("show_id", id).Msg("trend: scoring failed, skipping show")
			continue
		}
		b := ScoreShow(*m)
		if math.IsNaN(b.TrendingScore) || math.IsInf(b.TrendingScore, 0) {
			failed++
			metrics.TrendShowsProcessed.WithLabelValues("failed").Inc()
			t.log.Warn().Str("show_id", id).Msg("trend: non-finite score, skipping show")
			continue
		}
		scores = append(scores, model.TrendingScore{ShowID: id, Score: b.TrendingScore})
		metrics.TrendShowsProcessed.WithLabelValues("scored").Inc()
	}

	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		return scores[i].ShowID < scores[j].ShowID
	})

	if err := t.store.WriteTrendingScores(ctx, scores); err != nil {
		return nil, err
	}

	elapsed := t.clock.Since(start)
	metrics.TrendRecomputeDuration.Observe(elapsed.Seconds())

	top := scores
	if len(top) > TopTrendingLen {
		top = top[:TopTrendingLen]
	}
	return &model.TrendRecomputeResult{
		ProcessedCount: len(scores),
		FailedCount:    failed,
		TopTrending:    append([]model.TrendingScore{}, top...),
		DurationMs:     elapsed.Milliseconds(),
	}, nil
}

// TopTrending reads the stored ranking of the current candidate shows.
func (t *TrendScorer) TopTrending(ctx context.Context, limit int) ([]model.TrendingScore, error) {
	if limit <= 0 || limit > 100 {
		limit = TopTrendingLen
	}
	top, err := t.store.TopTrending(ctx, CandidatesFrom(t.clock.Now()), limit)
	if err != nil {
		return nil, transient("trend.top", "", "", err)
	}
	if top == nil {
		top = []model.TrendingScore{}
	}
	return top, nil
}
