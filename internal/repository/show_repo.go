package repository

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/setlistvote/setlistvote/internal/model"
)

type ShowRepo struct {
	pool *pgxpool.Pool
}

func NewShowRepo(pool *pgxpool.Pool) *ShowRepo {
	return &ShowRepo{pool: pool}
}

// TrendCandidates returns the ids of upcoming or ongoing shows dated on or
// after from.
func (r *ShowRepo) TrendCandidates(ctx context.Context, from time.Time) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id FROM shows
		WHERE status IN ('upcoming', 'ongoing') AND date >= $1`, from)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ShowMetrics gathers the trend inputs for one show.
func (r *ShowRepo) ShowMetrics(ctx context.Context, showID string, now, recentSince time.Time) (*model.ShowMetrics, error) {
	m := &model.ShowMetrics{ShowID: showID}
	var date time.Time
	err := r.pool.QueryRow(ctx, `
		SELECT
			s.view_count,
			s.date,
			(SELECT COUNT(*) FROM votes v WHERE v.show_id = s.id),
			(SELECT COUNT(DISTINCT v.user_id) FROM votes v WHERE v.show_id = s.id),
			(SELECT COALESCE(AVG(ss.vote_count), 0)::float8
			   FROM setlist_songs ss JOIN setlists sl ON sl.id = ss.setlist_id
			  WHERE sl.show_id = s.id),
			(SELECT COUNT(*) FROM votes v WHERE v.show_id = s.id AND v.cast_at >= $2),
			(SELECT COUNT(*) FROM show_views w WHERE w.show_id = s.id AND w.viewed_at >= $2)
		FROM shows s
		WHERE s.id = $1`, showID, recentSince).Scan(
		&m.ViewCount, &date, &m.VoteCount, &m.UniqueVoters, &m.AvgVotesPerSong, &m.RecentVotes, &m.RecentViews)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	m.DaysUntilShow = DaysUntil(now, date)
	return m, nil
}

// WriteTrendingScores applies a whole snapshot in a single statement, so
// readers see either the previous ranking or the new one.
func (r *ShowRepo) WriteTrendingScores(ctx context.Context, scores []model.TrendingScore) error {
	if len(scores) == 0 {
		return nil
	}
	ids := make([]string, len(scores))
	values := make([]float64, len(scores))
	for i, s := range scores {
		ids[i] = s.ShowID
		values[i] = s.Score
	}

	_, err := r.pool.Exec(ctx, `
		UPDATE shows AS s
		SET trending_score = v.score, trending_updated_at = NOW()
		FROM unnest($1::text[], $2::float8[]) AS v(id, score)
		WHERE s.id = v.id`, ids, values)
	return err
}

// TopTrending returns the highest scored shows among the same set
// TrendCandidates selects for from.
func (r *ShowRepo) TopTrending(ctx context.Context, from time.Time, limit int) ([]model.TrendingScore, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, trending_score FROM shows
		WHERE status IN ('upcoming', 'ongoing') AND date >= $1
		ORDER BY trending_score DESC, id
		LIMIT $2`, from, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.TrendingScore
	for rows.Next() {
		var ts model.TrendingScore
		if err := rows.Scan(&ts.ShowID, &ts.Score); err != nil {
			return nil, err
		}
		out = append(out, ts)
	}
	return out, rows.Err()
}

// RecordView bumps the show's view counter and logs a dated view row.
func (r *ShowRepo) RecordView(ctx context.Context, showID string, at time.Time) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	var views int64
	err = tx.QueryRow(ctx, `
		UPDATE shows SET view_count = view_count + 1
		WHERE id = $1
		RETURNING view_count`, showID).Scan(&views)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}

	_, err = tx.Exec(ctx, `INSERT INTO show_views (show_id, viewed_at) VALUES ($1, $2)`, showID, at)
	if err != nil {
		return 0, err
	}
	return views, tx.Commit(ctx)
}

// DaysUntil returns whole days from now until date, floored. Shows already
// under way report zero or less.
func DaysUntil(now, date time.Time) int {
	return int(math.Floor(date.Sub(now).Hours() / 24))
}
