package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/setlistvote/setlistvote/internal/model"
)

// VoteChangesChannel is the NOTIFY channel carrying committed vote changes.
const VoteChangesChannel = "vote_changes"

const uniqueViolation = "23505"

type VoteRepo struct {
	pool *pgxpool.Pool
}

func NewVoteRepo(pool *pgxpool.Pool) *VoteRepo {
	return &VoteRepo{pool: pool}
}

// CastVote commits one vote atomically: quota re-check, insert under the
// (user_id, setlist_song_id) constraint, counter increment and analytics
// upsert all happen in one transaction. A per-user advisory lock serializes
// concurrent casts from the same user so the quota re-check cannot race.
func (r *VoteRepo) CastVote(ctx context.Context, p model.CastVoteParams) (*model.CastVoteResult, error) {
	v := p.Vote

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, v.UserID)
	if err != nil {
		return nil, err
	}

	// The setlist song must exist and belong to the show and song given.
	var setlistID, showID, songID string
	err = tx.QueryRow(ctx, `
		SELECT ss.setlist_id, sl.show_id, ss.song_id
		FROM setlist_songs ss
		JOIN setlists sl ON sl.id = ss.setlist_id
		WHERE ss.id = $1`, v.SetlistSongID).Scan(&setlistID, &showID, &songID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if showID != v.ShowID || songID != v.SongID {
		return nil, ErrNotFound
	}

	var daily, show int
	err = tx.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE cast_at >= $2),
			COUNT(*) FILTER (WHERE show_id = $3)
		FROM votes
		WHERE user_id = $1`, v.UserID, p.DayStart, v.ShowID).Scan(&daily, &show)
	if err != nil {
		return nil, err
	}
	if daily >= p.DailyLimit {
		return nil, &QuotaError{Scope: "daily", Used: daily, Limit: p.DailyLimit}
	}
	if show >= p.ShowLimit {
		return nil, &QuotaError{Scope: "show", Used: show, Limit: p.ShowLimit}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO votes (id, user_id, setlist_song_id, show_id, song_id, vote_type, confidence, cast_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		v.ID, v.UserID, v.SetlistSongID, v.ShowID, v.SongID, v.VoteType, v.Confidence, v.CastAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrDuplicateVote
		}
		return nil, err
	}

	res := &model.CastVoteResult{Vote: v, SetlistID: setlistID}
	err = tx.QueryRow(ctx, `
		UPDATE setlist_songs
		SET vote_count = vote_count + 1, version = version + 1
		WHERE id = $1
		RETURNING vote_count, version`, v.SetlistSongID).Scan(&res.NewVoteCount, &res.Version)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO user_vote_analytics (user_id, show_id, daily_votes, show_votes, vote_day, last_vote_at)
		VALUES ($1, $2, 1, 1, $3, $4)
		ON CONFLICT (user_id, show_id) DO UPDATE
		SET daily_votes = CASE
		        WHEN user_vote_analytics.vote_day = EXCLUDED.vote_day THEN user_vote_analytics.daily_votes + 1
		        ELSE 1
		    END,
		    show_votes = user_vote_analytics.show_votes + 1,
		    vote_day = EXCLUDED.vote_day,
		    last_vote_at = EXCLUDED.last_vote_at`,
		v.UserID, v.ShowID, p.DayStart, v.CastAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	res.DailyVotes = daily + 1
	res.ShowVotes = show + 1
	return res, nil
}

// DeleteVote removes a vote owned by p.UserID and cast at or after
// p.NotBefore, decrementing the counter in the same transaction.
func (r *VoteRepo) DeleteVote(ctx context.Context, p model.DeleteVoteParams) (*model.DeleteVoteResult, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var v model.Vote
	err = tx.QueryRow(ctx, `
		DELETE FROM votes
		WHERE id = $1 AND user_id = $2 AND cast_at >= $3
		RETURNING id, user_id, setlist_song_id, show_id, song_id, vote_type, confidence, cast_at`,
		p.VoteID, p.UserID, p.NotBefore).Scan(
		&v.ID, &v.UserID, &v.SetlistSongID, &v.ShowID, &v.SongID, &v.VoteType, &v.Confidence, &v.CastAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	res := &model.DeleteVoteResult{Vote: v}
	err = tx.QueryRow(ctx, `
		UPDATE setlist_songs
		SET vote_count = vote_count - 1, version = version + 1
		WHERE id = $1 AND vote_count > 0
		RETURNING setlist_id, vote_count, version`, v.SetlistSongID).Scan(&res.SetlistID, &res.NewVoteCount, &res.Version)
	if err != nil {
		return nil, fmt.Errorf("decrement counter for %s: %w", v.SetlistSongID, err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE user_vote_analytics
		SET show_votes = GREATEST(show_votes - 1, 0),
		    daily_votes = CASE WHEN vote_day = $3 THEN GREATEST(daily_votes - 1, 0) ELSE daily_votes END
		WHERE user_id = $1 AND show_id = $2`,
		v.UserID, v.ShowID, dayOf(v.CastAt))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return res, nil
}

// GetVote returns a single vote by id.
func (r *VoteRepo) GetVote(ctx context.Context, voteID string) (*model.Vote, error) {
	var v model.Vote
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, setlist_song_id, show_id, song_id, vote_type, confidence, cast_at
		FROM votes WHERE id = $1`, voteID).Scan(
		&v.ID, &v.UserID, &v.SetlistSongID, &v.ShowID, &v.SongID, &v.VoteType, &v.Confidence, &v.CastAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// CountUserVotes returns the user's votes since the day boundary and the
// user's all-time votes for one show.
func (r *VoteRepo) CountUserVotes(ctx context.Context, userID, showID string, since time.Time) (daily, show int, err error) {
	err = r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE cast_at >= $2),
			COUNT(*) FILTER (WHERE show_id = $3)
		FROM votes
		WHERE user_id = $1`, userID, since, showID).Scan(&daily, &show)
	return daily, show, err
}

// UserStats reads the analytics aggregate for one user and show.
func (r *VoteRepo) UserStats(ctx context.Context, userID, showID string, dayStart time.Time) (*model.UserVoteStats, error) {
	stats := &model.UserVoteStats{UserID: userID, ShowID: showID}
	var voteDay time.Time
	var lastVoteAt time.Time
	err := r.pool.QueryRow(ctx, `
		SELECT daily_votes, show_votes, vote_day, last_vote_at
		FROM user_vote_analytics
		WHERE user_id = $1 AND show_id = $2`, userID, showID).Scan(
		&stats.DailyVotes, &stats.ShowVotes, &voteDay, &lastVoteAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return stats, nil
	}
	if err != nil {
		return nil, err
	}
	if voteDay.Before(dayStart) {
		stats.DailyVotes = 0
	}
	stats.LastVoteAt = &lastVoteAt
	return stats, nil
}

// SetlistSongs returns every song of a setlist with its current counter.
func (r *VoteRepo) SetlistSongs(ctx context.Context, setlistID string) ([]model.SetlistSong, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, setlist_id, song_id, position, vote_count, version
		FROM setlist_songs
		WHERE setlist_id = $1
		ORDER BY position`, setlistID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var songs []model.SetlistSong
	for rows.Next() {
		var s model.SetlistSong
		if err := rows.Scan(&s.ID, &s.SetlistID, &s.SongID, &s.Position, &s.VoteCount, &s.Version); err != nil {
			return nil, err
		}
		songs = append(songs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(songs) == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM setlists WHERE id = $1)`, setlistID).Scan(&exists); err != nil {
			return nil, err
		}
		if !exists {
			return nil, ErrNotFound
		}
	}
	return songs, nil
}

// RecentVotes returns the votes on one setlist song cast since the cutoff.
func (r *VoteRepo) RecentVotes(ctx context.Context, setlistSongID string, since time.Time) ([]model.VoteSample, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT cast_at, confidence FROM votes
		WHERE setlist_song_id = $1 AND cast_at >= $2`, setlistSongID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []model.VoteSample
	for rows.Next() {
		var s model.VoteSample
		if err := rows.Scan(&s.CastAt, &s.Confidence); err != nil {
			return nil, err
		}
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

// ShowTotals returns the live show aggregates for a ShowUpdate.
func (r *VoteRepo) ShowTotals(ctx context.Context, showID string, activeSince time.Time) (*model.ShowTotals, error) {
	t := &model.ShowTotals{ShowID: showID}
	err := r.pool.QueryRow(ctx, `
		SELECT
			s.trending_score,
			(SELECT COUNT(*) FROM votes v WHERE v.show_id = s.id),
			(SELECT COUNT(DISTINCT v.user_id) FROM votes v WHERE v.show_id = s.id AND v.cast_at >= $2)
		FROM shows s
		WHERE s.id = $1`, showID, activeSince).Scan(&t.TrendingScore, &t.TotalVotes, &t.ActiveVoters)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Notify publishes a committed change on the vote_changes channel. Every
// instance LISTENing on it feeds its own broadcaster.
func (r *VoteRepo) Notify(ctx context.Context, change model.VoteChange) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `SELECT pg_notify($1, $2)`, VoteChangesChannel, string(payload))
	return err
}

func dayOf(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}
