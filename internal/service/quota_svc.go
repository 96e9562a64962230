package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/setlistvote/setlistvote/internal/model"
)

// QuotaEnforcer derives daily and per-show remaining votes from the store.
// The daily window starts at midnight UTC on the server clock.
type QuotaEnforcer struct {
	store      VoteStore
	dailyLimit int
	showLimit  int
	clock      clockwork.Clock
}

// NewQuotaEnforcer creates an enforcer with the given caps.
func NewQuotaEnforcer(store VoteStore, dailyLimit, showLimit int, clock clockwork.Clock) *QuotaEnforcer {
	return &QuotaEnforcer{store: store, dailyLimit: dailyLimit, showLimit: showLimit, clock: clock}
}

// DayStart returns the start of the daily quota window containing t.
func DayStart(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}

// Limits reports usage without rejecting.
func (q *QuotaEnforcer) Limits(ctx context.Context, userID, showID string) (*model.VoteLimits, error) {
	daily, show, err := q.store.CountUserVotes(ctx, userID, showID, DayStart(q.clock.Now()))
	if err != nil {
		return nil, err
	}
	return &model.VoteLimits{
		DailyLimit:     q.dailyLimit,
		DailyUsed:      daily,
		DailyRemaining: max(q.dailyLimit-daily, 0),
		ShowLimit:      q.showLimit,
		ShowUsed:       show,
		ShowRemaining:  max(q.showLimit-show, 0),
	}, nil
}

// CanCastVote returns the current limits, or a QUOTA_EXCEEDED error naming
// the exhausted scope. The daily scope is reported first when both are used up.
func (q *QuotaEnforcer) CanCastVote(ctx context.Context, userID, showID string) (*model.VoteLimits, error) {
	limits, err := q.Limits(ctx, userID, showID)
	if err != nil {
		return nil, transient("quota.check", userID, showID, err)
	}
	if limits.DailyRemaining <= 0 {
		return limits, QuotaExceeded("quota.check", userID, showID, ScopeDaily, q.dailyLimit)
	}
	if limits.ShowRemaining <= 0 {
		return limits, QuotaExceeded("quota.check", userID, showID, ScopeShow, q.showLimit)
	}
	return limits, nil
}

// QuotaExceeded builds the error returned when a cap is reached.
func QuotaExceeded(op, userID, showID, scope string, limit int) *VoteError {
	msg := fmt.Sprintf("Daily vote limit of %d reached", limit)
	if scope == ScopeShow {
		msg = fmt.Sprintf("Vote limit of %d for this show reached", limit)
	}
	return &VoteError{
		Code:     CodeQuotaExceeded,
		Message:  msg,
		Op:       op,
		UserID:   userID,
		EntityID: showID,
		Scope:    scope,
	}
}
