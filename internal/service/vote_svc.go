package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/setlistvote/setlistvote/internal/metrics"
	"github.com/setlistvote/setlistvote/internal/model"
	"github.com/setlistvote/setlistvote/internal/repository"
)

// DefaultGraceWindow is how long a vote may be retracted after casting.
const DefaultGraceWindow = 5 * time.Minute

// rateLimitResource is the limiter resource name for vote casts.
const rateLimitResource = "vote"

// VoteDeps are the collaborators of the VoteService. Limiter, Cache,
// Notifier, Announcer and Events are optional.
type VoteDeps struct {
	Store      VoteStore
	Limiter    *RateLimiter
	Quota      *QuotaEnforcer
	Cache      *CacheService
	Notifier   ChangeNotifier
	Announcer  Announcer
	Events     EventSink
	Clock      clockwork.Clock
	Grace      time.Duration
	DailyLimit int
	ShowLimit  int
	TxTimeout  time.Duration
	Logger     zerolog.Logger
}

// VoteService coordinates cast, unvote and batch voting. It is the only
// path through which votes, and therefore vote counters, change.
type VoteService struct {
	store      VoteStore
	limiter    *RateLimiter
	quota      *QuotaEnforcer
	cache      *CacheService
	notifier   ChangeNotifier
	announcer  Announcer
	events     EventSink
	clock      clockwork.Clock
	grace      time.Duration
	dailyLimit int
	showLimit  int
	txTimeout  time.Duration
	log        zerolog.Logger
}

func NewVoteService(d VoteDeps) *VoteService {
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}
	if d.Grace <= 0 {
		d.Grace = DefaultGraceWindow
	}
	if d.TxTimeout <= 0 {
		d.TxTimeout = 10 * time.Second
	}
	if d.Quota == nil {
		d.Quota = NewQuotaEnforcer(d.Store, d.DailyLimit, d.ShowLimit, d.Clock)
	}
	return &VoteService{
		store:      d.Store,
		limiter:    d.Limiter,
		quota:      d.Quota,
		cache:      d.Cache,
		notifier:   d.Notifier,
		announcer:  d.Announcer,
		events:     d.Events,
		clock:      d.Clock,
		grace:      d.Grace,
		dailyLimit: d.Quota.dailyLimit,
		showLimit:  d.Quota.showLimit,
		txTimeout:  d.TxTimeout,
		log:        d.Logger,
	}
}

// Cast records one vote: rate limit, quota pre-check, then a single store
// transaction that re-validates quotas, inserts the vote and bumps the
// counter. Cache invalidation and change notification follow the commit and
// never turn a committed vote into a failure.
func (s *VoteService) Cast(ctx context.Context, req model.CastVoteRequest) (*model.CastVoteResponse, error) {
	const op = "vote.cast"

	if err := validateCast(&req); err != nil {
		return nil, s.reject(op, err)
	}
	if err := s.checkRate(ctx, op, req.UserID, req.SetlistSongID); err != nil {
		return nil, s.reject(op, err)
	}
	return s.cast(ctx, req)
}

// checkRate charges one unit of the user's vote rate limit. A limiter
// failure lets the request through; the business quotas still guard the
// write.
func (s *VoteService) checkRate(ctx context.Context, op, userID, entityID string) error {
	if s.limiter == nil {
		return nil
	}
	rl, err := s.limiter.Check(ctx, userID, rateLimitResource)
	switch {
	case err != nil:
		s.log.Warn().Err(err).Str("op", op).Str("user_id", userID).Msg("rate limiter unavailable")
	case !rl.Allowed:
		return &VoteError{
			Code:       CodeRateLimited,
			Message:    "Too many vote attempts, slow down",
			Op:         op,
			UserID:     userID,
			EntityID:   entityID,
			RetryAfter: rl.ResetSeconds,
		}
	}
	return nil
}

// cast runs a validated, rate-checked request.
func (s *VoteService) cast(ctx context.Context, req model.CastVoteRequest) (*model.CastVoteResponse, error) {
	const op = "vote.cast"

	if _, err := s.quota.CanCastVote(ctx, req.UserID, req.ShowID); err != nil {
		return nil, s.reject(op, err)
	}

	now := s.clock.Now().UTC()
	vote := model.Vote{
		ID:            uuid.NewString(),
		UserID:        req.UserID,
		SetlistSongID: req.SetlistSongID,
		ShowID:        req.ShowID,
		SongID:        req.SongID,
		VoteType:      req.VoteType,
		Confidence:    req.Confidence,
		CastAt:        now,
	}

	// A started transaction is not abandoned because the caller went away.
	txCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.txTimeout)
	defer cancel()

	res, err := s.store.CastVote(txCtx, model.CastVoteParams{
		Vote:       vote,
		DayStart:   DayStart(now),
		DailyLimit: s.dailyLimit,
		ShowLimit:  s.showLimit,
	})
	if err != nil {
		return nil, s.reject(op, s.storeError(op, req.UserID, req.SetlistSongID, err))
	}
	metrics.VotesCast.Inc()

	s.afterCommit(txCtx, model.VoteChange{
		Kind:          model.ChangeCast,
		VoteID:        vote.ID,
		UserID:        vote.UserID,
		SetlistSongID: vote.SetlistSongID,
		SetlistID:     res.SetlistID,
		ShowID:        vote.ShowID,
		SongID:        vote.SongID,
		VoteCount:     res.NewVoteCount,
		Version:       res.Version,
		At:            now,
	})

	return &model.CastVoteResponse{
		Success:             true,
		VoteID:              vote.ID,
		NewVoteCount:        res.NewVoteCount,
		DailyVotesRemaining: max(s.dailyLimit-res.DailyVotes, 0),
		ShowVotesRemaining:  max(s.showLimit-res.ShowVotes, 0),
	}, nil
}

// Unvote retracts a vote. Only the original voter may do so, and only while
// the vote is inside the grace window.
func (s *VoteService) Unvote(ctx context.Context, req model.UnvoteRequest) (*model.UnvoteResponse, error) {
	const op = "vote.unvote"

	if req.VoteID == "" || req.UserID == "" {
		return nil, s.reject(op, invalid(op, req.UserID, req.VoteID, "voteId and userId are required"))
	}

	v, err := s.store.GetVote(ctx, req.VoteID)
	if err != nil {
		return nil, s.reject(op, s.storeError(op, req.UserID, req.VoteID, err))
	}
	if v.UserID != req.UserID {
		return nil, s.reject(op, forbidden(op, req.UserID, req.VoteID, "Only the original voter can remove this vote"))
	}

	now := s.clock.Now().UTC()
	if now.Sub(v.CastAt) > s.grace {
		return nil, s.reject(op, forbidden(op, req.UserID, req.VoteID, "The grace window for removing this vote has passed"))
	}

	txCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.txTimeout)
	defer cancel()

	res, err := s.store.DeleteVote(txCtx, model.DeleteVoteParams{
		VoteID:    req.VoteID,
		UserID:    req.UserID,
		NotBefore: now.Add(-s.grace),
	})
	if err != nil {
		return nil, s.reject(op, s.storeError(op, req.UserID, req.VoteID, err))
	}
	metrics.Unvotes.Inc()

	s.afterCommit(txCtx, model.VoteChange{
		Kind:          model.ChangeRemove,
		VoteID:        res.Vote.ID,
		UserID:        res.Vote.UserID,
		SetlistSongID: res.Vote.SetlistSongID,
		SetlistID:     res.SetlistID,
		ShowID:        res.Vote.ShowID,
		SongID:        res.Vote.SongID,
		VoteCount:     res.NewVoteCount,
		Version:       res.Version,
		At:            now,
	})

	return &model.UnvoteResponse{Success: true, NewVoteCount: res.NewVoteCount}, nil
}

// CastBatch runs each request on its own, in order. One failure never
// blocks the rest, and the result has one entry per request. A batch costs
// each of its users one unit of the vote rate limit, charged at that user's
// first valid item; quotas still apply per vote.
func (s *VoteService) CastBatch(ctx context.Context, reqs []model.CastVoteRequest) []model.BatchItemResult {
	const op = "vote.cast"

	results := make([]model.BatchItemResult, len(reqs))
	charged := make(map[string]error)
	for i, req := range reqs {
		results[i].Index = i
		resp, err := s.batchItem(ctx, op, req, charged)
		if err != nil {
			results[i].Error = ErrorBodyOf(err)
			continue
		}
		results[i].Success = true
		results[i].Result = resp
	}
	return results
}

func (s *VoteService) batchItem(ctx context.Context, op string, req model.CastVoteRequest, charged map[string]error) (*model.CastVoteResponse, error) {
	if err := validateCast(&req); err != nil {
		return nil, s.reject(op, err)
	}
	rateErr, ok := charged[req.UserID]
	if !ok {
		rateErr = s.checkRate(ctx, op, req.UserID, req.SetlistSongID)
		charged[req.UserID] = rateErr
	}
	if rateErr != nil {
		return nil, s.reject(op, rateErr)
	}
	return s.cast(ctx, req)
}

// Limits reports a user's quota usage for a show.
func (s *VoteService) Limits(ctx context.Context, userID, showID string) (*model.VoteLimits, error) {
	const op = "vote.limits"
	if userID == "" || showID == "" {
		return nil, invalid(op, userID, showID, "userId and showId are required")
	}
	limits, err := s.quota.Limits(ctx, userID, showID)
	if err != nil {
		return nil, s.storeError(op, userID, showID, err)
	}
	return limits, nil
}

// HandleChange applies a committed change to this instance: it drops the
// affected cache entries and announces the change to live subscribers.
// Change notifications from other instances arrive here too.
func (s *VoteService) HandleChange(ctx context.Context, change model.VoteChange) {
	s.invalidate(ctx, change)
	if s.announcer != nil {
		s.announcer.Announce(ctx, change)
	}
}

func (s *VoteService) afterCommit(ctx context.Context, change model.VoteChange) {
	s.invalidate(ctx, change)

	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, change); err != nil {
			s.log.Warn().Err(err).
				Str("op", "vote.notify").
				Str("user_id", change.UserID).
				Str("setlist_song_id", change.SetlistSongID).
				Msg("change notification failed")
		}
	} else if s.announcer != nil {
		s.announcer.Announce(ctx, change)
	}

	if s.events != nil {
		ev := model.VoteEvent{
			Kind:          change.Kind,
			VoteID:        change.VoteID,
			UserID:        change.UserID,
			ShowID:        change.ShowID,
			SongID:        change.SongID,
			SetlistSongID: change.SetlistSongID,
			VoteCount:     change.VoteCount,
			OccurredAt:    change.At,
		}
		if err := s.events.PublishVoteEvent(ctx, ev); err != nil {
			s.log.Warn().Err(err).Str("op", "vote.event").Str("vote_id", change.VoteID).Msg("domain event dropped")
		}
	}
}

func (s *VoteService) invalidate(ctx context.Context, change model.VoteChange) {
	s.cache.Invalidate(ctx, SetlistVotesKey(change.SetlistID))
	s.cache.Invalidate(ctx, UserStatsKey(change.UserID, change.ShowID))
}

// storeError maps repository outcomes onto the error taxonomy.
func (s *VoteService) storeError(op, userID, entityID string, err error) error {
	var ve *VoteError
	if errors.As(err, &ve) {
		return ve
	}
	var qe *repository.QuotaError
	switch {
	case errors.As(err, &qe):
		return QuotaExceeded(op, userID, entityID, qe.Scope, qe.Limit)
	case errors.Is(err, repository.ErrDuplicateVote):
		return &VoteError{
			Code:     CodeConflict,
			Message:  "You have already voted for this song",
			Op:       op,
			UserID:   userID,
			EntityID: entityID,
			Err:      err,
		}
	case errors.Is(err, repository.ErrNotFound):
		msg := "Vote not found"
		if op == "vote.cast" {
			msg = "Setlist song not found for this show"
		}
		return &VoteError{
			Code:     CodeNotFound,
			Message:  msg,
			Op:       op,
			UserID:   userID,
			EntityID: entityID,
			Err:      err,
		}
	}
	return transient(op, userID, entityID, err)
}

func (s *VoteService) reject(op string, err error) error {
	code := CodeOf(err)
	metrics.VotesRejected.WithLabelValues(string(code)).Inc()

	var ve *VoteError
	errors.As(err, &ve)
	evt := s.log.Debug()
	if code == CodeTransient {
		evt = s.log.Error()
	}
	if ve != nil {
		evt = evt.Str("user_id", ve.UserID).Str("entity_id", ve.EntityID)
	}
	evt.Err(err).Str("op", op).Str("code", string(code)).Msg("vote rejected")
	return err
}

func validateCast(req *model.CastVoteRequest) error {
	const op = "vote.cast"
	if req.UserID == "" || req.ShowID == "" || req.SongID == "" || req.SetlistSongID == "" {
		return invalid(op, req.UserID, req.SetlistSongID, "userId, showId, songId and setlistSongId are required")
	}
	if req.VoteType == "" {
		req.VoteType = model.VoteTypeUp
	}
	if req.VoteType != model.VoteTypeUp {
		return invalid(op, req.UserID, req.SetlistSongID, "voteType must be \"up\"")
	}
	if req.Confidence == 0 {
		req.Confidence = model.DefaultConfidence
	}
	if req.Confidence < 1 || req.Confidence > 100 {
		return invalid(op, req.UserID, req.SetlistSongID, "confidence must be between 1 and 100")
	}
	return nil
}

func invalid(op, userID, entityID, msg string) *VoteError {
	return &VoteError{Code: CodeInvalidRequest, Message: msg, Op: op, UserID: userID, EntityID: entityID}
}

func forbidden(op, userID, entityID, msg string) *VoteError {
	return &VoteError{Code: CodeForbidden, Message: msg, Op: op, UserID: userID, EntityID: entityID}
}

// ErrorBodyOf renders err as a client-facing {code, message} pair.
func ErrorBodyOf(err error) *model.ErrorBody {
	var ve *VoteError
	if errors.As(err, &ve) {
		return &model.ErrorBody{Code: string(ve.Code), Message: ve.Message, RetryAfter: ve.RetryAfter}
	}
	return &model.ErrorBody{Code: string(CodeTransient), Message: "Temporary storage failure, please retry"}
}
