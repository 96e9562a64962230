package service

import (
	"context"

	"github.com/jonboulle/clockwork"
)

// ShowService records show page views, the popularity input the trend
// scorer reads as viewCount and recentViews.
type ShowService struct {
	store ShowStore
	clock clockwork.Clock
}

func NewShowService(store ShowStore, clock clockwork.Clock) *ShowService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ShowService{store: store, clock: clock}
}

// RecordView counts one view of a show and returns the new total.
func (s *ShowService) RecordView(ctx context.Context, showID string) (int64, error) {
	const op = "show.view"
	views, err := s.store.RecordView(ctx, showID, s.clock.Now().UTC())
	if err != nil {
		return 0, readError(op, "", showID, "Show not found", err)
	}
	return views, nil
}
