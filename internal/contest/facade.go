package contest

import (
	"context"
	"time"

	logx "loungebot/pkg/logx"
)

// Bounds for the user-facing day range on upcoming queries.
const (
	MinQueryDays     = 1
	MaxQueryDays     = 14
	DefaultQueryDays = 7
)

// Service is the read surface the rest of the bot talks to. Reads are
// cache-first: a stale cache triggers one inline refresh attempt, and
// when that fails the stale data is served anyway. An empty result is
// only ever "no contests in range", never an error.
type Service struct {
	store *Store
	ref   *Refresher
	log   logx.Logger
}

func NewService(store *Store, ref *Refresher, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{store: store, ref: ref, log: log}
}

// ClampDays normalizes a user-supplied day range: 0 picks the default,
// anything outside [MinQueryDays, MaxQueryDays] is clamped.
func ClampDays(days int) int {
	if days == 0 {
		return DefaultQueryDays
	}
	if days < MinQueryDays {
		return MinQueryDays
	}
	if days > MaxQueryDays {
		return MaxQueryDays
	}
	return days
}

// Contests returns cached contests matching the filter, refreshing
// first if the cache has gone stale.
func (s *Service) Contests(ctx context.Context, f QueryFilter) ([]Contest, error) {
	s.ensureFresh(ctx)
	return s.store.Query(ctx, f)
}

// Upcoming returns contests starting within the next clamped number of
// days, from now.
func (s *Service) Upcoming(ctx context.Context, days int, platform Platform, limit int) ([]Contest, error) {
	days = ClampDays(days)
	now := time.Now()
	return s.Contests(ctx, QueryFilter{
		Platform: platform,
		Start:    now,
		End:      now.AddDate(0, 0, days),
		Limit:    limit,
	})
}

// Today returns contests starting during the current day in the
// display zone, including ones already underway or finished.
func (s *Service) Today(ctx context.Context, platform Platform, limit int) ([]Contest, error) {
	from, to := DayWindow(time.Now(), 0)
	return s.Contests(ctx, QueryFilter{Platform: platform, Start: from, End: to, Limit: limit})
}

// Tomorrow returns contests starting during the next day in the
// display zone.
func (s *Service) Tomorrow(ctx context.Context, platform Platform, limit int) ([]Contest, error) {
	from, to := DayWindow(time.Now(), 1)
	return s.Contests(ctx, QueryFilter{Platform: platform, Start: from, End: to, Limit: limit})
}

// Refresh forces a synchronous refresh, bypassing the staleness check.
func (s *Service) Refresh(ctx context.Context) (RefreshResult, error) {
	return s.ref.Refresh(ctx)
}

// Status reports refresher state plus cache size and age.
func (s *Service) Status(ctx context.Context) (RefreshStatus, int, time.Duration) {
	st := s.ref.Status()
	count, err := s.store.Count(ctx)
	if err != nil {
		count = 0
	}
	age, ok, err := s.store.CacheAge(ctx)
	if err != nil || !ok {
		age = 0
	}
	return st, count, age
}

// ensureFresh runs the stale-then-refresh policy. Failures are logged
// and swallowed: readers prefer stale data over no data.
func (s *Service) ensureFresh(ctx context.Context) {
	if s.ref == nil {
		return
	}
	refreshed, err := s.ref.RefreshIfStale(ctx)
	if err != nil {
		s.log.Debug("serving stale contest cache", logx.Err(err))
		return
	}
	if refreshed {
		s.log.Debug("contest cache refreshed inline")
	}
}
