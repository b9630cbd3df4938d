package contest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	logx "loungebot/pkg/logx"

	"loungebot/internal/eventbus"
)

// Refresher defaults. The source window is bounded so a single fetch
// stays a single page.
const (
	DefaultRefreshInterval = 6 * time.Hour
	DefaultWindowDays      = 30
)

// Source is the fetch dependency of the refresher. *Client satisfies
// it; tests substitute fakes.
type Source interface {
	Fetch(ctx context.Context, windowStart, windowEnd time.Time, platforms []string) ([]RawContest, error)
}

// RefresherConfig tunes the refresh cycle. Zero values select the
// package defaults.
type RefresherConfig struct {
	Interval   time.Duration
	MaxAge     time.Duration
	WindowDays int
}

func (c RefresherConfig) withDefaults() RefresherConfig {
	if c.Interval <= 0 {
		c.Interval = DefaultRefreshInterval
	}
	if c.MaxAge <= 0 {
		c.MaxAge = DefaultMaxAge
	}
	if c.WindowDays <= 0 {
		c.WindowDays = DefaultWindowDays
	}
	return c
}

// RefreshResult summarizes one completed refresh.
type RefreshResult struct {
	Fetched int
	Stored  int
	Took    time.Duration
}

// RefreshStatus is a point-in-time snapshot for status commands.
type RefreshStatus struct {
	State       string // "idle" or "refreshing"
	LastAttempt time.Time
	LastSuccess time.Time
	LastCount   int
	LastError   string
}

// Refresher owns the fetch → normalize → replace cycle. At most one
// refresh runs at a time; overlapping triggers are rejected with
// ErrRefreshInFlight rather than queued. A failed refresh leaves the
// previous cache contents untouched.
type Refresher struct {
	cfg   RefresherConfig
	src   Source
	store *Store
	bus   eventbus.Bus
	log   logx.Logger

	inFlight atomic.Bool

	mu          sync.Mutex
	lastAttempt time.Time
	lastSuccess time.Time
	lastCount   int
	lastErr     error
}

func NewRefresher(cfg RefresherConfig, src Source, store *Store, bus eventbus.Bus, log logx.Logger) *Refresher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Refresher{
		cfg:   cfg.withDefaults(),
		src:   src,
		store: store,
		bus:   bus,
		log:   log,
	}
}

// Interval returns the configured periodic refresh interval.
func (r *Refresher) Interval() time.Duration { return r.cfg.Interval }

// MaxAge returns the staleness threshold applied by RefreshIfStale.
func (r *Refresher) MaxAge() time.Duration { return r.cfg.MaxAge }

// Refresh runs one full cycle synchronously. If another refresh is
// already running it returns ErrRefreshInFlight immediately.
func (r *Refresher) Refresh(ctx context.Context) (RefreshResult, error) {
	if !r.inFlight.CompareAndSwap(false, true) {
		return RefreshResult{}, ErrRefreshInFlight
	}
	defer r.inFlight.Store(false)

	started := time.Now()
	windowEnd := started.AddDate(0, 0, r.cfg.WindowDays)

	raws, err := r.src.Fetch(ctx, started, windowEnd, AllPlatformKeys())
	if err != nil {
		r.record(started, 0, err)
		r.log.Warn("contest refresh failed, keeping cached data", logx.Err(err))
		r.publish(eventbus.TypeRefreshFailed, map[string]any{"error": err.Error()})
		return RefreshResult{}, err
	}

	contests := NormalizeBatch(raws, r.log)
	stored, err := r.store.ReplaceAll(ctx, contests)
	if err != nil {
		r.record(started, 0, err)
		r.log.Error("contest cache write failed", logx.Err(err))
		r.publish(eventbus.TypeRefreshFailed, map[string]any{"error": err.Error()})
		return RefreshResult{}, err
	}

	res := RefreshResult{Fetched: len(raws), Stored: stored, Took: time.Since(started)}
	r.record(started, stored, nil)
	r.log.Info("contest cache refreshed",
		logx.Int("fetched", res.Fetched),
		logx.Int("stored", res.Stored),
		logx.Duration("took", res.Took),
	)
	r.publish(eventbus.TypeRefreshOK, res)
	return res, nil
}

// RefreshIfStale refreshes only when the cache is empty or past its
// max age. Returns whether a refresh actually ran. An in-flight
// refresh by another caller counts as "not run" without error, so
// readers degrade to cached data instead of stacking up.
func (r *Refresher) RefreshIfStale(ctx context.Context) (bool, error) {
	stale, err := r.store.IsStale(ctx, r.cfg.MaxAge)
	if err != nil {
		return false, err
	}
	if !stale {
		return false, nil
	}
	if _, err := r.Refresh(ctx); err != nil {
		if errors.Is(err, ErrRefreshInFlight) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Status reports the controller state without blocking refreshes.
func (r *Refresher) Status() RefreshStatus {
	st := RefreshStatus{State: "idle"}
	if r.inFlight.Load() {
		st.State = "refreshing"
	}
	r.mu.Lock()
	st.LastAttempt = r.lastAttempt
	st.LastSuccess = r.lastSuccess
	st.LastCount = r.lastCount
	if r.lastErr != nil {
		st.LastError = r.lastErr.Error()
	}
	r.mu.Unlock()
	return st
}

func (r *Refresher) record(attempt time.Time, count int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastAttempt = attempt
	r.lastErr = err
	if err == nil {
		r.lastSuccess = attempt
		r.lastCount = count
	}
}

func (r *Refresher) publish(typ string, data any) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(eventbus.Event{Type: typ, Data: data})
}
