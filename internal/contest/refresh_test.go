package contest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	logx "loungebot/pkg/logx"
)

type fakeSource struct {
	mu        sync.Mutex
	raws      []RawContest
	err       error
	calls     int
	lastStart time.Time
	lastEnd   time.Time
	lastKeys  []string
	gate      chan struct{} // when set, Fetch blocks until the gate closes
	entered   chan struct{} // signalled once Fetch has started
}

func (f *fakeSource) Fetch(ctx context.Context, windowStart, windowEnd time.Time, platforms []string) ([]RawContest, error) {
	f.mu.Lock()
	f.calls++
	f.lastStart = windowStart
	f.lastEnd = windowEnd
	f.lastKeys = append([]string(nil), platforms...)
	gate := f.gate
	entered := f.entered
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]RawContest(nil), f.raws...), nil
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeSource) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func rawFor(name, key string, start time.Time, durSeconds float64) RawContest {
	return RawContest{
		Event:    name,
		Resource: ResourceRef{Name: key},
		Start:    start.UTC().Format("2006-01-02T15:04:05"),
		Duration: durSeconds,
	}
}

func newTestRefresher(t *testing.T, src Source, cfg RefresherConfig) (*Refresher, *Store) {
	t.Helper()
	store := newTestStore(t)
	return NewRefresher(cfg, src, store, nil, logx.Nop()), store
}

func TestRefreshStoresFetchedContests(t *testing.T) {
	start := time.Now().Add(2 * time.Hour)
	src := &fakeSource{raws: []RawContest{
		rawFor("Round A", "codeforces.com", start, 7200),
		rawFor("", "codechef.com", start, 3600), // malformed, skipped
		rawFor("Weekly B", "leetcode.com", start.Add(time.Hour), 5400),
	}}
	r, store := newTestRefresher(t, src, RefresherConfig{})

	res, err := r.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if res.Fetched != 3 || res.Stored != 2 {
		t.Fatalf("result = %+v, want fetched 3 stored 2", res)
	}

	n, err := store.Count(context.Background())
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 2 {
		t.Fatalf("count = %d, want 2", n)
	}

	st := r.Status()
	if st.State != "idle" {
		t.Fatalf("state = %q", st.State)
	}
	if st.LastSuccess.IsZero() || st.LastCount != 2 || st.LastError != "" {
		t.Fatalf("status not recorded: %+v", st)
	}
}

func TestRefreshWindowAndPlatforms(t *testing.T) {
	src := &fakeSource{}
	r, _ := newTestRefresher(t, src, RefresherConfig{WindowDays: 30})

	before := time.Now()
	if _, err := r.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	src.mu.Lock()
	defer src.mu.Unlock()
	if src.lastStart.Before(before.Add(-time.Second)) {
		t.Fatalf("window starts in the past: %v", src.lastStart)
	}
	want := src.lastStart.AddDate(0, 0, 30)
	if !src.lastEnd.Equal(want) {
		t.Fatalf("window end = %v, want %v", src.lastEnd, want)
	}
	if len(src.lastKeys) != 4 || src.lastKeys[0] != "codeforces.com" {
		t.Fatalf("platform keys = %v", src.lastKeys)
	}
}

func TestRefreshFailureKeepsExistingCache(t *testing.T) {
	start := time.Now().Add(3 * time.Hour)
	src := &fakeSource{raws: []RawContest{rawFor("Keeper", "atcoder.jp", start, 6000)}}
	r, store := newTestRefresher(t, src, RefresherConfig{})
	ctx := context.Background()

	if _, err := r.Refresh(ctx); err != nil {
		t.Fatalf("seed refresh: %v", err)
	}
	seeded := r.Status().LastSuccess

	src.setErr(ErrUnauthorized)
	_, err := r.Refresh(ctx)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("got %v, want ErrUnauthorized", err)
	}

	out, err := store.Query(ctx, QueryFilter{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(out) != 1 || out[0].Name != "Keeper" {
		t.Fatalf("failed refresh touched the cache: %+v", out)
	}

	st := r.Status()
	if st.LastError == "" {
		t.Fatalf("last error not recorded")
	}
	if !st.LastSuccess.Equal(seeded) {
		t.Fatalf("last success moved on failure: %v vs %v", st.LastSuccess, seeded)
	}
	if st.LastCount != 1 {
		t.Fatalf("last count = %d, want 1", st.LastCount)
	}
}

func TestRefreshSingleFlight(t *testing.T) {
	src := &fakeSource{
		gate:    make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	r, _ := newTestRefresher(t, src, RefresherConfig{})
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := r.Refresh(ctx)
		done <- err
	}()

	select {
	case <-src.entered:
	case <-time.After(5 * time.Second):
		t.Fatalf("first refresh never reached the source")
	}

	if st := r.Status(); st.State != "refreshing" {
		t.Fatalf("state during refresh = %q", st.State)
	}
	if _, err := r.Refresh(ctx); !errors.Is(err, ErrRefreshInFlight) {
		t.Fatalf("overlapping refresh: got %v, want ErrRefreshInFlight", err)
	}

	close(src.gate)
	if err := <-done; err != nil {
		t.Fatalf("first refresh: %v", err)
	}
	if src.callCount() != 1 {
		t.Fatalf("source called %d times, want 1", src.callCount())
	}
}

func TestRefreshIfStaleSkipsFreshCache(t *testing.T) {
	start := time.Now().Add(time.Hour)
	src := &fakeSource{raws: []RawContest{rawFor("Fresh", "codeforces.com", start, 3600)}}
	r, _ := newTestRefresher(t, src, RefresherConfig{MaxAge: time.Hour})
	ctx := context.Background()

	ran, err := r.RefreshIfStale(ctx)
	if err != nil {
		t.Fatalf("RefreshIfStale: %v", err)
	}
	if !ran {
		t.Fatalf("empty cache should have refreshed")
	}

	ran, err = r.RefreshIfStale(ctx)
	if err != nil {
		t.Fatalf("second RefreshIfStale: %v", err)
	}
	if ran {
		t.Fatalf("fresh cache should not refresh")
	}
	if src.callCount() != 1 {
		t.Fatalf("source called %d times, want 1", src.callCount())
	}
}
