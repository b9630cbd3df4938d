package contest

import (
	"context"
	"testing"
	"time"

	logx "loungebot/pkg/logx"

	"loungebot/internal/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := storage.Open(storage.Config{Path: ":memory:"}, logx.Nop())
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db, logx.Nop())
}

func testContest(name string, p Platform, start time.Time, dur time.Duration) Contest {
	return Contest{
		ID:              StableID(p.Key(), name),
		Name:            name,
		Platform:        p,
		StartTime:       start,
		EndTime:         start.Add(dur),
		DurationSeconds: int64(dur / time.Second),
		URL:             "https://example.com/" + name,
	}
}

func TestReplaceAllThenQuery(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	in := []Contest{
		testContest("C later", PlatformCodeChef, base.Add(48*time.Hour), 3*time.Hour),
		testContest("A first", PlatformCodeforces, base, 2*time.Hour),
		testContest("B middle", PlatformAtCoder, base.Add(24*time.Hour), 100*time.Minute),
	}
	stored, err := s.ReplaceAll(ctx, in)
	if err != nil {
		t.Fatalf("ReplaceAll: %v", err)
	}
	if stored != 3 {
		t.Fatalf("stored = %d, want 3", stored)
	}

	out, err := s.Query(ctx, QueryFilter{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("got %d rows, want 3", len(out))
	}
	for i, want := range []string{"A first", "B middle", "C later"} {
		if out[i].Name != want {
			t.Fatalf("row %d = %q, want %q (order by start)", i, out[i].Name, want)
		}
	}

	got := out[0]
	if got.Platform != PlatformCodeforces {
		t.Fatalf("platform = %q", got.Platform)
	}
	if !got.StartTime.Equal(base) {
		t.Fatalf("start = %v, want %v", got.StartTime, base)
	}
	if !got.EndTime.Equal(base.Add(2 * time.Hour)) {
		t.Fatalf("end = %v", got.EndTime)
	}
	if got.URL != "https://example.com/A first" {
		t.Fatalf("url = %q", got.URL)
	}
	if got.UpdatedAt.IsZero() {
		t.Fatalf("updated_at not stamped")
	}
}

func TestReplaceAllSwapsSnapshot(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	first := []Contest{
		testContest("Old 1", PlatformCodeforces, base, time.Hour),
		testContest("Old 2", PlatformLeetCode, base.Add(time.Hour), time.Hour),
	}
	if _, err := s.ReplaceAll(ctx, first); err != nil {
		t.Fatalf("first ReplaceAll: %v", err)
	}

	second := []Contest{
		testContest("New 1", PlatformAtCoder, base.Add(2*time.Hour), time.Hour),
	}
	if _, err := s.ReplaceAll(ctx, second); err != nil {
		t.Fatalf("second ReplaceAll: %v", err)
	}

	out, err := s.Query(ctx, QueryFilter{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(out) != 1 || out[0].Name != "New 1" {
		t.Fatalf("old snapshot leaked through: %+v", out)
	}

	// Re-inserting the identical batch keeps identical IDs.
	if _, err := s.ReplaceAll(ctx, second); err != nil {
		t.Fatalf("third ReplaceAll: %v", err)
	}
	again, err := s.Query(ctx, QueryFilter{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(again) != 1 || again[0].ID != out[0].ID {
		t.Fatalf("id changed across identical refreshes: %q vs %q", again[0].ID, out[0].ID)
	}
}

func TestQueryFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

	var in []Contest
	for i := 0; i < 6; i++ {
		p := PlatformCodeforces
		if i%2 == 1 {
			p = PlatformLeetCode
		}
		in = append(in, testContest(string(rune('a'+i)), p, base.Add(time.Duration(i)*24*time.Hour), time.Hour))
	}
	if _, err := s.ReplaceAll(ctx, in); err != nil {
		t.Fatalf("ReplaceAll: %v", err)
	}

	t.Run("platform", func(t *testing.T) {
		out, err := s.Query(ctx, QueryFilter{Platform: PlatformLeetCode})
		if err != nil {
			t.Fatalf("Query: %v", err)
		}
		if len(out) != 3 {
			t.Fatalf("got %d rows, want 3", len(out))
		}
		for _, c := range out {
			if c.Platform != PlatformLeetCode {
				t.Fatalf("platform filter leaked %q", c.Platform)
			}
		}
	})

	t.Run("limit", func(t *testing.T) {
		out, err := s.Query(ctx, QueryFilter{Limit: 2})
		if err != nil {
			t.Fatalf("Query: %v", err)
		}
		if len(out) != 2 {
			t.Fatalf("got %d rows, want 2", len(out))
		}
	})

	t.Run("half-open window", func(t *testing.T) {
		// [day1, day3) keeps day1 and day2 and excludes day3 exactly.
		out, err := s.Query(ctx, QueryFilter{
			Start: base.Add(24 * time.Hour),
			End:   base.Add(3 * 24 * time.Hour),
		})
		if err != nil {
			t.Fatalf("Query: %v", err)
		}
		if len(out) != 2 {
			t.Fatalf("got %d rows, want 2", len(out))
		}
		if out[0].Name != "b" || out[1].Name != "c" {
			t.Fatalf("unexpected window contents: %+v", out)
		}
	})

	t.Run("empty range", func(t *testing.T) {
		out, err := s.Query(ctx, QueryFilter{Start: base.Add(100 * 24 * time.Hour)})
		if err != nil {
			t.Fatalf("Query: %v", err)
		}
		if len(out) != 0 {
			t.Fatalf("expected no rows, got %d", len(out))
		}
	})
}

func TestCacheAgeAndStaleness(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, ok, err := s.CacheAge(ctx); err != nil || ok {
		t.Fatalf("empty cache: age ok=%v err=%v, want ok=false", ok, err)
	}
	stale, err := s.IsStale(ctx, time.Hour)
	if err != nil || !stale {
		t.Fatalf("empty cache must be stale, got stale=%v err=%v", stale, err)
	}

	in := []Contest{testContest("X", PlatformCodeforces, time.Now().Add(time.Hour), time.Hour)}
	if _, err := s.ReplaceAll(ctx, in); err != nil {
		t.Fatalf("ReplaceAll: %v", err)
	}

	age, ok, err := s.CacheAge(ctx)
	if err != nil || !ok {
		t.Fatalf("CacheAge after write: ok=%v err=%v", ok, err)
	}
	if age < 0 || age > time.Minute {
		t.Fatalf("implausible cache age %v", age)
	}

	stale, err = s.IsStale(ctx, time.Hour)
	if err != nil || stale {
		t.Fatalf("fresh cache reported stale=%v err=%v", stale, err)
	}
	stale, err = s.IsStale(ctx, time.Nanosecond)
	if err != nil || !stale {
		t.Fatalf("tiny max age must report stale, got stale=%v err=%v", stale, err)
	}
}

func TestReplaceAllWithEmptyBatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	in := []Contest{testContest("X", PlatformCodeforces, time.Now().Add(time.Hour), time.Hour)}
	if _, err := s.ReplaceAll(ctx, in); err != nil {
		t.Fatalf("ReplaceAll: %v", err)
	}
	stored, err := s.ReplaceAll(ctx, nil)
	if err != nil {
		t.Fatalf("empty ReplaceAll: %v", err)
	}
	if stored != 0 {
		t.Fatalf("stored = %d, want 0", stored)
	}
	n, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 0 {
		t.Fatalf("count = %d, want 0", n)
	}
}
