package contest

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	logx "loungebot/pkg/logx"

	"loungebot/internal/storage"
)

// DefaultMaxAge is how old the cache may get before reads consider it
// stale and trigger a background refill.
const DefaultMaxAge = 6 * time.Hour

// Store persists the contest cache. All reads see either the previous
// snapshot or the new one; ReplaceAll swaps atomically.
type Store struct {
	db  *sql.DB
	log logx.Logger
}

func NewStore(db *storage.DB, log logx.Logger) *Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Store{db: db.Handle(), log: log}
}

// ReplaceAll clears the cache and inserts the given contests in one
// transaction. A row that fails to insert is skipped and logged; the
// rest of the batch still lands. Returns the number of rows stored.
func (s *Store) ReplaceAll(ctx context.Context, contests []Contest) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM contest_cache`); err != nil {
		return 0, fmt.Errorf("clear cache: %w", err)
	}

	now := time.Now().UnixMilli()
	stored := 0
	for _, c := range contests {
		_, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO contest_cache
				(id, name, platform, start_time, end_time, duration_seconds, url, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.Name, string(c.Platform),
			c.StartTime.UnixMilli(), c.EndTime.UnixMilli(), c.DurationSeconds,
			storage.NullStr(c.URL), now,
		)
		if err != nil {
			s.log.Warn("contest row skipped",
				logx.String("id", c.ID),
				logx.String("name", c.Name),
				logx.Err(err),
			)
			continue
		}
		stored++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return stored, nil
}

// QueryFilter narrows a cache read. Zero values mean "no constraint".
// End is exclusive. Platform matches the display name.
type QueryFilter struct {
	Platform Platform
	Start    time.Time
	End      time.Time
	Limit    int
}

// Query returns cached contests ordered by start time ascending.
func (s *Store) Query(ctx context.Context, f QueryFilter) ([]Contest, error) {
	var (
		cond []string
		args []any
	)
	if f.Platform != "" {
		cond = append(cond, "platform = ?")
		args = append(args, string(f.Platform))
	}
	if !f.Start.IsZero() {
		cond = append(cond, "start_time >= ?")
		args = append(args, f.Start.UnixMilli())
	}
	if !f.End.IsZero() {
		cond = append(cond, "start_time < ?")
		args = append(args, f.End.UnixMilli())
	}

	q := `SELECT id, name, platform, start_time, end_time, duration_seconds, url, updated_at
		FROM contest_cache`
	if len(cond) > 0 {
		q += " WHERE " + strings.Join(cond, " AND ")
	}
	q += " ORDER BY start_time ASC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query cache: %w", err)
	}
	defer rows.Close()

	var out []Contest
	for rows.Next() {
		var (
			c                     Contest
			platform              string
			startMs, endMs, updMs int64
			url                   sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.Name, &platform, &startMs, &endMs, &c.DurationSeconds, &url, &updMs); err != nil {
			return nil, fmt.Errorf("scan contest: %w", err)
		}
		c.Platform = Platform(platform)
		c.StartTime = time.UnixMilli(startMs).UTC()
		c.EndTime = time.UnixMilli(endMs).UTC()
		c.UpdatedAt = time.UnixMilli(updMs).UTC()
		c.URL = url.String
		out = append(out, c)
	}
	return out, rows.Err()
}

// CacheAge reports how long ago the cache was last written.
// ok is false when the cache has never been filled.
func (s *Store) CacheAge(ctx context.Context) (time.Duration, bool, error) {
	var updMs sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(updated_at) FROM contest_cache`).Scan(&updMs)
	if err != nil {
		return 0, false, fmt.Errorf("cache age: %w", err)
	}
	if !updMs.Valid {
		return 0, false, nil
	}
	return time.Since(time.UnixMilli(updMs.Int64)), true, nil
}

// IsStale reports whether the cache is empty or older than maxAge.
// maxAge <= 0 selects DefaultMaxAge.
func (s *Store) IsStale(ctx context.Context, maxAge time.Duration) (bool, error) {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	age, ok, err := s.CacheAge(ctx)
	if err != nil {
		return true, err
	}
	if !ok {
		return true, nil
	}
	return age > maxAge, nil
}

// Count returns the number of cached contests.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM contest_cache`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count cache: %w", err)
	}
	return n, nil
}
