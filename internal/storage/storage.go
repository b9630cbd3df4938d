package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "loungebot/pkg/logx"
)

// Config configures the SQLite database.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default (5s)
}

// DB wraps the shared sql handle. All domain stores go through it so
// connection limits and pragmas are set exactly once.
type DB struct {
	sql *sql.DB
	log logx.Logger
}

// Schema is idempotent (IF NOT EXISTS) and applied on every open.
// Times are stored as unix milliseconds so MAX() and range filters
// compare numerically.
const schema = `
CREATE TABLE IF NOT EXISTS contest_cache (
    id               TEXT PRIMARY KEY,
    name             TEXT NOT NULL,
    platform         TEXT NOT NULL,
    start_time       INTEGER NOT NULL,
    end_time         INTEGER NOT NULL,
    duration_seconds INTEGER NOT NULL DEFAULT 0,
    url              TEXT,
    updated_at       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_contest_platform_start ON contest_cache(platform, start_time);
CREATE INDEX IF NOT EXISTS idx_contest_start ON contest_cache(start_time);

CREATE TABLE IF NOT EXISTS guild_settings (
    guild_id           TEXT PRIMARY KEY,
    contest_channel_id TEXT,
    announcement_time  TEXT NOT NULL DEFAULT '09:00',
    last_announcement  TEXT,
    updated_at         INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS bot_admins (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    guild_id   TEXT NOT NULL,
    user_id    TEXT NOT NULL DEFAULT '',
    role_id    TEXT NOT NULL DEFAULT '',
    granted_by TEXT,
    granted_at INTEGER NOT NULL,
    UNIQUE(guild_id, user_id, role_id)
);
CREATE INDEX IF NOT EXISTS idx_bot_admins_guild ON bot_admins(guild_id);
`

// Open creates/opens the database file, applies pragmas and the schema.
func Open(cfg Config, log logx.Logger) (*DB, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	// ":memory:" is used by tests; it has no parent directory.
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create storage dir: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer; readers share the same conn via WAL.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA foreign_keys = ON")

	d := &DB{sql: db, log: log}
	if err := d.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.Debug("storage opened", logx.String("path", path))
	return d, nil
}

func (d *DB) migrate(ctx context.Context) error {
	_, err := d.sql.ExecContext(ctx, schema)
	return err
}

// Handle exposes the underlying sql handle for domain stores.
func (d *DB) Handle() *sql.DB { return d.sql }

func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

// NullStr maps empty strings to SQL NULL.
func NullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
