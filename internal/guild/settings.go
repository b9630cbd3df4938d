package guild

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	logx "loungebot/pkg/logx"

	"loungebot/internal/storage"
)

// DefaultAnnouncementTime is applied when a guild has never set one.
const DefaultAnnouncementTime = "09:00"

// DateLayout is the day stamp recorded after a successful announcement,
// evaluated in the display zone.
const DateLayout = "2006-01-02"

// Settings is one guild's announcement configuration.
type Settings struct {
	GuildID          string
	ContestChannelID string // empty until /contest_setup ran
	AnnouncementTime string // "HH:MM", display zone
	LastAnnouncement string // DateLayout, display zone; empty if never
	UpdatedAt        time.Time
}

// Store reads and writes guild settings and admin grants.
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

// ValidateAnnouncementTime parses user input as HH:MM on a 24h clock
// and returns the normalized zero-padded form.
func ValidateAnnouncementTime(s string) (string, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return "", fmt.Errorf("time must be HH:MM, got %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return "", fmt.Errorf("hour out of range in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return "", fmt.Errorf("minute out of range in %q", s)
	}
	return fmt.Sprintf("%02d:%02d", h, m), nil
}

// Get returns the guild's settings, falling back to defaults for a
// guild that never configured anything.
func (s *Store) Get(ctx context.Context, guildID string) (Settings, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT guild_id, contest_channel_id, announcement_time, last_announcement, updated_at
		FROM guild_settings WHERE guild_id = ?`, guildID)

	var (
		out           Settings
		channel, last sql.NullString
		updMs         int64
	)
	err := row.Scan(&out.GuildID, &channel, &out.AnnouncementTime, &last, &updMs)
	if err == sql.ErrNoRows {
		return Settings{GuildID: guildID, AnnouncementTime: DefaultAnnouncementTime}, nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("get guild settings: %w", err)
	}
	out.ContestChannelID = channel.String
	out.LastAnnouncement = last.String
	out.UpdatedAt = time.UnixMilli(updMs).UTC()
	return out, nil
}

// SetContestChannel records where daily announcements go. Creates the
// settings row on first use.
func (s *Store) SetContestChannel(ctx context.Context, guildID, channelID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO guild_settings (guild_id, contest_channel_id, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(guild_id) DO UPDATE SET
			contest_channel_id = excluded.contest_channel_id,
			updated_at = excluded.updated_at`,
		guildID, storage.NullStr(channelID), time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("set contest channel: %w", err)
	}
	s.log.Info("contest channel configured",
		logx.String("guild_id", guildID),
		logx.String("channel_id", channelID),
	)
	return nil
}

// SetAnnouncementTime validates and stores the daily announcement time.
func (s *Store) SetAnnouncementTime(ctx context.Context, guildID, hhmm string) error {
	normalized, err := ValidateAnnouncementTime(hhmm)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO guild_settings (guild_id, announcement_time, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(guild_id) DO UPDATE SET
			announcement_time = excluded.announcement_time,
			updated_at = excluded.updated_at`,
		guildID, normalized, time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("set announcement time: %w", err)
	}
	s.log.Info("announcement time configured",
		logx.String("guild_id", guildID),
		logx.String("time", normalized),
	)
	return nil
}

// MarkAnnounced stamps the day so the minutely scan never announces a
// guild twice on the same date.
func (s *Store) MarkAnnounced(ctx context.Context, guildID, date string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE guild_settings SET last_announcement = ?, updated_at = ?
		WHERE guild_id = ?`,
		date, time.Now().UnixMilli(), guildID,
	)
	if err != nil {
		return fmt.Errorf("mark announced: %w", err)
	}
	return nil
}

// DueAt returns the guilds whose configured announcement time has been
// reached in loc and which have not been announced today. The <= match
// (zero-padded HH:MM compares correctly as text) lets a scan that missed
// the exact minute, e.g. across a restart, catch up later the same day.
// Guilds without a configured channel are never due.
func (s *Store) DueAt(ctx context.Context, now time.Time, loc *time.Location) ([]Settings, error) {
	local := now.In(loc)
	hhmm := local.Format("15:04")
	today := local.Format(DateLayout)

	rows, err := s.db.QueryContext(ctx, `
		SELECT guild_id, contest_channel_id, announcement_time, last_announcement, updated_at
		FROM guild_settings
		WHERE contest_channel_id IS NOT NULL
		  AND announcement_time <= ?
		  AND (last_announcement IS NULL OR last_announcement != ?)`,
		hhmm, today,
	)
	if err != nil {
		return nil, fmt.Errorf("scan due guilds: %w", err)
	}
	defer rows.Close()

	var out []Settings
	for rows.Next() {
		var (
			g             Settings
			channel, last sql.NullString
			updMs         int64
		)
		if err := rows.Scan(&g.GuildID, &channel, &g.AnnouncementTime, &last, &updMs); err != nil {
			return nil, fmt.Errorf("scan guild row: %w", err)
		}
		g.ContestChannelID = channel.String
		g.LastAnnouncement = last.String
		g.UpdatedAt = time.UnixMilli(updMs).UTC()
		out = append(out, g)
	}
	return out, rows.Err()
}

// All returns every guild with stored settings.
func (s *Store) All(ctx context.Context) ([]Settings, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT guild_id, contest_channel_id, announcement_time, last_announcement, updated_at
		FROM guild_settings ORDER BY guild_id`)
	if err != nil {
		return nil, fmt.Errorf("list guilds: %w", err)
	}
	defer rows.Close()

	var out []Settings
	for rows.Next() {
		var (
			g             Settings
			channel, last sql.NullString
			updMs         int64
		)
		if err := rows.Scan(&g.GuildID, &channel, &g.AnnouncementTime, &last, &updMs); err != nil {
			return nil, fmt.Errorf("scan guild row: %w", err)
		}
		g.ContestChannelID = channel.String
		g.LastAnnouncement = last.String
		g.UpdatedAt = time.UnixMilli(updMs).UTC()
		out = append(out, g)
	}
	return out, rows.Err()
}
