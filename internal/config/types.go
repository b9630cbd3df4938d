package config

type Config struct {
	Discord DiscordConfig `json:"discord"`
	Logging LoggingConfig `json:"logging"`

	// Source is the remote contest listing API (clist-compatible).
	Source SourceConfig `json:"source"`

	// Cache controls the contest refresh engine.
	Cache CacheConfig `json:"cache"`

	Scheduler SchedulerConfig `json:"scheduler"`
	Announce  AnnounceConfig  `json:"announce"`
	Roles     RolesConfig     `json:"roles"`
	Storage   StorageConfig   `json:"storage"`
	Pprof     PprofConfig     `json:"pprof,omitempty"`
	Netdiag   NetdiagConfig   `json:"netdiag,omitempty"`
}

// DiscordConfig identifies the bot and its operators.
//
// Token should normally come from the DISCORD_TOKEN environment variable
// (see ApplyEnv); the config field exists for dev setups only.
type DiscordConfig struct {
	Token        string   `json:"token,omitempty"`
	OwnerUserIDs []string `json:"owner_user_ids"`

	// GuildID limits slash-command registration to one guild (instant
	// propagation, useful in dev). Empty registers globally.
	GuildID string `json:"guild_id,omitempty"`

	// Presence is the "watching ..." activity text.
	Presence string `json:"presence,omitempty"`
}

type LoggingConfig struct {
	Level   string         `json:"level"`
	Console bool           `json:"console"`
	File    LoggingFile    `json:"file"`
	Discord LoggingDiscord `json:"discord"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingDiscord forwards warn/error lines to a Discord channel.
type LoggingDiscord struct {
	Enabled    bool   `json:"enabled"`
	ChannelID  string `json:"channel_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// SourceConfig configures the clist-compatible contest API client.
//
// Username/APIKey should normally come from CLIST_API_USERNAME /
// CLIST_API_KEY (see ApplyEnv). Missing credentials degrade to
// unauthenticated requests.
type SourceConfig struct {
	BaseURL  string `json:"base_url,omitempty"` // default: https://clist.by/api/v4
	Username string `json:"username,omitempty"`
	APIKey   string `json:"api_key,omitempty"`
	// Timeout is a Go duration string bounding one fetch (default "30s").
	Timeout string `json:"timeout,omitempty"`
	// Limit caps the number of records per fetch (0 = source default).
	Limit int `json:"limit,omitempty"`
}

// CacheConfig controls the contest refresh engine.
//
// All durations are Go duration strings (e.g. "6h", "30m").
type CacheConfig struct {
	// RefreshInterval is the periodic refetch period (default "6h").
	RefreshInterval string `json:"refresh_interval,omitempty"`
	// MaxAge is the staleness threshold (default "6h").
	MaxAge string `json:"max_age,omitempty"`
	// WindowDays is the fetch look-ahead window (default 30).
	WindowDays int `json:"window_days,omitempty"`
}

// SchedulerConfig controls the cron-backed job service.
type SchedulerConfig struct {
	Enabled bool `json:"enabled"`
	Workers int  `json:"workers,omitempty"`
	// DefaultTimeout is a Go duration string (e.g. "10s", "1m").
	// Use "0s" to disable a global default timeout.
	DefaultTimeout string `json:"default_timeout,omitempty"`
	HistorySize    int    `json:"history_size,omitempty"`

	// Timezone for daily (HH:MM) triggers; default Asia/Kolkata, the bot's
	// display timezone.
	Timezone string `json:"timezone,omitempty"`
}

// AnnounceConfig controls the daily contest announcement pipeline.
//
// All durations are Go duration strings.
type AnnounceConfig struct {
	Enabled       bool   `json:"enabled"`
	Workers       int    `json:"workers,omitempty"`
	QueueSize     int    `json:"queue_size,omitempty"`
	RatePerSec    int    `json:"rate_per_sec,omitempty"`
	RetryMax      int    `json:"retry_max,omitempty"`
	RetryBase     string `json:"retry_base,omitempty"`
	RetryMaxDelay string `json:"retry_max_delay,omitempty"`
}

// RolesConfig controls the Discord Veteran role automation.
type RolesConfig struct {
	VeteranEnabled bool `json:"veteran_enabled"`
	// VeteranRole is the role name to assign (default "Discord Veteran").
	VeteranRole string `json:"veteran_role,omitempty"`
	// VeteranYears is the minimum account age (default 5).
	VeteranYears int `json:"veteran_years,omitempty"`
	// CheckTime is the daily sweep time as HH:MM in the scheduler timezone
	// (default "00:30").
	CheckTime string `json:"check_time,omitempty"`
}

// StorageConfig controls the SQLite database.
//
// Example:
//
//	"storage": { "path": "./data/loungebot.db" }
type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
}

// PprofConfig controls the optional pprof HTTP server.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:6060").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type PprofConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`   // default: "127.0.0.1:6060"
	Prefix        string `json:"prefix,omitempty"` // default: "/debug/pprof/"
	Token         string `json:"token,omitempty"`  // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	// Server timeouts (Go duration strings). WriteTimeout defaults to 0 (disabled)
	// so /profile (which can take 30s+) works reliably.
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`

	// Runtime profiling rates. Leave 0 to keep Go defaults.
	MutexProfileFraction int `json:"mutex_profile_fraction,omitempty"`
	BlockProfileRate     int `json:"block_profile_rate,omitempty"`
	MemProfileRate       int `json:"mem_profile_rate,omitempty"`
}

// NetdiagConfig controls the owner-only host connectivity probe.
type NetdiagConfig struct {
	Enabled bool `json:"enabled"`
	// ServerCount is how many nearby servers to consider (default 3).
	ServerCount int `json:"server_count,omitempty"`
	// Timeout bounds one probe run (Go duration string, default "60s").
	Timeout string `json:"timeout,omitempty"`
}
