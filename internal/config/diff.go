package config

import (
	"reflect"
	"sort"
	"strings"

	logx "loungebot/pkg/logx"
)

// SummarizeConfigChange returns (1) a compact list of changed sections and
// (2) safe structured attrs for logging (never includes secrets like tokens
// or API keys).
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 20)

	// Discord (never log the token)
	if !reflect.DeepEqual(oldCfg.Discord.OwnerUserIDs, newCfg.Discord.OwnerUserIDs) ||
		strings.TrimSpace(oldCfg.Discord.GuildID) != strings.TrimSpace(newCfg.Discord.GuildID) ||
		strings.TrimSpace(oldCfg.Discord.Presence) != strings.TrimSpace(newCfg.Discord.Presence) ||
		(strings.TrimSpace(oldCfg.Discord.Token) != "") != (strings.TrimSpace(newCfg.Discord.Token) != "") {
		changed = append(changed, "discord")
		attrs = append(attrs,
			logx.Int("discord.owner_count", len(newCfg.Discord.OwnerUserIDs)),
			logx.Bool("discord.guild_scoped", strings.TrimSpace(newCfg.Discord.GuildID) != ""),
			logx.Bool("discord.token_set", strings.TrimSpace(newCfg.Discord.Token) != ""),
		)
	}

	// Logging
	if oldCfg.Logging.Level != newCfg.Logging.Level ||
		oldCfg.Logging.Console != newCfg.Logging.Console ||
		oldCfg.Logging.File.Enabled != newCfg.Logging.File.Enabled ||
		strings.TrimSpace(oldCfg.Logging.File.Path) != strings.TrimSpace(newCfg.Logging.File.Path) ||
		oldCfg.Logging.Discord.Enabled != newCfg.Logging.Discord.Enabled ||
		strings.TrimSpace(oldCfg.Logging.Discord.ChannelID) != strings.TrimSpace(newCfg.Logging.Discord.ChannelID) ||
		oldCfg.Logging.Discord.MinLevel != newCfg.Logging.Discord.MinLevel ||
		oldCfg.Logging.Discord.RatePerSec != newCfg.Logging.Discord.RatePerSec {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logx.discord_enabled", newCfg.Logging.Discord.Enabled),
		)
	}

	// Source (never log the credentials)
	if strings.TrimSpace(oldCfg.Source.BaseURL) != strings.TrimSpace(newCfg.Source.BaseURL) ||
		strings.TrimSpace(oldCfg.Source.Timeout) != strings.TrimSpace(newCfg.Source.Timeout) ||
		oldCfg.Source.Limit != newCfg.Source.Limit ||
		(strings.TrimSpace(oldCfg.Source.Username) != "") != (strings.TrimSpace(newCfg.Source.Username) != "") ||
		(strings.TrimSpace(oldCfg.Source.APIKey) != "") != (strings.TrimSpace(newCfg.Source.APIKey) != "") {
		changed = append(changed, "source")
		attrs = append(attrs,
			logx.String("source.base_url", strings.TrimSpace(newCfg.Source.BaseURL)),
			logx.String("source.timeout", strings.TrimSpace(newCfg.Source.Timeout)),
			logx.Bool("source.auth_set", strings.TrimSpace(newCfg.Source.APIKey) != ""),
		)
	}

	// Cache
	if strings.TrimSpace(oldCfg.Cache.RefreshInterval) != strings.TrimSpace(newCfg.Cache.RefreshInterval) ||
		strings.TrimSpace(oldCfg.Cache.MaxAge) != strings.TrimSpace(newCfg.Cache.MaxAge) ||
		oldCfg.Cache.WindowDays != newCfg.Cache.WindowDays {
		changed = append(changed, "cache")
		attrs = append(attrs,
			logx.String("cache.refresh_interval", strings.TrimSpace(newCfg.Cache.RefreshInterval)),
			logx.String("cache.max_age", strings.TrimSpace(newCfg.Cache.MaxAge)),
			logx.Int("cache.window_days", newCfg.Cache.WindowDays),
		)
	}

	// Scheduler
	if !reflect.DeepEqual(oldCfg.Scheduler, newCfg.Scheduler) {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Bool("scheduler.enabled", newCfg.Scheduler.Enabled),
			logx.Int("scheduler.workers", newCfg.Scheduler.Workers),
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
		)
	}

	// Announce
	if !reflect.DeepEqual(oldCfg.Announce, newCfg.Announce) {
		changed = append(changed, "announce")
		attrs = append(attrs,
			logx.Bool("announce.enabled", newCfg.Announce.Enabled),
			logx.Int("announce.workers", newCfg.Announce.Workers),
			logx.Int("announce.rate_per_sec", newCfg.Announce.RatePerSec),
		)
	}

	// Roles
	if !reflect.DeepEqual(oldCfg.Roles, newCfg.Roles) {
		changed = append(changed, "roles")
		attrs = append(attrs,
			logx.Bool("roles.veteran_enabled", newCfg.Roles.VeteranEnabled),
			logx.Int("roles.veteran_years", newCfg.Roles.VeteranYears),
			logx.String("roles.check_time", strings.TrimSpace(newCfg.Roles.CheckTime)),
		)
	}

	// Storage (path changes require restart; still summarized)
	if strings.TrimSpace(oldCfg.Storage.Path) != strings.TrimSpace(newCfg.Storage.Path) ||
		strings.TrimSpace(oldCfg.Storage.BusyTimeout) != strings.TrimSpace(newCfg.Storage.BusyTimeout) {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.Bool("storage.path_set", strings.TrimSpace(newCfg.Storage.Path) != ""),
			logx.String("storage.busy_timeout", strings.TrimSpace(newCfg.Storage.BusyTimeout)),
		)
	}

	// Pprof (never log token)
	if oldCfg.Pprof.Enabled != newCfg.Pprof.Enabled ||
		strings.TrimSpace(oldCfg.Pprof.Addr) != strings.TrimSpace(newCfg.Pprof.Addr) ||
		strings.TrimSpace(oldCfg.Pprof.Prefix) != strings.TrimSpace(newCfg.Pprof.Prefix) ||
		oldCfg.Pprof.AllowInsecure != newCfg.Pprof.AllowInsecure ||
		strings.TrimSpace(oldCfg.Pprof.ReadTimeout) != strings.TrimSpace(newCfg.Pprof.ReadTimeout) ||
		strings.TrimSpace(oldCfg.Pprof.WriteTimeout) != strings.TrimSpace(newCfg.Pprof.WriteTimeout) ||
		strings.TrimSpace(oldCfg.Pprof.IdleTimeout) != strings.TrimSpace(newCfg.Pprof.IdleTimeout) ||
		oldCfg.Pprof.MutexProfileFraction != newCfg.Pprof.MutexProfileFraction ||
		oldCfg.Pprof.BlockProfileRate != newCfg.Pprof.BlockProfileRate ||
		oldCfg.Pprof.MemProfileRate != newCfg.Pprof.MemProfileRate ||
		(strings.TrimSpace(oldCfg.Pprof.Token) != "") != (strings.TrimSpace(newCfg.Pprof.Token) != "") {
		changed = append(changed, "pprof")
		attrs = append(attrs,
			logx.Bool("pprof.enabled", newCfg.Pprof.Enabled),
			logx.String("pprof.addr", strings.TrimSpace(newCfg.Pprof.Addr)),
			logx.Bool("pprof.token_set", strings.TrimSpace(newCfg.Pprof.Token) != ""),
		)
	}

	// Netdiag
	if !reflect.DeepEqual(oldCfg.Netdiag, newCfg.Netdiag) {
		changed = append(changed, "netdiag")
		attrs = append(attrs,
			logx.Bool("netdiag.enabled", newCfg.Netdiag.Enabled),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}
