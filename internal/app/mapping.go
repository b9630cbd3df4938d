package app

import (
	"strings"
	"time"

	"loungebot/internal/announce"
	"loungebot/internal/config"
	"loungebot/internal/contest"
	"loungebot/internal/feature/netdiag"
	"loungebot/internal/feature/roles"
	"loungebot/internal/observability/pprof"
	"loungebot/internal/scheduler"
	"loungebot/internal/storage"
	logx "loungebot/pkg/logx"
)

const defaultStoragePath = "./data/loungebot.db"

// The mappers below translate the JSON config (durations as strings,
// everything optional) into each component's typed Config. Zero values
// fall through to the component's own defaults unless noted.

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Discord: logx.DiscordConfig{
			Enabled:    cfg.Logging.Discord.Enabled,
			MinLevel:   cfg.Logging.Discord.MinLevel,
			RatePerSec: cfg.Logging.Discord.RatePerSec,
		},
	}
}

func mapSourceConfig(cfg *config.Config) (contest.ClientConfig, error) {
	timeout, err := config.ParseDurationOrDefault("source.timeout", cfg.Source.Timeout, 30*time.Second)
	if err != nil {
		return contest.ClientConfig{}, err
	}
	return contest.ClientConfig{
		BaseURL:  cfg.Source.BaseURL,
		Username: cfg.Source.Username,
		APIKey:   cfg.Source.APIKey,
		Timeout:  timeout,
		Limit:    cfg.Source.Limit,
	}, nil
}

func mapRefresherConfig(cfg *config.Config) (contest.RefresherConfig, error) {
	interval, err := config.ParseDurationOrDefault("cache.refresh_interval", cfg.Cache.RefreshInterval, 0)
	if err != nil {
		return contest.RefresherConfig{}, err
	}
	maxAge, err := config.ParseDurationOrDefault("cache.max_age", cfg.Cache.MaxAge, 0)
	if err != nil {
		return contest.RefresherConfig{}, err
	}
	return contest.RefresherConfig{
		Interval:   interval,
		MaxAge:     maxAge,
		WindowDays: cfg.Cache.WindowDays,
	}, nil
}

func mapAnnounceConfig(cfg *config.Config) (announce.Config, error) {
	retryBase, err := config.ParseDurationOrDefault("announce.retry_base", cfg.Announce.RetryBase, 0)
	if err != nil {
		return announce.Config{}, err
	}
	retryMaxDelay, err := config.ParseDurationOrDefault("announce.retry_max_delay", cfg.Announce.RetryMaxDelay, 0)
	if err != nil {
		return announce.Config{}, err
	}
	return announce.Config{
		Enabled:       cfg.Announce.Enabled,
		Workers:       cfg.Announce.Workers,
		QueueSize:     cfg.Announce.QueueSize,
		RatePerSec:    cfg.Announce.RatePerSec,
		RetryMax:      cfg.Announce.RetryMax,
		RetryBase:     retryBase,
		RetryMaxDelay: retryMaxDelay,
	}, nil
}

func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	// "0s" is an explicit opt-out of the global timeout; only an absent
	// field gets the default.
	defTimeout := time.Minute
	if raw := strings.TrimSpace(cfg.Scheduler.DefaultTimeout); raw != "" {
		d, err := config.ParseDurationField("scheduler.default_timeout", raw)
		if err != nil {
			return scheduler.Config{}, err
		}
		defTimeout = d
	}
	// Daily triggers (announcement scan gating, veteran sweep) follow the
	// bot's display timezone unless the config picks another zone.
	tz := strings.TrimSpace(cfg.Scheduler.Timezone)
	if tz == "" {
		tz = contest.DisplayZone().String()
	}
	return scheduler.Config{
		Enabled:        cfg.Scheduler.Enabled,
		Workers:        cfg.Scheduler.Workers,
		DefaultTimeout: defTimeout,
		HistorySize:    cfg.Scheduler.HistorySize,
		Timezone:       tz,
		// Scheduled jobs are idempotent sweeps; two retries absorbs
		// transient API and gateway hiccups.
		RetryMax: 2,
	}, nil
}

func mapRolesConfig(cfg *config.Config) roles.Config {
	return roles.Config{
		Enabled:   cfg.Roles.VeteranEnabled,
		RoleName:  cfg.Roles.VeteranRole,
		MinYears:  cfg.Roles.VeteranYears,
		CheckTime: cfg.Roles.CheckTime,
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	path := strings.TrimSpace(cfg.Storage.Path)
	if path == "" {
		path = defaultStoragePath
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 0)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{Path: path, BusyTimeout: busy}, nil
}

func mapPprofConfig(cfg *config.Config) (pprof.Config, error) {
	p := cfg.Pprof
	readTO, err := config.ParseDurationOrDefault("pprof.read_timeout", p.ReadTimeout, 5*time.Second)
	if err != nil {
		return pprof.Config{}, err
	}
	// WriteTimeout stays 0 unless set: /debug/pprof/profile holds the
	// response open for the whole sample window.
	writeTO, err := config.ParseDurationOrDefault("pprof.write_timeout", p.WriteTimeout, 0)
	if err != nil {
		return pprof.Config{}, err
	}
	idleTO, err := config.ParseDurationOrDefault("pprof.idle_timeout", p.IdleTimeout, 60*time.Second)
	if err != nil {
		return pprof.Config{}, err
	}
	return pprof.Config{
		Enabled:              p.Enabled,
		Addr:                 p.Addr,
		Prefix:               p.Prefix,
		Token:                p.Token,
		AllowInsecure:        p.AllowInsecure,
		ReadTimeout:          readTO,
		WriteTimeout:         writeTO,
		IdleTimeout:          idleTO,
		MutexProfileFraction: p.MutexProfileFraction,
		BlockProfileRate:     p.BlockProfileRate,
		MemProfileRate:       p.MemProfileRate,
	}, nil
}

func mapNetdiagConfig(cfg *config.Config) (netdiag.Config, error) {
	timeout, err := config.ParseDurationOrDefault("netdiag.timeout", cfg.Netdiag.Timeout, 0)
	if err != nil {
		return netdiag.Config{}, err
	}
	return netdiag.Config{
		Enabled:     cfg.Netdiag.Enabled,
		ServerCount: cfg.Netdiag.ServerCount,
		Timeout:     timeout,
	}, nil
}
