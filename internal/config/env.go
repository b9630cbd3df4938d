package config

import (
	"os"
	"strings"
)

// Environment variables that override config file fields. Secrets live here
// so config files stay shareable.
const (
	EnvDiscordToken  = "DISCORD_TOKEN"
	EnvClistUsername = "CLIST_API_USERNAME"
	EnvClistAPIKey   = "CLIST_API_KEY"
)

// ApplyEnv overlays secret fields from the process environment.
// A set environment variable always wins over the file value.
func ApplyEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	if v := strings.TrimSpace(os.Getenv(EnvDiscordToken)); v != "" {
		cfg.Discord.Token = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvClistUsername)); v != "" {
		cfg.Source.Username = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvClistAPIKey)); v != "" {
		cfg.Source.APIKey = v
	}
}
