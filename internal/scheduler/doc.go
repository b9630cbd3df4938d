// Package scheduler runs the bot's recurring jobs: the periodic cache
// refresh, the minutely announcement scan and the daily role sweep.
//
// Jobs are registered under a stable logical name (e.g.
// "contest:refresh") so re-registration across config reloads upserts
// instead of duplicating. Several schedule syntaxes are accepted:
//
//   - Cron expressions, 5-field or 6-field with seconds: "55 * * * *"
//   - Cron descriptors: "@hourly", "@every 55m"
//   - Go durations: "6h", "2h30m"
//   - HH:MM as an interval: "00:50" runs every 50 minutes
//
// Callers may force interpretation with a "cron:", "interval:" or
// "every:" prefix.
//
// Jobs execute on a small worker pool with a per-run timeout, bounded
// retries with jittered backoff, and an overlap policy that by default
// skips a tick while the previous run is still going. The service can
// be stopped and restarted at runtime; definitions registered while
// stopped are applied on the next start.
package scheduler
