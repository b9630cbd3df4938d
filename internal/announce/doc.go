// Package announce delivers the daily contest announcement to every guild
// that configured a contest channel.
//
// # Scan
//
// A minutely scheduler job calls Scan, which asks the guild store for the
// guilds whose announcement time has been reached in the display zone and
// which have not been announced today. Each due guild gets today's contest
// embed enqueued. When there are no contests today the scan sends nothing
// and leaves the guilds due, so a later cache refresh that surfaces a
// contest can still trigger an announcement the same day.
//
// # Delivery
//
// Enqueued announcements flow through a small worker pool behind a shared
// rate limiter, with bounded per-send retry. The last-announcement date is
// stamped only after a send succeeds; a failed send leaves the guild due
// and the next scan picks it up again.
package announce
