// Package storage owns the bot's SQLite database: connection setup,
// pragmas, and schema migration. Domain stores (contest cache, guild
// settings, bot admins) build their queries on the handle it returns.
package storage
