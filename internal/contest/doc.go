// Package contest implements the contest cache: a clist-compatible
// source client, normalization into canonical records, a SQLite-backed
// store with atomic snapshot replacement, a single-flight refresher and
// the read facade used by commands and announcements.
package contest
