// Package guild persists per-guild announcement settings and the
// bot-admin grant list, and resolves the privilege chain used by
// restricted commands.
package guild
