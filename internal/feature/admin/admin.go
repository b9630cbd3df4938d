// Package admin carries the bot-administration surface: grant and
// revoke bot-admin access, inspect the grant list, the /info status
// embed and the owner-only slash command re-sync.
package admin

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"loungebot/internal/contest"
	"loungebot/internal/guild"
	kit "loungebot/internal/transport"
	"loungebot/internal/transport/discord/router"
	logx "loungebot/pkg/logx"
)

// Syncer forces a slash-command re-registration. *adapter.Adapter
// satisfies it.
type Syncer interface {
	InvalidateCommandCache()
	RegisterCommands(ctx context.Context, cmds []kit.AppCommand) error
}

type Feature struct {
	guilds   *guild.Store
	contests *contest.Service
	registry *router.CommandManager
	syncer   Syncer
	started  time.Time
	log      logx.Logger
}

func New(guilds *guild.Store, contests *contest.Service, registry *router.CommandManager, syncer Syncer, log logx.Logger) *Feature {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Feature{
		guilds:   guilds,
		contests: contests,
		registry: registry,
		syncer:   syncer,
		started:  time.Now(),
		log:      log,
	}
}

func (f *Feature) Commands() []router.Command {
	targetOptions := []kit.CommandOption{
		{Name: "user", Description: "User to target", Kind: kit.OptionUser},
		{Name: "role", Description: "Role to target", Kind: kit.OptionRole},
	}
	return []router.Command{
		{
			Name:        "grant_admin",
			Description: "Give a user or role access to bot admin commands",
			Access:      router.AccessGuildAdmin,
			FeatureName: "admin",
			Options:     targetOptions,
			Handle:      f.handleGrant,
		},
		{
			Name:        "revoke_admin",
			Description: "Remove a user or role's bot admin access",
			Access:      router.AccessGuildAdmin,
			FeatureName: "admin",
			Options:     targetOptions,
			Handle:      f.handleRevoke,
		},
		{
			Name:        "list_admins",
			Description: "List who can use bot admin commands here",
			Access:      router.AccessGuildAdmin,
			FeatureName: "admin",
			Handle:      f.handleList,
		},
		{
			Name:        "info",
			Description: "Bot status and runtime info",
			Access:      router.AccessEveryone,
			FeatureName: "admin",
			Handle:      f.handleInfo,
		},
		{
			Name:        "sync",
			Description: "Force a slash command re-registration",
			Access:      router.AccessOwnerOnly,
			FeatureName: "admin",
			Timeout:     time.Minute,
			Handle:      f.handleSync,
		},
	}
}

// pickTarget enforces the user-or-role exclusivity shared by grant and
// revoke.
func pickTarget(ctx context.Context, req *router.Request) (userID, roleID string, ok bool, err error) {
	userID = req.In.StringOption("user")
	roleID = req.In.StringOption("role")
	switch {
	case userID == "" && roleID == "":
		return "", "", false, req.ReplyEphemeral(ctx, "pick a user or a role")
	case userID != "" && roleID != "":
		return "", "", false, req.ReplyEphemeral(ctx, "pick either a user or a role, not both")
	}
	return userID, roleID, true, nil
}

func (f *Feature) handleGrant(ctx context.Context, req *router.Request) error {
	if req.In.GuildID == "" {
		return req.ReplyEphemeral(ctx, "this command only works in a server")
	}
	userID, roleID, ok, err := pickTarget(ctx, req)
	if !ok {
		return err
	}
	if userID != "" {
		if err := f.guilds.GrantUser(ctx, req.In.GuildID, userID, req.In.UserID); err != nil {
			return fmt.Errorf("grant user: %w", err)
		}
		return req.Reply(ctx, fmt.Sprintf("✅ <@%s> can now use bot admin commands", userID))
	}
	if err := f.guilds.GrantRole(ctx, req.In.GuildID, roleID, req.In.UserID); err != nil {
		return fmt.Errorf("grant role: %w", err)
	}
	return req.Reply(ctx, fmt.Sprintf("✅ members of <@&%s> can now use bot admin commands", roleID))
}

func (f *Feature) handleRevoke(ctx context.Context, req *router.Request) error {
	if req.In.GuildID == "" {
		return req.ReplyEphemeral(ctx, "this command only works in a server")
	}
	userID, roleID, ok, err := pickTarget(ctx, req)
	if !ok {
		return err
	}
	if userID != "" {
		removed, err := f.guilds.RevokeUser(ctx, req.In.GuildID, userID)
		if err != nil {
			return fmt.Errorf("revoke user: %w", err)
		}
		if !removed {
			return req.ReplyEphemeral(ctx, fmt.Sprintf("<@%s> has no bot admin grant", userID))
		}
		return req.Reply(ctx, fmt.Sprintf("✅ removed <@%s>'s bot admin access", userID))
	}
	removed, err := f.guilds.RevokeRole(ctx, req.In.GuildID, roleID)
	if err != nil {
		return fmt.Errorf("revoke role: %w", err)
	}
	if !removed {
		return req.ReplyEphemeral(ctx, fmt.Sprintf("<@&%s> has no bot admin grant", roleID))
	}
	return req.Reply(ctx, fmt.Sprintf("✅ removed <@&%s>'s bot admin access", roleID))
}

func (f *Feature) handleList(ctx context.Context, req *router.Request) error {
	if req.In.GuildID == "" {
		return req.ReplyEphemeral(ctx, "this command only works in a server")
	}
	grants, err := f.guilds.Grants(ctx, req.In.GuildID)
	if err != nil {
		return fmt.Errorf("list grants: %w", err)
	}
	if len(grants) == 0 {
		return req.ReplyEphemeral(ctx, "no bot admins configured, server administrators always have access")
	}

	var users, roles []string
	for _, g := range grants {
		line := fmt.Sprintf("<@%s>", g.UserID)
		if g.IsRole() {
			line = fmt.Sprintf("<@&%s>", g.RoleID)
		}
		if g.GrantedBy != "" {
			line += fmt.Sprintf(" · granted by <@%s>", g.GrantedBy)
		}
		if g.IsRole() {
			roles = append(roles, line)
		} else {
			users = append(users, line)
		}
	}

	em := kit.Embed{
		Title:       "🔐 Bot Admins",
		Description: "Server administrators and the bot owner always have access.",
		Color:       0x3498db,
	}
	if len(users) > 0 {
		em.Fields = append(em.Fields, kit.EmbedField{Name: "Users", Value: strings.Join(users, "\n")})
	}
	if len(roles) > 0 {
		em.Fields = append(em.Fields, kit.EmbedField{Name: "Roles", Value: strings.Join(roles, "\n")})
	}
	return req.ReplyEmbeds(ctx, em)
}

func (f *Feature) handleInfo(ctx context.Context, req *router.Request) error {
	st, count, age := f.contests.Status(ctx)
	configured, err := f.guilds.All(ctx)
	if err != nil {
		req.Logger.Warn("guild settings listing failed", logx.Err(err))
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	cache := "empty"
	if count > 0 {
		cache = fmt.Sprintf("%d contests, refreshed %s ago", count, humanDuration(age))
	}
	refresh := st.State
	if st.LastError != "" {
		refresh += " · last error: " + st.LastError
	} else if !st.LastSuccess.IsZero() {
		refresh += fmt.Sprintf(" · last success %s ago", humanDuration(time.Since(st.LastSuccess)))
	}

	em := kit.Embed{
		Title: "🤖 Bot Info",
		Color: 0x3498db,
		Fields: []kit.EmbedField{
			{Name: "Uptime", Value: humanDuration(time.Since(f.started)), Inline: true},
			{Name: "Configured servers", Value: fmt.Sprintf("%d", len(configured)), Inline: true},
			{Name: "Commands", Value: fmt.Sprintf("%d", len(f.registry.Commands())), Inline: true},
			{Name: "Contest cache", Value: cache},
			{Name: "Refresh", Value: refresh},
			{Name: "Runtime", Value: fmt.Sprintf("%s · %d goroutines · %d MiB heap",
				runtime.Version(), runtime.NumGoroutine(), m.HeapAlloc/(1<<20))},
		},
		Timestamp: time.Now(),
	}
	return req.ReplyEmbeds(ctx, em)
}

func (f *Feature) handleSync(ctx context.Context, req *router.Request) error {
	if err := req.Defer(ctx, true); err != nil {
		return err
	}
	f.syncer.InvalidateCommandCache()
	cmds := f.registry.AppCommands()
	if err := f.syncer.RegisterCommands(ctx, cmds); err != nil {
		req.Logger.Warn("command sync failed", logx.Err(err))
		return req.Followup(ctx, kit.Message{Text: "command sync failed, check the logs", Ephemeral: true})
	}
	return req.Followup(ctx, kit.Message{Text: fmt.Sprintf("✅ Synced %d slash commands", len(cmds)), Ephemeral: true})
}

// humanDuration renders coarse durations for status embeds: "12s",
// "4m", "3h 12m", "2d 4h".
func humanDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		h := int(d.Hours())
		m := int(d.Minutes()) % 60
		if m == 0 {
			return fmt.Sprintf("%dh", h)
		}
		return fmt.Sprintf("%dh %dm", h, m)
	default:
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		if h == 0 {
			return fmt.Sprintf("%dd", days)
		}
		return fmt.Sprintf("%dd %dh", days, h)
	}
}
