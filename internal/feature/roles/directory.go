package roles

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	logx "loungebot/pkg/logx"
)

// memberPageSize is the API maximum for one guild members page.
const memberPageSize = 1000

// SessionDirectory implements Directory over the gateway session.
type SessionDirectory struct {
	sess *discordgo.Session
	log  logx.Logger
}

func NewSessionDirectory(sess *discordgo.Session, log logx.Logger) *SessionDirectory {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &SessionDirectory{sess: sess, log: log}
}

func (d *SessionDirectory) GuildIDs() []string {
	if d.sess.State == nil {
		return nil
	}
	d.sess.State.RLock()
	defer d.sess.State.RUnlock()
	out := make([]string, 0, len(d.sess.State.Guilds))
	for _, g := range d.sess.State.Guilds {
		out = append(out, g.ID)
	}
	return out
}

// Members pages through the full member list. Requires the guild
// members intent.
func (d *SessionDirectory) Members(ctx context.Context, guildID string) ([]Member, error) {
	var out []Member
	after := ""
	for {
		page, err := d.sess.GuildMembers(guildID, after, memberPageSize, discordgo.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("guild members page: %w", err)
		}
		for _, m := range page {
			if m.User == nil {
				continue
			}
			out = append(out, Member{
				UserID:   m.User.ID,
				Username: m.User.Username,
				IsBot:    m.User.Bot,
				RoleIDs:  append([]string(nil), m.Roles...),
			})
			after = m.User.ID
		}
		if len(page) < memberPageSize {
			return out, nil
		}
	}
}

func (d *SessionDirectory) EnsureRole(ctx context.Context, guildID, name string, color int, mentionable bool) (string, error) {
	roles, err := d.sess.GuildRoles(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("guild roles: %w", err)
	}
	for _, r := range roles {
		if r.Name == name {
			return r.ID, nil
		}
	}

	created, err := d.sess.GuildRoleCreate(guildID, &discordgo.RoleParams{
		Name:        name,
		Color:       &color,
		Mentionable: &mentionable,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("create role %q: %w", name, err)
	}
	d.log.Info("role created", logx.String("guild_id", guildID), logx.String("role", name), logx.String("role_id", created.ID))
	return created.ID, nil
}

func (d *SessionDirectory) AddRole(ctx context.Context, guildID, userID, roleID string) error {
	return d.sess.GuildMemberRoleAdd(guildID, userID, roleID, discordgo.WithContext(ctx))
}

// BindMemberJoin registers the gateway hook that runs the veteran check
// for members as they join. discordgo dispatches handlers on their own
// goroutines, so the REST calls here do not stall the gateway. The
// returned func removes the handler.
func BindMemberJoin(sess *discordgo.Session, f *Feature) func() {
	return sess.AddHandler(func(s *discordgo.Session, e *discordgo.GuildMemberAdd) {
		if e.User == nil || e.User.Bot {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		m := Member{
			UserID:   e.User.ID,
			Username: e.User.Username,
			RoleIDs:  append([]string(nil), e.Roles...),
		}
		if err := f.HandleMemberJoin(ctx, e.GuildID, m); err != nil {
			f.log.Warn("veteran check on join failed",
				logx.String("guild_id", e.GuildID),
				logx.String("user_id", e.User.ID),
				logx.Err(err),
			)
		}
	})
}
