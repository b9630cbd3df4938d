// Package roles automates the "Discord Veteran" role: members whose
// accounts are old enough get it assigned, via a daily sweep, an
// on-join check and a manual admin command. Account age comes from the
// user id snowflake, so no profile fetch is needed.
package roles

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/time/rate"

	"loungebot/internal/scheduler"
	logx "loungebot/pkg/logx"
)

const (
	DefaultRoleName  = "Discord Veteran"
	DefaultMinYears  = 5
	DefaultCheckTime = "00:30"

	roleColor = 0xf1c40f // gold
)

var ErrDisabled = errors.New("veteran roles disabled")

type Config struct {
	Enabled  bool
	RoleName string
	MinYears int
	// CheckTime is the daily sweep time as HH:MM in the scheduler
	// timezone.
	CheckTime string
}

func (c Config) withDefaults() Config {
	if c.RoleName == "" {
		c.RoleName = DefaultRoleName
	}
	if c.MinYears <= 0 {
		c.MinYears = DefaultMinYears
	}
	if c.CheckTime == "" {
		c.CheckTime = DefaultCheckTime
	}
	return c
}

// Member is the slice of a guild member the veteran check needs.
type Member struct {
	UserID   string
	Username string
	IsBot    bool
	RoleIDs  []string
}

// Directory is the guild surface the feature talks to.
// *SessionDirectory implements it over the gateway session; tests
// substitute fakes.
type Directory interface {
	GuildIDs() []string
	Members(ctx context.Context, guildID string) ([]Member, error)
	// EnsureRole returns the id of the named role, creating it when the
	// guild does not have it yet.
	EnsureRole(ctx context.Context, guildID, name string, color int, mentionable bool) (string, error)
	AddRole(ctx context.Context, guildID, userID, roleID string) error
}

// SweepResult summarizes one veteran sweep.
type SweepResult struct {
	Guilds   int
	Checked  int // non-bot members examined
	Assigned int // newly granted
	Skipped  int // veterans that already had the role
	Errors   int
}

type Feature struct {
	cfg Config
	dir Directory
	log logx.Logger

	// limiter paces role assignments so a large backlog does not hammer
	// the API.
	limiter *rate.Limiter
}

func New(cfg Config, dir Directory, log logx.Logger) *Feature {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Feature{
		cfg:     cfg.withDefaults(),
		dir:     dir,
		log:     log,
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

func (f *Feature) Enabled() bool { return f.cfg.Enabled }

// AccountCreated derives the account creation instant from the user id
// snowflake.
func AccountCreated(userID string) (time.Time, error) {
	return discordgo.SnowflakeTimestamp(userID)
}

// accountYears measures account age in 365.25-day years, matching the
// qualification wording ("5+ years").
func accountYears(created, now time.Time) float64 {
	return now.Sub(created).Hours() / 24 / 365.25
}

func (f *Feature) isVeteran(userID string, now time.Time) bool {
	created, err := AccountCreated(userID)
	if err != nil {
		f.log.Debug("unparsable user snowflake", logx.String("user_id", userID), logx.Err(err))
		return false
	}
	return accountYears(created, now) >= float64(f.cfg.MinYears)
}

// Sweep runs the veteran check across every guild the bot is in.
// Per-guild failures are logged and counted, never abort the sweep.
func (f *Feature) Sweep(ctx context.Context) (SweepResult, error) {
	if !f.cfg.Enabled {
		return SweepResult{}, ErrDisabled
	}
	var total SweepResult
	for _, gid := range f.dir.GuildIDs() {
		res, err := f.SweepGuild(ctx, gid)
		total.Checked += res.Checked
		total.Assigned += res.Assigned
		total.Skipped += res.Skipped
		total.Errors += res.Errors
		if err != nil {
			if ctx.Err() != nil {
				return total, ctx.Err()
			}
			f.log.Warn("veteran sweep failed for guild", logx.String("guild_id", gid), logx.Err(err))
			total.Errors++
			continue
		}
		total.Guilds++
	}
	return total, nil
}

// SweepGuild runs the veteran check for one guild.
func (f *Feature) SweepGuild(ctx context.Context, guildID string) (SweepResult, error) {
	if !f.cfg.Enabled {
		return SweepResult{}, ErrDisabled
	}
	roleID, err := f.dir.EnsureRole(ctx, guildID, f.cfg.RoleName, roleColor, true)
	if err != nil {
		return SweepResult{}, fmt.Errorf("ensure veteran role: %w", err)
	}
	members, err := f.dir.Members(ctx, guildID)
	if err != nil {
		return SweepResult{}, fmt.Errorf("list members: %w", err)
	}

	res := SweepResult{Guilds: 1}
	now := time.Now()
	for _, m := range members {
		if m.IsBot {
			continue
		}
		res.Checked++
		if !f.isVeteran(m.UserID, now) {
			continue
		}
		if hasRole(m.RoleIDs, roleID) {
			res.Skipped++
			continue
		}
		if err := f.limiter.Wait(ctx); err != nil {
			return res, err
		}
		if err := f.dir.AddRole(ctx, guildID, m.UserID, roleID); err != nil {
			f.log.Warn("veteran role assign failed",
				logx.String("guild_id", guildID),
				logx.String("user_id", m.UserID),
				logx.Err(err),
			)
			res.Errors++
			continue
		}
		res.Assigned++
		f.log.Info("veteran role assigned",
			logx.String("guild_id", guildID),
			logx.String("user_id", m.UserID),
			logx.String("username", m.Username),
		)
	}
	f.log.Info("veteran sweep done",
		logx.String("guild_id", guildID),
		logx.Int("checked", res.Checked),
		logx.Int("assigned", res.Assigned),
		logx.Int("skipped", res.Skipped),
		logx.Int("errors", res.Errors),
	)
	return res, nil
}

// HandleMemberJoin runs the veteran check for a member as they join.
func (f *Feature) HandleMemberJoin(ctx context.Context, guildID string, m Member) error {
	if !f.cfg.Enabled || m.IsBot {
		return nil
	}
	if !f.isVeteran(m.UserID, time.Now()) {
		return nil
	}
	roleID, err := f.dir.EnsureRole(ctx, guildID, f.cfg.RoleName, roleColor, true)
	if err != nil {
		return fmt.Errorf("ensure veteran role: %w", err)
	}
	if hasRole(m.RoleIDs, roleID) {
		return nil
	}
	if err := f.dir.AddRole(ctx, guildID, m.UserID, roleID); err != nil {
		return fmt.Errorf("assign veteran role: %w", err)
	}
	f.log.Info("veteran role assigned on join",
		logx.String("guild_id", guildID),
		logx.String("user_id", m.UserID),
		logx.String("username", m.Username),
	)
	return nil
}

// RegisterJobs schedules the daily sweep. A no-op when disabled.
func (f *Feature) RegisterJobs(sched *scheduler.Service) error {
	if !f.cfg.Enabled {
		return nil
	}
	_, err := sched.AddDaily("roles.veteran_sweep", f.cfg.CheckTime, 30*time.Minute, func(ctx context.Context) error {
		_, err := f.Sweep(ctx)
		if errors.Is(err, ErrDisabled) {
			return nil
		}
		return err
	})
	return err
}

func hasRole(roleIDs []string, roleID string) bool {
	for _, id := range roleIDs {
		if id == roleID {
			return true
		}
	}
	return false
}
