package contests

import (
	"context"
	"errors"
	"fmt"
	"time"

	"loungebot/internal/contest"
	"loungebot/internal/guild"
	kit "loungebot/internal/transport"
	"loungebot/internal/transport/discord/router"
	logx "loungebot/pkg/logx"
)

func platformOption() kit.CommandOption {
	return kit.CommandOption{
		Name:        "platform",
		Description: "Only show one platform",
		Kind:        kit.OptionString,
		Choices: []kit.Choice{
			{Name: "Codeforces", Value: string(contest.PlatformCodeforces)},
			{Name: "CodeChef", Value: string(contest.PlatformCodeChef)},
			{Name: "AtCoder", Value: string(contest.PlatformAtCoder)},
			{Name: "LeetCode", Value: string(contest.PlatformLeetCode)},
		},
	}
}

func (f *Feature) Commands() []router.Command {
	return []router.Command{
		{
			Name:        "contests",
			Description: "Show upcoming programming contests (IST timezone)",
			Access:      router.AccessEveryone,
			FeatureName: "contests",
			Options: []kit.CommandOption{
				{
					Name:        "days",
					Description: fmt.Sprintf("Days to look ahead (%d-%d, default %d)", contest.MinQueryDays, contest.MaxQueryDays, contest.DefaultQueryDays),
					Kind:        kit.OptionInteger,
				},
				platformOption(),
			},
			Handle: f.handleContests,
		},
		{
			Name:        "today",
			Description: "Show today's contests with live status",
			Access:      router.AccessEveryone,
			FeatureName: "contests",
			Options:     []kit.CommandOption{platformOption()},
			Handle:      f.handleToday,
		},
		{
			Name:        "tomorrow",
			Description: "Show tomorrow's contests",
			Access:      router.AccessEveryone,
			FeatureName: "contests",
			Options:     []kit.CommandOption{platformOption()},
			Handle:      f.handleTomorrow,
		},
		{
			Name:        "refresh_contests",
			Description: "Force a contest data refresh",
			Access:      router.AccessBotAdmin,
			FeatureName: "contests",
			Timeout:     2 * time.Minute,
			Handle:      f.handleRefresh,
		},
		{
			Name:        "contest_setup",
			Description: "Set the contest announcement channel",
			Access:      router.AccessGuildAdmin,
			FeatureName: "contests",
			Options: []kit.CommandOption{
				{
					Name:        "channel",
					Description: "Channel for contest announcements (default: current channel)",
					Kind:        kit.OptionChannel,
				},
			},
			Handle: f.handleSetup,
		},
		{
			Name:        "contest_time",
			Description: "Set the daily announcement time (HH:MM, IST)",
			Access:      router.AccessGuildAdmin,
			FeatureName: "contests",
			Options: []kit.CommandOption{
				{
					Name:        "time",
					Description: "24h clock, e.g. 09:00",
					Kind:        kit.OptionString,
					Required:    true,
				},
			},
			Handle: f.handleTime,
		},
	}
}

// Listing handlers defer first: a stale cache triggers an inline refresh
// that can outlive the 3 second acknowledgement window.

func (f *Feature) handleContests(ctx context.Context, req *router.Request) error {
	days := contest.DefaultQueryDays
	if v, ok := req.In.IntOption("days"); ok {
		if v < contest.MinQueryDays || v > contest.MaxQueryDays {
			return req.ReplyEphemeral(ctx, fmt.Sprintf("days must be between %d and %d", contest.MinQueryDays, contest.MaxQueryDays))
		}
		days = int(v)
	}
	platform := contest.Platform(req.In.StringOption("platform"))

	if err := req.Defer(ctx, false); err != nil {
		return err
	}
	list, err := f.svc.Upcoming(ctx, days, platform, 0)
	if err != nil {
		req.Logger.Warn("contest query failed", logx.Err(err))
		return req.Followup(ctx, kit.Message{Text: "failed to fetch contests, try again later", Ephemeral: true})
	}
	if len(list) == 0 {
		return req.Followup(ctx, kit.Message{Embeds: []kit.Embed{{
			Title:       "📅 No Upcoming Contests",
			Description: fmt.Sprintf("No contests found in the next %d day(s).", days),
			Color:       0xe74c3c,
		}}})
	}

	em := contest.BuildEmbed(list, contest.EmbedOptions{
		Title:       "🏆 Upcoming Programming Contests",
		Description: fmt.Sprintf("Found %d contest(s) in the next %d day(s)", len(list), days),
	})
	return req.Followup(ctx, kit.Message{Embeds: []kit.Embed{em}})
}

func (f *Feature) handleToday(ctx context.Context, req *router.Request) error {
	platform := contest.Platform(req.In.StringOption("platform"))
	if err := req.Defer(ctx, false); err != nil {
		return err
	}
	list, err := f.svc.Today(ctx, platform, 0)
	if err != nil {
		req.Logger.Warn("contest query failed", logx.Err(err))
		return req.Followup(ctx, kit.Message{Text: "failed to fetch contests, try again later", Ephemeral: true})
	}
	if len(list) == 0 {
		return req.Followup(ctx, kit.Message{Embeds: []kit.Embed{{
			Title:       "📅 No Contests Today",
			Description: "Nothing scheduled for today.",
			Color:       0xe74c3c,
		}}})
	}

	em := contest.BuildEmbed(list, contest.EmbedOptions{
		Title:      "📅 Today's Contests",
		ShowStatus: true,
	})
	return req.Followup(ctx, kit.Message{Embeds: []kit.Embed{em}})
}

func (f *Feature) handleTomorrow(ctx context.Context, req *router.Request) error {
	platform := contest.Platform(req.In.StringOption("platform"))
	if err := req.Defer(ctx, false); err != nil {
		return err
	}
	list, err := f.svc.Tomorrow(ctx, platform, 0)
	if err != nil {
		req.Logger.Warn("contest query failed", logx.Err(err))
		return req.Followup(ctx, kit.Message{Text: "failed to fetch contests, try again later", Ephemeral: true})
	}
	if len(list) == 0 {
		return req.Followup(ctx, kit.Message{Embeds: []kit.Embed{{
			Title:       "📅 No Contests Tomorrow",
			Description: "Nothing scheduled for tomorrow.",
			Color:       0xe74c3c,
		}}})
	}

	em := contest.BuildEmbed(list, contest.EmbedOptions{
		Title: "📅 Tomorrow's Contests",
	})
	return req.Followup(ctx, kit.Message{Embeds: []kit.Embed{em}})
}

func (f *Feature) handleRefresh(ctx context.Context, req *router.Request) error {
	if err := req.Defer(ctx, true); err != nil {
		return err
	}
	res, err := f.svc.Refresh(ctx)
	if err != nil {
		var text string
		switch {
		case errors.Is(err, contest.ErrRefreshInFlight):
			text = "a refresh is already running, try again in a moment"
		case errors.Is(err, contest.ErrUnauthorized):
			text = "the contest source rejected our API credentials"
		case errors.Is(err, contest.ErrRateLimited):
			text = "the contest source is rate limiting us, try again later"
		default:
			req.Logger.Warn("manual refresh failed", logx.Err(err))
			text = "refresh failed, the contest source seems unavailable"
		}
		return req.Followup(ctx, kit.Message{Text: text, Ephemeral: true})
	}
	return req.Followup(ctx, kit.Message{
		Text:      fmt.Sprintf("✅ Refreshed: %d contests cached in %s", res.Stored, res.Took.Round(time.Millisecond)),
		Ephemeral: true,
	})
}

func (f *Feature) handleSetup(ctx context.Context, req *router.Request) error {
	if req.In.GuildID == "" {
		return req.ReplyEphemeral(ctx, "this command only works in a server")
	}
	channelID := req.In.StringOption("channel")
	if channelID == "" {
		channelID = req.In.ChannelID
	}

	// The test embed doubles as the permission check: if the bot cannot
	// post in the channel, nothing is persisted.
	test := kit.Embed{
		Title:       "🎯 Contest Channel Ready",
		Description: "This channel is now configured for contest announcements!",
		Color:       0x3498db,
	}
	if _, err := req.Adapter.Send(ctx, channelID, kit.Message{Embeds: []kit.Embed{test}}); err != nil {
		req.Logger.Debug("setup channel rejected", logx.String("target", channelID), logx.Err(err))
		return req.ReplyEphemeral(ctx, fmt.Sprintf("I can't send messages in <#%s>, check my permissions there", channelID))
	}

	if err := f.guilds.SetContestChannel(ctx, req.In.GuildID, channelID); err != nil {
		return fmt.Errorf("persist contest channel: %w", err)
	}
	return req.ReplyEmbeds(ctx, kit.Embed{
		Title:       "✅ Contest Channel Configured",
		Description: fmt.Sprintf("Contest announcements will be sent to <#%s>", channelID),
		Color:       0x27ae60,
	})
}

func (f *Feature) handleTime(ctx context.Context, req *router.Request) error {
	if req.In.GuildID == "" {
		return req.ReplyEphemeral(ctx, "this command only works in a server")
	}
	raw := req.In.StringOption("time")
	normalized, err := guild.ValidateAnnouncementTime(raw)
	if err != nil {
		return req.ReplyEphemeral(ctx, fmt.Sprintf("invalid time %q, use HH:MM on a 24h clock", raw))
	}

	if err := f.guilds.SetAnnouncementTime(ctx, req.In.GuildID, normalized); err != nil {
		return fmt.Errorf("persist announcement time: %w", err)
	}
	return req.ReplyEmbeds(ctx, kit.Embed{
		Title:       "⏰ Announcement Time Updated",
		Description: fmt.Sprintf("Daily contest announcements will go out at **%s** IST.", normalized),
		Color:       0x27ae60,
	})
}
