package roles

import (
	"context"
	"errors"
	"fmt"
	"time"

	kit "loungebot/internal/transport"
	"loungebot/internal/transport/discord/router"
	logx "loungebot/pkg/logx"
)

func (f *Feature) Commands() []router.Command {
	return []router.Command{
		{
			Name:        "check_veterans",
			Description: "Manually run the Discord Veteran role check",
			Access:      router.AccessBotAdmin,
			FeatureName: "roles",
			Timeout:     10 * time.Minute,
			Handle:      f.handleCheckVeterans,
		},
		{
			Name:        "veteran_info",
			Description: "Show the Discord Veteran role criteria and your status",
			Access:      router.AccessEveryone,
			FeatureName: "roles",
			Handle:      f.handleVeteranInfo,
		},
	}
}

func (f *Feature) handleCheckVeterans(ctx context.Context, req *router.Request) error {
	if req.In.GuildID == "" {
		return req.ReplyEphemeral(ctx, "this command only works in a server")
	}
	if err := req.Defer(ctx, true); err != nil {
		return err
	}

	res, err := f.SweepGuild(ctx, req.In.GuildID)
	if err != nil {
		if errors.Is(err, ErrDisabled) {
			return req.Followup(ctx, kit.Message{Text: "veteran role automation is disabled", Ephemeral: true})
		}
		req.Logger.Warn("manual veteran sweep failed", logx.Err(err))
		return req.Followup(ctx, kit.Message{Text: "❌ An error occurred while checking veteran roles.", Ephemeral: true})
	}
	return req.Followup(ctx, kit.Message{
		Text: fmt.Sprintf("✅ Discord Veteran role check completed!\nChecked %d members, assigned %d new veteran role(s).",
			res.Checked, res.Assigned),
		Ephemeral: true,
	})
}

func (f *Feature) handleVeteranInfo(ctx context.Context, req *router.Request) error {
	em := kit.Embed{
		Title:       "🥇 Discord Veteran Role",
		Description: "Automatic role for long-time Discord users",
		Color:       roleColor,
		Fields: []kit.EmbedField{
			{
				Name:  "📅 Qualification",
				Value: fmt.Sprintf("Discord account must be **%d+ years old**", f.cfg.MinYears),
			},
			{
				Name:  "🤖 Assignment",
				Value: "• Automatically assigned when joining the server\n• Daily checks for existing members\n• Manual check available for admins",
			},
			{
				Name:  "🎨 Role Details",
				Value: "• Color: Gold\n• Mentionable: Yes\n• Special recognition for Discord veterans",
			},
		},
	}

	if req.In.GuildID != "" {
		em.Fields = append(em.Fields, f.statusField(req.In.UserID))
	} else {
		em.Fields = append(em.Fields, kit.EmbedField{
			Name:  "ℹ️ Note",
			Value: "Use this command in a server to see your qualification status",
		})
	}
	return req.ReplyEmbeds(ctx, em)
}

func (f *Feature) statusField(userID string) kit.EmbedField {
	created, err := AccountCreated(userID)
	if err != nil {
		return kit.EmbedField{
			Name:  "ℹ️ Note",
			Value: "Could not determine your account age",
		}
	}
	years := accountYears(created, time.Now())
	if years >= float64(f.cfg.MinYears) {
		return kit.EmbedField{
			Name:  "✅ Your Status",
			Value: fmt.Sprintf("You qualify! Your account is **%.1f years old**", years),
		}
	}
	return kit.EmbedField{
		Name: "⏳ Your Status",
		Value: fmt.Sprintf("Your account is **%.1f years old**\nNeed **%.1f more years** to qualify",
			years, float64(f.cfg.MinYears)-years),
	}
}
