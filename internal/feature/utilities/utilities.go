// Package utilities carries the small quality-of-life commands: ping,
// hello, the help embeds, contribution links and the log export.
package utilities

import (
	"context"
	"fmt"
	"strings"
	"time"

	kit "loungebot/internal/transport"
	"loungebot/internal/transport/discord/router"
	logx "loungebot/pkg/logx"
)

const botName = "SST Lounge Bot"

// LatencySource reports the gateway heartbeat latency.
// *discordgo.Session satisfies it.
type LatencySource interface {
	HeartbeatLatency() time.Duration
}

// LogSource locates the file sink the log export reads.
// *logx.Service satisfies it.
type LogSource interface {
	FilePath() string
}

type Feature struct {
	registry *router.CommandManager
	latency  LatencySource
	logs     LogSource
	log      logx.Logger
}

func New(registry *router.CommandManager, latency LatencySource, logs LogSource, log logx.Logger) *Feature {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Feature{registry: registry, latency: latency, logs: logs, log: log}
}

func (f *Feature) Commands() []router.Command {
	return []router.Command{
		{
			Name:        "ping",
			Description: "Check bot response time",
			Access:      router.AccessEveryone,
			FeatureName: "utilities",
			Handle:      f.handlePing,
		},
		{
			Name:        "hello",
			Description: "Say hello to the " + botName,
			Access:      router.AccessEveryone,
			FeatureName: "utilities",
			Handle:      f.handleHello,
		},
		{
			Name:        "help",
			Description: "Show all available commands",
			Access:      router.AccessEveryone,
			FeatureName: "utilities",
			Handle:      f.handleHelp,
		},
		{
			Name:        "admin_help",
			Description: "Show admin commands (Admin only)",
			Access:      router.AccessBotAdmin,
			FeatureName: "utilities",
			Handle:      f.handleAdminHelp,
		},
		{
			Name:        "contribute",
			Description: "Get information about contributing to the bot",
			Access:      router.AccessEveryone,
			FeatureName: "utilities",
			Handle:      f.handleContribute,
		},
		{
			Name:        "logs",
			Description: "Export bot logs as file (Admin only)",
			Access:      router.AccessBotAdmin,
			FeatureName: "utilities",
			Options: []kit.CommandOption{
				{
					Name:        "lines",
					Description: fmt.Sprintf("Number of lines to show (default: %d, max: %d)", defaultLogLines, maxLogLines),
					Kind:        kit.OptionInteger,
				},
				{
					Name:        "hours",
					Description: "Show logs from last N hours (overrides lines)",
					Kind:        kit.OptionInteger,
				},
				{
					Name:        "minutes",
					Description: "Show logs from last N minutes (overrides lines and hours)",
					Kind:        kit.OptionInteger,
				},
				{
					Name:        "level",
					Description: "Filter by log level",
					Kind:        kit.OptionString,
					Choices: []kit.Choice{
						{Name: "INFO", Value: "INFO"},
						{Name: "WARNING", Value: "WARNING"},
						{Name: "ERROR", Value: "ERROR"},
						{Name: "DEBUG", Value: "DEBUG"},
					},
				},
			},
			Handle: f.handleLogs,
		},
	}
}

func (f *Feature) handlePing(ctx context.Context, req *router.Request) error {
	ms := f.latency.HeartbeatLatency().Milliseconds()
	color := 0x00ff00
	switch {
	case ms >= 200:
		color = 0xff0000
	case ms >= 100:
		color = 0xffff00
	}
	return req.ReplyEmbeds(ctx, kit.Embed{
		Title:       "🏓 Pong!",
		Description: fmt.Sprintf("Bot latency: **%dms**", ms),
		Color:       color,
	})
}

func (f *Feature) handleHello(ctx context.Context, req *router.Request) error {
	return req.ReplyEmbeds(ctx, kit.Embed{
		Title:       "👋 Hello SST Batch '29!",
		Description: fmt.Sprintf("Hey <@%s>! I'm the %s here to help our batch!", req.In.UserID, botName),
		Color:       0x3498db,
		Fields: []kit.EmbedField{{
			Name:  "🎯 What I Do",
			Value: "I help with contest notifications, server management, and batch coordination!",
		}},
	})
}

// featureEmoji decorates the help groups.
func featureEmoji(feature string) string {
	switch feature {
	case "contests":
		return "🏆"
	case "admin":
		return "⚙️"
	case "roles":
		return "🎭"
	case "utilities":
		return "🛠️"
	case "netdiag":
		return "📡"
	default:
		return "📦"
	}
}

func (f *Feature) handleHelp(ctx context.Context, req *router.Request) error {
	em := kit.Embed{
		Title: "🤖 " + botName + " - Command Guide",
		Description: "**" + botName + " for SST Batch '29**\n\n" +
			"All times are displayed in **IST** timezone.\n" +
			"Use `/contribute` to report bugs or suggest features.",
		Color:  0x3498db,
		Footer: botName + " | Made for SST Batch '29",
	}

	var order []string
	groups := map[string][]string{}
	for _, c := range f.registry.Commands() {
		if c.Access != router.AccessEveryone {
			continue
		}
		feature := c.FeatureName
		if feature == "" {
			feature = "other"
		}
		if _, seen := groups[feature]; !seen {
			order = append(order, feature)
		}
		groups[feature] = append(groups[feature], fmt.Sprintf("`/%s` — %s", c.Name, c.Description))
	}
	for _, feature := range order {
		em.Fields = append(em.Fields, kit.EmbedField{
			Name:  fmt.Sprintf("%s %s", featureEmoji(feature), titleWord(feature)),
			Value: strings.Join(groups[feature], "\n"),
		})
	}
	return req.ReplyEmbeds(ctx, em)
}

func titleWord(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func accessLabel(a router.Access) string {
	switch a {
	case router.AccessOwnerOnly:
		return "👑 Owner Commands"
	case router.AccessGuildAdmin:
		return "🔧 Server Admin Commands"
	default:
		return "🛡️ Bot Admin Commands"
	}
}

func (f *Feature) handleAdminHelp(ctx context.Context, req *router.Request) error {
	em := kit.Embed{
		Title: "⚙️ " + botName + " - Admin Guide",
		Description: "**Administrative Control Panel for SST Batch '29**\n\n" +
			"Commands below are hidden from regular members.",
		Color:  0xe74c3c,
		Footer: botName + " Admin Panel",
	}

	tiers := []router.Access{router.AccessBotAdmin, router.AccessGuildAdmin, router.AccessOwnerOnly}
	for _, tier := range tiers {
		var lines []string
		for _, c := range f.registry.Commands() {
			if c.Access == tier {
				lines = append(lines, fmt.Sprintf("`/%s` — %s", c.Name, c.Description))
			}
		}
		if len(lines) > 0 {
			em.Fields = append(em.Fields, kit.EmbedField{Name: accessLabel(tier), Value: strings.Join(lines, "\n")})
		}
	}
	em.Fields = append(em.Fields, kit.EmbedField{
		Name: "⚡ Quick Access",
		Value: "• **`/info`** - Bot statistics and performance\n" +
			"• **`/logs`** - Export bot logs for troubleshooting\n" +
			"• **`/list_admins`** - View all current administrators\n" +
			"• **`/sync`** - Refresh slash commands with Discord",
	})
	return req.ReplyMessage(ctx, kit.Message{Embeds: []kit.Embed{em}, Ephemeral: true})
}

func (f *Feature) handleContribute(ctx context.Context, req *router.Request) error {
	em := kit.Embed{
		Title:       "🤝 Contribute to " + botName,
		Description: "**Help make the bot better for our SST Batch '29 community!**\n\n## 🎯 Your contributions matter",
		Color:       0x28a745,
		Footer:      "Made by SST Batch '29 • For SST Batch '29 • Open Source ❤️",
		Fields: []kit.EmbedField{
			{
				Name: "🐛 Found a Bug?",
				Value: "**Report issues and help us improve**\n" +
					"```\n" +
					"Steps to Report:\n" +
					"1. Report it on GitHub Issues\n" +
					"2. Use our bug report template\n" +
					"3. Include steps to reproduce\n" +
					"4. Mention the command that failed\n" +
					"```\n" +
					"[🔗 **Report Bug**](https://github.com/Muneer320/SST-Lounge-Bot/issues/new/choose)",
			},
			{
				Name: "💡 Have a Feature Idea?",
				Value: "**Suggest new features and enhancements**\n" +
					"```\n" +
					"How to Suggest:\n" +
					"1. Create a Feature Request\n" +
					"2. Use our feature request template\n" +
					"3. Explain how it helps our batch\n" +
					"4. Discuss implementation ideas\n" +
					"```\n" +
					"[🔗 **Suggest Feature**](https://github.com/Muneer320/SST-Lounge-Bot/issues/new/choose)",
			},
			{
				Name: "👨‍💻 Want to Code?",
				Value: "**Join our development team**\n" +
					"```\n" +
					"Development Process:\n" +
					"1. Fork the repository\n" +
					"2. Read CONTRIBUTING.md\n" +
					"3. Create a feature branch\n" +
					"4. Submit a Pull Request\n" +
					"```\n" +
					"[🔗 **Fork Repository**](https://github.com/Muneer320/SST-Lounge-Bot/fork)",
			},
			{
				Name: "🔗 Quick Links",
				Value: "🏠 [**Main Repository**](https://github.com/Muneer320/SST-Lounge-Bot)\n" +
					"📋 [**All Issues**](https://github.com/Muneer320/SST-Lounge-Bot/issues)\n" +
					"📖 [**Contributing Guide**](https://github.com/Muneer320/SST-Lounge-Bot/blob/main/.github/CONTRIBUTING.md)\n" +
					"📝 [**Create Issue**](https://github.com/Muneer320/SST-Lounge-Bot/issues/new/choose)",
			},
		},
	}
	return req.ReplyEmbeds(ctx, em)
}
