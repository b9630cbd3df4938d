package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"sort"
	"strings"

	"github.com/bwmarrin/discordgo"

	kit "loungebot/internal/transport"
	logx "loungebot/pkg/logx"
)

// RegisterCommands publishes the slash command registry via bulk overwrite.
// It only performs the network call when the command set actually changed
// since the last successful registration.
func (a *Adapter) RegisterCommands(ctx context.Context, cmds []kit.AppCommand) error {
	a.cmdMu.Lock()
	defer a.cmdMu.Unlock()

	list := make([]*discordgo.ApplicationCommand, 0, len(cmds))
	for _, c := range cmds {
		if strings.TrimSpace(c.Name) == "" {
			continue
		}
		list = append(list, appCommandToDiscord(c))
	}

	payload, err := json.Marshal(list)
	if err != nil {
		return err
	}
	h := fnv.New64a()
	h.Write(payload)
	sum := h.Sum64()
	if sum == a.cmdHash {
		return nil
	}

	if a.sess.State == nil || a.sess.State.User == nil {
		return errors.New("gateway not ready")
	}
	appID := a.sess.State.User.ID

	if _, err := a.sess.ApplicationCommandBulkOverwrite(appID, a.cfg.GuildID, list, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("slash command overwrite: %w", err)
	}

	a.cmdHash = sum
	scope := "global"
	if a.cfg.GuildID != "" {
		scope = "guild " + a.cfg.GuildID
	}
	a.log.Info("slash commands registered", logx.Int("count", len(list)), logx.String("scope", scope))
	return nil
}

// InvalidateCommandCache forces the next RegisterCommands call to hit the
// API even if the command set is unchanged.
func (a *Adapter) InvalidateCommandCache() {
	a.cmdMu.Lock()
	a.cmdHash = 0
	a.cmdMu.Unlock()
}

func appCommandToDiscord(c kit.AppCommand) *discordgo.ApplicationCommand {
	out := &discordgo.ApplicationCommand{
		Name:        c.Name,
		Type:        discordgo.ChatApplicationCommand,
		Description: commandDescription(c.Description, c.Name),
	}
	opts := append([]kit.CommandOption(nil), c.Options...)
	// The API rejects commands where an optional option precedes a required one.
	sort.SliceStable(opts, func(i, j int) bool { return opts[i].Required && !opts[j].Required })
	for _, o := range opts {
		out.Options = append(out.Options, &discordgo.ApplicationCommandOption{
			Type:        optionKindToDiscord(o.Kind),
			Name:        o.Name,
			Description: commandDescription(o.Description, o.Name),
			Required:    o.Required,
			Choices:     choicesToDiscord(o.Choices),
		})
	}
	return out
}

func optionKindToDiscord(k kit.OptionKind) discordgo.ApplicationCommandOptionType {
	switch k {
	case kit.OptionInteger:
		return discordgo.ApplicationCommandOptionInteger
	case kit.OptionBoolean:
		return discordgo.ApplicationCommandOptionBoolean
	case kit.OptionUser:
		return discordgo.ApplicationCommandOptionUser
	case kit.OptionRole:
		return discordgo.ApplicationCommandOptionRole
	case kit.OptionChannel:
		return discordgo.ApplicationCommandOptionChannel
	default:
		return discordgo.ApplicationCommandOptionString
	}
}

func choicesToDiscord(choices []kit.Choice) []*discordgo.ApplicationCommandOptionChoice {
	if len(choices) == 0 {
		return nil
	}
	out := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(choices))
	for _, ch := range choices {
		out = append(out, &discordgo.ApplicationCommandOptionChoice{Name: ch.Name, Value: ch.Value})
	}
	return out
}

// commandDescription keeps descriptions within Discord's 1..100 char rule.
func commandDescription(desc, fallback string) string {
	d := strings.TrimSpace(desc)
	if d == "" {
		d = fallback
	}
	return clampRunes(d, 100)
}
