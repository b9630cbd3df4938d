package adapter

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	kit "loungebot/internal/transport"
)

// Discord hard limits.
const (
	messageTextLimit = 2000
	embedTitleLimit  = 256
	embedDescLimit   = 4096
	embedFooterLimit = 2048
	fieldNameLimit   = 256
	fieldValueLimit  = 1024
	maxEmbedFields   = 25
	maxEmbeds        = 10
)

func rawInteraction(in kit.Interaction) (*discordgo.Interaction, error) {
	raw, ok := in.RawAdapter.(*discordgo.Interaction)
	if !ok || raw == nil {
		return nil, errors.New("interaction has no discord handle")
	}
	return raw, nil
}

func (a *Adapter) Respond(ctx context.Context, in kit.Interaction, msg kit.Message) error {
	raw, err := rawInteraction(in)
	if err != nil {
		return err
	}
	data := &discordgo.InteractionResponseData{
		Content: clampRunes(msg.Text, messageTextLimit),
		Embeds:  embedsToDiscord(msg.Embeds),
		Files:   filesToDiscord(msg.Files),
	}
	if msg.Ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	return a.sess.InteractionRespond(raw, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	}, discordgo.WithContext(ctx))
}

func (a *Adapter) Defer(ctx context.Context, in kit.Interaction, ephemeral bool) error {
	raw, err := rawInteraction(in)
	if err != nil {
		return err
	}
	resp := &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	}
	if ephemeral {
		resp.Data = &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral}
	}
	return a.sess.InteractionRespond(raw, resp, discordgo.WithContext(ctx))
}

func (a *Adapter) Followup(ctx context.Context, in kit.Interaction, msg kit.Message) error {
	raw, err := rawInteraction(in)
	if err != nil {
		return err
	}
	params := &discordgo.WebhookParams{
		Content: clampRunes(msg.Text, messageTextLimit),
		Embeds:  embedsToDiscord(msg.Embeds),
		Files:   filesToDiscord(msg.Files),
	}
	if msg.Ephemeral {
		params.Flags = discordgo.MessageFlagsEphemeral
	}
	_, err = a.sess.FollowupMessageCreate(raw, true, params, discordgo.WithContext(ctx))
	return err
}

func (a *Adapter) Send(ctx context.Context, channelID string, msg kit.Message) (kit.MessageRef, error) {
	if strings.TrimSpace(channelID) == "" {
		return kit.MessageRef{}, errors.New("channel id is empty")
	}
	m, err := a.sess.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content: clampRunes(msg.Text, messageTextLimit),
		Embeds:  embedsToDiscord(msg.Embeds),
		Files:   filesToDiscord(msg.Files),
	}, discordgo.WithContext(ctx))
	if err != nil {
		return kit.MessageRef{}, err
	}
	return kit.MessageRef{ChannelID: m.ChannelID, MessageID: m.ID}, nil
}

// ForwardLog implements logx.Forwarder, delivering formatted log lines to a
// Discord channel. Long lines are split rather than dropped.
func (a *Adapter) ForwardLog(ctx context.Context, channelID string, text string) error {
	if strings.TrimSpace(channelID) == "" || strings.TrimSpace(text) == "" {
		return nil
	}
	for _, chunk := range splitText(text, messageTextLimit) {
		if ctx != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}
		if _, err := a.sess.ChannelMessageSend(channelID, chunk, discordgo.WithContext(ctx)); err != nil {
			return err
		}
	}
	return nil
}

func filesToDiscord(files []kit.FileAttachment) []*discordgo.File {
	if len(files) == 0 {
		return nil
	}
	out := make([]*discordgo.File, 0, len(files))
	for _, f := range files {
		name := f.Name
		if name == "" {
			name = "attachment.txt"
		}
		out = append(out, &discordgo.File{
			Name:        name,
			ContentType: "text/plain",
			Reader:      bytes.NewReader(f.Data),
		})
	}
	return out
}

func embedsToDiscord(embeds []kit.Embed) []*discordgo.MessageEmbed {
	if len(embeds) == 0 {
		return nil
	}
	if len(embeds) > maxEmbeds {
		embeds = embeds[:maxEmbeds]
	}
	out := make([]*discordgo.MessageEmbed, 0, len(embeds))
	for _, e := range embeds {
		out = append(out, embedToDiscord(e))
	}
	return out
}

func embedToDiscord(e kit.Embed) *discordgo.MessageEmbed {
	em := &discordgo.MessageEmbed{
		Title:       clampRunes(e.Title, embedTitleLimit),
		Description: clampRunes(e.Description, embedDescLimit),
		URL:         e.URL,
		Color:       e.Color,
	}
	if e.Footer != "" {
		em.Footer = &discordgo.MessageEmbedFooter{Text: clampRunes(e.Footer, embedFooterLimit)}
	}
	if !e.Timestamp.IsZero() {
		em.Timestamp = e.Timestamp.UTC().Format(time.RFC3339)
	}
	fields := e.Fields
	if len(fields) > maxEmbedFields {
		fields = fields[:maxEmbedFields]
	}
	for _, f := range fields {
		em.Fields = append(em.Fields, &discordgo.MessageEmbedField{
			Name:   clampRunes(f.Name, fieldNameLimit),
			Value:  clampRunes(f.Value, fieldValueLimit),
			Inline: f.Inline,
		})
	}
	return em
}

func clampRunes(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return s
	}
	return string(rs[:limit-1]) + "…"
}

// splitText splits long text into chunks Discord will accept, preferring
// newline boundaries.
func splitText(s string, limit int) []string {
	if limit <= 0 {
		limit = messageTextLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := start + limit
		if end > len(rs) {
			end = len(rs)
		}

		// Prefer splitting on a newline near the end of the window.
		if end < len(rs) {
			cut := -1
			for i := end - 1; i > start; i-- {
				if rs[i] == '\n' {
					// Avoid extremely small chunks.
					if i-start >= limit/3 {
						cut = i + 1
						break
					}
				}
			}
			if cut != -1 {
				end = cut
			}
		}

		chunk := strings.TrimRight(string(rs[start:end]), "\n")
		if chunk != "" {
			out = append(out, chunk)
		}

		start = end
		// Skip leading newlines to avoid empty chunks.
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}
