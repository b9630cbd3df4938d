package announce

import (
	"context"
	"fmt"
	"time"

	"loungebot/internal/contest"
	"loungebot/internal/guild"
	kit "loungebot/internal/transport"
	logx "loungebot/pkg/logx"
)

// AnnouncementTitle heads the daily contest embed.
const AnnouncementTitle = "🏆 Today's Programming Contests"

// Scan finds the guilds due for their daily announcement at now and
// enqueues one embed per guild. It is meant to run every minute from the
// scheduler.
//
// A scan with no contests today enqueues nothing and does not stamp the
// guilds, so they stay due and a later refresh can still produce an
// announcement. Per-guild enqueue failures are logged and never abort the
// scan; store or source errors abort it (the next run retries).
func (s *Service) Scan(ctx context.Context, now time.Time) error {
	if !s.Enabled() {
		return nil
	}
	loc := contest.DisplayZone()

	due, err := s.settings.DueAt(ctx, now, loc)
	if err != nil {
		return fmt.Errorf("scan due guilds: %w", err)
	}
	if len(due) == 0 {
		return nil
	}

	contests, err := s.source.Today(ctx, "", 0)
	if err != nil {
		return fmt.Errorf("fetch today's contests: %w", err)
	}
	if len(contests) == 0 {
		s.log.Debug("no contests today, announcement skipped", logx.Int("due_guilds", len(due)))
		return nil
	}

	local := now.In(loc)
	date := local.Format(guild.DateLayout)
	em := contest.BuildEmbed(contests, contest.EmbedOptions{
		Title:       AnnouncementTitle,
		Description: "Contests on " + local.Format("January 02, 2006"),
		ShowStatus:  true,
		Now:         now,
	})
	msg := kit.Message{Embeds: []kit.Embed{em}}

	queued := 0
	for _, g := range due {
		j := job{
			guildID:   g.GuildID,
			channelID: g.ContestChannelID,
			date:      date,
			count:     len(contests),
			msg:       msg,
		}
		if err := s.enqueue(ctx, j); err != nil {
			s.log.Warn("announcement enqueue failed",
				logx.String("guild_id", g.GuildID),
				logx.Err(err))
			continue
		}
		queued++
	}
	if queued > 0 {
		s.log.Info("announcements queued",
			logx.Int("guilds", queued),
			logx.Int("contests", len(contests)),
			logx.String("date", date))
	}
	return nil
}
