package contest

import (
	"fmt"
	"time"

	kit "loungebot/internal/transport"
)

// EmbedFooter is attached to every contest listing.
const EmbedFooter = "All times in IST • Data from clist.by"

// Listing caps keep announcement embeds scannable.
const (
	MaxEmbedContests = 10
	MaxPerPlatform   = 3
)

const embedColor = 0x00ff00

// EmbedOptions controls contest listing rendering.
type EmbedOptions struct {
	Title       string
	Description string
	ShowStatus  bool      // append the live status to each contest
	Now         time.Time // status evaluation time; zero means time.Now()
	MaxTotal    int       // default MaxEmbedContests
	MaxPerGroup int       // default MaxPerPlatform
}

// BuildEmbed renders contests grouped by platform into a single embed.
// Groups follow the canonical platform order, unknown platforms after in
// first-seen order; within a group the input order is preserved. Returns
// a zero-value embed with no fields when contests is empty; callers
// decide how to phrase "nothing upcoming".
func BuildEmbed(contests []Contest, opt EmbedOptions) kit.Embed {
	maxTotal := opt.MaxTotal
	if maxTotal <= 0 {
		maxTotal = MaxEmbedContests
	}
	maxGroup := opt.MaxPerGroup
	if maxGroup <= 0 {
		maxGroup = MaxPerPlatform
	}
	now := opt.Now
	if now.IsZero() {
		now = time.Now()
	}

	groups := map[Platform][]Contest{}
	var groupOrder []Platform
	seen := map[Platform]bool{}
	for _, key := range AllPlatformKeys() {
		p := PlatformFromKey(key)
		groupOrder = append(groupOrder, p)
		seen[p] = true
	}
	for _, c := range contests {
		if !seen[c.Platform] {
			seen[c.Platform] = true
			groupOrder = append(groupOrder, c.Platform)
		}
		groups[c.Platform] = append(groups[c.Platform], c)
	}

	em := kit.Embed{
		Title:       opt.Title,
		Description: opt.Description,
		Color:       embedColor,
		Footer:      EmbedFooter,
		Timestamp:   now,
	}

	total := 0
	for _, p := range groupOrder {
		list := groups[p]
		if len(list) == 0 || total >= maxTotal {
			continue
		}
		take := maxGroup
		if take > len(list) {
			take = len(list)
		}
		if total+take > maxTotal {
			take = maxTotal - total
		}

		value := ""
		for i := 0; i < take; i++ {
			if i > 0 {
				value += "\n\n"
			}
			value += renderContest(list[i], opt.ShowStatus, now)
		}
		em.Fields = append(em.Fields, kit.EmbedField{
			Name:  fmt.Sprintf("%s %s", p.Emoji(), p),
			Value: value,
		})
		total += take
	}
	return em
}

func renderContest(c Contest, showStatus bool, now time.Time) string {
	head := fmt.Sprintf("**%s**", c.Name)
	if showStatus {
		head += " · " + string(c.StatusAt(now))
	}
	line := fmt.Sprintf("%s\n🕒 %s\n⏱️ %s", head, FormatStart(c.StartTime), FormatDuration(c.DurationSeconds))
	if c.URL != "" {
		line += fmt.Sprintf("\n🔗 [Link](%s)", c.URL)
	}
	return line
}
