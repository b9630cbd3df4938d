package announce

import "time"

// Config controls the async announcement pipeline.
type Config struct {
	Enabled       bool
	Workers       int
	QueueSize     int
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
}

// HistoryItem records one delivered announcement for operator visibility.
type HistoryItem struct {
	At        time.Time
	GuildID   string
	ChannelID string
	Contests  int
}

// AnnouncementEvent is emitted on the event bus for announce lifecycle
// events. Keep it small; Data may be logged/serialized by subscribers.
type AnnouncementEvent struct {
	GuildID   string    `json:"guild_id"`
	ChannelID string    `json:"channel_id"`
	Date      string    `json:"date"`
	Contests  int       `json:"contests"`
	At        time.Time `json:"at"`
	Error     string    `json:"error,omitempty"`
}
