package transport

import (
	"context"
	"time"
)

// Interaction is a platform-neutral slash command invocation.
type Interaction struct {
	ID        string
	GuildID   string // empty for direct messages
	ChannelID string
	UserID    string
	Username  string
	RoleIDs   []string
	// HasAdminPermission reports whether the invoking member holds the
	// platform's administrator permission in the guild.
	HasAdminPermission bool

	Command string
	Options map[string]any

	RawAdapter any // adapter-specific handle (Discord: *discordgo.Interaction)
}

// StringOption returns the named option as a string ("" if absent).
// User, role and channel options arrive as snowflake ID strings.
func (in Interaction) StringOption(name string) string {
	v, _ := in.Options[name].(string)
	return v
}

func (in Interaction) IntOption(name string) (int64, bool) {
	v, ok := in.Options[name].(int64)
	return v, ok
}

func (in Interaction) BoolOption(name string) (bool, bool) {
	v, ok := in.Options[name].(bool)
	return v, ok
}

type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

type Embed struct {
	Title       string
	Description string
	URL         string
	Color       int
	Fields      []EmbedField
	Footer      string
	Timestamp   time.Time // zero value omits the embed timestamp
}

// FileAttachment is an in-memory file sent alongside a message.
type FileAttachment struct {
	Name string
	Data []byte
}

type Message struct {
	Text      string
	Embeds    []Embed
	Files     []FileAttachment
	Ephemeral bool // visible only to the invoking user
}

type MessageRef struct {
	ChannelID string
	MessageID string
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Interaction) error
	Stop(ctx context.Context) error

	// Respond sends the initial interaction response. It must arrive
	// within the platform's acknowledgement window (Discord: 3 seconds).
	Respond(ctx context.Context, in Interaction, msg Message) error
	// Defer acknowledges the interaction so a Followup can be sent later.
	Defer(ctx context.Context, in Interaction, ephemeral bool) error
	Followup(ctx context.Context, in Interaction, msg Message) error

	Send(ctx context.Context, channelID string, msg Message) (MessageRef, error)
}

type OptionKind int

const (
	OptionString OptionKind = iota
	OptionInteger
	OptionBoolean
	OptionUser
	OptionRole
	OptionChannel
)

type Choice struct {
	Name  string
	Value any
}

type CommandOption struct {
	Name        string
	Description string
	Kind        OptionKind
	Required    bool
	Choices     []Choice
}

// AppCommand is the wire-facing declaration of a slash command, without
// its handler.
type AppCommand struct {
	Name        string
	Description string
	Options     []CommandOption
}

// CommandRegistrar is an optional interface that adapters can implement
// to publish the slash command registry to the platform.
type CommandRegistrar interface {
	RegisterCommands(ctx context.Context, cmds []AppCommand) error
}

// PresenceSetter is an optional interface that adapters can implement
// to set the bot's activity text.
type PresenceSetter interface {
	SetPresence(ctx context.Context, activity string) error
}
