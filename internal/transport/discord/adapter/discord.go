package adapter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"

	rtsup "loungebot/internal/runtime/supervisor"
	kit "loungebot/internal/transport"
	logx "loungebot/pkg/logx"
)

type Config struct {
	Token string

	// GuildID scopes slash command registration to a single guild when set.
	// Guild-scoped commands propagate instantly; global ones take up to an
	// hour on Discord's side.
	GuildID string

	// Presence is the activity text shown under the bot's name.
	Presence string
}

type Adapter struct {
	cfg Config
	log logx.Logger

	sess    *discordgo.Session
	out     atomic.Value // stores (chan<- kit.Interaction)
	runMu   sync.Mutex
	running bool

	// sup owns adapter internal goroutines (drop logger, gateway closer).
	// It is created on Start() and cancelled on Stop().
	sup *rtsup.Supervisor

	// droppedInteractions counts interactions dropped because the consumer
	// was slower than the gateway. Logged periodically to avoid per-event spam.
	droppedInteractions uint64

	cmdMu   sync.Mutex
	cmdHash uint64

	// presMu guards presence, which SetPresence may change after Start.
	presMu   sync.Mutex
	presence string
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("discord token is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	sess, err := discordgo.New("Bot " + strings.TrimSpace(cfg.Token))
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	// Guild members are needed for the veteran role sweep; the matching
	// privileged intent must be enabled in the developer portal.
	sess.Identify.Intents = discordgo.IntentGuilds | discordgo.IntentGuildMembers

	a := &Adapter{cfg: cfg, log: log, sess: sess, presence: cfg.Presence}
	// Ensure atomic.Value is initialized with a stable dynamic type.
	var nilOut chan<- kit.Interaction
	a.out.Store(nilOut)
	a.registerHandlers()
	return a, nil
}

// Session exposes the underlying discordgo session for features that need
// Discord-specific operations (role management, member listing).
func (a *Adapter) Session() *discordgo.Session {
	return a.sess
}

// Supervisor returns the adapter's internal supervisor (nil if not started).
func (a *Adapter) Supervisor() *rtsup.Supervisor {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	return a.sup
}

func (a *Adapter) registerHandlers() {
	a.sess.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		user := ""
		if r.User != nil {
			user = r.User.Username
		}
		a.log.Info("gateway ready", logx.String("user", user), logx.String("session_id", r.SessionID))
		// Re-applied on every READY so the presence survives reconnects.
		a.presMu.Lock()
		presence := a.presence
		a.presMu.Unlock()
		if presence != "" {
			if err := s.UpdateGameStatus(0, presence); err != nil {
				a.log.Warn("presence update failed", logx.Err(err))
			}
		}
	})

	a.sess.AddHandler(func(s *discordgo.Session, ic *discordgo.InteractionCreate) {
		if ic.Type != discordgo.InteractionApplicationCommand {
			return
		}
		a.sendInteraction(convertInteraction(ic))
	})
}

func convertInteraction(ic *discordgo.InteractionCreate) kit.Interaction {
	data := ic.ApplicationCommandData()
	in := kit.Interaction{
		ID:         ic.ID,
		GuildID:    ic.GuildID,
		ChannelID:  ic.ChannelID,
		Command:    data.Name,
		Options:    make(map[string]any, len(data.Options)),
		RawAdapter: ic.Interaction,
	}
	switch {
	case ic.Member != nil && ic.Member.User != nil:
		in.UserID = ic.Member.User.ID
		in.Username = ic.Member.User.Username
		in.RoleIDs = append([]string(nil), ic.Member.Roles...)
		in.HasAdminPermission = ic.Member.Permissions&discordgo.PermissionAdministrator != 0
	case ic.User != nil: // direct message
		in.UserID = ic.User.ID
		in.Username = ic.User.Username
	}
	for _, opt := range data.Options {
		if opt == nil {
			continue
		}
		in.Options[opt.Name] = optionValue(opt)
	}
	return in
}

func optionValue(opt *discordgo.ApplicationCommandInteractionDataOption) any {
	switch opt.Type {
	case discordgo.ApplicationCommandOptionString:
		return opt.StringValue()
	case discordgo.ApplicationCommandOptionInteger:
		return opt.IntValue()
	case discordgo.ApplicationCommandOptionBoolean:
		return opt.BoolValue()
	case discordgo.ApplicationCommandOptionUser,
		discordgo.ApplicationCommandOptionRole,
		discordgo.ApplicationCommandOptionChannel,
		discordgo.ApplicationCommandOptionMentionable:
		// Snowflake ID; resolving the entity is the handler's business.
		if s, ok := opt.Value.(string); ok {
			return s
		}
		return fmt.Sprint(opt.Value)
	default:
		return opt.Value
	}
}

func (a *Adapter) sendInteraction(in kit.Interaction) {
	v := a.out.Load()
	out, _ := v.(chan<- kit.Interaction)
	if out == nil {
		return
	}
	select {
	case out <- in:
	default:
		atomic.AddUint64(&a.droppedInteractions, 1)
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- kit.Interaction) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.out.Store(out)
	a.sup = rtsup.New(ctx,
		rtsup.WithLogger(a.log.With(logx.String("comp", "discord.adapter"))),
		// adapter errors should not take down the whole app; treat as best-effort.
		rtsup.WithCancelOnError(false),
	)
	sup := a.sup
	a.runMu.Unlock()

	// Open blocks until the gateway READY arrives, so the session user is
	// known once this returns. discordgo reconnects on its own afterwards.
	if err := a.sess.Open(); err != nil {
		sup.Cancel()
		a.runMu.Lock()
		a.running = false
		a.sup = nil
		var nilOut chan<- kit.Interaction
		a.out.Store(nilOut)
		a.runMu.Unlock()
		return fmt.Errorf("discord gateway open: %w", err)
	}

	// Periodic summary for dropped interactions (avoid noisy per-event logs).
	sup.Go0("interactions.drop_report", func(c context.Context) {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		report := func() {
			if n := atomic.SwapUint64(&a.droppedInteractions, 0); n > 0 {
				a.log.Warn("incoming interactions dropped (channel full)", logx.Uint64("count", n), logx.Int("chan_cap", cap(out)))
			}
		}
		for {
			select {
			case <-c.Done():
				report() // final flush
				return
			case <-ticker.C:
				report()
			}
		}
	})

	// Ensure the gateway connection closes when the adapter context is cancelled.
	sup.Go0("gateway.close_on_cancel", func(c context.Context) {
		<-c.Done()
		if err := a.sess.Close(); err != nil {
			a.log.Debug("gateway close", logx.Err(err))
		}
	})

	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	// Best-effort graceful stop. Never block shutdown on the gateway.
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	wasRunning := a.running
	a.running = false
	var nilOut chan<- kit.Interaction
	a.out.Store(nilOut)
	a.runMu.Unlock()

	a.log.Info("stopping", logx.Uint64("dropped_pending", atomic.LoadUint64(&a.droppedInteractions)))
	if !wasRunning {
		a.log.Debug("discord stop called but not running")
		return nil
	}

	if sup != nil {
		sup.Cancel()
	}

	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		rem := time.Until(dl)
		if rem > 0 && rem < grace {
			grace = rem
		}
	}

	if sup == nil {
		return nil
	}

	wctx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()

	if err := sup.Wait(wctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			a.log.Warn("discord stop timed out", logx.Err(err))
			return nil
		}
		a.log.Warn("discord stop error", logx.Err(err))
	}
	return nil
}

// SetPresence updates the activity text shown under the bot's name. The
// value sticks across gateway reconnects.
func (a *Adapter) SetPresence(ctx context.Context, activity string) error {
	_ = ctx // gateway write, no request context
	a.presMu.Lock()
	a.presence = activity
	a.presMu.Unlock()
	return a.sess.UpdateGameStatus(0, activity)
}
