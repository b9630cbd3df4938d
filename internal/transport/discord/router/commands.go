package router

import (
	"context"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"loungebot/internal/guild"
	rtsup "loungebot/internal/runtime/supervisor"
	kit "loungebot/internal/transport"
	logx "loungebot/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	// AccessBotAdmin is the full privilege chain: owner, guild
	// administrator, granted user, granted role.
	AccessBotAdmin
	// AccessGuildAdmin requires the guild Administrator permission (or
	// owner). Granted bot admins do not qualify, so grant management
	// cannot extend itself.
	AccessGuildAdmin
	AccessOwnerOnly
)

type Command struct {
	Name        string
	Description string
	Access      Access
	Options     []kit.CommandOption

	FeatureName string
	Timeout     time.Duration // optional per-command override
	Handle      HandlerFunc
}

// AccessChecker resolves the privilege chain for incoming interactions.
// *guild.Access satisfies it.
type AccessChecker interface {
	IsOwner(userID string) bool
	IsBotAdmin(ctx context.Context, m guild.Membership) (bool, error)
}

type Request struct {
	In      kit.Interaction
	Command string
	ReqID   string

	Adapter kit.Adapter
	Logger  logx.Logger
}

func (r *Request) Reply(ctx context.Context, text string) error {
	return r.Adapter.Respond(ctx, r.In, kit.Message{Text: text})
}

func (r *Request) ReplyEphemeral(ctx context.Context, text string) error {
	return r.Adapter.Respond(ctx, r.In, kit.Message{Text: text, Ephemeral: true})
}

func (r *Request) ReplyEmbeds(ctx context.Context, embeds ...kit.Embed) error {
	return r.Adapter.Respond(ctx, r.In, kit.Message{Embeds: embeds})
}

func (r *Request) ReplyMessage(ctx context.Context, msg kit.Message) error {
	return r.Adapter.Respond(ctx, r.In, msg)
}

// Defer acknowledges the interaction so the handler can take longer than
// the platform response window and deliver the result via Followup.
func (r *Request) Defer(ctx context.Context, ephemeral bool) error {
	return r.Adapter.Defer(ctx, r.In, ephemeral)
}

func (r *Request) Followup(ctx context.Context, msg kit.Message) error {
	return r.Adapter.Followup(ctx, r.In, msg)
}

type CommandManager struct {
	mu    sync.RWMutex
	cmds  map[string]Command
	order []string // registration order, for help listings

	log     logx.Logger
	adapter kit.Adapter
	access  AccessChecker

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor

	jobs chan func()
}

func NewCommandManager(log logx.Logger, adapter kit.Adapter, access AccessChecker) *CommandManager {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &CommandManager{
		cmds:    map[string]Command{},
		log:     log,
		adapter: adapter,
		access:  access,
		jobs:    make(chan func(), 256),
	}
}

// Supervisor returns the command manager's internal supervisor (nil if not running).
func (m *CommandManager) Supervisor() *rtsup.Supervisor {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if !m.running {
		return nil
	}
	return m.sup
}

func (m *CommandManager) setSupervisor(sup *rtsup.Supervisor, running bool) {
	m.runMu.Lock()
	m.sup = sup
	m.running = running
	m.runMu.Unlock()
}

// tryEnqueue is a panic-safe enqueue helper (handles the jobs channel being closed).
func (m *CommandManager) tryEnqueue(fn func()) (ok bool) {
	if fn == nil {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	select {
	case m.jobs <- fn:
		return true
	default:
		return false
	}
}

func (m *CommandManager) SetRegistry(cmds []Command) {
	reg := make(map[string]Command, len(cmds))
	order := make([]string, 0, len(cmds))
	for _, c := range cmds {
		name := strings.ToLower(strings.TrimSpace(c.Name))
		if name == "" || c.Handle == nil {
			continue
		}
		if _, exists := reg[name]; exists {
			m.log.Warn("duplicate command registration ignored", logx.String("cmd", name))
			continue
		}
		cc := c // copy
		cc.Name = name
		reg[name] = cc
		order = append(order, name)
	}

	m.mu.Lock()
	m.cmds = reg
	m.order = order
	m.mu.Unlock()
}

// Commands returns the registry in registration order.
func (m *CommandManager) Commands() []Command {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Command, 0, len(m.order))
	for _, name := range m.order {
		if c, ok := m.cmds[name]; ok {
			out = append(out, c)
		}
	}
	return out
}

// AppCommands returns the wire-facing declarations for slash command registration.
func (m *CommandManager) AppCommands() []kit.AppCommand {
	cmds := m.Commands()
	out := make([]kit.AppCommand, 0, len(cmds))
	for _, c := range cmds {
		out = append(out, kit.AppCommand{
			Name:        c.Name,
			Description: c.Description,
			Options:     c.Options,
		})
	}
	return out
}

func (m *CommandManager) DispatchLoop(ctx context.Context, interactions <-chan kit.Interaction) error {
	// bounded worker pool
	workers := runtime.NumCPU()
	if workers < 2 {
		workers = 2
	}

	// Internal supervisor keeps the worker pool resilient and observable.
	sup := rtsup.New(ctx,
		rtsup.WithLogger(m.log.With(logx.String("comp", "discord.router"))),
		rtsup.WithCancelOnError(false),
	)
	m.setSupervisor(sup, true)

	m.log.Info("command dispatcher started", logx.Int("workers", workers), logx.Int("job_queue_cap", cap(m.jobs)))

	var closeOnce sync.Once
	closeJobs := func() {
		closeOnce.Do(func() {
			// Mark as not running before closing so enqueue can degrade gracefully.
			m.setSupervisor(sup, false)
			close(m.jobs)
		})
	}

	for i := 0; i < workers; i++ {
		idx := i
		name := "command.worker." + strconv.Itoa(idx)
		sup.GoRestart(name, func(c context.Context) error {
			m.log.Debug("command worker started", logx.Int("worker", idx))
			defer m.log.Debug("command worker stopped", logx.Int("worker", idx))
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-m.jobs:
					if !ok {
						return nil
					}
					if job == nil {
						continue
					}
					// Middleware already catches handler panics; keep the
					// worker alive if a job panics anyway.
					func() {
						defer func() {
							if r := recover(); r != nil {
								m.log.Error("panic in command job", logx.Int("worker", idx), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
							}
						}()
						job()
					}()
				}
			}
		},
			rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			rtsup.WithStopOnCleanExit(true),
		)
	}

	defer func() {
		closeJobs()
		// Wait briefly for workers to drain.
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		m.setSupervisor(nil, false)
		m.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case in, ok := <-interactions:
			if !ok {
				m.log.Info("command dispatcher stopped (interaction channel closed)")
				return nil
			}
			m.routeInteraction(ctx, in)
		}
	}
}

func (m *CommandManager) routeInteraction(root context.Context, in kit.Interaction) {
	name := strings.ToLower(strings.TrimSpace(in.Command))
	if name == "" {
		return
	}

	m.mu.RLock()
	cmd, ok := m.cmds[name]
	m.mu.RUnlock()
	if !ok {
		m.log.Warn("unknown command", logx.String("cmd", name), logx.String("guild_id", in.GuildID))
		_ = m.adapter.Respond(root, in, kit.Message{Text: "unknown command, try /help", Ephemeral: true})
		return
	}

	rid := newReqID()
	reqLog := m.log.With(
		logx.String("rid", rid),
		logx.String("guild_id", in.GuildID),
		logx.String("channel_id", in.ChannelID),
		logx.String("user_id", in.UserID),
		logx.String("cmd", cmd.Name),
	)

	req := &Request{
		In:      in,
		Command: cmd.Name,
		ReqID:   rid,
		Adapter: m.adapter,
		Logger:  reqLog,
	}

	// Access checks run on the worker, not here: the bot-admin chain may
	// touch the database and must not stall the dispatch loop.
	if !m.tryEnqueue(func() { m.execute(root, req, cmd) }) {
		_ = m.adapter.Respond(root, in, kit.Message{Text: "busy, try again", Ephemeral: true})
	}
}

func (m *CommandManager) execute(root context.Context, req *Request, cmd Command) {
	allowed, err := m.authorize(root, req.In, cmd.Access)
	if err != nil {
		req.Logger.Warn("access check failed", logx.Err(err))
		_ = m.adapter.Respond(root, req.In, kit.Message{Text: "could not verify permissions, try again", Ephemeral: true})
		return
	}
	if !allowed {
		req.Logger.Debug("command denied")
		_ = m.adapter.Respond(root, req.In, kit.Message{Text: "you don't have permission to use this command", Ephemeral: true})
		return
	}

	final := Chain(
		cmd.Handle,
		MWPanicRecover(m.log),
		MWRequestLog(m.log),
		MWTimeout(cmd.Timeout),
	)

	if err := final(root, req); err != nil {
		// Handlers normally answer the user themselves; this covers the
		// ones that fail before acknowledging. A duplicate acknowledgement
		// error is harmless here.
		_ = m.adapter.Respond(root, req.In, kit.Message{Text: "something went wrong, try again later", Ephemeral: true})
	}
}

func (m *CommandManager) authorize(ctx context.Context, in kit.Interaction, access Access) (bool, error) {
	switch access {
	case AccessEveryone:
		return true, nil
	case AccessOwnerOnly:
		return m.access.IsOwner(in.UserID), nil
	case AccessGuildAdmin:
		return in.HasAdminPermission || m.access.IsOwner(in.UserID), nil
	case AccessBotAdmin:
		return m.access.IsBotAdmin(ctx, guild.Membership{
			GuildID:            in.GuildID,
			UserID:             in.UserID,
			RoleIDs:            in.RoleIDs,
			HasAdminPermission: in.HasAdminPermission,
		})
	default:
		return false, nil
	}
}

func newReqID() string {
	id := uuid.NewString()
	return id[:8]
}
