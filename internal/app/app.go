// Package app wires configuration, storage, the contest engine, the
// Discord transport and the features into one supervised process.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"loungebot/internal/announce"
	"loungebot/internal/config"
	"loungebot/internal/contest"
	"loungebot/internal/eventbus"
	"loungebot/internal/feature/admin"
	"loungebot/internal/feature/contests"
	"loungebot/internal/feature/netdiag"
	"loungebot/internal/feature/roles"
	"loungebot/internal/feature/utilities"
	"loungebot/internal/guild"
	"loungebot/internal/observability/pprof"
	"loungebot/internal/runtime/supervisor"
	"loungebot/internal/scheduler"
	"loungebot/internal/storage"
	kit "loungebot/internal/transport"
	discord "loungebot/internal/transport/discord/adapter"
	"loungebot/internal/transport/discord/router"
	logx "loungebot/pkg/logx"
	"loungebot/pkg/systemd"
)

type App struct {
	cfgPath string

	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus
	db   *storage.DB

	adapter *discord.Adapter

	source    *contest.Client
	refresher *contest.Refresher
	contests  *contest.Service
	guilds    *guild.Store
	announcer *announce.Service
	sched     *scheduler.Service
	pprof     *pprof.Service

	cmdm *router.CommandManager

	contestsFeature *contests.Feature
	veterans        *roles.Feature
	unbindJoin      func()

	interactions chan kit.Interaction
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLoggingConfig(cfg))
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	db, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}

	srcCfg, err := mapSourceConfig(cfg)
	if err != nil {
		return nil, err
	}
	client := contest.NewClient(srcCfg, log.With(logx.String("comp", "source")))

	refCfg, err := mapRefresherConfig(cfg)
	if err != nil {
		return nil, err
	}
	contestStore := contest.NewStore(db, log.With(logx.String("comp", "contest.store")))
	refresher := contest.NewRefresher(refCfg, client, contestStore, bus, log.With(logx.String("comp", "contest.refresh")))
	contestSvc := contest.NewService(contestStore, refresher, log.With(logx.String("comp", "contest")))

	guilds := guild.NewStore(db, log.With(logx.String("comp", "guild.store")))

	ad, err := discord.New(discord.Config{
		Token:    cfg.Discord.Token,
		GuildID:  cfg.Discord.GuildID,
		Presence: cfg.Discord.Presence,
	}, log.With(logx.String("comp", "discord")))
	if err != nil {
		return nil, err
	}
	// Warn/error lines mirror to the ops channel once the gateway is up.
	logSvc.SetForwarder(ad, cfg.Logging.Discord.ChannelID)

	annCfg, err := mapAnnounceConfig(cfg)
	if err != nil {
		return nil, err
	}
	announcer := announce.New(annCfg, ad, contestSvc, guilds, log.With(logx.String("comp", "announce")), bus)

	schedCfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		return nil, err
	}
	sched := scheduler.New(schedCfg, bus, log.With(logx.String("comp", "scheduler")))

	pprofCfg, err := mapPprofConfig(cfg)
	if err != nil {
		return nil, err
	}
	pprofSvc := pprof.New(pprofCfg, log.With(logx.String("comp", "pprof")))

	access := guild.NewAccess(cfg.Discord.OwnerUserIDs, guilds)
	cmdm := router.NewCommandManager(log.With(logx.String("comp", "commands")), ad, access)

	// Feature registration order is also the /help display order.
	contestsFeature := contests.New(contestSvc, guilds, announcer, refresher.Interval(), log.With(logx.String("comp", "contests")))
	adminFeature := admin.New(guilds, contestSvc, cmdm, ad, log.With(logx.String("comp", "admin")))
	directory := roles.NewSessionDirectory(ad.Session(), log.With(logx.String("comp", "roles")))
	veterans := roles.New(mapRolesConfig(cfg), directory, log.With(logx.String("comp", "roles")))
	utils := utilities.New(cmdm, ad.Session(), logSvc, log.With(logx.String("comp", "utilities")))

	ndCfg, err := mapNetdiagConfig(cfg)
	if err != nil {
		return nil, err
	}
	diag := netdiag.New(ndCfg, nil, log.With(logx.String("comp", "netdiag")))

	var cmds []router.Command
	cmds = append(cmds, contestsFeature.Commands()...)
	cmds = append(cmds, adminFeature.Commands()...)
	cmds = append(cmds, veterans.Commands()...)
	cmds = append(cmds, utils.Commands()...)
	cmds = append(cmds, diag.Commands()...)
	cmdm.SetRegistry(cmds)

	return &App{
		cfgPath:         cfgPath,
		cfgm:            cfgm,
		log:             log,
		logs:            logSvc,
		bus:             bus,
		db:              db,
		adapter:         ad,
		source:          client,
		refresher:       refresher,
		contests:        contestSvc,
		guilds:          guilds,
		announcer:       announcer,
		sched:           sched,
		pprof:           pprofSvc,
		cmdm:            cmdm,
		contestsFeature: contestsFeature,
		veterans:        veterans,
		interactions:    make(chan kit.Interaction, 256),
	}, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	// Transactional config reload: validate before commit/publish.
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(c context.Context, cfg *config.Config) error {
		if cfg.Scheduler.Workers < 0 {
			return fmt.Errorf("scheduler.workers must be >= 0")
		}
		if cfg.Scheduler.HistorySize < 0 {
			return fmt.Errorf("scheduler.history_size must be >= 0")
		}
		if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
			if _, err := time.LoadLocation(tz); err != nil {
				return fmt.Errorf("scheduler.timezone: invalid %q: %w", tz, err)
			}
		}
		if ct := strings.TrimSpace(cfg.Roles.CheckTime); ct != "" {
			if _, err := guild.ValidateAnnouncementTime(ct); err != nil {
				return fmt.Errorf("roles.check_time: %w", err)
			}
		}
		// Mapping parses every duration field; a bad one rejects the reload.
		if _, err := mapSourceConfig(cfg); err != nil {
			return err
		}
		if _, err := mapRefresherConfig(cfg); err != nil {
			return err
		}
		if _, err := mapAnnounceConfig(cfg); err != nil {
			return err
		}
		if _, err := mapSchedulerConfig(cfg); err != nil {
			return err
		}
		if _, err := mapStorageConfig(cfg); err != nil {
			return err
		}
		if _, err := mapPprofConfig(cfg); err != nil {
			return err
		}
		if _, err := mapNetdiagConfig(cfg); err != nil {
			return err
		}
		return nil
	})

	if err := a.adapter.Start(a.sup.Context(), a.interactions); err != nil {
		return err
	}
	a.unbindJoin = roles.BindMemberJoin(a.adapter.Session(), a.veterans)

	if err := a.adapter.RegisterCommands(ctx, a.cmdm.AppCommands()); err != nil {
		// Startup proceeds; /sync re-publishes once the API recovers.
		a.log.Warn("slash command registration failed", logx.Err(err))
	}

	if a.announcer.Enabled() {
		a.announcer.Start(a.sup.Context())
	}

	// Periodic work (cache refresh, minutely announcement scan, veteran
	// sweep) is owned by the features; the app only hands them the scheduler.
	if err := a.contestsFeature.RegisterJobs(a.sched); err != nil {
		return err
	}
	if err := a.veterans.RegisterJobs(a.sched); err != nil {
		return err
	}
	if a.sched.Enabled() {
		a.sched.Start(a.sup.Context())
	}

	if a.pprof.Enabled() {
		a.pprof.Start(a.sup.Context())
	}

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmdm.DispatchLoop(c, a.interactions)
	})

	// Prime the contest cache so the first /contests after boot does not
	// pay for the fetch inline.
	a.sup.Go0("contest.prime", func(c context.Context) {
		pctx, cancel := context.WithTimeout(c, 2*time.Minute)
		defer cancel()
		if _, err := a.refresher.RefreshIfStale(pctx); err != nil && c.Err() == nil {
			a.log.Warn("startup contest refresh failed", logx.Err(err))
		}
	})

	// Keep event logging at debug; refresh and scheduler events are frequent.
	if a.bus != nil {
		events, unsub := a.bus.Subscribe(128)
		a.sup.Go0("eventbus.log", func(c context.Context) {
			defer unsub()
			for {
				select {
				case <-c.Done():
					return
				case e, ok := <-events:
					if !ok {
						return
					}
					a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
				}
			}
		})
	}

	// Hot reload config fan-out.
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		// Track the last applied config to generate a safe diff summary.
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				sections, attrs := config.SummarizeConfigChange(lastApplied, newCfg)
				if len(sections) > 0 {
					fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
					a.log.Debug("config change summary", fields...)
				} else {
					a.log.Debug("config reload received, but no effective changes detected")
				}
				prev := lastApplied
				lastApplied = newCfg

				a.applyReload(c, prev, newCfg, sections)

				// Keep the final line concise; details are in debug logs.
				if len(sections) > 0 {
					fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
					a.log.Info("config reloaded", fields...)
				} else {
					a.log.Info("config reloaded (no changes)")
				}
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	// systemd integration: readiness now, watchdog pings until shutdown.
	systemd.NotifyReady(a.log)
	a.sup.Go0("systemd.watchdog", func(c context.Context) {
		systemd.Watchdog(c, a.log)
	})

	a.log.Info("app started")
	return nil
}

// applyReload pushes a committed config change into the running services.
// Sections whose owners only read config at construction get a restart
// warning instead.
func (a *App) applyReload(c context.Context, prev, newCfg *config.Config, sections []string) {
	for _, s := range sections {
		switch s {
		case "storage", "source", "cache", "roles", "netdiag":
			a.log.Warn("config section changed; restart required for changes to take effect", logx.String("section", s))
		}
	}

	// Forwarder target moves before Apply so enabling Discord logging
	// never points at the stale channel.
	if prev == nil || newCfg.Logging.Discord.ChannelID != prev.Logging.Discord.ChannelID {
		a.logs.SetForwarder(a.adapter, newCfg.Logging.Discord.ChannelID)
	}
	a.logs.Apply(mapLoggingConfig(newCfg))

	if prev != nil && newCfg.Discord.Token != prev.Discord.Token {
		a.log.Warn("discord token changed; restart required for changes to take effect")
	}
	if prev != nil && newCfg.Discord.GuildID != prev.Discord.GuildID {
		a.log.Warn("discord guild_id changed; restart required for changes to take effect")
	}
	if prev == nil || newCfg.Discord.Presence != prev.Discord.Presence {
		if err := a.adapter.SetPresence(c, newCfg.Discord.Presence); err != nil {
			a.log.Warn("presence update failed", logx.Err(err))
		}
	}

	// Announcer: apply live, with enable/disable transitions.
	prevAnnEnabled := a.announcer.Enabled()
	if annCfg, err := mapAnnounceConfig(newCfg); err != nil {
		a.log.Warn("invalid announce config; keeping previous", logx.Err(err))
	} else {
		a.announcer.Apply(annCfg)
		if prevAnnEnabled && !annCfg.Enabled {
			a.log.Info("announcer disabled via config")
			stopCtx, cancel := context.WithTimeout(c, 3*time.Second)
			a.announcer.Stop(stopCtx)
			cancel()
		} else if !prevAnnEnabled && annCfg.Enabled {
			a.log.Info("announcer enabled via config")
			a.announcer.Start(c)
		}
	}

	// Scheduler: apply live (timezone changes restart cron internally).
	prevSchedEnabled := a.sched.Enabled()
	if schedCfg, err := mapSchedulerConfig(newCfg); err != nil {
		a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
	} else {
		a.sched.Apply(schedCfg)
		if prevSchedEnabled && !schedCfg.Enabled {
			a.log.Info("scheduler disabled via config")
			stopCtx, cancel := context.WithTimeout(c, 3*time.Second)
			a.sched.Stop(stopCtx)
			cancel()
		} else if !prevSchedEnabled && schedCfg.Enabled {
			a.log.Info("scheduler enabled via config")
			a.sched.Start(c)
		}
	}

	if ppc, err := mapPprofConfig(newCfg); err != nil {
		a.log.Warn("invalid pprof config; keeping previous", logx.Err(err))
	} else {
		a.pprof.Apply(c, ppc)
	}
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	systemd.NotifyStopping(a.log)
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// Cancel the run context first so background loops start unwinding.
	a.sup.Cancel()

	// Bound each shutdown step so one component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			// Respect the caller's deadline; never extend it.
			if dl, ok := ctx.Deadline(); ok {
				rem := time.Until(dl)
				if rem <= 0 {
					max = 0
				} else if rem < max {
					max = rem
				}
			}
			if max > 0 {
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.String("err", err.Error()))
			}
			took := time.Since(start)
			if took >= 500*time.Millisecond {
				a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
			} else {
				a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
			}
		case <-stepCtx.Done():
			// Contract: fn must honor stepCtx and return promptly. If it
			// doesn't, log a leak signal.
			elapsed := time.Since(start)
			a.log.Warn(
				"stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.String("err", stepCtx.Err().Error()),
				logx.Duration("elapsed", elapsed),
			)
			go func() {
				err := <-done
				took := time.Since(start)
				if err != nil {
					a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.String("err", err.Error()), logx.Duration("took", took))
				} else {
					a.log.Info("stop step finished after deadline", logx.String("name", name), logx.Duration("took", took))
				}
			}()
		}
	}

	// Scheduler first so no new jobs enqueue announcements mid-shutdown.
	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("announcer", 2*time.Second, func(c context.Context) error { a.announcer.Stop(c); return nil })
	step("pprof", 1*time.Second, func(c context.Context) error { a.pprof.Stop(c); return nil })
	if a.unbindJoin != nil {
		a.unbindJoin()
		a.unbindJoin = nil
	}
	step("discord", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	a.source.Close()
	step("storage", 1*time.Second, func(c context.Context) error { return a.db.Close() })

	// Finally, wait for supervised goroutines (config watch/reload,
	// command dispatcher, watchdog).
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}
