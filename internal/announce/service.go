package announce

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"loungebot/internal/contest"
	"loungebot/internal/eventbus"
	"loungebot/internal/guild"
	rtsup "loungebot/internal/runtime/supervisor"
	kit "loungebot/internal/transport"
	logx "loungebot/pkg/logx"
)

var (
	ErrDisabled  = errors.New("announcer disabled")
	ErrQueueFull = errors.New("announcer queue full")
	ErrStopped   = errors.New("announcer stopped")
)

// Sender delivers one message to a channel. The Discord adapter satisfies it.
type Sender interface {
	Send(ctx context.Context, channelID string, msg kit.Message) (kit.MessageRef, error)
}

// SettingsStore is the slice of guild storage the announcer needs.
// *guild.Store satisfies it.
type SettingsStore interface {
	DueAt(ctx context.Context, now time.Time, loc *time.Location) ([]guild.Settings, error)
	MarkAnnounced(ctx context.Context, guildID, date string) error
}

// ContestSource yields the contests to announce. *contest.Service satisfies it.
type ContestSource interface {
	Today(ctx context.Context, platform contest.Platform, limit int) ([]contest.Contest, error)
}

type job struct {
	guildID   string
	channelID string
	date      string // display-zone day being announced
	count     int
	msg       kit.Message
}

// Service implements the daily announcement pipeline:
// due-guild scan + queue + worker pool + rate limit + retry.
//
// It is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log      logx.Logger
	sender   Sender
	source   ContestSource
	settings SettingsStore
	bus      eventbus.Bus

	cfg     Config
	limiter *rate.Limiter

	accepting bool
	sendWG    sync.WaitGroup

	queue    chan job
	sup      *rtsup.Supervisor
	stopDone chan struct{} // non-nil while stopping

	// In-memory history (for operator commands)
	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, sender Sender, source ContestSource, settings SettingsStore, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		sender:   sender,
		source:   source,
		settings: settings,
		log:      log,
		bus:      bus,
	}
	s.applyLocked(cfg)
	return s
}

// Supervisor returns the announcer's internal supervisor (nil if not started).
// This is used for operational visibility.
func (s *Service) Supervisor() *rtsup.Supervisor {
	s.mu.Lock()
	sup := s.sup
	s.mu.Unlock()
	return sup
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	en := s.cfg.Enabled
	s.mu.Unlock()
	return en
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	// Defaults
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}

	s.cfg = cfg
	// Token bucket: burst = rate per sec, so short spikes don't block too hard.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	// Start is idempotent.
	s.mu.Lock()
	// If stopping, wait for it to finish before restarting.
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
		s.mu.Lock()
	}
	if s.queue != nil {
		s.mu.Unlock()
		return
	}
	if !s.cfg.Enabled {
		s.mu.Unlock()
		return
	}

	s.queue = make(chan job, s.cfg.QueueSize)
	s.accepting = true
	workers := s.cfg.Workers
	if workers <= 0 {
		workers = 2
	}

	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log.With(logx.String("comp", "announce"))),
		// A failed announcement must never take the bot down.
		rtsup.WithCancelOnError(false),
	)
	sup := s.sup
	q := s.queue
	s.mu.Unlock()

	for i := 0; i < workers; i++ {
		idx := i
		name := fmt.Sprintf("worker.%d", idx)
		sup.GoRestart(name, func(c context.Context) error {
			s.workerLoop(c, q, idx)
			// Clean exits happen on shutdown (queue close).
			s.mu.Lock()
			stopping := s.stopDone != nil
			s.mu.Unlock()
			if stopping {
				return context.Canceled
			}
			if c.Err() != nil {
				return c.Err()
			}
			return errors.New("announce worker exited unexpectedly")
		})
	}
}

// Stop stops intake and drains the queue best-effort until ctx deadline.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	q := s.queue
	sup := s.sup
	// If not running, nothing to do.
	if q == nil {
		s.mu.Unlock()
		return
	}
	// If already stopping, wait.
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		}
	}

	done := make(chan struct{})
	s.stopDone = done
	// Block new enqueues.
	s.accepting = false
	s.mu.Unlock()

	// Shutdown happens asynchronously so callers can time out without leaking state.
	go func() {
		defer close(done)
		// Wait for in-flight enqueues to finish, then close the queue so workers can drain.
		s.sendWG.Wait()
		func() {
			defer func() { _ = recover() }()
			close(q)
		}()
		if sup != nil {
			_ = sup.Wait(context.Background())
		}

		s.mu.Lock()
		s.queue = nil
		s.stopDone = nil
		s.sup = nil
		s.mu.Unlock()
	}()

	select {
	case <-done:
		return
	case <-ctx.Done():
		// Force-stop internal loops.
		if sup != nil {
			sup.Cancel()
		}
		return
	}
}

// Snapshot returns recently delivered announcements, oldest first.
func (s *Service) Snapshot() []HistoryItem {
	s.hmu.Lock()
	out := append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return out
}

func (s *Service) appendHistory(j job) {
	s.hmu.Lock()
	s.history = append(s.history, HistoryItem{At: time.Now(), GuildID: j.guildID, ChannelID: j.channelID, Contests: j.count})
	if len(s.history) > 300 {
		s.history = s.history[len(s.history)-300:]
	}
	s.hmu.Unlock()
}

func (s *Service) enqueue(ctx context.Context, j job) error {
	if ctx != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}

	s.mu.Lock()
	if !s.cfg.Enabled {
		s.mu.Unlock()
		return ErrDisabled
	}
	if !s.accepting || s.queue == nil {
		s.mu.Unlock()
		return ErrStopped
	}
	q := s.queue
	s.sendWG.Add(1)
	s.mu.Unlock()
	defer s.sendWG.Done()

	select {
	case q <- j:
		return nil
	default:
		return ErrQueueFull
	}
}

func (s *Service) workerLoop(ctx context.Context, q <-chan job, idx int) {
	_ = idx // kept for future per-worker metrics
	if ctx == nil {
		ctx = context.Background()
	}
	if q == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-q:
			if !ok {
				return
			}
			s.sendWithRetry(ctx, j)
		}
	}
}

func (s *Service) sendWithRetry(runCtx context.Context, j job) {
	// config snapshot for this send
	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	snd := s.sender
	log := s.log
	bus := s.bus
	s.mu.Unlock()

	if snd == nil {
		return
	}

	maxAttempts := 1
	if cfg.RetryMax > 0 {
		maxAttempts = 1 + cfg.RetryMax
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		// Rate limit (honor cancellation).
		if lim != nil {
			wctx := runCtx
			if wctx == nil {
				wctx = context.Background()
			}
			if err := lim.Wait(wctx); err != nil {
				return
			}
		}

		// Bound per-send call. Keep tight to avoid hanging workers.
		callCtx := runCtx
		if callCtx == nil {
			callCtx = context.Background()
		}
		callCtx, cancel := context.WithTimeout(callCtx, 10*time.Second)
		_, err := snd.Send(callCtx, j.channelID, j.msg)
		cancel()
		if err == nil {
			s.finishSend(j, bus, log)
			return
		}
		lastErr = err
		log.Debug("announcement send failed",
			logx.Err(err),
			logx.String("guild_id", j.guildID),
			logx.Int("attempt", attempt),
			logx.Int("max", maxAttempts))

		if attempt >= maxAttempts {
			break
		}

		delay := retryDelay(cfg, attempt)
		if delay <= 0 {
			continue
		}
		t := time.NewTimer(delay)
		rc := runCtx
		if rc == nil {
			rc = context.Background()
		}
		select {
		case <-t.C:
		case <-rc.Done():
			if !t.Stop() {
				<-t.C
			}
			return
		}
	}

	if lastErr != nil {
		log.Warn("announcement failed",
			logx.String("guild_id", j.guildID),
			logx.String("channel_id", j.channelID),
			logx.Err(lastErr))
		if bus != nil {
			now := time.Now()
			bus.Publish(eventbus.Event{Type: eventbus.TypeAnnounceFailed, Time: now, Data: AnnouncementEvent{GuildID: j.guildID, ChannelID: j.channelID, Date: j.date, Contests: j.count, At: now, Error: lastErr.Error()}})
		}
	}
}

// finishSend stamps the guild and records the delivery after a successful
// send. The stamp runs on a fresh context: the send already happened, and
// without the stamp the next scan would repeat the announcement.
func (s *Service) finishSend(j job, bus eventbus.Bus, log logx.Logger) {
	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err := s.settings.MarkAnnounced(sctx, j.guildID, j.date)
	cancel()
	if err != nil {
		log.Error("announcement sent but stamp failed",
			logx.String("guild_id", j.guildID),
			logx.String("date", j.date),
			logx.Err(err))
	}

	s.appendHistory(j)
	if bus != nil {
		now := time.Now()
		bus.Publish(eventbus.Event{Type: eventbus.TypeAnnounceSent, Time: now, Data: AnnouncementEvent{GuildID: j.guildID, ChannelID: j.channelID, Date: j.date, Contests: j.count, At: now}})
	}
	log.Info("announcement sent",
		logx.String("guild_id", j.guildID),
		logx.String("channel_id", j.channelID),
		logx.Int("contests", j.count),
		logx.String("date", j.date))
}

func retryDelay(cfg Config, attempt int) time.Duration {
	// attempt starts at 1 (first attempt), delay is for the NEXT attempt.
	base := cfg.RetryBase
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	maxD := cfg.RetryMaxDelay
	if maxD <= 0 {
		maxD = 10 * time.Second
	}
	// Exponential backoff: base * 2^(attempt-1)
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxD {
			d = maxD
			break
		}
	}
	// Jitter 0.7..1.3
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	jit := 0.7 + rng.Float64()*0.6
	d = time.Duration(float64(d) * jit)
	if d < 0 {
		return 0
	}
	if d > maxD {
		d = maxD
	}
	return d
}
