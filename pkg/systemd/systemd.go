// Package systemd integrates the bot with the service manager it runs
// under: readiness, stop notification and the unit watchdog. Every call
// degrades to a no-op outside a systemd unit, so the same binary runs
// unchanged in dev shells and containers.
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "loungebot/pkg/logx"
)

// NotifyReady signals the unit finished starting up. With Type=notify
// this is what flips the unit to "active (running)".
func NotifyReady(log logx.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		log.Warn("sd_notify READY failed", logx.Err(err))
		return
	}
	if sent {
		log.Debug("sd_notify READY sent")
	}
}

// NotifyStopping signals that shutdown began, so the unit reads
// "deactivating" while the bot drains instead of looking hung.
func NotifyStopping(log logx.Logger) {
	if _, err := daemon.SdNotify(false, daemon.SdNotifyStopping); err != nil {
		log.Debug("sd_notify STOPPING failed", logx.Err(err))
	}
}

// Watchdog pings WATCHDOG=1 until ctx ends. It returns immediately when
// the unit has no WatchdogSec= configured (or we are not under systemd),
// so callers can spawn it unconditionally.
func Watchdog(ctx context.Context, log logx.Logger) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		log.Warn("sd_watchdog query failed", logx.Err(err))
		return
	}
	if interval <= 0 {
		return
	}

	// systemd recommends pinging at most every interval/2.
	period := interval / 2
	if period < time.Second {
		period = time.Second
	}
	log.Info("systemd watchdog enabled", logx.Duration("interval", interval), logx.Duration("period", period))

	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog); err != nil {
				log.Warn("sd_notify WATCHDOG failed", logx.Err(err))
			}
		}
	}
}
