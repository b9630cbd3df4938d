// Package contests is the contest-facing command surface: listings,
// manual refresh, and per-guild announcement setup. It also owns the
// periodic cache refresh and the minutely announcement scan.
package contests

import (
	"context"
	"errors"
	"fmt"
	"time"

	"loungebot/internal/announce"
	"loungebot/internal/contest"
	"loungebot/internal/guild"
	"loungebot/internal/scheduler"
	logx "loungebot/pkg/logx"
)

const defaultRefreshEvery = 6 * time.Hour

type Feature struct {
	svc       *contest.Service
	guilds    *guild.Store
	announcer *announce.Service

	refreshEvery time.Duration
	log          logx.Logger
}

func New(svc *contest.Service, guilds *guild.Store, announcer *announce.Service, refreshEvery time.Duration, log logx.Logger) *Feature {
	if refreshEvery <= 0 {
		refreshEvery = defaultRefreshEvery
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Feature{
		svc:          svc,
		guilds:       guilds,
		announcer:    announcer,
		refreshEvery: refreshEvery,
		log:          log,
	}
}

// RegisterJobs puts the feature's periodic work on the scheduler: the
// cache refresh sweep and the minutely announcement scan.
func (f *Feature) RegisterJobs(sched *scheduler.Service) error {
	_, err := sched.AddIntervalOpt("contests.refresh", f.refreshEvery, 0,
		scheduler.TaskOptions{Overlap: scheduler.OverlapSkipIfRunning},
		func(ctx context.Context) error {
			_, err := f.svc.Refresh(ctx)
			if errors.Is(err, contest.ErrRefreshInFlight) {
				// Someone beat the sweep to it; the cache is being filled either way.
				return nil
			}
			return err
		})
	if err != nil {
		return fmt.Errorf("register refresh job: %w", err)
	}

	if f.announcer != nil {
		_, err = sched.AddCronOpt("contests.announce_scan", "* * * * *", time.Minute,
			scheduler.TaskOptions{Overlap: scheduler.OverlapSkipIfRunning},
			func(ctx context.Context) error {
				return f.announcer.Scan(ctx, time.Now())
			})
		if err != nil {
			return fmt.Errorf("register announce scan: %w", err)
		}
	}
	return nil
}
