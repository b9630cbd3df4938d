package netdiag

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/showwin/speedtest-go/speedtest"

	logx "loungebot/pkg/logx"
)

// SpeedtestProber measures host bandwidth and latency against nearby
// speedtest.net servers.
//
// It builds a fresh client per run instead of the package-level
// speedtest helpers: the default client keeps a DataManager that can
// retain large snapshots across runs.
type SpeedtestProber struct {
	cfg Config
	log logx.Logger
}

func NewSpeedtestProber(cfg Config, log logx.Logger) *SpeedtestProber {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &SpeedtestProber{cfg: cfg.withDefaults(), log: log}
}

func (p *SpeedtestProber) Probe(ctx context.Context) (Result, error) {
	start := time.Now()

	st := speedtest.New(speedtest.WithUserConfig(&speedtest.UserConfig{}))
	defer func() {
		st.Snapshots().Clean()
		st.Reset()
		runtime.GC()
	}()

	user, err := st.FetchUserInfoContext(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("fetch user info: %w", err)
	}
	servers, err := st.FetchServerListContext(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("fetch server list: %w", err)
	}
	if a := servers.Available(); a != nil {
		servers = *a
	}
	if len(servers) == 0 {
		return Result{}, errors.New("no servers available")
	}

	// Closest candidates by distance first (cheap), then ping those.
	sort.Slice(servers, func(i, j int) bool {
		return servers[i].Distance < servers[j].Distance
	})
	n := p.cfg.ServerCount
	if n > len(servers) {
		n = len(servers)
	}
	pinged := pingCandidates(ctx, servers[:n], 4)
	if len(pinged) == 0 {
		return Result{}, errors.New("all latency tests failed")
	}
	sort.Slice(pinged, func(i, j int) bool {
		return pinged[i].Latency < pinged[j].Latency
	})

	// Full download/upload on the best server only. One server keeps the
	// probe short and peak memory low.
	srv := pinged[0]
	p.log.Debug("probing server",
		logx.String("name", srv.Sponsor),
		logx.String("country", srv.Country),
		logx.Float64("distance_km", srv.Distance),
		logx.Int64("ping_ms", srv.Latency.Milliseconds()),
	)
	if err := srv.DownloadTestContext(ctx); err != nil {
		return Result{}, fmt.Errorf("download test: %w", err)
	}
	if err := srv.UploadTestContext(ctx); err != nil {
		return Result{}, fmt.Errorf("upload test: %w", err)
	}
	st.Snapshots().Clean()
	st.Reset()

	res := Result{
		DownloadMbps:  srv.DLSpeed.Mbps(),
		UploadMbps:    srv.ULSpeed.Mbps(),
		PingMs:        float64(srv.Latency.Milliseconds()),
		JitterMs:      float64(srv.Jitter.Milliseconds()),
		LossPercent:   packetLoss(ctx, srv.Host),
		ISP:           user.Isp,
		ServerName:    srv.Sponsor,
		ServerCountry: srv.Country,
		Elapsed:       time.Since(start),
	}
	if res.JitterMs <= 0 {
		// speedtest-go does not always populate jitter; fall back to a
		// rough estimate so the embed never shows 0.00 for a live link.
		res.JitterMs = math.Max(0.1, res.PingMs*0.1)
	}
	return res, nil
}

// pingCandidates latency-tests the candidate servers with bounded
// concurrency and drops the ones that fail.
func pingCandidates(ctx context.Context, servers []*speedtest.Server, maxConcurrent int) []*speedtest.Server {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	sem := make(chan struct{}, maxConcurrent)
	out := make(chan *speedtest.Server, len(servers))
	var wg sync.WaitGroup

	for _, s := range servers {
		wg.Add(1)
		go func(s *speedtest.Server) {
			defer wg.Done()
			select {
			case <-ctx.Done():
				return
			case sem <- struct{}{}:
			}
			defer func() { <-sem }()

			// PingTestContext sets s.Latency and s.Jitter.
			if err := s.PingTestContext(ctx, nil); err != nil {
				return
			}
			if s.Latency > 0 {
				out <- s
			}
		}(s)
	}
	go func() {
		wg.Wait()
		close(out)
	}()

	pinged := make([]*speedtest.Server, 0, len(servers))
	for s := range out {
		pinged = append(pinged, s)
	}
	return pinged
}

// packetLoss runs the UDP loss analyzer against the chosen host.
// Loss measurement is best effort; failures read as 0.
func packetLoss(ctx context.Context, host string) float64 {
	if host == "" {
		return 0
	}
	pla := speedtest.NewPacketLossAnalyzer(nil)
	pl, err := pla.RunMultiWithContext(ctx, []string{host})
	if err != nil || pl == nil {
		return 0
	}
	return pl.LossPercent()
}
