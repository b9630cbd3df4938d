// Package netdiag runs an on-demand host connectivity probe so contest
// refresh failures can be told apart from source-API outages.
package netdiag

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	kit "loungebot/internal/transport"
	"loungebot/internal/transport/discord/router"
	logx "loungebot/pkg/logx"
)

const (
	DefaultServerCount = 3
	DefaultTimeout     = 60 * time.Second
)

type Config struct {
	Enabled     bool
	ServerCount int
	Timeout     time.Duration
}

func (c Config) withDefaults() Config {
	if c.ServerCount <= 0 {
		c.ServerCount = DefaultServerCount
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// Result is one completed probe.
type Result struct {
	DownloadMbps  float64
	UploadMbps    float64
	PingMs        float64
	JitterMs      float64
	LossPercent   float64
	ISP           string
	ServerName    string
	ServerCountry string
	Elapsed       time.Duration
}

// Prober measures host connectivity. SpeedtestProber is the production
// implementation.
type Prober interface {
	Probe(ctx context.Context) (Result, error)
}

type Feature struct {
	cfg     Config
	prober  Prober
	log     logx.Logger
	running atomic.Bool
}

// New builds the feature. A nil prober selects the speedtest.net
// implementation.
func New(cfg Config, prober Prober, log logx.Logger) *Feature {
	if log.IsZero() {
		log = logx.Nop()
	}
	f := &Feature{cfg: cfg.withDefaults(), log: log}
	f.prober = prober
	if f.prober == nil {
		f.prober = NewSpeedtestProber(f.cfg, f.log)
	}
	return f
}

func (f *Feature) Commands() []router.Command {
	return []router.Command{
		{
			Name:        "netdiag",
			Description: "Run a host connectivity probe (Owner only)",
			Access:      router.AccessOwnerOnly,
			FeatureName: "netdiag",
			// Margin on top of the probe timeout so the handler can still
			// report a failure instead of being killed alongside it.
			Timeout: f.cfg.Timeout + 30*time.Second,
			Handle:  f.handleNetdiag,
		},
	}
}

func (f *Feature) handleNetdiag(ctx context.Context, req *router.Request) error {
	if !f.cfg.Enabled {
		return req.ReplyEphemeral(ctx, "📡 Network diagnostics are disabled in the bot configuration.")
	}
	if !f.running.CompareAndSwap(false, true) {
		return req.ReplyEphemeral(ctx, "⏳ A connectivity probe is already running. Try again in a minute.")
	}
	defer f.running.Store(false)

	if err := req.Defer(ctx, false); err != nil {
		return err
	}

	probeCtx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	started := time.Now()
	res, err := f.prober.Probe(probeCtx)
	if err != nil {
		req.Logger.Warn("connectivity probe failed",
			logx.Duration("elapsed", time.Since(started)),
			logx.Err(err),
		)
		return req.Followup(ctx, kit.Message{Text: "❌ Connectivity probe failed: " + err.Error()})
	}
	if res.Elapsed <= 0 {
		res.Elapsed = time.Since(started)
	}
	req.Logger.Info("connectivity probe done",
		logx.Float64("download_mbps", res.DownloadMbps),
		logx.Float64("upload_mbps", res.UploadMbps),
		logx.Float64("ping_ms", res.PingMs),
		logx.Float64("loss_percent", res.LossPercent),
		logx.Duration("elapsed", res.Elapsed),
	)
	return req.Followup(ctx, kit.Message{Embeds: []kit.Embed{resultEmbed(res)}})
}

// probeColor follows the ping command's traffic-light thresholds.
func probeColor(res Result) int {
	switch {
	case res.LossPercent >= 2 || res.PingMs >= 250:
		return 0xff0000
	case res.LossPercent > 0 || res.PingMs >= 100:
		return 0xffff00
	default:
		return 0x00ff00
	}
}

func resultEmbed(res Result) kit.Embed {
	isp := res.ISP
	if isp == "" {
		isp = "Unknown"
	}
	em := kit.Embed{
		Title:       "📡 Host Connectivity Probe",
		Description: fmt.Sprintf("Completed in %.1fs.", res.Elapsed.Seconds()),
		Color:       probeColor(res),
		Fields: []kit.EmbedField{
			{Name: "⬇️ Download", Value: fmt.Sprintf("%.2f Mbps", res.DownloadMbps), Inline: true},
			{Name: "⬆️ Upload", Value: fmt.Sprintf("%.2f Mbps", res.UploadMbps), Inline: true},
			{Name: "📶 Ping", Value: fmt.Sprintf("%.2f ms", res.PingMs), Inline: true},
			{Name: "📊 Jitter", Value: fmt.Sprintf("%.2f ms", res.JitterMs), Inline: true},
			{Name: "📦 Packet Loss", Value: fmt.Sprintf("%.2f%%", res.LossPercent), Inline: true},
			{Name: "🌐 ISP", Value: isp, Inline: true},
		},
		Timestamp: time.Now(),
	}
	if res.ServerName != "" {
		server := res.ServerName
		if res.ServerCountry != "" {
			server = fmt.Sprintf("%s (%s)", res.ServerName, res.ServerCountry)
		}
		em.Fields = append(em.Fields, kit.EmbedField{Name: "🖥️ Server", Value: server})
	}
	return em
}
