package netdiag

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	kit "loungebot/internal/transport"
	"loungebot/internal/transport/discord/router"
	logx "loungebot/pkg/logx"
)

type fakeAdapter struct {
	mu        sync.Mutex
	defers    []bool
	responds  []kit.Message
	followups []kit.Message
}

func (f *fakeAdapter) Start(ctx context.Context, out chan<- kit.Interaction) error { return nil }
func (f *fakeAdapter) Stop(ctx context.Context) error                              { return nil }

func (f *fakeAdapter) Respond(ctx context.Context, in kit.Interaction, msg kit.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responds = append(f.responds, msg)
	return nil
}

func (f *fakeAdapter) Defer(ctx context.Context, in kit.Interaction, ephemeral bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.defers = append(f.defers, ephemeral)
	return nil
}

func (f *fakeAdapter) Followup(ctx context.Context, in kit.Interaction, msg kit.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.followups = append(f.followups, msg)
	return nil
}

func (f *fakeAdapter) Send(ctx context.Context, channelID string, msg kit.Message) (kit.MessageRef, error) {
	return kit.MessageRef{ChannelID: channelID, MessageID: "m1"}, nil
}

type fakeProber struct {
	mu      sync.Mutex
	res     Result
	err     error
	calls   int
	started chan struct{} // signaled when Probe begins, if set
	release chan struct{} // Probe blocks on this until closed, if set
}

func (p *fakeProber) Probe(ctx context.Context) (Result, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	if p.started != nil {
		p.started <- struct{}{}
	}
	if p.release != nil {
		select {
		case <-p.release:
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}
	return p.res, p.err
}

func (p *fakeProber) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func healthyResult() Result {
	return Result{
		DownloadMbps:  184.52,
		UploadMbps:    96.08,
		PingMs:        12,
		JitterMs:      1.4,
		ISP:           "Example Fiber",
		ServerName:    "ExampleNet",
		ServerCountry: "India",
		Elapsed:       18 * time.Second,
	}
}

func newFeature(prober Prober) (*Feature, *fakeAdapter) {
	f := New(Config{Enabled: true}, prober, logx.Nop())
	return f, &fakeAdapter{}
}

func request(ad *fakeAdapter) *router.Request {
	in := kit.Interaction{Command: "netdiag", UserID: "owner", GuildID: "g1"}
	return &router.Request{In: in, Command: in.Command, ReqID: "test", Adapter: ad, Logger: logx.Nop()}
}

func TestNetdiagRepliesWithEmbed(t *testing.T) {
	prober := &fakeProber{res: healthyResult()}
	f, ad := newFeature(prober)

	if err := f.handleNetdiag(context.Background(), request(ad)); err != nil {
		t.Fatalf("handleNetdiag: %v", err)
	}
	if len(ad.defers) != 1 || ad.defers[0] {
		t.Fatalf("defers = %v, want one public defer", ad.defers)
	}
	if len(ad.followups) != 1 {
		t.Fatalf("followups = %d, want 1", len(ad.followups))
	}
	em := ad.followups[0].Embeds[0]
	if em.Title != "📡 Host Connectivity Probe" {
		t.Fatalf("title = %q", em.Title)
	}
	if em.Color != 0x00ff00 {
		t.Fatalf("color = %#x, want green", em.Color)
	}
	values := map[string]string{}
	for _, fl := range em.Fields {
		values[fl.Name] = fl.Value
	}
	if values["⬇️ Download"] != "184.52 Mbps" {
		t.Fatalf("download = %q", values["⬇️ Download"])
	}
	if values["⬆️ Upload"] != "96.08 Mbps" {
		t.Fatalf("upload = %q", values["⬆️ Upload"])
	}
	if values["📦 Packet Loss"] != "0.00%" {
		t.Fatalf("loss = %q", values["📦 Packet Loss"])
	}
	if values["🖥️ Server"] != "ExampleNet (India)" {
		t.Fatalf("server = %q", values["🖥️ Server"])
	}
	if prober.callCount() != 1 {
		t.Fatalf("probe calls = %d", prober.callCount())
	}
}

func TestNetdiagDisabled(t *testing.T) {
	prober := &fakeProber{res: healthyResult()}
	f := New(Config{}, prober, logx.Nop())
	ad := &fakeAdapter{}

	if err := f.handleNetdiag(context.Background(), request(ad)); err != nil {
		t.Fatalf("handleNetdiag: %v", err)
	}
	if len(ad.defers) != 0 {
		t.Fatal("disabled feature must not defer")
	}
	msg := ad.responds[0]
	if !msg.Ephemeral || !strings.Contains(msg.Text, "disabled") {
		t.Fatalf("reply = %+v", msg)
	}
	if prober.callCount() != 0 {
		t.Fatal("disabled feature must not probe")
	}
}

func TestNetdiagProbeFailure(t *testing.T) {
	prober := &fakeProber{err: errors.New("no servers available")}
	f, ad := newFeature(prober)

	if err := f.handleNetdiag(context.Background(), request(ad)); err != nil {
		t.Fatalf("handleNetdiag: %v", err)
	}
	msg := ad.followups[0]
	if !strings.Contains(msg.Text, "❌ Connectivity probe failed: no servers available") {
		t.Fatalf("text = %q", msg.Text)
	}
	if len(msg.Embeds) != 0 {
		t.Fatal("failed probe must not render an embed")
	}
}

func TestNetdiagRejectsConcurrentProbe(t *testing.T) {
	prober := &fakeProber{
		res:     healthyResult(),
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	f, ad := newFeature(prober)

	done := make(chan error, 1)
	go func() { done <- f.handleNetdiag(context.Background(), request(ad)) }()
	<-prober.started

	second := &fakeAdapter{}
	if err := f.handleNetdiag(context.Background(), request(second)); err != nil {
		t.Fatalf("second handleNetdiag: %v", err)
	}
	msg := second.responds[0]
	if !msg.Ephemeral || !strings.Contains(msg.Text, "already running") {
		t.Fatalf("reply = %+v", msg)
	}

	close(prober.release)
	if err := <-done; err != nil {
		t.Fatalf("first handleNetdiag: %v", err)
	}
	if prober.callCount() != 1 {
		t.Fatalf("probe calls = %d, want 1", prober.callCount())
	}

	// The guard resets once the first probe finishes.
	third := &fakeAdapter{}
	if err := f.handleNetdiag(context.Background(), request(third)); err != nil {
		t.Fatalf("third handleNetdiag: %v", err)
	}
	if len(third.followups) != 1 {
		t.Fatalf("followups = %d, want 1", len(third.followups))
	}
}

func TestProbeColor(t *testing.T) {
	cases := []struct {
		name string
		res  Result
		want int
	}{
		{"healthy", Result{PingMs: 20}, 0x00ff00},
		{"slow ping", Result{PingMs: 120}, 0xffff00},
		{"some loss", Result{PingMs: 20, LossPercent: 0.5}, 0xffff00},
		{"heavy loss", Result{PingMs: 20, LossPercent: 3}, 0xff0000},
		{"dead link", Result{PingMs: 400}, 0xff0000},
	}
	for _, tc := range cases {
		if got := probeColor(tc.res); got != tc.want {
			t.Fatalf("%s: color = %#x, want %#x", tc.name, got, tc.want)
		}
	}
}

func TestCommandsDeclaration(t *testing.T) {
	f := New(Config{Enabled: true, Timeout: 90 * time.Second}, &fakeProber{}, logx.Nop())
	cmds := f.Commands()
	if len(cmds) != 1 {
		t.Fatalf("commands = %d, want 1", len(cmds))
	}
	c := cmds[0]
	if c.Name != "netdiag" || c.Access != router.AccessOwnerOnly {
		t.Fatalf("command = %+v", c)
	}
	if c.Timeout != 2*time.Minute {
		t.Fatalf("timeout = %v, want probe timeout plus margin", c.Timeout)
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	if cfg.ServerCount != DefaultServerCount || cfg.Timeout != DefaultTimeout {
		t.Fatalf("defaults = %+v", cfg)
	}
}
