package utilities

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"loungebot/internal/guild"
	kit "loungebot/internal/transport"
	"loungebot/internal/transport/discord/router"
	logx "loungebot/pkg/logx"
)

type sendCall struct {
	channelID string
	msg       kit.Message
}

// fakeAdapter records every outbound call. Handlers run synchronously
// in these tests, so plain slices are enough.
type fakeAdapter struct {
	defers    []bool
	responds  []kit.Message
	followups []kit.Message
	sends     []sendCall
}

func (f *fakeAdapter) Start(ctx context.Context, out chan<- kit.Interaction) error { return nil }
func (f *fakeAdapter) Stop(ctx context.Context) error                              { return nil }

func (f *fakeAdapter) Respond(ctx context.Context, in kit.Interaction, msg kit.Message) error {
	f.responds = append(f.responds, msg)
	return nil
}

func (f *fakeAdapter) Defer(ctx context.Context, in kit.Interaction, ephemeral bool) error {
	f.defers = append(f.defers, ephemeral)
	return nil
}

func (f *fakeAdapter) Followup(ctx context.Context, in kit.Interaction, msg kit.Message) error {
	f.followups = append(f.followups, msg)
	return nil
}

func (f *fakeAdapter) Send(ctx context.Context, channelID string, msg kit.Message) (kit.MessageRef, error) {
	f.sends = append(f.sends, sendCall{channelID: channelID, msg: msg})
	return kit.MessageRef{ChannelID: channelID, MessageID: "m1"}, nil
}

type allowAll struct{}

func (allowAll) IsOwner(userID string) bool { return true }
func (allowAll) IsBotAdmin(ctx context.Context, m guild.Membership) (bool, error) {
	return true, nil
}

type fakeLatency struct{ d time.Duration }

func (f *fakeLatency) HeartbeatLatency() time.Duration { return f.d }

type fakeLogs struct{ path string }

func (f *fakeLogs) FilePath() string { return f.path }

func nopHandler(ctx context.Context, req *router.Request) error { return nil }

type testRig struct {
	feature *Feature
	adapter *fakeAdapter
	latency *fakeLatency
	logs    *fakeLogs
}

// newTestRig wires the feature against a registry shaped like the full
// bot: its own commands plus a sample from other features across every
// access tier.
func newTestRig(t *testing.T) *testRig {
	t.Helper()
	ad := &fakeAdapter{}
	lat := &fakeLatency{d: 42 * time.Millisecond}
	logs := &fakeLogs{}

	cm := router.NewCommandManager(logx.Nop(), ad, allowAll{})
	f := New(cm, lat, logs, logx.Nop())
	reg := append([]router.Command{
		{Name: "contests", Description: "Show upcoming contests", Access: router.AccessEveryone, FeatureName: "contests", Handle: nopHandler},
		{Name: "refresh", Description: "Force a contest refresh", Access: router.AccessBotAdmin, FeatureName: "contests", Handle: nopHandler},
		{Name: "grant_admin", Description: "Grant bot admin access", Access: router.AccessGuildAdmin, FeatureName: "admin", Handle: nopHandler},
		{Name: "sync", Description: "Force command re-registration", Access: router.AccessOwnerOnly, FeatureName: "admin", Handle: nopHandler},
	}, f.Commands()...)
	cm.SetRegistry(reg)

	return &testRig{feature: f, adapter: ad, latency: lat, logs: logs}
}

func (r *testRig) request(in kit.Interaction) *router.Request {
	return &router.Request{In: in, Command: in.Command, ReqID: "test", Adapter: r.adapter, Logger: logx.Nop()}
}

func (r *testRig) lastRespond(t *testing.T) kit.Message {
	t.Helper()
	if len(r.adapter.responds) == 0 {
		t.Fatal("no respond recorded")
	}
	return r.adapter.responds[len(r.adapter.responds)-1]
}

func TestPingColorsTrackLatency(t *testing.T) {
	cases := []struct {
		latency time.Duration
		color   int
	}{
		{50 * time.Millisecond, 0x00ff00},
		{150 * time.Millisecond, 0xffff00},
		{250 * time.Millisecond, 0xff0000},
	}
	for _, tc := range cases {
		rig := newTestRig(t)
		rig.latency.d = tc.latency

		req := rig.request(kit.Interaction{Command: "ping", UserID: "u1"})
		if err := rig.feature.handlePing(context.Background(), req); err != nil {
			t.Fatalf("handlePing(%v): %v", tc.latency, err)
		}
		msg := rig.lastRespond(t)
		if len(msg.Embeds) != 1 {
			t.Fatalf("embeds = %d, want 1", len(msg.Embeds))
		}
		em := msg.Embeds[0]
		if em.Title != "🏓 Pong!" {
			t.Fatalf("title = %q", em.Title)
		}
		if em.Color != tc.color {
			t.Fatalf("latency %v: color = %#x, want %#x", tc.latency, em.Color, tc.color)
		}
		want := fmt.Sprintf("Bot latency: **%dms**", tc.latency.Milliseconds())
		if em.Description != want {
			t.Fatalf("description = %q, want %q", em.Description, want)
		}
	}
}

func TestHelloMentionsCaller(t *testing.T) {
	rig := newTestRig(t)

	req := rig.request(kit.Interaction{Command: "hello", UserID: "u42"})
	if err := rig.feature.handleHello(context.Background(), req); err != nil {
		t.Fatalf("handleHello: %v", err)
	}
	em := rig.lastRespond(t).Embeds[0]
	if em.Title != "👋 Hello SST Batch '29!" {
		t.Fatalf("title = %q", em.Title)
	}
	if !strings.Contains(em.Description, "<@u42>") {
		t.Fatalf("description does not mention the caller: %q", em.Description)
	}
	if len(em.Fields) != 1 || em.Fields[0].Name != "🎯 What I Do" {
		t.Fatalf("fields = %+v", em.Fields)
	}
}

func TestHelpGroupsPublicCommandsByFeature(t *testing.T) {
	rig := newTestRig(t)

	req := rig.request(kit.Interaction{Command: "help", UserID: "u1"})
	if err := rig.feature.handleHelp(context.Background(), req); err != nil {
		t.Fatalf("handleHelp: %v", err)
	}
	em := rig.lastRespond(t).Embeds[0]
	if em.Title != "🤖 SST Lounge Bot - Command Guide" {
		t.Fatalf("title = %q", em.Title)
	}
	if len(em.Fields) != 2 {
		t.Fatalf("fields = %d, want contests and utilities groups", len(em.Fields))
	}
	if em.Fields[0].Name != "🏆 Contests" {
		t.Fatalf("first group = %q, want registration order preserved", em.Fields[0].Name)
	}
	if em.Fields[1].Name != "🛠️ Utilities" {
		t.Fatalf("second group = %q", em.Fields[1].Name)
	}
	all := em.Fields[0].Value + "\n" + em.Fields[1].Value
	for _, want := range []string{"`/contests`", "`/ping`", "`/hello`", "`/help`", "`/contribute`"} {
		if !strings.Contains(all, want) {
			t.Fatalf("help misses %s:\n%s", want, all)
		}
	}
	for _, gated := range []string{"`/refresh`", "`/grant_admin`", "`/sync`", "`/logs`", "`/admin_help`"} {
		if strings.Contains(all, gated) {
			t.Fatalf("help leaks gated command %s", gated)
		}
	}
}

func TestAdminHelpListsTiersEphemerally(t *testing.T) {
	rig := newTestRig(t)

	req := rig.request(kit.Interaction{Command: "admin_help", UserID: "u1"})
	if err := rig.feature.handleAdminHelp(context.Background(), req); err != nil {
		t.Fatalf("handleAdminHelp: %v", err)
	}
	msg := rig.lastRespond(t)
	if !msg.Ephemeral {
		t.Fatal("admin help must be ephemeral")
	}
	em := msg.Embeds[0]
	if em.Title != "⚙️ SST Lounge Bot - Admin Guide" {
		t.Fatalf("title = %q", em.Title)
	}
	names := make([]string, 0, len(em.Fields))
	for _, f := range em.Fields {
		names = append(names, f.Name)
	}
	want := []string{"🛡️ Bot Admin Commands", "🔧 Server Admin Commands", "👑 Owner Commands", "⚡ Quick Access"}
	if len(names) != len(want) {
		t.Fatalf("field names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("field[%d] = %q, want %q", i, names[i], want[i])
		}
	}
	byName := map[string]string{}
	for _, f := range em.Fields {
		byName[f.Name] = f.Value
	}
	if !strings.Contains(byName["🛡️ Bot Admin Commands"], "`/logs`") {
		t.Fatalf("bot admin tier misses /logs: %q", byName["🛡️ Bot Admin Commands"])
	}
	if !strings.Contains(byName["👑 Owner Commands"], "`/sync`") {
		t.Fatalf("owner tier misses /sync: %q", byName["👑 Owner Commands"])
	}
	if strings.Contains(byName["🛡️ Bot Admin Commands"], "`/ping`") {
		t.Fatal("public command leaked into the admin guide")
	}
}

func TestContributeEmbed(t *testing.T) {
	rig := newTestRig(t)

	req := rig.request(kit.Interaction{Command: "contribute", UserID: "u1"})
	if err := rig.feature.handleContribute(context.Background(), req); err != nil {
		t.Fatalf("handleContribute: %v", err)
	}
	em := rig.lastRespond(t).Embeds[0]
	if em.Title != "🤝 Contribute to SST Lounge Bot" {
		t.Fatalf("title = %q", em.Title)
	}
	if em.Color != 0x28a745 {
		t.Fatalf("color = %#x", em.Color)
	}
	if len(em.Fields) != 4 {
		t.Fatalf("fields = %d, want 4", len(em.Fields))
	}
	if !strings.Contains(em.Fields[3].Value, "https://github.com/Muneer320/SST-Lounge-Bot") {
		t.Fatalf("quick links missing repository URL: %q", em.Fields[3].Value)
	}
	if em.Footer != "Made by SST Batch '29 • For SST Batch '29 • Open Source ❤️" {
		t.Fatalf("footer = %q", em.Footer)
	}
}

func TestCommandsDeclaration(t *testing.T) {
	rig := newTestRig(t)
	cmds := rig.feature.Commands()
	if len(cmds) != 6 {
		t.Fatalf("commands = %d, want 6", len(cmds))
	}
	access := map[string]router.Access{}
	for _, c := range cmds {
		access[c.Name] = c.Access
		if c.FeatureName != "utilities" {
			t.Fatalf("%s feature = %q", c.Name, c.FeatureName)
		}
	}
	for _, open := range []string{"ping", "hello", "help", "contribute"} {
		if access[open] != router.AccessEveryone {
			t.Fatalf("%s access = %v, want everyone", open, access[open])
		}
	}
	for _, gated := range []string{"admin_help", "logs"} {
		if access[gated] != router.AccessBotAdmin {
			t.Fatalf("%s access = %v, want bot admin", gated, access[gated])
		}
	}
}
