package roles

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"loungebot/internal/scheduler"
	kit "loungebot/internal/transport"
	"loungebot/internal/transport/discord/router"
	logx "loungebot/pkg/logx"
)

// snowflakeAt builds a user id whose embedded timestamp is t.
func snowflakeAt(t time.Time) string {
	const discordEpochMs = 1420070400000
	return strconv.FormatInt((t.UnixMilli()-discordEpochMs)<<22, 10)
}

type ensureCall struct {
	guildID, name string
	color         int
	mentionable   bool
}

type addCall struct {
	guildID, userID, roleID string
}

type fakeDirectory struct {
	mu      sync.Mutex
	guilds  []string
	members map[string][]Member
	memErr  map[string]error
	roleID  string
	ensures []ensureCall
	adds    []addCall
	addErr  error
}

func (d *fakeDirectory) GuildIDs() []string { return d.guilds }

func (d *fakeDirectory) Members(ctx context.Context, guildID string) ([]Member, error) {
	if err := d.memErr[guildID]; err != nil {
		return nil, err
	}
	return d.members[guildID], nil
}

func (d *fakeDirectory) EnsureRole(ctx context.Context, guildID, name string, color int, mentionable bool) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ensures = append(d.ensures, ensureCall{guildID: guildID, name: name, color: color, mentionable: mentionable})
	return d.roleID, nil
}

func (d *fakeDirectory) AddRole(ctx context.Context, guildID, userID, roleID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.addErr != nil {
		return d.addErr
	}
	d.adds = append(d.adds, addCall{guildID: guildID, userID: userID, roleID: roleID})
	return nil
}

type fakeAdapter struct {
	defers    []bool
	responds  []kit.Message
	followups []kit.Message
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
	return kit.MessageRef{ChannelID: channelID, MessageID: "m1"}, nil
}

func request(ad *fakeAdapter, in kit.Interaction) *router.Request {
	return &router.Request{In: in, Command: in.Command, ReqID: "test", Adapter: ad, Logger: logx.Nop()}
}

func veteranID() string   { return snowflakeAt(time.Now().AddDate(-6, 0, 0)) }
func youngsterID() string { return snowflakeAt(time.Now().AddDate(-2, 0, 0)) }

func TestSweepGuildAssignsVeterans(t *testing.T) {
	oldID := veteranID()
	dir := &fakeDirectory{
		roleID: "vr1",
		members: map[string][]Member{
			"g1": {
				{UserID: oldID, Username: "elder"},
				{UserID: veteranID(), Username: "decorated", RoleIDs: []string{"vr1"}},
				{UserID: youngsterID(), Username: "newbie"},
				{UserID: veteranID(), Username: "beep", IsBot: true},
			},
		},
	}
	f := New(Config{Enabled: true}, dir, logx.Nop())

	res, err := f.SweepGuild(context.Background(), "g1")
	if err != nil {
		t.Fatalf("SweepGuild: %v", err)
	}
	want := SweepResult{Guilds: 1, Checked: 3, Assigned: 1, Skipped: 1}
	if res != want {
		t.Fatalf("result = %+v, want %+v", res, want)
	}
	if len(dir.adds) != 1 || dir.adds[0] != (addCall{guildID: "g1", userID: oldID, roleID: "vr1"}) {
		t.Fatalf("adds = %+v", dir.adds)
	}
	if len(dir.ensures) != 1 {
		t.Fatalf("ensures = %+v", dir.ensures)
	}
	ec := dir.ensures[0]
	if ec.name != "Discord Veteran" || ec.color != 0xf1c40f || !ec.mentionable {
		t.Fatalf("role params = %+v", ec)
	}
}

func TestSweepDisabled(t *testing.T) {
	f := New(Config{}, &fakeDirectory{}, logx.Nop())
	if _, err := f.Sweep(context.Background()); !errors.Is(err, ErrDisabled) {
		t.Fatalf("err = %v, want ErrDisabled", err)
	}
	if _, err := f.SweepGuild(context.Background(), "g1"); !errors.Is(err, ErrDisabled) {
		t.Fatalf("guild err = %v, want ErrDisabled", err)
	}
}

func TestSweepContinuesPastGuildErrors(t *testing.T) {
	dir := &fakeDirectory{
		guilds: []string{"bad", "good"},
		roleID: "vr1",
		memErr: map[string]error{"bad": errors.New("missing access")},
		members: map[string][]Member{
			"good": {{UserID: veteranID(), Username: "elder"}},
		},
	}
	f := New(Config{Enabled: true}, dir, logx.Nop())

	res, err := f.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if res.Guilds != 1 || res.Assigned != 1 || res.Errors != 1 {
		t.Fatalf("result = %+v", res)
	}
}

func TestSweepCountsAssignFailures(t *testing.T) {
	dir := &fakeDirectory{
		roleID: "vr1",
		addErr: errors.New("missing permissions"),
		members: map[string][]Member{
			"g1": {{UserID: veteranID(), Username: "elder"}},
		},
	}
	f := New(Config{Enabled: true}, dir, logx.Nop())

	res, err := f.SweepGuild(context.Background(), "g1")
	if err != nil {
		t.Fatalf("SweepGuild: %v", err)
	}
	if res.Assigned != 0 || res.Errors != 1 {
		t.Fatalf("result = %+v", res)
	}
}

func TestHandleMemberJoin(t *testing.T) {
	oldID := veteranID()
	dir := &fakeDirectory{roleID: "vr1"}
	f := New(Config{Enabled: true}, dir, logx.Nop())
	ctx := context.Background()

	if err := f.HandleMemberJoin(ctx, "g1", Member{UserID: oldID, Username: "elder"}); err != nil {
		t.Fatalf("veteran join: %v", err)
	}
	if len(dir.adds) != 1 || dir.adds[0].userID != oldID {
		t.Fatalf("adds = %+v", dir.adds)
	}

	if err := f.HandleMemberJoin(ctx, "g1", Member{UserID: youngsterID(), Username: "newbie"}); err != nil {
		t.Fatalf("young join: %v", err)
	}
	if err := f.HandleMemberJoin(ctx, "g1", Member{UserID: veteranID(), Username: "beep", IsBot: true}); err != nil {
		t.Fatalf("bot join: %v", err)
	}
	if err := f.HandleMemberJoin(ctx, "g1", Member{UserID: veteranID(), Username: "decorated", RoleIDs: []string{"vr1"}}); err != nil {
		t.Fatalf("decorated join: %v", err)
	}
	if len(dir.adds) != 1 {
		t.Fatalf("adds = %+v, want only the first join to assign", dir.adds)
	}
}

func TestCheckVeteransCommand(t *testing.T) {
	dir := &fakeDirectory{
		roleID: "vr1",
		members: map[string][]Member{
			"g1": {
				{UserID: veteranID(), Username: "elder"},
				{UserID: youngsterID(), Username: "newbie"},
			},
		},
	}
	f := New(Config{Enabled: true}, dir, logx.Nop())
	ad := &fakeAdapter{}

	req := request(ad, kit.Interaction{Command: "check_veterans", GuildID: "g1", UserID: "admin"})
	if err := f.handleCheckVeterans(context.Background(), req); err != nil {
		t.Fatalf("handleCheckVeterans: %v", err)
	}

	if len(ad.defers) != 1 || !ad.defers[0] {
		t.Fatalf("defers = %v, want one ephemeral defer", ad.defers)
	}
	msg := ad.followups[0]
	if !strings.Contains(msg.Text, "✅ Discord Veteran role check completed!") {
		t.Fatalf("reply = %q", msg.Text)
	}
	if !strings.Contains(msg.Text, "Checked 2 members, assigned 1 new veteran role(s).") {
		t.Fatalf("reply = %q", msg.Text)
	}
}

func TestCheckVeteransDisabled(t *testing.T) {
	f := New(Config{}, &fakeDirectory{}, logx.Nop())
	ad := &fakeAdapter{}

	req := request(ad, kit.Interaction{Command: "check_veterans", GuildID: "g1", UserID: "admin"})
	if err := f.handleCheckVeterans(context.Background(), req); err != nil {
		t.Fatalf("handleCheckVeterans: %v", err)
	}
	if msg := ad.followups[0]; !strings.Contains(msg.Text, "disabled") {
		t.Fatalf("reply = %q", msg.Text)
	}
}

func TestCheckVeteransRequiresGuild(t *testing.T) {
	f := New(Config{Enabled: true}, &fakeDirectory{}, logx.Nop())
	ad := &fakeAdapter{}

	req := request(ad, kit.Interaction{Command: "check_veterans", UserID: "admin"})
	if err := f.handleCheckVeterans(context.Background(), req); err != nil {
		t.Fatalf("handleCheckVeterans: %v", err)
	}
	if msg := ad.responds[0]; !msg.Ephemeral || !strings.Contains(msg.Text, "server") {
		t.Fatalf("reply = %+v", msg)
	}
}

func TestVeteranInfoStatus(t *testing.T) {
	f := New(Config{Enabled: true}, &fakeDirectory{}, logx.Nop())

	cases := []struct {
		name     string
		in       kit.Interaction
		wantName string
		wantText string
	}{
		{
			"veteran",
			kit.Interaction{Command: "veteran_info", GuildID: "g1", UserID: veteranID()},
			"✅ Your Status", "You qualify",
		},
		{
			"too young",
			kit.Interaction{Command: "veteran_info", GuildID: "g1", UserID: youngsterID()},
			"⏳ Your Status", "more years",
		},
		{
			"direct message",
			kit.Interaction{Command: "veteran_info", UserID: veteranID()},
			"ℹ️ Note", "in a server",
		},
		{
			"unparsable id",
			kit.Interaction{Command: "veteran_info", GuildID: "g1", UserID: "not-a-snowflake"},
			"ℹ️ Note", "account age",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ad := &fakeAdapter{}
			if err := f.handleVeteranInfo(context.Background(), request(ad, tc.in)); err != nil {
				t.Fatalf("handleVeteranInfo: %v", err)
			}
			em := ad.responds[0].Embeds[0]
			if em.Title != "🥇 Discord Veteran Role" {
				t.Fatalf("title = %q", em.Title)
			}
			last := em.Fields[len(em.Fields)-1]
			if last.Name != tc.wantName || !strings.Contains(last.Value, tc.wantText) {
				t.Fatalf("status field = %+v, want %q / %q", last, tc.wantName, tc.wantText)
			}
		})
	}
}

func TestAccountYears(t *testing.T) {
	now := time.Now()
	got := accountYears(now.AddDate(-1, 0, 0), now)
	if got < 0.95 || got > 1.05 {
		t.Fatalf("one-year-old account = %.3f years", got)
	}
	if snow := snowflakeAt(now.Add(-time.Hour)); snow == "" {
		t.Fatal("snowflake helper broke")
	}
	created, err := AccountCreated(snowflakeAt(now.Add(-time.Hour)))
	if err != nil {
		t.Fatalf("AccountCreated: %v", err)
	}
	if d := now.Add(-time.Hour).Sub(created); d < -time.Second || d > time.Second {
		t.Fatalf("snowflake round-trip drifted by %v", d)
	}
}

func TestRegisterJobs(t *testing.T) {
	sched := scheduler.New(scheduler.Config{Enabled: true}, nil, logx.Nop())

	on := New(Config{Enabled: true, CheckTime: "04:15"}, &fakeDirectory{}, logx.Nop())
	if err := on.RegisterJobs(sched); err != nil {
		t.Fatalf("RegisterJobs: %v", err)
	}
	found := false
	for _, s := range sched.Snapshot().Schedules {
		if s.Name == "roles.veteran_sweep" {
			found = true
			if !strings.Contains(s.Spec, "15 4") {
				t.Fatalf("spec = %q, want a 04:15 daily cron", s.Spec)
			}
		}
	}
	if !found {
		t.Fatal("sweep job not registered")
	}

	off := New(Config{}, &fakeDirectory{}, logx.Nop())
	sched2 := scheduler.New(scheduler.Config{Enabled: true}, nil, logx.Nop())
	if err := off.RegisterJobs(sched2); err != nil {
		t.Fatalf("RegisterJobs: %v", err)
	}
	if len(sched2.Snapshot().Schedules) != 0 {
		t.Fatal("disabled feature must not register jobs")
	}
}
