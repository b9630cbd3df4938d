package guild

import (
	"context"
	"testing"
	"time"

	logx "loungebot/pkg/logx"

	"loungebot/internal/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := storage.Open(storage.Config{Path: ":memory:"}, logx.Nop())
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db, logx.Nop())
}

func TestValidateAnnouncementTime(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"09:00", "09:00", false},
		{"9:5", "09:05", false},
		{"23:59", "23:59", false},
		{"0:0", "00:00", false},
		{" 10:30 ", "10:30", false},
		{"24:00", "", true},
		{"12:60", "", true},
		{"-1:30", "", true},
		{"noon", "", true},
		{"12", "", true},
		{"12:30:00", "", true},
		{"", "", true},
	}
	for _, tc := range cases {
		got, err := ValidateAnnouncementTime(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ValidateAnnouncementTime(%q): expected error, got %q", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ValidateAnnouncementTime(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ValidateAnnouncementTime(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestGetReturnsDefaultsForUnknownGuild(t *testing.T) {
	s := newTestStore(t)
	got, err := s.Get(context.Background(), "123456789012345678")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.GuildID != "123456789012345678" {
		t.Fatalf("guild id = %q", got.GuildID)
	}
	if got.AnnouncementTime != DefaultAnnouncementTime {
		t.Fatalf("announcement time = %q, want default", got.AnnouncementTime)
	}
	if got.ContestChannelID != "" || got.LastAnnouncement != "" {
		t.Fatalf("unknown guild must come back empty: %+v", got)
	}
}

func TestSettingsUpsertKeepsOtherFields(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	const gid = "200000000000000001"

	if err := s.SetContestChannel(ctx, gid, "300000000000000001"); err != nil {
		t.Fatalf("SetContestChannel: %v", err)
	}
	if err := s.SetAnnouncementTime(ctx, gid, "7:30"); err != nil {
		t.Fatalf("SetAnnouncementTime: %v", err)
	}

	got, err := s.Get(ctx, gid)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ContestChannelID != "300000000000000001" {
		t.Fatalf("channel lost on time update: %+v", got)
	}
	if got.AnnouncementTime != "07:30" {
		t.Fatalf("announcement time = %q, want 07:30", got.AnnouncementTime)
	}

	// Re-pointing the channel keeps the custom time.
	if err := s.SetContestChannel(ctx, gid, "300000000000000002"); err != nil {
		t.Fatalf("SetContestChannel: %v", err)
	}
	got, err = s.Get(ctx, gid)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ContestChannelID != "300000000000000002" || got.AnnouncementTime != "07:30" {
		t.Fatalf("upsert clobbered fields: %+v", got)
	}

	if err := s.SetAnnouncementTime(ctx, gid, "25:00"); err == nil {
		t.Fatalf("invalid time accepted")
	}
}

func TestDueAtFiresAtOrAfterConfiguredTime(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	loc := time.FixedZone("IST", 5*3600+30*60)

	// 04:00 UTC is 09:30 IST.
	now := time.Date(2026, 8, 23, 4, 0, 0, 0, time.UTC)

	setup := func(gid, channel, hhmm string) {
		t.Helper()
		if channel != "" {
			if err := s.SetContestChannel(ctx, gid, channel); err != nil {
				t.Fatalf("SetContestChannel(%s): %v", gid, err)
			}
		}
		if err := s.SetAnnouncementTime(ctx, gid, hhmm); err != nil {
			t.Fatalf("SetAnnouncementTime(%s): %v", gid, err)
		}
	}

	setup("g-due", "c1", "09:30")
	setup("g-earlier-today", "c2", "09:00") // missed minute catches up
	setup("g-later-today", "c3", "09:31")
	setup("g-no-channel", "", "09:30")
	setup("g-already-done", "c4", "09:30")
	if err := s.MarkAnnounced(ctx, "g-already-done", now.In(loc).Format(DateLayout)); err != nil {
		t.Fatalf("MarkAnnounced: %v", err)
	}
	setup("g-done-yesterday", "c5", "09:30")
	if err := s.MarkAnnounced(ctx, "g-done-yesterday", now.In(loc).AddDate(0, 0, -1).Format(DateLayout)); err != nil {
		t.Fatalf("MarkAnnounced: %v", err)
	}

	due, err := s.DueAt(ctx, now, loc)
	if err != nil {
		t.Fatalf("DueAt: %v", err)
	}
	got := map[string]bool{}
	for _, g := range due {
		got[g.GuildID] = true
	}
	if len(due) != 3 || !got["g-due"] || !got["g-earlier-today"] || !got["g-done-yesterday"] {
		t.Fatalf("due = %v, want g-due, g-earlier-today, g-done-yesterday", got)
	}

	// After stamping, the guild is no longer due for the rest of the day.
	if err := s.MarkAnnounced(ctx, "g-due", now.In(loc).Format(DateLayout)); err != nil {
		t.Fatalf("MarkAnnounced: %v", err)
	}
	due, err = s.DueAt(ctx, now, loc)
	if err != nil {
		t.Fatalf("DueAt: %v", err)
	}
	got = map[string]bool{}
	for _, g := range due {
		got[g.GuildID] = true
	}
	if len(due) != 2 || !got["g-earlier-today"] || !got["g-done-yesterday"] {
		t.Fatalf("due after stamp = %v", got)
	}
}

func TestAllListsGuilds(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, gid := range []string{"b", "a"} {
		if err := s.SetContestChannel(ctx, gid, "c-"+gid); err != nil {
			t.Fatalf("SetContestChannel: %v", err)
		}
	}
	all, err := s.All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 2 || all[0].GuildID != "a" || all[1].GuildID != "b" {
		t.Fatalf("All = %+v", all)
	}
}
