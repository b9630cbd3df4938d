package contest

import (
	"testing"
	"time"
)

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		seconds int64
		want    string
	}{
		{0, "Unknown"},
		{-5, "Unknown"},
		{30, "< 1m"},
		{59, "< 1m"},
		{60, "1m"},
		{2700, "45m"},
		{3600, "1h"},
		{7200, "2h"},
		{9000, "2h 30m"},
		{5400, "1h 30m"},
	}
	for _, tc := range cases {
		if got := FormatDuration(tc.seconds); got != tc.want {
			t.Fatalf("FormatDuration(%d) = %q, want %q", tc.seconds, got, tc.want)
		}
	}
}

func TestFormatStartRendersIST(t *testing.T) {
	// 14:00 UTC is 19:30 in Asia/Kolkata.
	at := time.Date(2026, 1, 2, 14, 0, 0, 0, time.UTC)
	got := FormatStart(at)
	want := "January 02, 2026 at 07:30 PM IST"
	if got != want {
		t.Fatalf("FormatStart = %q, want %q", got, want)
	}
}

func TestDayWindow(t *testing.T) {
	// 2026-03-10 23:00 UTC is already 2026-03-11 04:30 in the display
	// zone, so "today" must be the 11th there.
	now := time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC)

	from, to := DayWindow(now, 0)
	if from.In(DisplayZone()).Format("2006-01-02 15:04") != "2026-03-11 00:00" {
		t.Fatalf("today window start = %v", from.In(DisplayZone()))
	}
	if got := to.Sub(from); got != 24*time.Hour {
		t.Fatalf("window length = %v", got)
	}

	fromTomorrow, _ := DayWindow(now, 1)
	if !fromTomorrow.Equal(to) {
		t.Fatalf("tomorrow must start where today ends: %v vs %v", fromTomorrow, to)
	}
}

func TestStatusAt(t *testing.T) {
	c := Contest{
		StartTime: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	cases := []struct {
		name string
		at   time.Time
		want Status
	}{
		{"before start", c.StartTime.Add(-time.Minute), StatusUpcoming},
		{"at start", c.StartTime, StatusRunning},
		{"midway", c.StartTime.Add(time.Hour), StatusRunning},
		{"at end", c.EndTime, StatusRunning},
		{"after end", c.EndTime.Add(time.Second), StatusEnded},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := c.StatusAt(tc.at); got != tc.want {
				t.Fatalf("StatusAt(%v) = %q, want %q", tc.at, got, tc.want)
			}
		})
	}
}
