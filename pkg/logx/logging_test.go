package logx

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type captureForwarder struct {
	ch chan string
}

func (f *captureForwarder) ForwardLog(_ context.Context, channelID, text string) error {
	f.ch <- channelID + "|" + text
	return nil
}

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"INFO", zerolog.InfoLevel},
		{" warn ", zerolog.WarnLevel},
		{"WARNING", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"bogus", zerolog.InfoLevel},
	}
	for _, c := range cases {
		if got := parseLevel(c.in, zerolog.InfoLevel); got != c.want {
			t.Fatalf("parseLevel(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestFileSinkWritesAndFilePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.log")
	svc, log := New(Config{
		Level: "info",
		File:  FileConfig{Enabled: true, Path: path},
	})
	t.Cleanup(func() { _ = svc.Close() })

	if got := svc.FilePath(); got != path {
		t.Fatalf("FilePath() = %q, want %q", got, path)
	}

	log.Info("hello file sink", String("k", "v"))
	log.Debug("below level, must not appear")

	if err := svc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := svc.FilePath(); got != "" {
		t.Fatalf("FilePath() after Close = %q, want empty", got)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, "hello file sink") || !strings.Contains(out, `"k":"v"`) {
		t.Fatalf("file sink missing entry: %q", out)
	}
	if strings.Contains(out, "below level") {
		t.Fatalf("debug line leaked through info level: %q", out)
	}
}

func TestApplySwitchesLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.log")
	cfg := Config{
		Level: "error",
		File:  FileConfig{Enabled: true, Path: path},
	}
	svc, log := New(cfg)
	t.Cleanup(func() { _ = svc.Close() })

	log.Info("muted at error level")

	cfg.Level = "debug"
	svc.Apply(cfg)
	log.Info("audible at debug level")

	if err := svc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	out := string(data)
	if strings.Contains(out, "muted at error level") {
		t.Fatalf("info line written while level was error: %q", out)
	}
	if !strings.Contains(out, "audible at debug level") {
		t.Fatalf("info line missing after Apply lowered the level: %q", out)
	}
}

func TestDiscordSinkMinLevelAndForwarding(t *testing.T) {
	svc, log := New(Config{
		Level:   "info",
		Discord: DiscordConfig{Enabled: true, MinLevel: "warn", RatePerSec: 10},
	})
	t.Cleanup(func() { _ = svc.Close() })

	fwd := &captureForwarder{ch: make(chan string, 4)}
	svc.SetForwarder(fwd, "chan-1")

	log.Info("ordinary line")
	log.Warn("trouble ahead", String("guild", "g1"))

	// The info line sits below min_level; only the warn may arrive.
	select {
	case got := <-fwd.ch:
		if !strings.HasPrefix(got, "chan-1|") {
			t.Fatalf("forwarded to wrong channel: %q", got)
		}
		if !strings.Contains(got, "[WARN] trouble ahead") || !strings.Contains(got, "guild=g1") {
			t.Fatalf("unexpected forwarded text: %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("warn line never forwarded")
	}

	select {
	case extra := <-fwd.ch:
		t.Fatalf("line below min_level forwarded: %q", extra)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestFormatChatJSON(t *testing.T) {
	line := []byte(`{"level":"warn","time":"x","message":"send failed","guild_id":"g1"}` + "\n")
	got := formatChatJSON(line)
	if !strings.HasPrefix(got, "[WARN] send failed") {
		t.Fatalf("formatChatJSON prefix = %q", got)
	}
	if !strings.Contains(got, "- guild_id=g1") {
		t.Fatalf("formatChatJSON lost field: %q", got)
	}

	raw := formatChatJSON([]byte("  not json at all \n"))
	if raw != "not json at all" {
		t.Fatalf("non-JSON passthrough = %q", raw)
	}

	long := strings.Repeat("x", 3000)
	if got := formatChatJSON([]byte(long)); len(got) > 1900 {
		t.Fatalf("truncation failed, len=%d", len(got))
	}
}

func TestNopAndZeroLoggers(t *testing.T) {
	var zero Logger
	if !zero.IsZero() {
		t.Fatal("zero Logger must report IsZero")
	}
	// Must not panic.
	zero.Info("into the void")
	Nop().Error("also into the void")

	if Nop().IsZero() {
		t.Fatal("Nop() is a usable logger, not a zero value")
	}
}
