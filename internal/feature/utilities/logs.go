package utilities

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	kit "loungebot/internal/transport"
	"loungebot/internal/transport/discord/router"
	logx "loungebot/pkg/logx"
)

const (
	defaultLogLines = 50
	maxLogLines     = 1000

	// logTimeLayout matches the "time" field the file sink writes.
	logTimeLayout = "2006-01-02T15:04:05.000Z07:00"
)

// logQuery is a validated /logs invocation. A time window overrides the
// line cap; minutes override hours.
type logQuery struct {
	lines   int
	hours   int
	minutes int
	level   string // file-sink level name ("warn"), "" = all
	display string // user-facing level name ("WARNING")
}

// canonicalLevel maps the user-facing level names onto the level
// strings the file sink writes.
func canonicalLevel(s string) (sink, display string, ok bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "":
		return "", "", true
	case "DEBUG":
		return "debug", "DEBUG", true
	case "INFO":
		return "info", "INFO", true
	case "WARNING":
		return "warn", "WARNING", true
	case "ERROR":
		return "error", "ERROR", true
	}
	return "", "", false
}

func (f *Feature) handleLogs(ctx context.Context, req *router.Request) error {
	q := logQuery{lines: defaultLogLines}
	if v, ok := req.In.IntOption("lines"); ok {
		if v < 1 || v > maxLogLines {
			return req.ReplyEphemeral(ctx, fmt.Sprintf("❌ Lines must be between 1 and %d.", maxLogLines))
		}
		q.lines = int(v)
	}
	if v, ok := req.In.IntOption("hours"); ok {
		if v < 1 {
			return req.ReplyEphemeral(ctx, "❌ Hours must be a positive number.")
		}
		q.hours = int(v)
	}
	if v, ok := req.In.IntOption("minutes"); ok {
		if v < 1 {
			return req.ReplyEphemeral(ctx, "❌ Minutes must be a positive number.")
		}
		q.minutes = int(v)
	}
	var ok bool
	if q.level, q.display, ok = canonicalLevel(req.In.StringOption("level")); !ok {
		return req.ReplyEphemeral(ctx, "❌ Level must be one of: INFO, WARNING, ERROR, DEBUG")
	}

	if err := req.Defer(ctx, true); err != nil {
		return err
	}

	path := ""
	if f.logs != nil {
		path = f.logs.FilePath()
	}
	if path == "" {
		return req.Followup(ctx, kit.Message{Text: "❌ Log file not found. Check bot configuration.", Ephemeral: true})
	}
	lines, err := readLogLines(path)
	if err != nil {
		text := "❌ Error reading logs: " + err.Error()
		switch {
		case errors.Is(err, fs.ErrNotExist):
			text = "❌ Log file not found."
		case errors.Is(err, fs.ErrPermission):
			text = "❌ Permission denied reading log file."
		}
		req.Logger.Warn("log export failed", logx.String("path", path), logx.Err(err))
		return req.Followup(ctx, kit.Message{Text: text, Ephemeral: true})
	}
	if len(lines) == 0 {
		return req.Followup(ctx, kit.Message{Text: "📝 Log file is empty.", Ephemeral: true})
	}

	now := time.Now()
	selected, timeDesc := filterLogs(lines, q, now)
	if len(selected) == 0 {
		if q.display != "" {
			return req.Followup(ctx, kit.Message{
				Text:      fmt.Sprintf("📝 No %s logs found in the %s.", q.display, timeDesc),
				Ephemeral: true,
			})
		}
		return req.Followup(ctx, kit.Message{
			Text:      fmt.Sprintf("📝 No logs found in the %s.", timeDesc),
			Ephemeral: true,
		})
	}

	content := exportHeader(now, timeDesc, q.display, path, len(selected)) + strings.Join(selected, "\n") + "\n"
	name := exportFilename(now, q)

	text := "📄 **Bot Logs Export**\n" +
		fmt.Sprintf("🕒 **Time Range:** %s\n", timeDesc) +
		fmt.Sprintf("📊 **Total Lines:** %d\n", len(selected)) +
		fmt.Sprintf("📁 **File:** `%s`", name)
	if q.display != "" {
		text += fmt.Sprintf("\n🔍 **Level Filter:** %s", q.display)
	}
	return req.Followup(ctx, kit.Message{
		Text:      text,
		Files:     []kit.FileAttachment{{Name: name, Data: []byte(content)}},
		Ephemeral: true,
	})
}

func readLogLines(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var out []string
	sc := bufio.NewScanner(file)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		if line := sc.Text(); line != "" {
			out = append(out, line)
		}
	}
	return out, sc.Err()
}

// filterLogs applies the time window or line cap, then the exact level
// match. Lines whose timestamp cannot be parsed pass the time filter;
// lines without a recognizable level never pass a level filter.
func filterLogs(lines []string, q logQuery, now time.Time) ([]string, string) {
	var (
		selected []string
		timeDesc string
	)
	switch {
	case q.minutes > 0 || q.hours > 0:
		cutoff := now.Add(-time.Duration(q.hours) * time.Hour)
		timeDesc = fmt.Sprintf("last %d hour(s)", q.hours)
		if q.minutes > 0 {
			cutoff = now.Add(-time.Duration(q.minutes) * time.Minute)
			timeDesc = fmt.Sprintf("last %d minute(s)", q.minutes)
		}
		for _, raw := range lines {
			t, _, ok := parseLogMeta(raw)
			if !ok || !t.Before(cutoff) {
				selected = append(selected, raw)
			}
		}
	default:
		selected = lines
		if len(selected) > q.lines {
			selected = selected[len(selected)-q.lines:]
		}
		timeDesc = fmt.Sprintf("most recent %d entries", len(selected))
	}

	if q.level != "" {
		kept := selected[:0:0]
		for _, raw := range selected {
			if _, lvl, _ := parseLogMeta(raw); lvl == q.level {
				kept = append(kept, raw)
			}
		}
		selected = kept
	}
	return selected, timeDesc
}

// parseLogMeta pulls the timestamp and level out of one file-sink line.
func parseLogMeta(raw string) (t time.Time, level string, ok bool) {
	var meta struct {
		Time  string `json:"time"`
		Level string `json:"level"`
	}
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return time.Time{}, "", false
	}
	t, err := time.Parse(logTimeLayout, meta.Time)
	if err != nil {
		return time.Time{}, meta.Level, false
	}
	return t, meta.Level, true
}

func exportHeader(now time.Time, timeDesc, level, path string, count int) string {
	var b strings.Builder
	b.WriteString("=== Bot Logs Export ===\n")
	b.WriteString("Generated: " + now.Format("2006-01-02 15:04:05") + "\n")
	b.WriteString("Time Range: " + timeDesc + "\n")
	if level != "" {
		b.WriteString("Log Level: " + level + "\n")
	}
	fmt.Fprintf(&b, "Total Lines: %d\n", count)
	b.WriteString("Source File: " + path + "\n")
	b.WriteString(strings.Repeat("=", 50) + "\n\n")
	return b.String()
}

func exportFilename(now time.Time, q logQuery) string {
	parts := []string{"logs", now.Format("20060102_150405")}
	if q.display != "" {
		parts = append(parts, q.display)
	}
	switch {
	case q.minutes > 0:
		parts = append(parts, fmt.Sprintf("%dmin", q.minutes))
	case q.hours > 0:
		parts = append(parts, fmt.Sprintf("%dhr", q.hours))
	}
	return strings.Join(parts, "_") + ".txt"
}
