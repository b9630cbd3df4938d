package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

type SpecKind int

const (
	SpecCron SpecKind = iota
	SpecInterval
)

// ParsedSchedule is the result of interpreting a schedule string.
// Source records which syntax matched ("cron", "duration" or "hhmm").
type ParsedSchedule struct {
	Kind   SpecKind
	Cron   string
	Every  time.Duration
	Source string
}

var specParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule interprets the schedule syntaxes described in the
// package doc. Prefixes force a syntax; otherwise cron is tried first,
// then duration, then HH:MM-as-interval.
func ParseSchedule(raw string) (ParsedSchedule, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ParsedSchedule{}, fmt.Errorf("empty schedule")
	}

	if rest, ok := strings.CutPrefix(s, "cron:"); ok {
		return parseCron(strings.TrimSpace(rest))
	}
	if rest, ok := strings.CutPrefix(s, "interval:"); ok {
		return parseInterval(strings.TrimSpace(rest))
	}
	if rest, ok := strings.CutPrefix(s, "every:"); ok {
		return parseInterval(strings.TrimSpace(rest))
	}

	if ps, err := parseCron(s); err == nil {
		return ps, nil
	}
	if ps, err := parseInterval(s); err == nil {
		return ps, nil
	}
	return ParsedSchedule{}, fmt.Errorf("unrecognized schedule %q", raw)
}

func parseCron(s string) (ParsedSchedule, error) {
	if _, err := specParser.Parse(s); err != nil {
		return ParsedSchedule{}, fmt.Errorf("invalid cron spec %q: %w", s, err)
	}
	return ParsedSchedule{Kind: SpecCron, Cron: s, Source: "cron"}, nil
}

func parseInterval(s string) (ParsedSchedule, error) {
	if d, err := time.ParseDuration(s); err == nil {
		if d <= 0 {
			return ParsedSchedule{}, fmt.Errorf("interval must be positive, got %q", s)
		}
		return ParsedSchedule{Kind: SpecInterval, Every: d, Source: "duration"}, nil
	}
	if h, m, err := parseHHMM(s); err == nil {
		d := time.Duration(h)*time.Hour + time.Duration(m)*time.Minute
		if d <= 0 {
			return ParsedSchedule{}, fmt.Errorf("interval must be positive, got %q", s)
		}
		return ParsedSchedule{Kind: SpecInterval, Every: d, Source: "hhmm"}, nil
	}
	return ParsedSchedule{}, fmt.Errorf("invalid interval %q", s)
}

func parseHHMM(s string) (hour int, minute int, err error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}
