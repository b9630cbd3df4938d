package contest

import (
	"encoding/json"
	"strings"
	"time"
)

// Platform is the canonical display name of a contest host.
// The zero value is not valid; unknown source keys pass through unchanged.
type Platform string

const (
	PlatformCodeforces Platform = "Codeforces"
	PlatformCodeChef   Platform = "CodeChef"
	PlatformAtCoder    Platform = "AtCoder"
	PlatformLeetCode   Platform = "LeetCode"
)

// Source API resource keys for the supported platforms.
const (
	keyCodeforces = "codeforces.com"
	keyCodeChef   = "codechef.com"
	keyAtCoder    = "atcoder.jp"
	keyLeetCode   = "leetcode.com"
)

var keyToPlatform = map[string]Platform{
	keyCodeforces: PlatformCodeforces,
	keyCodeChef:   PlatformCodeChef,
	keyAtCoder:    PlatformAtCoder,
	keyLeetCode:   PlatformLeetCode,
}

var platformToKey = map[Platform]string{
	PlatformCodeforces: keyCodeforces,
	PlatformCodeChef:   keyCodeChef,
	PlatformAtCoder:    keyAtCoder,
	PlatformLeetCode:   keyLeetCode,
}

var platformEmoji = map[Platform]string{
	PlatformCodeforces: "🔴",
	PlatformCodeChef:   "🟤",
	PlatformAtCoder:    "🟠",
	PlatformLeetCode:   "🟡",
}

// AllPlatformKeys returns the fixed fetch allow-list in stable order.
func AllPlatformKeys() []string {
	return []string{keyCodeforces, keyCodeChef, keyAtCoder, keyLeetCode}
}

// PlatformFromKey maps a source resource key to its display name.
// Unrecognized keys pass through unchanged.
func PlatformFromKey(key string) Platform {
	if p, ok := keyToPlatform[strings.ToLower(strings.TrimSpace(key))]; ok {
		return p
	}
	return Platform(strings.TrimSpace(key))
}

// Key maps a display name back to its source resource key.
// Unrecognized platforms pass through unchanged.
func (p Platform) Key() string {
	if k, ok := platformToKey[p]; ok {
		return k
	}
	return string(p)
}

// Emoji returns the marker used in embeds; unknown platforms get a
// neutral circle.
func (p Platform) Emoji() string {
	if e, ok := platformEmoji[p]; ok {
		return e
	}
	return "⚪"
}

// ParsePlatform resolves user input (display name or resource key, any
// case) to a known platform. ok is false for anything else.
func ParsePlatform(s string) (Platform, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	if p, ok := keyToPlatform[strings.ToLower(s)]; ok {
		return p, true
	}
	for p := range platformToKey {
		if strings.EqualFold(string(p), s) {
			return p, true
		}
	}
	return "", false
}

// Contest is the canonical, post-normalization record.
//
// StartTime/EndTime are absolute instants (UTC internally); the display
// timezone is applied only when rendering. UpdatedAt is stamped by the
// store on write and drives staleness.
type Contest struct {
	ID              string
	Name            string
	Platform        Platform
	StartTime       time.Time
	EndTime         time.Time
	DurationSeconds int64
	URL             string
	UpdatedAt       time.Time
}

// Status is derived at read time, never stored.
type Status string

const (
	StatusUpcoming Status = "upcoming"
	StatusRunning  Status = "running"
	StatusEnded    Status = "ended"
)

// StatusAt derives the contest state at the given instant.
func (c Contest) StatusAt(now time.Time) Status {
	switch {
	case now.Before(c.StartTime):
		return StatusUpcoming
	case now.After(c.EndTime):
		return StatusEnded
	default:
		return StatusRunning
	}
}

// RawContest is one record as returned by the source API.
// Fields not used by normalization are ignored at decode time.
type RawContest struct {
	Event    string      `json:"event"`
	Resource ResourceRef `json:"resource"`
	Start    string      `json:"start"`
	End      string      `json:"end"`
	Duration float64     `json:"duration"`
	Href     string      `json:"href"`
}

// ResourceRef tolerates both source API shapes: a plain string
// ("codeforces.com") and an object ({"name": "codeforces.com"}).
type ResourceRef struct {
	Name string
}

func (r *ResourceRef) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		r.Name = s
		return nil
	}
	var obj struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	r.Name = obj.Name
	return nil
}

func (r ResourceRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Name)
}
