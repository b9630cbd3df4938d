package contest

import (
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	logx "loungebot/pkg/logx"
)

// Layouts accepted for source timestamps. The source usually sends
// zoneless UTC; RFC3339 variants show up on some mirrors.
var sourceTimeLayouts = []string{
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02 15:04:05",
}

func parseSourceTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range sourceTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}

// StableID derives a deterministic contest identifier from the source
// resource key and the event name. Re-fetching the same contest always
// yields the same ID, so cache rebuilds keep identities stable.
func StableID(resourceKey, name string) string {
	h := fnv.New64a()
	h.Write([]byte(resourceKey))
	h.Write([]byte{0})
	h.Write([]byte(name))
	return fmt.Sprintf("%s_%016x", resourceKey, h.Sum64())
}

// Normalize converts one raw source record into the canonical form.
// It is pure: no I/O, no clock reads. Records that cannot be made
// canonical are rejected with a descriptive error.
func Normalize(raw RawContest) (Contest, error) {
	name := strings.TrimSpace(raw.Event)
	if name == "" {
		return Contest{}, fmt.Errorf("empty event name")
	}
	key := strings.TrimSpace(raw.Resource.Name)
	if key == "" {
		return Contest{}, fmt.Errorf("empty resource")
	}

	start, err := parseSourceTime(raw.Start)
	if err != nil {
		return Contest{}, fmt.Errorf("start: %v", err)
	}
	if raw.Duration < 0 {
		return Contest{}, fmt.Errorf("negative duration %v", raw.Duration)
	}
	dur := int64(raw.Duration)

	end := start.Add(time.Duration(dur) * time.Second)
	if e, err := parseSourceTime(raw.End); err == nil && dur == 0 && e.After(start) {
		end = e
		dur = int64(e.Sub(start) / time.Second)
	}

	return Contest{
		ID:              StableID(key, name),
		Name:            name,
		Platform:        PlatformFromKey(key),
		StartTime:       start,
		EndTime:         end,
		DurationSeconds: dur,
		URL:             strings.TrimSpace(raw.Href),
	}, nil
}

// NormalizeBatch converts a fetched page record by record. Malformed
// records are skipped and logged; one bad row never poisons the batch.
func NormalizeBatch(raws []RawContest, log logx.Logger) []Contest {
	out := make([]Contest, 0, len(raws))
	for _, raw := range raws {
		c, err := Normalize(raw)
		if err != nil {
			log.Warn("skipping malformed contest record",
				logx.String("event", raw.Event),
				logx.String("resource", raw.Resource.Name),
				logx.Err(err),
			)
			continue
		}
		out = append(out, c)
	}
	return out
}
