package contest

import (
	"fmt"
	"time"
)

// All user-facing times render in IST regardless of the host timezone.
var displayZone = func() *time.Location {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		return time.FixedZone("IST", 5*3600+30*60)
	}
	return loc
}()

// DisplayZone returns the zone used for rendering and for day windows.
func DisplayZone() *time.Location { return displayZone }

// FormatStart renders an absolute instant for embeds,
// e.g. "January 02, 2026 at 07:30 PM IST".
func FormatStart(t time.Time) string {
	return t.In(displayZone).Format("January 02, 2006 at 03:04 PM") + " IST"
}

// FormatDuration renders a second count compactly: "2h 30m", "2h",
// "45m", "< 1m". Zero or negative means the source did not say.
func FormatDuration(seconds int64) string {
	if seconds <= 0 {
		return "Unknown"
	}
	if seconds < 60 {
		return "< 1m"
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	switch {
	case h > 0 && m > 0:
		return fmt.Sprintf("%dh %dm", h, m)
	case h > 0:
		return fmt.Sprintf("%dh", h)
	default:
		return fmt.Sprintf("%dm", m)
	}
}

// DayWindow returns the half-open interval [start, end) of the day
// offset days from now, evaluated in the display zone. Offset 0 is
// today, 1 is tomorrow.
func DayWindow(now time.Time, offset int) (time.Time, time.Time) {
	local := now.In(displayZone)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, displayZone)
	from := midnight.AddDate(0, 0, offset)
	return from, from.AddDate(0, 0, 1)
}
