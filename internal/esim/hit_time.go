package esim

import (
	"fmt"
	"strings"
	"time"
)

// Layouts seen in the "time" field of apiFights.html. The millisecond
// variants also cover the "HH:MM:SS:mmm" spelling once its last colon has
// been turned into a period.
const (
	hitTimeLayout           = "2006-01-02 15:04:05"
	hitTimeMillisLayout     = "2006-01-02 15:04:05.999"
	hitTimeDayFirstLayout   = "02-01-2006 15:04:05"
	hitTimeDayFirstMsLayout = "02-01-2006 15:04:05.999"
)

// ParseHitTime parses a hit timestamp in any of the four upstream formats.
// Times are server times and are returned in UTC.
func ParseHitTime(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)

	// "10:15:30:123" carries milliseconds after a fourth colon
	if strings.Count(s, ":") == 3 {
		i := strings.LastIndex(s, ":")
		s = s[:i] + "." + s[i+1:]
	}

	dayFirst := len(s) > 2 && s[2] == '-'
	millis := strings.Contains(s, ".")

	var layout string
	switch {
	case dayFirst && millis:
		layout = hitTimeDayFirstMsLayout
	case dayFirst:
		layout = hitTimeDayFirstLayout
	case millis:
		layout = hitTimeMillisLayout
	default:
		layout = hitTimeLayout
	}

	t, err := time.ParseInLocation(layout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognized hit time %q: %w", raw, err)
	}
	return t, nil
}
