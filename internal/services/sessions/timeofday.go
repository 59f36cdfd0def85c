package sessions

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeOfDay is a wall-clock minute of the day in [0, 1440).
type TimeOfDay int

const minutesPerDay = 24 * 60

// ParseTimeOfDay parses "HH:MM" (24h clock).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("want HH:MM, got %q", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("bad hour in %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 || len(mm) != 2 {
		return 0, fmt.Errorf("bad minute in %q", s)
	}
	return TimeOfDay(h*60 + m), nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// LocalTimeOfDay projects an instant into loc and returns its minute of day.
// Seconds are truncated.
func LocalTimeOfDay(ts time.Time, loc *time.Location) TimeOfDay {
	l := ts.In(loc)
	return TimeOfDay(l.Hour()*60 + l.Minute())
}
