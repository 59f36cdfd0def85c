package sessions

import (
	"time"

	"FxRollup/internal/service/cache"
)

// ExpectedMinutes counts how many of the 60 minutes starting at hourStart
// fall inside the session window in local time. Each minute is projected on
// its own so hours crossing a DST change count only minutes that exist.
func ExpectedMinutes(hourStart time.Time, s *Session) int {
	start := hourStart.Truncate(time.Minute)
	n := 0
	for i := 0; i < 60; i++ {
		if s.Matches(start.Add(time.Duration(i) * time.Minute)) {
			n++
		}
	}
	return n
}

type expectedKey struct {
	hour  int64
	tz    string
	start TimeOfDay
	end   TimeOfDay
}

// ExpectedCache memoises ExpectedMinutes. Keys carry every input so edited
// definitions never read stale counts.
type ExpectedCache struct {
	c *cache.TTLCache[expectedKey, int]
}

func NewExpectedCache(maxSize int) *ExpectedCache {
	return &ExpectedCache{c: cache.NewTTLCache[expectedKey, int](maxSize)}
}

// Expected returns ExpectedMinutes(hourStart, s). A nil cache computes directly.
func (c *ExpectedCache) Expected(hourStart time.Time, s *Session) int {
	if c == nil {
		return ExpectedMinutes(hourStart, s)
	}
	start, end := s.Window.Bounds()
	k := expectedKey{hour: hourStart.Unix(), tz: s.Location.String(), start: start, end: end}
	if v, ok := c.c.Get(k); ok {
		return v
	}
	v := ExpectedMinutes(hourStart, s)
	c.c.Set(k, v, 0)
	return v
}
