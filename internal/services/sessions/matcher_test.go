package sessions

import (
	"testing"
	"time"

	"FxRollup/internal/domain/models"
)

func mustSession(t *testing.T, tz, start, end string) *Session {
	t.Helper()
	s, err := Compile(models.SessionDefinition{
		ID: 1, SymbolScope: models.WildcardScope, Name: "S", Timezone: tz,
		LocalStart: start, LocalEnd: end, Enabled: true, MinFillRatio: 0.97,
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	return s
}

func mustLoc(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("load location %s: %v", name, err)
	}
	return loc
}

func TestMatchesNormalWindowAcrossDST(t *testing.T) {
	s := mustSession(t, "Europe/London", "07:00", "17:00")
	cases := []struct {
		ts   time.Time
		want bool
	}{
		// summer, BST = UTC+1
		{time.Date(2024, 7, 1, 5, 59, 0, 0, time.UTC), false},
		{time.Date(2024, 7, 1, 6, 0, 0, 0, time.UTC), true},
		{time.Date(2024, 7, 1, 16, 0, 0, 0, time.UTC), true},
		{time.Date(2024, 7, 1, 16, 1, 0, 0, time.UTC), false},
		// winter, GMT = UTC
		{time.Date(2024, 1, 15, 6, 59, 0, 0, time.UTC), false},
		{time.Date(2024, 1, 15, 7, 0, 0, 0, time.UTC), true},
		{time.Date(2024, 1, 15, 17, 0, 0, 0, time.UTC), true},
		{time.Date(2024, 1, 15, 17, 1, 0, 0, time.UTC), false},
	}
	for _, c := range cases {
		if got := s.Matches(c.ts); got != c.want {
			t.Errorf("Matches(%s) = %v, want %v", c.ts.Format(time.RFC3339), got, c.want)
		}
	}
}

func TestMatchesWrappingWindow(t *testing.T) {
	s := mustSession(t, "America/New_York", "22:00", "02:00")
	if !s.Window.Wraps() {
		t.Fatalf("22:00-02:00 must compile to a wrapping window")
	}
	loc := mustLoc(t, "America/New_York")
	cases := []struct {
		h, m int
		want bool
	}{
		{21, 59, false},
		{22, 0, true},
		{23, 0, true},
		{1, 0, true},
		{2, 0, true},
		{2, 1, false},
		{12, 0, false},
	}
	for _, c := range cases {
		ts := time.Date(2024, 5, 14, c.h, c.m, 0, 0, loc)
		if got := s.Matches(ts); got != c.want {
			t.Errorf("%02d:%02d local: got %v, want %v", c.h, c.m, got, c.want)
		}
	}
}

func TestMatchesSingleMinuteWindow(t *testing.T) {
	s := mustSession(t, "UTC", "12:00", "12:00")
	if s.Window.Wraps() {
		t.Fatalf("equal bounds must use the normal branch")
	}
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	hits := 0
	for m := 0; m < minutesPerDay; m++ {
		if s.Matches(base.Add(time.Duration(m) * time.Minute)) {
			hits++
		}
	}
	if hits != 1 {
		t.Fatalf("single-minute window matched %d minutes, want 1", hits)
	}
	if !s.Matches(time.Date(2024, 3, 1, 12, 0, 30, 0, time.UTC)) {
		t.Fatalf("seconds within the matching minute must match")
	}
}

func TestMatchesAgreesWithLocalComparison(t *testing.T) {
	windows := [][2]string{{"07:00", "17:00"}, {"22:00", "02:00"}, {"00:00", "23:59"}, {"13:30", "13:29"}}
	loc := mustLoc(t, "Australia/Sydney")
	base := time.Date(2024, 4, 6, 12, 0, 0, 0, time.UTC) // spans the April DST end in Sydney
	for _, w := range windows {
		s := mustSession(t, "Australia/Sydney", w[0], w[1])
		start, _ := ParseTimeOfDay(w[0])
		end, _ := ParseTimeOfDay(w[1])
		for m := 0; m < 2*minutesPerDay; m += 7 {
			ts := base.Add(time.Duration(m) * time.Minute)
			l := ts.In(loc)
			local := TimeOfDay(l.Hour()*60 + l.Minute())
			want := local >= start && local <= end
			if end < start {
				want = local >= start || local <= end
			}
			if got := s.Matches(ts); got != want {
				t.Fatalf("window %v at %s: got %v, want %v", w, ts, got, want)
			}
		}
	}
}

func TestParseTimeOfDay(t *testing.T) {
	good := map[string]TimeOfDay{"00:00": 0, "07:30": 450, "23:59": 1439, " 9:05 ": 545}
	for in, want := range good {
		got, err := ParseTimeOfDay(in)
		if err != nil || got != want {
			t.Errorf("ParseTimeOfDay(%q) = %d, %v; want %d", in, got, err, want)
		}
	}
	for _, in := range []string{"", "24:00", "12:60", "1200", "ab:cd", "12:5"} {
		if _, err := ParseTimeOfDay(in); err == nil {
			t.Errorf("ParseTimeOfDay(%q) should fail", in)
		}
	}
	if s := TimeOfDay(450).String(); s != "07:30" {
		t.Errorf("String() = %q", s)
	}
}
