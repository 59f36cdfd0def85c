package usecase

import (
	"context"
	"strconv"
	"testing"
	"time"

	"FxRollup/internal/domain/models"
	memrepo "FxRollup/internal/repository"
	"FxRollup/internal/services/quality"
	"FxRollup/internal/services/rollup"
	"FxRollup/internal/services/sessions"
)

// monday is 2024-01-15 (GMT, so London local time equals UTC).
var monday = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	return monday.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

type fixture struct {
	bars      *memrepo.MemoryBarStore
	rollups   *memrepo.MemoryRollupStore
	snapshots *memrepo.MemorySnapshotStore
	registry  *sessions.Registry
	engine    *rollup.Engine
	gate      *quality.Gate
	now       time.Time
}

func londonDef(ratio float64) models.SessionDefinition {
	return models.SessionDefinition{
		SymbolScope: "*", Name: "LDN", Timezone: "Europe/London",
		LocalStart: "07:00", LocalEnd: "17:00", Enabled: true, MinFillRatio: ratio,
	}
}

// hourBars returns one bar per minute of the hour except the skipped minutes.
func hourBars(symbol string, hour time.Time, skip ...int) []models.Bar {
	skipped := map[int]bool{}
	for _, m := range skip {
		skipped[m] = true
	}
	var out []models.Bar
	for m := 0; m < 60; m++ {
		if skipped[m] {
			continue
		}
		p := 1.1 + float64(m)*0.0001
		out = append(out, models.Bar{
			Symbol: symbol, Timestamp: hour.Add(time.Duration(m) * time.Minute),
			Open: p, High: p + 0.0002, Low: p - 0.0002, Close: p + 0.0001, Volume: 1,
		})
	}
	return out
}

// newFixture loads EURUSD with a full 09:00 hour, one missing minute at
// 10:30 and two missing minutes at the start of 11:00, then materialises
// every rollup as of 13:00.
func newFixture(t *testing.T, ratio float64) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{
		bars:      memrepo.NewMemoryBarStore(),
		rollups:   memrepo.NewMemoryRollupStore(),
		snapshots: memrepo.NewMemorySnapshotStore(),
		registry:  sessions.NewRegistry(nil, nil),
		now:       at(13, 0),
	}
	if _, err := f.registry.Upsert(ctx, londonDef(ratio)); err != nil {
		t.Fatalf("upsert session: %v", err)
	}
	var bars []models.Bar
	bars = append(bars, hourBars("EURUSD", at(9, 0))...)
	bars = append(bars, hourBars("EURUSD", at(10, 0), 30)...)
	bars = append(bars, hourBars("EURUSD", at(11, 0), 0, 1)...)
	if err := f.bars.Append(ctx, bars); err != nil {
		t.Fatalf("append bars: %v", err)
	}
	f.engine = newEngine(f)
	if err := f.engine.RefreshAll(ctx, f.now); err != nil {
		t.Fatalf("refresh rollups: %v", err)
	}
	f.gate = quality.NewGate(f.rollups, nil)
	return f
}

func newEngine(f *fixture) *rollup.Engine {
	return rollup.NewEngine(f.bars, f.rollups, f.registry, rollup.WithClock(func() time.Time { return f.now }))
}

func itoa(v int64) string { return strconv.FormatInt(v, 10) }
