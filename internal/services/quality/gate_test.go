package quality

import (
	"context"
	"testing"
	"time"

	"FxRollup/internal/domain/models"
	"FxRollup/internal/domain/repository"
	memrepo "FxRollup/internal/repository"
	"FxRollup/internal/services/sessions"
)

func ldn(ratio float64, minAbs int) models.SessionDefinition {
	return models.SessionDefinition{
		ID: 1, SymbolScope: "*", Name: "LDN", Timezone: "Europe/London",
		LocalStart: "07:00", LocalEnd: "17:00", Enabled: true,
		MinFillRatio: ratio, MinBarsAbs: minAbs,
	}
}

func hourly(observed, expected int) models.ResolutionBucket {
	return models.ResolutionBucket{
		Symbol: "EURUSD", SessionID: 1, SessionName: "LDN", Resolution: "1h",
		BucketStart:  time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC),
		BarsObserved: observed, BarsExpected: expected,
	}
}

func TestThreshold(t *testing.T) {
	cases := []struct {
		expected int
		ratio    float64
		minAbs   int
		want     int
	}{
		{60, 0.97, 0, 59}, // ceil(58.2)
		{60, 0.96, 0, 58}, // ceil(57.6)
		{60, 0.95, 0, 57}, // exact product must not round up
		{60, 1, 0, 60},
		{60, 0.5, 45, 45},
		{0, 0.97, 0, 0},
		{0, 0.97, 3, 3},
		{1, 0.01, 0, 1},
	}
	for _, c := range cases {
		if got := Threshold(c.expected, c.ratio, c.minAbs); got != c.want {
			t.Errorf("Threshold(%d, %v, %d) = %d, want %d", c.expected, c.ratio, c.minAbs, got, c.want)
		}
	}
}

func TestEvaluateLondonBoundary(t *testing.T) {
	snap, _ := sessions.NewSnapshot(ldn(0.97, 0))
	pass, err := Evaluate(snap, hourly(59, 60))
	if err != nil || !pass.OK || pass.Threshold != 59 {
		t.Fatalf("59/60 at 0.97 must pass: %+v %v", pass, err)
	}
	fail, _ := Evaluate(snap, hourly(58, 60))
	if fail.OK {
		t.Fatalf("58/60 at 0.97 must fail: %+v", fail)
	}

	snap96, _ := sessions.NewSnapshot(ldn(0.96, 0))
	if rec, _ := Evaluate(snap96, hourly(58, 60)); !rec.OK || rec.Threshold != 58 {
		t.Fatalf("58/60 at 0.96 must pass: %+v", rec)
	}
	if rec, _ := Evaluate(snap96, hourly(57, 60)); rec.OK {
		t.Fatalf("57/60 at 0.96 must fail: %+v", rec)
	}
}

func TestEvaluateGapIsNotFailure(t *testing.T) {
	d := ldn(0.97, 0)
	d.Enabled = false
	snap, _ := sessions.NewSnapshot(d)
	_, err := Evaluate(snap, hourly(60, 60))
	if !models.IsQualityGateGap(err) {
		t.Fatalf("disabled session must produce a gap, got %v", err)
	}

	empty, _ := sessions.NewSnapshot()
	if _, err := Evaluate(empty, hourly(60, 60)); !models.IsQualityGateGap(err) {
		t.Fatalf("unknown session must produce a gap, got %v", err)
	}
}

func TestThresholdMonotoneInRatio(t *testing.T) {
	buckets := make([]models.ResolutionBucket, 0, 61)
	for obs := 0; obs <= 60; obs++ {
		b := hourly(obs, 60)
		b.BucketStart = b.BucketStart.Add(time.Duration(obs) * time.Hour)
		buckets = append(buckets, b)
	}
	prev := len(buckets) + 1
	for ratio := 0.05; ratio <= 1.0001; ratio += 0.05 {
		snap, _ := sessions.NewSnapshot(ldn(min(ratio, 1), 0))
		records, gaps := (*Gate)(nil).EvaluateAll(snap, buckets)
		if gaps != 0 {
			t.Fatalf("unexpected gaps: %d", gaps)
		}
		ok := len(PassingHours(records))
		if ok > prev {
			t.Fatalf("ratio %.2f passes %d hours, more than %d at a lower ratio", ratio, ok, prev)
		}
		prev = ok
	}
}

func TestEvaluateHourReadsHourlyBuckets(t *testing.T) {
	ctx := context.Background()
	store := memrepo.NewMemoryRollupStore()
	_ = store.Upsert(ctx, repository.R1h, repository.ModeSession, []models.ResolutionBucket{hourly(59, 60)})
	g := NewGate(store, nil)
	snap, _ := sessions.NewSnapshot(ldn(0.97, 0))

	recs, err := g.EvaluateHour(ctx, snap, "EURUSD", "LDN", time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC))
	if err != nil || len(recs) != 1 || !recs[0].OK {
		t.Fatalf("unexpected records %+v %v", recs, err)
	}
	if _, err := g.EvaluateHour(ctx, snap, "EURUSD", "LDN", time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)); !models.IsQualityGateGap(err) {
		t.Fatalf("hour without a bucket must be a gap, got %v", err)
	}
	if _, err := g.EvaluateHour(ctx, snap, "EURUSD", "NY", time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)); !models.IsQualityGateGap(err) {
		t.Fatalf("unknown session name must be a gap, got %v", err)
	}
}

func TestFilterPassing(t *testing.T) {
	snap, _ := sessions.NewSnapshot(ldn(0.97, 0))
	pass := hourly(60, 60)
	fail := hourly(10, 60)
	fail.BucketStart = fail.BucketStart.Add(time.Hour)
	records, _ := (*Gate)(nil).EvaluateAll(snap, []models.ResolutionBucket{pass, fail})
	passing := PassingHours(records)

	var fine []models.ResolutionBucket
	for _, h := range []time.Time{pass.BucketStart, fail.BucketStart} {
		for m := 0; m < 60; m += 5 {
			fine = append(fine, models.ResolutionBucket{
				Symbol: "EURUSD", SessionID: 1, SessionName: "LDN", Resolution: "5m",
				BucketStart: h.Add(time.Duration(m) * time.Minute),
			})
		}
	}
	kept := FilterPassing(fine, passing)
	if len(kept) != 12 {
		t.Fatalf("want the 12 buckets of the passing hour, got %d", len(kept))
	}
	for _, b := range kept {
		if b.HourStart() != pass.BucketStart {
			t.Fatalf("bucket %s belongs to a failing hour", b.BucketStart)
		}
	}
}
