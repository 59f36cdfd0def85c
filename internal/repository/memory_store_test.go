package repository

import (
	"context"
	"testing"
	"time"

	"FxRollup/internal/domain/models"
	"FxRollup/internal/domain/repository"
)

var day = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

func TestMemoryBarAppendRejectsWholeBatch(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryBarStore()
	batch := []models.Bar{
		{Symbol: "EURUSD", Timestamp: day.Add(time.Minute), Close: 1},
		{Symbol: "", Timestamp: day.Add(2 * time.Minute), Close: 2},
	}
	if err := s.Append(ctx, batch); err == nil {
		t.Fatalf("expected error for bar without symbol")
	}
	got, err := s.Scan(ctx, "EURUSD", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("rejected batch stored %d bars", len(got))
	}
}

func TestMemoryBarAppendTruncatesToMinute(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryBarStore()
	ts := day.Add(9*time.Hour + 30*time.Second)
	if err := s.Append(ctx, []models.Bar{{Symbol: "EURUSD", Timestamp: ts, Close: 1}}); err != nil {
		t.Fatalf("append: %v", err)
	}
	// same minute, different seconds: already stored
	if err := s.Append(ctx, []models.Bar{{Symbol: "EURUSD", Timestamp: ts.Add(15 * time.Second), Close: 2}}); err != nil {
		t.Fatalf("append: %v", err)
	}
	got, _ := s.Scan(ctx, "EURUSD", time.Time{}, time.Time{})
	if len(got) != 1 {
		t.Fatalf("got %d bars, want 1", len(got))
	}
	if want := day.Add(9 * time.Hour); !got[0].Timestamp.Equal(want) || got[0].Close != 1 {
		t.Fatalf("bar = %+v, want ts %s close 1", got[0], want)
	}
}

func TestMemoryRollupReplaceDropsStaleRange(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryRollupStore()
	bucket := func(sym string, h int) models.ResolutionBucket {
		return models.ResolutionBucket{Symbol: sym, SessionID: 1, SessionName: "LDN",
			Resolution: "1h", BucketStart: day.Add(time.Duration(h) * time.Hour)}
	}
	seed := []models.ResolutionBucket{
		bucket("EURUSD", 7), bucket("EURUSD", 10), bucket("EURUSD", 14), bucket("EURUSD", 20),
		bucket("GBPUSD", 14),
	}
	if err := s.Upsert(ctx, repository.R1h, repository.ModeSession, seed); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	err := s.Replace(ctx, repository.R1h, repository.ModeSession, "EURUSD", nil,
		day.Add(8*time.Hour), day.Add(20*time.Hour), []models.ResolutionBucket{bucket("EURUSD", 11)})
	if err != nil {
		t.Fatalf("replace: %v", err)
	}

	eur, _ := s.List(ctx, repository.R1h, repository.ModeSession, repository.BucketFilter{Symbol: "EURUSD"})
	var hours []int
	for _, b := range eur {
		hours = append(hours, b.BucketStart.Hour())
	}
	if len(hours) != 3 || hours[0] != 7 || hours[1] != 11 || hours[2] != 20 {
		t.Fatalf("EURUSD hours = %v, want [7 11 20]", hours)
	}
	gbp, _ := s.List(ctx, repository.R1h, repository.ModeSession, repository.BucketFilter{Symbol: "GBPUSD"})
	if len(gbp) != 1 {
		t.Fatalf("other symbols must be untouched, got %d", len(gbp))
	}
}

func TestMemoryRollupReplaceKeepsOtherSessions(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryRollupStore()
	start := day.Add(9 * time.Hour)
	seed := []models.ResolutionBucket{
		{Symbol: "EURUSD", SessionID: 1, SessionName: "LDN", BucketStart: start},
		{Symbol: "EURUSD", SessionID: 2, SessionName: "OLD", BucketStart: start},
	}
	_ = s.Upsert(ctx, repository.R1h, repository.ModeSession, seed)

	if err := s.Replace(ctx, repository.R1h, repository.ModeSession, "EURUSD", []int64{1},
		day, day.Add(24*time.Hour), nil); err != nil {
		t.Fatalf("replace: %v", err)
	}
	rows, _ := s.List(ctx, repository.R1h, repository.ModeSession, repository.BucketFilter{})
	if len(rows) != 1 || rows[0].SessionID != 2 {
		t.Fatalf("only session 1 is replaced, got %+v", rows)
	}
}
