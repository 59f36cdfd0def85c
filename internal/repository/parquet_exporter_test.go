package repository

import (
	"context"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"

	"FxRollup/internal/domain/models"
	domrepo "FxRollup/internal/domain/repository"
)

func TestParquetExportRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySnapshotStore()
	for _, res := range domrepo.SnapshotResolutions() {
		if _, err := store.EnsureSnapshot(ctx, res); err != nil {
			t.Fatal(err)
		}
	}
	t0 := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	rows := []models.ResolutionBucket{
		{Symbol: "EURUSD", SessionID: 1, SessionName: "LDN", Resolution: "1h", BucketStart: t0.Add(time.Hour),
			Open: 1.1, High: 1.2, Low: 1.0, Close: 1.15, Volume: 60, BarsObserved: 60, BarsExpected: 60},
		{Symbol: "EURUSD", SessionID: 1, SessionName: "LDN", Resolution: "1h", BucketStart: t0,
			Open: 1.0, High: 1.1, Low: 0.9, Close: 1.05, Volume: 59, BarsObserved: 59, BarsExpected: 60},
	}
	if err := store.Populate(ctx, domrepo.R1h, rows); err != nil {
		t.Fatal(err)
	}

	paths, err := NewParquetExporter(store).Export(ctx, t.TempDir())
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(paths) != 3 {
		t.Fatalf("paths = %v", paths)
	}
	got, err := parquet.ReadFile[SnapshotRow](paths[2])
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(got) != 2 || got[0].BucketStart != t0.UnixMilli() || got[0].BarsObserved != 59 || got[1].Close != 1.15 {
		t.Fatalf("unexpected rows %+v", got)
	}
	empty, err := parquet.ReadFile[SnapshotRow](paths[0])
	if err != nil || len(empty) != 0 {
		t.Fatalf("5m export = %v, %v", empty, err)
	}
}
