package usecase

import (
	"context"
	"testing"
	"time"

	"FxRollup/internal/domain/models"
	domrepo "FxRollup/internal/domain/repository"
	"FxRollup/pkg/cache"
)

func TestSnapshotReadsAreCachedUntilRefresh(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0.97)
	mc := cache.NewMemoryCache(0)
	defer mc.Close()
	r := NewSnapshotRefresher(f.registry, f.rollups, f.snapshots, f.gate, WithQueryCache(mc))
	if _, err := r.RefreshAll(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	uc := NewRollupsUseCase(f.engine, f.snapshots, mc, time.Minute, nil)
	q := RollupQuery{Symbol: "EURUSD", Resolution: domrepo.R1h, Limit: 10}

	rows, err := uc.Snapshot(ctx, q)
	if err != nil || len(rows) != 2 {
		t.Fatalf("snapshot = %d rows, %v", len(rows), err)
	}
	// Bypass the refresher so only the cache can explain a stale read.
	_ = f.snapshots.Swap(ctx, domrepo.R1h, []models.ResolutionBucket{})
	if rows, _ := uc.Snapshot(ctx, q); len(rows) != 2 {
		t.Fatalf("second read should come from cache, got %d rows", len(rows))
	}
	if _, err := r.RefreshAll(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if rows, _ := uc.Snapshot(ctx, q); len(rows) != 2 || !rows[0].BucketStart.Equal(at(10, 0)) {
		t.Fatalf("after refresh want newest first, got %+v", rows)
	}
}

func TestSnapshotRejectsUnsupportedResolution(t *testing.T) {
	f := newFixture(t, 0.97)
	uc := NewRollupsUseCase(f.engine, f.snapshots, nil, 0, nil)
	_, err := uc.Snapshot(context.Background(), RollupQuery{Symbol: "EURUSD", Resolution: domrepo.R4h})
	if _, ok := err.(*models.ConfigurationError); !ok {
		t.Fatalf("want ConfigurationError, got %v", err)
	}
}

func TestRollupsServesPlainAndSession(t *testing.T) {
	f := newFixture(t, 0.97)
	uc := NewRollupsUseCase(f.engine, f.snapshots, nil, 0, nil)
	rows, err := uc.Rollups(context.Background(), RollupQuery{
		Symbol: "EURUSD", Resolution: domrepo.R1h, Mode: domrepo.ModeSession,
	})
	if err != nil || len(rows) != 3 {
		t.Fatalf("session 1h = %d rows, %v", len(rows), err)
	}
	if rows[2].BarsObserved != 58 || rows[2].BarsExpected != 60 {
		t.Fatalf("11:00 counts = %d/%d", rows[2].BarsObserved, rows[2].BarsExpected)
	}
	if _, err := uc.Rollups(context.Background(), RollupQuery{Resolution: domrepo.R1h, Mode: domrepo.ModePlain}); err == nil {
		t.Fatal("missing symbol must be rejected")
	}
}
