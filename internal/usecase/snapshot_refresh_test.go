package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"FxRollup/internal/domain/models"
	domrepo "FxRollup/internal/domain/repository"
	"FxRollup/internal/services/quality"
	"FxRollup/pkg/cache"
)

type capturePublisher struct {
	mu      sync.Mutex
	reports []*models.RefreshReport
}

func (p *capturePublisher) PublishRefresh(_ context.Context, r *models.RefreshReport) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reports = append(p.reports, r)
	return nil
}

// failingSnapshots fails writes for one resolution while armed.
type failingSnapshots struct {
	domrepo.SnapshotStore
	res   domrepo.Resolution
	armed bool
}

func (s *failingSnapshots) Swap(ctx context.Context, res domrepo.Resolution, rows []models.ResolutionBucket) error {
	if s.armed && res == s.res {
		return errors.New("disk full")
	}
	return s.SnapshotStore.Swap(ctx, res, rows)
}

// blockingRollups holds hourly reads until released.
type blockingRollups struct {
	domrepo.RollupStore
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *blockingRollups) List(ctx context.Context, res domrepo.Resolution, mode domrepo.Mode, f domrepo.BucketFilter) ([]models.ResolutionBucket, error) {
	if res == domrepo.R1h {
		s.once.Do(func() { close(s.entered) })
		<-s.release
	}
	return s.RollupStore.List(ctx, res, mode, f)
}

func readAll(t *testing.T, store domrepo.SnapshotStore) map[domrepo.Resolution][]models.ResolutionBucket {
	t.Helper()
	out := map[domrepo.Resolution][]models.ResolutionBucket{}
	for _, res := range domrepo.SnapshotResolutions() {
		rows, err := store.Read(context.Background(), res, domrepo.BucketFilter{})
		if err != nil {
			t.Fatalf("read %s: %v", res, err)
		}
		out[res] = rows
	}
	return out
}

func TestRefreshAllFiltersFailingHours(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0.97)
	pub := &capturePublisher{}
	r := NewSnapshotRefresher(f.registry, f.rollups, f.snapshots, f.gate, WithPublisher(pub))

	report, err := r.RefreshAll(ctx)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if report.Skipped || len(report.Results) != 3 || report.RunID == "" {
		t.Fatalf("unexpected report %+v", report)
	}
	for _, res := range report.Results {
		if !res.FirstPopulation {
			t.Fatalf("%s: first run must populate", res.Resolution)
		}
	}
	for _, res := range domrepo.SnapshotResolutions() {
		if !f.snapshots.IsIndexed(res) {
			t.Fatalf("%s: index not ensured", res)
		}
	}

	// 09:00 (60/60) and 10:00 (59/60) pass at threshold 59; 11:00 (58/60) fails.
	snap := readAll(t, f.snapshots)
	if n := len(snap[domrepo.R5m]); n != 24 {
		t.Fatalf("5m snapshot rows = %d, want 24", n)
	}
	if n := len(snap[domrepo.R15m]); n != 8 {
		t.Fatalf("15m snapshot rows = %d, want 8", n)
	}
	if n := len(snap[domrepo.R1h]); n != 2 {
		t.Fatalf("1h snapshot rows = %d, want 2", n)
	}
	for _, b := range snap[domrepo.R5m] {
		if b.HourStart().Equal(at(11, 0)) {
			t.Fatalf("failing hour leaked into snapshot: %+v", b)
		}
	}
	raw, _ := f.rollups.List(ctx, domrepo.R5m, domrepo.ModeSession, domrepo.BucketFilter{From: at(11, 0), To: at(12, 0)})
	if len(raw) != 12 {
		t.Fatalf("unfiltered rollup must keep the failing hour, got %d rows", len(raw))
	}
	if len(pub.reports) != 1 || pub.reports[0].RunID != report.RunID {
		t.Fatalf("report not published: %+v", pub.reports)
	}
}

func TestRefreshAllThresholdBoundary(t *testing.T) {
	// At 0.96 the threshold is 58, so 11:00 passes too.
	f := newFixture(t, 0.96)
	r := NewSnapshotRefresher(f.registry, f.rollups, f.snapshots, f.gate)
	if _, err := r.RefreshAll(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if n := len(readAll(t, f.snapshots)[domrepo.R1h]); n != 3 {
		t.Fatalf("1h snapshot rows = %d, want 3", n)
	}
}

func TestRefreshAllIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0.97)
	r := NewSnapshotRefresher(f.registry, f.rollups, f.snapshots, f.gate)
	if _, err := r.RefreshAll(ctx); err != nil {
		t.Fatalf("first: %v", err)
	}
	first, _ := json.Marshal(readAll(t, f.snapshots))

	report, err := r.RefreshAll(ctx)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	for _, res := range report.Results {
		if res.FirstPopulation {
			t.Fatalf("%s: second run must swap, not populate", res.Resolution)
		}
	}
	second, _ := json.Marshal(readAll(t, f.snapshots))
	if string(first) != string(second) {
		t.Fatal("snapshot contents changed without new bars")
	}
}

func TestSnapshotRowsHavePassingRecords(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0.97)
	r := NewSnapshotRefresher(f.registry, f.rollups, f.snapshots, f.gate)
	if _, err := r.RefreshAll(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	records, _, err := f.gate.Records(ctx, f.registry.Snapshot(), domrepo.BucketFilter{})
	if err != nil {
		t.Fatalf("records: %v", err)
	}
	passing := quality.PassingHours(records)
	for res, rows := range readAll(t, f.snapshots) {
		for _, b := range rows {
			if _, ok := passing[quality.KeyOf(b)]; !ok {
				t.Fatalf("%s row %s has no passing record", res, b.BucketStart)
			}
		}
	}
}

func TestRefreshAllIsolatesFailures(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0.97)
	store := &failingSnapshots{SnapshotStore: f.snapshots, res: domrepo.R15m}
	r := NewSnapshotRefresher(f.registry, f.rollups, store, f.gate)
	if _, err := r.RefreshAll(ctx); err != nil {
		t.Fatalf("first: %v", err)
	}
	before := readAll(t, f.snapshots)[domrepo.R15m]

	// New full hour at 12:00 becomes eligible once rollups catch up.
	_ = f.bars.Append(ctx, hourBars("EURUSD", at(12, 0)))
	f.now = at(14, 0)
	if err := f.engine.RefreshAll(ctx, f.now); err != nil {
		t.Fatalf("rollups: %v", err)
	}
	store.armed = true
	report, err := r.RefreshAll(ctx)
	if err == nil {
		t.Fatal("want an error for the failed resolution")
	}
	var agg *models.AggregationFailure
	if !errors.As(err, &agg) || agg.Resolution != "15m" {
		t.Fatalf("want AggregationFailure for 15m, got %v", err)
	}
	if failed := report.Failed(); len(failed) != 1 || failed[0] != "15m" {
		t.Fatalf("failed = %v", failed)
	}
	after := readAll(t, f.snapshots)
	if len(after[domrepo.R15m]) != len(before) {
		t.Fatalf("failed snapshot lost its last good content: %d -> %d", len(before), len(after[domrepo.R15m]))
	}
	if n := len(after[domrepo.R1h]); n != 3 {
		t.Fatalf("1h snapshot must include 12:00 despite the 15m failure, got %d", n)
	}
}

func TestConcurrentRefreshIsSkipped(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0.97)
	blocking := &blockingRollups{RollupStore: f.rollups, entered: make(chan struct{}), release: make(chan struct{})}
	r := NewSnapshotRefresher(f.registry, blocking, f.snapshots, quality.NewGate(blocking, nil))

	done := make(chan error, 1)
	go func() {
		_, err := r.RefreshAll(ctx)
		done <- err
	}()
	<-blocking.entered

	report, err := r.RefreshAll(ctx)
	if err != nil || !report.Skipped {
		t.Fatalf("overlapping call must be skipped: %+v %v", report, err)
	}
	close(blocking.release)
	if err := <-done; err != nil {
		t.Fatalf("first call: %v", err)
	}
	if report, _ := r.RefreshAll(ctx); report.Skipped {
		t.Fatal("call after completion must run")
	}
}

func TestRefreshHonoursDistributedLockAndInvalidatesCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0.97)
	mc := cache.NewMemoryCache(0)
	defer mc.Close()
	r := NewSnapshotRefresher(f.registry, f.rollups, f.snapshots, f.gate,
		WithLocker(mc, time.Minute), WithQueryCache(mc))

	if ok, _ := mc.TryLock(ctx, refreshLockKey, "other-instance", time.Minute); !ok {
		t.Fatal("could not pre-lock")
	}
	if report, err := r.RefreshAll(ctx); err != nil || !report.Skipped {
		t.Fatalf("held lock must skip: %+v %v", report, err)
	}
	if ok, _ := mc.Exists(ctx, refreshLockKey); !ok {
		t.Fatal("skipped run released a lock it did not hold")
	}
	_ = mc.Unlock(ctx, refreshLockKey, "other-instance")

	_ = mc.Set(ctx, snapshotCachePrefix(domrepo.R5m)+"stale", "x", time.Minute)
	_ = mc.Set(ctx, "other", "x", time.Minute)
	if _, err := r.RefreshAll(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if ok, _ := mc.Exists(ctx, snapshotCachePrefix(domrepo.R5m)+"stale"); ok {
		t.Fatal("snapshot cache not invalidated")
	}
	if ok, _ := mc.Exists(ctx, "other"); !ok {
		t.Fatal("unrelated key removed")
	}
	if ok, _ := mc.Exists(ctx, refreshLockKey); ok {
		t.Fatal("lock not released")
	}
}

// stallingRollups blocks hourly reads until the caller's context ends.
type stallingRollups struct {
	domrepo.RollupStore
}

func (s stallingRollups) List(ctx context.Context, res domrepo.Resolution, mode domrepo.Mode, f domrepo.BucketFilter) ([]models.ResolutionBucket, error) {
	if res == domrepo.R1h {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.RollupStore.List(ctx, res, mode, f)
}

func TestRefreshRunIsBoundedByLockTTL(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0.97)
	mc := cache.NewMemoryCache(0)
	defer mc.Close()
	slow := stallingRollups{RollupStore: f.rollups}
	r := NewSnapshotRefresher(f.registry, slow, f.snapshots, quality.NewGate(slow, nil),
		WithLocker(mc, 50*time.Millisecond))

	done := make(chan error, 1)
	go func() {
		_, err := r.RefreshAll(ctx)
		done <- err
	}()
	select {
	case err := <-done:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("err = %v, want deadline exceeded", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("refresh outlived its lock")
	}

	// A successor that took the expired lock keeps it.
	if ok, _ := mc.TryLock(ctx, refreshLockKey, "successor", time.Minute); !ok {
		t.Fatal("lock not free after the bounded run")
	}
	if _, err := r.RefreshAll(ctx); err != nil {
		t.Fatalf("skipped run: %v", err)
	}
	var holder string
	if err := mc.Get(ctx, refreshLockKey, &holder); err != nil || holder != "successor" {
		t.Fatalf("lock holder = %q, %v", holder, err)
	}
}

// gatedSwaps holds the swap of one resolution until released.
type gatedSwaps struct {
	domrepo.SnapshotStore
	res     domrepo.Resolution
	entered chan struct{}
	release chan struct{}
}

func (s *gatedSwaps) Swap(ctx context.Context, res domrepo.Resolution, rows []models.ResolutionBucket) error {
	if res == s.res {
		close(s.entered)
		<-s.release
	}
	return s.SnapshotStore.Swap(ctx, res, rows)
}

func readWithin(t *testing.T, store domrepo.SnapshotStore, res domrepo.Resolution) []models.ResolutionBucket {
	t.Helper()
	type result struct {
		rows []models.ResolutionBucket
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		rows, err := store.Read(context.Background(), res, domrepo.BucketFilter{})
		ch <- result{rows, err}
	}()
	select {
	case r := <-ch:
		if r.err != nil {
			t.Fatalf("read %s: %v", res, r.err)
		}
		return r.rows
	case <-time.After(time.Second):
		t.Fatalf("read %s waited on the running refresh", res)
		return nil
	}
}

func TestReadsDuringRefreshSeePreviousContent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0.97)
	if _, err := NewSnapshotRefresher(f.registry, f.rollups, f.snapshots, f.gate).RefreshAll(ctx); err != nil {
		t.Fatalf("first: %v", err)
	}
	before, _ := json.Marshal(readAll(t, f.snapshots))

	_ = f.bars.Append(ctx, hourBars("EURUSD", at(12, 0)))
	f.now = at(14, 0)
	if err := f.engine.RefreshAll(ctx, f.now); err != nil {
		t.Fatalf("rollups: %v", err)
	}

	blocking := &blockingRollups{RollupStore: f.rollups, entered: make(chan struct{}), release: make(chan struct{})}
	gated := &gatedSwaps{SnapshotStore: f.snapshots, res: domrepo.R1h, entered: make(chan struct{}), release: make(chan struct{})}
	r := NewSnapshotRefresher(f.registry, blocking, gated, quality.NewGate(blocking, nil))
	done := make(chan error, 1)
	go func() {
		_, err := r.RefreshAll(ctx)
		done <- err
	}()

	// Rebuild in progress: every snapshot still serves the previous run.
	<-blocking.entered
	during := map[domrepo.Resolution][]models.ResolutionBucket{}
	for _, res := range domrepo.SnapshotResolutions() {
		during[res] = readWithin(t, f.snapshots, res)
	}
	if got, _ := json.Marshal(during); string(got) != string(before) {
		t.Fatalf("reads during rebuild differ from the previous content")
	}
	close(blocking.release)

	// Swap in progress: the hourly snapshot is complete and old.
	<-gated.entered
	if n := len(readWithin(t, gated, domrepo.R1h)); n != 2 {
		t.Fatalf("1h rows during swap = %d, want the previous 2", n)
	}
	close(gated.release)

	if err := <-done; err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if n := len(readAll(t, f.snapshots)[domrepo.R1h]); n != 3 {
		t.Fatalf("1h rows after swap = %d, want 3", n)
	}
}

func TestNarrowedSessionDropsStaleRows(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0.97)
	for h := 7; h < 17; h++ {
		_ = f.bars.Append(ctx, hourBars("EURUSD", at(h, 0)))
	}
	f.now = at(18, 0)
	if err := f.engine.RefreshAll(ctx, f.now); err != nil {
		t.Fatalf("rollups: %v", err)
	}
	r := NewSnapshotRefresher(f.registry, f.rollups, f.snapshots, f.gate)
	if _, err := r.RefreshAll(ctx); err != nil {
		t.Fatalf("first: %v", err)
	}
	if n := len(readAll(t, f.snapshots)[domrepo.R1h]); n < 9 {
		t.Fatalf("full-day 1h snapshot rows = %d", n)
	}

	ldn := f.registry.Snapshot().All()[0]
	ldn.LocalEnd = "12:00"
	if _, err := f.registry.Upsert(ctx, ldn); err != nil {
		t.Fatalf("narrow: %v", err)
	}
	if err := f.engine.RefreshAll(ctx, f.now); err != nil {
		t.Fatalf("rollups after edit: %v", err)
	}
	if _, err := r.RefreshAll(ctx); err != nil {
		t.Fatalf("second: %v", err)
	}

	for _, res := range domrepo.SnapshotResolutions() {
		rows, _ := f.rollups.List(ctx, res, domrepo.ModeSession, domrepo.BucketFilter{From: at(13, 0)})
		if len(rows) != 0 {
			t.Fatalf("%s session rollup kept %d rows outside the narrowed window, first %s", res, len(rows), rows[0].BucketStart)
		}
	}
	for res, rows := range readAll(t, f.snapshots) {
		for _, b := range rows {
			if !b.BucketStart.Before(at(13, 0)) {
				t.Fatalf("%s snapshot kept %s after the session was narrowed", res, b.BucketStart)
			}
		}
	}
	plain, _ := f.rollups.List(ctx, domrepo.R1h, domrepo.ModePlain, domrepo.BucketFilter{From: at(14, 0), To: at(15, 0)})
	if len(plain) != 1 {
		t.Fatalf("plain rollups are independent of sessions, got %d rows at 14:00", len(plain))
	}
}
