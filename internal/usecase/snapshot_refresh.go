package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"FxRollup/internal/domain/models"
	domrepo "FxRollup/internal/domain/repository"
	"FxRollup/internal/services/quality"
	"FxRollup/internal/services/sessions"
	"FxRollup/pkg/cache"
	applogger "FxRollup/pkg/logger"
)

const refreshLockKey = "lock:snapshot_refresh"

// SnapshotRefresher rebuilds the QC-filtered snapshots of 5m, 15m and 1h
// session rollups. Only hours whose hourly session bucket passes the quality
// gate contribute rows.
type SnapshotRefresher struct {
	registry  *sessions.Registry
	rollups   domrepo.RollupStore
	snapshots domrepo.SnapshotStore
	gate      *quality.Gate

	locker    domrepo.Locker
	lockTTL   time.Duration
	publisher domrepo.ReportPublisher
	cache     cache.Service
	metrics   domrepo.Metrics
	l         *applogger.Logger
	now       func() time.Time

	running atomic.Bool
	resMu   map[domrepo.Resolution]*sync.Mutex
}

type RefresherOption func(*SnapshotRefresher)

// WithLocker adds a cross-process lock held for the whole run.
func WithLocker(l domrepo.Locker, ttl time.Duration) RefresherOption {
	return func(r *SnapshotRefresher) { r.locker, r.lockTTL = l, ttl }
}

func WithPublisher(p domrepo.ReportPublisher) RefresherOption {
	return func(r *SnapshotRefresher) { r.publisher = p }
}

// WithQueryCache invalidates cached snapshot reads after each swap.
func WithQueryCache(c cache.Service) RefresherOption {
	return func(r *SnapshotRefresher) { r.cache = c }
}

func WithRefreshMetrics(m domrepo.Metrics) RefresherOption {
	return func(r *SnapshotRefresher) { r.metrics = m }
}

func WithRefreshLogger(l *applogger.Logger) RefresherOption {
	return func(r *SnapshotRefresher) { r.l = l }
}

func WithRefreshClock(now func() time.Time) RefresherOption {
	return func(r *SnapshotRefresher) { r.now = now }
}

func NewSnapshotRefresher(
	registry *sessions.Registry,
	rollups domrepo.RollupStore,
	snapshots domrepo.SnapshotStore,
	gate *quality.Gate,
	opts ...RefresherOption,
) *SnapshotRefresher {
	r := &SnapshotRefresher{
		registry:  registry,
		rollups:   rollups,
		snapshots: snapshots,
		gate:      gate,
		lockTTL:   10 * time.Minute,
		l:         applogger.Nop(),
		now:       time.Now,
		resMu:     make(map[domrepo.Resolution]*sync.Mutex),
	}
	for _, res := range domrepo.SnapshotResolutions() {
		r.resMu[res] = &sync.Mutex{}
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RefreshAll brings every snapshot up to date. It is idempotent and may be
// called at any time; a call that overlaps a running one returns a skipped
// report. The returned error joins the per-resolution failures, which are
// also listed in the report. Resolutions that fail keep their previous rows.
func (r *SnapshotRefresher) RefreshAll(ctx context.Context) (*models.RefreshReport, error) {
	report := &models.RefreshReport{RunID: uuid.NewString(), StartedAt: r.now().UTC()}
	if !r.running.CompareAndSwap(false, true) {
		return r.skip(report, "in progress"), nil
	}
	defer r.running.Store(false)

	// The run may not outlive the lock, otherwise a second instance could
	// take over while this one is still writing.
	runCtx := ctx
	if r.locker != nil {
		ok, err := r.locker.TryLock(ctx, refreshLockKey, report.RunID, r.lockTTL)
		if err != nil {
			return nil, fmt.Errorf("acquire refresh lock: %w", err)
		}
		if !ok {
			return r.skip(report, "locked by another instance"), nil
		}
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.lockTTL)
		defer cancel()
		defer func() {
			err := r.locker.Unlock(context.WithoutCancel(ctx), refreshLockKey, report.RunID)
			switch {
			case errors.Is(err, cache.ErrLockNotHeld):
				r.l.Warn("refresh lock expired before release", applogger.String("run_id", report.RunID))
			case err != nil:
				r.l.Warn("release refresh lock", applogger.Error(err))
			}
		}()
	}

	start := time.Now()
	passing, err := r.passingHours(runCtx)
	targets := domrepo.SnapshotResolutions()
	report.Results = make([]models.SnapshotResult, len(targets))
	if err != nil {
		for i, res := range targets {
			report.Results[i] = models.NewSnapshotResult(string(res), err)
		}
	} else {
		var wg sync.WaitGroup
		for i, res := range targets {
			wg.Add(1)
			go func(i int, res domrepo.Resolution) {
				defer wg.Done()
				report.Results[i] = r.refreshOne(runCtx, res, passing)
			}(i, res)
		}
		wg.Wait()
	}
	report.FinishedAt = r.now().UTC()

	r.afterRun(ctx, report)
	if r.metrics != nil {
		r.metrics.RecordLatency("snapshot_refresh_all", time.Since(start).Seconds())
	}
	r.l.Info("snapshot refresh finished",
		applogger.String("run_id", report.RunID),
		applogger.Strings("failed", report.Failed()),
		applogger.Duration("took", time.Since(start)),
	)
	return report, report.Err()
}

func (r *SnapshotRefresher) skip(report *models.RefreshReport, reason string) *models.RefreshReport {
	report.Skipped = true
	report.FinishedAt = report.StartedAt
	r.l.Info("snapshot refresh skipped", applogger.String("reason", reason))
	if r.metrics != nil {
		r.metrics.RecordRefresh("snapshot", "all", "skipped")
	}
	return report
}

// passingHours grades every hourly session bucket once against a single
// registry snapshot so all resolutions of a run agree.
func (r *SnapshotRefresher) passingHours(ctx context.Context) (map[quality.HourKey]struct{}, error) {
	snap := r.registry.Snapshot()
	records, gaps, err := r.gate.Records(ctx, snap, domrepo.BucketFilter{})
	if err != nil {
		return nil, &models.AggregationFailure{Stage: "quality_gate", Resolution: string(domrepo.R1h), Err: err}
	}
	if gaps > 0 {
		r.l.Debug("hours without an enabled session", applogger.Int("gaps", gaps))
	}
	return quality.PassingHours(records), nil
}

func (r *SnapshotRefresher) refreshOne(ctx context.Context, res domrepo.Resolution, passing map[quality.HourKey]struct{}) models.SnapshotResult {
	mu := r.resMu[res]
	mu.Lock()
	defer mu.Unlock()

	start := time.Now()
	result, err := r.rebuild(ctx, res, passing)
	result.Duration = time.Since(start)
	if err != nil {
		failed := models.NewSnapshotResult(string(res), err)
		failed.Duration = result.Duration
		r.l.Error("snapshot refresh failed", applogger.String("resolution", string(res)), applogger.Error(err))
		if r.metrics != nil {
			r.metrics.RecordRefresh("snapshot", string(res), "error")
			r.metrics.RecordError("snapshot_refresh")
		}
		return failed
	}
	if r.metrics != nil {
		r.metrics.RecordRefresh("snapshot", string(res), "ok")
		r.metrics.RecordRows("snapshot", string(res), result.Rows)
	}
	return result
}

func (r *SnapshotRefresher) rebuild(ctx context.Context, res domrepo.Resolution, passing map[quality.HourKey]struct{}) (models.SnapshotResult, error) {
	result := models.NewSnapshotResult(string(res), nil)
	fail := func(stage string, err error) (models.SnapshotResult, error) {
		return result, &models.AggregationFailure{Stage: stage, Resolution: string(res), Err: err}
	}

	if _, err := r.snapshots.EnsureSnapshot(ctx, res); err != nil {
		return fail("ensure_snapshot", err)
	}
	if err := r.snapshots.EnsureIndex(ctx, res); err != nil {
		return fail("ensure_index", err)
	}

	rows, err := r.rollups.List(ctx, res, domrepo.ModeSession, domrepo.BucketFilter{})
	if err != nil {
		return fail("read_rollups", err)
	}
	rows = quality.FilterPassing(rows, passing)
	models.SortBuckets(rows)

	populated, err := r.snapshots.IsPopulated(ctx, res)
	if err != nil {
		return fail("read_state", err)
	}
	if populated {
		err = r.snapshots.Swap(ctx, res, rows)
	} else {
		result.FirstPopulation = true
		err = r.snapshots.Populate(ctx, res, rows)
	}
	if err != nil {
		return fail("write_snapshot", err)
	}
	result.Rows = len(rows)
	return result, nil
}

func (r *SnapshotRefresher) afterRun(ctx context.Context, report *models.RefreshReport) {
	if r.cache != nil {
		for _, res := range report.Results {
			if res.Error != "" {
				continue
			}
			if err := r.cache.DeleteByPattern(ctx, cache.BuildPattern(snapshotCachePrefix(domrepo.Resolution(res.Resolution)))); err != nil {
				r.l.Warn("invalidate snapshot cache", applogger.String("resolution", res.Resolution), applogger.Error(err))
			}
		}
	}
	if r.publisher != nil {
		if err := r.publisher.PublishRefresh(ctx, report); err != nil {
			r.l.Warn("publish refresh report", applogger.String("run_id", report.RunID), applogger.Error(err))
			if r.metrics != nil {
				r.metrics.RecordError("report_publish")
			}
		}
	}
}
