package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"FxRollup/internal/domain/models"
	domrepo "FxRollup/internal/domain/repository"
	svcmetrics "FxRollup/internal/service/metrics"
	"FxRollup/internal/services/rollup"
	"FxRollup/pkg/cache"
	applogger "FxRollup/pkg/logger"
)

// RollupQuery selects buckets of one resolution. Zero times are unbounded.
type RollupQuery struct {
	Symbol     string
	Session    string
	Resolution domrepo.Resolution
	Mode       domrepo.Mode
	From       time.Time
	To         time.Time
	Limit      int
}

func (q RollupQuery) filter() domrepo.BucketFilter {
	return domrepo.BucketFilter{Symbol: q.Symbol, SessionName: q.Session, From: q.From, To: q.To, Limit: q.Limit}
}

// RollupsUseCase serves live rollups and cached QC snapshot reads.
type RollupsUseCase struct {
	engine    *rollup.Engine
	snapshots domrepo.SnapshotStore
	cache     cache.Service
	ttl       time.Duration
	l         *applogger.Logger
}

// NewRollupsUseCase builds the read side; c may be nil to disable caching.
func NewRollupsUseCase(engine *rollup.Engine, snapshots domrepo.SnapshotStore, c cache.Service, ttl time.Duration, l *applogger.Logger) *RollupsUseCase {
	if l == nil {
		l = applogger.Nop()
	}
	return &RollupsUseCase{engine: engine, snapshots: snapshots, cache: c, ttl: ttl, l: l}
}

func (uc *RollupsUseCase) Rollups(ctx context.Context, q RollupQuery) ([]models.ResolutionBucket, error) {
	if q.Symbol == "" {
		return nil, &models.ConfigurationError{Field: "symbol", Reason: "required"}
	}
	return uc.engine.Query(ctx, q.Resolution, q.Mode, q.filter())
}

func snapshotCachePrefix(res domrepo.Resolution) string {
	return "snap:" + string(res) + ":"
}

func snapshotCacheKey(q RollupQuery) string {
	raw := fmt.Sprintf("%s|%s|%d|%d|%d", q.Symbol, q.Session, q.From.UnixNano(), q.To.UnixNano(), q.Limit)
	return snapshotCachePrefix(q.Resolution) + cache.HashKey(raw)
}

// Snapshot reads QC-filtered rows, newest first per (symbol, session).
func (uc *RollupsUseCase) Snapshot(ctx context.Context, q RollupQuery) ([]models.ResolutionBucket, error) {
	if !domrepo.IsSnapshotResolution(q.Resolution) {
		return nil, &models.ConfigurationError{Field: "resolution", Reason: fmt.Sprintf("no snapshot for %q", q.Resolution)}
	}
	key := snapshotCacheKey(q)
	if uc.cache != nil {
		var rows []models.ResolutionBucket
		err := uc.cache.Get(ctx, key, &rows)
		switch {
		case err == nil:
			svcmetrics.SnapshotCacheHits.WithLabelValues("hit").Inc()
			return rows, nil
		case !errors.Is(err, cache.ErrCacheMiss):
			uc.l.Warn("snapshot cache read", applogger.Error(err))
		}
		svcmetrics.SnapshotCacheHits.WithLabelValues("miss").Inc()
	}

	rows, err := uc.snapshots.Read(ctx, q.Resolution, q.filter())
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", q.Resolution, err)
	}
	if uc.cache != nil {
		if err := uc.cache.Set(ctx, key, rows, uc.ttl); err != nil {
			uc.l.Warn("snapshot cache write", applogger.Error(err))
		}
	}
	return rows, nil
}
