package repository

import (
	"context"
	"time"

	"FxRollup/internal/domain/models"
)

// BucketFilter narrows bucket reads. Zero values match everything; To is exclusive.
type BucketFilter struct {
	Symbol      string
	SessionName string
	From        time.Time
	To          time.Time
	Limit       int
}

// Match reports whether b passes the filter (Limit is ignored).
func (f BucketFilter) Match(b models.ResolutionBucket) bool {
	if f.Symbol != "" && b.Symbol != f.Symbol {
		return false
	}
	if f.SessionName != "" && b.SessionName != f.SessionName {
		return false
	}
	if !f.From.IsZero() && b.BucketStart.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !b.BucketStart.Before(f.To) {
		return false
	}
	return true
}

// BarStore is the append-only one-minute bar series.
type BarStore interface {
	Append(ctx context.Context, bars []models.Bar) error
	// Scan returns bars of symbol with From <= ts < To, ascending.
	Scan(ctx context.Context, symbol string, from, to time.Time) ([]models.Bar, error)
	Symbols(ctx context.Context) ([]string, error)
}

// RollupStore holds materialised rollups per resolution and mode.
type RollupStore interface {
	// Upsert inserts or replaces rows by (symbol, session id, bucket start).
	Upsert(ctx context.Context, res Resolution, mode Mode, rows []models.ResolutionBucket) error
	// Replace makes rows the complete content of symbol's buckets with
	// from <= BucketStart < to; stored keys in the range absent from rows
	// are removed. A non-nil sessions limits removal to those session ids,
	// so rows of sessions outside it are kept.
	Replace(ctx context.Context, res Resolution, mode Mode, symbol string, sessions []int64, from, to time.Time, rows []models.ResolutionBucket) error
	List(ctx context.Context, res Resolution, mode Mode, f BucketFilter) ([]models.ResolutionBucket, error)
	Watermark(ctx context.Context, res Resolution, mode Mode) (time.Time, error)
	SetWatermark(ctx context.Context, res Resolution, mode Mode, t time.Time) error
}

// SnapshotStore persists QC-filtered snapshots. Provisioning (EnsureSnapshot,
// EnsureIndex) is separate from content (Populate, Swap); all are idempotent.
type SnapshotStore interface {
	EnsureSnapshot(ctx context.Context, res Resolution) (created bool, err error)
	EnsureIndex(ctx context.Context, res Resolution) error
	IsPopulated(ctx context.Context, res Resolution) (bool, error)
	// Populate fills a never-populated snapshot; it may block readers.
	Populate(ctx context.Context, res Resolution, rows []models.ResolutionBucket) error
	// Swap replaces content atomically without blocking readers.
	Swap(ctx context.Context, res Resolution, rows []models.ResolutionBucket) error
	Read(ctx context.Context, res Resolution, f BucketFilter) ([]models.ResolutionBucket, error)
}

// SessionStore persists session definitions.
type SessionStore interface {
	LoadAll(ctx context.Context) ([]models.SessionDefinition, error)
	Save(ctx context.Context, def models.SessionDefinition) error
}

// Locker is a TTL lock shared between processes.
type Locker interface {
	// TryLock records token as the holder; Unlock releases only for that token.
	TryLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key, token string) error
}

// ReportPublisher announces refresh outcomes.
type ReportPublisher interface {
	PublishRefresh(ctx context.Context, report *models.RefreshReport) error
}

type Metrics interface {
	RecordRefresh(kind, resolution, result string)
	RecordRows(kind, resolution string, n int)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	RecordQuality(session string, ok bool)
}
