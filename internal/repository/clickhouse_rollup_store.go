package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"FxRollup/internal/domain/models"
	domrepo "FxRollup/internal/domain/repository"
	pkgch "FxRollup/pkg/clickhouse"
	applogger "FxRollup/pkg/logger"
)

// CHRollupStore keeps every resolution and mode in one ReplacingMergeTree;
// a recomputed bucket supersedes the stored one by updated_at, and reads use
// FINAL so they never see both versions. Removed buckets are superseded by a
// tombstone row (deleted = 1) that reads filter out.
type CHRollupStore struct {
	db *sql.DB
	l  *applogger.Logger
}

func NewCHRollupStore(ch *pkgch.Client, l *applogger.Logger) *CHRollupStore {
	return &CHRollupStore{db: ch.DB(), l: l}
}

func (s *CHRollupStore) Upsert(ctx context.Context, res domrepo.Resolution, mode domrepo.Mode, rows []models.ResolutionBucket) error {
	return s.insert(ctx, res, mode, rows, nil)
}

// Replace writes rows plus a tombstone for every live key of symbol in
// [from, to) that rows no longer contain, in one insert per chunk.
func (s *CHRollupStore) Replace(ctx context.Context, res domrepo.Resolution, mode domrepo.Mode, symbol string, sessions []int64, from, to time.Time, rows []models.ResolutionBucket) error {
	if sessions != nil && len(sessions) == 0 {
		return s.insert(ctx, res, mode, rows, nil)
	}
	owned := sessionSet(sessions)
	q := fmt.Sprintf(`SELECT session_id, bucket_start FROM %s FINAL
WHERE resolution = ? AND mode = ? AND symbol = ? AND bucket_start >= ? AND bucket_start < ? AND deleted = 0`, rollupsTable)
	existing, err := s.db.QueryContext(ctx, q, string(res), string(mode), symbol, from.UTC(), to.UTC())
	if err != nil {
		return fmt.Errorf("list rollup keys: %w", err)
	}
	defer existing.Close()

	keep := make(map[bucketKey]struct{}, len(rows))
	for _, b := range rows {
		keep[bucketKey{b.Symbol, b.SessionID, b.BucketStart.UnixNano()}] = struct{}{}
	}
	var stale []models.ResolutionBucket
	for existing.Next() {
		b := models.ResolutionBucket{Symbol: symbol}
		if err := existing.Scan(&b.SessionID, &b.BucketStart); err != nil {
			return fmt.Errorf("scan rollup key: %w", err)
		}
		b.BucketStart = b.BucketStart.UTC()
		if !owned(b.SessionID) {
			continue
		}
		if _, ok := keep[bucketKey{symbol, b.SessionID, b.BucketStart.UnixNano()}]; !ok {
			stale = append(stale, b)
		}
	}
	if err := existing.Err(); err != nil {
		return fmt.Errorf("list rollup keys: %w", err)
	}
	return s.insert(ctx, res, mode, rows, stale)
}

func (s *CHRollupStore) insert(ctx context.Context, res domrepo.Resolution, mode domrepo.Mode, rows, tombstones []models.ResolutionBucket) error {
	const cols = 14
	all := make([]models.ResolutionBucket, 0, len(rows)+len(tombstones))
	all = append(append(all, rows...), tombstones...)
	for start := 0; start < len(all); start += insertChunk {
		end := min(start+insertChunk, len(all))
		args := make([]any, 0, (end-start)*cols)
		for i := start; i < end; i++ {
			b := all[i]
			b.Resolution = string(res)
			deleted := uint8(0)
			if i >= len(rows) {
				deleted = 1
			}
			args = bucketArgs(append(args, string(mode), deleted), b)
		}
		q := fmt.Sprintf("INSERT INTO %s (mode, deleted, %s) VALUES %s", rollupsTable, bucketColumns, valuesList(end-start, cols))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			s.l.Error("clickhouse upsert rollups",
				applogger.String("resolution", string(res)),
				applogger.String("mode", string(mode)),
				applogger.Int("rows", end-start),
				applogger.Error(err))
			return fmt.Errorf("upsert rollups: %w", err)
		}
	}
	return nil
}

func (s *CHRollupStore) List(ctx context.Context, res domrepo.Resolution, mode domrepo.Mode, f domrepo.BucketFilter) ([]models.ResolutionBucket, error) {
	where, args := bucketWhere(f, []string{"resolution = ?", "mode = ?", "deleted = 0"}, []any{string(res), string(mode)})
	q := fmt.Sprintf("SELECT %s FROM %s FINAL%s ORDER BY symbol, session_name, session_id, bucket_start%s",
		bucketColumns, rollupsTable, where, limitClause(f.Limit))
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list rollups: %w", err)
	}
	defer rows.Close()
	out := make([]models.ResolutionBucket, 0, 256)
	for rows.Next() {
		b, err := scanBucket(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rollup: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *CHRollupStore) Watermark(ctx context.Context, res domrepo.Resolution, mode domrepo.Mode) (time.Time, error) {
	q := fmt.Sprintf("SELECT watermark FROM %s FINAL WHERE resolution = ? AND mode = ? LIMIT 1", watermarksTable)
	var wm time.Time
	err := s.db.QueryRowContext(ctx, q, string(res), string(mode)).Scan(&wm)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("read watermark: %w", err)
	}
	return wm.UTC(), nil
}

func (s *CHRollupStore) SetWatermark(ctx context.Context, res domrepo.Resolution, mode domrepo.Mode, t time.Time) error {
	q := fmt.Sprintf("INSERT INTO %s (resolution, mode, watermark) VALUES (?, ?, ?)", watermarksTable)
	if _, err := s.db.ExecContext(ctx, q, string(res), string(mode), t.UTC()); err != nil {
		return fmt.Errorf("set watermark: %w", err)
	}
	return nil
}

var _ domrepo.RollupStore = (*CHRollupStore)(nil)
