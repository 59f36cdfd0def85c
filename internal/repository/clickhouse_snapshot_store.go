package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"FxRollup/internal/domain/models"
	domrepo "FxRollup/internal/domain/repository"
	pkgch "FxRollup/pkg/clickhouse"
	applogger "FxRollup/pkg/logger"
)

// CHSnapshotStore keeps one MergeTree table per QC snapshot. The first
// population inserts in place; later refreshes build a staging table and
// EXCHANGE it with the live one, so readers see either the old or the new
// content and are never blocked.
type CHSnapshotStore struct {
	db *sql.DB
	l  *applogger.Logger
}

func NewCHSnapshotStore(ch *pkgch.Client, l *applogger.Logger) *CHSnapshotStore {
	return &CHSnapshotStore{db: ch.DB(), l: l}
}

func (s *CHSnapshotStore) exists(ctx context.Context, table string) (bool, error) {
	var n uint8
	if err := s.db.QueryRowContext(ctx, "EXISTS TABLE "+table).Scan(&n); err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *CHSnapshotStore) EnsureSnapshot(ctx context.Context, res domrepo.Resolution) (bool, error) {
	table := snapshotTable(res)
	ok, err := s.exists(ctx, table)
	if err != nil {
		return false, fmt.Errorf("check snapshot %s: %w", table, err)
	}
	if ok {
		return false, nil
	}
	if _, err := s.db.ExecContext(ctx, snapshotDDL(table)); err != nil {
		return false, fmt.Errorf("create snapshot %s: %w", table, err)
	}
	s.l.Info("snapshot table created", applogger.String("table", table))
	return true, nil
}

// EnsureIndex adds a minmax skip index on bucket_start for range reads.
func (s *CHSnapshotStore) EnsureIndex(ctx context.Context, res domrepo.Resolution) error {
	q := fmt.Sprintf("ALTER TABLE %s ADD INDEX IF NOT EXISTS idx_bucket_start bucket_start TYPE minmax GRANULARITY 1", snapshotTable(res))
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("ensure index %s: %w", res, err)
	}
	return nil
}

func (s *CHSnapshotStore) IsPopulated(ctx context.Context, res domrepo.Resolution) (bool, error) {
	q := fmt.Sprintf("SELECT populated FROM %s FINAL WHERE resolution = ? LIMIT 1", snapStateTable)
	var populated uint8
	err := s.db.QueryRowContext(ctx, q, string(res)).Scan(&populated)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("snapshot state %s: %w", res, err)
	}
	return populated == 1, nil
}

// Populate writes directly into the live table. Readers may observe a
// partially filled snapshot until it returns.
func (s *CHSnapshotStore) Populate(ctx context.Context, res domrepo.Resolution, rows []models.ResolutionBucket) error {
	table := snapshotTable(res)
	if _, err := s.db.ExecContext(ctx, "TRUNCATE TABLE IF EXISTS "+table); err != nil {
		return fmt.Errorf("truncate %s: %w", table, err)
	}
	if err := s.insert(ctx, table, rows); err != nil {
		return err
	}
	return s.markPopulated(ctx, res, len(rows))
}

func (s *CHSnapshotStore) Swap(ctx context.Context, res domrepo.Resolution, rows []models.ResolutionBucket) error {
	live, staging := snapshotTable(res), stagingTable(res)
	for _, stmt := range []string{"DROP TABLE IF EXISTS " + staging, snapshotDDL(staging)} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("prepare staging %s: %w", staging, err)
		}
	}
	if err := s.insert(ctx, staging, rows); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("EXCHANGE TABLES %s AND %s", staging, live)); err != nil {
		return fmt.Errorf("exchange %s: %w", live, err)
	}
	// staging now holds the previous content
	if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+staging); err != nil {
		s.l.Warn("drop previous snapshot", applogger.String("table", staging), applogger.Error(err))
	}
	if err := s.EnsureIndex(ctx, res); err != nil {
		return err
	}
	return s.markPopulated(ctx, res, len(rows))
}

func (s *CHSnapshotStore) insert(ctx context.Context, table string, rows []models.ResolutionBucket) error {
	const cols = 12
	for start := 0; start < len(rows); start += insertChunk {
		end := min(start+insertChunk, len(rows))
		chunk := rows[start:end]
		args := make([]any, 0, len(chunk)*cols)
		for _, b := range chunk {
			args = bucketArgs(args, b)
		}
		q := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", table, bucketColumns, valuesList(len(chunk), cols))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert %s: %w", table, err)
		}
	}
	return nil
}

func (s *CHSnapshotStore) markPopulated(ctx context.Context, res domrepo.Resolution, n int) error {
	q := fmt.Sprintf("INSERT INTO %s (resolution, populated, rows) VALUES (?, 1, ?)", snapStateTable)
	if _, err := s.db.ExecContext(ctx, q, string(res), uint64(n)); err != nil {
		return fmt.Errorf("mark %s populated: %w", res, err)
	}
	return nil
}

// Read returns rows newest first per (symbol, session).
func (s *CHSnapshotStore) Read(ctx context.Context, res domrepo.Resolution, f domrepo.BucketFilter) ([]models.ResolutionBucket, error) {
	where, args := bucketWhere(f, nil, nil)
	q := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY symbol, session_name, session_id, bucket_start DESC%s",
		bucketColumns, snapshotTable(res), where, limitClause(f.Limit))
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", res, err)
	}
	defer rows.Close()
	out := make([]models.ResolutionBucket, 0, 256)
	for rows.Next() {
		b, err := scanBucket(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

var _ domrepo.SnapshotStore = (*CHSnapshotStore)(nil)
