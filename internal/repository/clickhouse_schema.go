package repository

import (
	"fmt"
	"strings"

	"FxRollup/internal/domain/models"
	domrepo "FxRollup/internal/domain/repository"
	pkgch "FxRollup/pkg/clickhouse"
)

const (
	barsTable       = "bars_1m"
	rollupsTable    = "rollups"
	watermarksTable = "rollup_watermarks"
	snapStateTable  = "snapshot_state"
	insertChunk     = 2000
)

// ClickHouseMigrations returns the schema history for bars, rollups and
// snapshot bookkeeping. Snapshot tables themselves are created on demand.
// Append new steps; never edit an applied one.
func ClickHouseMigrations(database string) []pkgch.Migration {
	return []pkgch.Migration{
		{Version: 1, Name: "base_tables", Statements: []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
    ts DateTime64(3, 'UTC'),
    symbol LowCardinality(String),
    open Float64, high Float64, low Float64, close Float64, volume Float64,
    source LowCardinality(String)
) ENGINE = ReplacingMergeTree
PARTITION BY toYYYYMM(ts)
ORDER BY (symbol, ts)`, database, barsTable),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
    resolution LowCardinality(String),
    mode LowCardinality(String),
    symbol LowCardinality(String),
    session_id Int64,
    session_name LowCardinality(String),
    bucket_start DateTime64(3, 'UTC'),
    open Float64, high Float64, low Float64, close Float64, volume Float64,
    bars_observed Int32, bars_expected Int32,
    deleted UInt8 DEFAULT 0,
    updated_at DateTime64(6, 'UTC') DEFAULT now64(6)
) ENGINE = ReplacingMergeTree(updated_at)
PARTITION BY (resolution, toYYYYMM(bucket_start))
ORDER BY (resolution, mode, symbol, session_id, bucket_start)`, database, rollupsTable),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
    resolution LowCardinality(String),
    mode LowCardinality(String),
    watermark DateTime64(3, 'UTC'),
    updated_at DateTime64(6, 'UTC') DEFAULT now64(6)
) ENGINE = ReplacingMergeTree(updated_at)
ORDER BY (resolution, mode)`, database, watermarksTable),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
    resolution LowCardinality(String),
    populated UInt8,
    rows UInt64,
    updated_at DateTime64(6, 'UTC') DEFAULT now64(6)
) ENGINE = ReplacingMergeTree(updated_at)
ORDER BY resolution`, database, snapStateTable),
		}},
		// GET /api/rollups?session= and the quality audit filter by name.
		{Version: 2, Name: "rollups_session_name_index", Statements: []string{
			fmt.Sprintf("ALTER TABLE %s.%s ADD INDEX IF NOT EXISTS idx_session_name session_name TYPE set(256) GRANULARITY 4", database, rollupsTable),
		}},
	}
}

func snapshotTable(res domrepo.Resolution) string { return "qc_snapshot_" + string(res) }

func stagingTable(res domrepo.Resolution) string { return snapshotTable(res) + "__next" }

func snapshotDDL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    symbol LowCardinality(String),
    session_id Int64,
    session_name LowCardinality(String),
    resolution LowCardinality(String),
    bucket_start DateTime64(3, 'UTC'),
    open Float64, high Float64, low Float64, close Float64, volume Float64,
    bars_observed Int32, bars_expected Int32
) ENGINE = MergeTree
ORDER BY (symbol, session_name, session_id, bucket_start)`, table)
}

// bucketWhere renders f as a WHERE clause over the bucket columns. Limit is
// not part of the clause.
func bucketWhere(f domrepo.BucketFilter, conds []string, args []any) (string, []any) {
	if f.Symbol != "" {
		conds = append(conds, "symbol = ?")
		args = append(args, f.Symbol)
	}
	if f.SessionName != "" {
		conds = append(conds, "session_name = ?")
		args = append(args, f.SessionName)
	}
	if !f.From.IsZero() {
		conds = append(conds, "bucket_start >= ?")
		args = append(args, f.From.UTC())
	}
	if !f.To.IsZero() {
		conds = append(conds, "bucket_start < ?")
		args = append(args, f.To.UTC())
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func limitClause(limit int) string {
	if limit <= 0 {
		return ""
	}
	return fmt.Sprintf(" LIMIT %d", limit)
}

// valuesList returns n comma separated "(?, ..., ?)" groups of width cols.
func valuesList(n, cols int) string {
	group := "(" + strings.TrimSuffix(strings.Repeat("?, ", cols), ", ") + ")"
	return strings.TrimSuffix(strings.Repeat(group+",", n), ",")
}

const bucketColumns = "symbol, session_id, session_name, resolution, bucket_start, open, high, low, close, volume, bars_observed, bars_expected"

func bucketArgs(args []any, b models.ResolutionBucket) []any {
	return append(args,
		b.Symbol, b.SessionID, b.SessionName, b.Resolution, b.BucketStart.UTC(),
		b.Open, b.High, b.Low, b.Close, b.Volume,
		int32(b.BarsObserved), int32(b.BarsExpected),
	)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBucket(r rowScanner) (models.ResolutionBucket, error) {
	var b models.ResolutionBucket
	var observed, expected int32
	err := r.Scan(&b.Symbol, &b.SessionID, &b.SessionName, &b.Resolution, &b.BucketStart,
		&b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &observed, &expected)
	b.BucketStart = b.BucketStart.UTC()
	b.BarsObserved, b.BarsExpected = int(observed), int(expected)
	return b, err
}
