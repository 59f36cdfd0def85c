package repository

import (
	"strings"
	"testing"
	"time"

	domrepo "FxRollup/internal/domain/repository"
)

func TestBucketWhere(t *testing.T) {
	from := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	where, args := bucketWhere(domrepo.BucketFilter{Symbol: "EURUSD", SessionName: "LDN", From: from},
		[]string{"resolution = ?"}, []any{"5m"})
	want := " WHERE resolution = ? AND symbol = ? AND session_name = ? AND bucket_start >= ?"
	if where != want {
		t.Fatalf("where = %q", where)
	}
	if len(args) != 4 || args[0] != "5m" || args[3] != from {
		t.Fatalf("args = %v", args)
	}
	if where, args := bucketWhere(domrepo.BucketFilter{}, nil, nil); where != "" || len(args) != 0 {
		t.Fatalf("empty filter = %q %v", where, args)
	}
}

func TestValuesList(t *testing.T) {
	if got := valuesList(2, 3); got != "(?, ?, ?),(?, ?, ?)" {
		t.Fatalf("valuesList = %q", got)
	}
	if got := strings.Count(valuesList(insertChunk, 14), "?"); got != insertChunk*14 {
		t.Fatalf("placeholders = %d", got)
	}
}

func TestSnapshotTables(t *testing.T) {
	if snapshotTable(domrepo.R15m) != "qc_snapshot_15m" || stagingTable(domrepo.R15m) != "qc_snapshot_15m__next" {
		t.Fatal("unexpected snapshot table names")
	}
	if !strings.Contains(snapshotDDL("x"), "ORDER BY (symbol, session_name, session_id, bucket_start)") {
		t.Fatal("snapshot DDL lost its sort key")
	}
	for _, m := range ClickHouseMigrations("fx") {
		for _, stmt := range m.Statements {
			if !strings.Contains(stmt, "IF NOT EXISTS") || !strings.Contains(stmt, "fx.") {
				t.Fatalf("migration %d statement is not idempotent or unqualified: %s", m.Version, stmt)
			}
		}
	}
	if limitClause(0) != "" || limitClause(5) != " LIMIT 5" {
		t.Fatal("limitClause")
	}
}
