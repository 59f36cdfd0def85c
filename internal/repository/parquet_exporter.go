package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"

	"FxRollup/internal/domain/models"
	domrepo "FxRollup/internal/domain/repository"
)

// SnapshotRow is the on-disk layout of an exported snapshot row.
type SnapshotRow struct {
	Symbol       string  `parquet:"symbol,dict"`
	SessionID    int64   `parquet:"session_id"`
	SessionName  string  `parquet:"session_name,dict"`
	Resolution   string  `parquet:"resolution,dict"`
	BucketStart  int64   `parquet:"bucket_start_ms"`
	Open         float64 `parquet:"open"`
	High         float64 `parquet:"high"`
	Low          float64 `parquet:"low"`
	Close        float64 `parquet:"close"`
	Volume       float64 `parquet:"volume"`
	BarsObserved int32   `parquet:"bars_observed"`
	BarsExpected int32   `parquet:"bars_expected"`
}

func toSnapshotRow(b models.ResolutionBucket) SnapshotRow {
	return SnapshotRow{
		Symbol: b.Symbol, SessionID: b.SessionID, SessionName: b.SessionName, Resolution: b.Resolution,
		BucketStart: b.BucketStart.UnixMilli(),
		Open:        b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume,
		BarsObserved: int32(b.BarsObserved), BarsExpected: int32(b.BarsExpected),
	}
}

// ParquetExporter writes each QC snapshot to <dir>/qc_snapshot_<res>.parquet.
type ParquetExporter struct {
	snapshots domrepo.SnapshotStore
}

func NewParquetExporter(snapshots domrepo.SnapshotStore) *ParquetExporter {
	return &ParquetExporter{snapshots: snapshots}
}

// Export writes every snapshot resolution and returns the written paths.
// Files are written to a temporary name and renamed into place.
func (e *ParquetExporter) Export(ctx context.Context, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}
	var paths []string
	for _, res := range domrepo.SnapshotResolutions() {
		rows, err := e.snapshots.Read(ctx, res, domrepo.BucketFilter{})
		if err != nil {
			return paths, fmt.Errorf("read snapshot %s: %w", res, err)
		}
		models.SortBuckets(rows)
		out := make([]SnapshotRow, len(rows))
		for i, b := range rows {
			out[i] = toSnapshotRow(b)
		}
		path := filepath.Join(dir, snapshotTable(res)+".parquet")
		tmp := path + ".tmp"
		if err := parquet.WriteFile(tmp, out); err != nil {
			_ = os.Remove(tmp)
			return paths, fmt.Errorf("write %s: %w", path, err)
		}
		if err := os.Rename(tmp, path); err != nil {
			return paths, fmt.Errorf("rename %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
