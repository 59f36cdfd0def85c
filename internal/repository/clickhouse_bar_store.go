package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"FxRollup/internal/domain/models"
	domrepo "FxRollup/internal/domain/repository"
	pkgch "FxRollup/pkg/clickhouse"
)

// CHBarStore keeps one-minute bars in a ReplacingMergeTree keyed by
// (symbol, ts); re-inserting a bar collapses into a single row.
type CHBarStore struct {
	db *sql.DB
}

func NewCHBarStore(ch *pkgch.Client) *CHBarStore {
	return &CHBarStore{db: ch.DB()}
}

func (s *CHBarStore) Append(ctx context.Context, bars []models.Bar) error {
	for start := 0; start < len(bars); start += insertChunk {
		end := min(start+insertChunk, len(bars))
		chunk := bars[start:end]
		args := make([]any, 0, len(chunk)*8)
		for _, b := range chunk {
			args = append(args, b.Timestamp.UTC().Truncate(time.Minute), b.Symbol,
				b.Open, b.High, b.Low, b.Close, b.Volume, b.Source)
		}
		q := fmt.Sprintf("INSERT INTO %s (ts, symbol, open, high, low, close, volume, source) VALUES %s",
			barsTable, valuesList(len(chunk), 8))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert bars: %w", err)
		}
	}
	return nil
}

func (s *CHBarStore) Scan(ctx context.Context, symbol string, from, to time.Time) ([]models.Bar, error) {
	conds := []string{"symbol = ?"}
	args := []any{symbol}
	if !from.IsZero() {
		conds = append(conds, "ts >= ?")
		args = append(args, from.UTC())
	}
	if !to.IsZero() {
		conds = append(conds, "ts < ?")
		args = append(args, to.UTC())
	}
	q := fmt.Sprintf("SELECT ts, symbol, open, high, low, close, volume, source FROM %s FINAL WHERE %s ORDER BY ts",
		barsTable, strings.Join(conds, " AND "))
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("scan bars: %w", err)
	}
	defer rows.Close()

	out := make([]models.Bar, 0, 1024)
	for rows.Next() {
		var b models.Bar
		if err := rows.Scan(&b.Timestamp, &b.Symbol, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.Source); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		b.Timestamp = b.Timestamp.UTC()
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *CHBarStore) Symbols(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT DISTINCT symbol FROM %s ORDER BY symbol", barsTable))
	if err != nil {
		return nil, fmt.Errorf("list symbols: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, err
		}
		out = append(out, sym)
	}
	return out, rows.Err()
}

var _ domrepo.BarStore = (*CHBarStore)(nil)
