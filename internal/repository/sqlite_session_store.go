package repository

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"FxRollup/internal/domain/models"
	domrepo "FxRollup/internal/domain/repository"
)

const sessionsDDL = `
CREATE TABLE IF NOT EXISTS session_definitions (
	id             INTEGER PRIMARY KEY,
	seq            INTEGER NOT NULL,
	symbol_scope   TEXT    NOT NULL,
	name           TEXT    NOT NULL,
	timezone       TEXT    NOT NULL,
	local_start    TEXT    NOT NULL,
	local_end      TEXT    NOT NULL,
	enabled        INTEGER NOT NULL,
	min_fill_ratio REAL    NOT NULL,
	min_bars_abs   INTEGER NOT NULL,
	updated_at     TEXT    NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
)`

// SQLiteSessionStore persists session definitions in a local SQLite file.
type SQLiteSessionStore struct {
	db *sql.DB
}

// OpenSQLiteSessionStore opens (creating if needed) the database at path.
// ":memory:" gives a private in-memory database.
func OpenSQLiteSessionStore(ctx context.Context, path string) (*SQLiteSessionStore, error) {
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer; also keeps ":memory:" on a single connection
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, sessionsDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return &SQLiteSessionStore{db: db}, nil
}

func (s *SQLiteSessionStore) Close() error { return s.db.Close() }

func (s *SQLiteSessionStore) LoadAll(ctx context.Context) ([]models.SessionDefinition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, seq, symbol_scope, name, timezone, local_start, local_end,
		       enabled, min_fill_ratio, min_bars_abs
		FROM session_definitions
		ORDER BY seq, id`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []models.SessionDefinition
	for rows.Next() {
		var d models.SessionDefinition
		if err := rows.Scan(&d.ID, &d.Seq, &d.SymbolScope, &d.Name, &d.Timezone, &d.LocalStart, &d.LocalEnd,
			&d.Enabled, &d.MinFillRatio, &d.MinBarsAbs); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *SQLiteSessionStore) Save(ctx context.Context, d models.SessionDefinition) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_definitions
			(id, seq, symbol_scope, name, timezone, local_start, local_end, enabled, min_fill_ratio, min_bars_abs)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			seq = excluded.seq,
			symbol_scope = excluded.symbol_scope,
			name = excluded.name,
			timezone = excluded.timezone,
			local_start = excluded.local_start,
			local_end = excluded.local_end,
			enabled = excluded.enabled,
			min_fill_ratio = excluded.min_fill_ratio,
			min_bars_abs = excluded.min_bars_abs,
			updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')`,
		d.ID, d.Seq, d.SymbolScope, d.Name, d.Timezone, d.LocalStart, d.LocalEnd,
		d.Enabled, d.MinFillRatio, d.MinBarsAbs)
	if err != nil {
		return fmt.Errorf("save session %d: %w", d.ID, err)
	}
	return nil
}

var _ domrepo.SessionStore = (*SQLiteSessionStore)(nil)
