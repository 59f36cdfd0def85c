package clickhouse

import (
	"context"
	"fmt"
)

const migrationsTable = "schema_migrations"

// Migration is one numbered schema step. Statements should be idempotent
// (IF NOT EXISTS) so a step interrupted halfway can simply run again.
type Migration struct {
	Version    int
	Name       string
	Statements []string
}

// Migrate applies the migrations not yet recorded in schema_migrations, in
// version order, and returns how many ran.
func (c *Client) Migrate(ctx context.Context, migrations []Migration) (int, error) {
	if err := checkMigrations(migrations); err != nil {
		return 0, err
	}
	bootstrap := []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", c.database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
    version UInt32,
    name String,
    applied_at DateTime64(3, 'UTC') DEFAULT now64(3)
) ENGINE = ReplacingMergeTree
ORDER BY version`, c.database, migrationsTable),
	}
	for _, stmt := range bootstrap {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return 0, fmt.Errorf("migrate bootstrap: %w", err)
		}
	}

	applied, err := c.appliedVersions(ctx)
	if err != nil {
		return 0, err
	}
	ran := 0
	for _, m := range pendingMigrations(migrations, applied) {
		for i, stmt := range m.Statements {
			if _, err := c.db.ExecContext(ctx, stmt); err != nil {
				return ran, fmt.Errorf("migration %d %s statement %d: %w", m.Version, m.Name, i+1, err)
			}
		}
		q := fmt.Sprintf("INSERT INTO %s.%s (version, name) VALUES (?, ?)", c.database, migrationsTable)
		if _, err := c.db.ExecContext(ctx, q, uint32(m.Version), m.Name); err != nil {
			return ran, fmt.Errorf("record migration %d: %w", m.Version, err)
		}
		ran++
	}
	return ran, nil
}

func (c *Client) appliedVersions(ctx context.Context) (map[int]bool, error) {
	rows, err := c.db.QueryContext(ctx, fmt.Sprintf("SELECT version FROM %s.%s FINAL", c.database, migrationsTable))
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	defer rows.Close()
	applied := make(map[int]bool)
	for rows.Next() {
		var v uint32
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan migration: %w", err)
		}
		applied[int(v)] = true
	}
	return applied, rows.Err()
}

// checkMigrations requires positive, strictly increasing versions.
func checkMigrations(migrations []Migration) error {
	prev := 0
	for _, m := range migrations {
		if m.Version <= prev {
			return fmt.Errorf("migration %q: version %d must be greater than %d", m.Name, m.Version, prev)
		}
		prev = m.Version
	}
	return nil
}

func pendingMigrations(migrations []Migration, applied map[int]bool) []Migration {
	var out []Migration
	for _, m := range migrations {
		if !applied[m.Version] {
			out = append(out, m)
		}
	}
	return out
}
