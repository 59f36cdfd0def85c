package clickhouse

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"
)

// Client owns the database/sql pool for one ClickHouse database.
type Client struct {
	db       *sql.DB
	database string
}

// NewClient opens the pool and pings it within ctx.
func NewClient(ctx context.Context, opts ...ClientOption) (*Client, error) {
	cfg := &ClientConfig{
		Database:        "default",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     10 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("clickhouse: host is required")
	}

	db, err := sql.Open("clickhouse", buildDSN(*cfg))
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	c := &Client{db: db, database: cfg.Database}
	if err := c.Health(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("clickhouse ping %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return c, nil
}

func (c *Client) DB() *sql.DB { return c.db }

// Database is the database migrations and stores qualify tables with.
func (c *Client) Database() string { return c.database }

// Health pings the server; it backs the readiness endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

func buildDSN(cfg ClientConfig) string {
	scheme := "clickhouse://"
	if cfg.UseHTTP {
		scheme = "clickhouse+http://"
	}
	dsn := fmt.Sprintf("%s%s:%s@%s:%d/%s", scheme, cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	var params []string
	if cfg.DialTimeout > 0 {
		params = append(params, fmt.Sprintf("dial_timeout=%s", cfg.DialTimeout))
	}
	if cfg.ReadTimeout > 0 {
		params = append(params, fmt.Sprintf("read_timeout=%s", cfg.ReadTimeout))
	}
	// rollup refreshes over long horizons are the slowest queries we run
	if cfg.MaxExecTime > 0 {
		params = append(params, fmt.Sprintf("max_execution_time=%d", int(cfg.MaxExecTime.Seconds())))
	}
	if cfg.AsyncInsert {
		params = append(params, "async_insert=1")
		if cfg.WaitForAsync {
			params = append(params, "wait_for_async_insert=1")
		}
	}
	for i, p := range params {
		sep := "&"
		if i == 0 {
			sep = "?"
		}
		dsn += sep + p
	}
	return dsn
}
