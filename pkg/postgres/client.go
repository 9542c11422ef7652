package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// ClientOption configures Client.
type ClientOption func(*ClientConfig)

type ClientConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// WithDSN sets the connection string.
func WithDSN(dsn string) ClientOption {
	return func(c *ClientConfig) { c.DSN = dsn }
}

// WithPool sets connection pool limits.
func WithPool(maxOpen, maxIdle int, lifetime, idle time.Duration) ClientOption {
	return func(c *ClientConfig) {
		c.MaxOpenConns = maxOpen
		c.MaxIdleConns = maxIdle
		c.ConnMaxLifetime = lifetime
		c.ConnMaxIdleTime = idle
	}
}

// Client wraps a pooled sqlx handle to PostgreSQL.
type Client struct {
	db *sqlx.DB
}

func NewClient(opts ...ClientOption) (*Client, error) {
	cfg := &ClientConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}

	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return &Client{db: db}, nil
}

func (c *Client) DB() *sqlx.DB { return c.db }

func (c *Client) Health(ctx context.Context) error { return c.db.PingContext(ctx) }

func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// InitSchema runs idempotent DDL statements in order.
func (c *Client) InitSchema(ctx context.Context, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// Schema holds the earnings event tables.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS earnings_events (
		id            BIGSERIAL PRIMARY KEY,
		symbol        TEXT        NOT NULL,
		earnings_date DATE        NOT NULL,
		quarter       TEXT        NOT NULL DEFAULT '',
		transcript    TEXT        NOT NULL DEFAULT '',
		sentiment     JSONB,
		scored_at     TIMESTAMPTZ,
		UNIQUE (symbol, earnings_date)
	)`,
	`CREATE INDEX IF NOT EXISTS earnings_events_symbol_date_idx ON earnings_events (symbol, earnings_date)`,
}
