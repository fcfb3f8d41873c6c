// Package sqlstore persists evaluations, accounts and monthly usage counters
// in SQLite (default) or PostgreSQL.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/adalign/backend/pkg/logger"
)

type Dialect string

const (
	DialectSQLite   Dialect = "sqlite3"
	DialectPostgres Dialect = "postgres"
)

var ErrNotFound = errors.New("record not found")

type Client struct {
	db      *sql.DB
	dialect Dialect
}

func Open(driver, dsn string) (*Client, error) {
	dialect := Dialect(driver)
	if dialect != DialectSQLite && dialect != DialectPostgres {
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if dialect == DialectSQLite {
		// pragmas are per connection
		db.SetMaxOpenConns(1)
		for _, pragma := range []string{
			"PRAGMA foreign_keys = ON",
			"PRAGMA journal_mode = WAL",
			"PRAGMA busy_timeout = 5000",
		} {
			if _, err := db.Exec(pragma); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
			}
		}
	} else if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	logger.Info("SQL store initialized", zap.String("driver", driver))

	return New(db, dialect), nil
}

// New wraps an open *sql.DB.
func New(db *sql.DB, dialect Dialect) *Client {
	return &Client{db: db, dialect: dialect}
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Client) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		email TEXT UNIQUE NOT NULL,
		tier TEXT NOT NULL DEFAULT 'free',
		active INTEGER NOT NULL DEFAULT 1,
		created_at BIGINT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS usage_counters (
		identity_kind TEXT NOT NULL,
		identity_key TEXT NOT NULL,
		period_key TEXT NOT NULL,
		count_used INTEGER NOT NULL DEFAULT 0,
		last_evaluation_at BIGINT,
		PRIMARY KEY (identity_kind, identity_key)
	);

	CREATE TABLE IF NOT EXISTS evaluations (
		id TEXT PRIMARY KEY,
		account_id TEXT,
		platform TEXT NOT NULL,
		ad_image_url TEXT,
		ad_source_type TEXT,
		ad_extraction_method TEXT,
		ad_frame_count INTEGER,
		landing_page_url TEXT NOT NULL,
		landing_page_image_url TEXT,
		audience TEXT,
		visual_match REAL NOT NULL,
		contextual_match REAL NOT NULL,
		tone_alignment REAL NOT NULL,
		overall_score INTEGER NOT NULL,
		suggestions TEXT,
		element_comparisons TEXT,
		created_at BIGINT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_evaluations_account ON evaluations(account_id, created_at);
	`

	if _, err := c.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	logger.Info("Database schema initialized")
	return nil
}

// rebind rewrites ? placeholders into $n for PostgreSQL.
func (c *Client) rebind(query string) string {
	if c.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
