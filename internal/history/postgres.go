package history

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PostgresConfig controls the connection pool for the fetch history table.
type PostgresConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// Postgres writes fetch records into Postgres.
//
// Expected schema:
//
//	CREATE TABLE fetches (
//	    id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
//	    nickname TEXT NOT NULL,
//	    url TEXT NOT NULL,
//	    final_url TEXT NOT NULL,
//	    backend TEXT NOT NULL,
//	    status_code INT,
//	    bytes BIGINT NOT NULL,
//	    duration_ms BIGINT NOT NULL,
//	    fetched_at TIMESTAMPTZ NOT NULL
//	);
type Postgres struct {
	pool  execCloser
	table string
}

// NewPostgres connects a pool and verifies connectivity.
func NewPostgres(ctx context.Context, cfg PostgresConfig) (*Postgres, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("history.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "fetches"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Postgres{pool: pool, table: table}, nil
}

// NewPostgresWithPool constructs a recorder from an existing pool
// (primarily for testing).
func NewPostgresWithPool(pool execCloser, table string) (*Postgres, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "fetches"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Postgres{pool: pool, table: table}, nil
}

// Record inserts one fetch row.
func (p *Postgres) Record(ctx context.Context, rec Record) error {
	if rec.Nickname == "" {
		return fmt.Errorf("record nickname is required")
	}
	if rec.URL == "" {
		return fmt.Errorf("record url is required")
	}
	fetchedAt := rec.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = time.Now().UTC()
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	nickname,
	url,
	final_url,
	backend,
	status_code,
	bytes,
	duration_ms,
	fetched_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`, p.table)
	if _, err := p.pool.Exec(ctx, query,
		rec.Nickname,
		rec.URL,
		rec.FinalURL,
		rec.Backend,
		rec.StatusCode,
		rec.Bytes,
		rec.Dur.Milliseconds(),
		fetchedAt,
	); err != nil {
		return fmt.Errorf("insert fetch record: %w", err)
	}
	return nil
}

// Close releases the underlying pool.
func (p *Postgres) Close() {
	if p == nil || p.pool == nil {
		return
	}
	p.pool.Close()
}
