// Package postgres persists crawl outcomes in Postgres so repeated crawls of
// the same tree can be audited and failed nodes found again.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/crawldir/internal/crawler"
)

// DefaultTable is used when OutcomeStoreConfig.Table is empty.
const DefaultTable = "crawl_outcomes"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// OutcomeStoreConfig controls the Postgres connection pool used for outcome rows.
type OutcomeStoreConfig struct {
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

// OutcomeStore upserts one row per (collection_id, foreign_id).
type OutcomeStore struct {
	pool  execCloser
	table string
}

// NewOutcomeStore connects to Postgres and makes sure the table exists.
func NewOutcomeStore(ctx context.Context, cfg OutcomeStoreConfig) (*OutcomeStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("ledger.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
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
	store := &OutcomeStore{pool: pool, table: table}
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewOutcomeStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewOutcomeStoreWithPool(pool execCloser, table string) (*OutcomeStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &OutcomeStore{pool: pool, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = DefaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *OutcomeStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the outcome table when it is missing.
func (s *OutcomeStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	collection_id TEXT NOT NULL,
	foreign_id    TEXT NOT NULL,
	path          TEXT NOT NULL,
	is_dir        BOOLEAN NOT NULL,
	remote_id     TEXT,
	status        TEXT NOT NULL,
	attempts      INTEGER NOT NULL,
	error         TEXT,
	recorded_at   TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (collection_id, foreign_id)
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// Record implements crawler.Recorder.
func (s *OutcomeStore) Record(ctx context.Context, outcome crawler.Outcome) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("outcome store is not configured")
	}
	if outcome.CollectionID == "" || outcome.ForeignID == "" {
		return fmt.Errorf("collection id and foreign id are required")
	}
	query := fmt.Sprintf(`
INSERT INTO %[1]s (
	collection_id,
	foreign_id,
	path,
	is_dir,
	remote_id,
	status,
	attempts,
	error,
	recorded_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9
)
ON CONFLICT (collection_id, foreign_id) DO UPDATE SET
	path = EXCLUDED.path,
	is_dir = EXCLUDED.is_dir,
	remote_id = EXCLUDED.remote_id,
	status = EXCLUDED.status,
	attempts = EXCLUDED.attempts,
	error = EXCLUDED.error,
	recorded_at = EXCLUDED.recorded_at`, s.table)

	args := []any{
		outcome.CollectionID,
		outcome.ForeignID,
		outcome.Path,
		outcome.IsDir,
		nullable(outcome.RemoteID),
		string(outcome.Status),
		outcome.Attempts,
		nullable(outcome.Error),
		outcome.At,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert outcome: %w", err)
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
