// Package postgres persists game results in PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/gameresult-crawler/internal/clock/system"
	"github.com/JakeFAU/gameresult-crawler/internal/game"
	"github.com/JakeFAU/gameresult-crawler/internal/id/uuid"
	"github.com/JakeFAU/gameresult-crawler/internal/storage"
)

const defaultTable = "game_results"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for result rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// Option customises a ResultStore.
type Option func(*ResultStore)

// WithClock overrides the clock used for created_at.
func WithClock(c game.Clock) Option {
	return func(s *ResultStore) { s.clock = c }
}

// WithIDGenerator overrides the record id source.
func WithIDGenerator(g game.IDGenerator) Option {
	return func(s *ResultStore) { s.ids = g }
}

// ResultStore writes result rows into Postgres.
type ResultStore struct {
	pool  pool
	table string
	clock game.Clock
	ids   game.IDGenerator
}

// New connects a pool and creates the results table if it does not exist.
func New(ctx context.Context, cfg Config, opts ...Option) (*ResultStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("storage.postgres.dsn is required")
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
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewWithPool(p, cfg.Table, opts...)
	if err != nil {
		p.Close()
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewWithPool constructs a store from an existing pool.
func NewWithPool(p pool, table string, opts ...Option) (*ResultStore, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	s := &ResultStore{
		pool:  p,
		table: table,
		clock: system.New(),
		ids:   uuid.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Migrate creates the results table and its lookup index.
func (s *ResultStore) Migrate(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	id TEXT PRIMARY KEY,
	game_type TEXT NOT NULL,
	session_id TEXT NOT NULL,
	result_md5 TEXT NOT NULL,
	result_data JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS %[1]s_game_created_idx ON %[1]s (game_type, created_at DESC);`, s.table)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("migrate %s: %w", s.table, err)
	}
	return nil
}

// Save inserts a new result row.
func (s *ResultStore) Save(ctx context.Context, gt game.Type, sessionID, fingerprint string, payload []byte) (game.Record, error) {
	id, err := s.ids.NewID()
	if err != nil {
		return game.Record{}, fmt.Errorf("record id: %w", err)
	}
	rec := game.Record{
		ID:          id,
		GameType:    gt,
		SessionID:   sessionID,
		Fingerprint: fingerprint,
		Payload:     append([]byte(nil), payload...),
		CreatedAt:   s.clock.Now().UTC(),
	}
	query := fmt.Sprintf(`
INSERT INTO %s (id, game_type, session_id, result_md5, result_data, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`, s.table)
	if _, err := s.pool.Exec(ctx, query,
		rec.ID,
		string(rec.GameType),
		rec.SessionID,
		rec.Fingerprint,
		[]byte(rec.Payload),
		rec.CreatedAt,
	); err != nil {
		return game.Record{}, fmt.Errorf("insert result: %w", err)
	}
	return rec, nil
}

// Latest returns rows for gt ordered newest first.
func (s *ResultStore) Latest(ctx context.Context, gt game.Type, limit, offset int) ([]game.Record, error) {
	if err := storage.CheckPage(limit, offset); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
SELECT id, game_type, session_id, result_md5, result_data, created_at
FROM %s
WHERE game_type = $1
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3`, s.table)
	rows, err := s.pool.Query(ctx, query, string(gt), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	out := make([]game.Record, 0, limit)
	for rows.Next() {
		var (
			rec      game.Record
			gameType string
			payload  []byte
		)
		if err := rows.Scan(&rec.ID, &gameType, &rec.SessionID, &rec.Fingerprint, &payload, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		rec.GameType = game.Type(gameType)
		rec.Payload = payload
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	return out, nil
}

// Count returns the number of rows for gt.
func (s *ResultStore) Count(ctx context.Context, gt game.Type) (int, error) {
	var n int
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE game_type = $1`, s.table)
	if err := s.pool.QueryRow(ctx, query, string(gt)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count results: %w", err)
	}
	return n, nil
}

// Close releases the pool.
func (s *ResultStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}
