// Package sqlite persists game results in a single-file SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/JakeFAU/gameresult-crawler/internal/clock/system"
	"github.com/JakeFAU/gameresult-crawler/internal/game"
	"github.com/JakeFAU/gameresult-crawler/internal/id/uuid"
	"github.com/JakeFAU/gameresult-crawler/internal/storage"
)

//go:embed schema.sql
var schema string

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

// ResultStore is a game.Store backed by SQLite.
type ResultStore struct {
	db    *sql.DB
	clock game.Clock
	ids   game.IDGenerator
}

// Open opens (or creates) the database at path and applies the schema.
// ":memory:" is accepted for ephemeral use.
func Open(ctx context.Context, path string, opts ...Option) (*ResultStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("storage.sqlite.path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer; also keeps a :memory: database on a single connection
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	s := &ResultStore{db: db, clock: system.New(), ids: uuid.New()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Save inserts a new row.
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
	_, err = s.db.ExecContext(ctx,
		`insert into game_results (id, game_type, session_id, result_md5, result_data, created_at)
		values (?, ?, ?, ?, ?, ?)`,
		rec.ID, string(rec.GameType), rec.SessionID, rec.Fingerprint, string(rec.Payload), rec.CreatedAt.UnixNano(),
	)
	if err != nil {
		return game.Record{}, fmt.Errorf("insert result: %w", err)
	}
	return rec, nil
}

// Latest returns rows for gt, newest first.
func (s *ResultStore) Latest(ctx context.Context, gt game.Type, limit, offset int) ([]game.Record, error) {
	if err := storage.CheckPage(limit, offset); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`select id, game_type, session_id, result_md5, result_data, created_at
		from game_results
		where game_type = ?
		order by created_at desc, id desc
		limit ? offset ?`,
		string(gt), limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]game.Record, 0, limit)
	for rows.Next() {
		var (
			rec      game.Record
			gameType string
			payload  string
			created  int64
		)
		if err := rows.Scan(&rec.ID, &gameType, &rec.SessionID, &rec.Fingerprint, &payload, &created); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		rec.GameType = game.Type(gameType)
		rec.Payload = []byte(payload)
		rec.CreatedAt = time.Unix(0, created).UTC()
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
	if err := s.db.QueryRowContext(ctx, `select count(*) from game_results where game_type = ?`, string(gt)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count results: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *ResultStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}
