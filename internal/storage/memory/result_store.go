package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/gameresult-crawler/internal/clock/system"
	"github.com/JakeFAU/gameresult-crawler/internal/game"
	"github.com/JakeFAU/gameresult-crawler/internal/id/uuid"
	"github.com/JakeFAU/gameresult-crawler/internal/storage"
)

// ResultStore keeps results in process memory. Records are append-only and
// lost on restart.
type ResultStore struct {
	mu      sync.RWMutex
	records map[game.Type][]game.Record
	clock   game.Clock
	ids     game.IDGenerator
}

// NewResultStore creates an empty store.
func NewResultStore() *ResultStore {
	return &ResultStore{
		records: make(map[game.Type][]game.Record),
		clock:   system.New(),
		ids:     uuid.New(),
	}
}

// Save appends a record.
func (s *ResultStore) Save(_ context.Context, gt game.Type, sessionID, fingerprint string, payload []byte) (game.Record, error) {
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
		CreatedAt:   s.clock.Now(),
	}
	s.mu.Lock()
	s.records[gt] = append(s.records[gt], rec)
	s.mu.Unlock()
	return rec, nil
}

// Latest returns records for gt, newest first.
func (s *ResultStore) Latest(_ context.Context, gt game.Type, limit, offset int) ([]game.Record, error) {
	if err := storage.CheckPage(limit, offset); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.records[gt]
	out := make([]game.Record, 0, limit)
	for i := len(all) - 1 - offset; i >= 0 && len(out) < limit; i-- {
		rec := all[i]
		rec.Payload = append([]byte(nil), rec.Payload...)
		out = append(out, rec)
	}
	return out, nil
}

// Count returns the number of records for gt.
func (s *ResultStore) Count(_ context.Context, gt game.Type) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records[gt]), nil
}

// Close is a no-op.
func (s *ResultStore) Close() error {
	return nil
}
