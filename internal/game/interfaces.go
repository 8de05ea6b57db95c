package game

import (
	"context"
	"time"
)

// Strategy is one independent way of acquiring a game's current result.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, def Definition) (Candidate, error)
}

// Store persists confirmed results. Saves are append-only.
type Store interface {
	Save(ctx context.Context, gameType Type, sessionID, fingerprint string, payload []byte) (Record, error)
	Latest(ctx context.Context, gameType Type, limit, offset int) ([]Record, error)
	Count(ctx context.Context, gameType Type) (int, error)
	Close() error
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Hasher computes content fingerprints.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces record IDs.
type IDGenerator interface {
	NewID() (string, error)
}
