package poller

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/gameresult-crawler/internal/game"
)

// Archive writes a JSON snapshot of every confirmed-new result to a blob
// store. Writes are best effort.
type Archive struct {
	blobs   game.BlobStore
	timeout time.Duration
	logger  *zap.Logger
}

// NewArchive wraps blobs. A zero timeout means 10s.
func NewArchive(blobs game.BlobStore, timeout time.Duration, logger *zap.Logger) *Archive {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archive{blobs: blobs, timeout: timeout, logger: logger}
}

// SnapshotPath is {game_type}/{yyyy}/{mm}/{dd}/{session_id}-{result_md5}.json.
func SnapshotPath(c game.Candidate) string {
	ts := c.Timestamp.UTC()
	return fmt.Sprintf("%s/%04d/%02d/%02d/%s-%s.json",
		c.GameType, ts.Year(), ts.Month(), ts.Day(), c.SessionID, c.Fingerprint)
}

// Put stores payload and returns the object URI, or "" on failure.
func (a *Archive) Put(ctx context.Context, c game.Candidate, payload []byte) string {
	if a == nil || a.blobs == nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	path := SnapshotPath(c)
	uri, err := a.blobs.PutObject(ctx, path, "application/json", payload)
	if err != nil {
		a.logger.Warn("archive snapshot",
			zap.String("game_type", c.GameType.String()),
			zap.String("path", path),
			zap.Error(err),
		)
		return ""
	}
	a.logger.Debug("snapshot archived", zap.String("uri", uri))
	return uri
}
