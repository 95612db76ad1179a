// Package audit is the append-only trail of access decisions. Every admit
// and every deny lands here exactly once; writes never fail the request
// that produced them.
package audit

import (
	"context"
	"time"

	"guard.share/internal/models"
)

// Log records decisions and serves the analytics read side.
//
// Record must not propagate failure to the caller: a broken sink is
// reported out of band, the access decision stands. Since and
// CountByOrigin are eventually consistent with in-flight writes.
type Log interface {
	Record(ctx context.Context, entry models.AuditEntry)
	Since(ctx context.Context, cutoff time.Time) ([]models.AuditEntry, error)
	CountByOrigin(ctx context.Context, originKey string, cutoff time.Time) (int, error)
	Close() error
}
