package audit

import (
	"context"
	"sync"
	"time"

	"guard.share/internal/models"
)

// Compile-time interface check
var _ Log = (*MemoryLog)(nil)

// MemoryLog keeps entries in a bounded in-process slice. When the bound is
// hit the oldest half is dropped; analytics windows are expected to be far
// shorter than what the bound covers.
type MemoryLog struct {
	mu      sync.RWMutex
	entries []models.AuditEntry
	maxSize int
}

const defaultMaxEntries = 100000

func NewMemoryLog(maxSize int) *MemoryLog {
	if maxSize <= 0 {
		maxSize = defaultMaxEntries
	}
	return &MemoryLog{
		entries: make([]models.AuditEntry, 0, 1024),
		maxSize: maxSize,
	}
}

func (l *MemoryLog) Record(ctx context.Context, entry models.AuditEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.entries) >= l.maxSize {
		keep := len(l.entries) / 2
		l.entries = append(l.entries[:0:0], l.entries[keep:]...)
	}
	l.entries = append(l.entries, entry)
}

func (l *MemoryLog) Since(ctx context.Context, cutoff time.Time) ([]models.AuditEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]models.AuditEntry, 0, len(l.entries))
	for _, e := range l.entries {
		if !e.Timestamp.Before(cutoff) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (l *MemoryLog) CountByOrigin(ctx context.Context, originKey string, cutoff time.Time) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	count := 0
	for _, e := range l.entries {
		if e.OriginKey == originKey && !e.Timestamp.Before(cutoff) {
			count++
		}
	}
	return count, nil
}

func (l *MemoryLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = nil
	return nil
}
