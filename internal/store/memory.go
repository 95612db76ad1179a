package store

import (
	"context"
	"sync"
	"time"

	"guard.share/internal/models"
)

// Compile-time interface check
var _ Store = (*MemoryStore)(nil)

type MemoryStore struct {
	shares        map[string]*models.ShareRecord
	mu            sync.RWMutex
	retention     time.Duration
	cleanupCancel context.CancelFunc
	now           func() time.Time
}

// NewMemoryStore keeps shares in process memory. Records that are both
// expired (or exhausted) and inactive are dropped by a background sweep
// once they have been dead longer than retention.
func NewMemoryStore(cleanupInterval, retention time.Duration) *MemoryStore {
	ctx, cancel := context.WithCancel(context.Background())
	s := &MemoryStore{
		shares:        make(map[string]*models.ShareRecord),
		retention:     retention,
		cleanupCancel: cancel,
		now:           time.Now,
	}
	go s.cleanupLoop(ctx, cleanupInterval)
	return s
}

func (s *MemoryStore) Save(ctx context.Context, share *models.ShareRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *share
	s.shares[share.Token] = &cp
	return nil
}

func (s *MemoryStore) Find(ctx context.Context, token string) (*models.ShareRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	share, ok := s.shares[token]
	if !ok {
		return nil, ErrNotFound
	}

	cp := *share
	return &cp, nil
}

func (s *MemoryStore) IncrementAccess(ctx context.Context, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	share, ok := s.shares[token]
	if !ok {
		return false, ErrNotFound
	}

	if !share.Active || share.Expired(s.now()) || share.Exhausted() {
		return false, nil
	}

	share.AccessCount++
	return true, nil
}

func (s *MemoryStore) Revoke(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	share, ok := s.shares[token]
	if !ok {
		return ErrNotFound
	}

	// Revocation is terminal, no un-revoke.
	share.Active = false
	return nil
}

func (s *MemoryStore) UpdatePermission(ctx context.Context, token string, p models.Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	share, ok := s.shares[token]
	if !ok {
		return ErrNotFound
	}

	share.Permission = p
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.shares, token)
	return nil
}

func (s *MemoryStore) Stats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	st := Stats{Total: len(s.shares)}
	for _, share := range s.shares {
		if share.Active && !share.Expired(now) && !share.Exhausted() {
			st.Active++
		}
	}
	return st, nil
}

func (s *MemoryStore) Close() error {
	if s.cleanupCancel != nil {
		s.cleanupCancel()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.shares = nil
	return nil
}

func (s *MemoryStore) cleanupLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *MemoryStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for token, share := range s.shares {
		if !share.Expired(now) && !share.Exhausted() && share.Active {
			continue
		}
		// Keep dead records around for the retention window so late
		// requests still get a precise denial reason.
		deadSince := share.CreatedAt
		if share.ExpiresAt != nil {
			deadSince = *share.ExpiresAt
		}
		if now.Sub(deadSince) > s.retention {
			delete(s.shares, token)
		}
	}
}
