package store

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"guard.share/internal/models"
)

// Integration test: needs a local Redis.
func newRedisTestStore(t *testing.T) *RedisStore {
	t.Helper()
	s, err := NewRedisStore(&redis.Options{
		Addr:     "localhost:6379",
		Password: "",
		DB:       0,
	}, time.Hour)
	if err != nil {
		t.Skipf("redis not available: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRedisStoreRoundTrip(t *testing.T) {
	s := newRedisTestStore(t)
	ctx := context.Background()

	expires := time.Now().Add(time.Hour)
	share := &models.ShareRecord{
		Token:      "redis-test-" + time.Now().Format("150405.000000000"),
		OwnerID:    "owner-1",
		Permission: models.PermissionDownload,
		CreatedAt:  time.Now(),
		ExpiresAt:  &expires,
		Active:     true,
	}
	if err := s.Save(ctx, share); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	defer s.Delete(ctx, share.Token)

	got, err := s.Find(ctx, share.Token)
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if got.OwnerID != "owner-1" || got.Permission != models.PermissionDownload {
		t.Errorf("record mismatch: %+v", got)
	}

	if _, err := s.Find(ctx, "redis-test-missing"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRedisStoreIncrementAccess(t *testing.T) {
	s := newRedisTestStore(t)
	ctx := context.Background()

	maxAccess := 1
	expires := time.Now().Add(time.Hour)
	share := &models.ShareRecord{
		Token:      "redis-incr-" + time.Now().Format("150405.000000000"),
		OwnerID:    "owner-1",
		Permission: models.PermissionViewOnly,
		CreatedAt:  time.Now(),
		ExpiresAt:  &expires,
		Active:     true,
		MaxAccess:  &maxAccess,
	}
	if err := s.Save(ctx, share); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	defer s.Delete(ctx, share.Token)

	ok, err := s.IncrementAccess(ctx, share.Token)
	if err != nil {
		t.Fatalf("first increment failed: %v", err)
	}
	if !ok {
		t.Fatal("first increment denied")
	}

	ok, err = s.IncrementAccess(ctx, share.Token)
	if err != nil {
		t.Fatalf("second increment errored: %v", err)
	}
	if ok {
		t.Error("second increment admitted past MaxAccess=1")
	}
}

func TestRedisStoreRevoke(t *testing.T) {
	s := newRedisTestStore(t)
	ctx := context.Background()

	expires := time.Now().Add(time.Hour)
	share := &models.ShareRecord{
		Token:      "redis-revoke-" + time.Now().Format("150405.000000000"),
		OwnerID:    "owner-1",
		Permission: models.PermissionDownload,
		CreatedAt:  time.Now(),
		ExpiresAt:  &expires,
		Active:     true,
	}
	if err := s.Save(ctx, share); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	defer s.Delete(ctx, share.Token)

	if err := s.Revoke(ctx, share.Token); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}

	got, err := s.Find(ctx, share.Token)
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if got.Active {
		t.Error("share still active after revoke")
	}
}
