package store

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"guard.share/internal/models"
)

var _ Store = (*RedisStore)(nil)

// RedisStore keeps share records in Redis so several engine instances can
// serve the same shares. Expiring shares carry a key TTL padded by the
// retention window; Redis handles the final cleanup.
type RedisStore struct {
	client    *redis.Client
	retention time.Duration
	now       func() time.Time
}

func NewRedisStore(options *redis.Options, retention time.Duration) (*RedisStore, error) {
	client := redis.NewClient(options)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client, retention: retention, now: time.Now}, nil
}

func (r *RedisStore) Save(ctx context.Context, share *models.ShareRecord) error {
	data, err := encodeShare(share)
	if err != nil {
		return err
	}

	ttl := r.keyTTL(share)
	if ttl < 0 {
		return nil // already past expiry plus retention, nothing to keep
	}
	return r.client.Set(ctx, shareKey(share.Token), data, ttl).Err()
}

func (r *RedisStore) Find(ctx context.Context, token string) (*models.ShareRecord, error) {
	data, err := r.client.Get(ctx, shareKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return decodeShare(data)
}

// IncrementAccess runs a WATCH transaction so the limit check and the
// increment are one atomic step; a concurrent writer forces a retry.
func (r *RedisStore) IncrementAccess(ctx context.Context, token string) (bool, error) {
	key := shareKey(token)
	var admitted bool

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			return err
		}

		share, err := decodeShare(data)
		if err != nil {
			return err
		}

		if !share.Active || share.Expired(r.now()) || share.Exhausted() {
			admitted = false
			return nil
		}

		share.AccessCount++
		admitted = true

		newData, err := encodeShare(share)
		if err != nil {
			return err
		}

		ttl := tx.TTL(ctx, key).Val()
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if ttl > 0 {
				pipe.Set(ctx, key, newData, ttl)
			} else {
				pipe.Set(ctx, key, newData, 0)
			}
			return nil
		})
		return err
	}

	for i := 0; i < 3; i++ {
		err := r.client.Watch(ctx, txf, key)
		if err == nil {
			return admitted, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return false, err
	}

	return false, redis.TxFailedErr
}

func (r *RedisStore) Revoke(ctx context.Context, token string) error {
	return r.mutate(ctx, token, func(share *models.ShareRecord) {
		share.Active = false
	})
}

func (r *RedisStore) UpdatePermission(ctx context.Context, token string, p models.Permission) error {
	return r.mutate(ctx, token, func(share *models.ShareRecord) {
		share.Permission = p
	})
}

func (r *RedisStore) Delete(ctx context.Context, token string) error {
	return r.client.Del(ctx, shareKey(token)).Err()
}

func (r *RedisStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	now := r.now()

	iter := r.client.Scan(ctx, 0, shareKey("*"), 100).Iterator()
	for iter.Next(ctx) {
		data, err := r.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue // expired between scan and get
			}
			return Stats{}, err
		}
		share, err := decodeShare(data)
		if err != nil {
			return Stats{}, err
		}
		st.Total++
		if share.Active && !share.Expired(now) && !share.Exhausted() {
			st.Active++
		}
	}
	if err := iter.Err(); err != nil {
		return Stats{}, err
	}
	return st, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) mutate(ctx context.Context, token string, apply func(*models.ShareRecord)) error {
	key := shareKey(token)

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			return err
		}

		share, err := decodeShare(data)
		if err != nil {
			return err
		}
		apply(share)

		newData, err := encodeShare(share)
		if err != nil {
			return err
		}

		ttl := tx.TTL(ctx, key).Val()
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if ttl > 0 {
				pipe.Set(ctx, key, newData, ttl)
			} else {
				pipe.Set(ctx, key, newData, 0)
			}
			return nil
		})
		return err
	}

	for i := 0; i < 3; i++ {
		err := r.client.Watch(ctx, txf, key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}

	return redis.TxFailedErr
}

// keyTTL returns the Redis TTL for a record: expiry plus the retention
// window, or 0 (no TTL) for never-expiring shares.
func (r *RedisStore) keyTTL(share *models.ShareRecord) time.Duration {
	if share.ExpiresAt == nil {
		return 0
	}
	return time.Until(*share.ExpiresAt) + r.retention
}

// Helpers

func shareKey(token string) string {
	return "share:" + token
}

func encodeShare(share *models.ShareRecord) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(share); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeShare(data []byte) (*models.ShareRecord, error) {
	var share models.ShareRecord
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&share); err != nil {
		return nil, err
	}
	return &share, nil
}
