package security

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

var _ CounterStore = (*RedisCounters)(nil)

// RedisCounters backs the rate limiter with Redis so several engine
// instances share one set of windows. INCR creates the key at 1; the
// expiry is attached once per window with NX so later increments inside
// the window never extend it.
type RedisCounters struct {
	client *redis.Client
}

func NewRedisCounters(client *redis.Client) *RedisCounters {
	return &RedisCounters{client: client}
}

func (r *RedisCounters) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	rkey := rateKey(key)

	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, rkey)
	pipe.ExpireNX(ctx, rkey, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (r *RedisCounters) Reset(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, rateKey("*"), 100).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

func rateKey(key string) string {
	return "rate:" + key
}
