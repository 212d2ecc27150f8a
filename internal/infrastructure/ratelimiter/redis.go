package ratelimiter

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisOpTimeout = 250 * time.Millisecond

// Redis shares buckets between instances. Close leaves the client open; its
// owner closes it.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) Get(key string) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	value, err := r.client.Get(ctx, r.prefix+key).Int()
	if errors.Is(err, redis.Nil) {
		return 0, ErrCacheMiss
	}
	return value, err
}

func (r *Redis) Set(key string, value int) error {
	return r.SetWithExpiration(key, value, 0)
}

func (r *Redis) SetWithExpiration(key string, value int, expiration time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	return r.client.Set(ctx, r.prefix+key, value, expiration).Err()
}

func (r *Redis) Close() error {
	return nil
}
