package redisx

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// New returns a client with a 2s per-command timeout. Callers treat cache
// errors as misses, so a slow redis never blocks the request path for long.
func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr}).WithTimeout(2 * time.Second)
}

func Exists(ctx context.Context, rdb *redis.Client, key string) (bool, error) {
	n, err := rdb.Exists(ctx, key).Result()
	return n > 0, err
}
