package distribution

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Counter hands out increasing numbers per key, starting at 1.
type Counter interface {
	Next(ctx context.Context, key string) (int64, error)
}

type MemoryCounter struct {
	mu sync.Mutex
	n  map[string]int64
}

func NewMemoryCounter() *MemoryCounter { return &MemoryCounter{n: map[string]int64{}} }

func (c *MemoryCounter) Next(ctx context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n[key]++
	return c.n[key], nil
}

// RedisCounter shares round-robin position across API processes.
type RedisCounter struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisCounter(rdb *redis.Client) *RedisCounter {
	return &RedisCounter{rdb: rdb, prefix: "crm:rr:"}
}

func (c *RedisCounter) Next(ctx context.Context, key string) (int64, error) {
	return c.rdb.Incr(ctx, c.prefix+key).Result()
}
