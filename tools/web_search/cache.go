package web_search

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores result sets keyed by the final engine query.
type Cache interface {
	Get(ctx context.Context, key string) ([]SearchResult, bool, error)
	Set(ctx context.Context, key string, results []SearchResult, ttl time.Duration) error
}

type memoryEntry struct {
	results   []SearchResult
	expiresAt time.Time
}

// MemoryCache is a process-local TTL cache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry), now: time.Now}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]SearchResult, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if c.now().After(e.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false, nil
	}
	return append([]SearchResult(nil), e.results...), true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, results []SearchResult, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{
		results:   append([]SearchResult(nil), results...),
		expiresAt: c.now().Add(ttl),
	}
	return nil
}

const redisKeyPrefix = "research:search:"

// RedisCache shares search results between processes.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]SearchResult, bool, error) {
	val, err := c.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var results []SearchResult
	if err := json.Unmarshal(val, &results); err != nil {
		return nil, false, err
	}
	return results, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, results []SearchResult, ttl time.Duration) error {
	data, err := json.Marshal(results)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, redisKeyPrefix+key, data, ttl).Err()
}
