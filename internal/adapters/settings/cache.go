package settings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Entry is a cached lookup result. Present is false when the source had no
// value, so absence is cached as well.
type Entry struct {
	Value   string
	Present bool
}

// Cache holds setting lookups for a bounded time.
type Cache interface {
	// Get returns the cached entry and whether it was found and still fresh.
	Get(ctx context.Context, name string) (Entry, bool, error)
	Set(ctx context.Context, name string, e Entry, ttl time.Duration) error
	Delete(ctx context.Context, name string) error
	Purge(ctx context.Context) error
}

// LocalCache is an in-process Cache.
type LocalCache struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]localEntry
}

type localEntry struct {
	Entry
	expires time.Time
}

// NewLocalCache creates an empty LocalCache.
func NewLocalCache() *LocalCache {
	return &LocalCache{now: time.Now, entries: make(map[string]localEntry)}
}

// Get implements Cache. Expired entries are dropped on read.
func (c *LocalCache) Get(_ context.Context, name string) (Entry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[name]
	if !ok {
		return Entry{}, false, nil
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, name)
		return Entry{}, false, nil
	}
	return e.Entry, true, nil
}

// Set implements Cache.
func (c *LocalCache) Set(_ context.Context, name string, e Entry, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[name] = localEntry{Entry: e, expires: c.now().Add(ttl)}
	return nil
}

// Delete implements Cache.
func (c *LocalCache) Delete(_ context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, name)
	return nil
}

// Purge implements Cache.
func (c *LocalCache) Purge(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
	return nil
}

// DefaultRedisPrefix namespaces setting keys in a shared Redis.
const DefaultRedisPrefix = "rampart:setting:"

const purgeBatch = 100

// RedisCache shares cached settings between service instances so an update
// made through one instance is invalidated for all of them.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisClient builds a client the way the rest of the service configures Redis.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// NewRedisCache wraps client. An empty prefix uses DefaultRedisPrefix.
func NewRedisCache(client redis.UniversalClient, prefix string) *RedisCache {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisCache{client: client, prefix: prefix}
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, name string) (Entry, bool, error) {
	raw, err := c.client.Get(ctx, c.prefix+name).Result()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("redis get %s: %w", name, err)
	}
	e, err := decodeEntry(raw)
	if err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

// Set implements Cache.
func (c *RedisCache) Set(ctx context.Context, name string, e Entry, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.prefix+name, encodeEntry(e), ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", name, err)
	}
	return nil
}

// Delete implements Cache.
func (c *RedisCache) Delete(ctx context.Context, name string) error {
	if err := c.client.Del(ctx, c.prefix+name).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", name, err)
	}
	return nil
}

// Purge deletes every key under the prefix.
func (c *RedisCache) Purge(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.prefix+"*", purgeBatch).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis purge: %w", err)
	}
	return nil
}

// Cached values are "=" + value when present and "-" when absent.
func encodeEntry(e Entry) string {
	if !e.Present {
		return "-"
	}
	return "=" + e.Value
}

func decodeEntry(raw string) (Entry, error) {
	switch {
	case raw == "-":
		return Entry{}, nil
	case strings.HasPrefix(raw, "="):
		return Entry{Value: raw[1:], Present: true}, nil
	default:
		return Entry{}, fmt.Errorf("%w: %q", ErrCorruptCached, raw)
	}
}
