package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/internal/monitoring"
)

// keyPrefix namespaces every key written by this service so that
// prefix-based bulk invalidation stays scoped to our own data.
const keyPrefix = "tvdb"

// Cache provides namespaced, best-effort caching on top of Redis. All
// operations swallow backend errors: a failed read is a miss and a failed
// write returns false. Caching is never allowed to fail a request.
type Cache struct {
	client *redis.Client
}

// NewCache creates a new cache instance and verifies connectivity
func NewCache(host string, port int, password string, db int) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Cache{client: client}, nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}

// Client exposes the underlying Redis client for components that share the
// connection, such as the job tracker.
func (c *Cache) Client() *redis.Client {
	return c.client
}

// Key builds the canonical cache key for a namespace and identifier
func Key(namespace, identifier string) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, namespace, identifier)
}

// Get reads a cached JSON value into dest. Returns false on miss, expiry,
// backend error or undecodable payload.
func (c *Cache) Get(ctx context.Context, namespace, identifier string, dest interface{}) bool {
	key := Key(namespace, identifier)
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Error().Err(err).Str("key", key).Msg("Cache get error")
		}
		monitoring.CacheMissesTotal.WithLabelValues(namespace).Inc()
		return false
	}

	if err := json.Unmarshal(data, dest); err != nil {
		log.Error().Err(err).Str("key", key).Msg("Cache unmarshal error")
		monitoring.CacheMissesTotal.WithLabelValues(namespace).Inc()
		return false
	}

	monitoring.CacheHitsTotal.WithLabelValues(namespace).Inc()
	return true
}

// Set stores a JSON-serialized value with an optional TTL (zero means no
// expiry). Serialization failures are set-failures, not crashes.
func (c *Cache) Set(ctx context.Context, namespace, identifier string, value interface{}, ttl time.Duration) bool {
	key := Key(namespace, identifier)
	data, err := json.Marshal(value)
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("Cache marshal error")
		return false
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		log.Error().Err(err).Str("key", key).Msg("Cache set error")
		return false
	}

	return true
}

// Delete removes a cached value. Returns true if a key was removed.
func (c *Cache) Delete(ctx context.Context, namespace, identifier string) bool {
	key := Key(namespace, identifier)
	removed, err := c.client.Del(ctx, key).Result()
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("Cache delete error")
		return false
	}
	return removed > 0
}

// Exists checks whether a key is present and unexpired
func (c *Cache) Exists(ctx context.Context, namespace, identifier string) bool {
	key := Key(namespace, identifier)
	n, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("Cache exists error")
		return false
	}
	return n > 0
}

// TTL returns the remaining TTL for a key, or a negative duration when the
// key is absent or has no expiry.
func (c *Cache) TTL(ctx context.Context, namespace, identifier string) time.Duration {
	key := Key(namespace, identifier)
	ttl, err := c.client.TTL(ctx, key).Result()
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("Cache TTL error")
		return -1
	}
	return ttl
}

// FlushPattern deletes all keys matching the given pattern within the
// service prefix and returns the number removed. The pattern is a Redis
// glob, e.g. "series:121361:*".
func (c *Cache) FlushPattern(ctx context.Context, pattern string) int {
	full := fmt.Sprintf("%s:%s", keyPrefix, pattern)
	removed := 0

	iter := c.client.Scan(ctx, 0, full, 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			log.Error().Err(err).Str("key", iter.Val()).Msg("Cache flush delete error")
			continue
		}
		removed++
	}
	if err := iter.Err(); err != nil {
		log.Error().Err(err).Str("pattern", full).Msg("Cache flush scan error")
	}

	return removed
}

// CleanupPersistent removes cached entries that lost their expiry. Redis
// evicts expired keys on its own, so periodic cleanup only has to collect
// keys stuck without a TTL.
func (c *Cache) CleanupPersistent(ctx context.Context) int {
	removed := 0

	iter := c.client.Scan(ctx, 0, keyPrefix+":*", 0).Iterator()
	for iter.Next(ctx) {
		ttl, err := c.client.TTL(ctx, iter.Val()).Result()
		if err != nil || ttl != -1 {
			continue
		}
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			log.Error().Err(err).Str("key", iter.Val()).Msg("Cache cleanup delete error")
			continue
		}
		removed++
	}
	if err := iter.Err(); err != nil {
		log.Error().Err(err).Msg("Cache cleanup scan error")
	}

	return removed
}

// Stats returns basic cache statistics for the admin endpoint
func (c *Cache) Stats(ctx context.Context) map[string]interface{} {
	stats := map[string]interface{}{}

	size, err := c.client.DBSize(ctx).Result()
	if err != nil {
		log.Error().Err(err).Msg("Cache stats error")
		return stats
	}
	stats["total_keys"] = size

	info, err := c.client.Info(ctx, "stats", "memory", "clients").Result()
	if err != nil {
		return stats
	}

	fields := parseInfo(info)
	stats["connected_clients"] = fields["connected_clients"]
	stats["used_memory"] = fields["used_memory_human"]

	hits, _ := strconv.ParseFloat(fields["keyspace_hits"], 64)
	misses, _ := strconv.ParseFloat(fields["keyspace_misses"], 64)
	if total := hits + misses; total > 0 {
		stats["hit_rate"] = hits / total * 100
	} else {
		stats["hit_rate"] = 0.0
	}

	return stats
}

// Ping checks cache health
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func parseInfo(info string) map[string]string {
	fields := make(map[string]string)
	for _, line := range strings.Split(info, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if k, v, ok := strings.Cut(line, ":"); ok {
			fields[k] = v
		}
	}
	return fields
}
