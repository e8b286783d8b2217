//go:build summary_redis
// +build summary_redis

package summary

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCacheConfig configures the distributed node-metadata cache.
type RedisCacheConfig struct {
	// Addr is the Redis server address.
	Addr string

	// Password for Redis authentication.
	Password string

	// DB is the Redis database number.
	DB int

	// TTL bounds how long a stale entry survives if a flowchart's version
	// never changes again; a cache miss just rebuilds from the lookup.
	TTL time.Duration
}

func DefaultRedisCacheConfig() RedisCacheConfig {
	return RedisCacheConfig{Addr: "localhost:6379", TTL: 1 * time.Hour}
}

// redisEntry is the JSON envelope stored per client, mirroring NodeIndex's
// shape so a version mismatch is detected without a second round trip.
type redisEntry struct {
	Version int                  `json:"version"`
	Scopes  map[string]scopeMeta `json:"scopes"`
	Nodes   map[string]nodeMeta  `json:"nodes"`
}

// redisCache is the distributed counterpart to cache (internal/summary/
// cache.go): the same rebuild-on-version-change NodeIndex, shared across
// every worker replica via Redis instead of held in one process's memory.
type redisCache struct {
	lookup FlowchartLookup
	client redis.UniversalClient
	ttl    time.Duration
}

var _ nodeIndexCache = (*redisCache)(nil)

// NewRedisCache connects to Redis and returns a ready-to-use nodeIndexCache
// for Config.Cache.
func NewRedisCache(ctx context.Context, lookup FlowchartLookup, cfg RedisCacheConfig) (*redisCache, error) {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultRedisCacheConfig().TTL
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("summary: redis ping: %w", err)
	}
	return &redisCache{lookup: lookup, client: client, ttl: cfg.TTL}, nil
}

func (c *redisCache) get(ctx context.Context, clientID string) (NodeIndex, error) {
	fc, err := c.lookup.GetFlowchart(ctx, clientID)
	if err != nil {
		return NodeIndex{}, fmt.Errorf("summary: load flowchart %q: %w", clientID, err)
	}

	key := "summary:nodeindex:" + clientID
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var stored redisEntry
		if jsonErr := json.Unmarshal(raw, &stored); jsonErr == nil && stored.Version == fc.Version {
			return NodeIndex{Version: stored.Version, Scopes: stored.Scopes, Nodes: stored.Nodes}, nil
		}
	} else if err != redis.Nil {
		return NodeIndex{}, fmt.Errorf("summary: read cached node index: %w", err)
	}

	idx := buildIndex(fc)
	entry := redisEntry{Version: idx.Version, Scopes: idx.Scopes, Nodes: idx.Nodes}
	if encoded, jsonErr := json.Marshal(entry); jsonErr == nil {
		c.client.Set(ctx, key, encoded, c.ttl)
	}
	return idx, nil
}

// Close releases the underlying Redis client.
func (c *redisCache) Close() error {
	return c.client.Close()
}
