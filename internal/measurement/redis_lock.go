//go:build measurement_redis
// +build measurement_redis

package measurement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisLockConfig configures the distributed stream lock.
type RedisLockConfig struct {
	// Addr is the Redis server address.
	Addr string

	// Password for Redis authentication.
	Password string

	// DB is the Redis database number.
	DB int

	// TTL bounds how long a lock is held before it expires unowned, so a
	// crashed holder can never wedge a stream forever.
	TTL time.Duration

	// RetryInterval is how often Lock polls while waiting to acquire.
	RetryInterval time.Duration
}

func DefaultRedisLockConfig() RedisLockConfig {
	return RedisLockConfig{
		Addr:          "localhost:6379",
		TTL:           30 * time.Second,
		RetryInterval: 50 * time.Millisecond,
	}
}

// RedisLocker implements Locker with a Redis SET NX lease per stream key,
// so multiple worker replicas serialise Ingest calls against the same
// (clientId, nodeId, scopeIdentifier) stream the way the in-process
// sync.Mutex map does within a single replica.
type RedisLocker struct {
	client redis.UniversalClient
	cfg    RedisLockConfig
}

// NewRedisLocker connects to Redis and returns a ready-to-use Locker.
func NewRedisLocker(ctx context.Context, cfg RedisLockConfig) (*RedisLocker, error) {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultRedisLockConfig().TTL
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultRedisLockConfig().RetryInterval
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("measurement: redis ping: %w", err)
	}
	return &RedisLocker{client: client, cfg: cfg}, nil
}

// Lock blocks, polling every RetryInterval, until it sets
// "measurement:lock:<key>" with a unique token and a TTL lease. The
// returned unlock deletes the key only if it still holds that token, so a
// lease that already expired and was re-acquired by another replica is
// never released out from under it.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(context.Context), error) {
	redisKey := "measurement:lock:" + key
	token := uuid.NewString()

	ticker := time.NewTicker(l.cfg.RetryInterval)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.cfg.TTL).Result()
		if err != nil {
			return nil, fmt.Errorf("measurement: acquire lock %q: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	return func(unlockCtx context.Context) {
		l.release(unlockCtx, redisKey, token)
	}, nil
}

const releaseIfOwnerScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`

func (l *RedisLocker) release(ctx context.Context, redisKey, token string) {
	l.client.Eval(ctx, releaseIfOwnerScript, []string{redisKey}, token)
}

// Close releases the underlying Redis client.
func (l *RedisLocker) Close() error {
	return l.client.Close()
}
