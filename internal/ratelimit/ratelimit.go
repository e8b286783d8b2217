// Package ratelimit throttles the cloud cost API-poll source adapters
// (aws/azure/gcp) so a misbehaving schedule interval never hammers a
// provider's billing API. Each key gets its own golang.org/x/time/rate
// bucket, expired buckets are swept on an interval.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config describes a single key's allowance.
type Config struct {
	RequestsPerSecond float64
	Burst             int
	BucketTTL         time.Duration
	CleanupInterval   time.Duration
}

func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 10,
		Burst:             20,
		BucketTTL:         5 * time.Minute,
		CleanupInterval:   1 * time.Minute,
	}
}

type entry struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// Limiter is a per-key rate limiter: one golang.org/x/time/rate.Limiter per
// source adapter key (e.g. "aws:<clientId>"), so one tenant's poll cadence
// never eats another's allowance.
type Limiter struct {
	mu       sync.Mutex
	entries  map[string]*entry
	config   Config
	stopChan chan struct{}
	once     sync.Once
}

// New creates a Limiter and starts its idle-bucket janitor.
func New(config Config) *Limiter {
	if config.RequestsPerSecond <= 0 {
		config = DefaultConfig()
	}
	l := &Limiter{
		entries:  make(map[string]*entry),
		config:   config,
		stopChan: make(chan struct{}),
	}
	go l.janitor()
	return l
}

// Allow reports whether a request for key may proceed now.
func (l *Limiter) Allow(key string) bool {
	return l.limiterFor(key).Allow()
}

// Wait blocks until a request for key is permitted or ctx is done.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	return l.limiterFor(key).Wait(ctx)
}

func (l *Limiter) limiterFor(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(rate.Limit(l.config.RequestsPerSecond), l.config.Burst)}
		l.entries[key] = e
	}
	e.lastUsed = time.Now()
	return e.limiter
}

// Close stops the idle-bucket janitor.
func (l *Limiter) Close() error {
	l.once.Do(func() { close(l.stopChan) })
	return nil
}

func (l *Limiter) janitor() {
	ticker := time.NewTicker(l.config.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.evictIdle()
		case <-l.stopChan:
			return
		}
	}
}

func (l *Limiter) evictIdle() {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := time.Now().Add(-l.config.BucketTTL)
	for key, e := range l.entries {
		if e.lastUsed.Before(cutoff) {
			delete(l.entries, key)
		}
	}
}

// SourceKey builds the per-adapter, per-client rate-limit key.
func SourceKey(source, clientID string) string {
	return source + ":" + clientID
}
