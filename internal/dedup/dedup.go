// Package dedup guards idempotent submissions with short-lived keys.
package dedup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"bountywizard/internal/logging"
)

// Deduper reports whether a key is seen for the first time within its TTL.
type Deduper interface {
	// Acquire returns true the first time key is seen.
	Acquire(ctx context.Context, scope, key string) bool
	// Release forgets key so a failed attempt can be retried.
	Release(ctx context.Context, scope, key string)
}

// Key builds the storage key for scope and key.
func Key(scope, key string) string {
	return fmt.Sprintf("bountywizard:dedup:%s:%s", scope, key)
}

// RedisConfig holds connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient opens a client for cfg.
func NewRedisClient(cfg RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

type RedisDeduper struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisDeduper(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisDeduper {
	return &RedisDeduper{rdb: rdb, ttl: ttl, logger: logging.OrNop(logger)}
}

// Acquire uses SETNX. When redis is unreachable the attempt is allowed.
func (d *RedisDeduper) Acquire(ctx context.Context, scope, key string) bool {
	k := Key(scope, key)
	ok, err := d.rdb.SetNX(ctx, k, 1, d.ttl).Result()
	if err != nil {
		d.logger.Warn("redis dedup check failed, allowing request",
			zap.String("scope", scope),
			zap.String("dedup_key", k),
			zap.Error(err),
		)
		return true
	}
	if !ok {
		d.logger.Info("duplicate request skipped", zap.String("scope", scope), zap.String("dedup_key", k))
	}
	return ok
}

func (d *RedisDeduper) Release(ctx context.Context, scope, key string) {
	if err := d.rdb.Del(ctx, Key(scope, key)).Err(); err != nil {
		d.logger.Warn("redis dedup release failed", zap.String("scope", scope), zap.Error(err))
	}
}

// MemoryDeduper keeps keys in process memory. It is used when no redis address is configured.
type MemoryDeduper struct {
	mu   sync.Mutex
	ttl  time.Duration
	now  func() time.Time
	keys map[string]time.Time
}

func NewMemoryDeduper(ttl time.Duration) *MemoryDeduper {
	return &MemoryDeduper{ttl: ttl, now: time.Now, keys: map[string]time.Time{}}
}

func (d *MemoryDeduper) Acquire(_ context.Context, scope, key string) bool {
	k := Key(scope, key)
	now := d.now()
	d.mu.Lock()
	defer d.mu.Unlock()
	if exp, ok := d.keys[k]; ok && (d.ttl <= 0 || now.Before(exp)) {
		return false
	}
	d.keys[k] = now.Add(d.ttl)
	for other, exp := range d.keys {
		if d.ttl > 0 && !now.Before(exp) {
			delete(d.keys, other)
		}
	}
	return true
}

func (d *MemoryDeduper) Release(_ context.Context, scope, key string) {
	d.mu.Lock()
	delete(d.keys, Key(scope, key))
	d.mu.Unlock()
}
