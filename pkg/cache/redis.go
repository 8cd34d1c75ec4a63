package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend stores raw bytes in Redis. The client handle is owned here and
// swapped out wholesale on Reconnect.
type RedisBackend struct {
	mu     sync.RWMutex
	client *redis.Client
	cfg    RedisConfig
}

// NewRedisBackend builds a backend without dialing; call Ping to check reachability.
func NewRedisBackend(opts ...RedisOption) *RedisBackend {
	cfg := RedisConfig{
		Name:         "primary",
		Addr:         "localhost:6379",
		PoolSize:     10,
		PoolTimeout:  30 * time.Second,
		MinIdleConns: 2,
		Prefix:       "confluence",
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	return &RedisBackend{
		client: newRedisClient(cfg),
		cfg:    cfg,
	}
}

func newRedisClient(cfg RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		PoolTimeout:  cfg.PoolTimeout,
		MinIdleConns: cfg.MinIdleConns,
	})
}

func (b *RedisBackend) Name() string { return b.cfg.Name }

func (b *RedisBackend) current() *redis.Client {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.client
}

// Ping checks the server is reachable.
func (b *RedisBackend) Ping(ctx context.Context) error {
	if err := b.current().Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping %s: %w", b.cfg.Addr, err)
	}
	return nil
}

func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := b.current().Get(ctx, b.wrapKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, err
	}
	return data, nil
}

func (b *RedisBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return b.current().Set(ctx, b.wrapKey(key), value, ttl).Err()
}

// Reconnect closes every pooled connection and replaces the client. A reply
// read off a misaligned connection can never be trusted again, so the pool is
// not reused.
func (b *RedisBackend) Reconnect(ctx context.Context) error {
	fresh := newRedisClient(b.cfg)

	b.mu.Lock()
	old := b.client
	b.client = fresh
	b.mu.Unlock()

	_ = old.Close()
	return fresh.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (b *RedisBackend) Close() error {
	return b.current().Close()
}

func (b *RedisBackend) wrapKey(key string) string {
	if b.cfg.Prefix == "" {
		return key
	}
	return fmt.Sprintf("%s:%s", b.cfg.Prefix, key)
}
