package cache

import (
	"time"

	"Confluence/pkg/logger"
)

// RedisOption configures a Redis backend.
type RedisOption func(*RedisConfig)

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Name         string
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	PoolTimeout  time.Duration
	MinIdleConns int
	Prefix       string
}

// WithRedisName sets the tier name used in logs and metrics.
func WithRedisName(name string) RedisOption {
	return func(c *RedisConfig) {
		c.Name = name
	}
}

// WithRedisAddr sets Redis host:port.
func WithRedisAddr(addr string) RedisOption {
	return func(c *RedisConfig) {
		c.Addr = addr
	}
}

// WithRedisPassword sets Redis password.
func WithRedisPassword(password string) RedisOption {
	return func(c *RedisConfig) {
		c.Password = password
	}
}

// WithRedisDB sets Redis database number.
func WithRedisDB(db int) RedisOption {
	return func(c *RedisConfig) {
		c.DB = db
	}
}

// WithRedisPool sets connection pool settings.
func WithRedisPool(poolSize, minIdleConns int, timeout time.Duration) RedisOption {
	return func(c *RedisConfig) {
		c.PoolSize = poolSize
		c.MinIdleConns = minIdleConns
		c.PoolTimeout = timeout
	}
}

// WithRedisPrefix sets key prefix.
func WithRedisPrefix(prefix string) RedisOption {
	return func(c *RedisConfig) {
		c.Prefix = prefix
	}
}

// MemoryOption configures a memory backend.
type MemoryOption func(*MemoryConfig)

// MemoryConfig holds memory cache configuration.
type MemoryConfig struct {
	MaxSize         int
	CleanupInterval time.Duration
	Now             func() time.Time
}

// WithMemoryMaxSize sets max cache size.
func WithMemoryMaxSize(size int) MemoryOption {
	return func(c *MemoryConfig) {
		c.MaxSize = size
	}
}

// WithMemoryCleanup sets cleanup interval.
func WithMemoryCleanup(interval time.Duration) MemoryOption {
	return func(c *MemoryConfig) {
		c.CleanupInterval = interval
	}
}

// WithMemoryClock replaces time.Now for expiry decisions.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(c *MemoryConfig) {
		c.Now = now
	}
}

// TieredOption configures a TieredCache.
type TieredOption func(*TieredConfig)

// TieredConfig holds tiered cache configuration.
type TieredConfig struct {
	AttemptTimeout time.Duration
	Retries        int
	Logger         *logger.Logger
	Recorder       Recorder
}

// WithAttemptTimeout bounds every single backend call.
func WithAttemptTimeout(d time.Duration) TieredOption {
	return func(c *TieredConfig) {
		c.AttemptTimeout = d
	}
}

// WithRetries sets how many reconnect-and-retry rounds a write gets per tier.
func WithRetries(n int) TieredOption {
	return func(c *TieredConfig) {
		c.Retries = n
	}
}

func WithLogger(l *logger.Logger) TieredOption {
	return func(c *TieredConfig) {
		c.Logger = l
	}
}

func WithRecorder(r Recorder) TieredOption {
	return func(c *TieredConfig) {
		c.Recorder = r
	}
}
