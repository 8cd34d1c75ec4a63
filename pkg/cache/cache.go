package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrCacheMiss = errors.New("cache: key not found")
)

// Backend is one tier of a TieredCache. Get returns ErrCacheMiss when the key is absent.
type Backend interface {
	Name() string
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Reconnect discards the current connection and obtains a fresh one.
	Reconnect(ctx context.Context) error
	Close() error
}

// Recorder receives cache outcomes by tier. Implemented by the Prometheus recorder.
type Recorder interface {
	RecordCache(tier, op, result string)
}

type nopRecorder struct{}

func (nopRecorder) RecordCache(string, string, string) {}

// Store is the best-effort byte cache the JSON helpers work over.
// *TieredCache implements it.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
}

// GetJSON reads key and unmarshals it into T. Undecodable entries count as a miss.
func GetJSON[T any](ctx context.Context, c Store, key string) (T, bool) {
	var obj T
	raw, ok := c.Get(ctx, key)
	if !ok {
		return obj, false
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return obj, false
	}
	return obj, true
}

// SetJSON marshals v and writes it best-effort. It reports whether the value
// could be encoded; the write itself is never confirmed.
func SetJSON(ctx context.Context, c Store, key string, v interface{}, ttl time.Duration) bool {
	data, err := json.Marshal(v)
	if err != nil {
		return false
	}
	c.Set(ctx, key, data, ttl)
	return true
}
