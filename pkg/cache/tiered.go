package cache

import (
	"context"
	"errors"
	"time"

	"Confluence/pkg/logger"
)

const (
	resultHit      = "hit"
	resultMiss     = "miss"
	resultError    = "error"
	resultOK       = "ok"
	resultDropped  = "dropped"
	resultFallback = "fallback"
)

// TieredCache fronts a primary and a fallback backend sharing one keyspace.
// Get and Set never return errors: failures degrade to a miss or a dropped write.
type TieredCache struct {
	primary  Backend
	fallback Backend

	attemptTimeout time.Duration
	retries        int
	log            *logger.Logger
	rec            Recorder
}

// NewTieredCache wires primary and fallback. fallback may be nil.
func NewTieredCache(primary, fallback Backend, opts ...TieredOption) *TieredCache {
	cfg := &TieredConfig{
		AttemptTimeout: 250 * time.Millisecond,
		Retries:        2,
	}

	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	if cfg.Recorder == nil {
		cfg.Recorder = nopRecorder{}
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}

	return &TieredCache{
		primary:        primary,
		fallback:       fallback,
		attemptTimeout: cfg.AttemptTimeout,
		retries:        cfg.Retries,
		log:            cfg.Logger,
		rec:            cfg.Recorder,
	}
}

// Set writes through the primary, reconnecting before each retry, and falls
// back to the secondary tier under the same key once the primary is exhausted.
func (tc *TieredCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	err := tc.setWithRetry(ctx, tc.primary, key, value, ttl)
	if err == nil {
		tc.rec.RecordCache(tc.primary.Name(), "set", resultOK)
		return
	}
	tc.rec.RecordCache(tc.primary.Name(), "set", resultError)

	if tc.fallback == nil || ctx.Err() != nil {
		tc.dropped(key, err)
		return
	}

	tc.log.Warn("cache: primary write failed, using fallback",
		logger.String("key", key),
		logger.String("tier", tc.primary.Name()),
		logger.Error(err),
	)
	if ferr := tc.setWithRetry(ctx, tc.fallback, key, value, ttl); ferr != nil {
		tc.rec.RecordCache(tc.fallback.Name(), "set", resultError)
		tc.dropped(key, ferr)
		return
	}
	tc.rec.RecordCache(tc.fallback.Name(), "set", resultFallback)
}

func (tc *TieredCache) dropped(key string, err error) {
	tc.rec.RecordCache("all", "set", resultDropped)
	tc.log.Warn("cache: write dropped",
		logger.String("key", key),
		logger.Error(err),
	)
}

func (tc *TieredCache) setWithRetry(ctx context.Context, b Backend, key string, value []byte, ttl time.Duration) error {
	var lastErr error
	for attempt := 0; attempt <= tc.retries; attempt++ {
		if attempt > 0 {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			tc.reconnect(ctx, b)
		}

		actx, cancel := context.WithTimeout(ctx, tc.attemptTimeout)
		lastErr = b.Set(actx, key, value, ttl)
		cancel()
		if lastErr == nil {
			return nil
		}
		tc.log.Debug("cache: write attempt failed",
			logger.String("tier", b.Name()),
			logger.Int("attempt", attempt+1),
			logger.Error(lastErr),
		)
	}
	return lastErr
}

// Get reads the primary and consults the fallback on error or miss, since a
// degraded write may have landed only in the fallback.
func (tc *TieredCache) Get(ctx context.Context, key string) ([]byte, bool) {
	data, err := tc.getOnce(ctx, tc.primary, key)
	switch {
	case err == nil:
		tc.rec.RecordCache(tc.primary.Name(), "get", resultHit)
		return data, true
	case errors.Is(err, ErrCacheMiss):
		tc.rec.RecordCache(tc.primary.Name(), "get", resultMiss)
	default:
		tc.rec.RecordCache(tc.primary.Name(), "get", resultError)
		tc.log.Warn("cache: primary read failed",
			logger.String("key", key),
			logger.Error(err),
		)
		if ctx.Err() == nil {
			tc.reconnect(ctx, tc.primary)
		}
	}

	if tc.fallback == nil || ctx.Err() != nil {
		return nil, false
	}

	data, err = tc.getOnce(ctx, tc.fallback, key)
	switch {
	case err == nil:
		tc.rec.RecordCache(tc.fallback.Name(), "get", resultHit)
		return data, true
	case errors.Is(err, ErrCacheMiss):
		tc.rec.RecordCache(tc.fallback.Name(), "get", resultMiss)
	default:
		tc.rec.RecordCache(tc.fallback.Name(), "get", resultError)
		tc.log.Warn("cache: fallback read failed",
			logger.String("key", key),
			logger.Error(err),
		)
	}
	return nil, false
}

func (tc *TieredCache) getOnce(ctx context.Context, b Backend, key string) ([]byte, error) {
	actx, cancel := context.WithTimeout(ctx, tc.attemptTimeout)
	defer cancel()
	return b.Get(actx, key)
}

func (tc *TieredCache) reconnect(ctx context.Context, b Backend) {
	actx, cancel := context.WithTimeout(ctx, tc.attemptTimeout)
	defer cancel()
	if err := b.Reconnect(actx); err != nil {
		tc.log.Warn("cache: reconnect failed",
			logger.String("tier", b.Name()),
			logger.Error(err),
		)
	}
}

// Close closes both tiers.
func (tc *TieredCache) Close() error {
	var errs []error
	if err := tc.primary.Close(); err != nil {
		errs = append(errs, err)
	}
	if tc.fallback != nil {
		if err := tc.fallback.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ Store = (*TieredCache)(nil)
