package usecase

import (
	"context"
	"sync"
	"time"

	"Confluence/internal/domain/models"
	domrepo "Confluence/internal/domain/repository"
	domsvc "Confluence/internal/domain/service"
	"Confluence/pkg/cache"
	"Confluence/pkg/logger"
)

const (
	resultPrefix    = "confluence:"
	breakdownPrefix = "confluence:breakdown:"
	memoPrefix      = "confluence:fused"
)

// ResultKey is the cache key of a symbol's latest ConfluenceResult.
func ResultKey(symbol string) string { return resultPrefix + symbol }

// BreakdownKey is the cache key of a symbol's component breakdown.
func BreakdownKey(symbol string) string { return breakdownPrefix + symbol }

type FusionConfig struct {
	ResultTTL    time.Duration
	BreakdownTTL time.Duration
	MemoTTL      time.Duration
}

// SignalFusion scores a snapshot, fuses it and fans the result out to the
// cache and the optional publisher.
type SignalFusion struct {
	scorer  domsvc.ComponentScorer
	fuser   domsvc.Fuser
	cache   domrepo.ResultCache
	pub     domrepo.SignalPublisher
	metrics domrepo.Metrics
	l       *logger.Logger
	cfg     FusionConfig
	now     func() time.Time

	mu     sync.RWMutex
	latest map[string]models.ConfluenceResult
}

type FusionOption func(*SignalFusion)

// WithPublisher enables fan-out of every fresh result.
func WithPublisher(p domrepo.SignalPublisher) FusionOption {
	return func(f *SignalFusion) { f.pub = p }
}

func WithFusionLogger(l *logger.Logger) FusionOption {
	return func(f *SignalFusion) {
		if l != nil {
			f.l = l
		}
	}
}

func WithFusionClock(now func() time.Time) FusionOption {
	return func(f *SignalFusion) { f.now = now }
}

func NewSignalFusion(scorer domsvc.ComponentScorer, fuser domsvc.Fuser, rc domrepo.ResultCache, m domrepo.Metrics, cfg FusionConfig, opts ...FusionOption) *SignalFusion {
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = time.Minute
	}
	if cfg.BreakdownTTL <= 0 {
		cfg.BreakdownTTL = cfg.ResultTTL
	}
	if cfg.MemoTTL <= 0 {
		cfg.MemoTTL = 15 * time.Second
	}
	f := &SignalFusion{
		scorer:  scorer,
		fuser:   fuser,
		cache:   rc,
		metrics: m,
		l:       logger.Nop(),
		cfg:     cfg,
		now:     time.Now,
		latest:  make(map[string]models.ConfluenceResult),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fuse produces the ConfluenceResult for snap. Identical component scores
// inside one memo window reuse the stored result instead of fusing again.
// Cache and publish failures are logged, never returned.
func (f *SignalFusion) Fuse(ctx context.Context, snap *models.Snapshot) models.ConfluenceResult {
	start := f.now()
	scores := f.scorer.Score(snap)
	memoKey := cache.BucketKey(memoPrefix, f.cfg.MemoTTL, start, snap.Symbol, scores)

	if res, ok := cache.GetJSON[models.ConfluenceResult](ctx, f.cache, memoKey); ok && res.Symbol == snap.Symbol {
		f.remember(res)
		return res
	}

	res, bd := f.fuser.Fuse(snap.Symbol, scores, nil)
	f.remember(res)

	cache.SetJSON(ctx, f.cache, ResultKey(res.Symbol), res, f.cfg.ResultTTL)
	cache.SetJSON(ctx, f.cache, BreakdownKey(res.Symbol), bd, f.cfg.BreakdownTTL)
	cache.SetJSON(ctx, f.cache, memoKey, res, f.cfg.MemoTTL)

	f.metrics.RecordConfluence(res.Symbol, res.Score, res.Confidence)
	f.metrics.RecordLatency("fusion", f.now().Sub(start).Seconds())

	if f.pub != nil {
		if err := f.pub.Publish(ctx, &res); err != nil {
			f.metrics.RecordError("publish")
			f.l.Warn("signal publish failed", logger.String("symbol", res.Symbol), logger.Error(err))
		}
	}

	f.l.Debug("confluence fused",
		logger.String("symbol", res.Symbol),
		logger.Float64("score", res.Score),
		logger.Float64("confidence", res.Confidence),
		logger.String("sentiment", string(res.Sentiment)),
		logger.Bool("amplified", bd.Amplified),
	)
	return res
}

func (f *SignalFusion) remember(res models.ConfluenceResult) {
	f.mu.Lock()
	f.latest[res.Symbol] = res
	f.mu.Unlock()
}

// Latest returns the symbol's most recent result, read through the cache
// first so every replica sees the same answer.
func (f *SignalFusion) Latest(ctx context.Context, symbol string) (models.ConfluenceResult, bool) {
	if res, ok := cache.GetJSON[models.ConfluenceResult](ctx, f.cache, ResultKey(symbol)); ok {
		return res, true
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	res, ok := f.latest[symbol]
	return res, ok
}

// Breakdown returns the stored component breakdown for symbol.
func (f *SignalFusion) Breakdown(ctx context.Context, symbol string) (models.Breakdown, bool) {
	return cache.GetJSON[models.Breakdown](ctx, f.cache, BreakdownKey(symbol))
}
