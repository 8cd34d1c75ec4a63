package repository

import (
	"context"
	"time"

	"Confluence/internal/domain/models"
)

// ExchangeClient is the upstream market data collaborator. Every failure it
// returns must be a *models.UpstreamError or classifiable by models.KindOf.
type ExchangeClient interface {
	FetchTicker(ctx context.Context, symbol string) (*models.Ticker, error)
	FetchOrderBook(ctx context.Context, symbol string) (*models.OrderBook, error)
	FetchTrades(ctx context.Context, symbol string, limit int) ([]models.Trade, error)
	FetchOHLCV(ctx context.Context, symbol string, tf Timeframe, limit int) ([]models.Candle, error)
	Close() error
}

// ClientFactory dials a fresh ExchangeClient handle.
type ClientFactory func(ctx context.Context) (ExchangeClient, error)

// CandleStore provides read-only access to stored candles.
type CandleStore interface {
	GetLatestNCandles(ctx context.Context, symbol string, n int, tf Timeframe) ([]models.Candle, error)
}

// TickSource streams ticks into the sampler.
type TickSource interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Tick, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// SignalPublisher fans fused results out to downstream consumers.
type SignalPublisher interface {
	Publish(ctx context.Context, res *models.ConfluenceResult) error
	Close() error
}

// ResultCache is the best-effort key/value store for fused results.
type ResultCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
}

type Metrics interface {
	RecordCall(endpoint, outcome string)
	RecordRetry(endpoint, kind string)
	RecordBreakerState(endpoint string, state int)
	RecordThrottleWait(endpoint string, seconds float64)
	RecordCache(tier, op, result string)
	RecordInterval(symbol, kind string, seconds float64)
	RecordResourceDenied(component string)
	RecordConfluence(symbol string, score, confidence float64)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
