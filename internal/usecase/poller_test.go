package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Confluence/internal/domain/models"
	domrepo "Confluence/internal/domain/repository"
	"Confluence/internal/service/executor"
	"Confluence/internal/service/ratelimit"
	"Confluence/internal/services/activity"
	"Confluence/internal/services/confluence"
	"Confluence/internal/services/features"
	"Confluence/internal/services/resources"
	"Confluence/pkg/cache"
	"Confluence/pkg/metrics"
)

type stubExchange struct {
	ohlcvErr error
}

func (stubExchange) FetchTicker(_ context.Context, symbol string) (*models.Ticker, error) {
	return &models.Ticker{Symbol: symbol, Last: decimal.NewFromInt(100), Change24h: 3}, nil
}

func (stubExchange) FetchOrderBook(_ context.Context, symbol string) (*models.OrderBook, error) {
	return &models.OrderBook{
		Symbol: symbol,
		Bids:   []models.Level{{Price: decimal.NewFromInt(99), Size: decimal.NewFromInt(5)}},
		Asks:   []models.Level{{Price: decimal.NewFromInt(101), Size: decimal.NewFromInt(1)}},
	}, nil
}

func (stubExchange) FetchTrades(_ context.Context, symbol string, limit int) ([]models.Trade, error) {
	now := time.Now()
	return []models.Trade{
		{Symbol: symbol, Price: decimal.NewFromInt(100), Size: decimal.NewFromInt(2), Side: models.SideBuy, Timestamp: now.Add(-time.Second)},
		{Symbol: symbol, Price: decimal.NewFromInt(101), Size: decimal.NewFromInt(1), Side: models.SideSell, Timestamp: now},
	}, nil
}

func (s stubExchange) FetchOHLCV(_ context.Context, symbol string, _ domrepo.Timeframe, limit int) ([]models.Candle, error) {
	if s.ohlcvErr != nil {
		return nil, s.ohlcvErr
	}
	out := make([]models.Candle, 0, limit)
	for i := 0; i < limit; i++ {
		c := float64(100 + i)
		out = append(out, models.Candle{Symbol: symbol, Open: c, High: c + 1, Low: c - 1, Close: c, Volume: 10})
	}
	return out, nil
}

func (stubExchange) Close() error { return nil }

func newTestPoller(t *testing.T, ex stubExchange, rcfg resources.Config, probe resources.HostProbe) (*Poller, *SignalFusion, *resources.Manager) {
	t.Helper()
	factory := func(context.Context) (domrepo.ExchangeClient, error) { return ex, nil }
	reg := executor.NewRegistry(executor.Config{
		FailureThreshold: 5,
		RecoveryTimeout:  time.Second,
		MaxRetries:       1,
		BaseDelay:        time.Millisecond,
		AttemptTimeout:   time.Second,
	}, ratelimit.New(100, time.Second), factory)
	t.Cleanup(func() { _ = reg.Close() })

	sampler := activity.NewSampler()
	ctrl := activity.NewController(activity.DefaultPolicy(), sampler, metrics.Nop{})
	rm := resources.NewManager(rcfg, probe)

	tc := cache.NewTieredCache(cache.NewMemoryBackend(), nil)
	t.Cleanup(func() { _ = tc.Close() })
	fusion := NewSignalFusion(features.NewScorer(), confluence.NewEngine(confluence.DefaultConfig()), tc, metrics.Nop{}, FusionConfig{})

	p := NewPoller(PollerConfig{Symbols: []string{"BTCUSDT"}, OHLCVLimit: 30}, reg, ctrl, sampler, rm, fusion, metrics.Nop{}, nil)
	return p, fusion, rm
}

func TestPollOnceFillsSnapshotAndFuses(t *testing.T) {
	p, fusion, rm := newTestPoller(t, stubExchange{}, resources.Config{}, nil)
	ctx := context.Background()

	for _, k := range models.AllKinds {
		require.NoError(t, p.PollOnce(ctx, "BTCUSDT", k), k)
	}

	snap, ok := p.Snapshot("BTCUSDT")
	require.True(t, ok)
	assert.NotNil(t, snap.Ticker)
	assert.NotNil(t, snap.OrderBook)
	assert.Len(t, snap.Trades, 2)
	assert.Len(t, snap.Candles, 30)
	require.NotNil(t, snap.Activity)

	res, ok := fusion.Latest(ctx, "BTCUSDT")
	require.True(t, ok)
	assert.Len(t, res.Components, 6)
	assert.GreaterOrEqual(t, res.Score, 0.0)
	assert.LessOrEqual(t, res.Score, 100.0)

	// every lease is handed back
	for _, k := range models.AllKinds {
		assert.Zero(t, rm.InFlight("poller:"+string(k)))
	}
}

func TestPollOnceSkipsOnUpstreamError(t *testing.T) {
	fatal := models.NewUpstreamError(models.Fatal, "fetch_ohlcv", errors.New("bad symbol"))
	p, fusion, _ := newTestPoller(t, stubExchange{ohlcvErr: fatal}, resources.Config{}, nil)

	err := p.PollOnce(context.Background(), "BTCUSDT", models.KindOHLCV)
	require.Error(t, err)
	assert.Equal(t, models.Fatal, models.KindOf(err))

	snap, _ := p.Snapshot("BTCUSDT")
	assert.Empty(t, snap.Candles)
	_, ok := fusion.Latest(context.Background(), "BTCUSDT")
	assert.False(t, ok)
}

func TestPollOnceDeniedByResourceManager(t *testing.T) {
	p, _, rm := newTestPoller(t, stubExchange{}, resources.Config{MaxOps: map[string]int{"poller:ticker": 1}}, nil)

	held := rm.Acquire("poller:ticker")
	require.NotNil(t, held)
	defer held.Release()

	err := p.PollOnce(context.Background(), "BTCUSDT", models.KindTicker)
	assert.ErrorIs(t, err, ErrResourceDenied)

	// other kinds have their own budget
	assert.NoError(t, p.PollOnce(context.Background(), "BTCUSDT", models.KindOrderBook))
}

type fixedProbe struct{ r resources.HostReading }

func (f fixedProbe) Read(context.Context) (resources.HostReading, error) { return f.r, nil }

func TestPollOnceReportedUsageDeniesOverBudgetKind(t *testing.T) {
	// 1000 bytes with 20% headroom leaves 800 bytes per component while
	// none is registered yet
	probe := fixedProbe{r: resources.HostReading{MemTotal: 1000, MemUsedPct: 10, CPUPercent: 10}}
	p, _, rm := newTestPoller(t, stubExchange{}, resources.Config{HeadroomPercent: 20}, probe)
	ctx := context.Background()

	rm.RecomputeThresholds(ctx)
	require.Equal(t, uint64(800), rm.Thresholds("poller:ohlcv").MemoryBytes)

	// 30 candles retained is well past 800 bytes
	require.NoError(t, p.PollOnce(ctx, "BTCUSDT", models.KindOHLCV))
	var reported resources.Usage
	for _, c := range rm.Components() {
		if c.Name == "poller:ohlcv" {
			reported = c.Usage
		}
	}
	assert.Greater(t, reported.MemoryBytes, uint64(800))

	err := p.PollOnce(ctx, "BTCUSDT", models.KindOHLCV)
	assert.ErrorIs(t, err, ErrResourceDenied)

	// a small payload stays inside the same per-component budget
	require.NoError(t, p.PollOnce(ctx, "BTCUSDT", models.KindTicker))
	assert.NoError(t, p.PollOnce(ctx, "BTCUSDT", models.KindTicker))
}

func TestPollerRunStopsOnCancel(t *testing.T) {
	p, fusion, _ := newTestPoller(t, stubExchange{}, resources.Config{}, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, ok := fusion.Latest(context.Background(), "BTCUSDT")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop")
	}
}
