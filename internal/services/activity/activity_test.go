package activity

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Confluence/internal/domain/models"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func newClock() *clock { return &clock{now: time.Unix(1_700_000_000, 0)} }

func tick(sym string, at time.Time, price, vol float64) models.Tick {
	return models.Tick{Symbol: sym, Price: price, Volume: vol, Timestamp: at}
}

func TestSampler_VolumeRatioAgainstBaseline(t *testing.T) {
	clk := newClock()
	s := NewSampler(WithWindows(time.Minute, 5*time.Minute), WithSamplerClock(clk.Now))
	now := clk.Now()

	// 4 baseline windows with 10 volume each, then 40 in the recent window
	for i := 1; i <= 4; i++ {
		s.Observe(tick("BTC", now.Add(-time.Duration(i)*time.Minute-time.Second), 100, 10))
	}
	s.Observe(tick("BTC", now.Add(-10*time.Second), 100, 40))

	sample := s.Sample("BTC")
	assert.InDelta(t, 4.0, sample.VolumeRatio, 1e-9)
	assert.Equal(t, 1, sample.ActiveSymbols)
}

func TestSampler_NoBaselineIsRatioOne(t *testing.T) {
	clk := newClock()
	s := NewSampler(WithSamplerClock(clk.Now))
	s.Observe(tick("ETH", clk.Now(), 2000, 3))

	assert.Equal(t, 1.0, s.Sample("ETH").VolumeRatio)
	assert.Equal(t, 1.0, s.Sample("UNKNOWN").VolumeRatio)
}

func TestSampler_VolatilityIsPercentStdDevOfLogReturns(t *testing.T) {
	clk := newClock()
	s := NewSampler(WithSamplerClock(clk.Now))
	now := clk.Now()
	prices := []float64{100, 101, 100, 101, 100}
	for i, p := range prices {
		s.Observe(tick("SOL", now.Add(-time.Duration(len(prices)-i)*time.Second), p, 1))
	}

	got := s.Sample("SOL").Volatility
	r := math.Log(1.01)
	r2 := math.Log(100.0 / 101.0)
	mean := (2*r + 2*r2) / 4
	want := math.Sqrt(((r-mean)*(r-mean)*2+(r2-mean)*(r2-mean)*2)/3) * 100
	assert.InDelta(t, want, got, 1e-9)
	assert.Greater(t, got, 0.5)
}

func TestSampler_HistoryIsBoundedRing(t *testing.T) {
	clk := newClock()
	s := NewSampler(WithHistorySize(3), WithSamplerClock(clk.Now))
	for i := 0; i < 5; i++ {
		clk.mu.Lock()
		clk.now = clk.now.Add(time.Second)
		clk.mu.Unlock()
		s.Sample("BTC")
	}

	h := s.History("BTC")
	require.Len(t, h, 3)
	assert.True(t, h[0].Timestamp.Before(h[2].Timestamp))
	assert.Equal(t, clk.Now(), h[2].Timestamp)
}

func TestSampler_OutOfOrderTicksStaySorted(t *testing.T) {
	clk := newClock()
	s := NewSampler(WithSamplerClock(clk.Now))
	now := clk.Now()
	s.Observe(tick("BTC", now.Add(-2*time.Second), 100, 1))
	s.Observe(tick("BTC", now.Add(-5*time.Second), 100, 1))
	s.Observe(tick("BTC", now.Add(-time.Hour), 100, 1000))

	ticks := s.ticks["BTC"]
	require.Len(t, ticks, 2, "tick older than baseline dropped")
	assert.True(t, ticks[0].Timestamp.Before(ticks[1].Timestamp))
}

func trade(at time.Time, price, size float64, side models.Side) models.Trade {
	return models.Trade{
		Symbol:    "BTC",
		Price:     decimal.NewFromFloat(price),
		Size:      decimal.NewFromFloat(size),
		Side:      side,
		Timestamp: at,
	}
}

func TestSampler_OverlappingTradeBatchesCountedOnce(t *testing.T) {
	clk := newClock()
	s := NewSampler(WithWindows(time.Minute, 5*time.Minute), WithSamplerClock(clk.Now))
	now := clk.Now()
	for i := 1; i <= 4; i++ {
		s.Observe(tick("BTC", now.Add(-time.Duration(i)*time.Minute-time.Second), 100, 10))
	}

	batch := make([]models.Trade, 0, 10)
	for i := 10; i >= 1; i-- {
		batch = append(batch, trade(now.Add(-time.Duration(i)*time.Second), 100+float64(i), 1, models.SideBuy))
	}
	for range 3 {
		s.ObserveTrades("BTC", batch)
	}
	sample := s.Sample("BTC")
	assert.InDelta(t, 1.0, sample.VolumeRatio, 1e-9, "re-polled trades must not inflate volume")
	assert.Len(t, s.ticks["BTC"], 14)

	// the next poll shares 8 trades with the last one and adds 2
	next := append([]models.Trade(nil), batch[2:]...)
	next = append(next,
		trade(now, 99, 1, models.SideSell),
		trade(now, 99, 1, models.SideBuy),
	)
	s.ObserveTrades("BTC", next)
	assert.InDelta(t, 1.2, s.Sample("BTC").VolumeRatio, 1e-9)
}

func TestSampler_TradesAtWatermarkInstantAreDistinguished(t *testing.T) {
	clk := newClock()
	s := NewSampler(WithSamplerClock(clk.Now))
	at := clk.Now()

	s.ObserveTrades("BTC", []models.Trade{trade(at, 100, 1, models.SideBuy)})
	s.ObserveTrades("BTC", []models.Trade{
		trade(at, 100, 1, models.SideBuy),
		trade(at, 100, 2, models.SideBuy),
		trade(at.Add(-time.Second), 101, 5, models.SideSell),
	})

	ticks := s.ticks["BTC"]
	require.Len(t, ticks, 2, "repeat at the watermark and trades before it are skipped")
	assert.Equal(t, 2.0, ticks[1].Volume)
}

func TestPolicy_Base(t *testing.T) {
	p := DefaultPolicy()

	cases := []struct {
		name string
		s    models.ActivitySample
		want time.Duration
	}{
		{"volume burst", models.ActivitySample{VolumeRatio: 2.5, Volatility: 0.1}, p.MinInterval},
		{"volatility burst", models.ActivitySample{VolumeRatio: 1, Volatility: 3}, p.MinInterval},
		{"quiet", models.ActivitySample{VolumeRatio: 0.3, Volatility: 0.2}, p.MaxInterval},
		{"low volume but volatile", models.ActivitySample{VolumeRatio: 0.3, Volatility: 1}, p.DefaultInterval},
		{"normal", models.ActivitySample{VolumeRatio: 1, Volatility: 1}, p.DefaultInterval},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, p.Base(tc.s))
		})
	}
}

func TestPolicy_ForKindClampsToTwiceMax(t *testing.T) {
	p := DefaultPolicy()
	p.Multipliers[models.KindOHLCV] = 3

	assert.Equal(t, 60*time.Second, p.ForKind(p.MaxInterval, models.KindOHLCV))
	assert.Equal(t, 5*time.Second, p.ForKind(5*time.Second, models.KindOrderBook))
	assert.Equal(t, p.MinInterval, p.ForKind(p.MinInterval, "unknown"))

	p.Multipliers[models.KindTicker] = 0.1
	assert.Equal(t, p.MinInterval, p.ForKind(p.MinInterval, models.KindTicker))
}

func TestController_UpdateDrivesCurrentInterval(t *testing.T) {
	clk := newClock()
	sampler := NewSampler(WithWindows(time.Minute, 5*time.Minute), WithSamplerClock(clk.Now))
	c := NewController(DefaultPolicy(), sampler, nil)
	now := clk.Now()

	assert.Equal(t, 5*time.Second, c.CurrentInterval("BTC", models.KindTicker))
	assert.Equal(t, 10*time.Second, c.CurrentInterval("BTC", models.KindOHLCV))

	for i := 1; i <= 4; i++ {
		sampler.Observe(tick("BTC", now.Add(-time.Duration(i)*time.Minute-time.Second), 100, 10))
	}
	sampler.Observe(tick("BTC", now.Add(-5*time.Second), 100, 50))
	c.Update("BTC")

	assert.Equal(t, time.Second, c.CurrentInterval("BTC", models.KindTicker))
	assert.Equal(t, 2*time.Second, c.CurrentInterval("BTC", models.KindOHLCV))

	views := c.Snapshot()
	require.Len(t, views, 1)
	assert.Equal(t, "1s", views[0].Base)
	assert.Equal(t, "2s", views[0].PerKind["ohlcv"])
	assert.NotNil(t, views[0].LastCheck)
}
