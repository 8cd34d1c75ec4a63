package features

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Confluence/internal/domain/models"
)

func risingCandles(n int, start, step float64) []models.Candle {
	out := make([]models.Candle, n)
	t0 := time.Unix(1_700_000_000, 0)
	for i := range out {
		c := start + step*float64(i)
		out[i] = models.Candle{
			Bucket: t0.Add(time.Duration(i) * time.Minute),
			Open:   c - step/2,
			High:   c + 1,
			Low:    c - 1,
			Close:  c,
			Volume: 10,
		}
	}
	return out
}

func TestScorer_EmptySnapshotIsAllNaN(t *testing.T) {
	scores := NewScorer().Score(&models.Snapshot{Symbol: "BTCUSDT"})

	require.Len(t, scores, len(Dimensions))
	for name, v := range scores {
		assert.True(t, math.IsNaN(v), name)
	}
}

func TestScorer_BullishInputsScoreAboveNeutral(t *testing.T) {
	snap := &models.Snapshot{
		Symbol:  "BTCUSDT",
		Candles: risingCandles(30, 100, 0.5),
		Ticker:  &models.Ticker{Change24h: 4},
		Trades: []models.Trade{
			{Side: models.SideBuy, Size: decimal.NewFromInt(8)},
			{Side: models.SideSell, Size: decimal.NewFromInt(2)},
		},
		OrderBook: &models.OrderBook{
			Bids: []models.Level{{Size: decimal.NewFromInt(30)}},
			Asks: []models.Level{{Size: decimal.NewFromInt(10)}},
		},
		Activity: &models.ActivitySample{VolumeRatio: 2.5},
	}

	scores := NewScorer().Score(snap)
	for _, d := range Dimensions {
		assert.Greater(t, scores[d], 50.0, d)
		assert.LessOrEqual(t, scores[d], 100.0, d)
	}
	assert.InDelta(t, 80, scores[DimOrderflow], 1e-9)
	assert.InDelta(t, 75, scores[DimOrderbook], 1e-9)
}

func TestScorer_QuietVolumeIsNeutral(t *testing.T) {
	snap := &models.Snapshot{
		Candles:  risingCandles(5, 100, 1),
		Activity: &models.ActivitySample{VolumeRatio: 0.4},
	}
	scores := NewScorer().Score(snap)
	assert.Equal(t, 50.0, scores[DimVolume])
	assert.True(t, math.IsNaN(scores[DimTechnical]), "not enough candles for the MA")
}

func TestLogReturnsAndStdDev(t *testing.T) {
	r := LogReturns([]float64{100, 110, 0, 121})
	require.Len(t, r, 3)
	assert.InDelta(t, math.Log(1.1), r[0], 1e-12)
	assert.Equal(t, 0.0, r[1])
	assert.Equal(t, 0.0, r[2])

	assert.Equal(t, 0.0, StdDev([]float64{1}))
	assert.InDelta(t, 1.0, StdDev([]float64{1, 2, 3}), 1e-12)
}
