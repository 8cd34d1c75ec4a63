package middleware

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Confluence/internal/domain/models"
	"Confluence/pkg/metrics"
)

type sinkRecorder struct{ ticks []models.Tick }

func (s *sinkRecorder) Observe(t models.Tick) { s.ticks = append(s.ticks, t) }

func TestTickPipelineRejectsInvalid(t *testing.T) {
	sink := &sinkRecorder{}
	p := NewTickPipeline(sink, metrics.Nop{}, WithMaxRPS(0))
	ts := time.Unix(1_700_000_000, 0)

	bad := []*models.Tick{
		nil,
		{Price: 1, Timestamp: ts},
		{Symbol: "BTC", Price: 1},
		{Symbol: "BTC", Price: math.NaN(), Timestamp: ts},
		{Symbol: "BTC", Price: 1, Volume: math.Inf(1), Timestamp: ts},
		{Symbol: "BTC", Price: -1, Timestamp: ts},
	}
	for _, tk := range bad {
		assert.Error(t, p.Process(tk))
	}
	assert.Empty(t, sink.ticks)

	require.NoError(t, p.Process(&models.Tick{Symbol: "BTC", Price: 1, Volume: 0.5, Timestamp: ts}))
	assert.Len(t, sink.ticks, 1)
}

func TestTickPipelineCapsRatePerSymbol(t *testing.T) {
	sink := &sinkRecorder{}
	now := time.Unix(1_700_000_000, 0)
	p := NewTickPipeline(sink, metrics.Nop{}, WithMaxRPS(10), WithPipelineClock(func() time.Time { return now }))

	tick := func(sym string) *models.Tick {
		return &models.Tick{Symbol: sym, Price: 1, Volume: 1, Timestamp: now}
	}

	require.NoError(t, p.Process(tick("BTC")))
	require.NoError(t, p.Process(tick("BTC"))) // throttled, not an error
	require.NoError(t, p.Process(tick("ETH")))
	assert.Len(t, sink.ticks, 2)

	now = now.Add(100 * time.Millisecond)
	require.NoError(t, p.Process(tick("BTC")))
	assert.Len(t, sink.ticks, 3)
}
