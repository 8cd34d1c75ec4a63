package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Confluence/internal/domain/models"
	"Confluence/internal/middleware"
	"Confluence/pkg/metrics"
)

type syncSink struct {
	mu    sync.Mutex
	ticks []models.Tick
}

func (s *syncSink) Observe(t models.Tick) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticks = append(s.ticks, t)
}

func (s *syncSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ticks)
}

// flakySource delivers one tick per Read and then fails the connection.
type flakySource struct {
	mu         sync.Mutex
	reads      int
	reconnects int
}

func (f *flakySource) Connect(context.Context) error   { return nil }
func (f *flakySource) Subscribe(context.Context) error { return nil }
func (f *flakySource) Close() error                    { return nil }
func (f *flakySource) IsConnected() bool               { return true }

func (f *flakySource) Reconnect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reconnects++
	return nil
}

func (f *flakySource) Read(ctx context.Context) (<-chan *models.Tick, <-chan error) {
	f.mu.Lock()
	f.reads++
	n := f.reads
	f.mu.Unlock()

	ticks := make(chan *models.Tick, 1)
	errs := make(chan error, 1)
	ticks <- &models.Tick{Symbol: "BTCUSDT", Price: float64(100 + n), Volume: 1, Timestamp: time.Now()}
	close(ticks)
	errs <- errors.New("connection reset")
	close(errs)
	return ticks, errs
}

func (f *flakySource) reconnectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reconnects
}

func TestTickCollectorReconnectsAndKeepsFeeding(t *testing.T) {
	sink := &syncSink{}
	pipe := middleware.NewTickPipeline(sink, metrics.Nop{}, middleware.WithMaxRPS(0))
	src := &flakySource{}
	c := NewTickCollector(src, pipe, metrics.Nop{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return sink.count() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.GreaterOrEqual(t, src.reconnectCount(), 2)
}

func TestKafkaTicksHandlerForwardsTicks(t *testing.T) {
	sink := &syncSink{}
	pipe := middleware.NewTickPipeline(sink, metrics.Nop{}, middleware.WithMaxRPS(0))
	h := NewKafkaTicksHandler("ticks", pipe, metrics.Nop{})

	assert.Equal(t, "ticks", h.Topic())
	require.NoError(t, h.Handle(context.Background(), []byte(`{"symbol":"ETHUSDT","t":1700000000000,"c":2000.5,"v":3}`)))
	require.Equal(t, 1, sink.count())
	assert.Equal(t, int64(1700000000), sink.ticks[0].Timestamp.Unix())

	require.NoError(t, h.Handle(context.Background(), []byte(`{"symbol":"ETHUSDT","t":"2023-11-14T22:13:21Z","c":2001,"v":1}`)))
	require.Equal(t, 2, sink.count())
	assert.Equal(t, int64(1700000001), sink.ticks[1].Timestamp.Unix())

	// undecodable payloads and missing timestamps are dropped, invalid ticks are reported
	assert.NoError(t, h.Handle(context.Background(), []byte(`not json`)))
	assert.NoError(t, h.Handle(context.Background(), []byte(`{"symbol":"ETHUSDT","c":2000,"v":3}`)))
	assert.Error(t, h.Handle(context.Background(), []byte(`{"symbol":"ETHUSDT","t":1700000000,"c":-1,"v":3}`)))
	assert.Equal(t, 2, sink.count())
}
