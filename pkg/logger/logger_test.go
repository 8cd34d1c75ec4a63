package logger

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu      sync.Mutex
	topic   string
	batches [][]AggregatedLogEntry
}

func (p *capturePublisher) Publish(_ context.Context, topic string, _ []byte, value interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topic = topic
	p.batches = append(p.batches, value.([]AggregatedLogEntry))
	return nil
}

func (p *capturePublisher) snapshot() [][]AggregatedLogEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]AggregatedLogEntry(nil), p.batches...)
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	l, err := New(&Config{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)

	l.With(String("component", "cache")).Warn("write dropped", String("key", "confluence:BTC"), Error(errors.New("down")))
	l.Debug("filtered out")

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(b)
	assert.Contains(t, out, `"component":"cache"`)
	assert.Contains(t, out, `"key":"confluence:BTC"`)
	assert.Contains(t, out, `"error":"down"`)
	assert.NotContains(t, out, "filtered out")
}

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New(&Config{Level: "loud"})
	assert.Error(t, err)
}

func TestCollector_AggregatesRepeats(t *testing.T) {
	pub := &capturePublisher{}
	l := Nop()
	l.AddCollector(&CollectionConfig{
		TimeInterval:   time.Hour,
		CountThreshold: 2,
		Topic:          "logs",
		Publisher:      pub,
	})
	defer l.RemoveCollector()

	for i := 0; i < 3; i++ {
		l.Error("breaker open", String("endpoint", "ticker"))
	}
	l.Error("cache down", String("tier", "primary"))

	require.Eventually(t, func() bool { return len(pub.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	batch := pub.snapshot()[0]
	require.Len(t, batch, 2)
	counts := map[string]int{}
	for _, e := range batch {
		counts[e.Message] = e.Count
	}
	assert.Equal(t, 3, counts["breaker open"])
	assert.Equal(t, 1, counts["cache down"])
	assert.Equal(t, "logs", pub.topic)
}
