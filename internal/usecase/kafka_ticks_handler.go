package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"Confluence/internal/domain/models"
	domrepo "Confluence/internal/domain/repository"
	"Confluence/internal/middleware"
	pkgkafka "Confluence/pkg/kafka"
	"Confluence/pkg/util"
)

// KafkaTicksHandler feeds ticks from a Kafka topic into the tick pipeline,
// for deployments where another service owns the exchange stream.
type KafkaTicksHandler struct {
	topic   string
	pipe    *middleware.TickPipeline
	metrics domrepo.Metrics
}

func NewKafkaTicksHandler(topic string, pipe *middleware.TickPipeline, metrics domrepo.Metrics) *KafkaTicksHandler {
	return &KafkaTicksHandler{topic: topic, pipe: pipe, metrics: metrics}
}

func (h *KafkaTicksHandler) Topic() string { return h.topic }

// incoming message schema: {symbol, t, c, v}; t is unix s/ms or RFC3339
func (h *KafkaTicksHandler) Handle(_ context.Context, b []byte) error {
	var m struct {
		Symbol string          `json:"symbol"`
		T      json.RawMessage `json:"t"`
		C      float64         `json:"c"`
		V      float64         `json:"v"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		// a malformed payload never decodes on retry
		return nil
	}
	ts, ok := util.ParseTime(strings.Trim(string(m.T), `"`))
	if !ok {
		h.metrics.RecordError("consumer_timestamp")
		return nil
	}
	h.metrics.RecordLatency("ingest_e2e", time.Since(ts).Seconds())

	if err := h.pipe.Process(&models.Tick{Symbol: m.Symbol, Price: m.C, Volume: m.V, Timestamp: ts}); err != nil {
		return fmt.Errorf("tick %s: %w", m.Symbol, err)
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaTicksHandler)(nil)
