package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"Confluence/internal/domain/models"
	domrepo "Confluence/internal/domain/repository"
	pkgkafka "Confluence/pkg/kafka"
)

// topicPublisher is the subset of *kafka.Producer the signal publisher needs.
type topicPublisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	Close() error
}

// KafkaSignalPublisher fans fused results out to a Kafka topic keyed by
// symbol, so one symbol's signals stay ordered on one partition.
type KafkaSignalPublisher struct {
	producer topicPublisher
	topic    string
	newID    func() string
}

// NewKafkaSignalPublisher creates a Kafka-backed SignalPublisher.
func NewKafkaSignalPublisher(producer *pkgkafka.Producer, topic string) *KafkaSignalPublisher {
	return newSignalPublisher(producer, topic)
}

func newSignalPublisher(p topicPublisher, topic string) *KafkaSignalPublisher {
	return &KafkaSignalPublisher{producer: p, topic: topic, newID: uuid.NewString}
}

func (p *KafkaSignalPublisher) Publish(ctx context.Context, res *models.ConfluenceResult) error {
	if res == nil {
		return nil
	}
	ev := models.SignalEvent{ID: p.newID(), Result: *res}
	if err := p.producer.Publish(ctx, p.topic, []byte(res.Symbol), ev); err != nil {
		return fmt.Errorf("publish signal %s: %w", res.Symbol, err)
	}
	return nil
}

func (p *KafkaSignalPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

var _ domrepo.SignalPublisher = (*KafkaSignalPublisher)(nil)
