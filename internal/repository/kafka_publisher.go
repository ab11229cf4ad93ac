package repository

import (
	"context"

	"UniAD/internal/domain/models"
	domrepo "UniAD/internal/domain/repository"
	pkgkafka "UniAD/pkg/kafka"
)

// KafkaEventPublisher implements EventPublisher for Kafka. Events are keyed
// by job id so every outcome of one job lands on the same partition.
type KafkaEventPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaEventPublisher(producer *pkgkafka.Producer, topic string) *KafkaEventPublisher {
	return &KafkaEventPublisher{producer: producer, topic: topic}
}

func (p *KafkaEventPublisher) PublishEvent(ctx context.Context, ev models.DetectionEvent) error {
	status := "ok"
	if ev.Error != nil {
		status = ev.Error.Code
	}
	headers := map[string]string{
		"kind":   ev.Kind,
		"status": status,
	}
	if traceID := pkgkafka.TraceIDFromContext(ctx); traceID != "" {
		headers["trace_id"] = traceID
	}
	return p.producer.Publish(ctx, p.topic, []byte(ev.ID), ev, pkgkafka.Headers(headers)...)
}

func (p *KafkaEventPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

var _ domrepo.EventPublisher = (*KafkaEventPublisher)(nil)
