package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"UniAD/internal/domain/models"
	domrepo "UniAD/internal/domain/repository"
	pkgkafka "UniAD/pkg/kafka"
	"UniAD/pkg/logger"
)

// KafkaDetectHandler consumes detection jobs and publishes one event per job.
// Bad jobs still yield an error event; only transport failures are retried.
type KafkaDetectHandler struct {
	topic     string
	svc       *DetectionService
	publisher domrepo.EventPublisher
	metrics   domrepo.Metrics
	log       *logger.Logger
}

func NewKafkaDetectHandler(topic string, svc *DetectionService, publisher domrepo.EventPublisher, metrics domrepo.Metrics, log *logger.Logger) *KafkaDetectHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &KafkaDetectHandler{topic: topic, svc: svc, publisher: publisher, metrics: metrics, log: log}
}

func (h *KafkaDetectHandler) Topic() string { return h.topic }

// incoming message schema: DetectionJob
func (h *KafkaDetectHandler) Handle(ctx context.Context, b []byte) error {
	var job models.DetectionJob
	if err := json.Unmarshal(b, &job); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return pkgkafka.Permanent(fmt.Errorf("decode detection job: %w", err))
	}
	if start, ok := pkgkafka.StartTimeFromContext(ctx); ok {
		h.metrics.RecordLatency("job_queue_seconds", time.Since(start).Seconds())
	}

	ev := h.svc.RunJob(ctx, SourceKafka, job)

	start := time.Now()
	err := h.publisher.PublishEvent(ctx, ev)
	h.metrics.RecordLatency("event_publish_seconds", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("event_publish")
		return fmt.Errorf("publish event %s: %w", ev.ID, err)
	}
	if ev.Error != nil {
		h.log.Info("detection job rejected",
			logger.String("id", ev.ID),
			logger.String("trace_id", pkgkafka.TraceIDFromContext(ctx)),
			logger.String("code", ev.Error.Code),
		)
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaDetectHandler)(nil)
