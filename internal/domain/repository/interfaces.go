package repository

import (
	"context"

	"UniAD/internal/domain/models"
)

// AuditStore keeps one summary row per detection run. It never stores series
// or flags.
type AuditStore interface {
	Init(ctx context.Context) error // ensure tables, health checks
	SaveRun(ctx context.Context, run models.DetectionRun) error
	Health(ctx context.Context) error // ping
	Close() error
}

// EventPublisher delivers detection outcomes to downstream consumers.
type EventPublisher interface {
	PublishEvent(ctx context.Context, ev models.DetectionEvent) error
	Close() error
}

// ResultCache memoizes encoded responses of identical requests.
type ResultCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte)
}

type Metrics interface {
	RecordDetection(kind, outcome string, seconds float64)
	RecordFlags(kind string, raw, kept int)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
