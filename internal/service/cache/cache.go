package cache

import (
	"context"
	"time"

	"UniAD/pkg/logger"
)

// BytesCache is a minimal cache API storing raw bytes with TTL.
type BytesCache interface {
	GetBytes(ctx context.Context, key string) (b []byte, ok bool, err error)
	SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// ResultCache adapts a BytesCache to the detection service. Backend errors
// degrade to misses and are logged, never returned.
type ResultCache struct {
	backend BytesCache
	ttl     time.Duration
	log     *logger.Logger
}

func NewResultCache(backend BytesCache, ttl time.Duration, log *logger.Logger) *ResultCache {
	if log == nil {
		log = logger.Nop()
	}
	return &ResultCache{backend: backend, ttl: ttl, log: log}
}

func (c *ResultCache) Get(ctx context.Context, key string) ([]byte, bool) {
	b, ok, err := c.backend.GetBytes(ctx, key)
	if err != nil {
		c.log.Warn("cache get failed", logger.String("key", key), logger.Error(err))
		return nil, false
	}
	return b, ok
}

func (c *ResultCache) Set(ctx context.Context, key string, value []byte) {
	if err := c.backend.SetBytes(ctx, key, value, c.ttl); err != nil {
		c.log.Warn("cache set failed", logger.String("key", key), logger.Error(err))
	}
}
