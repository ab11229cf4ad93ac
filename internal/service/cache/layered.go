package cache

import (
	"context"
	"time"
)

// LayeredCache implements two-level cache (L1: memory, L2: shared).
type LayeredCache struct {
	l1 *LRUCache
	l2 BytesCache
}

func NewLayeredCache(l1 *LRUCache, l2 BytesCache) *LayeredCache {
	return &LayeredCache{l1: l1, l2: l2}
}

func (lc *LayeredCache) GetBytes(ctx context.Context, key string) ([]byte, bool, error) {
	// L1: Try memory first
	if b, ok, _ := lc.l1.GetBytes(ctx, key); ok {
		return b, true, nil
	}

	// L2
	b, ok, err := lc.l2.GetBytes(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}

	// Store in memory for next time
	_ = lc.l1.SetBytes(ctx, key, b, 0)
	return b, true, nil
}

func (lc *LayeredCache) SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	// Write-through: shared tier first, then memory
	if err := lc.l2.SetBytes(ctx, key, value, ttl); err != nil {
		return err
	}
	return lc.l1.SetBytes(ctx, key, value, ttl)
}
