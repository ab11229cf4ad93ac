package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// LRUCache is a size-bounded in-process cache. Every entry shares one TTL;
// the ttl argument of SetBytes is ignored.
type LRUCache struct {
	lru *expirable.LRU[string, []byte]
}

func NewLRUCache(size int, ttl time.Duration) *LRUCache {
	if size <= 0 {
		size = 1024
	}
	return &LRUCache{lru: expirable.NewLRU[string, []byte](size, nil, ttl)}
}

func (c *LRUCache) GetBytes(_ context.Context, key string) ([]byte, bool, error) {
	b, ok := c.lru.Get(key)
	return b, ok, nil
}

func (c *LRUCache) SetBytes(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.lru.Add(key, value)
	return nil
}

func (c *LRUCache) Len() int { return c.lru.Len() }
