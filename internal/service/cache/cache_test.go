package cache

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"UniAD/pkg/logger"
)

type mapCache struct {
	m    map[string][]byte
	err  error
	sets int
}

func newMapCache() *mapCache { return &mapCache{m: map[string][]byte{}} }

func (c *mapCache) GetBytes(_ context.Context, key string) ([]byte, bool, error) {
	if c.err != nil {
		return nil, false, c.err
	}
	b, ok := c.m[key]
	return b, ok, nil
}

func (c *mapCache) SetBytes(_ context.Context, key string, value []byte, _ time.Duration) error {
	if c.err != nil {
		return c.err
	}
	c.sets++
	c.m[key] = value
	return nil
}

func TestLRUCacheEvictsOldest(t *testing.T) {
	ctx := context.Background()
	c := NewLRUCache(2, time.Minute)

	require.NoError(t, c.SetBytes(ctx, "a", []byte("1"), 0))
	require.NoError(t, c.SetBytes(ctx, "b", []byte("2"), 0))
	require.NoError(t, c.SetBytes(ctx, "c", []byte("3"), 0))

	_, ok, _ := c.GetBytes(ctx, "a")
	assert.False(t, ok)
	b, ok, _ := c.GetBytes(ctx, "c")
	assert.True(t, ok)
	assert.Equal(t, []byte("3"), b)
	assert.Equal(t, 2, c.Len())
}

func TestLRUCacheExpires(t *testing.T) {
	ctx := context.Background()
	c := NewLRUCache(4, 20*time.Millisecond)
	require.NoError(t, c.SetBytes(ctx, "k", []byte("v"), 0))

	assert.Eventually(t, func() bool {
		_, ok, _ := c.GetBytes(ctx, "k")
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestLayeredCachePromotesFromL2(t *testing.T) {
	ctx := context.Background()
	l2 := newMapCache()
	l2.m["k"] = []byte("shared")
	lc := NewLayeredCache(NewLRUCache(4, time.Minute), l2)

	b, ok, err := lc.GetBytes(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("shared"), b)

	delete(l2.m, "k")
	b, ok, err = lc.GetBytes(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok, "served from memory after promotion")
	assert.Equal(t, []byte("shared"), b)
}

func TestLayeredCacheWritesThrough(t *testing.T) {
	ctx := context.Background()
	l2 := newMapCache()
	lc := NewLayeredCache(NewLRUCache(4, time.Minute), l2)

	require.NoError(t, lc.SetBytes(ctx, "k", []byte("v"), time.Minute))
	assert.Equal(t, 1, l2.sets)

	l2.err = errors.New("down")
	assert.Error(t, lc.SetBytes(ctx, "k2", []byte("v"), time.Minute))
	_, ok, _ := lc.l1.GetBytes(ctx, "k2")
	assert.False(t, ok)
}

func TestResultCacheDegradesToMiss(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	backend := newMapCache()
	backend.err = errors.New("connection refused")
	rc := NewResultCache(backend, time.Minute, logger.NewWithWriter(&buf))

	_, ok := rc.Get(ctx, "k")
	assert.False(t, ok)
	rc.Set(ctx, "k", []byte("v"))
	assert.Contains(t, buf.String(), "cache get failed")
	assert.Contains(t, buf.String(), "cache set failed")
}

func TestRedisCacheUnreachableReportsError(t *testing.T) {
	cli := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	rc := NewRedisCacheWithClient(cli, "uniad:")
	defer rc.Close()

	_, ok, err := rc.GetBytes(context.Background(), "k")
	assert.Error(t, err)
	assert.False(t, ok)
	assert.Equal(t, "uniad:k", rc.key("k"))
}
