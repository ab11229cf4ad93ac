package ratelimit

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

// maxKeys bounds the number of tracked clients; idle ones also expire.
const maxKeys = 10000

// Limiter is a token bucket per key. Buckets unused for ttl are dropped.
type Limiter struct {
	rps   rate.Limit
	burst int
	mu    sync.Mutex
	m     *expirable.LRU[string, *rate.Limiter]
}

func New(rps float64, burst int, ttl time.Duration) *Limiter {
	return &Limiter{
		rps:   rate.Limit(rps),
		burst: burst,
		m:     expirable.NewLRU[string, *rate.Limiter](maxKeys, nil, ttl),
	}
}

// Allow returns true if one token can be consumed for key.
func (l *Limiter) Allow(key string) bool {
	return l.get(key).Allow()
}

// RetryAfter estimates when the next token for key is available.
func (l *Limiter) RetryAfter(key string) time.Duration {
	r := l.get(key).Reserve()
	d := r.Delay()
	r.Cancel()
	return d
}

func (l *Limiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok := l.m.Get(key); ok {
		return lim
	}
	lim := rate.NewLimiter(l.rps, l.burst)
	l.m.Add(key, lim)
	return lim
}
