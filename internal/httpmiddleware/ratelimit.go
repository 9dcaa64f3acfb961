package httpmiddleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// TokenBucket is an in-memory per-client rate limiter. Check-in kiosks retry
// aggressively on user error, so the bucket refills continuously rather than
// on a fixed window.
type TokenBucket struct {
	capacity  float64
	perSecond float64

	mu    sync.Mutex
	state map[string]*bucket
	sweep time.Time
}

type bucket struct {
	tokens float64
	last   time.Time
}

// NewTokenBucket creates a limiter allowing perMinute requests per client
// with a burst of capacity.
func NewTokenBucket(capacity, perMinute int) *TokenBucket {
	if capacity <= 0 {
		capacity = perMinute
	}
	return &TokenBucket{
		capacity:  float64(capacity),
		perSecond: float64(perMinute) / 60,
		state:     make(map[string]*bucket),
		sweep:     time.Now(),
	}
}

// GinMiddleware returns a gin handler enforcing per-IP limits.
func (l *TokenBucket) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if ip == "" {
			ip = "unknown"
		}
		if !l.allow(ip, time.Now()) {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit"})
			return
		}
		c.Next()
	}
}

func (l *TokenBucket) allow(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	// drop buckets idle long enough to have fully refilled
	if now.Sub(l.sweep) > time.Hour {
		for k, b := range l.state {
			if now.Sub(b.last).Seconds()*l.perSecond >= l.capacity {
				delete(l.state, k)
			}
		}
		l.sweep = now
	}

	b, ok := l.state[key]
	if !ok {
		l.state[key] = &bucket{tokens: l.capacity - 1, last: now}
		return true
	}

	b.tokens += now.Sub(b.last).Seconds() * l.perSecond
	if b.tokens > l.capacity {
		b.tokens = l.capacity
	}
	b.last = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}
