package ratelimit

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// KeyFunc extracts the throttling key for a request.
type KeyFunc func(c *gin.Context) string

// RejectFunc writes the response for a throttled request.
type RejectFunc func(c *gin.Context)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter hands out one token bucket per key and forgets idle keys.
type Limiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	every    rate.Limit
	burst    int
	expiry   time.Duration
	now      func() time.Time
}

// New builds a limiter allowing maxRequests per window per key.
func New(maxRequests int, window time.Duration) *Limiter {
	if maxRequests <= 0 {
		maxRequests = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	expiry := window * 3
	if expiry < time.Minute {
		expiry = time.Minute
	}
	return &Limiter{
		visitors: make(map[string]*visitor),
		every:    rate.Every(window / time.Duration(maxRequests)),
		burst:    maxRequests,
		expiry:   expiry,
		now:      time.Now,
	}
}

// Allow consumes a token for key.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.every, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = l.now()
	l.mu.Unlock()
	return v.limiter.Allow()
}

// Sweep drops keys idle for longer than the expiry window.
func (l *Limiter) Sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-l.expiry)
	for key, v := range l.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(l.visitors, key)
		}
	}
}

// Middleware throttles requests by key, calling reject when the bucket is empty.
func (l *Limiter) Middleware(key KeyFunc, reject RejectFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		k := key(c)
		if k == "" {
			k = c.ClientIP()
		}
		if !l.Allow(k) {
			reject(c)
			c.Abort()
			return
		}
		c.Next()
	}
}
