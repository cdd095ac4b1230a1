package usage

import (
	"sync"

	"golang.org/x/time/rate"
)

// ClientRateLimiter hands out one token bucket per client key.
type ClientRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	r        rate.Limit
	b        int
}

// NewClientRateLimiter returns a limiter refilling at perMinute requests per minute with the given burst.
func NewClientRateLimiter(perMinute float64, burst int) *ClientRateLimiter {
	return &ClientRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		r:        rate.Limit(perMinute / 60),
		b:        burst,
	}
}

// Limiter returns the bucket for key, creating it on first use.
func (l *ClientRateLimiter) Limiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, exists := l.limiters[key]
	if !exists {
		limiter = rate.NewLimiter(l.r, l.b)
		l.limiters[key] = limiter
	}
	return limiter
}

// Allow reports whether key may make a request now.
func (l *ClientRateLimiter) Allow(key string) bool {
	return l.Limiter(key).Allow()
}
