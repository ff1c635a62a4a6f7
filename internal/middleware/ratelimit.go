package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/slotmarket/backend/pkg/response"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client IP.
// The bucket holds half of the quota and refills the rest over one window,
// so no window of that length admits more than `requests` calls.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	requests int
	rate     rate.Limit
	burst    int
	window   time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

// NewRateLimiter allows at most requests per window per client.
func NewRateLimiter(requests int, window time.Duration, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if requests < 1 {
		requests = 1
	}
	burst := (requests + 1) / 2
	refill := requests - burst
	if refill == 0 {
		// A single-call quota: the next token completes exactly one window later.
		refill = 1
	}
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		requests: requests,
		rate:     rate.Limit(float64(refill) / window.Seconds()),
		burst:    burst,
		window:   window,
		now:      time.Now,
		logger:   logger,
	}
}

func (rl *RateLimiter) limiter(key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter
}

// Middleware rejects callers over quota with 429 and a Retry-After hint.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		now := rl.now()
		lim := rl.limiter(key, now)
		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.requests))
		if !lim.AllowN(now, 1) {
			retry := lim.ReserveN(now, 1)
			delay := retry.DelayFrom(now)
			retry.CancelAt(now)
			c.Header("Retry-After", strconv.Itoa(int(delay.Seconds())+1))
			rl.logger.Warn("rate limit exceeded", zap.String("client_ip", key), zap.String("path", c.Request.URL.Path))
			response.TooManyRequests(c, "Too many requests, please try again later")
			c.Abort()
			return
		}
		c.Next()
	}
}

// Sweep forgets clients idle for longer than one window.
func (rl *RateLimiter) Sweep(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for k, v := range rl.visitors {
		if now.Sub(v.lastSeen) > rl.window {
			delete(rl.visitors, k)
		}
	}
}

// StartSweeper runs Sweep every window until stop is closed.
func (rl *RateLimiter) StartSweeper(stop <-chan struct{}) {
	ticker := time.NewTicker(rl.window)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case now := <-ticker.C:
				rl.Sweep(now)
			}
		}
	}()
}
