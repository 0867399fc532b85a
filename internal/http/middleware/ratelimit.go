package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	// bucketTTL is how long an idle bucket survives.
	bucketTTL = 10 * time.Minute
	// sweepEvery is the number of lookups between idle-bucket sweeps.
	sweepEvery = 5000
)

// keyFunc maps a request to its bucket.
type keyFunc func(*gin.Context) string

// KeyByUserOrIP buckets identified callers by user and everyone else by
// client IP. The prefixes keep both namespaces apart.
func KeyByUserOrIP() keyFunc {
	return func(c *gin.Context) string {
		if uid := explicitUserID(c); uid != "" {
			return "user:" + uid
		}
		return "ip:" + c.ClientIP()
	}
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a process-local token bucket per caller. Idempotent replays
// are served without drawing tokens, and WithCost lets file uploads draw
// more than one.
type RateLimiter struct {
	rps    rate.Limit
	burst  int
	keyFn  keyFunc
	costFn func(*gin.Context) int

	mu      sync.Mutex
	buckets map[string]*bucket
	ttl     time.Duration
	lookups uint64
}

// NewRateLimiter builds a limiter refilling rps tokens per second up to
// burst (minimum 1).
func NewRateLimiter(rps float64, burst int, keyFn keyFunc) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		keyFn:   keyFn,
		buckets: make(map[string]*bucket),
		ttl:     bucketTTL,
	}
}

// WithCost makes each request draw fn(c) tokens, clamped to [1, burst] so a
// full bucket always admits one request.
func (rl *RateLimiter) WithCost(fn func(*gin.Context) int) *RateLimiter {
	rl.costFn = fn
	return rl
}

func (rl *RateLimiter) cost(c *gin.Context) int {
	if rl.costFn == nil {
		return 1
	}
	return max(1, min(rl.costFn(c), rl.burst))
}

// limiterFor returns the bucket for key. The sweep runs before the lookup so
// a stale bucket is evicted even when it is the one asked for.
func (rl *RateLimiter) limiterFor(key string) *rate.Limiter {
	now := time.Now()
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.lookups++; rl.lookups >= sweepEvery {
		for k, b := range rl.buckets {
			if now.Sub(b.lastSeen) >= rl.ttl {
				delete(rl.buckets, k)
			}
		}
		rl.lookups = 0
	}

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter
}

// IsRateBypass reports whether IdempotencyValidator marked the request as a
// replay.
func IsRateBypass(c *gin.Context) bool {
	return c.GetBool(ctxKeyRateBypass)
}

// Handler enforces the limit. Rejections get a 429 JSON body and a
// Retry-After of the whole seconds until enough tokens are back.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}

		now := time.Now()
		res := rl.limiterFor(rl.keyFn(c)).ReserveN(now, rl.cost(c))
		if !res.OK() {
			rl.reject(c, 1)
			return
		}
		delay := res.DelayFrom(now)
		if delay == 0 {
			c.Next()
			return
		}
		res.CancelAt(now)
		rl.reject(c, int(math.Ceil(delay.Seconds())))
	}
}

func (rl *RateLimiter) reject(c *gin.Context, retryAfter int) {
	rateLimited.WithLabelValues(metricRoute(c)).Inc()
	c.Header("Retry-After", strconv.Itoa(max(1, retryAfter)))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"request_id": c.Writer.Header().Get(requestIDHeader),
		"code":       "rate_limited",
		"message":    "rate limit exceeded",
	})
}
