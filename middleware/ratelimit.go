package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"storefront-service/pkg/ctxmanage"
	"storefront-service/pkg/logkey"
)

// Limiter decides whether the caller identified by key may make another request.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RedisLimiter counts requests per key in fixed one-minute windows shared by every replica.
type RedisLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
	now    func() time.Time
}

func NewRedisLimiter(client *redis.Client, perMinute int) *RedisLimiter {
	return &RedisLimiter{client: client, limit: int64(perMinute), window: time.Minute, now: time.Now}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	slot := l.now().Unix() / int64(l.window.Seconds())
	k := fmt.Sprintf("ratelimit:%s:%d", key, slot)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.Expire(ctx, k, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("redis rate limit: %w", err)
	}
	return incr.Val() <= l.limit, nil
}

// MemoryLimiter is a per-process token bucket per key, used when Redis is not configured.
type MemoryLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	every    rate.Limit
	burst    int
}

func NewMemoryLimiter(perMinute int) *MemoryLimiter {
	perMinute = max(perMinute, 1)
	return &MemoryLimiter{
		limiters: map[string]*rate.Limiter{},
		every:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    perMinute,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(l.every, l.burst)
		l.limiters[key] = lim
	}
	l.mu.Unlock()
	return lim.Allow(), nil
}

// RateLimiter rejects callers over the limit with 429. Limiter failures let the request through.
func RateLimiter(limiter Limiter, perMinute int) gin.HandlerFunc {
	retryAfter := max(60/max(perMinute, 1), 1)
	return func(c *gin.Context) {
		traceId := ctxmanage.GetTraceIdOfRequest(c)
		key := c.FullPath() + ":" + c.ClientIP()

		allowed, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			slog.Warn("rate limiter unavailable", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
			c.Next()
			return
		}
		if !allowed {
			slog.Warn("rate limit exceeded", slog.String(logkey.TraceID, traceId), slog.String("ClientIP", c.ClientIP()))
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests, please try again later"})
			return
		}
		c.Next()
	}
}
