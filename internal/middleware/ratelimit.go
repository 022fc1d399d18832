package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-papers/internal/config"
	"github.com/stemsi/exstem-papers/internal/response"
)

// Limiter decides whether subject may perform one more request.
type Limiter interface {
	Allow(ctx context.Context, subject string) (bool, error)
}

// RateLimit rejects requests over the limiter's budget. The subject is the
// authenticated user uid, or the client IP for anonymous requests. Limiter
// errors fail open.
func RateLimit(l Limiter, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		subject := c.ClientIP()
		if claims := GetClaims(c); claims != nil {
			subject = claims.UserUID
		}

		ok, err := l.Allow(c.Request.Context(), subject)
		if err != nil {
			log.Warn().Err(err).Str("subject", subject).Msg("Rate limiter unavailable, allowing request")
			c.Next()
			return
		}
		if !ok {
			response.AbortFail(c, http.StatusTooManyRequests, response.ErrRateLimitExceeded)
			return
		}
		c.Next()
	}
}

// RedisLimiter is a fixed-window counter shared by every server instance.
type RedisLimiter struct {
	rdb    *redis.Client
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewRedisLimiter allows limit requests per window per subject.
func NewRedisLimiter(rdb *redis.Client, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, limit: limit, window: window, now: time.Now}
}

func (l *RedisLimiter) Allow(ctx context.Context, subject string) (bool, error) {
	slot := l.now().UnixNano() / int64(l.window)
	key := config.CacheKey.CreatePaperRateKey(subject, slot)

	pipe := l.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return incr.Val() <= int64(l.limit), nil
}

// LocalLimiter is an in-process token bucket, used when no Redis is
// configured.
type LocalLimiter struct {
	mu          sync.Mutex
	visitors    map[string]*visitor
	rate        int           // Tokens per interval
	interval    time.Duration // Refill interval
	lastCleanup time.Time
	now         func() time.Time
}

type visitor struct {
	tokens   int
	lastSeen time.Time
}

// NewLocalLimiter creates a LocalLimiter (e.g., 10 requests per minute).
func NewLocalLimiter(rate int, interval time.Duration) *LocalLimiter {
	return &LocalLimiter{
		visitors:    make(map[string]*visitor),
		rate:        rate,
		interval:    interval,
		lastCleanup: time.Now(),
		now:         time.Now,
	}
}

func (l *LocalLimiter) Allow(_ context.Context, subject string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastCleanup) > time.Minute {
		l.cleanup(now)
	}

	v, exists := l.visitors[subject]
	if !exists {
		v = &visitor{tokens: l.rate, lastSeen: now}
		l.visitors[subject] = v
	}

	// Refill tokens based on elapsed time.
	refill := int(now.Sub(v.lastSeen)/l.interval) * l.rate
	if refill > 0 {
		v.tokens = min(v.tokens+refill, l.rate)
		v.lastSeen = now
	}

	if v.tokens <= 0 {
		return false, nil
	}
	v.tokens--
	return true, nil
}

func (l *LocalLimiter) cleanup(now time.Time) {
	for subject, v := range l.visitors {
		if now.Sub(v.lastSeen) > 3*l.interval {
			delete(l.visitors, subject)
		}
	}
	l.lastCleanup = now
}
