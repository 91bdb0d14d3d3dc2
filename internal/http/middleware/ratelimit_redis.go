package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"voltfarm/internal/logger"

	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"
)

const redisTimeout = 500 * time.Millisecond

// InitRedis connects the client shared by the rate limiters. It returns nil
// when addr is empty or the server does not answer, and the limiters then
// fall back to in-process counters.
func InitRedis(addr, password string, db int) *redis.Client {
	if addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unavailable, using in-memory rate limits", "addr", addr, "error", err)
		_ = client.Close()
		return nil
	}
	logger.Info("redis connected", "addr", addr)
	return client
}

// Limiter implements fixed-window rate limits using Redis INCR/EXPIRE.
// key format: <prefix>:<window_seconds>:<identifier>
type Limiter struct {
	redis *redis.Client
	mem   *memoryWindow
}

// NewLimiter returns a limiter backed by client, or in-memory when client is nil.
func NewLimiter(client *redis.Client) *Limiter {
	return &Limiter{redis: client, mem: newMemoryWindow()}
}

func (l *Limiter) incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	if l.redis == nil {
		return l.mem.incr(key, window), nil
	}

	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()

	val, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if val == 1 {
		// first increment, set expiry
		l.redis.Expire(ctx, key, window)
	}
	return val, nil
}

// PerIP limits requests by client IP.
func (l *Limiter) PerIP(maxRequests int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "rl:" + strconv.Itoa(maxRequests) + ":" + strconv.FormatInt(int64(window.Seconds()), 10) + ":" + c.ClientIP()
		l.check(c, key, c.FullPath(), maxRequests, window)
	}
}

// PerUser limits mutating actions per authenticated user, not per IP.
// Requires JWT middleware to run before this.
func (l *Limiter) PerUser(maxActions int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := UserID(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		key := "action_rl:" + strconv.FormatInt(userID, 10) + ":" + strconv.FormatInt(int64(window.Seconds()), 10)
		l.check(c, key, "action:"+c.FullPath(), maxActions, window)
	}
}

func (l *Limiter) check(c *gin.Context, key, endpoint string, limit int, window time.Duration) {
	val, err := l.incr(c.Request.Context(), key, window)
	if err != nil {
		// on Redis error, fail-open (allow) but set header
		c.Header("X-RateLimit-Error", "redis-error")
		c.Next()
		return
	}

	c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
	c.Header("X-RateLimit-Remaining", strconv.FormatInt(max(0, int64(limit)-val), 10))

	if val > int64(limit) {
		RLBlocked.WithLabelValues(endpoint).Inc()
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error":       "rate limit exceeded",
			"retry_after": int(window.Seconds()),
		})
		return
	}

	RLRequests.WithLabelValues(endpoint).Inc()
	c.Next()
}
