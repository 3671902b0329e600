// Package ratelimit guards the WebSocket upgrade endpoint against connect floods.
package ratelimit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/RoseWrightdev/board-game-relay/internal/config"
	"github.com/RoseWrightdev/board-game-relay/internal/logging"
	"github.com/RoseWrightdev/board-game-relay/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"go.uber.org/zap"
)

// RateLimiter enforces a per-IP connect rate limit, backed by an in-memory
// store. The relay is a single process with no durable or shared state (see
// Non-goals), so there is no Redis-backed store path here.
type RateLimiter struct {
	connect *limiter.Limiter
}

// NewRateLimiter builds a RateLimiter from the connect-rate formatted rate
// string in cfg (e.g. "20-M" for 20 per minute).
func NewRateLimiter(cfg *config.Config) (*RateLimiter, error) {
	rate, err := limiter.NewRateFromFormatted(cfg.RateLimitConnect)
	if err != nil {
		return nil, err
	}

	store := memory.NewStore()
	return &RateLimiter{
		connect: limiter.New(store, rate),
	}, nil
}

// ConnectMiddleware returns a gin middleware that rejects a client IP once it
// exceeds the configured connect rate, intended to sit in front of the
// WebSocket upgrade route.
func (rl *RateLimiter) ConnectMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()

		ctx := c.Request.Context()
		lctx, err := rl.connect.Get(ctx, ip)
		if err != nil {
			// Fail open: a broken limiter store should not take down the relay.
			logging.Error(ctx, "rate limiter store failed", zap.Error(err))
			c.Next()
			return
		}

		metrics.RateLimitRequests.WithLabelValues("connect").Inc()

		c.Header("X-RateLimit-Limit", strconv.FormatInt(lctx.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(lctx.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(lctx.Reset, 10))

		if lctx.Reached {
			metrics.RateLimitExceeded.WithLabelValues("connect", "ip").Inc()
			retryAfter := lctx.Reset - time.Now().Unix()
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "too many connection attempts",
				"retry_after": lctx.Reset,
			})
			return
		}

		c.Next()
	}
}
