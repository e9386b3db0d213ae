package security

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/redis/go-redis/v9"
)

type RateLimiter struct {
	redis *redis.Client
}

func NewRateLimiter(redisClient *redis.Client) *RateLimiter {
	return &RateLimiter{redis: redisClient}
}

// OrderRateLimit caps order creation per user per minute. Redis is
// best effort: when the counter is unavailable the request proceeds,
// since the pending-order uniqueness already bounds the damage.
func (r *RateLimiter) OrderRateLimit(limit int) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			identity := UserID(c)
			if identity == "" {
				identity = c.RealIP()
			}
			key := fmt.Sprintf("ratelimit:orders:%s", identity)

			ctx := c.Request().Context()
			count, err := r.redis.Incr(ctx, key).Result()
			if err == nil {
				if count == 1 {
					r.redis.Expire(ctx, key, time.Minute)
				}
				if count > int64(limit) {
					return c.JSON(http.StatusTooManyRequests, map[string]string{
						"error": "Too many order attempts. Please try again later.",
					})
				}
			}

			return next(c)
		}
	}
}
