// internal/middleware/rate_limit_middleware.go
package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"go.uber.org/zap"

	"pos-sync-service/internal/config"
	"pos-sync-service/internal/utils"
)

// RateLimitMiddleware throttles clients per IP with an in-memory limiter.
// It is a pass-through when rate limiting is disabled.
func RateLimitMiddleware(cfg *config.SecurityConfig, security *utils.SecurityLogger, logger *zap.Logger) gin.HandlerFunc {
	if !cfg.RateLimitEnabled || cfg.RateLimitRequests <= 0 || cfg.RateLimitWindow <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	rate := limiter.Rate{
		Period: cfg.RateLimitWindow,
		Limit:  int64(cfg.RateLimitRequests),
	}
	instance := limiter.New(memory.NewStore(), rate)

	return func(c *gin.Context) {
		clientIP := c.ClientIP()

		result, err := instance.Get(c.Request.Context(), clientIP)
		if err != nil {
			logger.Warn("Rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.Reset, 10))

		if result.Reached {
			security.LogRateLimitViolation(clientIP, c.Request.URL.Path, result.Limit, rate.Period.String())
			utils.ErrorResponse(c, http.StatusTooManyRequests, "Too many requests", nil)
			c.Abort()
			return
		}

		c.Next()
	}
}
