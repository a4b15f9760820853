package ingestion

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/oceanview/analytics-collector/internal/apperr"
	"github.com/oceanview/analytics-collector/internal/logger"
	"github.com/oceanview/analytics-collector/internal/queue"
)

// rateLimitMiddleware enforces the per-client-IP fixed one-minute window
// kept in Redis. Unlike the teacher's in-process token bucket, this is shared
// across every instance behind the load balancer, which is what lets the
// limit mean the same thing regardless of which instance serves a request.
func rateLimitMiddleware(limiter *queue.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		identifier := c.ClientIP()

		allowed, retryAfter, err := limiter.Allow(c.Request.Context(), identifier)
		if err != nil {
			logger.Ingestion().Error().Err(err).Msg("rate limiter unavailable, failing open")
			c.Next()
			return
		}
		if !allowed {
			appErr := apperr.RateLimitExceeded(retryAfter)
			c.AbortWithStatusJSON(appErr.StatusCode, appErr.ToResponse(true))
			return
		}
		c.Next()
	}
}

// recovery converts a panic into a 500 instead of tearing down the
// listener, mirroring the teacher's Recovery middleware shape.
func recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Ingestion().Error().Interface("panic", r).Str("path", c.Request.URL.Path).Msg("recovered from panic")
				appErr := apperr.InternalError(nil)
				c.AbortWithStatusJSON(http.StatusInternalServerError, appErr.ToResponse(true))
			}
		}()
		c.Next()
	}
}
