package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/proxmcp/gateway/internal/ratelimit"
)

// RateLimitByClientIP applies the class limit keyed by source address.
func RateLimitByClientIP(limiter ratelimit.Limiter, class ratelimit.Class) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := limiter.Allow(c.Request.Context(), class, c.ClientIP())
		if err == nil {
			c.Next()
			return
		}

		if errors.Is(err, ratelimit.ErrLimitExceeded) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded, try again later"})
			return
		}
		slog.Error("Rate limiter failed", "class", class, "error", err)
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "service unavailable"})
	}
}
