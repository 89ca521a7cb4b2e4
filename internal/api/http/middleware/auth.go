package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/proxmcp/gateway/internal/device"
	"github.com/proxmcp/gateway/internal/ratelimit"
)

const (
	DeviceIDKey   = "device_id"
	DeviceNameKey = "device_name"
)

// Unknown tokens (401) and known-but-inactive tokens (403) get the same body
// so probes cannot tell a wrong token from a revoked or expired one. The
// distinction lives in the logs.
const invalidTokenMessage = "invalid or expired token"

// DeviceTokenAuth gates the privileged API surface. It validates the bearer
// token, applies the per-device rate limit, and attaches the device identity
// to the context for downstream audit logging.
func DeviceTokenAuth(devices *device.Service, limiter ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": invalidTokenMessage})
			return
		}

		token := strings.TrimPrefix(header, "Bearer ")
		rec, err := devices.Authenticate(c.Request.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, device.ErrTokenNotFound):
				slog.Warn("Unknown token presented",
					"path", c.Request.URL.Path,
					"client_ip", c.ClientIP())
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": invalidTokenMessage})
			case errors.Is(err, device.ErrTokenNotActive):
				slog.Warn("Inactive token presented",
					"path", c.Request.URL.Path,
					"client_ip", c.ClientIP(),
					"error", err)
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": invalidTokenMessage})
			default:
				// Validation could not complete; fail closed.
				slog.Error("Token validation failed", "error", err)
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "authentication unavailable"})
			}
			return
		}

		// Keyed by device_id rather than source address: one device may call
		// from many addresses.
		if err := limiter.Allow(c.Request.Context(), ratelimit.ClassMCPCall, rec.DeviceID); err != nil {
			if errors.Is(err, ratelimit.ErrLimitExceeded) {
				c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded, try again later"})
			} else {
				slog.Error("Rate limiter failed", "error", err)
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "authentication unavailable"})
			}
			return
		}

		// Usage is recorded only for calls that passed every gate, so a
		// throttled burst does not inflate the counters.
		rec, err = devices.MarkUsed(c.Request.Context(), rec.DeviceID, rec.TokenHash)
		if err != nil {
			switch {
			case errors.Is(err, device.ErrTokenNotFound):
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": invalidTokenMessage})
			case errors.Is(err, device.ErrTokenNotActive):
				slog.Warn("Token invalidated mid-request",
					"path", c.Request.URL.Path,
					"client_ip", c.ClientIP(),
					"error", err)
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": invalidTokenMessage})
			default:
				slog.Error("Token validation failed", "error", err)
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "authentication unavailable"})
			}
			return
		}

		c.Set(DeviceIDKey, rec.DeviceID)
		c.Set(DeviceNameKey, rec.DisplayName)
		c.Next()
	}
}
