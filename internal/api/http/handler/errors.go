package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/proxmcp/gateway/internal/device"
	"github.com/proxmcp/gateway/internal/ratelimit"
)

// respondAdminError maps service errors on the admin surface, where
// descriptive bodies are fine since network topology already trusts the
// caller. Unrecognized errors are treated as persistence failures and fail
// closed.
func respondAdminError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, device.ErrDeviceNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
	case errors.Is(err, device.ErrInvalidState):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, device.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ratelimit.ErrLimitExceeded):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
	default:
		slog.Error("Admin operation failed", "path", c.Request.URL.Path, "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage unavailable"})
	}
}
