package middleware

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/proxmcp/gateway/internal/adminkey"
)

const apiKeyHeader = "X-API-Key"

// AdminKeyAuth optionally layers an API key over the admin surface. With no
// hash configured it is a pass-through: the listener binding remains the
// primary access control and this check only adds defense in depth.
func AdminKeyAuth(keyHash string) gin.HandlerFunc {
	if keyHash == "" {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		providedKey := c.GetHeader(apiKeyHeader)
		if providedKey == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing API key"})
			return
		}

		if !adminkey.Check(providedKey, keyHash) {
			slog.Warn("Invalid admin API key attempt",
				"path", c.Request.URL.Path,
				"client_ip", c.ClientIP())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid API key"})
			return
		}

		c.Next()
	}
}
