package handler

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/proxmcp/gateway/internal/api/http/middleware"
	"github.com/proxmcp/gateway/internal/upstream"
)

// MCPHandler forwards validated requests to the privileged command-execution
// collaborator. It runs behind DeviceTokenAuth and performs no privileged
// work itself.
type MCPHandler struct {
	upstream *upstream.Client
}

func NewMCPHandler(client *upstream.Client) *MCPHandler {
	return &MCPHandler{upstream: client}
}

func (h *MCPHandler) Forward(c *gin.Context) {
	deviceID := c.GetString(middleware.DeviceIDKey)
	path := c.Param("path")

	slog.Info("Forwarding privileged request",
		"device_id", deviceID,
		"method", c.Request.Method,
		"path", path)

	resp, err := h.upstream.Forward(c.Request.Context(),
		c.Request.Method, path, c.Request.URL.RawQuery,
		c.Request.Header, c.Request.Body)
	if err != nil {
		slog.Error("Upstream request failed", "device_id", deviceID, "error", err)
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "upstream unavailable"})
		return
	}
	defer resp.Body.Close()

	for key, values := range resp.Header {
		for _, v := range values {
			c.Writer.Header().Add(key, v)
		}
	}
	c.Status(resp.StatusCode)
	if _, err := io.Copy(c.Writer, resp.Body); err != nil {
		slog.Warn("Failed to stream upstream response", "device_id", deviceID, "error", err)
	}
}
