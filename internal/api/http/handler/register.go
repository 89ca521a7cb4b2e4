package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/proxmcp/gateway/internal/api/http/dto"
	"github.com/proxmcp/gateway/internal/device"
	"github.com/proxmcp/gateway/internal/ratelimit"
)

type RegisterHandler struct {
	devices *device.Service
}

func NewRegisterHandler(devices *device.Service) *RegisterHandler {
	return &RegisterHandler{devices: devices}
}

// Register accepts a self-service registration request. The caller gets a
// device_id and waits for admin approval; no credential is issued here.
func (h *RegisterHandler) Register(c *gin.Context) {
	var req dto.RegisterDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	deviceID, err := h.devices.Register(c.Request.Context(),
		req.DisplayName, req.ClientInfo, c.Request.UserAgent(), c.ClientIP())
	if err != nil {
		switch {
		case errors.Is(err, device.ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, ratelimit.ErrLimitExceeded):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded, try again later"})
		default:
			slog.Error("Failed to register device", "error", err, "client_ip", c.ClientIP())
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "registration unavailable"})
		}
		return
	}

	c.JSON(http.StatusCreated, dto.RegisterDeviceResponse{
		DeviceID: deviceID,
		Message:  "registration submitted, waiting for admin approval",
	})
}
