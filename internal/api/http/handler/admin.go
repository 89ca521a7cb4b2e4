package handler

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/proxmcp/gateway/internal/api/http/dto"
	"github.com/proxmcp/gateway/internal/device"
)

type AdminHandler struct {
	devices *device.Service
}

func NewAdminHandler(devices *device.Service) *AdminHandler {
	return &AdminHandler{devices: devices}
}

func (h *AdminHandler) ListPending(c *gin.Context) {
	records, err := h.devices.ListPending(c.Request.Context())
	if err != nil {
		respondAdminError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.PendingResponse{
		Requests: dto.FromRecords(records),
		Count:    len(records),
	})
}

func (h *AdminHandler) ListDevices(c *gin.Context) {
	records, err := h.devices.ListDevices(c.Request.Context())
	if err != nil {
		respondAdminError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.DevicesResponse{
		Devices: dto.FromRecords(records),
		Count:   len(records),
	})
}

func (h *AdminHandler) Stats(c *gin.Context) {
	stats, err := h.devices.Stats(c.Request.Context())
	if err != nil {
		respondAdminError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Approve mints a token for the device. The cleartext token appears in this
// response only; it is never retrievable again.
func (h *AdminHandler) Approve(c *gin.Context) {
	// Empty body means default TTL.
	var req dto.ApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ttl := time.Duration(req.TTLDays) * 24 * time.Hour
	token, rec, err := h.devices.Approve(c.Request.Context(), c.Param("device_id"), ttl)
	if err != nil {
		respondAdminError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ApproveResponse{
		DeviceID:    rec.DeviceID,
		DisplayName: rec.DisplayName,
		Token:       token,
		ExpiresAt:   rec.ExpiresAt.Format(time.RFC3339),
	})
}

func (h *AdminHandler) Reject(c *gin.Context) {
	rec, err := h.devices.Reject(c.Request.Context(), c.Param("device_id"))
	if err != nil {
		respondAdminError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"device_id": rec.DeviceID,
		"message":   "registration rejected",
	})
}

func (h *AdminHandler) Revoke(c *gin.Context) {
	// Empty body means default reason.
	var req dto.RevokeRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, err := h.devices.Revoke(c.Request.Context(), c.Param("device_id"), req.Reason)
	if err != nil {
		respondAdminError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"device_id": rec.DeviceID,
		"state":     string(rec.State),
		"message":   "device access revoked",
	})
}
