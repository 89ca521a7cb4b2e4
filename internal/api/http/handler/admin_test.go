package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proxmcp/gateway/internal/api/http/dto"
	"github.com/proxmcp/gateway/internal/device"
)

func setupAdminRouter(svc *device.Service) *gin.Engine {
	r := gin.New()
	h := NewAdminHandler(svc)
	r.GET("/api/pending", h.ListPending)
	r.GET("/api/devices", h.ListDevices)
	r.GET("/api/stats", h.Stats)
	r.POST("/api/approve/:device_id", h.Approve)
	r.POST("/api/reject/:device_id", h.Reject)
	r.POST("/api/revoke/:device_id", h.Revoke)
	return r
}

func getJSON(t *testing.T, r *gin.Engine, path string, out any) *httptest.ResponseRecorder {
	t.Helper()
	req, _ := http.NewRequest("GET", path, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if out != nil && w.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
	}
	return w
}

func TestListPendingOrdering(t *testing.T) {
	svc := newDeviceService(nil)
	r := setupAdminRouter(svc)
	ctx := context.Background()

	first, err := svc.Register(ctx, "first", "", "", "203.0.113.7")
	require.NoError(t, err)
	second, err := svc.Register(ctx, "second", "", "", "203.0.113.7")
	require.NoError(t, err)

	var resp dto.PendingResponse
	w := getJSON(t, r, "/api/pending", &resp)
	assert.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 2, resp.Count)
	assert.Equal(t, first, resp.Requests[0].DeviceID)
	assert.Equal(t, second, resp.Requests[1].DeviceID)
}

func TestApproveDevice(t *testing.T) {
	svc := newDeviceService(nil)
	r := setupAdminRouter(svc)

	deviceID, err := svc.Register(context.Background(), "laptop-1", "", "", "203.0.113.7")
	require.NoError(t, err)

	w := postJSON(t, r, "/api/approve/"+deviceID, dto.ApproveRequest{TTLDays: 7})
	assert.Equal(t, http.StatusOK, w.Code)

	var resp dto.ApproveResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, deviceID, resp.DeviceID)
	assert.Equal(t, "laptop-1", resp.DisplayName)
	assert.NotEmpty(t, resp.Token)

	expiresAt, err := time.Parse(time.RFC3339, resp.ExpiresAt)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), expiresAt, 5*time.Second)

	// The token validates and never appears in the devices listing.
	_, err = svc.Authenticate(context.Background(), resp.Token)
	assert.NoError(t, err)

	var devices dto.DevicesResponse
	getJSON(t, r, "/api/devices", &devices)
	require.Equal(t, 1, devices.Count)
	assert.Equal(t, "approved", devices.Devices[0].State)
	assert.NotContains(t, w.Body.String(), device.HashToken(resp.Token))
}

func TestApproveDeviceNotFound(t *testing.T) {
	r := setupAdminRouter(newDeviceService(nil))

	w := postJSON(t, r, "/api/approve/00000000-0000-0000-0000-000000000000", dto.ApproveRequest{})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestApproveRevokedDeviceFails(t *testing.T) {
	svc := newDeviceService(nil)
	r := setupAdminRouter(svc)
	ctx := context.Background()

	deviceID, err := svc.Register(ctx, "laptop-1", "", "", "203.0.113.7")
	require.NoError(t, err)
	_, err = svc.Revoke(ctx, deviceID, "gone")
	require.NoError(t, err)

	w := postJSON(t, r, "/api/approve/"+deviceID, dto.ApproveRequest{})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRejectDevice(t *testing.T) {
	svc := newDeviceService(nil)
	r := setupAdminRouter(svc)

	deviceID, err := svc.Register(context.Background(), "laptop-1", "", "", "203.0.113.7")
	require.NoError(t, err)

	w := postJSON(t, r, "/api/reject/"+deviceID, gin.H{})
	assert.Equal(t, http.StatusOK, w.Code)

	// Rejection is terminal.
	w = postJSON(t, r, "/api/approve/"+deviceID, dto.ApproveRequest{})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRevokeDeviceRecordsReason(t *testing.T) {
	svc := newDeviceService(nil)
	r := setupAdminRouter(svc)

	deviceID, err := svc.Register(context.Background(), "laptop-1", "", "", "203.0.113.7")
	require.NoError(t, err)
	_, _, err = svc.Approve(context.Background(), deviceID, time.Hour)
	require.NoError(t, err)

	w := postJSON(t, r, "/api/revoke/"+deviceID, dto.RevokeRequest{Reason: "lost device"})
	assert.Equal(t, http.StatusOK, w.Code)

	var devices dto.DevicesResponse
	getJSON(t, r, "/api/devices", &devices)
	require.Equal(t, 1, devices.Count)
	assert.Equal(t, "revoked", devices.Devices[0].State)
	assert.Equal(t, "lost device", devices.Devices[0].RevocationReason)
	assert.NotEmpty(t, devices.Devices[0].RevokedAt)

	// Idempotent.
	w = postJSON(t, r, "/api/revoke/"+deviceID, dto.RevokeRequest{Reason: "again"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRevokeDeviceNotFound(t *testing.T) {
	r := setupAdminRouter(newDeviceService(nil))

	w := postJSON(t, r, "/api/revoke/00000000-0000-0000-0000-000000000000", dto.RevokeRequest{})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStatsEndpoint(t *testing.T) {
	svc := newDeviceService(nil)
	r := setupAdminRouter(svc)
	ctx := context.Background()

	_, err := svc.Register(ctx, "pending", "", "", "203.0.113.7")
	require.NoError(t, err)

	approvedID, err := svc.Register(ctx, "approved", "", "", "203.0.113.7")
	require.NoError(t, err)
	_, _, err = svc.Approve(ctx, approvedID, time.Hour)
	require.NoError(t, err)

	var stats device.Stats
	w := getJSON(t, r, "/api/stats", &stats)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, stats.Pending)
	assert.Equal(t, 1, stats.Active)
	assert.Equal(t, 2, stats.Total)
}
