package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proxmcp/gateway/internal/device"
	"github.com/proxmcp/gateway/internal/ratelimit"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupGatedRouter(svc *device.Service, limiter ratelimit.Limiter) *gin.Engine {
	r := gin.New()
	gated := r.Group("/api/mcp")
	gated.Use(DeviceTokenAuth(svc, limiter))
	gated.GET("", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"device_id": c.GetString(DeviceIDKey)})
	})
	return r
}

func approvedDevice(t *testing.T, svc *device.Service) (string, string) {
	t.Helper()
	ctx := context.Background()
	deviceID, err := svc.Register(ctx, "laptop-1", "", "", "203.0.113.7")
	require.NoError(t, err)
	token, _, err := svc.Approve(ctx, deviceID, time.Hour)
	require.NoError(t, err)
	return deviceID, token
}

func doGated(r *gin.Engine, authorization string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest("GET", "/api/mcp", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestDeviceTokenAuthSuccess(t *testing.T) {
	store := device.NewMemoryStore()
	svc := device.NewService(store, ratelimit.NewWindowLimiter(nil), device.Config{})
	r := setupGatedRouter(svc, ratelimit.NewWindowLimiter(nil))

	deviceID, token := approvedDevice(t, svc)

	w := doGated(r, "Bearer "+token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), deviceID)
}

func TestDeviceTokenAuthMissingHeader(t *testing.T) {
	svc := device.NewService(device.NewMemoryStore(), ratelimit.NewWindowLimiter(nil), device.Config{})
	r := setupGatedRouter(svc, ratelimit.NewWindowLimiter(nil))

	assert.Equal(t, http.StatusUnauthorized, doGated(r, "").Code)
	assert.Equal(t, http.StatusUnauthorized, doGated(r, "Basic abc").Code)
}

func TestDeviceTokenAuthUnknownToken(t *testing.T) {
	svc := device.NewService(device.NewMemoryStore(), ratelimit.NewWindowLimiter(nil), device.Config{})
	r := setupGatedRouter(svc, ratelimit.NewWindowLimiter(nil))

	w := doGated(r, "Bearer dvc_0000000000000000000000000000000000000000000000000000000000000000")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDeviceTokenAuthRevokedToken(t *testing.T) {
	store := device.NewMemoryStore()
	svc := device.NewService(store, ratelimit.NewWindowLimiter(nil), device.Config{})
	r := setupGatedRouter(svc, ratelimit.NewWindowLimiter(nil))

	deviceID, token := approvedDevice(t, svc)
	_, err := svc.Revoke(context.Background(), deviceID, "lost device")
	require.NoError(t, err)

	unknown := doGated(r, "Bearer dvc_0000000000000000000000000000000000000000000000000000000000000000")
	revoked := doGated(r, "Bearer "+token)

	assert.Equal(t, http.StatusForbidden, revoked.Code)
	// Same body for unknown and revoked tokens, so probes learn nothing.
	assert.JSONEq(t, unknown.Body.String(), revoked.Body.String())
}

func TestDeviceTokenAuthExpiredToken(t *testing.T) {
	store := device.NewMemoryStore()
	svc := device.NewService(store, ratelimit.NewWindowLimiter(nil), device.Config{})
	r := setupGatedRouter(svc, ratelimit.NewWindowLimiter(nil))

	deviceID, token := approvedDevice(t, svc)
	_, err := store.Update(context.Background(), deviceID, func(rec *device.Record) error {
		rec.IssuedAt = time.Now().Add(-2 * time.Hour)
		rec.ExpiresAt = time.Now().Add(-time.Hour)
		return nil
	})
	require.NoError(t, err)

	w := doGated(r, "Bearer "+token)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestDeviceTokenAuthRateLimit(t *testing.T) {
	store := device.NewMemoryStore()
	svc := device.NewService(store, ratelimit.NewWindowLimiter(nil), device.Config{})
	limiter := ratelimit.NewWindowLimiter(map[ratelimit.Class]ratelimit.Limit{
		ratelimit.ClassMCPCall: {Max: 2, Window: time.Hour},
	})
	r := setupGatedRouter(svc, limiter)

	_, token := approvedDevice(t, svc)

	assert.Equal(t, http.StatusOK, doGated(r, "Bearer "+token).Code)
	assert.Equal(t, http.StatusOK, doGated(r, "Bearer "+token).Code)
	assert.Equal(t, http.StatusTooManyRequests, doGated(r, "Bearer "+token).Code)
}

func TestDeviceTokenAuthThrottledCallsDoNotCountAsUsage(t *testing.T) {
	store := device.NewMemoryStore()
	svc := device.NewService(store, ratelimit.NewWindowLimiter(nil), device.Config{})
	limiter := ratelimit.NewWindowLimiter(map[ratelimit.Class]ratelimit.Limit{
		ratelimit.ClassMCPCall: {Max: 1, Window: time.Hour},
	})
	r := setupGatedRouter(svc, limiter)

	deviceID, token := approvedDevice(t, svc)

	assert.Equal(t, http.StatusOK, doGated(r, "Bearer "+token).Code)
	assert.Equal(t, http.StatusTooManyRequests, doGated(r, "Bearer "+token).Code)
	assert.Equal(t, http.StatusTooManyRequests, doGated(r, "Bearer "+token).Code)

	rec, err := store.Get(context.Background(), deviceID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.UsageCount)
}

func TestDeviceTokenAuthRecordsUsage(t *testing.T) {
	store := device.NewMemoryStore()
	svc := device.NewService(store, ratelimit.NewWindowLimiter(nil), device.Config{})
	r := setupGatedRouter(svc, ratelimit.NewWindowLimiter(nil))

	deviceID, token := approvedDevice(t, svc)

	assert.Equal(t, http.StatusOK, doGated(r, "Bearer "+token).Code)
	assert.Equal(t, http.StatusOK, doGated(r, "Bearer "+token).Code)

	rec, err := store.Get(context.Background(), deviceID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), rec.UsageCount)
	assert.False(t, rec.LastUsedAt.IsZero())
}
