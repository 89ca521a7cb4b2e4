package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internalhttp "github.com/proxmcp/gateway/internal/api/http"
	"github.com/proxmcp/gateway/internal/api/http/dto"
	"github.com/proxmcp/gateway/internal/db"
	"github.com/proxmcp/gateway/internal/device"
	"github.com/proxmcp/gateway/internal/ratelimit"
	"github.com/proxmcp/gateway/internal/upstream"
)

// gateway is one fully wired instance backed by a shared Postgres database.
// Tests spin up several of them to exercise restart behavior.
type gateway struct {
	pool   *pgxpool.Pool
	public *gin.Engine
	admin  *gin.Engine
}

func startGateway(t *testing.T, dbURL, upstreamURL string) *gateway {
	t.Helper()

	pool, err := db.InitDB(context.Background(), dbURL, "public")
	require.NoError(t, err)

	store := device.NewPostgresStore(pool)
	// No limits configured: these tests exercise the lifecycle, not throttling.
	limiter := ratelimit.NewWindowLimiter(nil)
	devices := device.NewService(store, limiter, device.Config{})

	client, err := upstream.NewClient(upstreamURL, 5*time.Second)
	require.NoError(t, err)

	srvs := &internalhttp.Services{Devices: devices, Limiter: limiter, Upstream: client}

	public := gin.New()
	internalhttp.SetupPublicRoutes(public, srvs)
	admin := gin.New()
	internalhttp.SetupAdminRoutes(admin, srvs, "")

	return &gateway{pool: pool, public: public, admin: admin}
}

func (g *gateway) close() {
	g.pool.Close()
}

func doJSON(t *testing.T, engine *gin.Engine, method, path string, body any, out any) int {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	if out != nil && w.Code < 300 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
	}
	return w.Code
}

func callMCP(engine *gin.Engine, token string) int {
	req, _ := http.NewRequest("GET", "/api/mcp", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w.Code
}

func findDevice(devices []dto.DeviceInfo, deviceID string) (dto.DeviceInfo, bool) {
	for _, d := range devices {
		if d.DeviceID == deviceID {
			return d, true
		}
	}
	return dto.DeviceInfo{}, false
}

// TestDeviceLifecycle walks one device through the full register, approve,
// use, revoke path over the real HTTP surfaces against Postgres.
func TestDeviceLifecycle(t *testing.T, dbURL string) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"result":"ok"}`))
	}))
	defer backend.Close()

	g := startGateway(t, dbURL, backend.URL+"/mcp")
	defer g.close()

	var reg dto.RegisterDeviceResponse
	code := doJSON(t, g.public, "POST", "/register",
		dto.RegisterDeviceRequest{DisplayName: "laptop-1", ClientInfo: "integration test"}, &reg)
	require.Equal(t, http.StatusCreated, code)
	require.NotEmpty(t, reg.DeviceID)

	var pending dto.PendingResponse
	code = doJSON(t, g.admin, "GET", "/api/pending", nil, &pending)
	require.Equal(t, http.StatusOK, code)
	found, ok := findDevice(pending.Requests, reg.DeviceID)
	require.True(t, ok)
	assert.Equal(t, "laptop-1", found.DisplayName)
	assert.Equal(t, "pending", found.State)

	var approved dto.ApproveResponse
	code = doJSON(t, g.admin, "POST", "/api/approve/"+reg.DeviceID,
		dto.ApproveRequest{TTLDays: 7}, &approved)
	require.Equal(t, http.StatusOK, code)
	require.NotEmpty(t, approved.Token)

	expiresAt, err := time.Parse(time.RFC3339, approved.ExpiresAt)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), expiresAt, time.Minute)

	// The minted token opens the gated surface.
	assert.Equal(t, http.StatusOK, callMCP(g.public, approved.Token))
	assert.Equal(t, http.StatusUnauthorized, callMCP(g.public, ""))

	code = doJSON(t, g.admin, "POST", "/api/revoke/"+reg.DeviceID,
		dto.RevokeRequest{Reason: "lost device"}, nil)
	require.Equal(t, http.StatusOK, code)

	// Revocation takes effect on the very next call.
	assert.Equal(t, http.StatusForbidden, callMCP(g.public, approved.Token))

	var listing dto.DevicesResponse
	code = doJSON(t, g.admin, "GET", "/api/devices", nil, &listing)
	require.Equal(t, http.StatusOK, code)
	revoked, ok := findDevice(listing.Devices, reg.DeviceID)
	require.True(t, ok)
	assert.Equal(t, "revoked", revoked.State)
	assert.Equal(t, "lost device", revoked.RevocationReason)
	assert.NotEmpty(t, revoked.RevokedAt)
}

// TestRevocationSurvivesRestart revokes a token on one instance, tears the
// instance down, and verifies a fresh instance still rejects the token.
func TestRevocationSurvivesRestart(t *testing.T, dbURL string) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	first := startGateway(t, dbURL, backend.URL+"/mcp")

	var reg dto.RegisterDeviceResponse
	code := doJSON(t, first.public, "POST", "/register",
		dto.RegisterDeviceRequest{DisplayName: "restart-probe"}, &reg)
	require.Equal(t, http.StatusCreated, code)

	var approved dto.ApproveResponse
	code = doJSON(t, first.admin, "POST", "/api/approve/"+reg.DeviceID, nil, &approved)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, http.StatusOK, callMCP(first.public, approved.Token))

	code = doJSON(t, first.admin, "POST", "/api/revoke/"+reg.DeviceID,
		dto.RevokeRequest{Reason: "compromised"}, nil)
	require.Equal(t, http.StatusOK, code)

	first.close()

	second := startGateway(t, dbURL, backend.URL+"/mcp")
	defer second.close()

	assert.Equal(t, http.StatusForbidden, callMCP(second.public, approved.Token))

	var listing dto.DevicesResponse
	code = doJSON(t, second.admin, "GET", "/api/devices", nil, &listing)
	require.Equal(t, http.StatusOK, code)
	rec, ok := findDevice(listing.Devices, reg.DeviceID)
	require.True(t, ok)
	assert.Equal(t, "revoked", rec.State)
	assert.Equal(t, "compromised", rec.RevocationReason)
}

// TestConcurrentApproval fires simultaneous approvals at one device and
// verifies row locking leaves exactly one live token.
func TestConcurrentApproval(t *testing.T, dbURL string) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	g := startGateway(t, dbURL, backend.URL+"/mcp")
	defer g.close()

	var reg dto.RegisterDeviceResponse
	code := doJSON(t, g.public, "POST", "/register",
		dto.RegisterDeviceRequest{DisplayName: "contended-device"}, &reg)
	require.Equal(t, http.StatusCreated, code)

	const approvers = 20
	tokens := make([]string, approvers)
	var wg sync.WaitGroup
	for i := 0; i < approvers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req, _ := http.NewRequest("POST", fmt.Sprintf("/api/approve/%s", reg.DeviceID), nil)
			w := httptest.NewRecorder()
			g.admin.ServeHTTP(w, req)
			if w.Code == http.StatusOK {
				var approved dto.ApproveResponse
				if json.Unmarshal(w.Body.Bytes(), &approved) == nil {
					tokens[i] = approved.Token
				}
			}
		}(i)
	}
	wg.Wait()

	live := 0
	for _, token := range tokens {
		if token == "" {
			continue
		}
		if callMCP(g.public, token) == http.StatusOK {
			live++
		}
	}
	assert.Equal(t, 1, live, "exactly one token must survive concurrent approvals")
}
