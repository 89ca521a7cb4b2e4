package handler

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proxmcp/gateway/internal/api/http/middleware"
	"github.com/proxmcp/gateway/internal/upstream"
)

func setupMCPRouter(t *testing.T, upstreamURL string) *gin.Engine {
	t.Helper()
	client, err := upstream.NewClient(upstreamURL, 5*time.Second)
	require.NoError(t, err)

	h := NewMCPHandler(client)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.DeviceIDKey, "device-1")
	})
	r.Any("/api/mcp", h.Forward)
	r.Any("/api/mcp/*path", h.Forward)
	return r
}

func TestMCPForward(t *testing.T) {
	var received *http.Request
	var receivedBody string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		received = req.Clone(req.Context())
		body, _ := io.ReadAll(req.Body)
		receivedBody = string(body)
		w.Header().Set("X-Backend", "mcp")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"result":"ok"}`))
	}))
	defer backend.Close()

	r := setupMCPRouter(t, backend.URL+"/mcp")

	req, _ := http.NewRequest("POST", "/api/mcp/tools/call?verbose=1", strings.NewReader(`{"tool":"list_vms"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer dvc_secret")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, `{"result":"ok"}`, w.Body.String())
	assert.Equal(t, "mcp", w.Header().Get("X-Backend"))

	require.NotNil(t, received)
	assert.Equal(t, "POST", received.Method)
	assert.Equal(t, "/mcp/tools/call", received.URL.Path)
	assert.Equal(t, "verbose=1", received.URL.RawQuery)
	assert.Equal(t, `{"tool":"list_vms"}`, receivedBody)
	assert.Equal(t, "application/json", received.Header.Get("Content-Type"))
	// The device token must never reach the collaborator.
	assert.Empty(t, received.Header.Get("Authorization"))
}

func TestMCPForwardRootPath(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "/mcp", req.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	r := setupMCPRouter(t, backend.URL+"/mcp")

	req, _ := http.NewRequest("GET", "/api/mcp", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMCPForwardUpstreamDown(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {}))
	backend.Close() // refuse connections

	r := setupMCPRouter(t, backend.URL)

	req, _ := http.NewRequest("GET", "/api/mcp", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
}
