package http

import (
	"github.com/gin-gonic/gin"

	"github.com/proxmcp/gateway/internal/api/http/handler"
	"github.com/proxmcp/gateway/internal/api/http/middleware"
	"github.com/proxmcp/gateway/internal/device"
	"github.com/proxmcp/gateway/internal/ratelimit"
	"github.com/proxmcp/gateway/internal/upstream"
)

type Services struct {
	Devices  *device.Service
	Limiter  ratelimit.Limiter
	Upstream *upstream.Client
}

// SetupPublicRoutes wires the public surface: self-service registration and
// the token-gated privileged entry point.
func SetupPublicRoutes(engine *gin.Engine, srvs *Services) {
	engine.Use(middleware.RequestLogger())

	healthHandler := handler.NewHealthHandler()
	engine.GET("/health", healthHandler.Check)

	registerHandler := handler.NewRegisterHandler(srvs.Devices)
	engine.POST("/register", registerHandler.Register)

	mcpHandler := handler.NewMCPHandler(srvs.Upstream)
	gated := engine.Group("/api/mcp")
	gated.Use(middleware.DeviceTokenAuth(srvs.Devices, srvs.Limiter))
	gated.Any("", mcpHandler.Forward)
	gated.Any("/*path", mcpHandler.Forward)
}

// SetupAdminRoutes wires the network-restricted surface.
func SetupAdminRoutes(engine *gin.Engine, srvs *Services, adminAPIKeyHash string) {
	engine.Use(middleware.RequestLogger())

	healthHandler := handler.NewHealthHandler()
	engine.GET("/health", healthHandler.Check)

	adminHandler := handler.NewAdminHandler(srvs.Devices)
	api := engine.Group("/api")
	api.Use(middleware.AdminKeyAuth(adminAPIKeyHash))
	api.Use(middleware.RateLimitByClientIP(srvs.Limiter, ratelimit.ClassAdminAPI))
	api.GET("/pending", adminHandler.ListPending)
	api.GET("/devices", adminHandler.ListDevices)
	api.GET("/stats", adminHandler.Stats)
	api.POST("/approve/:device_id", adminHandler.Approve)
	api.POST("/reject/:device_id", adminHandler.Reject)
	api.POST("/revoke/:device_id", adminHandler.Revoke)
}
