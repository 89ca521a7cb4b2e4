package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	internalhttp "github.com/proxmcp/gateway/internal/api/http"
	"github.com/proxmcp/gateway/internal/db"
	"github.com/proxmcp/gateway/internal/device"
	"github.com/proxmcp/gateway/internal/ratelimit"
	"github.com/proxmcp/gateway/internal/upstream"
)

var AppVersion string

func main() {
	InitConfig()

	slog.Info("MCP Device Gateway", "version", AppVersion)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	limiter := buildLimiter(ctx)
	store := buildStore(ctx)

	devices := device.NewService(store, limiter, device.Config{
		DefaultTokenTTL: time.Duration(config.Token.DefaultTTLDays) * 24 * time.Hour,
		MaxTokenTTL:     time.Duration(config.Token.MaxTTLDays) * 24 * time.Hour,
		StoreTimeout:    time.Duration(config.Storage.TimeoutSeconds) * time.Second,
	})

	upstreamClient, err := upstream.NewClient(config.Upstream.Url,
		time.Duration(config.Upstream.TimeoutSeconds)*time.Second)
	if err != nil {
		slog.Error("Invalid upstream configuration", "error", err)
		os.Exit(1)
	}

	services := &internalhttp.Services{
		Devices:  devices,
		Limiter:  limiter,
		Upstream: upstreamClient,
	}

	gin.SetMode(gin.ReleaseMode)

	publicEngine := gin.New()
	publicEngine.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"PUT", "PATCH", "GET", "POST", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	publicEngine.Use(gin.Recovery())
	internalhttp.SetupPublicRoutes(publicEngine, services)

	adminEngine := gin.New()
	adminEngine.Use(gin.Recovery())
	internalhttp.SetupAdminRoutes(adminEngine, services, config.Http.AdminAPIKeyHash)

	publicServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", config.Http.PublicPort),
		Handler:           publicEngine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// The admin surface binds to loopback unless explicitly configured onto a
	// management interface. The listener binding is the access control.
	adminBind := config.Http.AdminBind
	if adminBind == "" {
		adminBind = "127.0.0.1"
	}
	adminServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", adminBind, config.Http.AdminPort),
		Handler:           adminEngine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 2)
	go func() {
		slog.Info("Starting public server", "address", publicServer.Addr)
		if err := publicServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("public server error: %w", err)
		}
	}()

	go func() {
		slog.Info("Starting admin server", "address", adminServer.Addr)
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("admin server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		slog.Error("Server error", "error", err)
	case sig := <-sigChan:
		slog.Info("Received shutdown signal", "signal", sig)
	}

	slog.Info("Shutting down servers...")

	var wg sync.WaitGroup
	shutdownTimeout := 10 * time.Second

	for name, srv := range map[string]*http.Server{
		"public": publicServer,
		"admin":  adminServer,
	} {
		wg.Add(1)
		go func(name string, srv *http.Server) {
			defer wg.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Error("Server shutdown error", "server", name, "error", err)
			} else {
				slog.Info("Server stopped", "server", name)
			}
		}(name, srv)
	}

	wg.Wait()
	slog.Info("Shutdown complete")
}

func buildStore(ctx context.Context) device.Store {
	switch config.Storage.Backend {
	case "", "postgres":
		if err := db.RunMigrations(config.Db.Url, config.Db.Schema); err != nil {
			slog.Error("Failed to run migrations", "error", err)
			os.Exit(1)
		}
		pool, err := db.InitDB(ctx, config.Db.Url, config.Db.Schema)
		if err != nil {
			slog.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		return device.NewPostgresStore(pool)
	case "memory":
		slog.Warn("Using in-memory device store, records will not survive restart")
		return device.NewMemoryStore()
	default:
		slog.Error("Unknown storage backend", "backend", config.Storage.Backend)
		os.Exit(1)
		return nil
	}
}

func buildLimiter(ctx context.Context) ratelimit.Limiter {
	limits := map[ratelimit.Class]ratelimit.Limit{
		ratelimit.ClassRegistration: config.RateLimit.Registration.Limit(),
		ratelimit.ClassAdminAPI:     config.RateLimit.AdminAPI.Limit(),
		ratelimit.ClassMCPCall:      config.RateLimit.MCPCall.Limit(),
	}

	switch config.RateLimit.Backend {
	case "", "memory":
		limiter := ratelimit.NewWindowLimiter(limits)
		go limiter.StartCleanup(ctx, 5*time.Minute)
		return limiter
	case "redis":
		client, err := ratelimit.NewRedisClient(ctx, config.Redis.Addr, config.Redis.Password, config.Redis.Db)
		if err != nil {
			slog.Error("Failed to connect to redis", "error", err)
			os.Exit(1)
		}
		return ratelimit.NewRedisLimiter(client, limits)
	default:
		slog.Error("Unknown rate limit backend", "backend", config.RateLimit.Backend)
		os.Exit(1)
		return nil
	}
}
