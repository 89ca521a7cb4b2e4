package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	internalhttp "github.com/proxmcp/gateway/internal/api/http"
	"github.com/proxmcp/gateway/internal/db"
	"github.com/proxmcp/gateway/internal/ratelimit"
)

type Config struct {
	Log       LogConfig
	Http      internalhttp.Config `mapstructure:"http"`
	Db        db.Config           `mapstructure:"db"`
	Storage   StorageConfig       `mapstructure:"storage"`
	Upstream  UpstreamConfig      `mapstructure:"upstream"`
	Token     TokenConfig         `mapstructure:"token"`
	RateLimit RateLimitConfig     `mapstructure:"rate_limit"`
	Redis     RedisConfig         `mapstructure:"redis"`
}

type StorageConfig struct {
	// "postgres" (durable, default) or "memory" (development only).
	Backend string `mapstructure:"backend"`
	// Bound on every store operation; a hung backend fails closed.
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

type UpstreamConfig struct {
	Url            string `mapstructure:"url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type TokenConfig struct {
	DefaultTTLDays int `mapstructure:"default_ttl_days"`
	MaxTTLDays     int `mapstructure:"max_ttl_days"`
}

type RateLimitConfig struct {
	// "memory" (default) or "redis" for multi-instance deployments.
	Backend      string     `mapstructure:"backend"`
	Registration ClassLimit `mapstructure:"registration"`
	AdminAPI     ClassLimit `mapstructure:"admin_api"`
	MCPCall      ClassLimit `mapstructure:"mcp_call"`
}

type ClassLimit struct {
	Max           int `mapstructure:"max"`
	WindowSeconds int `mapstructure:"window_seconds"`
}

func (l ClassLimit) Limit() ratelimit.Limit {
	return ratelimit.Limit{Max: l.Max, Window: time.Duration(l.WindowSeconds) * time.Second}
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	Db       int    `mapstructure:"db"`
}

var config Config

func InitConfig() {
	_ = godotenv.Load()

	viper.SetConfigName("application")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./cmd/gateway-server")
	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	_ = viper.BindEnv("db.url", "DATABASE_URL")
	_ = viper.BindEnv("upstream.url", "UPSTREAM_URL")
	_ = viper.BindEnv("http.admin_api_key_hash", "ADMIN_API_KEY_HASH")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")

	if err := viper.ReadInConfig(); err != nil {
		panic(err)
	}

	if err := viper.Unmarshal(&config); err != nil {
		panic(err)
	}

	initLogger(config.Log.Level)

	if strings.ToUpper(config.Log.Level) == LOG_LEVEL_DEBUG {
		configJSON, err := json.MarshalIndent(config, "", "  ")
		if err == nil {
			fmt.Println("Config loaded:")
			fmt.Println(string(configJSON))
		}
	}
}
