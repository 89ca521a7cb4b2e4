package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// allowScript implements check-then-increment atomically so that rejected
// attempts consume no quota. The key expires with the window.
var allowScript = redis.NewScript(`
	local count = tonumber(redis.call('GET', KEYS[1]) or '0')
	if count >= tonumber(ARGV[1]) then
		return 0
	end
	count = redis.call('INCR', KEYS[1])
	if count == 1 then
		redis.call('PEXPIRE', KEYS[1], ARGV[2])
	end
	return 1
`)

// RedisLimiter is a fixed-window limiter with counters in Redis, for
// deployments running more than one gateway instance. Backend failures are
// returned to the caller, which denies the request; availability is never
// traded for an open gate.
type RedisLimiter struct {
	client *redis.Client
	limits map[Class]Limit
	prefix string
}

func NewRedisLimiter(client *redis.Client, limits map[Class]Limit) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		limits: limits,
		prefix: "ratelimit",
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, class Class, key string) error {
	limit, configured := l.limits[class]
	if !configured || limit.Max <= 0 {
		return nil
	}

	bucket := fmt.Sprintf("%s:%s:%s", l.prefix, class, key)
	allowed, err := allowScript.Run(ctx, l.client,
		[]string{bucket}, limit.Max, limit.Window.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("rate limiter unavailable: %w", err)
	}
	if allowed != 1 {
		return ErrLimitExceeded
	}
	return nil
}

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("unable to ping redis: %w", err)
	}
	return client, nil
}
