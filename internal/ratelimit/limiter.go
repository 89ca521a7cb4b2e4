package ratelimit

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"
)

// ErrLimitExceeded is returned by Allow when the (class, key) counter is at
// its threshold. A rejected attempt consumes no quota.
var ErrLimitExceeded = errors.New("rate limit exceeded")

// Class names an independently configured request category.
type Class string

const (
	ClassRegistration Class = "registration"
	ClassAdminAPI     Class = "admin-api"
	ClassMCPCall      Class = "mcp-call"
)

// Limit is a (count, window) pair for one class.
type Limit struct {
	Max    int
	Window time.Duration
}

// Limiter admits or rejects one attempt for a (class, key) pair. Allow
// returns nil to admit, ErrLimitExceeded to reject, and any other error when
// the backend is unavailable; callers treat backend errors as denial.
type Limiter interface {
	Allow(ctx context.Context, class Class, key string) error
}

const shardCount = 32

// WindowLimiter is the in-memory fixed-window implementation. Counters are
// spread over shards so that concurrent attempts for unrelated keys do not
// serialize on one lock.
type WindowLimiter struct {
	limits map[Class]Limit
	shards [shardCount]windowShard
}

type windowShard struct {
	mu      sync.Mutex
	windows map[string]*window
}

type window struct {
	resetAt time.Time
	count   int
}

func NewWindowLimiter(limits map[Class]Limit) *WindowLimiter {
	l := &WindowLimiter{limits: limits}
	for i := range l.shards {
		l.shards[i].windows = make(map[string]*window)
	}
	return l
}

func (l *WindowLimiter) Allow(ctx context.Context, class Class, key string) error {
	limit, configured := l.limits[class]
	if !configured || limit.Max <= 0 {
		return nil
	}

	bucket := string(class) + "|" + key
	shard := &l.shards[shardFor(bucket)]

	shard.mu.Lock()
	defer shard.mu.Unlock()

	now := time.Now()
	w, exists := shard.windows[bucket]
	if !exists || now.After(w.resetAt) {
		w = &window{resetAt: now.Add(limit.Window)}
		shard.windows[bucket] = w
	}

	if w.count >= limit.Max {
		return ErrLimitExceeded
	}
	w.count++
	return nil
}

// StartCleanup drops elapsed windows periodically until ctx is cancelled.
func (l *WindowLimiter) StartCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.cleanup()
		}
	}
}

func (l *WindowLimiter) cleanup() {
	now := time.Now()
	removed := 0
	for i := range l.shards {
		shard := &l.shards[i]
		shard.mu.Lock()
		for bucket, w := range shard.windows {
			if now.After(w.resetAt) {
				delete(shard.windows, bucket)
				removed++
			}
		}
		shard.mu.Unlock()
	}
	if removed > 0 {
		slog.Debug("Cleaned up rate-limit windows", "removed", removed)
	}
}

func shardFor(bucket string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(bucket))
	return h.Sum32() % shardCount
}
