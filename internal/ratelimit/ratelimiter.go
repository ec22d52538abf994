package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"llm_router/internal/logging"
)

// Limiter decides whether a caller identified by key may proceed
type Limiter interface {
	Allow(ctx context.Context, key string) bool
}

const (
	window    = time.Minute
	keyPrefix = "ratelimit:"
)

// slidingWindowScript trims entries older than the window, admits the
// request if fewer than limit remain, and reports
// {allowed, count, oldest-score-ms}.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call("ZREMRANGEBYSCORE", key, "-inf", now - window)
local count = redis.call("ZCARD", key)
local allowed = 0
if count < limit then
	redis.call("ZADD", key, now, ARGV[4])
	count = count + 1
	allowed = 1
end
redis.call("PEXPIRE", key, window)

local oldest = redis.call("ZRANGE", key, 0, 0, "WITHSCORES")
local oldestScore = now
if oldest[2] then
	oldestScore = tonumber(oldest[2])
end
return {allowed, count, oldestScore}
`)

// RateLimiter is a Redis sorted-set sliding window shared by every gateway
// instance.
type RateLimiter struct {
	client *redis.Client
	now    func() time.Time
}

func NewRateLimiter(client *redis.Client) *RateLimiter {
	return &RateLimiter{client: client, now: time.Now}
}

// AllowWithDetails admits one request for key against a per-minute limit.
// A limit of 0 means unlimited and reports remaining = -1.
func (l *RateLimiter) AllowWithDetails(ctx context.Context, key string, limit int) (bool, int, time.Time, error) {
	if limit <= 0 {
		return true, -1, time.Time{}, nil
	}

	now := l.now().UnixMilli()
	res, err := slidingWindowScript.Run(ctx, l.client, []string{keyPrefix + key},
		now, window.Milliseconds(), limit, fmt.Sprintf("%d-%s", now, uuid.NewString())).Slice()
	if err != nil {
		return false, 0, time.Time{}, fmt.Errorf("rate limit check failed: %w", err)
	}
	if len(res) != 3 {
		return false, 0, time.Time{}, fmt.Errorf("unexpected rate limit reply: %v", res)
	}

	allowed, _ := res[0].(int64)
	count, _ := res[1].(int64)
	oldest, _ := res[2].(int64)

	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	resetAt := time.UnixMilli(oldest).Add(window)

	return allowed == 1, remaining, resetAt, nil
}

// GetCurrentUsage returns the number of requests admitted in the current window
func (l *RateLimiter) GetCurrentUsage(ctx context.Context, key string) (int64, error) {
	from := l.now().Add(-window).UnixMilli()
	return l.client.ZCount(ctx, keyPrefix+key, fmt.Sprintf("(%d", from), "+inf").Result()
}

// Reset clears the window for key
func (l *RateLimiter) Reset(ctx context.Context, key string) error {
	return l.client.Del(ctx, keyPrefix+key).Err()
}

// RedisLimiter applies one per-minute limit to every key. Redis failures
// admit the request.
type RedisLimiter struct {
	limiter   *RateLimiter
	perMinute int
}

func NewRedisLimiter(client *redis.Client, perMinute int) *RedisLimiter {
	return &RedisLimiter{limiter: NewRateLimiter(client), perMinute: perMinute}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) bool {
	allowed, _, _, err := l.limiter.AllowWithDetails(ctx, key, l.perMinute)
	if err != nil {
		logging.Warnf("rate limiter unavailable, admitting %s: %v", key, err)
		return true
	}
	return allowed
}

// LocalLimiter is an in-process token bucket per key, used when Redis is
// not configured.
type LocalLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

func NewLocalLimiter(perMinute, burst int) *LocalLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &LocalLimiter{
		limit:    rate.Limit(float64(perMinute) / window.Seconds()),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (l *LocalLimiter) Allow(_ context.Context, key string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[key] = lim
	}
	l.mu.Unlock()

	return lim.Allow()
}

// NoopLimiter admits everything
type NoopLimiter struct{}

func NewNoopLimiter() *NoopLimiter {
	return &NoopLimiter{}
}

func (NoopLimiter) Allow(context.Context, string) bool {
	return true
}

// New picks the limiter for the configured per-minute limit: none when the
// limit is 0, Redis when a client is given, otherwise in-process.
func New(client *redis.Client, perMinute, burst int) Limiter {
	switch {
	case perMinute <= 0:
		return NewNoopLimiter()
	case client != nil:
		return NewRedisLimiter(client, perMinute)
	default:
		return NewLocalLimiter(perMinute, burst)
	}
}
