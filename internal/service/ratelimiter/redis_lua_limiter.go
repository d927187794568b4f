// Package ratelimiter implements a Redis token bucket shared by all replicas.
package ratelimiter

import (
	"context"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/sales-cert-evaluator/internal/domain"
)

// BucketConfig describes one token bucket.
type BucketConfig struct {
	Capacity   int64
	RefillRate float64 // tokens per second
}

// NewBucketConfigFromPerMinute builds a bucket that refills perMinute tokens every minute.
func NewBucketConfigFromPerMinute(perMinute int) BucketConfig {
	if perMinute <= 0 {
		return BucketConfig{}
	}
	return BucketConfig{Capacity: int64(perMinute), RefillRate: float64(perMinute) / 60.0}
}

// RedisLuaLimiter implements domain.RateLimiter. Keys have the form
// "<class>:<subject>", e.g. "ai:org-42"; the bucket is configured per class
// and each subject gets its own bucket.
type RedisLuaLimiter struct {
	redis   *redis.Client
	script  *redis.Script
	mu      sync.RWMutex
	buckets map[string]BucketConfig
	now     func() time.Time
}

var _ domain.RateLimiter = (*RedisLuaLimiter)(nil)

// NewRedisLuaLimiter returns nil when rdb is nil; a nil limiter allows everything.
func NewRedisLuaLimiter(rdb *redis.Client, buckets map[string]BucketConfig) *RedisLuaLimiter {
	if rdb == nil {
		return nil
	}
	if buckets == nil {
		buckets = map[string]BucketConfig{}
	}
	return &RedisLuaLimiter{
		redis:   rdb,
		script:  redis.NewScript(luaTokenBucketScript),
		buckets: buckets,
		now:     time.Now,
	}
}

const luaTokenBucketScript = `
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local refill_rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local cost = tonumber(ARGV[4])

local tokens = capacity
local last_refill = now

local data = redis.call("HMGET", key, "tokens", "last_refill")
if data[1] then
  tokens = tonumber(data[1])
end
if data[2] then
  last_refill = tonumber(data[2])
end

local delta = math.max(0, now - last_refill)
tokens = math.min(capacity, tokens + delta * refill_rate)

local allowed = 0
local retry_after = 0
if tokens >= cost then
  tokens = tokens - cost
  allowed = 1
elseif refill_rate > 0 then
  retry_after = (cost - tokens) / refill_rate
end

redis.call("HSET", key, "tokens", tostring(tokens), "last_refill", tostring(now))
redis.call("EXPIRE", key, math.ceil(capacity / math.max(refill_rate, 0.001)) + 60)

return { allowed, tostring(tokens), tostring(retry_after) }
`

func class(key string) string {
	if i := strings.IndexByte(key, ':'); i >= 0 {
		return key[:i]
	}
	return key
}

func (l *RedisLuaLimiter) config(key string) (BucketConfig, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if cfg, ok := l.buckets[key]; ok {
		return cfg, true
	}
	cfg, ok := l.buckets[class(key)]
	return cfg, ok
}

// Allow takes cost tokens from the bucket of key. Unconfigured keys and Redis
// failures are allowed; the error is still returned so callers can log it.
func (l *RedisLuaLimiter) Allow(ctx context.Context, key string, cost int64) (bool, time.Duration, error) {
	if l == nil || l.redis == nil {
		return true, 0, nil
	}
	cfg, ok := l.config(key)
	if !ok || cfg.Capacity <= 0 || cfg.RefillRate <= 0 {
		return true, 0, nil
	}
	if cost <= 0 {
		cost = 1
	}

	nowSec := float64(l.now().UnixNano()) / 1e9
	res, err := l.script.Run(ctx, l.redis, []string{"rate:" + key}, cfg.Capacity, cfg.RefillRate, nowSec, cost).Result()
	if err != nil {
		slog.Error("redis rate limiter script error", slog.String("key", key), slog.Any("error", err))
		return true, 0, err
	}
	vals, ok := res.([]interface{})
	if !ok || len(vals) < 3 {
		slog.Error("redis rate limiter unexpected script result", slog.String("key", key), slog.Any("result", res))
		return true, 0, nil
	}
	allowed := toFloat64(vals[0]) == 1
	retryAfter := time.Duration(toFloat64(vals[2]) * float64(time.Second)).Round(time.Millisecond)
	return allowed, retryAfter, nil
}

// SetBucketConfig updates or creates the bucket of a key or key class.
func (l *RedisLuaLimiter) SetBucketConfig(key string, cfg BucketConfig) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buckets[key] = cfg
}

func toFloat64(v interface{}) float64 {
	switch t := v.(type) {
	case int64:
		return float64(t)
	case float64:
		return t
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}
