package middleware

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taskflowio/ltq/internal/domain"
)

// luaTokenBucketScript implements a refilling token bucket entirely
// server-side: read the stored (tokens, last_refill), refill for elapsed
// time, attempt to spend cost tokens, write the new state back. Doing the
// read-refill-spend-write cycle in one script avoids a check-then-act race
// between two workers sharing the same bucket key.
const luaTokenBucketScript = `
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local refill_rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local cost = tonumber(ARGV[4])

local tokens = capacity
local last_refill = now

local data = redis.call("HMGET", key, "tokens", "last_refill")
if data[1] ~= false and data[1] ~= nil then
  tokens = tonumber(data[1])
end
if data[2] ~= false and data[2] ~= nil then
  last_refill = tonumber(data[2])
end

local delta = now - last_refill
if delta < 0 then
  delta = 0
end

tokens = math.min(capacity, tokens + delta * refill_rate)
last_refill = now

local allowed = 0
local retry_after = 0

if tokens >= cost then
  tokens = tokens - cost
  allowed = 1
else
  local shortage = cost - tokens
  if refill_rate > 0 then
    retry_after = shortage / refill_rate
  end
end

redis.call("HMSET", key, "tokens", tokens, "last_refill", last_refill)
redis.call("EXPIRE", key, 3600)

return { allowed, retry_after }
`

// DistributedMaxRate is a cluster-wide alternative to MaxRate: instead of a
// per-process token bucket, the bucket state lives in Redis under one key
// per task name, so every worker process sharing that Redis instance draws
// from the same budget. Use this instead of MaxRate when a task's rate
// limit must hold across a fleet of worker processes, not just one.
type DistributedMaxRate struct {
	client     *redis.Client
	script     *redis.Script
	capacity   float64
	refillRate float64
}

// NewDistributedMaxRate parses a "N/unit" rate string and builds a
// DistributedMaxRate backed by client, with a bucket capacity of one
// second's worth of admissions, at least 1. For rates above 1/s this allows
// a larger burst than MaxRate's burst of 1.
func NewDistributedMaxRate(client *redis.Client, rate string) (*DistributedMaxRate, error) {
	perSecond, err := ParseRate(rate)
	if err != nil {
		return nil, err
	}
	return &DistributedMaxRate{
		client:     client,
		script:     redis.NewScript(luaTokenBucketScript),
		capacity:   math.Max(1, perSecond),
		refillRate: perSecond,
	}, nil
}

func (mw *DistributedMaxRate) Handle(ctx context.Context, m *domain.Message, next Handler) error {
	allowed, retryAfter, err := mw.allow(ctx, m.TaskName)
	if err != nil {
		return fmt.Errorf("middleware: distributed max_rate: %w", err)
	}
	if !allowed {
		return domain.NewRetry(retryAfter, "rate limited")
	}
	return next(ctx, m)
}

func (mw *DistributedMaxRate) allow(ctx context.Context, taskName string) (bool, time.Duration, error) {
	now := float64(time.Now().UnixNano()) / 1e9
	key := "ltq:rate:" + taskName
	res, err := mw.script.Run(ctx, mw.client, []string{key}, mw.capacity, mw.refillRate, now, 1).Result()
	if err != nil {
		return false, 0, err
	}
	vals, ok := res.([]interface{})
	if !ok || len(vals) < 2 {
		return true, 0, nil
	}
	allowed := toInt64(vals[0]) == 1
	retryAfterSec := toFloat64(vals[1])
	return allowed, time.Duration(retryAfterSec * float64(time.Second)), nil
}

func toInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	default:
		return 0
	}
}

func toFloat64(v interface{}) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int64:
		return float64(t)
	case int:
		return float64(t)
	default:
		return 0
	}
}
