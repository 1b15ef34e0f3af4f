package ratelimit

import (
	"context"
	"fmt"
	"time"

	"market-engine/src/logger"
	"market-engine/src/models"

	"github.com/redis/go-redis/v9"
)

// acquireScript checks and consumes both windows in one server-side step.
// Each window is a hash {remaining, reset_at(ms)}; a missing or expired
// window reads as full capacity and only gets written when a token is taken.
//
// KEYS: minute hash, day hash
// ARGV: now_ms, minute_cap, minute_ms, day_cap, day_ms, consume (0|1)
// Returns {allowed, minute_remaining, minute_reset_ms, day_remaining, day_reset_ms}
var acquireScript = redis.NewScript(`
local now = tonumber(ARGV[1])

local function window(key, cap, span)
  local v = redis.call('HMGET', key, 'remaining', 'reset_at')
  local remaining = tonumber(v[1])
  local reset_at = tonumber(v[2])
  if remaining == nil or reset_at == nil or now >= reset_at then
    return cap, now + span
  end
  if remaining > cap then
    remaining = cap
  end
  return remaining, reset_at
end

local m_rem, m_reset = window(KEYS[1], tonumber(ARGV[2]), tonumber(ARGV[3]))
local d_rem, d_reset = window(KEYS[2], tonumber(ARGV[4]), tonumber(ARGV[5]))

local allowed = 0
if ARGV[6] == '1' and m_rem > 0 and d_rem > 0 then
  m_rem = m_rem - 1
  d_rem = d_rem - 1
  allowed = 1
  redis.call('HSET', KEYS[1], 'remaining', m_rem, 'reset_at', m_reset)
  redis.call('PEXPIRE', KEYS[1], m_reset - now + 1000)
  redis.call('HSET', KEYS[2], 'remaining', d_rem, 'reset_at', d_reset)
  redis.call('PEXPIRE', KEYS[2], d_reset - now + 1000)
end

return {allowed, m_rem, m_reset, d_rem, d_reset}
`)

// RedisRateLimiter enforces a per-minute and a per-day quota per scope. The
// counters live in Redis so every engine instance shares one budget.
// Tokens are never refunded.
type RedisRateLimiter struct {
	client         redis.UniversalClient
	prefix         string
	MinuteCapacity int64
	DayCapacity    int64
	MinuteWindow   time.Duration
	DayWindow      time.Duration
	Logger         *logger.Logger
	now            func() time.Time
}

// -----------------------------------------------------------------------------

func NewRedisRateLimiter(client redis.UniversalClient, prefix string, cfg models.MRateLimitConfig, log *logger.Logger) *RedisRateLimiter {
	return &RedisRateLimiter{
		client:         client,
		prefix:         prefix,
		MinuteCapacity: cfg.PerMinute,
		DayCapacity:    cfg.PerDay,
		MinuteWindow:   time.Minute,
		DayWindow:      24 * time.Hour,
		Logger:         log,
		now:            time.Now,
	}
}

// WithClock replaces the time source; the script trusts the caller's clock.
func (l *RedisRateLimiter) WithClock(now func() time.Time) *RedisRateLimiter {
	l.now = now
	return l
}

// -----------------------------------------------------------------------------

// TryAcquire consumes one token from both windows, or none at all.
func (l *RedisRateLimiter) TryAcquire(ctx context.Context, scope string) (models.MAcquireResult, error) {
	now := l.now()
	allowed, quota, err := l.eval(ctx, scope, true, now)
	if err != nil {
		return models.MAcquireResult{}, err
	}

	res := models.MAcquireResult{Allowed: allowed, Quota: quota}
	if !allowed {
		res.RetryAfter = waitFor(quota, now)
		l.Logger.Debug("Scope %s denied (minute=%d day=%d), retry after %v",
			scope, quota.MinuteRemaining, quota.DayRemaining, res.RetryAfter)
	}
	return res, nil
}

// -----------------------------------------------------------------------------

// Remaining reports both windows without consuming.
func (l *RedisRateLimiter) Remaining(ctx context.Context, scope string) (models.MQuota, error) {
	_, quota, err := l.eval(ctx, scope, false, l.now())
	return quota, err
}

// -----------------------------------------------------------------------------

// WaitTime reports how long until a TryAcquire could succeed; zero when it
// could succeed now.
func (l *RedisRateLimiter) WaitTime(ctx context.Context, scope string) (time.Duration, error) {
	now := l.now()
	_, quota, err := l.eval(ctx, scope, false, now)
	if err != nil {
		return 0, err
	}
	return waitFor(quota, now), nil
}

// -----------------------------------------------------------------------------

func (l *RedisRateLimiter) eval(ctx context.Context, scope string, consume bool, now time.Time) (bool, models.MQuota, error) {
	flag := "0"
	if consume {
		flag = "1"
	}
	keys := []string{l.windowKey(scope, "minute"), l.windowKey(scope, "day")}

	vals, err := acquireScript.Run(ctx, l.client, keys,
		now.UnixMilli(),
		l.MinuteCapacity, l.MinuteWindow.Milliseconds(),
		l.DayCapacity, l.DayWindow.Milliseconds(),
		flag,
	).Int64Slice()
	if err != nil {
		return false, models.MQuota{}, fmt.Errorf("rate limit script for scope %s: %w", scope, err)
	}
	if len(vals) != 5 {
		return false, models.MQuota{}, fmt.Errorf("rate limit script for scope %s: unexpected reply %v", scope, vals)
	}

	return vals[0] == 1, models.MQuota{
		Scope:           scope,
		MinuteRemaining: vals[1],
		MinuteResetAt:   time.UnixMilli(vals[2]).UTC(),
		DayRemaining:    vals[3],
		DayResetAt:      time.UnixMilli(vals[4]).UTC(),
	}, nil
}

// windowKey uses a hash tag so both windows of a scope share a cluster slot.
func (l *RedisRateLimiter) windowKey(scope, window string) string {
	return fmt.Sprintf("%s:ratelimit:{%s}:%s", l.prefix, scope, window)
}

// waitFor is the time until the first exhausted window resets, zero when
// both windows have capacity.
func waitFor(q models.MQuota, now time.Time) time.Duration {
	wait := time.Duration(-1)
	if q.MinuteRemaining <= 0 {
		wait = q.MinuteResetAt.Sub(now)
	}
	if q.DayRemaining <= 0 {
		if d := q.DayResetAt.Sub(now); wait < 0 || d < wait {
			wait = d
		}
	}
	if wait < 0 {
		return 0
	}
	return wait
}
