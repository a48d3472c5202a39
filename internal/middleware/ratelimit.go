package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/movieflex/internal/config"
)

// takeToken refills the bucket at KEYS[1] for the time elapsed since its
// last refill and takes one token if there is one.  It returns
// {allowed, tokens left, ms until the next refill}.
var takeToken = redis.NewScript(`
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local refill = tonumber(ARGV[3])
local interval_ms = tonumber(ARGV[4])
local ttl = tonumber(ARGV[5])

local state = redis.call('HMGET', key, 'tokens', 'refilled_ms')
local tokens = tonumber(state[1]) or capacity
local refilled = tonumber(state[2]) or now_ms

if interval_ms > 0 then
	local steps = math.floor(math.max(0, now_ms - refilled) / interval_ms)
	if steps > 0 then
		tokens = math.min(capacity, tokens + steps * refill)
		refilled = refilled + steps * interval_ms
	end
end

local allowed = 0
local wait_ms = 0
if tokens > 0 then
	allowed = 1
	tokens = tokens - 1
else
	wait_ms = math.max(0, interval_ms - (now_ms - refilled))
end

redis.call('HSET', key, 'tokens', tokens, 'refilled_ms', refilled)
redis.call('EXPIRE', key, ttl)
return {allowed, tokens, wait_ms}
`)

// tokenBucket is the Redis-backed limiter behind NewTokenBucket.
type tokenBucket struct {
	cfg config.RateLimitConfig
	rdb *redis.Client
	log *zap.Logger
	now func() time.Time
}

type verdict struct {
	allowed   bool
	remaining int64
	wait      time.Duration
}

// NewTokenBucket limits requests per RateKey with a Redis-side token
// bucket.  Redis errors fail open.  Mount it after JWTAuth on
// authenticated groups so callers are told apart by user.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client, log *zap.Logger) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	b := &tokenBucket{cfg: cfg, rdb: rdb, log: log.Named("ratelimit"), now: time.Now}
	return b.middleware
}

func (b *tokenBucket) args(now time.Time) []interface{} {
	return []interface{}{
		now.UnixMilli(),
		int64(b.cfg.Capacity),
		int64(b.cfg.RefillTokens),
		b.cfg.RefillInterval.Milliseconds(),
		int64(b.cfg.TTL / time.Second),
	}
}

func (b *tokenBucket) take(ctx context.Context, key string) (verdict, error) {
	res, err := takeToken.Run(ctx, b.rdb, []string{key}, b.args(b.now())...).Int64Slice()
	if err != nil {
		return verdict{}, err
	}
	if len(res) != 3 {
		return verdict{}, fmt.Errorf("token bucket script returned %d values", len(res))
	}
	return verdict{allowed: res[0] == 1, remaining: res[1], wait: time.Duration(res[2]) * time.Millisecond}, nil
}

func (b *tokenBucket) middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		key := RateKey(b.cfg, c)
		v, err := b.take(c.Request().Context(), key)
		if err != nil {
			b.log.Debug("limiter unavailable", zap.String("key", key), zap.Error(err))
			return next(c)
		}

		h := c.Response().Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(b.cfg.Capacity))
		h.Set("X-RateLimit-Remaining", strconv.FormatInt(v.remaining, 10))
		if b.cfg.Debug {
			h.Set("X-RateLimit-Key", key)
		}
		if v.allowed {
			return next(c)
		}

		secs := int((v.wait + time.Second - 1) / time.Second)
		h.Set("Retry-After", strconv.Itoa(secs))
		if b.cfg.Debug {
			b.log.Info("blocked", zap.String("key", key), zap.Duration("wait", v.wait))
		}
		return c.JSON(http.StatusTooManyRequests, echo.Map{
			"error":       "too_many_requests",
			"message":     "rate limit exceeded",
			"retry_after": secs,
		})
	}
}

// RateKey names the bucket a request draws from.  Signed-in callers are
// keyed by user ID once JWTAuth has run; anyone else by client IP.
func RateKey(cfg config.RateLimitConfig, c echo.Context) string {
	parts := []string{cfg.Prefix}
	switch cfg.KeyStrategy {
	case config.RateKeyIP, config.RateKeyIPRoute:
		parts = append(parts, "ip", clientIP(c))
	default:
		parts = append(parts, caller(c)...)
	}
	switch cfg.KeyStrategy {
	case config.RateKeyIPRoute, config.RateKeyCallerRoute:
		parts = append(parts, "route", c.Request().Method+" "+c.Path())
	}
	return strings.Join(parts, ":")
}

func caller(c echo.Context) []string {
	if p := PrincipalFrom(c); p.UserID != 0 {
		return []string{"user", strconv.FormatUint(p.UserID, 10)}
	}
	return []string{"ip", clientIP(c)}
}

func clientIP(c echo.Context) string {
	if ip := c.RealIP(); ip != "" {
		return ip
	}
	return "unknown"
}
