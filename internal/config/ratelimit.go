package config

import (
	"log"
	"strings"
	"time"
)

// Rate limit key strategies.  A caller is the signed-in user when the
// route sits behind JWTAuth and the client IP everywhere else.
const (
	RateKeyIP          = "ip"
	RateKeyIPRoute     = "ip_route"
	RateKeyCaller      = "caller"
	RateKeyCallerRoute = "caller_route"
)

// RateLimitConfig sizes the Redis token bucket in front of the API.
type RateLimitConfig struct {
	Enabled        bool
	Capacity       int // bucket size, and the burst a caller may send
	RefillTokens   int
	RefillInterval time.Duration
	TTL            time.Duration // idle buckets expire after this
	KeyStrategy    string
	Prefix         string
	Debug          bool // log blocked requests and echo X-RateLimit-Key
}

func LoadRateLimitConfig() RateLimitConfig {
	cfg := RateLimitConfig{
		Enabled:        envBool("RATE_LIMIT_ENABLED", true),
		Capacity:       envInt("RATE_LIMIT_CAPACITY", 60),
		RefillTokens:   envInt("RATE_LIMIT_REFILL_TOKENS", 1),
		RefillInterval: envDur("RATE_LIMIT_REFILL_INTERVAL", time.Second),
		TTL:            envDur("RATE_LIMIT_TTL", 10*time.Minute),
		KeyStrategy:    strings.ToLower(envStr("RATE_LIMIT_KEY_STRATEGY", RateKeyCallerRoute)),
		Prefix:         envStr("RATE_LIMIT_PREFIX", "movieflex:rl"),
		Debug:          envBool("RATE_LIMIT_DEBUG", false),
	}
	return cfg.normalized()
}

// normalized replaces values the limiter cannot work with.
func (c RateLimitConfig) normalized() RateLimitConfig {
	switch c.KeyStrategy {
	case RateKeyIP, RateKeyIPRoute, RateKeyCaller, RateKeyCallerRoute:
	default:
		log.Printf("unknown RATE_LIMIT_KEY_STRATEGY %q, using %s", c.KeyStrategy, RateKeyCallerRoute)
		c.KeyStrategy = RateKeyCallerRoute
	}
	if c.Capacity < 1 {
		c.Capacity = 1
	}
	if c.RefillTokens < 1 {
		c.RefillTokens = 1
	}
	if c.RefillInterval <= 0 {
		c.RefillInterval = time.Second
	}
	// A bucket that expires between refills would come back full.
	if floor := 5 * c.RefillInterval; c.TTL < floor {
		c.TTL = floor
	}
	return c
}
