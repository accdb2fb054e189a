package httputil

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/platinummonkey/bookrank/pkg/observability"
)

// RateLimitConfig defines a fixed-window limit
type RateLimitConfig struct {
	// RequestsPerWindow is the max requests allowed per client in the window
	RequestsPerWindow int `yaml:"requests_per_window"`
	// WindowDuration is the time window for rate limiting
	WindowDuration time.Duration `yaml:"window"`
	// TrustedProxies are CIDRs whose X-Forwarded-For and X-Real-IP headers are believed
	TrustedProxies []string `yaml:"trusted_proxies"`
}

// DefaultRateLimitConfig returns default rate limit settings
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerWindow: 600,
		WindowDuration:    time.Minute,
	}
}

// ParseTrustedProxies parses CIDRs or bare addresses into prefixes
func ParseTrustedProxies(entries []string) ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if !strings.Contains(entry, "/") {
			addr, err := netip.ParseAddr(entry)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
			}
			prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		prefix, err := netip.ParsePrefix(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
		}
		prefixes = append(prefixes, prefix.Masked())
	}
	return prefixes, nil
}

// allowScript counts a hit and starts the window on the first one. A key left
// without an expiry gets one here rather than blocking its client forever.
var allowScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 or redis.call('PTTL', KEYS[1]) < 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n`)

// RateLimiter counts requests per key in Redis so every instance shares the limit
type RateLimiter struct {
	client  redis.Cmdable
	config  RateLimitConfig
	prefix  string
	proxies []netip.Prefix
}

// NewRateLimiter creates a new Redis-backed rate limiter. Unparseable trusted
// proxies are ignored; config validation rejects them before startup.
func NewRateLimiter(client redis.Cmdable, config RateLimitConfig, prefix string) *RateLimiter {
	def := DefaultRateLimitConfig()
	if config.RequestsPerWindow <= 0 {
		config.RequestsPerWindow = def.RequestsPerWindow
	}
	if config.WindowDuration <= 0 {
		config.WindowDuration = def.WindowDuration
	}
	if prefix == "" {
		prefix = "ratelimit"
	}
	proxies, _ := ParseTrustedProxies(config.TrustedProxies)
	return &RateLimiter{client: client, config: config, prefix: prefix, proxies: proxies}
}

func (rl *RateLimiter) key(key string) string {
	return rl.prefix + ":" + key
}

// Allow counts one request for key. The window starts with the first request.
func (rl *RateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	count, err := allowScript.Run(ctx, rl.client, []string{rl.key(key)}, rl.config.WindowDuration.Milliseconds()).Int64()
	if err != nil {
		return true, fmt.Errorf("redis error: %w", err)
	}
	return count <= int64(rl.config.RequestsPerWindow), nil
}

// Remaining returns the number of remaining requests in the window
func (rl *RateLimiter) Remaining(ctx context.Context, key string) (int, error) {
	count, err := rl.client.Get(ctx, rl.key(key)).Int()
	if err == redis.Nil {
		return rl.config.RequestsPerWindow, nil
	} else if err != nil {
		return 0, err
	}

	remaining := rl.config.RequestsPerWindow - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// TTL returns the time until the window resets
func (rl *RateLimiter) TTL(ctx context.Context, key string) (time.Duration, error) {
	return rl.client.TTL(ctx, rl.key(key)).Result()
}

// RateLimitMiddleware limits requests per client IP. Redis errors fail open.
func RateLimitMiddleware(limiter *RateLimiter, logger *observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			key := "ip:" + limiter.ClientIP(r)

			allowed, err := limiter.Allow(ctx, key)
			if err != nil {
				logger.Ctx(ctx).WithError(err).WithField("key", key).Warn("rate limiter unavailable, allowing request")
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", limiter.config.RequestsPerWindow))
			if !allowed {
				rateLimitExceeded(ctx, w, limiter, key)
				return
			}

			if remaining, err := limiter.Remaining(ctx, key); err == nil {
				w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func rateLimitExceeded(ctx context.Context, w http.ResponseWriter, limiter *RateLimiter, key string) {
	retryAfter := limiter.config.WindowDuration
	if ttl, err := limiter.TTL(ctx, key); err == nil && ttl > 0 {
		retryAfter = ttl
	}

	w.Header().Set("Retry-After", fmt.Sprintf("%.0f", retryAfter.Seconds()))
	w.Header().Set("X-RateLimit-Remaining", "0")
	WriteErrorMessage(w, http.StatusTooManyRequests, "rate limit exceeded")
}

// ClientIP returns the address the limit is charged to. Forwarding headers are
// only read when the peer is a trusted proxy; X-Forwarded-For is walked from the
// right and the first hop that is not a trusted proxy wins.
func (rl *RateLimiter) ClientIP(r *http.Request) string {
	peer := peerAddr(r.RemoteAddr)
	if !rl.trusted(peer) {
		return peer
	}

	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		hops := strings.Split(forwarded, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop != "" && !rl.trusted(hop) {
				return hop
			}
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	return peer
}

func (rl *RateLimiter) trusted(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range rl.proxies {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func peerAddr(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}
