package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter decides whether one more request for key fits its budget.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

type RateLimitConfig struct {
	IPPerMinute    int
	IPBurst        int
	StaffPerMinute int
	StaffBurst     int

	// Redis, when set, shares the budget across instances with a sliding
	// one-minute window; burst settings do not apply then.
	Redis  *redis.Client
	Logger *slog.Logger
}

type RateLimiter struct {
	ipLimiter    Limiter
	staffLimiter Limiter
	logger       *slog.Logger
}

func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Redis != nil {
		return &RateLimiter{
			ipLimiter:    newRedisLimiter(cfg.Redis, "queue:ratelimit:ip", cfg.IPPerMinute, time.Minute),
			staffLimiter: newRedisLimiter(cfg.Redis, "queue:ratelimit:staff", cfg.StaffPerMinute, time.Minute),
			logger:       logger,
		}
	}
	return &RateLimiter{
		ipLimiter:    newTokenLimiter(cfg.IPPerMinute, cfg.IPBurst),
		staffLimiter: newTokenLimiter(cfg.StaffPerMinute, cfg.StaffBurst),
		logger:       logger,
	}
}

// Middleware applies the per-IP budget to every request and the per-session
// budget to staff requests. A limiter error lets the request through.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ip := clientIP(r); ip != "" && !l.allow(r.Context(), l.ipLimiter, ip) {
			writeError(w, requestIDFromRequest(r), http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}
		if !isPublicEndpoint(r) {
			if sessionID := sessionIDFromRequest(r); sessionID != "" && !l.allow(r.Context(), l.staffLimiter, sessionID) {
				writeError(w, requestIDFromRequest(r), http.StatusTooManyRequests, "rate_limited", "too many requests")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (l *RateLimiter) allow(ctx context.Context, limiter Limiter, key string) bool {
	allowed, err := limiter.Allow(ctx, key)
	if err != nil {
		l.logger.WarnContext(ctx, "rate limit check failed", "error", err)
		return true
	}
	return allowed
}

type tokenLimiter struct {
	mu     sync.Mutex
	rate   float64
	burst  float64
	bucket map[string]*bucket
}

type bucket struct {
	tokens float64
	last   time.Time
}

func newTokenLimiter(perMinute, burst int) *tokenLimiter {
	if perMinute <= 0 {
		perMinute = 60
	}
	if burst <= 0 {
		burst = 20
	}
	return &tokenLimiter{
		rate:   float64(perMinute) / 60.0,
		burst:  float64(burst),
		bucket: make(map[string]*bucket),
	}
}

func (l *tokenLimiter) Allow(_ context.Context, key string) (bool, error) {
	return l.allow(key, time.Now()), nil
}

func (l *tokenLimiter) allow(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.bucket[key]
	if !ok {
		l.bucket[key] = &bucket{tokens: l.burst - 1, last: now}
		return true
	}
	elapsed := now.Sub(b.last).Seconds()
	b.tokens = minFloat(l.burst, b.tokens+elapsed*l.rate)
	b.last = now
	if b.tokens < 1 {
		return false
	}
	b.tokens -= 1
	return true
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// slidingWindow trims entries older than the window, then admits the request
// only while the remaining count is under the limit.
var slidingWindow = redis.NewScript(`
	local key = KEYS[1]
	local window_start = tonumber(ARGV[1])
	local now = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local ttl = tonumber(ARGV[4])
	local member = ARGV[5]

	redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)
	local count = redis.call('ZCARD', key)
	if count >= limit then
		redis.call('PEXPIRE', key, ttl)
		return 0
	end
	redis.call('ZADD', key, now, member)
	redis.call('PEXPIRE', key, ttl)
	return 1
`)

type redisLimiter struct {
	client redis.Scripter
	prefix string
	limit  int
	window time.Duration
	seq    atomic.Uint64
}

func newRedisLimiter(client redis.Scripter, prefix string, limit int, window time.Duration) *redisLimiter {
	if limit <= 0 {
		limit = 60
	}
	return &redisLimiter{client: client, prefix: prefix, limit: limit, window: window}
}

func (l *redisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := time.Now()
	member := fmt.Sprintf("%d-%d", now.UnixNano(), l.seq.Add(1))
	result, err := slidingWindow.Run(ctx, l.client, []string{l.prefix + ":" + key},
		now.Add(-l.window).UnixMilli(),
		now.UnixMilli(),
		l.limit,
		l.window.Milliseconds(),
		member,
	).Int()
	if err != nil {
		return false, fmt.Errorf("redis rate limit: %w", err)
	}
	return result == 1, nil
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
