package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMITER MIDDLEWARE
// Protects the bot from spam using a token bucket per user. Users who keep
// hitting the limit are banned for a while.
// ══════════════════════════════════════════════════════════════════════════════

// Limiter is what the bot asks before handling an update.
type Limiter interface {
	Check(ctx context.Context, telegramID int64) *RateLimitResult
}

// RateLimitConfig holds configuration for the rate limiter.
type RateLimitConfig struct {
	// RequestsPerMinute is the maximum number of requests per user per minute.
	RequestsPerMinute int

	// BurstSize is the maximum burst size (tokens in bucket at start).
	BurstSize int

	// CleanupInterval is how often to clean up expired entries.
	CleanupInterval time.Duration

	// BanDuration is how long to temporarily ban users who exceed limits.
	BanDuration time.Duration

	// BanThreshold is the number of limit violations before temporary ban.
	BanThreshold int

	// WhitelistedUsers are users exempt from rate limiting (e.g., admins).
	WhitelistedUsers map[int64]bool
}

// DefaultRateLimitConfig returns sensible defaults for rate limiting.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 20,
		BurstSize:         5,
		CleanupInterval:   5 * time.Minute,
		BanDuration:       5 * time.Minute,
		BanThreshold:      3,
		WhitelistedUsers:  make(map[int64]bool),
	}
}

// RateLimitResult represents the result of a rate limit check.
type RateLimitResult struct {
	// Allowed indicates if the request is allowed.
	Allowed bool

	// RetryAfter is how long the user should wait before retrying.
	RetryAfter time.Duration

	// IsBanned indicates if the user is temporarily banned.
	IsBanned bool

	// ResponseMessage is the message to send if rate limited.
	ResponseMessage string
}

// RateLimitMessage formats the reply for a limited user.
func RateLimitMessage(retryAfter time.Duration) string {
	seconds := int(retryAfter.Seconds())
	if seconds < 1 {
		seconds = 1
	}
	if seconds < 60 {
		return fmt.Sprintf("⏳ Too many requests. Try again in %d s.", seconds)
	}
	return fmt.Sprintf("⏳ Too many requests. Try again in %d min.", (seconds+59)/60)
}

// RateLimiter implements per-user rate limiting using the token bucket algorithm.
type RateLimiter struct {
	config  RateLimitConfig
	buckets sync.Map // map[int64]*tokenBucket
	bans    sync.Map // map[int64]time.Time (ban expiry)
	now     func() time.Time
	stop    chan struct{}
	once    sync.Once
}

// tokenBucket represents a user's rate limit state.
type tokenBucket struct {
	mu           sync.Mutex
	tokens       float64
	lastRefill   time.Time
	refillRate   float64 // tokens per second
	maxTokens    float64
	violations   int
	lastViolated time.Time
}

// NewRateLimiter creates a new rate limiter and starts its cleanup loop.
// Call Close to stop the loop.
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = DefaultRateLimitConfig().RequestsPerMinute
	}
	if config.BurstSize <= 0 {
		config.BurstSize = 1
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = DefaultRateLimitConfig().CleanupInterval
	}

	rl := &RateLimiter{
		config: config,
		now:    time.Now,
		stop:   make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Close stops the background cleanup.
func (rl *RateLimiter) Close() {
	rl.once.Do(func() { close(rl.stop) })
}

// Check checks if a request from the given user is allowed.
func (rl *RateLimiter) Check(_ context.Context, telegramID int64) *RateLimitResult {
	if rl.config.WhitelistedUsers[telegramID] {
		return &RateLimitResult{Allowed: true}
	}

	if until, banned := rl.banExpiry(telegramID); banned {
		wait := until.Sub(rl.now())
		return &RateLimitResult{
			Allowed:         false,
			IsBanned:        true,
			RetryAfter:      wait,
			ResponseMessage: RateLimitMessage(wait),
		}
	}

	bucket := rl.getBucket(telegramID)
	allowed, retryAfter := bucket.consume(rl.now())
	if allowed {
		return &RateLimitResult{Allowed: true}
	}

	if bucket.recordViolation(rl.now()) >= rl.config.BanThreshold && rl.config.BanThreshold > 0 {
		rl.bans.Store(telegramID, rl.now().Add(rl.config.BanDuration))
		retryAfter = rl.config.BanDuration
	}

	return &RateLimitResult{
		Allowed:         false,
		RetryAfter:      retryAfter,
		ResponseMessage: RateLimitMessage(retryAfter),
	}
}

// Reset resets the rate limit state for a user.
func (rl *RateLimiter) Reset(telegramID int64) {
	rl.buckets.Delete(telegramID)
	rl.bans.Delete(telegramID)
}

// getBucket returns the token bucket for a user, creating one if needed.
func (rl *RateLimiter) getBucket(telegramID int64) *tokenBucket {
	if val, ok := rl.buckets.Load(telegramID); ok {
		return val.(*tokenBucket)
	}

	bucket := &tokenBucket{
		tokens:     float64(rl.config.BurstSize),
		lastRefill: rl.now(),
		refillRate: float64(rl.config.RequestsPerMinute) / 60.0,
		maxTokens:  float64(rl.config.BurstSize),
	}

	actual, _ := rl.buckets.LoadOrStore(telegramID, bucket)
	return actual.(*tokenBucket)
}

func (rl *RateLimiter) banExpiry(telegramID int64) (time.Time, bool) {
	val, ok := rl.bans.Load(telegramID)
	if !ok {
		return time.Time{}, false
	}
	until := val.(time.Time)
	if !rl.now().Before(until) {
		rl.bans.Delete(telegramID)
		return time.Time{}, false
	}
	return until, true
}

// consume tries to take a token. Returns (allowed, retryAfter).
func (b *tokenBucket) consume(now time.Time) (bool, time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens += elapsed * b.refillRate
	if b.tokens > b.maxTokens {
		b.tokens = b.maxTokens
	}
	b.lastRefill = now

	if b.tokens >= 1.0 {
		b.tokens--
		return true, 0
	}

	deficit := 1.0 - b.tokens
	return false, time.Duration(deficit / b.refillRate * float64(time.Second))
}

// recordViolation records a violation and returns the current count.
// Violations older than five minutes are forgotten.
func (b *tokenBucket) recordViolation(now time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if now.Sub(b.lastViolated) > 5*time.Minute {
		b.violations = 0
	}
	b.violations++
	b.lastViolated = now
	return b.violations
}

// cleanupLoop periodically cleans up expired entries.
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.cleanup()
		}
	}
}

// cleanup removes idle buckets and expired bans.
func (rl *RateLimiter) cleanup() {
	now := rl.now()
	inactiveThreshold := 10 * time.Minute

	rl.buckets.Range(func(key, value any) bool {
		bucket := value.(*tokenBucket)
		bucket.mu.Lock()
		inactive := now.Sub(bucket.lastRefill) > inactiveThreshold
		bucket.mu.Unlock()

		if inactive {
			rl.buckets.Delete(key)
		}
		return true
	})

	rl.bans.Range(func(key, value any) bool {
		if !now.Before(value.(time.Time)) {
			rl.bans.Delete(key)
		}
		return true
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// SHARED RATE LIMITER
// A fixed window counter kept in Redis, so several bot replicas share one
// budget per user. Storage errors let the request through.
// ══════════════════════════════════════════════════════════════════════════════

// WindowCounter counts requests in a shared window.
type WindowCounter interface {
	Allow(ctx context.Context, userID int64) (bool, error)
}

// SharedRateLimiter adapts a WindowCounter to Limiter.
type SharedRateLimiter struct {
	counter    WindowCounter
	retryAfter time.Duration
	whitelist  map[int64]bool
	logger     *slog.Logger
}

// NewSharedRateLimiter creates a limiter over a shared counter. retryAfter
// is the hint shown to limited users, normally the counter window.
func NewSharedRateLimiter(counter WindowCounter, retryAfter time.Duration, whitelist map[int64]bool, logger *slog.Logger) *SharedRateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SharedRateLimiter{
		counter:    counter,
		retryAfter: retryAfter,
		whitelist:  whitelist,
		logger:     logger,
	}
}

// Check implements Limiter.
func (l *SharedRateLimiter) Check(ctx context.Context, telegramID int64) *RateLimitResult {
	if l.whitelist[telegramID] {
		return &RateLimitResult{Allowed: true}
	}

	ok, err := l.counter.Allow(ctx, telegramID)
	if err != nil {
		l.logger.Warn("rate limit check failed, allowing request",
			"telegram_id", telegramID,
			"error", err,
		)
		return &RateLimitResult{Allowed: true}
	}
	if !ok {
		return &RateLimitResult{
			Allowed:         false,
			RetryAfter:      l.retryAfter,
			ResponseMessage: RateLimitMessage(l.retryAfter),
		}
	}
	return &RateLimitResult{Allowed: true}
}
