package redis

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMITER
// ══════════════════════════════════════════════════════════════════════════════

// RateLimiter counts messages per user in fixed windows shared by all bot replicas.
type RateLimiter struct {
	cache  *Cache
	limit  int
	window time.Duration
}

// NewRateLimiter allows limit messages per window per user.
func NewRateLimiter(c *Cache, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{cache: c, limit: limit, window: window}
}

// Allow records one message of userID and reports whether it is within the limit.
func (l *RateLimiter) Allow(ctx context.Context, userID int64) (bool, error) {
	if l.limit <= 0 {
		return true, nil
	}
	n, err := l.cache.IncrWindow(ctx, prefixRateLimit+strconv.FormatInt(userID, 10), l.window)
	if err != nil {
		return true, err
	}
	return n <= int64(l.limit), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// IMPORT LOCK
// ══════════════════════════════════════════════════════════════════════════════

// ImportLock serializes imports across bot replicas and the CLI.
type ImportLock struct {
	cache  *Cache
	ttl    time.Duration
	logger *slog.Logger
}

// NewImportLock creates a lock that expires after ttl if its holder dies.
// Release failures are logged to logger at debug level; nil means slog.Default.
func NewImportLock(c *Cache, ttl time.Duration, logger *slog.Logger) *ImportLock {
	if logger == nil {
		logger = slog.Default()
	}
	return &ImportLock{cache: c, ttl: ttl, logger: logger}
}

// TryAcquire takes the lock if it is free. The returned release func is
// non-nil only when ok is true.
func (l *ImportLock) TryAcquire(ctx context.Context) (release func(), ok bool, err error) {
	token := uuid.NewString()
	ok, err = l.cache.SetNX(ctx, prefixLock+"import", token, l.ttl)
	if err != nil || !ok {
		return nil, false, err
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := l.cache.DeleteIfEquals(ctx, prefixLock+"import", token); err != nil {
			l.logger.Debug("import lock release failed",
				slog.String("key", prefixLock+"import"),
				slog.Duration("expires_within", l.ttl),
				slog.String("error", err.Error()),
			)
		}
	}, true, nil
}
