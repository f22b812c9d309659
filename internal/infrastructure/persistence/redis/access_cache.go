package redis

import (
	"context"
	"errors"
	"time"

	"github.com/jbcub/studentdir/internal/domain/access"
	"github.com/jbcub/studentdir/internal/domain/shared"
)

// AccessCache implements access.DecisionCache. A cached RoleNone is a
// remembered refusal, so unknown users don't hit Postgres on every message.
type AccessCache struct {
	cache *Cache
}

// NewAccessCache creates an AccessCache over c.
func NewAccessCache(c *Cache) *AccessCache {
	return &AccessCache{cache: c}
}

var _ access.DecisionCache = (*AccessCache)(nil)

type accessEntry struct {
	Role access.Role `json:"role"`
}

func accessKey(id shared.TelegramID) string {
	return prefixAccess + id.String()
}

// GetRole returns the cached role and whether an entry existed.
func (a *AccessCache) GetRole(ctx context.Context, id shared.TelegramID) (access.Role, bool, error) {
	var e accessEntry
	if err := a.cache.Get(ctx, accessKey(id), &e); err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return access.RoleNone, false, nil
		}
		return access.RoleNone, false, err
	}
	return e.Role, true, nil
}

// SetRole caches role for ttl.
func (a *AccessCache) SetRole(ctx context.Context, id shared.TelegramID, role access.Role, ttl time.Duration) error {
	return a.cache.Set(ctx, accessKey(id), accessEntry{Role: role}, ttl)
}

// Invalidate drops the cached decision, e.g. after /join.
func (a *AccessCache) Invalidate(ctx context.Context, id shared.TelegramID) error {
	return a.cache.Delete(ctx, accessKey(id))
}
