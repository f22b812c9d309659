package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/jbcub/studentdir/internal/domain/access"
	"github.com/jbcub/studentdir/internal/domain/shared"
)

// Users is an in-memory access.Repository.
type Users struct {
	mu    sync.Mutex
	users []*access.User

	// FindErr is returned by Find when non-nil.
	FindErr error
	Finds   int
}

// NewUsers returns a fake seeded with copies of users.
func NewUsers(users ...access.User) *Users {
	u := &Users{}
	for i := range users {
		cp := users[i]
		u.users = append(u.users, &cp)
	}
	return u
}

// Find matches by Telegram ID first, then by normalized username.
func (u *Users) Find(_ context.Context, id access.Identity) (*access.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.Finds++
	if u.FindErr != nil {
		return nil, u.FindErr
	}
	if id.TelegramID.IsValid() {
		for _, user := range u.users {
			if user.TelegramID == id.TelegramID {
				cp := *user
				return &cp, nil
			}
		}
	}
	if name := access.NormalizeUsername(id.Username); name != "" {
		for _, user := range u.users {
			if access.NormalizeUsername(user.Username) == name {
				cp := *user
				return &cp, nil
			}
		}
	}
	return nil, shared.NewDomainError("access", "Find", shared.ErrNotFound, "bot user not found")
}

// Upsert stores the user; an admin is never demoted.
func (u *Users) Upsert(_ context.Context, user *access.User) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	name := access.NormalizeUsername(user.Username)
	for _, cur := range u.users {
		sameID := user.TelegramID.IsValid() && cur.TelegramID == user.TelegramID
		sameName := name != "" && !cur.TelegramID.IsValid() && access.NormalizeUsername(cur.Username) == name
		if !sameID && !sameName {
			continue
		}
		if user.TelegramID.IsValid() {
			cur.TelegramID = user.TelegramID
		}
		if name != "" {
			cur.Username = name
		}
		if cur.Role != access.RoleAdmin {
			cur.Role = user.Role
		}
		return nil
	}
	cp := *user
	cp.Username = name
	u.users = append(u.users, &cp)
	return nil
}

// All returns copies of the stored users.
func (u *Users) All() []access.User {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]access.User, 0, len(u.users))
	for _, user := range u.users {
		out = append(out, *user)
	}
	return out
}

// RoleCache is an in-memory access.DecisionCache.
type RoleCache struct {
	mu    sync.Mutex
	roles map[shared.TelegramID]access.Role

	Invalidated []shared.TelegramID
}

// NewRoleCache returns an empty cache.
func NewRoleCache() *RoleCache {
	return &RoleCache{roles: make(map[shared.TelegramID]access.Role)}
}

func (c *RoleCache) GetRole(_ context.Context, id shared.TelegramID) (access.Role, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	role, ok := c.roles[id]
	return role, ok, nil
}

func (c *RoleCache) SetRole(_ context.Context, id shared.TelegramID, role access.Role, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roles[id] = role
	return nil
}

func (c *RoleCache) Invalidate(_ context.Context, id shared.TelegramID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.roles, id)
	c.Invalidated = append(c.Invalidated, id)
	return nil
}
