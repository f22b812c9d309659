// Package access описывает, кто может пользоваться ботом справочника.
//
// Пользователь бота (User) опознаётся по Telegram ID или по username.
// Роль admin даёт право загружать таблицы и видеть секретные комментарии,
// роль member - только искать студентов.
package access

import (
	"context"
	"strings"
	"time"

	"github.com/jbcub/studentdir/internal/domain/shared"
)

// Role - уровень доступа пользователя бота.
type Role string

const (
	RoleNone   Role = ""
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

// IsValid проверяет, что роль известна.
func (r Role) IsValid() bool {
	return r == RoleMember || r == RoleAdmin
}

// CanSearch возвращает true для любой выданной роли.
func (r Role) CanSearch() bool { return r.IsValid() }

// CanImport возвращает true только для администратора.
func (r Role) CanImport() bool { return r == RoleAdmin }

// User - запись о пользователе бота.
type User struct {
	TelegramID shared.TelegramID
	Username   string
	Role       Role
	// GrantedBy - откуда взялся доступ: "config", "invite", "cli".
	GrantedBy string
	CreatedAt time.Time
}

// NormalizeUsername убирает "@" и приводит username к нижнему регистру.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(username), "@"))
}

// Identity - то, что бот знает об отправителе сообщения.
type Identity struct {
	TelegramID shared.TelegramID
	Username   string
}

// Repository хранит пользователей бота.
type Repository interface {
	// Find ищет пользователя по Telegram ID, затем по username.
	// Возвращает ErrNotFound, если пользователь неизвестен.
	Find(ctx context.Context, id Identity) (*User, error)

	// Upsert создаёт пользователя или обновляет его роль.
	Upsert(ctx context.Context, u *User) error
}

// DecisionCache кэширует решения о доступе.
type DecisionCache interface {
	GetRole(ctx context.Context, id shared.TelegramID) (Role, bool, error)
	SetRole(ctx context.Context, id shared.TelegramID, role Role, ttl time.Duration) error
	Invalidate(ctx context.Context, id shared.TelegramID) error
}
