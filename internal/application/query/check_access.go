package query

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/jbcub/studentdir/internal/domain/access"
	"github.com/jbcub/studentdir/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CHECK ACCESS QUERY
// Определяет роль отправителя. Порядок источников:
// список админов из конфигурации -> кэш решений -> таблица bot_users ->
// открытый режим (только для разработки).
// ══════════════════════════════════════════════════════════════════════════════

// AccessPolicy - статическая часть правил доступа из конфигурации.
type AccessPolicy struct {
	AdminIDs       []int64
	AdminUsernames []string

	// Open даёт роль member всем неизвестным пользователям.
	Open bool

	// CacheTTL - сколько хранить решение в кэше (0 - не кэшировать).
	CacheTTL time.Duration
}

// IsConfiguredAdmin проверяет, указан ли пользователь в конфигурации как админ.
func (p AccessPolicy) IsConfiguredAdmin(id access.Identity) bool {
	if id.TelegramID.IsValid() && slices.Contains(p.AdminIDs, id.TelegramID.Int64()) {
		return true
	}
	name := access.NormalizeUsername(id.Username)
	if name == "" {
		return false
	}
	for _, admin := range p.AdminUsernames {
		if access.NormalizeUsername(admin) == name {
			return true
		}
	}
	return false
}

// CheckAccessQuery - отправитель сообщения.
type CheckAccessQuery struct {
	TelegramID int64
	Username   string
}

// CheckAccessHandler обрабатывает проверку доступа.
type CheckAccessHandler struct {
	users  access.Repository
	cache  access.DecisionCache
	policy AccessPolicy
	logger *slog.Logger
}

// NewCheckAccessHandler создаёт обработчик. cache может быть nil.
func NewCheckAccessHandler(users access.Repository, cache access.DecisionCache, policy AccessPolicy, logger *slog.Logger) *CheckAccessHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CheckAccessHandler{users: users, cache: cache, policy: policy, logger: logger}
}

// Handle возвращает роль отправителя; RoleNone означает отказ.
// Сбой кэша не мешает проверке, сбой хранилища возвращается как ошибка.
func (h *CheckAccessHandler) Handle(ctx context.Context, q CheckAccessQuery) (access.Role, error) {
	id := access.Identity{TelegramID: shared.TelegramID(q.TelegramID), Username: q.Username}

	if h.policy.IsConfiguredAdmin(id) {
		return access.RoleAdmin, nil
	}

	cacheable := h.cache != nil && h.policy.CacheTTL > 0 && id.TelegramID.IsValid()
	if cacheable {
		role, ok, err := h.cache.GetRole(ctx, id.TelegramID)
		if err != nil {
			h.logger.Warn("access cache read failed", "telegram_id", q.TelegramID, "error", err)
		} else if ok {
			return role, nil
		}
	}

	role := access.RoleNone
	user, err := h.users.Find(ctx, id)
	switch {
	case err == nil:
		role = user.Role
		h.bindTelegramID(ctx, user, id)
	case shared.IsNotFound(err):
		if h.policy.Open {
			role = access.RoleMember
		}
	default:
		return access.RoleNone, fmt.Errorf("check access: %w", err)
	}

	if cacheable {
		if err := h.cache.SetRole(ctx, id.TelegramID, role, h.policy.CacheTTL); err != nil {
			h.logger.Warn("access cache write failed", "telegram_id", q.TelegramID, "error", err)
		}
	}
	return role, nil
}

// bindTelegramID запоминает Telegram ID пользователя, которому доступ выдали по username,
// чтобы смена username не отбирала доступ.
func (h *CheckAccessHandler) bindTelegramID(ctx context.Context, user *access.User, id access.Identity) {
	if user.TelegramID.IsValid() || !id.TelegramID.IsValid() {
		return
	}
	bound := *user
	bound.TelegramID = id.TelegramID
	if err := h.users.Upsert(ctx, &bound); err != nil {
		h.logger.Warn("failed to bind telegram id to bot user",
			"username", user.Username,
			"telegram_id", id.TelegramID.Int64(),
			"error", err,
		)
	}
}
