package command

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/jbcub/studentdir/internal/domain/access"
	"github.com/jbcub/studentdir/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GRANT ACCESS COMMAND
// Выдаёт роль пользователю бота по Telegram ID или username.
// Используется CLI (directoryctl grant) и при погашении инвайта.
// ══════════════════════════════════════════════════════════════════════════════

// GrantAccessCommand содержит данные для выдачи роли.
type GrantAccessCommand struct {
	TelegramID int64
	Username   string
	Role       access.Role

	// GrantedBy - источник доступа: "cli", "invite".
	GrantedBy string
}

// Validate проверяет команду.
func (c GrantAccessCommand) Validate() error {
	if c.TelegramID <= 0 && access.NormalizeUsername(c.Username) == "" {
		return shared.NewDomainError("access", "Grant", shared.ErrInvalidInput, "telegram id or username is required")
	}
	if !c.Role.IsValid() {
		return shared.NewDomainError("access", "Grant", shared.ErrInvalidInput, "unknown role "+string(c.Role))
	}
	return nil
}

// GrantAccessHandler обрабатывает выдачу роли.
type GrantAccessHandler struct {
	users  access.Repository
	cache  access.DecisionCache
	logger *slog.Logger
}

// NewGrantAccessHandler создаёт обработчик. cache может быть nil.
func NewGrantAccessHandler(users access.Repository, cache access.DecisionCache, logger *slog.Logger) *GrantAccessHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &GrantAccessHandler{users: users, cache: cache, logger: logger}
}

// Handle сохраняет пользователя и сбрасывает закэшированное решение.
// Роль admin не понижается до member.
func (h *GrantAccessHandler) Handle(ctx context.Context, cmd GrantAccessCommand) error {
	if err := cmd.Validate(); err != nil {
		return err
	}

	user := &access.User{
		TelegramID: shared.TelegramID(cmd.TelegramID),
		Username:   access.NormalizeUsername(cmd.Username),
		Role:       cmd.Role,
		GrantedBy:  cmd.GrantedBy,
	}
	if err := h.users.Upsert(ctx, user); err != nil {
		return fmt.Errorf("grant access: %w", err)
	}

	if h.cache != nil && user.TelegramID.IsValid() {
		if err := h.cache.Invalidate(ctx, user.TelegramID); err != nil {
			h.logger.Warn("failed to invalidate access cache", "telegram_id", cmd.TelegramID, "error", err)
		}
	}

	h.logger.Info("access granted",
		"telegram_id", cmd.TelegramID,
		"username", user.Username,
		"role", cmd.Role,
		"granted_by", cmd.GrantedBy,
	)
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// REDEEM INVITE COMMAND
// /join <код>: код сверяется с bcrypt-хешем из конфигурации,
// при совпадении пользователь получает роль member.
// ══════════════════════════════════════════════════════════════════════════════

// RedeemInviteCommand содержит код приглашения и отправителя.
type RedeemInviteCommand struct {
	TelegramID int64
	Username   string
	Code       string
}

// RedeemInviteHandler обрабатывает погашение приглашения.
type RedeemInviteHandler struct {
	grant      *GrantAccessHandler
	inviteHash []byte
}

// NewRedeemInviteHandler создаёт обработчик. Пустой хеш отключает приглашения.
func NewRedeemInviteHandler(grant *GrantAccessHandler, inviteHash string) *RedeemInviteHandler {
	return &RedeemInviteHandler{grant: grant, inviteHash: []byte(strings.TrimSpace(inviteHash))}
}

// Handle проверяет код и выдаёт доступ. Неверный код - ErrInvalidInvite.
func (h *RedeemInviteHandler) Handle(ctx context.Context, cmd RedeemInviteCommand) error {
	code := strings.TrimSpace(cmd.Code)
	if len(h.inviteHash) == 0 || code == "" {
		return shared.ErrInvalidInvite
	}
	if cmd.TelegramID <= 0 {
		return shared.NewDomainError("access", "Redeem", shared.ErrInvalidID, "telegram id is required")
	}
	if err := bcrypt.CompareHashAndPassword(h.inviteHash, []byte(code)); err != nil {
		return shared.ErrInvalidInvite
	}

	return h.grant.Handle(ctx, GrantAccessCommand{
		TelegramID: cmd.TelegramID,
		Username:   cmd.Username,
		Role:       access.RoleMember,
		GrantedBy:  "invite",
	})
}

// HashInviteCode возвращает bcrypt-хеш кода для INVITE_CODE_HASH.
func HashInviteCode(code string) (string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", shared.NewDomainError("access", "HashInvite", shared.ErrEmptyValue, "invite code is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash invite code: %w", err)
	}
	return string(hash), nil
}
