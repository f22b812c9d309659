package handler

import (
	"context"
	"errors"
	"strings"

	"github.com/jbcub/studentdir/internal/application/command"
	"github.com/jbcub/studentdir/internal/domain/shared"
	"github.com/jbcub/studentdir/internal/interface/telegram/presenter"
)

// ══════════════════════════════════════════════════════════════════════════════
// JOIN HANDLER
// Handles /join <code> - self-service access with an invite code.
// ══════════════════════════════════════════════════════════════════════════════

// InviteRedeemer checks an invite code and grants membership.
type InviteRedeemer interface {
	Handle(ctx context.Context, cmd command.RedeemInviteCommand) error
}

// JoinHandler handles the /join command.
type JoinHandler struct {
	redeem InviteRedeemer
}

// NewJoinHandler creates a new JoinHandler.
func NewJoinHandler(redeem InviteRedeemer) *JoinHandler {
	return &JoinHandler{redeem: redeem}
}

// JoinRequest contains the /join command data.
type JoinRequest struct {
	TelegramID int64
	Username   string
	Code       string
}

// Handle processes the /join command.
func (h *JoinHandler) Handle(ctx context.Context, req JoinRequest) (*presenter.View, error) {
	code := strings.TrimSpace(req.Code)
	if code == "" {
		return view("Usage: <code>/join CODE</code>"), nil
	}

	err := h.redeem.Handle(ctx, command.RedeemInviteCommand{
		TelegramID: req.TelegramID,
		Username:   req.Username,
		Code:       code,
	})
	switch {
	case err == nil:
		return view("✅ Welcome! You can search the directory now. Send a name to start."), nil
	case errors.Is(err, shared.ErrInvalidInvite):
		return view("This invite code is not valid."), nil
	default:
		return view("😔 Something went wrong. Please try again in a minute."), err
	}
}
