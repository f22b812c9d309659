// Package handler contains Telegram command handlers.
// Each handler follows the pattern: receive update → validate → call application layer → format response.
package handler

import (
	"context"
	"fmt"

	"github.com/jbcub/studentdir/internal/domain/access"
	"github.com/jbcub/studentdir/internal/interface/telegram/presenter"
)

// ══════════════════════════════════════════════════════════════════════════════
// START HANDLER
// Handles /start - greets the user and explains what they can do with
// their current role.
// ══════════════════════════════════════════════════════════════════════════════

// StartHandler handles the /start command.
type StartHandler struct {
	inviteEnabled bool
}

// NewStartHandler creates a new StartHandler. inviteEnabled tells the
// greeting whether /join is available to strangers.
func NewStartHandler(inviteEnabled bool) *StartHandler {
	return &StartHandler{inviteEnabled: inviteEnabled}
}

// StartRequest contains the parsed /start command data.
type StartRequest struct {
	// FirstName is the user's first name from Telegram.
	FirstName string

	// Role is the access decision for the sender.
	Role access.Role
}

// Handle processes the /start command.
func (h *StartHandler) Handle(_ context.Context, req StartRequest) (*presenter.View, error) {
	name := req.FirstName
	if name == "" {
		name = "there"
	}
	greeting := fmt.Sprintf("Hi, <b>%s</b>! 👋\n\n", escapeHTML(name))

	if !req.Role.CanSearch() {
		text := greeting +
			"This bot is the student directory. Access is limited to the community.\n\n"
		if h.inviteEnabled {
			text += "If you have an invite code, send <code>/join CODE</code>.\n"
		}
		text += "Otherwise ask an administrator to add your Telegram account."
		return view(text), nil
	}

	return view(greeting +
		"Send me a name and I will find the student: first name, family name, or both.\n\n" +
		commandList(req.Role)), nil
}

func commandList(role access.Role) string {
	text := "<b>Commands:</b>\n" +
		"• any text - search by name\n" +
		"• /help - this message\n"
	if role.CanImport() {
		text += "• /import - how to import a spreadsheet\n" +
			"• /report - last import report in this chat\n"
	}
	return text
}

func view(text string) *presenter.View {
	return &presenter.View{Text: text, ParseMode: presenter.ParseModeHTML}
}
