package handler

import (
	"context"
	"strings"

	"github.com/jbcub/studentdir/internal/domain/access"
	"github.com/jbcub/studentdir/internal/interface/telegram/presenter"
)

// ══════════════════════════════════════════════════════════════════════════════
// HELP HANDLER
// Handles /help - explains how search works.
// ══════════════════════════════════════════════════════════════════════════════

// HelpHandler handles the /help command.
type HelpHandler struct{}

// NewHelpHandler creates a new HelpHandler.
func NewHelpHandler() *HelpHandler {
	return &HelpHandler{}
}

// HelpRequest contains the /help command data.
type HelpRequest struct {
	Role access.Role
}

// Handle processes the /help command.
func (h *HelpHandler) Handle(_ context.Context, req HelpRequest) (*presenter.View, error) {
	var sb strings.Builder
	sb.WriteString("<b>How search works</b>\n\n")
	sb.WriteString("Send a first name, a family name, or both, in any order: ")
	sb.WriteString("<code>ivanova anna</code> finds Anna Ivanova.\n")
	sb.WriteString("Letter case is ignored, and words that match nobody are skipped.\n\n")
	sb.WriteString("One match opens the card, several matches give a list to choose from.\n\n")
	sb.WriteString(commandList(req.Role))
	return view(sb.String()), nil
}

// escapeHTML escapes user-provided text for Telegram HTML.
func escapeHTML(s string) string {
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
	)
	return replacer.Replace(s)
}
