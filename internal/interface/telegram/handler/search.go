package handler

import (
	"context"
	"log/slog"

	"github.com/jbcub/studentdir/internal/application/query"
	"github.com/jbcub/studentdir/internal/domain/access"
	"github.com/jbcub/studentdir/internal/domain/shared"
	"github.com/jbcub/studentdir/internal/interface/telegram/presenter"
)

// ══════════════════════════════════════════════════════════════════════════════
// SEARCH HANDLER
// Any non-command text is a name query.
// ══════════════════════════════════════════════════════════════════════════════

// StudentSearcher runs a name query against the directory.
type StudentSearcher interface {
	Handle(ctx context.Context, q query.SearchStudentsQuery) (*query.SearchStudentsResult, error)
}

// SearchHandler turns free text into a card, a candidate list or a hint.
type SearchHandler struct {
	search StudentSearcher
	cards  *presenter.StudentCardPresenter
	logger *slog.Logger
}

// NewSearchHandler creates a new SearchHandler.
func NewSearchHandler(search StudentSearcher, cards *presenter.StudentCardPresenter, logger *slog.Logger) *SearchHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SearchHandler{
		search: search,
		cards:  cards,
		logger: logger,
	}
}

// SearchRequest contains the query text and the sender's role.
type SearchRequest struct {
	TelegramID int64
	Text       string
	Role       access.Role
}

// Handle processes a text query. The returned view is always safe to send;
// a non-nil error is for logging and metrics only.
func (h *SearchHandler) Handle(ctx context.Context, req SearchRequest) (*presenter.View, error) {
	res, err := h.search.Handle(ctx, query.SearchStudentsQuery{
		Text:          req.Text,
		IncludeSecret: req.Role == access.RoleAdmin,
	})
	if err != nil {
		if shared.IsValidation(err) {
			return h.cards.FormatNoMatch(), nil
		}
		h.logger.Error("search failed",
			"telegram_id", req.TelegramID,
			"error", err,
		)
		return h.cards.FormatError(), err
	}

	return h.cards.FormatSearchResult(res), nil
}
