// Package callback contains inline button callback handlers.
// Callbacks handle user interactions with inline keyboards.
package callback

import (
	"context"
	"errors"
	"strings"

	"github.com/jbcub/studentdir/internal/application/query"
	"github.com/jbcub/studentdir/internal/domain/access"
	"github.com/jbcub/studentdir/internal/domain/shared"
	"github.com/jbcub/studentdir/internal/interface/telegram/presenter"
)

// ══════════════════════════════════════════════════════════════════════════════
// CARD CALLBACK HANDLER
// Handles the buttons of the candidate list and of the student card:
// pick:<id>, courses:<id>, others:<id>, main:<id>.
// ══════════════════════════════════════════════════════════════════════════════

// CardReader loads one student card.
type CardReader interface {
	Handle(ctx context.Context, q query.GetStudentCardQuery) (*query.StudentCardDTO, error)
}

// CardHandler handles card navigation callbacks.
type CardHandler struct {
	cards   CardReader
	present *presenter.StudentCardPresenter
}

// NewCardHandler creates a new CardHandler.
func NewCardHandler(cards CardReader, present *presenter.StudentCardPresenter) *CardHandler {
	return &CardHandler{
		cards:   cards,
		present: present,
	}
}

// CardRequest contains the parsed callback data.
type CardRequest struct {
	// Data is the raw callback data, e.g. "courses:<uuid>".
	Data string

	// Role is the access decision for the user who pressed the button.
	Role access.Role
}

// CardResponse describes how to answer the button press.
type CardResponse struct {
	// AnswerText is shown as a toast; empty just stops the spinner.
	AnswerText string

	// View is the content to show, nil if nothing changes.
	View *presenter.View

	// NewMessage asks for a new message instead of editing the pressed one.
	// A pick from the candidate list keeps the list for further picks.
	NewMessage bool
}

// Handle processes a card callback.
func (h *CardHandler) Handle(ctx context.Context, req CardRequest) (*CardResponse, error) {
	prefix, id, ok := splitCallback(req.Data)
	if !ok {
		return &CardResponse{}, nil
	}

	card, err := h.cards.Handle(ctx, query.GetStudentCardQuery{
		StudentID:     id,
		IncludeSecret: req.Role == access.RoleAdmin,
	})
	if err != nil {
		if errors.Is(err, shared.ErrStudentNotFound) || errors.Is(err, shared.ErrInvalidID) {
			return &CardResponse{AnswerText: "Student not found", View: h.present.FormatNotFound()}, nil
		}
		return &CardResponse{AnswerText: "Something went wrong"}, err
	}

	switch prefix {
	case presenter.CallbackPick:
		return &CardResponse{View: h.present.FormatCard(card), NewMessage: true}, nil
	case presenter.CallbackCourses:
		return &CardResponse{View: h.present.FormatCourses(card)}, nil
	case presenter.CallbackOthers:
		return &CardResponse{View: h.present.FormatOthers(card)}, nil
	default:
		return &CardResponse{View: h.present.FormatCard(card)}, nil
	}
}

// Prefixes lists the callback prefixes served by CardHandler.
func Prefixes() []string {
	return []string{
		presenter.CallbackPick,
		presenter.CallbackCourses,
		presenter.CallbackOthers,
		presenter.CallbackMain,
	}
}

func splitCallback(data string) (prefix, id string, ok bool) {
	i := strings.IndexByte(data, ':')
	if i < 0 || i == len(data)-1 {
		return "", "", false
	}
	return data[:i+1], data[i+1:], true
}
