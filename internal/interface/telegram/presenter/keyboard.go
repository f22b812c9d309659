// Package presenter formats data for Telegram display.
// Presenters handle the conversion from application DTOs to user-friendly
// Telegram messages, keyboards, and other UI elements.
package presenter

import (
	"github.com/jbcub/studentdir/internal/application/query"
)

// ══════════════════════════════════════════════════════════════════════════════
// INLINE KEYBOARD TYPES
// These types represent Telegram inline keyboards in a library-agnostic way.
// The router converts them to the Bot API format.
// ══════════════════════════════════════════════════════════════════════════════

// InlineKeyboard represents an inline keyboard.
type InlineKeyboard struct {
	Rows [][]InlineButton
}

// InlineButton represents a single inline button.
type InlineButton struct {
	// Text is the button text.
	Text string

	// CallbackData is the callback data (for callback buttons).
	CallbackData string

	// URL is the URL to open (for URL buttons).
	URL string
}

// NewInlineKeyboard creates a new empty inline keyboard.
func NewInlineKeyboard() *InlineKeyboard {
	return &InlineKeyboard{
		Rows: make([][]InlineButton, 0),
	}
}

// AddRow adds a row of buttons. Empty rows are ignored.
func (k *InlineKeyboard) AddRow(buttons ...InlineButton) *InlineKeyboard {
	if len(buttons) > 0 {
		k.Rows = append(k.Rows, buttons)
	}
	return k
}

// IsEmpty reports whether the keyboard has no buttons.
func (k *InlineKeyboard) IsEmpty() bool {
	return k == nil || len(k.Rows) == 0
}

// CallbackButton creates a callback button.
func CallbackButton(text, callbackData string) InlineButton {
	return InlineButton{
		Text:         text,
		CallbackData: callbackData,
	}
}

// URLButton creates a URL button.
func URLButton(text, url string) InlineButton {
	return InlineButton{
		Text: text,
		URL:  url,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CALLBACK DATA
// Telegram limits callback data to 64 bytes; "courses:" plus a UUID fits.
// ══════════════════════════════════════════════════════════════════════════════

const (
	// CallbackPick opens the card of a candidate from a disambiguation list.
	CallbackPick = "pick:"

	// CallbackCourses shows the grades of a student.
	CallbackCourses = "courses:"

	// CallbackOthers shows the remaining fields of a student.
	CallbackOthers = "others:"

	// CallbackMain returns to the main card view.
	CallbackMain = "main:"
)

// ══════════════════════════════════════════════════════════════════════════════
// KEYBOARD BUILDER
// ══════════════════════════════════════════════════════════════════════════════

// KeyboardBuilder builds inline keyboards for the directory views.
type KeyboardBuilder struct{}

// NewKeyboardBuilder creates a new KeyboardBuilder.
func NewKeyboardBuilder() *KeyboardBuilder {
	return &KeyboardBuilder{}
}

// ─────────────────────────────────────────────────────────────────────────────
// STUDENT CARD KEYBOARDS
// ─────────────────────────────────────────────────────────────────────────────

// CardKeyboard creates the keyboard under the main card view.
func (b *KeyboardBuilder) CardKeyboard(studentID string) *InlineKeyboard {
	return NewInlineKeyboard().
		AddRow(
			CallbackButton("📚 Courses", CallbackCourses+studentID),
			CallbackButton("🗂 Others", CallbackOthers+studentID),
		)
}

// SectionKeyboard creates the keyboard under the Courses and Others views.
// The current section is replaced by a way back to the main card.
func (b *KeyboardBuilder) SectionKeyboard(studentID, current string) *InlineKeyboard {
	row := []InlineButton{CallbackButton("« Card", CallbackMain+studentID)}
	switch current {
	case CallbackCourses:
		row = append(row, CallbackButton("🗂 Others", CallbackOthers+studentID))
	case CallbackOthers:
		row = append(row, CallbackButton("📚 Courses", CallbackCourses+studentID))
	}
	return NewInlineKeyboard().AddRow(row...)
}

// ─────────────────────────────────────────────────────────────────────────────
// DISAMBIGUATION KEYBOARD
// ─────────────────────────────────────────────────────────────────────────────

// CandidatesKeyboard creates one button per candidate, in list order.
func (b *KeyboardBuilder) CandidatesKeyboard(candidates []query.CandidateDTO) *InlineKeyboard {
	kb := NewInlineKeyboard()
	for _, c := range candidates {
		kb.AddRow(CallbackButton(candidateButtonText(c), CallbackPick+c.StudentID))
	}
	return kb
}

func candidateButtonText(c query.CandidateDTO) string {
	if c.AdmissionYear > 0 {
		return c.FullName + " · " + itoa(c.AdmissionYear)
	}
	return c.FullName
}
