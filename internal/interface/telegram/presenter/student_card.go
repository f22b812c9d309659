package presenter

import (
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/jbcub/studentdir/internal/application/query"
)

// ParseModeHTML - режим разметки всех сообщений бота.
const ParseModeHTML = "HTML"

// View - готовое к отправке сообщение.
type View struct {
	// Text - текст сообщения (с HTML-разметкой).
	Text string

	// Keyboard - inline-клавиатура, может быть nil.
	Keyboard *InlineKeyboard

	// ParseMode - режим парсинга.
	ParseMode string
}

func htmlView(text string, kb *InlineKeyboard) *View {
	return &View{Text: text, Keyboard: kb, ParseMode: ParseModeHTML}
}

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT CARD PRESENTER
// Карточка студента, список кандидатов и разделы Courses / Others.
// ══════════════════════════════════════════════════════════════════════════════

// StudentCardPresenter форматирует результаты поиска для Telegram.
type StudentCardPresenter struct {
	keyboardBuilder *KeyboardBuilder
}

// NewStudentCardPresenter создаёт презентер карточки.
func NewStudentCardPresenter() *StudentCardPresenter {
	return &StudentCardPresenter{
		keyboardBuilder: NewKeyboardBuilder(),
	}
}

// FormatSearchResult выбирает вид ответа по исходу поиска:
// карточка, список кандидатов или подсказка.
func (p *StudentCardPresenter) FormatSearchResult(res *query.SearchStudentsResult) *View {
	switch {
	case res == nil:
		return p.FormatNoMatch()
	case res.Outcome == query.OutcomeUnique && res.Card != nil:
		return p.FormatCard(res.Card)
	case res.Outcome == query.OutcomeAmbiguous:
		return p.FormatCandidates(res.Candidates, res.Total)
	default:
		return p.FormatNoMatch()
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// MAIN CARD
// ─────────────────────────────────────────────────────────────────────────────

// FormatCard форматирует основной вид карточки.
func (p *StudentCardPresenter) FormatCard(card *query.StudentCardDTO) *View {
	var sb strings.Builder

	sb.WriteString("<b>")
	sb.WriteString(esc(card.FullName))
	sb.WriteString("</b>")

	if len(card.Aliases) > 0 {
		sb.WriteString("\n<i>also known as ")
		sb.WriteString(esc(strings.Join(card.Aliases, ", ")))
		sb.WriteString("</i>")
	}

	// Контакты
	var contacts []string
	for i, email := range card.Emails {
		label := "Email"
		if len(card.Emails) > 1 {
			label = fmt.Sprintf("Email %d", i+1)
		}
		contacts = append(contacts, fmt.Sprintf("%s: <code>%s</code>", label, esc(email)))
	}
	if card.TelegramHandle != "" {
		contacts = append(contacts, "Telegram: "+esc(card.TelegramHandle))
	}
	if len(contacts) > 0 {
		sb.WriteString("\n\n")
		sb.WriteString(strings.Join(contacts, "\n"))
	}

	sb.WriteString("\n")
	if card.AdmissionYear > 0 {
		sb.WriteString(fmt.Sprintf("\nAdmission year: <b>%d</b>", card.AdmissionYear))
	}
	if card.Scholarship {
		sb.WriteString("\nScholarship: <b>yes</b>")
	}
	if card.Country != "" {
		sb.WriteString("\nCountry: " + esc(card.Country))
	}

	if card.PublicComment != "" {
		sb.WriteString("\n\n💬 ")
		sb.WriteString(esc(card.PublicComment))
	}
	if card.SecretComment != "" {
		sb.WriteString("\n\n🔒 <i>")
		sb.WriteString(esc(card.SecretComment))
		sb.WriteString("</i>")
	}

	return htmlView(strings.TrimRight(sb.String(), "\n"), p.keyboardBuilder.CardKeyboard(card.StudentID))
}

// ─────────────────────────────────────────────────────────────────────────────
// SECTIONS
// ─────────────────────────────────────────────────────────────────────────────

// FormatCourses форматирует раздел с оценками.
func (p *StudentCardPresenter) FormatCourses(card *query.StudentCardDTO) *View {
	var sb strings.Builder
	sb.WriteString("📚 <b>")
	sb.WriteString(esc(card.FullName))
	sb.WriteString("</b> · Courses\n")

	if len(card.Courses) == 0 {
		sb.WriteString("\nNo grades recorded.")
	}
	for _, c := range card.Courses {
		sb.WriteString(fmt.Sprintf("\n%s: <b>%d</b>", esc(c.Name), c.Grade))
	}

	return htmlView(sb.String(), p.keyboardBuilder.SectionKeyboard(card.StudentID, CallbackCourses))
}

// FormatOthers форматирует раздел с прочими полями.
func (p *StudentCardPresenter) FormatOthers(card *query.StudentCardDTO) *View {
	var sb strings.Builder
	sb.WriteString("🗂 <b>")
	sb.WriteString(esc(card.FullName))
	sb.WriteString("</b> · Others\n")

	if len(card.Others) == 0 {
		sb.WriteString("\nNothing else is recorded.")
	}
	for _, o := range card.Others {
		sb.WriteString(fmt.Sprintf("\n%s: %s", esc(o.Label), esc(o.Value)))
	}

	return htmlView(sb.String(), p.keyboardBuilder.SectionKeyboard(card.StudentID, CallbackOthers))
}

// ─────────────────────────────────────────────────────────────────────────────
// DISAMBIGUATION
// ─────────────────────────────────────────────────────────────────────────────

// FormatCandidates форматирует список кандидатов. Имена в <code>, чтобы их
// было удобно скопировать и уточнить запрос.
func (p *StudentCardPresenter) FormatCandidates(candidates []query.CandidateDTO, total int) *View {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d students:", total))
	for _, c := range candidates {
		sb.WriteString("\n- <code>")
		sb.WriteString(esc(c.FullName))
		sb.WriteString("</code>")
	}
	if hidden := total - len(candidates); hidden > 0 {
		sb.WriteString(fmt.Sprintf("\n…and %d more. Add a family name to narrow the search.", hidden))
	}

	return htmlView(sb.String(), p.keyboardBuilder.CandidatesKeyboard(candidates))
}

// ─────────────────────────────────────────────────────────────────────────────
// ERROR STATES
// ─────────────────────────────────────────────────────────────────────────────

// FormatNoMatch форматирует подсказку при пустом результате.
func (p *StudentCardPresenter) FormatNoMatch() *View {
	return htmlView("No matches found. Try first name, last name, or both.", nil)
}

// FormatNotFound - студент из кнопки больше не существует.
func (p *StudentCardPresenter) FormatNotFound() *View {
	return htmlView("This student is no longer in the directory. Search again.", nil)
}

// FormatError форматирует нейтральное сообщение об ошибке.
// Детали ошибки пользователю не показываются.
func (p *StudentCardPresenter) FormatError() *View {
	return htmlView("😔 Something went wrong. Please try again in a minute.", nil)
}

// esc экранирует текст для HTML-разметки Telegram.
func esc(s string) string {
	return html.EscapeString(s)
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
