package presenter

import (
	"fmt"
	"strings"

	"github.com/jbcub/studentdir/internal/domain/resolution"
)

// ══════════════════════════════════════════════════════════════════════════════
// IMPORT REPORT PRESENTER
// Сводка прогона импорта для администратора. Длинные списки обрезаются,
// чтобы сообщение уложилось в лимит Telegram.
// ══════════════════════════════════════════════════════════════════════════════

const (
	// maxReportItems - сколько элементов каждого списка показывать.
	maxReportItems = 15

	// maxMessageLen - лимит Telegram на длину сообщения с запасом на разметку.
	maxMessageLen = 3900
)

// ReportPresenter форматирует отчёт импорта.
type ReportPresenter struct{}

// NewReportPresenter создаёт презентер отчёта.
func NewReportPresenter() *ReportPresenter {
	return &ReportPresenter{}
}

// FormatReport форматирует полный отчёт.
func (p *ReportPresenter) FormatReport(r *resolution.Report) *View {
	var sb strings.Builder

	title := "Import finished"
	if r.DryRun {
		title = "Dry run finished (nothing was written)"
	}
	sb.WriteString("<b>" + title + "</b>\n")
	sb.WriteString(fmt.Sprintf("<code>%s</code> · %d rows\n\n", esc(shortRunID(r.RunID)), r.Rows))

	// Итоги
	sb.WriteString(fmt.Sprintf("Created: %d\n", r.Created))
	sb.WriteString(fmt.Sprintf("Updated: %d\n", r.Updated))
	if r.Unchanged > 0 {
		sb.WriteString(fmt.Sprintf("Unchanged: %d\n", r.Unchanged))
	}
	if r.Skipped > 0 {
		sb.WriteString(fmt.Sprintf("Empty rows: %d\n", r.Skipped))
	}
	sb.WriteString(fmt.Sprintf("Ambiguous rows: %d\n", len(r.Ambiguous)))
	sb.WriteString(fmt.Sprintf("Duplicate groups: %d\n", len(r.Duplicates)))
	if len(r.Failed) > 0 {
		sb.WriteString(fmt.Sprintf("Failed rows: %d\n", len(r.Failed)))
	}

	p.writeAmbiguous(&sb, r.Ambiguous)
	p.writeDuplicates(&sb, r.Duplicates)
	p.writeFailed(&sb, r.Failed)
	p.writeIssues(&sb, r.Issues)

	if len(r.Unmapped) > 0 {
		sb.WriteString("\n<b>Ignored columns:</b> ")
		sb.WriteString(esc(strings.Join(r.Unmapped, ", ")))
		sb.WriteString("\n")
	}

	return htmlView(truncate(strings.TrimRight(sb.String(), "\n")), nil)
}

// FormatNoReport - в этом чате ещё не было импорта.
func (p *ReportPresenter) FormatNoReport() *View {
	return htmlView("No import report yet. Send a CSV file to run an import.", nil)
}

// FormatImportInstructions - ответ на /import.
func (p *ReportPresenter) FormatImportInstructions(maxBytes int64) *View {
	text := "<b>Import a spreadsheet</b>\n\n" +
		"Send the table as a <b>.csv</b> document (max " + humanBytes(maxBytes) + ").\n" +
		"The first row must contain column headers; known headers are matched " +
		"to directory fields, unknown ones are reported and ignored.\n\n" +
		"Rows are matched to existing students by email, then Telegram handle, then name. " +
		"Empty cells never erase stored data.\n\n" +
		"Add <code>dry</code> as the file caption to preview the result without writing."
	return htmlView(text, nil)
}

// ─────────────────────────────────────────────────────────────────────────────
// SECTIONS
// ─────────────────────────────────────────────────────────────────────────────

func (p *ReportPresenter) writeAmbiguous(sb *strings.Builder, rows []resolution.AmbiguousRow) {
	if len(rows) == 0 {
		return
	}
	sb.WriteString("\n<b>Ambiguous rows</b> (not imported):\n")
	for i, a := range rows {
		if i == maxReportItems {
			writeMore(sb, len(rows)-i)
			break
		}
		sb.WriteString(fmt.Sprintf(" - row %d: %s matches %d students by %s\n",
			a.Row, esc(orEmpty(a.Name)), len(a.Candidates), esc(string(a.Key))))
	}
}

func (p *ReportPresenter) writeDuplicates(sb *strings.Builder, groups []resolution.DuplicateGroup) {
	if len(groups) == 0 {
		return
	}
	sb.WriteString("\n<b>Duplicate groups</b> (rows → student):\n")
	for i, g := range groups {
		if i == maxReportItems {
			writeMore(sb, len(groups)-i)
			break
		}
		sb.WriteString(fmt.Sprintf(" - %s → %s\n", joinInts(g.Rows), esc(orEmpty(g.Name))))
		for _, o := range g.Trace {
			sb.WriteString(fmt.Sprintf("     row %d %s: %s → %s\n",
				o.Row, esc(o.Field), esc(orEmpty(o.Old)), esc(orEmpty(o.New))))
		}
	}
}

func (p *ReportPresenter) writeFailed(sb *strings.Builder, rows []resolution.FailedRow) {
	if len(rows) == 0 {
		return
	}
	sb.WriteString("\n<b>Failed rows:</b>\n")
	for i, f := range rows {
		if i == maxReportItems {
			writeMore(sb, len(rows)-i)
			break
		}
		name := ""
		if f.Name != "" {
			name = " (" + esc(f.Name) + ")"
		}
		sb.WriteString(fmt.Sprintf(" - row %d%s: %s\n", f.Row, name, esc(f.Reason)))
	}
}

func (p *ReportPresenter) writeIssues(sb *strings.Builder, issues []resolution.FieldIssue) {
	if len(issues) == 0 {
		return
	}
	sb.WriteString("\n<b>Skipped values:</b>\n")
	for i, is := range issues {
		if i == maxReportItems {
			writeMore(sb, len(issues)-i)
			break
		}
		sb.WriteString(fmt.Sprintf(" - row %d, %s = %q: %s\n",
			is.Row, esc(is.Label), esc(is.Value), esc(is.Reason)))
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// HELPERS
// ─────────────────────────────────────────────────────────────────────────────

func writeMore(sb *strings.Builder, n int) {
	sb.WriteString(fmt.Sprintf("   …and %d more\n", n))
}

func joinInts(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = itoa(x)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func orEmpty(s string) string {
	if s == "" {
		return "(empty)"
	}
	return s
}

func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// truncate обрезает текст по границе строки.
func truncate(s string) string {
	if len(s) <= maxMessageLen {
		return s
	}
	cut := strings.LastIndex(s[:maxMessageLen], "\n")
	if cut < 0 {
		cut = maxMessageLen
	}
	return s[:cut] + "\n…"
}

func humanBytes(n int64) string {
	switch {
	case n <= 0:
		return "no limit"
	case n >= 1<<20:
		return fmt.Sprintf("%d MB", n>>20)
	case n >= 1<<10:
		return fmt.Sprintf("%d KB", n>>10)
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}
