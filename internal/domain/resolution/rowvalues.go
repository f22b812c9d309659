package resolution

import (
	"strings"

	"github.com/jbcub/studentdir/internal/domain/shared"
	"github.com/jbcub/studentdir/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// IMPORT ROW
// ══════════════════════════════════════════════════════════════════════════════

// Cell - значение одного столбца строки.
type Cell struct {
	Label string
	Value string
}

// ImportRow - строка таблицы: упорядоченные пары «столбец -> значение»
// и номер строки в источнике для отчёта.
type ImportRow struct {
	Position int
	Cells    []Cell
}

// FieldIssue - значение, которое не удалось разобрать. Значение отброшено,
// остальная строка обрабатывается.
type FieldIssue struct {
	Row    int    `json:"row"`
	Label  string `json:"label"`
	Field  string `json:"field"`
	Value  string `json:"value"`
	Reason string `json:"reason"`
}

// ResolvedRow - строка после сопоставления столбцов с каталогом.
type ResolvedRow struct {
	Patch    student.Patch
	Unmapped []string
	Issues   []FieldIssue
}

// listSeparators разделяют несколько адресов или алиасов в одной ячейке.
var listSeparators = func(r rune) bool {
	return r == ',' || r == ';' || r == '\n'
}

// ResolveRow раскладывает ячейки строки по каноничным полям.
// Неизвестные столбцы попадают в Unmapped, неразборчивые значения - в Issues.
func (r *Registry) ResolveRow(row ImportRow) ResolvedRow {
	var out ResolvedRow
	p := &out.Patch
	unmapped := make(map[string]struct{})

	issue := func(c Cell, field, reason string) {
		out.Issues = append(out.Issues, FieldIssue{
			Row:    row.Position,
			Label:  c.Label,
			Field:  field,
			Value:  c.Value,
			Reason: reason,
		})
	}

	for _, c := range row.Cells {
		label := strings.TrimSpace(c.Label)
		if label == "" {
			continue
		}
		def, ok := r.Resolve(label)
		if !ok {
			if _, seen := unmapped[label]; !seen {
				unmapped[label] = struct{}{}
				out.Unmapped = append(out.Unmapped, label)
			}
			continue
		}

		value := collapse(c.Value)
		if value == "" {
			continue
		}

		switch def.Classification {
		case student.ClassCourses:
			grade, err := shared.ParseGrade(value)
			if err != nil {
				issue(c, def.Name, "grade must be a number from 0 to 100")
				continue
			}
			p.Courses = append(p.Courses, student.Course{Name: def.Name, Grade: grade})

		case student.ClassPrimary:
			if student.IsPrimaryField(def.Name) {
				applyPrimary(p, def.Name, value, func(reason string) { issue(c, def.Name, reason) })
				continue
			}
			setExtra(p, def.Name, value)

		default:
			setExtra(p, def.Name, value)
		}
	}

	return out
}

func applyPrimary(p *student.Patch, field, value string, issue func(reason string)) {
	switch field {
	case student.FieldGivenNames:
		if len(p.GivenNames) == 0 {
			p.GivenNames = strings.Fields(value)
		}

	case student.FieldFamilyName:
		p.FamilyName = firstNonEmpty(p.FamilyName, collapse(value))

	case student.FieldEmails:
		for _, raw := range strings.FieldsFunc(value, func(r rune) bool {
			return listSeparators(r) || r == ' ' || r == '\t'
		}) {
			email := shared.NormalizeEmail(raw)
			if email == "" {
				issue("not an email address: " + raw)
				continue
			}
			p.Emails = appendUnique(p.Emails, email)
		}

	case student.FieldTelegramHandle:
		h := shared.NormalizeTelegramHandle(value)
		switch {
		case h.IsEmpty():
		case !h.IsValid():
			issue("not a telegram username")
		case p.TelegramHandle.IsEmpty():
			p.TelegramHandle = h
		}

	case student.FieldTelegramID:
		id, err := shared.ParseTelegramID(value)
		if err != nil {
			issue("telegram id must be a positive number")
			return
		}
		if !p.TelegramID.IsValid() {
			p.TelegramID = id
		}

	case student.FieldAliases:
		for _, a := range strings.FieldsFunc(value, listSeparators) {
			if a = collapse(a); a != "" {
				p.Aliases = appendUnique(p.Aliases, a)
			}
		}

	case student.FieldAdmissionYear:
		y, err := shared.ParseAdmissionYear(value)
		if err != nil {
			issue("admission year must be a four-digit year")
			return
		}
		if p.AdmissionYear == 0 {
			p.AdmissionYear = y
		}

	case student.FieldScholarship:
		v, err := shared.ParseYesNo(value)
		if err != nil {
			issue("scholarship must be yes or no")
			return
		}
		if p.Scholarship == nil {
			p.Scholarship = &v
		}

	case student.FieldCountry:
		p.Country = firstNonEmpty(p.Country, value)
	case student.FieldPublicComment:
		p.PublicComment = firstNonEmpty(p.PublicComment, value)
	case student.FieldSecretComment:
		p.SecretComment = firstNonEmpty(p.SecretComment, value)
	}
}

func setExtra(p *student.Patch, field, value string) {
	if p.Extra == nil {
		p.Extra = make(map[string]string)
	}
	if _, ok := p.Extra[field]; !ok {
		p.Extra[field] = value
	}
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func firstNonEmpty(cur, next string) string {
	if cur != "" {
		return cur
	}
	return next
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if strings.EqualFold(x, v) {
			return list
		}
	}
	return append(list, v)
}
