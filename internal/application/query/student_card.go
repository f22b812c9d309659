// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"sort"
	"strings"

	"github.com/jbcub/studentdir/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT CARD DTO
// Карточка студента - то, что бот показывает по уникальному совпадению.
// Основной вид, курсы и прочие поля собираются один раз, а презентер
// выбирает, какой раздел показать.
// ══════════════════════════════════════════════════════════════════════════════

// StudentCardDTO - данные карточки студента.
type StudentCardDTO struct {
	// ─────────────────────────────────────────────────────────────────────────
	// Основной вид
	// ─────────────────────────────────────────────────────────────────────────

	StudentID      string   `json:"student_id"`
	FullName       string   `json:"full_name"`
	Emails         []string `json:"emails,omitempty"`
	TelegramHandle string   `json:"telegram_handle,omitempty"`
	Aliases        []string `json:"aliases,omitempty"`
	AdmissionYear  int      `json:"admission_year"`
	Scholarship    bool     `json:"scholarship"`
	Country        string   `json:"country,omitempty"`
	PublicComment  string   `json:"public_comment,omitempty"`

	// SecretComment заполняется только для администраторов.
	SecretComment string `json:"secret_comment,omitempty"`

	// ─────────────────────────────────────────────────────────────────────────
	// Разделы
	// ─────────────────────────────────────────────────────────────────────────

	// Courses - оценки в порядке добавления.
	Courses []CourseDTO `json:"courses,omitempty"`

	// Others - прочие поля, отсортированные по подписи.
	Others []OtherFieldDTO `json:"others,omitempty"`
}

// CourseDTO - оценка по курсу.
type CourseDTO struct {
	Name  string `json:"name"`
	Grade int    `json:"grade"`
}

// OtherFieldDTO - значение поля из раздела "others".
type OtherFieldDTO struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// newStudentCard собирает карточку. labels сопоставляет каноничное имя поля
// с подписью для пользователя; отсутствующие имена показываются как есть.
func newStudentCard(s *student.Student, labels map[string]string, includeSecret bool) *StudentCardDTO {
	card := &StudentCardDTO{
		StudentID:      s.ID.String(),
		FullName:       s.FullName(),
		Emails:         append([]string(nil), s.Emails...),
		TelegramHandle: s.TelegramHandle.String(),
		Aliases:        append([]string(nil), s.Aliases...),
		AdmissionYear:  s.AdmissionYear,
		Scholarship:    s.Scholarship,
		Country:        s.Country,
		PublicComment:  s.PublicComment,
	}
	if includeSecret {
		card.SecretComment = s.SecretComment
	}

	for _, c := range s.Courses {
		card.Courses = append(card.Courses, CourseDTO{Name: c.Name, Grade: c.Grade})
	}

	for name, value := range s.Extra {
		if strings.TrimSpace(value) == "" {
			continue
		}
		card.Others = append(card.Others, OtherFieldDTO{Label: fieldLabel(name, labels), Value: value})
	}
	sort.Slice(card.Others, func(i, j int) bool {
		return strings.ToLower(card.Others[i].Label) < strings.ToLower(card.Others[j].Label)
	})

	return card
}

func fieldLabel(name string, labels map[string]string) string {
	if label, ok := labels[name]; ok && label != "" {
		return label
	}
	return student.DisplayCase(strings.ReplaceAll(name, "_", " "))
}

// loadLabels строит подписи полей из каталога: описание, иначе первый синоним.
// Ошибка каталога не мешает показать карточку.
func loadLabels(ctx context.Context, catalog student.FieldCatalog) map[string]string {
	labels := make(map[string]string)
	if catalog == nil {
		return labels
	}
	defs, err := catalog.LoadFieldDefinitions(ctx)
	if err != nil {
		return labels
	}
	for _, d := range defs {
		switch {
		case d.Description != "":
			labels[d.Name] = d.Description
		case len(d.Synonyms) > 0:
			labels[d.Name] = d.Synonyms[0]
		}
	}
	return labels
}
