package testutil

import (
	"strings"
	"time"

	"github.com/jbcub/studentdir/internal/domain/shared"
	"github.com/jbcub/studentdir/internal/domain/student"
)

// FixedTime is the clock used by fixtures.
var FixedTime = time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC)

// StudentOption customizes a fixture student.
type StudentOption func(*student.Student)

// NewStudent builds a student with the given id and space-separated given names.
func NewStudent(id, given, family string, opts ...StudentOption) *student.Student {
	s := &student.Student{
		ID:            shared.StudentID(id),
		GivenNames:    strings.Fields(given),
		FamilyName:    family,
		AdmissionYear: 2024,
		Extra:         map[string]string{},
		CreatedAt:     FixedTime,
		UpdatedAt:     FixedTime,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithEmails sets the student's addresses.
func WithEmails(emails ...string) StudentOption {
	return func(s *student.Student) { s.Emails = emails }
}

// WithHandle sets the telegram handle.
func WithHandle(h string) StudentOption {
	return func(s *student.Student) { s.TelegramHandle = shared.TelegramHandle(h) }
}

// WithAliases sets the aliases.
func WithAliases(aliases ...string) StudentOption {
	return func(s *student.Student) { s.Aliases = aliases }
}

// WithCountry sets the country.
func WithCountry(c string) StudentOption {
	return func(s *student.Student) { s.Country = c }
}

// WithCourse appends a graded course.
func WithCourse(name string, grade int) StudentOption {
	return func(s *student.Student) { s.Courses = append(s.Courses, student.Course{Name: name, Grade: grade}) }
}

// WithSecret sets the admin-only comment.
func WithSecret(c string) StudentOption {
	return func(s *student.Student) { s.SecretComment = c }
}

// Fields returns a small catalogue matching the spreadsheet headers used in tests.
func Fields() []student.FieldDefinition {
	return []student.FieldDefinition{
		{Name: student.FieldGivenNames, Classification: student.ClassPrimary, Synonyms: []string{"First name", "Given name"}},
		{Name: student.FieldFamilyName, Classification: student.ClassPrimary, Synonyms: []string{"Last name", "Surname"}},
		{Name: student.FieldEmails, Classification: student.ClassPrimary, Synonyms: []string{"Email", "CUB Email", "E-mail"}},
		{Name: student.FieldTelegramHandle, Classification: student.ClassPrimary, Synonyms: []string{"Telegram", "TG"}},
		{Name: student.FieldAdmissionYear, Classification: student.ClassPrimary, Synonyms: []string{"Year", "Admission year"}},
		{Name: student.FieldScholarship, Classification: student.ClassPrimary, Synonyms: []string{"Type of grant"}},
		{Name: student.FieldCountry, Classification: student.ClassPrimary, Synonyms: []string{"Citizenship"}},
		{Name: student.FieldPublicComment, Classification: student.ClassPrimary, Synonyms: []string{"Comment"}},
		{Name: "Calculus", Classification: student.ClassCourses, Synonyms: []string{"Calc I"}},
		{Name: "matriculation_number", Classification: student.ClassOthers, Synonyms: []string{"Matriculation Num."}},
	}
}
