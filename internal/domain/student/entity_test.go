package student

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jbcub/studentdir/internal/domain/shared"
)

func sample() *Student {
	return &Student{
		ID:             "id-1",
		GivenNames:     []string{"Anna", "Maria"},
		FamilyName:     "Ivanova",
		Emails:         []string{"anna@example.com"},
		TelegramHandle: "@anna_iv",
		AdmissionYear:  2024,
		Country:        "Kazakhstan",
		Courses:        []Course{{Name: "Calculus", Grade: 80}},
		Extra:          map[string]string{"matriculation_number": "30012"},
	}
}

func TestNewStudent(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	yes := true

	s, err := NewStudent(NewStudentParams{
		ID: "id-1",
		Patch: Patch{
			GivenNames:  []string{"Anna"},
			FamilyName:  "Ivanova",
			Emails:      []string{"anna@example.com", "ANNA@example.com"},
			Scholarship: &yes,
			Extra:       map[string]string{"room": "B12"},
		},
		DefaultAdmissionYear: 2025,
		Now:                  now,
	})
	require.NoError(t, err)

	assert.Equal(t, shared.StudentID("id-1"), s.ID)
	assert.Equal(t, "Anna Ivanova", s.FullName())
	assert.Equal(t, []string{"anna@example.com"}, s.Emails)
	assert.Equal(t, 2025, s.AdmissionYear)
	assert.True(t, s.Scholarship)
	assert.Equal(t, "B12", s.Extra["room"])
	assert.Equal(t, now, s.CreatedAt)
}

func TestNewStudent_RequiresGivenName(t *testing.T) {
	_, err := NewStudent(NewStudentParams{ID: "id-1", Patch: Patch{FamilyName: "Ivanova"}})
	assert.ErrorIs(t, err, shared.ErrMissingGivenName)
	assert.True(t, shared.IsValidation(err))

	_, err = NewStudent(NewStudentParams{Patch: Patch{GivenNames: []string{"Anna"}}})
	assert.ErrorIs(t, err, shared.ErrInvalidID)
}

func TestStudent_ApplyOwnValuesIsNoop(t *testing.T) {
	s := sample()
	assert.Empty(t, s.Clone().Apply(s.AsPatch()))
}

func TestStudent_ApplyEmptyPatchIsNoop(t *testing.T) {
	s := sample()
	changes := s.Apply(Patch{})
	assert.Empty(t, changes)
	assert.Equal(t, sample(), s)
}

func TestStudent_Apply(t *testing.T) {
	s := sample()
	no := false

	changes := s.Apply(Patch{
		GivenNames:     []string{"Anya"},
		Emails:         []string{"ANNA@example.com", "anna.iv@uni.edu"},
		TelegramHandle: "@ANNA_IV",
		AdmissionYear:  2023,
		Scholarship:    &no,
		Courses:        []Course{{Name: "calculus", Grade: 91}, {Name: "Physics", Grade: 70}},
		Extra:          map[string]string{"matriculation_number": "30012", "room": "B12"},
	})

	assert.Equal(t, []FieldChange{
		{Field: FieldGivenNames, Old: "Anna Maria", New: "Anya"},
		{Field: FieldEmails, Old: "anna@example.com", New: "anna@example.com, anna.iv@uni.edu"},
		{Field: FieldAdmissionYear, Old: "2024", New: "2023"},
		{Field: "Calculus", Old: "80", New: "91"},
		{Field: "Physics", Old: "", New: "70"},
		{Field: "room", Old: "", New: "B12"},
	}, changes)

	assert.Equal(t, []string{"Anya"}, s.GivenNames)
	assert.Equal(t, shared.TelegramHandle("@anna_iv"), s.TelegramHandle)
	assert.False(t, s.Scholarship)
	assert.Equal(t, []Course{{Name: "Calculus", Grade: 91}, {Name: "Physics", Grade: 70}}, s.Courses)
}

func TestStudent_CloneIsDeep(t *testing.T) {
	s := sample()
	c := s.Clone()

	c.GivenNames[0] = "X"
	c.Emails = append(c.Emails, "x@example.com")
	c.Courses[0].Grade = 1
	c.Extra["matriculation_number"] = "0"

	assert.Equal(t, sample(), s)
}

func TestStudent_Validate(t *testing.T) {
	s := sample()
	require.NoError(t, s.Validate())

	s.Courses = append(s.Courses, Course{Name: "Bad", Grade: 120})
	assert.ErrorIs(t, s.Validate(), shared.ErrInvalidGrade)

	s = sample()
	s.GivenNames = nil
	assert.ErrorIs(t, s.Validate(), shared.ErrMissingGivenName)
}

func TestStudent_Grade(t *testing.T) {
	s := sample()

	g, ok := s.Grade("CALCULUS")
	assert.True(t, ok)
	assert.Equal(t, 80, g)

	_, ok = s.Grade("Physics")
	assert.False(t, ok)
}
