package resolution

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jbcub/studentdir/internal/domain/shared"
	"github.com/jbcub/studentdir/internal/domain/student"
	"github.com/jbcub/studentdir/internal/testutil"
)

func TestMatchRow_PriorityOrder(t *testing.T) {
	students := []*student.Student{
		testutil.NewStudent("id-ivanova", "Anna", "Ivanova", testutil.WithEmails("anna@example.com")),
		testutil.NewStudent("id-petrova", "Maria", "Petrova", testutil.WithHandle("@petrova")),
		testutil.NewStudent("id-shared-1", "Ivan", "Orlov", testutil.WithEmails("office@example.com")),
		testutil.NewStudent("id-shared-2", "Oleg", "Orlov", testutil.WithEmails("office@example.com"), testutil.WithHandle("@oleg")),
	}

	tests := []struct {
		name  string
		patch student.Patch
		kind  student.MatchKind
		key   student.MatchKey
		ids   []shared.StudentID
	}{
		{
			name:  "email wins over mismatching name and handle",
			patch: student.Patch{GivenNames: []string{"Maria"}, FamilyName: "Petrova", Emails: []string{"ANNA@example.com"}, TelegramHandle: "@petrova"},
			kind:  student.MatchUnique, key: student.KeyEmail, ids: []shared.StudentID{"id-ivanova"},
		},
		{
			name:  "ambiguous email is not rescued by unique handle",
			patch: student.Patch{Emails: []string{"office@example.com"}, TelegramHandle: "@oleg"},
			kind:  student.MatchAmbiguous, key: student.KeyEmail, ids: []shared.StudentID{"id-shared-1", "id-shared-2"},
		},
		{
			name:  "handle compared without case",
			patch: student.Patch{Emails: []string{"unknown@example.com"}, TelegramHandle: "@Petrova"},
			kind:  student.MatchUnique, key: student.KeyTelegram, ids: []shared.StudentID{"id-petrova"},
		},
		{
			name:  "name subset",
			patch: student.Patch{GivenNames: []string{"anna"}, FamilyName: "IVANOVA"},
			kind:  student.MatchUnique, key: student.KeyName, ids: []shared.StudentID{"id-ivanova"},
		},
		{
			name:  "family name alone matching two students",
			patch: student.Patch{FamilyName: "Orlov"},
			kind:  student.MatchAmbiguous, key: student.KeyName, ids: []shared.StudentID{"id-shared-1", "id-shared-2"},
		},
		{
			name:  "extra row token breaks containment",
			patch: student.Patch{GivenNames: []string{"Anna", "Sofia"}, FamilyName: "Ivanova"},
			kind:  student.MatchNone,
		},
		{
			name:  "no keys at all",
			patch: student.Patch{Country: "Kazakhstan"},
			kind:  student.MatchNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MatchRow(tt.patch, students)
			assert.Equal(t, tt.kind, got.Kind())
			assert.Equal(t, tt.key, got.Key())
			assert.Equal(t, tt.ids, got.Candidates())
		})
	}
}

func TestMatchResult_Constructors(t *testing.T) {
	assert.True(t, student.MatchFromCandidates(nil, student.KeyEmail).IsNone())

	one := student.MatchFromCandidates([]shared.StudentID{"a", "a"}, student.KeyEmail)
	id, ok := one.ID()
	assert.True(t, ok)
	assert.Equal(t, shared.StudentID("a"), id)

	many := student.MatchFromCandidates([]shared.StudentID{"b", "a", "b"}, student.KeyName)
	assert.True(t, many.IsAmbiguous())
	assert.Equal(t, []shared.StudentID{"b", "a"}, many.Candidates())
	assert.Equal(t, "ambiguous", many.Kind().String())
}
