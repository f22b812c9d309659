package resolution

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jbcub/studentdir/internal/domain/shared"
	"github.com/jbcub/studentdir/internal/domain/student"
	"github.com/jbcub/studentdir/internal/testutil"
)

func directorySnapshot() []*student.Student {
	return []*student.Student{
		testutil.NewStudent("id-ivanova", "Anna", "Ivanova"),
		testutil.NewStudent("id-petrova", "Anna", "Petrova"),
		testutil.NewStudent("id-ivanov", "Boris", "Ivanov", testutil.WithAliases("Bob")),
		testutil.NewStudent("id-oneil", "Seán Patrick", "O’Neil"),
	}
}

func TestNameIndex_Lookup(t *testing.T) {
	idx := BuildNameIndex(directorySnapshot())

	assert.Equal(t, 4, idx.Len())
	assert.Equal(t, []shared.StudentID{"id-ivanova", "id-petrova"}, idx.Lookup("anna"))
	assert.Equal(t, []shared.StudentID{"id-ivanova", "id-petrova"}, idx.Lookup("  ANNA "))
	assert.Equal(t, []shared.StudentID{"id-ivanov"}, idx.Lookup("bob"))
	assert.Equal(t, []shared.StudentID{"id-oneil"}, idx.Lookup("patrick"))
	assert.Equal(t, []shared.StudentID{"id-oneil"}, idx.Lookup("o'neil"))
	assert.Empty(t, idx.Lookup("ivan"))
}

func TestNameIndex_LookupWholeName(t *testing.T) {
	idx := BuildNameIndex([]*student.Student{
		testutil.NewStudent("id-berg", "Lotte", "van der Berg"),
		testutil.NewStudent("id-vandam", "Jean-Claude", "Van Dam"),
	})

	assert.Equal(t, []shared.StudentID{"id-berg"}, idx.Lookup("Van  der Berg"))
	assert.Equal(t, []shared.StudentID{"id-berg"}, idx.Lookup("berg"))
	assert.Equal(t, []shared.StudentID{"id-berg", "id-vandam"}, idx.Lookup("van"))
	assert.Equal(t, []shared.StudentID{"id-vandam"}, idx.Lookup("jean-claude"))
	assert.Empty(t, idx.Lookup("der van"))
}

func TestNameIndex_LookupReturnsCopy(t *testing.T) {
	idx := BuildNameIndex(directorySnapshot())

	ids := idx.Lookup("anna")
	ids[0] = "mutated"

	assert.Equal(t, shared.StudentID("id-ivanova"), idx.Lookup("anna")[0])
}

func TestQueryMatcher_Match(t *testing.T) {
	m := NewQueryMatcher(BuildNameIndex(directorySnapshot()))

	tests := []struct {
		name  string
		query string
		kind  student.MatchKind
		ids   []shared.StudentID
	}{
		{"shared given name is ambiguous", "Anna", student.MatchAmbiguous, []shared.StudentID{"id-ivanova", "id-petrova"}},
		{"given and family name is unique", "Anna Ivanova", student.MatchUnique, []shared.StudentID{"id-ivanova"}},
		{"token order does not matter", "ivanova anna", student.MatchUnique, []shared.StudentID{"id-ivanova"}},
		{"case and whitespace are normalized", "  ANNA\t  ivanova ", student.MatchUnique, []shared.StudentID{"id-ivanova"}},
		{"noise token is ignored", "Anna zzz", student.MatchAmbiguous, []shared.StudentID{"id-ivanova", "id-petrova"}},
		{"noise with unique hit", "Petrova please", student.MatchUnique, []shared.StudentID{"id-petrova"}},
		{"empty intersection falls back to union", "Boris Ivanova", student.MatchAmbiguous, []shared.StudentID{"id-ivanova", "id-ivanov"}},
		{"alias", "bob", student.MatchUnique, []shared.StudentID{"id-ivanov"}},
		{"typographic apostrophe", "o'neil", student.MatchUnique, []shared.StudentID{"id-oneil"}},
		{"punctuation around tokens", "Anna, Petrova!", student.MatchUnique, []shared.StudentID{"id-petrova"}},
		{"unknown name", "Zed", student.MatchNone, nil},
		{"empty query", "   ", student.MatchNone, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.Match(tt.query)
			assert.Equal(t, tt.kind, got.Kind())
			assert.Equal(t, tt.ids, got.Candidates())
			if tt.kind != student.MatchNone {
				assert.Equal(t, student.KeyQuery, got.Key())
			}
		})
	}
}

func TestQueryMatcher_NeverPicksAmongTwo(t *testing.T) {
	snapshot := []*student.Student{
		testutil.NewStudent("a", "Anna", "Ivanova"),
		testutil.NewStudent("b", "Anna", "Ivanova"),
	}
	m := NewQueryMatcher(BuildNameIndex(snapshot))

	got := m.Match("Anna Ivanova")

	assert.True(t, got.IsAmbiguous())
	_, ok := got.ID()
	assert.False(t, ok)
	assert.Equal(t, []shared.StudentID{"a", "b"}, got.Candidates())
}
