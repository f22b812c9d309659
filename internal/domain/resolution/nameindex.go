package resolution

import (
	"strings"

	"github.com/jbcub/studentdir/internal/domain/shared"
	"github.com/jbcub/studentdir/internal/domain/student"
)

// NameIndex - обратный индекс: нормализованный токен имени -> студенты.
// Строится заново из свежего снимка на каждую операцию.
type NameIndex struct {
	tokens   map[string][]shared.StudentID
	position map[shared.StudentID]int
}

// BuildNameIndex индексирует имена, фамилию и алиасы каждого студента:
// каждое значение целиком и каждое его слово. Списки кандидатов идут
// в порядке снимка.
func BuildNameIndex(students []*student.Student) *NameIndex {
	idx := &NameIndex{
		tokens:   make(map[string][]shared.StudentID),
		position: make(map[shared.StudentID]int, len(students)),
	}

	for i, s := range students {
		idx.position[s.ID] = i

		parts := make([]string, 0, len(s.GivenNames)+len(s.Aliases)+1)
		parts = append(parts, s.GivenNames...)
		parts = append(parts, s.FamilyName)
		parts = append(parts, s.Aliases...)

		keys := student.NameTokens(parts...)
		seen := make(map[string]struct{}, len(keys))
		for _, k := range keys {
			seen[k] = struct{}{}
		}
		for _, part := range parts {
			whole := indexKey(part)
			if _, ok := seen[whole]; ok || whole == "" {
				continue
			}
			seen[whole] = struct{}{}
			keys = append(keys, whole)
		}

		for _, k := range keys {
			idx.tokens[k] = append(idx.tokens[k], s.ID)
		}
	}

	return idx
}

// Lookup возвращает студентов, у которых есть такой токен или такое
// значение имени целиком. Ключ нормализуется так же, как при построении индекса.
func (x *NameIndex) Lookup(token string) []shared.StudentID {
	ids := x.tokens[indexKey(token)]
	out := make([]shared.StudentID, len(ids))
	copy(out, ids)
	return out
}

// Len возвращает количество проиндексированных студентов.
func (x *NameIndex) Len() int {
	return len(x.position)
}

// Tokens возвращает количество различных токенов.
func (x *NameIndex) Tokens() int {
	return len(x.tokens)
}

func indexKey(s string) string {
	return strings.Join(student.Tokenize(s), " ")
}

func (x *NameIndex) less(a, b shared.StudentID) bool {
	return x.position[a] < x.position[b]
}
