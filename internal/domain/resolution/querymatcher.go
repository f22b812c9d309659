package resolution

import (
	"sort"

	"github.com/jbcub/studentdir/internal/domain/shared"
	"github.com/jbcub/studentdir/internal/domain/student"
)

// QueryMatcher разрешает свободный текст запроса в кандидатов.
type QueryMatcher struct {
	index *NameIndex
}

// NewQueryMatcher создаёт матчер поверх индекса имён.
func NewQueryMatcher(index *NameIndex) *QueryMatcher {
	return &QueryMatcher{index: index}
}

// Match ищет студентов по токенам запроса.
//
// Токены без совпадений игнорируются. Множества кандидатов остальных токенов
// пересекаются; если пересечение пустое, берётся объединение. Единственный
// выживший кандидат даёт UniqueMatch, несколько - AmbiguousMatch.
// Лучший вариант никогда не угадывается.
func (m *QueryMatcher) Match(query string) student.MatchResult {
	var hitSets [][]shared.StudentID
	seen := make(map[string]struct{})
	for _, tok := range student.Tokenize(query) {
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}

		if hits := m.index.Lookup(tok); len(hits) > 0 {
			hitSets = append(hitSets, hits)
		}
	}

	if len(hitSets) == 0 {
		return student.NoMatch()
	}

	if common := intersect(hitSets); len(common) > 0 {
		return student.MatchFromCandidates(common, student.KeyQuery)
	}

	union := m.union(hitSets)
	return student.MatchFromCandidates(union, student.KeyQuery)
}

// intersect сохраняет порядок первого множества.
func intersect(sets [][]shared.StudentID) []shared.StudentID {
	counts := make(map[shared.StudentID]int)
	for _, set := range sets {
		for _, id := range uniqueIDs(set) {
			counts[id]++
		}
	}

	var out []shared.StudentID
	for _, id := range uniqueIDs(sets[0]) {
		if counts[id] == len(sets) {
			out = append(out, id)
		}
	}
	return out
}

func (m *QueryMatcher) union(sets [][]shared.StudentID) []shared.StudentID {
	var all []shared.StudentID
	for _, set := range sets {
		all = append(all, set...)
	}
	all = uniqueIDs(all)
	sort.SliceStable(all, func(i, j int) bool {
		return m.index.less(all[i], all[j])
	})
	return all
}

func uniqueIDs(ids []shared.StudentID) []shared.StudentID {
	seen := make(map[shared.StudentID]struct{}, len(ids))
	out := make([]shared.StudentID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
