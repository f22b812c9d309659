package resolution

import (
	"github.com/jbcub/studentdir/internal/domain/shared"
	"github.com/jbcub/studentdir/internal/domain/student"
)

// MatchRow сопоставляет значения строки импорта со студентами.
//
// Правила проверяются по порядку, и первое правило, давшее хотя бы
// одного кандидата, решает исход:
//  1. любой адрес строки совпадает с адресом студента;
//  2. telegram handle совпадает (без учёта регистра);
//  3. все токены имён строки входят в токены имён и фамилии студента.
//
// Неоднозначный результат сильного ключа не уточняется более слабым правилом.
func MatchRow(p student.Patch, students []*student.Student) student.MatchResult {
	if ids := matchByEmail(p.Emails, students); len(ids) > 0 {
		return student.MatchFromCandidates(ids, student.KeyEmail)
	}
	if ids := matchByHandle(p.TelegramHandle, students); len(ids) > 0 {
		return student.MatchFromCandidates(ids, student.KeyTelegram)
	}
	if ids := matchByName(p.NameTokens(), students); len(ids) > 0 {
		return student.MatchFromCandidates(ids, student.KeyName)
	}
	return student.NoMatch()
}

func matchByEmail(emails []string, students []*student.Student) []shared.StudentID {
	if len(emails) == 0 {
		return nil
	}
	want := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		if n := shared.NormalizeEmail(e); n != "" {
			want[n] = struct{}{}
		}
	}

	var ids []shared.StudentID
	for _, s := range students {
		for _, e := range s.Emails {
			if _, ok := want[shared.NormalizeEmail(e)]; ok {
				ids = append(ids, s.ID)
				break
			}
		}
	}
	return ids
}

func matchByHandle(handle shared.TelegramHandle, students []*student.Student) []shared.StudentID {
	if handle.IsEmpty() {
		return nil
	}
	key := handle.Key()

	var ids []shared.StudentID
	for _, s := range students {
		if !s.TelegramHandle.IsEmpty() && s.TelegramHandle.Key() == key {
			ids = append(ids, s.ID)
		}
	}
	return ids
}

func matchByName(tokens []string, students []*student.Student) []shared.StudentID {
	if len(tokens) == 0 {
		return nil
	}

	var ids []shared.StudentID
	for _, s := range students {
		have := make(map[string]struct{})
		for _, t := range s.NameTokens() {
			have[t] = struct{}{}
		}
		if containsAll(have, tokens) {
			ids = append(ids, s.ID)
		}
	}
	return ids
}

func containsAll(set map[string]struct{}, tokens []string) bool {
	for _, t := range tokens {
		if _, ok := set[t]; !ok {
			return false
		}
	}
	return true
}
