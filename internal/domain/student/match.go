package student

import (
	"slices"

	"github.com/jbcub/studentdir/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// MATCH RESULT
// ══════════════════════════════════════════════════════════════════════════════

// MatchKind - вид результата сопоставления.
type MatchKind int

const (
	// MatchNone - ни один студент не подошёл.
	MatchNone MatchKind = iota
	// MatchUnique - подошёл ровно один студент.
	MatchUnique
	// MatchAmbiguous - подошли несколько студентов, выбирать нельзя.
	MatchAmbiguous
)

// String возвращает название вида для логов и метрик.
func (k MatchKind) String() string {
	switch k {
	case MatchUnique:
		return "unique"
	case MatchAmbiguous:
		return "ambiguous"
	default:
		return "none"
	}
}

// MatchKey - ключ, по которому получен результат.
type MatchKey string

const (
	KeyNone     MatchKey = ""
	KeyEmail    MatchKey = "email"
	KeyTelegram MatchKey = "telegram_handle"
	KeyName     MatchKey = "name"
	KeyQuery    MatchKey = "query"
)

// MatchResult - результат сопоставления запроса или строки импорта.
// Поля скрыты: неоднозначность нельзя спутать с отсутствием совпадения.
type MatchResult struct {
	kind MatchKind
	ids  []shared.StudentID
	key  MatchKey
}

// NoMatch возвращает пустой результат.
func NoMatch() MatchResult {
	return MatchResult{kind: MatchNone}
}

// UniqueMatch возвращает результат с единственным кандидатом.
func UniqueMatch(id shared.StudentID, key MatchKey) MatchResult {
	return MatchResult{kind: MatchUnique, ids: []shared.StudentID{id}, key: key}
}

// MatchFromCandidates выбирает вид результата по числу кандидатов:
// 0 - NoMatch, 1 - UniqueMatch, больше - AmbiguousMatch.
// Повторы удаляются с сохранением порядка.
func MatchFromCandidates(ids []shared.StudentID, key MatchKey) MatchResult {
	uniq := make([]shared.StudentID, 0, len(ids))
	for _, id := range ids {
		if !slices.Contains(uniq, id) {
			uniq = append(uniq, id)
		}
	}
	switch len(uniq) {
	case 0:
		return NoMatch()
	case 1:
		return UniqueMatch(uniq[0], key)
	default:
		return MatchResult{kind: MatchAmbiguous, ids: uniq, key: key}
	}
}

// Kind возвращает вид результата.
func (m MatchResult) Kind() MatchKind { return m.kind }

// Key возвращает ключ, давший результат.
func (m MatchResult) Key() MatchKey { return m.key }

// IsUnique - ровно один кандидат.
func (m MatchResult) IsUnique() bool { return m.kind == MatchUnique }

// IsAmbiguous - несколько кандидатов.
func (m MatchResult) IsAmbiguous() bool { return m.kind == MatchAmbiguous }

// IsNone - кандидатов нет.
func (m MatchResult) IsNone() bool { return m.kind == MatchNone }

// ID возвращает единственного кандидата; ok=false для остальных видов.
func (m MatchResult) ID() (shared.StudentID, bool) {
	if m.kind != MatchUnique {
		return "", false
	}
	return m.ids[0], true
}

// Candidates возвращает копию списка кандидатов.
func (m MatchResult) Candidates() []shared.StudentID {
	return slices.Clone(m.ids)
}
