package student

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// typographic заменяет «красивые» апострофы и тире на ASCII,
// чтобы "O’Neil" и "O'Neil" давали один и тот же токен.
var typographic = strings.NewReplacer(
	"’", "'",
	"‘", "'",
	"ʼ", "'",
	"`", "'",
	"–", "-",
	"—", "-",
	"‐", "-",
)

// NormalizeText приводит строку к каноничной форме для сравнения:
// NFKC, case folding, унификация апострофов/тире, trim, схлопывание пробелов.
func NormalizeText(s string) string {
	if s == "" {
		return ""
	}
	s = norm.NFKC.String(s)
	s = cases.Fold().String(s)
	s = typographic.Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// Tokenize разбивает текст на нормализованные токены по пробелам.
// Пунктуация по краям токена отбрасывается, дефисы и апострофы внутри
// сохраняются ("jean-luc", "o'neil").
func Tokenize(text string) []string {
	fields := strings.Fields(NormalizeText(text))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		t := strings.TrimFunc(f, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if t != "" {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

// NameTokens возвращает множество токенов из нескольких частей имени
// в порядке первого появления, без повторов.
func NameTokens(parts ...string) []string {
	seen := make(map[string]struct{})
	var tokens []string
	for _, part := range parts {
		for _, t := range Tokenize(part) {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			tokens = append(tokens, t)
		}
	}
	return tokens
}

// DisplayCase приводит имя из таблицы в вид "Anna-Maria" для карточки,
// если оно было набрано целиком заглавными или строчными буквами.
func DisplayCase(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" || (s != strings.ToUpper(s) && s != strings.ToLower(s)) {
		return s
	}
	return cases.Title(language.Und).String(strings.ToLower(s))
}
