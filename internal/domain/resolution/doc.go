// Package resolution решает, к какому студенту относится запрос или строка импорта.
//
// Компоненты, от листьев к корню:
//
//   - Registry: каталог полей и таблица синонимов «метка -> каноничное поле».
//     Пересекающиеся синонимы - ошибка конфигурации (ErrAmbiguousSynonym).
//   - NameIndex: токен имени -> студенты, строится из снимка на каждую операцию.
//   - QueryMatcher: свободный текст -> NoMatch / UniqueMatch / AmbiguousMatch.
//   - MatchRow: строка импорта -> результат по приоритету email, telegram, имя.
//   - Reconciler: последовательный проход по строкам с созданием, обновлением,
//     группами дубликатов и отчётом.
//
// # Поиск
//
//	students, _ := repo.LoadStudents(ctx)
//	result := NewQueryMatcher(BuildNameIndex(students)).Match("Anna Ivanova")
//	if id, ok := result.ID(); ok {
//	    // показать карточку
//	}
//
// # Импорт
//
//	registry, err := NewRegistry(defs) // до обработки первой строки
//	if err != nil {
//	    return err
//	}
//	report, err := NewReconciler(registry, repo, repo).Run(ctx, rows)
//
// Неоднозначность никогда не разрешается молча: строка без единственного
// кандидата попадает в отчёт, а не в случайного студента.
package resolution
