// Package student содержит доменную модель справочника студентов.
//
// Пакет определяет:
//
//   - Сущность Student и её курсы (Course)
//   - Patch - значения строки импорта, разложенные по атрибутам
//   - FieldDefinition - каноничные поля и их синонимы
//   - MatchResult - результат сопоставления: нет / один / несколько кандидатов
//   - Интерфейсы репозиториев: Snapshotter, Writer, Repository, FieldCatalog
//
// # Нормализация
//
// Все сравнения имён, синонимов и адресов идут через NormalizeText:
// NFKC, case folding, унификация апострофов и тире, схлопывание пробелов.
//
//	NormalizeText("  ANNA  Ivanova ") // "anna ivanova"
//	Tokenize("O’Neil, Jean-Luc")      // ["o'neil", "jean-luc"]
//
// # Обновление записи
//
// Apply никогда не очищает поля: пустые значения строки пропускаются,
// адреса и алиасы объединяются, остальные поля заменяются.
//
//	s := existing.Clone()
//	changes := s.Apply(patch)
//	if len(changes) == 0 {
//	    // запись не изменилась
//	}
package student
