package student

import (
	"context"

	"github.com/jbcub/studentdir/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Эти интерфейсы определяют контракт для работы с хранилищем данных.
// Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Snapshotter читает текущее состояние справочника.
type Snapshotter interface {
	// LoadStudents возвращает всех студентов в стабильном порядке
	// (фамилия, имена, ID). Порядок определяет порядок кандидатов в ответах.
	LoadStudents(ctx context.Context) ([]*Student, error)
}

// Writer сохраняет результаты сверки.
type Writer interface {
	// Create сохраняет нового студента и возвращает его ID.
	// Возвращает ErrTelegramHandleTaken, если handle уже занят.
	Create(ctx context.Context, s *Student) (shared.StudentID, error)

	// Update сохраняет изменённую запись вместе с журналом изменений.
	// Либо запись и журнал сохраняются целиком, либо ничего.
	Update(ctx context.Context, s *Student, changes []FieldChange) error
}

// Repository - полный набор операций со справочником.
type Repository interface {
	Snapshotter
	Writer

	// GetByID возвращает студента по ID.
	// Возвращает ErrStudentNotFound, если студент не найден.
	GetByID(ctx context.Context, id shared.StudentID) (*Student, error)

	// Count возвращает общее количество студентов.
	Count(ctx context.Context) (int, error)
}

// FieldCatalog хранит каталог каноничных полей.
type FieldCatalog interface {
	// LoadFieldDefinitions возвращает все описания полей.
	LoadFieldDefinitions(ctx context.Context) ([]FieldDefinition, error)

	// SaveFieldDefinitions заменяет каталог целиком.
	SaveFieldDefinitions(ctx context.Context, defs []FieldDefinition) error
}

// ══════════════════════════════════════════════════════════════════════════════
// CHANGE SOURCE
// ══════════════════════════════════════════════════════════════════════════════

type changeSourceKey struct{}

// WithChangeSource помечает контекст источником изменений (например, ID импорта),
// который репозиторий запишет в журнал.
func WithChangeSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, changeSourceKey{}, source)
}

// ChangeSource возвращает источник изменений из контекста.
func ChangeSource(ctx context.Context) string {
	if v, ok := ctx.Value(changeSourceKey{}).(string); ok {
		return v
	}
	return ""
}
