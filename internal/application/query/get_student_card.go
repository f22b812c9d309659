package query

import (
	"context"
	"fmt"

	"github.com/jbcub/studentdir/internal/domain/shared"
	"github.com/jbcub/studentdir/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET STUDENT CARD QUERY
// Открывает карточку по ID: кнопка кандидата в списке, "Курсы", "Прочее".
// ══════════════════════════════════════════════════════════════════════════════

// StudentReader читает одного студента.
type StudentReader interface {
	GetByID(ctx context.Context, id shared.StudentID) (*student.Student, error)
}

// GetStudentCardQuery содержит параметры запроса карточки.
type GetStudentCardQuery struct {
	StudentID string

	// IncludeSecret - показывать секретный комментарий (только для админов).
	IncludeSecret bool
}

// GetStudentCardHandler обрабатывает запрос карточки.
type GetStudentCardHandler struct {
	students StudentReader
	catalog  student.FieldCatalog
}

// NewGetStudentCardHandler создаёт обработчик. catalog может быть nil.
func NewGetStudentCardHandler(students StudentReader, catalog student.FieldCatalog) *GetStudentCardHandler {
	return &GetStudentCardHandler{students: students, catalog: catalog}
}

// Handle возвращает карточку или ErrStudentNotFound.
func (h *GetStudentCardHandler) Handle(ctx context.Context, q GetStudentCardQuery) (*StudentCardDTO, error) {
	id, err := shared.NewStudentID(q.StudentID)
	if err != nil {
		return nil, err
	}

	s, err := h.students.GetByID(ctx, id)
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, shared.ErrStudentNotFound
		}
		return nil, fmt.Errorf("get student card: %w", err)
	}

	return newStudentCard(s, loadLabels(ctx, h.catalog), q.IncludeSecret), nil
}
