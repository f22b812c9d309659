package query

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jbcub/studentdir/internal/domain/resolution"
	"github.com/jbcub/studentdir/internal/domain/shared"
	"github.com/jbcub/studentdir/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// SEARCH STUDENTS QUERY
// Свободный текст из чата -> карточка, список кандидатов или "не найдено".
// Снимок справочника и индекс имён строятся заново на каждый запрос,
// поэтому результат всегда отражает последние записи импорта.
// ══════════════════════════════════════════════════════════════════════════════

// DefaultCandidateLimit - сколько кандидатов показывать в списке.
const DefaultCandidateLimit = 10

// SearchStudentsQuery содержит параметры поиска.
type SearchStudentsQuery struct {
	// Text - текст сообщения пользователя.
	Text string

	// Limit - максимум кандидатов в ответе (по умолчанию 10).
	Limit int

	// IncludeSecret - показывать секретный комментарий (только для админов).
	IncludeSecret bool
}

// Validate проверяет корректность параметров запроса.
func (q *SearchStudentsQuery) Validate() error {
	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" {
		return shared.NewDomainError("search", "Validate", shared.ErrEmptyValue, "query text is empty")
	}
	if q.Limit <= 0 {
		q.Limit = DefaultCandidateLimit
	}
	return nil
}

// SearchOutcome - итог поиска для презентера и метрик.
type SearchOutcome string

const (
	OutcomeNone      SearchOutcome = "none"
	OutcomeUnique    SearchOutcome = "unique"
	OutcomeAmbiguous SearchOutcome = "ambiguous"
)

// CandidateDTO - строка списка кандидатов.
type CandidateDTO struct {
	StudentID     string `json:"student_id"`
	FullName      string `json:"full_name"`
	AdmissionYear int    `json:"admission_year"`
}

// SearchStudentsResult - результат поиска.
type SearchStudentsResult struct {
	Outcome SearchOutcome `json:"outcome"`

	// Card заполнена только при OutcomeUnique.
	Card *StudentCardDTO `json:"card,omitempty"`

	// Candidates - первые Limit кандидатов при OutcomeAmbiguous,
	// в порядке индекса (фамилия, имена, ID).
	Candidates []CandidateDTO `json:"candidates,omitempty"`

	// Total - сколько кандидатов найдено всего.
	Total int `json:"total"`
}

// SearchObserver получает итог каждого поиска (метрики).
type SearchObserver interface {
	ObserveSearch(outcome string, d time.Duration)
}

// SearchStudentsHandler обрабатывает поиск.
type SearchStudentsHandler struct {
	snapshots student.Snapshotter
	catalog   student.FieldCatalog
	observer  SearchObserver
	logger    *slog.Logger
}

// NewSearchStudentsHandler создаёт обработчик. catalog и observer могут быть nil.
func NewSearchStudentsHandler(
	snapshots student.Snapshotter,
	catalog student.FieldCatalog,
	observer SearchObserver,
	logger *slog.Logger,
) *SearchStudentsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SearchStudentsHandler{
		snapshots: snapshots,
		catalog:   catalog,
		observer:  observer,
		logger:    logger,
	}
}

// Handle выполняет поиск. NoMatch и неоднозначность - не ошибки:
// ошибка возвращается только при сбое чтения справочника.
func (h *SearchStudentsHandler) Handle(ctx context.Context, q SearchStudentsQuery) (*SearchStudentsResult, error) {
	start := time.Now()

	if err := q.Validate(); err != nil {
		return nil, err
	}

	students, err := h.snapshots.LoadStudents(ctx)
	if err != nil {
		h.observe("error", start)
		return nil, fmt.Errorf("search students: load snapshot: %w", err)
	}

	byID := make(map[shared.StudentID]*student.Student, len(students))
	for _, s := range students {
		byID[s.ID] = s
	}

	match := resolution.NewQueryMatcher(resolution.BuildNameIndex(students)).Match(q.Text)
	result := &SearchStudentsResult{Outcome: OutcomeNone}

	switch {
	case match.IsUnique():
		id, _ := match.ID()
		s, ok := byID[id]
		if !ok {
			break
		}
		result.Outcome = OutcomeUnique
		result.Total = 1
		result.Card = newStudentCard(s, loadLabels(ctx, h.catalog), q.IncludeSecret)

	case match.IsAmbiguous():
		ids := match.Candidates()
		result.Outcome = OutcomeAmbiguous
		result.Total = len(ids)
		for _, id := range ids {
			if len(result.Candidates) == q.Limit {
				break
			}
			s, ok := byID[id]
			if !ok {
				continue
			}
			result.Candidates = append(result.Candidates, CandidateDTO{
				StudentID:     s.ID.String(),
				FullName:      s.FullName(),
				AdmissionYear: s.AdmissionYear,
			})
		}
	}

	h.observe(string(result.Outcome), start)
	h.logger.Debug("search handled",
		"outcome", result.Outcome,
		"total", result.Total,
		"students", len(students),
	)
	return result, nil
}

func (h *SearchStudentsHandler) observe(outcome string, start time.Time) {
	if h.observer != nil {
		h.observer.ObserveSearch(outcome, time.Since(start))
	}
}
