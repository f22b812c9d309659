// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jbcub/studentdir/internal/domain/resolution"
	"github.com/jbcub/studentdir/internal/domain/shared"
	"github.com/jbcub/studentdir/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// IMPORT STUDENTS COMMAND
// Сверяет строки таблицы со справочником: создаёт новых студентов,
// обновляет найденных, а неоднозначные строки и дубликаты выносит в отчёт.
// Каталог полей проверяется до первой строки: конфликт синонимов
// прерывает импорт, не тронув справочник.
// ══════════════════════════════════════════════════════════════════════════════

// ImportStudentsCommand содержит строки одного импорта.
type ImportStudentsCommand struct {
	// Rows - строки таблицы с подписями столбцов.
	Rows []resolution.ImportRow

	// DryRun - посчитать отчёт без записи.
	DryRun bool

	// ChatID - чат, для которого сохранить отчёт (0 - не сохранять).
	ChatID int64

	// RequestedBy - кто запустил импорт, для логов ("telegram:123", "cli").
	RequestedBy string
}

// Validate проверяет команду.
func (c ImportStudentsCommand) Validate() error {
	if len(c.Rows) == 0 {
		return shared.ErrNoImportRows
	}
	return nil
}

// ImportLock сериализует импорты между процессами.
type ImportLock interface {
	TryAcquire(ctx context.Context) (release func(), ok bool, err error)
}

// ReportStore хранит последний отчёт импорта по чату.
type ReportStore interface {
	SaveReport(ctx context.Context, chatID int64, r *resolution.Report) error
	LastReport(ctx context.Context, chatID int64) (*resolution.Report, error)
}

// ImportObserver получает итог каждого импорта (метрики).
// Report == nil означает, что импорт прерван до обработки строк.
type ImportObserver interface {
	ObserveImport(r *resolution.Report, d time.Duration)
}

// ImportStudentsConfig - параметры обработчика.
type ImportStudentsConfig struct {
	DefaultAdmissionYear int
	Logger               *slog.Logger
}

// ImportStudentsHandler обрабатывает импорт.
type ImportStudentsHandler struct {
	directory student.Repository
	catalog   student.FieldCatalog
	lock      ImportLock
	reports   ReportStore
	observer  ImportObserver
	config    ImportStudentsConfig

	// local сериализует импорты внутри процесса, если общего замка нет.
	local sync.Mutex
}

// NewImportStudentsHandler создаёт обработчик. lock, reports и observer могут быть nil.
func NewImportStudentsHandler(
	directory student.Repository,
	catalog student.FieldCatalog,
	lock ImportLock,
	reports ReportStore,
	observer ImportObserver,
	config ImportStudentsConfig,
) *ImportStudentsHandler {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.DefaultAdmissionYear == 0 {
		config.DefaultAdmissionYear = resolution.DefaultAdmissionYear
	}
	return &ImportStudentsHandler{
		directory: directory,
		catalog:   catalog,
		lock:      lock,
		reports:   reports,
		observer:  observer,
		config:    config,
	}
}

// Handle выполняет импорт и возвращает отчёт.
//
// Ошибка без отчёта - импорт не начался (нет строк, конфликт синонимов,
// идёт другой импорт, справочник недоступен). Ошибка вместе с отчётом -
// прогон прерван отменой контекста; отчёт описывает обработанную часть.
func (h *ImportStudentsHandler) Handle(ctx context.Context, cmd ImportStudentsCommand) (*resolution.Report, error) {
	start := time.Now()
	log := h.config.Logger.With("requested_by", cmd.RequestedBy, "dry_run", cmd.DryRun)

	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	registry, err := h.loadRegistry(ctx)
	if err != nil {
		h.observe(nil, start)
		log.Warn("import aborted: field catalogue rejected", "error", err)
		return nil, err
	}

	release, err := h.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	reconciler := resolution.NewReconciler(registry, h.directory, h.directory,
		resolution.WithLogger(log),
		resolution.WithDryRun(cmd.DryRun),
		resolution.WithDefaultAdmissionYear(h.config.DefaultAdmissionYear),
	)

	report, runErr := reconciler.Run(ctx, cmd.Rows)
	if report == nil {
		h.observe(nil, start)
		return nil, fmt.Errorf("import students: %w", runErr)
	}

	if cmd.ChatID != 0 && h.reports != nil {
		if err := h.reports.SaveReport(ctx, cmd.ChatID, report); err != nil {
			log.Warn("failed to store import report", "run_id", report.RunID, "error", err)
		}
	}
	h.observe(report, start)

	if runErr != nil {
		return report, fmt.Errorf("import students interrupted: %w", runErr)
	}
	return report, nil
}

// loadRegistry читает каталог и строит реестр синонимов.
func (h *ImportStudentsHandler) loadRegistry(ctx context.Context) (*resolution.Registry, error) {
	defs, err := h.catalog.LoadFieldDefinitions(ctx)
	if err != nil {
		return nil, fmt.Errorf("load field definitions: %w", err)
	}
	registry, err := resolution.NewRegistry(defs)
	if err != nil {
		return nil, err
	}
	return registry, nil
}

func (h *ImportStudentsHandler) acquire(ctx context.Context) (func(), error) {
	if h.lock == nil {
		if !h.local.TryLock() {
			return nil, shared.ErrImportInProgress
		}
		return h.local.Unlock, nil
	}

	release, ok, err := h.lock.TryAcquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire import lock: %w", err)
	}
	if !ok {
		return nil, shared.ErrImportInProgress
	}
	return release, nil
}

func (h *ImportStudentsHandler) observe(r *resolution.Report, start time.Time) {
	if h.observer != nil {
		h.observer.ObserveImport(r, time.Since(start))
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// IN-MEMORY REPORT STORE
// Используется, когда Redis отключён; отчёты живут до перезапуска процесса.
// ══════════════════════════════════════════════════════════════════════════════

// MemoryReportStore хранит последний отчёт каждого чата в памяти.
type MemoryReportStore struct {
	mu      sync.RWMutex
	reports map[int64]*resolution.Report
}

// NewMemoryReportStore создаёт пустое хранилище.
func NewMemoryReportStore() *MemoryReportStore {
	return &MemoryReportStore{reports: make(map[int64]*resolution.Report)}
}

// SaveReport запоминает отчёт чата.
func (s *MemoryReportStore) SaveReport(_ context.Context, chatID int64, r *resolution.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[chatID] = r
	return nil
}

// LastReport возвращает последний отчёт или nil.
func (s *MemoryReportStore) LastReport(_ context.Context, chatID int64) (*resolution.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reports[chatID], nil
}
