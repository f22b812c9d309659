package command

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jbcub/studentdir/internal/domain/resolution"
	"github.com/jbcub/studentdir/internal/domain/shared"
	"github.com/jbcub/studentdir/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// SEED FIELDS COMMAND
// Записывает каталог полей (встроенный или из YAML-файла).
// Каталог с пересекающимися синонимами не сохраняется.
// ══════════════════════════════════════════════════════════════════════════════

// SeedFieldsCommand содержит новый каталог.
type SeedFieldsCommand struct {
	Definitions []student.FieldDefinition

	// Replace - перезаписать непустой каталог. Без флага каталог
	// записывается только в пустую таблицу (первый запуск).
	Replace bool
}

// SeedFieldsHandler обрабатывает запись каталога.
type SeedFieldsHandler struct {
	catalog student.FieldCatalog
	logger  *slog.Logger
}

// NewSeedFieldsHandler создаёт обработчик.
func NewSeedFieldsHandler(catalog student.FieldCatalog, logger *slog.Logger) *SeedFieldsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SeedFieldsHandler{catalog: catalog, logger: logger}
}

// Handle сохраняет каталог и сообщает, был ли он записан.
func (h *SeedFieldsHandler) Handle(ctx context.Context, cmd SeedFieldsCommand) (bool, error) {
	if len(cmd.Definitions) == 0 {
		return false, shared.NewDomainError("catalog", "Seed", shared.ErrEmptyValue, "field catalogue is empty")
	}
	if _, err := resolution.NewRegistry(cmd.Definitions); err != nil {
		return false, err
	}

	if !cmd.Replace {
		existing, err := h.catalog.LoadFieldDefinitions(ctx)
		if err != nil {
			return false, fmt.Errorf("seed fields: %w", err)
		}
		if len(existing) > 0 {
			h.logger.Debug("field catalogue already present", "fields", len(existing))
			return false, nil
		}
	}

	if err := h.catalog.SaveFieldDefinitions(ctx, cmd.Definitions); err != nil {
		return false, fmt.Errorf("seed fields: %w", err)
	}
	h.logger.Info("field catalogue saved", "fields", len(cmd.Definitions), "replace", cmd.Replace)
	return true, nil
}
