package query

import (
	"context"
	"fmt"

	"github.com/jbcub/studentdir/internal/domain/resolution"
)

// ReportReader отдаёт последний отчёт импорта чата.
type ReportReader interface {
	LastReport(ctx context.Context, chatID int64) (*resolution.Report, error)
}

// GetLastReportHandler обрабатывает /report.
type GetLastReportHandler struct {
	reports ReportReader
}

// NewGetLastReportHandler создаёт обработчик.
func NewGetLastReportHandler(reports ReportReader) *GetLastReportHandler {
	return &GetLastReportHandler{reports: reports}
}

// Handle возвращает последний отчёт или nil, если импортов ещё не было.
func (h *GetLastReportHandler) Handle(ctx context.Context, chatID int64) (*resolution.Report, error) {
	report, err := h.reports.LastReport(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("get last report: %w", err)
	}
	return report, nil
}
