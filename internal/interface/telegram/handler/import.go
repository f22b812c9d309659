package handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/jbcub/studentdir/internal/application/command"
	"github.com/jbcub/studentdir/internal/domain/resolution"
	"github.com/jbcub/studentdir/internal/domain/shared"
	"github.com/jbcub/studentdir/internal/infrastructure/csvimport"
	"github.com/jbcub/studentdir/internal/infrastructure/external/telegram"
	"github.com/jbcub/studentdir/internal/interface/telegram/presenter"
)

// ══════════════════════════════════════════════════════════════════════════════
// IMPORT HANDLER
// Handles CSV documents sent by administrators, plus /import and /report.
// ══════════════════════════════════════════════════════════════════════════════

// Importer runs a reconciliation pass.
type Importer interface {
	Handle(ctx context.Context, cmd command.ImportStudentsCommand) (*resolution.Report, error)
}

// LastReportReader returns the last report of a chat.
type LastReportReader interface {
	Handle(ctx context.Context, chatID int64) (*resolution.Report, error)
}

// FileFetcher downloads a document from Telegram.
type FileFetcher interface {
	GetFile(ctx context.Context, fileID string) (*telegram.File, error)
	DownloadFile(ctx context.Context, filePath string, maxBytes int64) ([]byte, error)
}

// ImportConfig limits uploads.
type ImportConfig struct {
	// MaxFileSize is the largest accepted document in bytes.
	MaxFileSize int64

	// MaxRows is the largest accepted number of data rows; 0 disables the check.
	MaxRows int
}

// ImportHandler handles spreadsheet uploads.
type ImportHandler struct {
	importer Importer
	reports  LastReportReader
	files    FileFetcher
	present  *presenter.ReportPresenter
	config   ImportConfig
	logger   *slog.Logger
}

// NewImportHandler creates a new ImportHandler.
func NewImportHandler(
	importer Importer,
	reports LastReportReader,
	files FileFetcher,
	present *presenter.ReportPresenter,
	config ImportConfig,
	logger *slog.Logger,
) *ImportHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ImportHandler{
		importer: importer,
		reports:  reports,
		files:    files,
		present:  present,
		config:   config,
		logger:   logger,
	}
}

// DocumentRequest contains an uploaded document.
type DocumentRequest struct {
	TelegramID int64
	ChatID     int64
	Document   *telegram.Document
	Caption    string
}

// Instructions answers /import.
func (h *ImportHandler) Instructions() *presenter.View {
	return h.present.FormatImportInstructions(h.config.MaxFileSize)
}

// LastReport answers /report.
func (h *ImportHandler) LastReport(ctx context.Context, chatID int64) (*presenter.View, error) {
	report, err := h.reports.Handle(ctx, chatID)
	if err != nil {
		return view("😔 Could not load the last report."), err
	}
	if report == nil {
		return h.present.FormatNoReport(), nil
	}
	return h.present.FormatReport(report), nil
}

// HandleDocument downloads, parses and imports a CSV document.
func (h *ImportHandler) HandleDocument(ctx context.Context, req DocumentRequest) (*presenter.View, error) {
	doc := req.Document
	if doc == nil {
		return view("No document found in the message."), nil
	}
	if !IsCSVDocument(doc) {
		return view("Unsupported file type. Please send a .csv file."), nil
	}
	if h.config.MaxFileSize > 0 && doc.FileSize > h.config.MaxFileSize {
		return h.tooLarge(), nil
	}

	log := h.logger.With("telegram_id", req.TelegramID, "file_name", doc.FileName)

	data, err := h.download(ctx, doc)
	if err != nil {
		if errors.Is(err, shared.ErrFileTooLarge) {
			return h.tooLarge(), nil
		}
		log.Error("failed to download import file", "error", err)
		return view("😔 Could not download the file. Please send it again."), err
	}

	rows, err := csvimport.Read(bytes.NewReader(data), csvimport.Options{MaxRows: h.config.MaxRows})
	switch {
	case errors.Is(err, csvimport.ErrNoHeader):
		return view("The file is empty."), nil
	case errors.Is(err, csvimport.ErrTooManyRows):
		return view(fmt.Sprintf("The file has too many rows (limit %d). Split it and import the parts one by one.", h.config.MaxRows)), nil
	case err != nil:
		log.Warn("unreadable import file", "error", err)
		return view("Could not read the file as CSV."), nil
	}

	report, err := h.importer.Handle(ctx, command.ImportStudentsCommand{
		Rows:        rows,
		DryRun:      IsDryRunCaption(req.Caption),
		ChatID:      req.ChatID,
		RequestedBy: fmt.Sprintf("telegram:%d", req.TelegramID),
	})
	return h.importResult(report, err, log)
}

func (h *ImportHandler) importResult(report *resolution.Report, err error, log *slog.Logger) (*presenter.View, error) {
	var synErr *resolution.AmbiguousSynonymError

	switch {
	case err == nil:
		return h.present.FormatReport(report), nil
	case report != nil:
		// Прогон прерван: показываем, что успело обработаться.
		v := h.present.FormatReport(report)
		v.Text = "⚠️ The import was interrupted; the report covers the processed rows.\n\n" + v.Text
		return v, err
	case errors.Is(err, shared.ErrNoImportRows):
		return view("The file has a header but no data rows."), nil
	case errors.Is(err, shared.ErrImportInProgress):
		return view("Another import is running. Try again when it finishes."), nil
	case errors.As(err, &synErr):
		var sb strings.Builder
		sb.WriteString("❌ The field catalogue is inconsistent, nothing was imported.\n")
		for _, c := range synErr.Conflicts {
			sb.WriteString(fmt.Sprintf("\n<code>%s</code> → %s", escapeHTML(c.Label), escapeHTML(strings.Join(c.Fields, ", "))))
		}
		return view(sb.String()), nil
	default:
		log.Error("import failed", "error", err)
		return view("😔 Failed to import the file. Nothing was changed."), err
	}
}

func (h *ImportHandler) download(ctx context.Context, doc *telegram.Document) ([]byte, error) {
	file, err := h.files.GetFile(ctx, doc.FileID)
	if err != nil {
		return nil, err
	}
	if file.FilePath == "" {
		return nil, errors.New("telegram returned no file path")
	}
	return h.files.DownloadFile(ctx, file.FilePath, h.config.MaxFileSize)
}

func (h *ImportHandler) tooLarge() *presenter.View {
	return view(fmt.Sprintf("The file is too large. The limit is %d KB.", h.config.MaxFileSize>>10))
}

// IsCSVDocument accepts files named *.csv or sent with a CSV mime type.
func IsCSVDocument(doc *telegram.Document) bool {
	if strings.EqualFold(path.Ext(doc.FileName), ".csv") {
		return true
	}
	switch strings.ToLower(doc.MimeType) {
	case "text/csv", "text/comma-separated-values", "application/csv":
		return true
	}
	return false
}

// IsDryRunCaption reports whether the document caption asks for a dry run.
func IsDryRunCaption(caption string) bool {
	for _, word := range strings.Fields(strings.ToLower(caption)) {
		switch strings.Trim(word, "-/") {
		case "dry", "dry-run", "dryrun", "preview":
			return true
		}
	}
	return false
}
