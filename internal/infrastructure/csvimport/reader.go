// Package csvimport turns an uploaded spreadsheet export into import rows.
//
// The first record is the header and gives the column labels. Each data row
// is numbered by the source line it starts on, so report positions can be
// found in the original file even when it has blank lines or quoted cells
// spanning several lines.
package csvimport

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/jbcub/studentdir/internal/domain/resolution"
)

var (
	// ErrNoHeader is returned for an empty file.
	ErrNoHeader = errors.New("csvimport: file has no header row")

	// ErrTooManyRows is returned when the file exceeds Options.MaxRows.
	ErrTooManyRows = errors.New("csvimport: too many rows")
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Options tune the reader.
type Options struct {
	// MaxRows limits the number of data rows; 0 means no limit.
	MaxRows int
}

// Read parses CSV data. The delimiter is "," unless the header line
// contains more ";" than "," (spreadsheet exports in some locales).
// Invalid UTF-8 is replaced rather than rejected.
func Read(r io.Reader, opts Options) ([]resolution.ImportRow, error) {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	data, err := io.ReadAll(br)
	if err != nil {
		return nil, fmt.Errorf("csvimport: read: %w", err)
	}
	if !utf8.Valid(data) {
		data = []byte(strings.ToValidUTF8(string(data), "�"))
	}

	cr := csv.NewReader(bytes.NewReader(data))
	cr.Comma = sniffDelimiter(data)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, fmt.Errorf("csvimport: header: %w", err)
	}
	labels := make([]string, len(header))
	empty := true
	for i, h := range header {
		labels[i] = strings.TrimSpace(h)
		if labels[i] != "" {
			empty = false
		}
	}
	if empty {
		return nil, ErrNoHeader
	}

	var rows []resolution.ImportRow
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csvimport: %w", err)
		}
		position, _ := cr.FieldPos(0)
		if opts.MaxRows > 0 && len(rows) >= opts.MaxRows {
			return nil, fmt.Errorf("%w: more than %d", ErrTooManyRows, opts.MaxRows)
		}

		row := resolution.ImportRow{Position: position, Cells: make([]resolution.Cell, 0, len(labels))}
		for i, label := range labels {
			if label == "" {
				continue
			}
			value := ""
			if i < len(record) {
				value = strings.TrimSpace(record[i])
			}
			row.Cells = append(row.Cells, resolution.Cell{Label: label, Value: value})
		}
		rows = append(rows, row)
	}

	return rows, nil
}

func sniffDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	if bytes.Count(line, []byte{';'}) > bytes.Count(line, []byte{','}) {
		return ';'
	}
	return ','
}
