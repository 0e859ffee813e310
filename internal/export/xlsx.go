// Package export writes batch results as an XLSX workbook.
package export

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/a3tai/mcp-customs-roi/internal/extraction"
	"github.com/a3tai/mcp-customs-roi/internal/fields"
)

const (
	ResultsSheet = "results"
	IssuesSheet  = "issues"
	SourceColumn = "source"
)

var numFmts = map[fields.ColumnFormat]string{
	fields.FormatDate:          "yyyy/mm/dd",
	fields.FormatFourDecimals:  "0.0000",
	fields.FormatGroupedNumber: "#,##0",
}

// FileName is the default name of an export created at t.
func FileName(t time.Time) string {
	return "수입신고필증_추출_" + t.Format("20060102_150405") + ".xlsx"
}

// Writer renders tables to XLSX bytes.
type Writer struct {
	logger *slog.Logger
}

// NewWriter creates a writer; a nil logger uses slog.Default.
func NewWriter(logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{logger: logger}
}

// Write renders the results sheet, one row per record with the catalog
// columns followed by the source file, and an issues sheet.
func (w *Writer) Write(table *extraction.Table, issues *extraction.IssueLog) ([]byte, error) {
	if table == nil {
		return nil, fmt.Errorf("export: %w", extraction.ErrEmptyBatch)
	}
	start := time.Now()

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", ResultsSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	headers := append(table.Columns(), SourceColumn)
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(ResultsSheet, cell, h); err != nil {
			return nil, fmt.Errorf("write header: %w", err)
		}
	}

	for i, rec := range table.Records {
		row := i + 2
		for _, fld := range fields.All() {
			cell, _ := excelize.CoordinatesToCellName(int(fld)+1, row)
			v, ok := cellValue(rec.Get(fld))
			if !ok {
				continue
			}
			if err := f.SetCellValue(ResultsSheet, cell, v); err != nil {
				return nil, fmt.Errorf("write %s: %w", cell, err)
			}
		}
		cell, _ := excelize.CoordinatesToCellName(len(headers), row)
		if err := f.SetCellValue(ResultsSheet, cell, rec.Document); err != nil {
			return nil, fmt.Errorf("write %s: %w", cell, err)
		}
	}

	if err := applyColumnFormats(f, table.Len()); err != nil {
		return nil, err
	}
	for i := range headers {
		col, _ := excelize.ColumnNumberToName(i + 1)
		_ = f.SetColWidth(ResultsSheet, col, col, 18)
	}

	if err := writeIssues(f, issues); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	w.logger.Info("export.xlsx.ok",
		"run_id", table.RunID,
		"rows", table.Len(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// cellValue maps a field value to what the cell should hold. Parseable
// dates become real dates; sentinels stay text.
func cellValue(v fields.Value) (any, bool) {
	switch v.Kind {
	case fields.KindDate:
		if d, ok := v.Date(); ok {
			return d, true
		}
		return v.Text, v.Text != ""
	case fields.KindFloat, fields.KindNumber:
		if !v.Valid {
			return nil, false
		}
		return v.Any(), true
	}
	return v.Text, v.Text != ""
}

func applyColumnFormats(f *excelize.File, rows int) error {
	if rows == 0 {
		return nil
	}
	for _, fld := range fields.All() {
		code, ok := numFmts[fld.Format()]
		if !ok {
			continue
		}
		style, err := f.NewStyle(&excelize.Style{CustomNumFmt: &code})
		if err != nil {
			return fmt.Errorf("style %s: %w", fld.Name(), err)
		}
		top, _ := excelize.CoordinatesToCellName(int(fld)+1, 2)
		bottom, _ := excelize.CoordinatesToCellName(int(fld)+1, rows+1)
		if err := f.SetCellStyle(ResultsSheet, top, bottom, style); err != nil {
			return fmt.Errorf("style %s: %w", fld.Name(), err)
		}
	}
	return nil
}

func writeIssues(f *excelize.File, issues *extraction.IssueLog) error {
	if _, err := f.NewSheet(IssuesSheet); err != nil {
		return fmt.Errorf("create issues sheet: %w", err)
	}
	for i, h := range []string{"document", "field", "severity", "message"} {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(IssuesSheet, cell, h)
	}
	if issues == nil {
		return nil
	}
	for i, is := range issues.All() {
		row := i + 2
		for col, v := range []string{is.Document, is.Field, is.Severity.String(), is.Message} {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellValue(IssuesSheet, cell, v); err != nil {
				return fmt.Errorf("write %s: %w", cell, err)
			}
		}
	}
	_ = f.SetColWidth(IssuesSheet, "A", "A", 28)
	_ = f.SetColWidth(IssuesSheet, "D", "D", 60)
	return nil
}
