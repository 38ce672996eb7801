// Package export writes harvested rows into spreadsheet workbooks.
package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/procurio/ted-harvester/internal/ted"
)

const (
	sheetName = "Sheet1"
	tableName = "Teddata"
	// Banded-row style matching the business template the output replaces.
	tableStyle  = "TableStyleMedium9"
	maxColWidth = 80
)

// Writer produces one workbook per harvest run. The header row is always
// written, even for an empty result set.
type Writer struct{}

// NewWriter returns a spreadsheet writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Write renders the rows under the fixed column order and saves the workbook
// to path. Rows are formatted as a named table so spreadsheet applications
// offer filtering and banding out of the box.
func (w *Writer) Write(path string, rows []ted.Row) error {
	f := excelize.NewFile()
	defer f.Close()

	headers := ted.Headers()
	if err := f.SetSheetRow(sheetName, "A1", &headers); err != nil {
		return fmt.Errorf("write header row: %w", err)
	}
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}

	for i, row := range rows {
		cells := make([]any, len(headers))
		for j, h := range headers {
			cells[j] = row[h]
			if l := len(row[h]); l > widths[j] {
				widths[j] = l
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("row coordinates: %w", err)
		}
		if err := f.SetSheetRow(sheetName, cell, &cells); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	for i, width := range widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return fmt.Errorf("column name: %w", err)
		}
		if width > maxColWidth {
			width = maxColWidth
		}
		if err := f.SetColWidth(sheetName, col, col, float64(width+2)); err != nil {
			return fmt.Errorf("set column width: %w", err)
		}
	}

	// A table range needs at least one data row; a header-only sheet is
	// saved without the table decoration.
	if len(rows) > 0 {
		lastCol, err := excelize.ColumnNumberToName(len(headers))
		if err != nil {
			return fmt.Errorf("column name: %w", err)
		}
		stripes := true
		table := &excelize.Table{
			Range:          fmt.Sprintf("A1:%s%d", lastCol, len(rows)+1),
			Name:           tableName,
			StyleName:      tableStyle,
			ShowRowStripes: &stripes,
		}
		if err := f.AddTable(sheetName, table); err != nil {
			return fmt.Errorf("add table: %w", err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}
