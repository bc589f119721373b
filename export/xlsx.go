package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// XLSXContentType is the media type of WriteXLSX output.
const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const (
	sheetName   = "Data"
	columnWidth = 15
)

// WriteXLSX writes t as a single-sheet workbook with a bold header row.
func WriteXLSX(w io.Writer, t Table) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}

	names := t.Names()
	header := make([]any, len(names))
	for i, n := range names {
		header[i] = n
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}
	if err := f.SetRowStyle(sheetName, 1, 1, bold); err != nil {
		return fmt.Errorf("styling header: %w", err)
	}

	for r, row := range t.Rows {
		values := make([]any, len(names))
		for i := range names {
			values[i] = xlsxValue(cell(row, i))
		}
		ref, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheetName, ref, &values); err != nil {
			return fmt.Errorf("writing row %d: %w", r+1, err)
		}
	}

	if len(names) > 0 {
		last, err := excelize.ColumnNumberToName(len(names))
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheetName, "A", last, columnWidth); err != nil {
			return fmt.Errorf("setting column width: %w", err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

// xlsxValue keeps scalars typed and flattens nested JSON into text.
func xlsxValue(v any) any {
	switch v.(type) {
	case nil:
		return ""
	case string, float64, bool:
		return v
	default:
		return FormatValue(v)
	}
}
