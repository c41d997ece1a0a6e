// Package extract loads spreadsheet workbooks and mines them for requirement
// candidates with cell-level provenance.
package extract

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// MergedRange is a merged-cell range with its anchor value.
type MergedRange struct {
	Range    string
	StartRow int // 1-based
	EndRow   int
	StartCol int // 1-based
	EndCol   int
	Value    string
}

// Sheet is one worksheet: a header row, column-major data, and merged ranges.
// Column names come from the first row; blank header cells get "Column N"
// placeholders so every column has an identifier.
type Sheet struct {
	Name        string
	ColumnNames []string
	Rows        [][]string // data rows, header excluded; ragged rows padded
	Merged      []MergedRange
}

// Workbook is a loaded spreadsheet with sheets in original file order.
type Workbook struct {
	FileName string
	Sheets   []*Sheet
}

// SheetNames returns sheet names in original file order.
func (w *Workbook) SheetNames() []string {
	names := make([]string, len(w.Sheets))
	for i, s := range w.Sheets {
		names[i] = s.Name
	}
	return names
}

// Sheet returns the named sheet, or nil when absent.
func (w *Workbook) Sheet(name string) *Sheet {
	for _, s := range w.Sheets {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// Column returns all data values of column idx, padded with empty strings for
// short rows.
func (s *Sheet) Column(idx int) []string {
	values := make([]string, len(s.Rows))
	for i, row := range s.Rows {
		if idx < len(row) {
			values[i] = row[idx]
		}
	}
	return values
}

// LoadWorkbook opens an Excel file and converts it to the workbook
// abstraction: ordered sheets, per-sheet grids, merged-cell ranges.
func LoadWorkbook(path string) (*Workbook, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()
	return readWorkbook(f, filepath.Base(path))
}

// LoadWorkbookReader is LoadWorkbook for in-memory content (uploads).
func LoadWorkbookReader(r io.Reader, fileName string) (*Workbook, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()
	return readWorkbook(f, fileName)
}

func readWorkbook(f *excelize.File, fileName string) (*Workbook, error) {
	wb := &Workbook{FileName: fileName}
	for _, name := range f.GetSheetList() {
		sheet, err := readSheet(f, name)
		if err != nil {
			// A failing sheet yields no data but doesn't abort the load;
			// sibling sheets continue processing.
			wb.Sheets = append(wb.Sheets, &Sheet{Name: name})
			continue
		}
		wb.Sheets = append(wb.Sheets, sheet)
	}
	if len(wb.Sheets) == 0 {
		return nil, fmt.Errorf("workbook %q has no sheets", fileName)
	}
	return wb, nil
}

func readSheet(f *excelize.File, name string) (*Sheet, error) {
	rows, err := f.GetRows(name)
	if err != nil {
		return nil, fmt.Errorf("get rows for sheet %q: %w", name, err)
	}

	sheet := &Sheet{Name: name}
	if len(rows) > 0 {
		sheet.ColumnNames = headerNames(rows[0], maxWidth(rows))
		sheet.Rows = padRows(rows[1:], len(sheet.ColumnNames))
	}

	merged, err := f.GetMergeCells(name)
	if err == nil {
		for _, m := range merged {
			startCol, startRow, err1 := excelize.CellNameToCoordinates(m.GetStartAxis())
			endCol, endRow, err2 := excelize.CellNameToCoordinates(m.GetEndAxis())
			if err1 != nil || err2 != nil {
				continue
			}
			sheet.Merged = append(sheet.Merged, MergedRange{
				Range:    m.GetStartAxis() + ":" + m.GetEndAxis(),
				StartRow: startRow,
				EndRow:   endRow,
				StartCol: startCol,
				EndCol:   endCol,
				Value:    m.GetCellValue(),
			})
		}
	}
	return sheet, nil
}

// headerNames builds column identifiers from the header row, assigning
// "Column N" placeholders to blank header cells and to columns past the
// header row's width.
func headerNames(header []string, width int) []string {
	if width < len(header) {
		width = len(header)
	}
	names := make([]string, width)
	for i := 0; i < width; i++ {
		name := ""
		if i < len(header) {
			name = strings.TrimSpace(header[i])
		}
		if name == "" {
			name = fmt.Sprintf("Column %d", i+1)
		}
		names[i] = name
	}
	return names
}

func maxWidth(rows [][]string) int {
	w := 0
	for _, row := range rows {
		if len(row) > w {
			w = len(row)
		}
	}
	return w
}

func padRows(rows [][]string, width int) [][]string {
	padded := make([][]string, len(rows))
	for i, row := range rows {
		if len(row) >= width {
			padded[i] = row
			continue
		}
		p := make([]string, width)
		copy(p, row)
		padded[i] = p
	}
	return padded
}

// CellRef converts 0-based data-row and column indices to a 1-based,
// lettered spreadsheet reference like "B5". The +2 accounts for 1-based
// rows plus the header row.
func CellRef(colIdx, dataRowIdx int) string {
	name, err := excelize.ColumnNumberToName(colIdx + 1)
	if err != nil {
		name = "?"
	}
	return fmt.Sprintf("%s%d", name, dataRowIdx+2)
}
