package rtm

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/reqtrace/rtmgen/internal/models"
)

var detailColumns = []string{
	"Requirement ID", "Requirement Description", "Source",
	"Requirement Type", "Priority", "Priority Reasoning",
	"Status", "Related Deliverables", "Test Case ID",
	"Test Case Suggestions", "Comments", "Analysis Confidence",
	"Original ID", "Analysis Method",
}

var completeColumns = []string{
	"Requirement ID", "Requirement Description", "Source Sheet",
	"Source Reference", "Requirement Type", "Priority",
	"Status", "Related Deliverables", "Test Case ID",
	"Comments", "Original ID",
}

// Writer renders the three-sheet RTM workbook: a detailed view of the focus
// sheet, the complete matrix in source sheet order, and summary statistics.
type Writer struct {
	focusSheet string
	now        func() time.Time
}

// NewWriter creates a workbook writer. focusSheet names the sheet that gets
// the detailed view; it may be empty.
func NewWriter(focusSheet string) *Writer {
	return &Writer{focusSheet: focusSheet, now: time.Now}
}

// Write renders entries and stats to an xlsx file at path.
func (w *Writer) Write(path string, entries []*models.RTMEntry, stats *models.RTMStats) error {
	f := excelize.NewFile()
	defer f.Close()

	styles, err := newStyleSet(f)
	if err != nil {
		return fmt.Errorf("build workbook styles: %w", err)
	}

	detailName := "Detailed Analysis"
	if w.focusSheet != "" {
		detailName = sheetTitle("Detailed Analysis - " + w.focusSheet)
	}
	if err := f.SetSheetName("Sheet1", detailName); err != nil {
		return fmt.Errorf("rename detail sheet: %w", err)
	}
	if err := w.writeDetailSheet(f, detailName, styles, entries); err != nil {
		return err
	}

	completeName := "Complete RTM - All Sheets"
	if _, err := f.NewSheet(completeName); err != nil {
		return fmt.Errorf("create complete sheet: %w", err)
	}
	if err := w.writeCompleteSheet(f, completeName, styles, entries); err != nil {
		return err
	}

	summaryName := "Summary Statistics"
	if _, err := f.NewSheet(summaryName); err != nil {
		return fmt.Errorf("create summary sheet: %w", err)
	}
	if err := w.writeSummarySheet(f, summaryName, styles, entries, stats); err != nil {
		return err
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

type styleSet struct {
	header    int
	wrapped   int
	bold      int
	title     int
	separator int
	focusMark int
}

func newStyleSet(f *excelize.File) (*styleSet, error) {
	s := &styleSet{}
	var err error
	s.header, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"366092"}},
		Alignment: &excelize.Alignment{Horizontal: "center", WrapText: true},
	})
	if err != nil {
		return nil, err
	}
	s.wrapped, err = f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
	})
	if err != nil {
		return nil, err
	}
	s.bold, err = f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	s.title, err = f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 16}})
	if err != nil {
		return nil, err
	}
	s.separator, err = f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Italic: true}})
	if err != nil {
		return nil, err
	}
	s.focusMark, err = f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Color: "FF0000"}})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (w *Writer) writeDetailSheet(f *excelize.File, sheet string, styles *styleSet, entries []*models.RTMEntry) error {
	if err := writeHeader(f, sheet, styles, detailColumns); err != nil {
		return err
	}

	row := 2
	written := 0
	for _, e := range entries {
		if w.focusSheet != "" && e.SheetName != w.focusSheet {
			continue
		}
		values := []interface{}{
			e.ID, e.Description, e.Source,
			string(e.RequirementType), string(e.Priority), e.PriorityReasoning,
			string(e.Status), e.RelatedDeliverables, e.TestCaseID,
			strings.Join(e.TestCaseSuggestions, "\n"), e.Comments, e.Confidence,
			e.OriginalID, analysisMethod(e),
		}
		if err := writeRow(f, sheet, row, values); err != nil {
			return err
		}
		for _, col := range []string{"B", "F", "J", "K"} {
			cell := fmt.Sprintf("%s%d", col, row)
			if err := f.SetCellStyle(sheet, cell, cell, styles.wrapped); err != nil {
				return err
			}
		}
		row++
		written++
	}

	infoRow := row + 2
	info := []string{
		"Sheet Information:",
		"Focus Sheet: " + w.focusSheet,
		fmt.Sprintf("Total Requirements: %d", written),
		"Analysis Type: Detailed (Priority Sheet)",
		"Generated: " + w.now().Format("2006-01-02 15:04:05"),
	}
	for i, line := range info {
		cell := fmt.Sprintf("A%d", infoRow+i)
		if err := f.SetCellValue(sheet, cell, line); err != nil {
			return err
		}
	}
	if err := f.SetCellStyle(sheet, fmt.Sprintf("A%d", infoRow), fmt.Sprintf("A%d", infoRow), styles.bold); err != nil {
		return err
	}

	return setColumnWidths(f, sheet, detailColumns)
}

func (w *Writer) writeCompleteSheet(f *excelize.File, sheet string, styles *styleSet, entries []*models.RTMEntry) error {
	if err := writeHeader(f, sheet, styles, completeColumns); err != nil {
		return err
	}

	row := 2
	lastSheet := ""
	for _, e := range entries {
		if e.SheetName != lastSheet {
			if lastSheet != "" {
				cell := fmt.Sprintf("A%d", row)
				if err := f.SetCellValue(sheet, cell, fmt.Sprintf("--- %s ---", e.SheetName)); err != nil {
					return err
				}
				if err := f.SetCellStyle(sheet, cell, cell, styles.separator); err != nil {
					return err
				}
				if err := f.MergeCell(sheet, cell, fmt.Sprintf("K%d", row)); err != nil {
					return err
				}
				row++
			}
			lastSheet = e.SheetName
		}

		values := []interface{}{
			e.ID, e.Description, e.SheetName,
			e.Source, string(e.RequirementType), string(e.Priority),
			string(e.Status), e.RelatedDeliverables, e.TestCaseID,
			e.Comments, e.OriginalID,
		}
		if err := writeRow(f, sheet, row, values); err != nil {
			return err
		}
		row++
	}

	return setColumnWidths(f, sheet, completeColumns)
}

func (w *Writer) writeSummarySheet(f *excelize.File, sheet string, styles *styleSet, entries []*models.RTMEntry, stats *models.RTMStats) error {
	row := 1
	setTitled := func(text string, style int) error {
		cell := fmt.Sprintf("A%d", row)
		if err := f.SetCellValue(sheet, cell, text); err != nil {
			return err
		}
		return f.SetCellStyle(sheet, cell, cell, style)
	}

	if err := setTitled("Requirements Traceability Matrix - Summary", styles.title); err != nil {
		return err
	}
	row += 3

	if err := setTitled("General Statistics", styles.bold); err != nil {
		return err
	}
	row++

	focusCount := 0
	for _, e := range entries {
		if w.focusSheet != "" && e.SheetName == w.focusSheet {
			focusCount++
		}
	}
	general := []struct {
		name  string
		value interface{}
	}{
		{"Total Requirements", stats.TotalRequirements},
		{"Total Sheets Processed", len(stats.BySheet)},
		{"Focus Sheet", w.focusSheet},
		{"Focus Sheet Requirements", focusCount},
		{"Service Analysis Used", stats.AIAnalyzed},
		{"Rule-based Fallback Used", stats.FallbackUsed},
		{"Processing Date", w.now().Format("2006-01-02 15:04:05")},
	}
	for _, g := range general {
		nameCell := fmt.Sprintf("A%d", row)
		if err := f.SetCellValue(sheet, nameCell, g.name); err != nil {
			return err
		}
		if err := f.SetCellStyle(sheet, nameCell, nameCell, styles.bold); err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, fmt.Sprintf("B%d", row), g.value); err != nil {
			return err
		}
		row++
	}
	row += 2

	if err := setTitled("Requirements by Type", styles.bold); err != nil {
		return err
	}
	row++
	typeNames := make([]string, 0, len(stats.ByType))
	for t := range stats.ByType {
		typeNames = append(typeNames, string(t))
	}
	sort.Strings(typeNames)
	for _, name := range typeNames {
		if err := writeCountRow(f, sheet, row, name, stats.ByType[models.RequirementType(name)], stats.TotalRequirements); err != nil {
			return err
		}
		row++
	}
	row += 2

	if err := setTitled("Requirements by Priority", styles.bold); err != nil {
		return err
	}
	row++
	for _, p := range []models.Priority{models.PriorityHigh, models.PriorityMedium, models.PriorityLow} {
		count, ok := stats.ByPriority[p]
		if !ok {
			continue
		}
		if err := writeCountRow(f, sheet, row, string(p), count, stats.TotalRequirements); err != nil {
			return err
		}
		row++
	}
	row += 2

	if err := setTitled("Requirements by Sheet", styles.bold); err != nil {
		return err
	}
	row++
	for _, name := range sheetOrder(entries) {
		if err := writeCountRow(f, sheet, row, name, stats.BySheet[name], stats.TotalRequirements); err != nil {
			return err
		}
		if name == w.focusSheet {
			cell := fmt.Sprintf("D%d", row)
			if err := f.SetCellValue(sheet, cell, "FOCUS SHEET"); err != nil {
				return err
			}
			if err := f.SetCellStyle(sheet, cell, cell, styles.focusMark); err != nil {
				return err
			}
		}
		row++
	}

	return setColumnWidths(f, sheet, []string{"Metric", "Value", "Percentage", "Notes"})
}

func writeHeader(f *excelize.File, sheet string, styles *styleSet, columns []string) error {
	for i, name := range columns {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, col+"1", name); err != nil {
			return err
		}
	}
	last, err := excelize.ColumnNumberToName(len(columns))
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, "A1", last+"1", styles.header)
}

func writeRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell := fmt.Sprintf("A%d", row)
	return f.SetSheetRow(sheet, cell, &values)
}

func writeCountRow(f *excelize.File, sheet string, row int, name string, count, total int) error {
	if err := f.SetCellValue(sheet, fmt.Sprintf("A%d", row), name); err != nil {
		return err
	}
	if err := f.SetCellValue(sheet, fmt.Sprintf("B%d", row), count); err != nil {
		return err
	}
	pct := ""
	if total > 0 {
		pct = fmt.Sprintf("%.1f%%", float64(count)/float64(total)*100)
	}
	return f.SetCellValue(sheet, fmt.Sprintf("C%d", row), pct)
}

func setColumnWidths(f *excelize.File, sheet string, columns []string) error {
	for i, name := range columns {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		width := float64(len(name)) + 8
		if width > 50 {
			width = 50
		}
		if err := f.SetColWidth(sheet, col, col, width); err != nil {
			return err
		}
	}
	return nil
}

// sheetOrder lists source sheets in first-appearance order.
func sheetOrder(entries []*models.RTMEntry) []string {
	var order []string
	seen := make(map[string]bool)
	for _, e := range entries {
		if !seen[e.SheetName] {
			seen[e.SheetName] = true
			order = append(order, e.SheetName)
		}
	}
	return order
}

func analysisMethod(e *models.RTMEntry) string {
	if e.UsedFallback {
		return "Rule-based"
	}
	return "Service"
}

// sheetTitle clamps a name to Excel's 31-character sheet title limit.
func sheetTitle(name string) string {
	if len(name) > 31 {
		return name[:31]
	}
	return name
}
