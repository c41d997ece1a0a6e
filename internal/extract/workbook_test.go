package extract

import (
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"
)

func writeTestWorkbook(t *testing.T) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	// Default sheet becomes the scope sheet.
	if err := f.SetSheetName("Sheet1", "Scope"); err != nil {
		t.Fatal(err)
	}
	rows := [][]interface{}{
		{"ID", "Requirement", "Priority"},
		{"R-1", "The system shall export reports", "High"},
		{"R-2", "The system must support backups", "Low"},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow("Scope", cell, &row); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := f.NewSheet("Empty"); err != nil {
		t.Fatal(err)
	}
	if err := f.MergeCell("Scope", "A2", "A3"); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "reqs.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadWorkbook(t *testing.T) {
	path := writeTestWorkbook(t)
	wb, err := LoadWorkbook(path)
	if err != nil {
		t.Fatalf("LoadWorkbook() error = %v", err)
	}

	names := wb.SheetNames()
	if len(names) != 2 || names[0] != "Scope" || names[1] != "Empty" {
		t.Fatalf("sheet names = %v", names)
	}

	scope := wb.Sheet("Scope")
	if scope == nil {
		t.Fatal("Scope sheet missing")
	}
	if len(scope.ColumnNames) != 3 || scope.ColumnNames[1] != "Requirement" {
		t.Errorf("column names = %v", scope.ColumnNames)
	}
	if len(scope.Rows) != 2 {
		t.Errorf("data rows = %d, want 2 (header excluded)", len(scope.Rows))
	}
	if got := scope.Column(1); len(got) != 2 || got[0] != "The system shall export reports" {
		t.Errorf("column values = %v", got)
	}
	if len(scope.Merged) != 1 {
		t.Fatalf("merged ranges = %d, want 1", len(scope.Merged))
	}
	m := scope.Merged[0]
	if m.StartRow != 2 || m.EndRow != 3 || m.StartCol != 1 {
		t.Errorf("merged range coords = %+v", m)
	}
	if m.Value != "R-1" {
		t.Errorf("merged anchor value = %q, want R-1", m.Value)
	}

	if wb.Sheet("Empty").ColumnNames != nil {
		t.Error("empty sheet should have no columns")
	}
	if wb.Sheet("missing") != nil {
		t.Error("unknown sheet should return nil")
	}
}

func TestHeaderNames_Placeholders(t *testing.T) {
	names := headerNames([]string{"Req", "", "Owner"}, 4)
	want := []string{"Req", "Column 2", "Owner", "Column 4"}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}
