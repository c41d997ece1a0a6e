package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const testDebounce = 50 * time.Millisecond

func startTestWatcher(t *testing.T, root string, recursive bool) (*Watcher, chan string) {
	t.Helper()
	got := make(chan string, 16)
	w := New([]string{root}, []string{".xlsx", ".xls"}, recursive,
		func(path string) { got <- path },
		WithDebounce(testDebounce))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(w.Stop)
	return w, got
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("workbook bytes"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func expectPath(t *testing.T, got chan string, want string) {
	t.Helper()
	select {
	case path := <-got:
		if path != want {
			t.Fatalf("processed path = %q, want %q", path, want)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for %q to be processed", want)
	}
}

func expectQuiet(t *testing.T, got chan string, d time.Duration) {
	t.Helper()
	select {
	case path := <-got:
		t.Fatalf("unexpected processing of %q", path)
	case <-time.After(d):
	}
}

func TestWatcherIngestsNewSpreadsheet(t *testing.T) {
	root := t.TempDir()
	_, got := startTestWatcher(t, root, true)

	path := filepath.Join(root, "requirements.xlsx")
	writeFile(t, path)

	expectPath(t, got, path)
}

func TestWatcherSkipsTempOutputAndForeignFiles(t *testing.T) {
	root := t.TempDir()
	_, got := startTestWatcher(t, root, true)

	writeFile(t, filepath.Join(root, "~$requirements.xlsx"))
	writeFile(t, filepath.Join(root, ".partial.xlsx"))
	writeFile(t, filepath.Join(root, "RTM_requirements_20250101_120000.xlsx"))
	writeFile(t, filepath.Join(root, "notes.txt"))

	expectQuiet(t, got, 5*testDebounce)

	// A real spreadsheet still gets through, so the watcher was alive the
	// whole time.
	path := filepath.Join(root, "real.xlsx")
	writeFile(t, path)
	expectPath(t, got, path)
}

func TestWatcherDebounceCollapsesWrites(t *testing.T) {
	root := t.TempDir()
	_, got := startTestWatcher(t, root, false)

	path := filepath.Join(root, "slow-copy.xlsx")
	for i := 0; i < 5; i++ {
		writeFile(t, path)
		time.Sleep(testDebounce / 5)
	}

	expectPath(t, got, path)
	expectQuiet(t, got, 5*testDebounce)
}

func TestWatcherRecursiveNewDirectory(t *testing.T) {
	root := t.TempDir()
	_, got := startTestWatcher(t, root, true)

	sub := filepath.Join(root, "incoming")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	// Give the watcher a beat to register the new directory.
	time.Sleep(2 * testDebounce)

	path := filepath.Join(sub, "nested.xlsx")
	writeFile(t, path)

	expectPath(t, got, path)
}

func TestWatcherNonRecursiveIgnoresSubdirectories(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "ignored")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	_, got := startTestWatcher(t, root, false)

	writeFile(t, filepath.Join(sub, "nested.xlsx"))
	expectQuiet(t, got, 5*testDebounce)
}

func TestProcessExisting(t *testing.T) {
	root := t.TempDir()
	existing := filepath.Join(root, "backlog.xlsx")
	writeFile(t, existing)
	writeFile(t, filepath.Join(root, "RTM_backlog_20250101_120000.xlsx"))

	w, got := startTestWatcher(t, root, true)
	w.ProcessExisting()

	expectPath(t, got, existing)
	expectQuiet(t, got, 5*testDebounce)
}

func TestWatcherCreatesMissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "inbox")
	_, got := startTestWatcher(t, root, true)

	if _, err := os.Stat(root); err != nil {
		t.Fatalf("inbox root was not created: %v", err)
	}

	path := filepath.Join(root, "dropped.xlsx")
	writeFile(t, path)
	expectPath(t, got, path)
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	root := t.TempDir()
	w, _ := startTestWatcher(t, root, false)
	w.Stop()
	w.Stop()
}

func TestDirectories(t *testing.T) {
	root := t.TempDir()
	w, _ := startTestWatcher(t, root, false)
	dirs := w.Directories()
	if len(dirs) != 1 || dirs[0] != root {
		t.Fatalf("Directories() = %v, want [%s]", dirs, root)
	}
}

func TestMatchExtension(t *testing.T) {
	tests := []struct {
		path string
		exts []string
		want bool
	}{
		{"book.xlsx", []string{".xlsx", ".xls"}, true},
		{"book.XLSX", []string{".xlsx"}, true},
		{"book.xls", []string{"xlsx", "xls"}, true},
		{"book.csv", []string{".xlsx", ".xls"}, false},
		{"book.xlsx", nil, true},
	}
	for _, tt := range tests {
		if got := matchExtension(tt.path, tt.exts); got != tt.want {
			t.Errorf("matchExtension(%q, %v) = %v, want %v", tt.path, tt.exts, got, tt.want)
		}
	}
}
