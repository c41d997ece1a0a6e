package server

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/reqtrace/rtmgen/internal/config"
	"github.com/reqtrace/rtmgen/internal/pipeline"
	"github.com/reqtrace/rtmgen/internal/progress"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Storage.UploadDir = t.TempDir()
	cfg.Storage.OutputDir = t.TempDir()
	cfg.Analyzer.APIKey = "" // rule-based fallback, no network
	cfg.Analyzer.InterBatchDelaySecs = 0
	cfg.Processing.FocusSheet = ""

	tracker := progress.New()
	p := pipeline.New(cfg, tracker)
	return NewServer(p, tracker, cfg, zap.NewNop())
}

func workbookBytes(t *testing.T) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", "Scope"); err != nil {
		t.Fatal(err)
	}
	rows := [][]interface{}{
		{"ID", "Requirement"},
		{"R-1", "The system shall authenticate users before granting access"},
		{"R-2", "The system must log every failed login attempt"},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow("Scope", cell, &row); err != nil {
			t.Fatal(err)
		}
	}
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func uploadRequest(t *testing.T, name string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatal(err)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/files", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func uploadWorkbook(t *testing.T, router http.Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, uploadRequest(t, "reqs.xlsx", workbookBytes(t)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["file_id"] == "" {
		t.Fatal("upload response missing file_id")
	}
	return resp["file_id"]
}

func TestUploadRejectsUnknownExtension(t *testing.T) {
	router := newTestServer(t).Router()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, uploadRequest(t, "reqs.csv", []byte("a,b\n")))
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("status = %d, want 415", rec.Code)
	}
}

func TestUploadRejectsCorruptWorkbook(t *testing.T) {
	router := newTestServer(t).Router()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, uploadRequest(t, "reqs.xlsx", []byte("not a zip archive")))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
}

func TestSheets(t *testing.T) {
	router := newTestServer(t).Router()
	fileID := uploadWorkbook(t, router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/files/"+fileID+"/sheets", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		FileName    string `json:"file_name"`
		Suggestions []struct {
			SheetName string `json:"sheet_name"`
		} `json:"suggestions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.FileName != "reqs.xlsx" {
		t.Errorf("file name = %q", resp.FileName)
	}
	if len(resp.Suggestions) == 0 || resp.Suggestions[0].SheetName != "Scope" {
		t.Errorf("suggestions = %+v", resp.Suggestions)
	}
}

func TestSheetsUnknownFile(t *testing.T) {
	router := newTestServer(t).Router()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/files/nope/sheets", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestEstimate(t *testing.T) {
	router := newTestServer(t).Router()
	fileID := uploadWorkbook(t, router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/files/"+fileID+"/estimate?focus_sheet=Scope", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var est struct {
		TotalRequirements int `json:"total_requirements"`
		EstimatedBatches  int `json:"estimated_batches"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &est); err != nil {
		t.Fatal(err)
	}
	if est.TotalRequirements < 2 || est.EstimatedBatches < 1 {
		t.Errorf("estimate = %+v", est)
	}
}

func TestGenerateProgressDownload(t *testing.T) {
	router := newTestServer(t).Router()
	fileID := uploadWorkbook(t, router)

	body := bytes.NewBufferString(`{"focus_sheet":"Scope"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/files/"+fileID+"/rtm", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("generate status = %d: %s", rec.Code, rec.Body.String())
	}
	var accepted map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &accepted); err != nil {
		t.Fatal(err)
	}
	jobID := accepted["job_id"]
	if jobID == "" {
		t.Fatal("no job id returned")
	}

	// Poll until the background job finishes.
	deadline := time.Now().Add(10 * time.Second)
	var snap progress.Snapshot
	for {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/progress/"+jobID, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("progress status = %d", rec.Code)
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
			t.Fatal(err)
		}
		if snap.Status == progress.StatusCompleted || snap.Status == progress.StatusFailed {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job did not finish in time: %+v", snap)
		}
		time.Sleep(50 * time.Millisecond)
	}
	if snap.Status != progress.StatusCompleted {
		t.Fatalf("job status = %s, error = %s", snap.Status, snap.Error)
	}
	if snap.Percent != 100 {
		t.Errorf("completed percent = %d, want 100", snap.Percent)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/rtm/"+jobID+"/download", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("download status = %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Disposition"); got == "" {
		t.Error("download missing Content-Disposition header")
	}
	if rec.Body.Len() == 0 {
		t.Error("download body empty")
	}
}

func TestProgressUnknownJob(t *testing.T) {
	router := newTestServer(t).Router()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/progress/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestProgressDelete(t *testing.T) {
	s := newTestServer(t)
	s.tracker.Start("job-done", "reqs.xlsx")
	router := s.Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/progress/job-done", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/progress/job-done", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d, want 404", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/progress/job-done", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", rec.Code)
	}
}

func TestDownloadWhileProcessing(t *testing.T) {
	s := newTestServer(t)
	s.tracker.Start("job-busy", "reqs.xlsx")
	router := s.Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/rtm/job-busy/download", nil))
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	router := newTestServer(t).Router()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestUploadDirIsUsed(t *testing.T) {
	s := newTestServer(t)
	router := s.Router()
	fileID := uploadWorkbook(t, router)

	f, ok := s.lookupFile(fileID)
	if !ok {
		t.Fatal("uploaded file not registered")
	}
	if filepath.Dir(f.Path) != s.config.Storage.UploadDir {
		t.Errorf("stored at %q, want inside %q", f.Path, s.config.Storage.UploadDir)
	}
	if filepath.Ext(f.Path) != ".xlsx" {
		t.Errorf("stored extension = %q", filepath.Ext(f.Path))
	}
}
