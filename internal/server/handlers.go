package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/reqtrace/rtmgen/internal/extract"
	"github.com/reqtrace/rtmgen/internal/progress"
)

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	maxBytes := s.config.Processing.MaxFileSizeBytes
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("file exceeds %d bytes", maxBytes))
			return
		}
		s.respondError(w, http.StatusBadRequest, "invalid multipart request")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !s.config.Processing.AllowedExtension(ext) {
		s.respondError(w, http.StatusUnsupportedMediaType,
			fmt.Sprintf("extension %q not allowed; accepted: %s", ext, strings.Join(s.config.Processing.AllowedExtensions, ", ")))
		return
	}

	if err := os.MkdirAll(s.config.Storage.UploadDir, 0o755); err != nil {
		s.logger.Error("create upload dir failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "storage unavailable")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		s.logger.Error("read upload failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "storage unavailable")
		return
	}
	if _, err := extract.LoadWorkbookReader(bytes.NewReader(data), header.Filename); err != nil {
		s.respondError(w, http.StatusUnprocessableEntity, "file is not a readable workbook")
		return
	}

	fileID := uuid.New().String()
	destPath := filepath.Join(s.config.Storage.UploadDir, fileID+ext)
	if err := os.WriteFile(destPath, data, 0o644); err != nil {
		s.logger.Error("store upload failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "storage unavailable")
		return
	}

	s.storeFile(fileID, &uploadedFile{Path: destPath, FileName: header.Filename})
	s.logger.Debug("file uploaded",
		zap.String("file_id", fileID),
		zap.String("file_name", header.Filename))
	s.respondJSON(w, http.StatusCreated, map[string]string{
		"file_id":   fileID,
		"file_name": header.Filename,
		"status":    "uploaded",
	})
}

func (s *Server) handleSheets(w http.ResponseWriter, r *http.Request) {
	f, ok := s.lookupFile(chi.URLParam(r, "id"))
	if !ok {
		s.respondError(w, http.StatusNotFound, "file not found")
		return
	}
	suggestions, err := s.pipeline.SheetInfo(f.Path)
	if err != nil {
		s.logger.Error("sheet analysis failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"file_name":   f.FileName,
		"suggestions": suggestions,
	})
}

func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	f, ok := s.lookupFile(chi.URLParam(r, "id"))
	if !ok {
		s.respondError(w, http.StatusNotFound, "file not found")
		return
	}
	est, err := s.pipeline.EstimateRun(f.Path, r.URL.Query().Get("focus_sheet"))
	if err != nil {
		s.logger.Error("estimate failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, est)
}

type generateRequest struct {
	FocusSheet string `json:"focus_sheet"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	f, ok := s.lookupFile(chi.URLParam(r, "id"))
	if !ok {
		s.respondError(w, http.StatusNotFound, "file not found")
		return
	}

	var req generateRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	jobID := uuid.New().String()
	s.logger.Info("generation job accepted",
		zap.String("job_id", jobID),
		zap.String("file_name", f.FileName),
		zap.String("focus_sheet", req.FocusSheet))

	// The request only starts the job; progress is served from the tracker.
	go func() {
		if _, err := s.pipeline.Run(context.Background(), jobID, f.Path, req.FocusSheet); err != nil {
			s.logger.Error("generation job failed", zap.String("job_id", jobID), zap.Error(err))
		}
	}()

	s.respondJSON(w, http.StatusAccepted, map[string]string{
		"job_id": jobID,
		"status": "processing",
	})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	snap, ok := s.tracker.Get(jobID)
	if !ok {
		s.respondError(w, http.StatusNotFound, "job not found")
		return
	}
	s.respondJSON(w, http.StatusOK, snap)
}

func (s *Server) handleProgressDelete(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if !s.tracker.Remove(jobID) {
		s.respondError(w, http.StatusNotFound, "job not found")
		return
	}
	s.logger.Debug("job progress discarded", zap.String("job_id", jobID))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	snap, ok := s.tracker.Get(jobID)
	if !ok {
		s.respondError(w, http.StatusNotFound, "job not found")
		return
	}
	switch snap.Status {
	case progress.StatusCompleted:
	case progress.StatusFailed:
		s.respondError(w, http.StatusGone, "job failed: "+snap.Error)
		return
	default:
		s.respondError(w, http.StatusConflict, "job still processing")
		return
	}
	if snap.OutputPath == "" {
		s.respondError(w, http.StatusNotFound, "output not available")
		return
	}
	if _, err := os.Stat(snap.OutputPath); err != nil {
		s.respondError(w, http.StatusNotFound, "output file missing")
		return
	}

	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", filepath.Base(snap.OutputPath)))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	http.ServeFile(w, r, snap.OutputPath)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
